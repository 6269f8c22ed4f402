package booking

import "fmt"

// ErrorKind classifies a failed turn for logging and metrics.
type ErrorKind string

const (
	// KindValidation is missing or invalid user input. The current screen is
	// re-rendered with an error message.
	KindValidation ErrorKind = "validation"
	// KindExternalUnavailable is a failed calendar or settings call.
	KindExternalUnavailable ErrorKind = "external_unavailable"
	// KindUnknownTransition is an action the current screen does not accept.
	KindUnknownTransition ErrorKind = "unknown_transition"
)

// Error is a turn that did not advance. Message is safe to show the user.
type Error struct {
	Kind    ErrorKind
	Screen  Screen
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s on %s: %s: %v", e.Kind, e.Screen, e.Message, e.Err)
	}
	return fmt.Sprintf("%s on %s: %s", e.Kind, e.Screen, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }
