package booking

import (
	"context"

	"github.com/soyeahso/flowbook/internal/flow"
)

// Screen is a step of the booking conversation.
type Screen string

const (
	ScreenBookingStart Screen = "BOOKING_START"
	ScreenSelectTime   Screen = "SELECT_TIME"
	ScreenCustomerInfo Screen = "CUSTOMER_INFO"
)

// ParseScreen recognizes a screen name sent by the client.
func ParseScreen(s string) (Screen, bool) {
	switch Screen(s) {
	case ScreenBookingStart, ScreenSelectTime, ScreenCustomerInfo:
		return Screen(s), true
	}
	return "", false
}

// Keys of the data object exchanged with the client.
const (
	keySelectedService = "selected_service"
	keySelectedDate    = "selected_date"
	keySelectedSlot    = "selected_slot"
	keyCustomerName    = "customer_name"
	keyCustomerPhone   = "customer_phone"
	keyNotes           = "notes"
)

var draftKeys = []string{
	keySelectedService,
	keySelectedDate,
	keySelectedSlot,
	keyCustomerName,
	keyCustomerPhone,
	keyNotes,
}

// step handles one accepted transition. On a failed turn it returns the
// re-rendered screen together with an *Error.
type step func(*Machine, context.Context, turn) (flow.Response, error)

type transition struct {
	screen Screen
	action flow.Action
}

// transitions is the complete table of accepted (screen, action) pairs.
// INIT is looked up with an empty screen whatever the client sent.
// Anything missing here is an unknown transition.
var transitions = map[transition]step{
	{"", flow.ActionInit}:                         (*Machine).start,
	{ScreenBookingStart, flow.ActionDataExchange}: (*Machine).submitDate,
	{ScreenSelectTime, flow.ActionDataExchange}:   (*Machine).submitSlot,
	{ScreenCustomerInfo, flow.ActionDataExchange}: (*Machine).submitCustomer,
	{ScreenSelectTime, flow.ActionBack}:           (*Machine).start,
	{ScreenCustomerInfo, flow.ActionBack}:         (*Machine).backToTimes,
}
