package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/soyeahso/flowbook/internal/availability"
	"github.com/soyeahso/flowbook/internal/calendar"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
)

func newCalendarCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calendar",
		Short: "Connect and inspect the booking calendar",
	}

	cmd.AddCommand(newCalendarAuthCmd())
	cmd.AddCommand(newCalendarSlotsCmd())

	return cmd
}

func newCalendarAuthCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorize access to a Google Calendar account",
		Long: "Authorize flowbook against Google Calendar. Download an OAuth client (desktop\n" +
			"app) from the Google Cloud console and save it as calendar.credentialsFile first.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			tokenPath := cfg.Calendar.TokenFile

			if !force {
				if _, err := calendar.TokenFromFile(tokenPath); err == nil {
					fmt.Println("Already authenticated. Token exists at", tokenPath)
					fmt.Println("To re-authenticate, run with --force")
					return nil
				}
			}

			oc, err := calendar.OAuthConfig(cfg.Calendar.CredentialsFile)
			if err != nil {
				return fmt.Errorf("%w (expected OAuth client at %s)", err, cfg.Calendar.CredentialsFile)
			}
			tok, err := tokenFromWeb(cmd.Context(), oc)
			if err != nil {
				return fmt.Errorf("authentication failed: %w", err)
			}
			if err := paths.EnsureDirs(); err != nil {
				return err
			}
			if err := calendar.SaveToken(tokenPath, tok); err != nil {
				return err
			}
			fmt.Println("\nAuthentication successful! Token saved to", tokenPath)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "replace an existing token")

	return cmd
}

func tokenFromWeb(ctx context.Context, oc *oauth2.Config) (*oauth2.Token, error) {
	authURL := oc.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
	fmt.Printf("Go to the following link in your browser then type the authorization code: \n%v\n", authURL)

	var authCode string
	if _, err := fmt.Fscan(os.Stdin, &authCode); err != nil {
		return nil, fmt.Errorf("unable to read authorization code: %w", err)
	}

	tok, err := oc.Exchange(ctx, authCode)
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve token from web: %w", err)
	}
	return tok, nil
}

func newCalendarSlotsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "slots [date]",
		Short: "List the free slots offered for a date (default today)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := openApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			policy, err := a.configs.BookingConfig(ctx)
			if err != nil {
				return err
			}
			loc, err := policy.Location()
			if err != nil {
				return err
			}
			date := time.Now().In(loc).Format(availability.DateLayout)
			if len(args) == 1 {
				date = args[0]
			}

			slots, err := a.machine(a.calendarClient(ctx)).FreeSlots(ctx, date)
			if err != nil {
				return err
			}
			if len(slots) == 0 {
				fmt.Printf("No free slots on %s (%s)\n", date, policy.TimeZone)
				return nil
			}
			fmt.Printf("Free slots on %s (%s):\n", date, policy.TimeZone)
			for _, s := range slots {
				fmt.Printf("  %s  %s\n", s.Label, s.ISOTimestamp)
			}
			return nil
		},
	}
}
