package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/soyeahso/flowbook/internal/availability"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newBookingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "booking",
		Short: "Manage the stored booking policy and ledger",
	}

	cmd.AddCommand(newBookingShowCmd())
	cmd.AddCommand(newBookingSetCmd())
	cmd.AddCommand(newBookingResetCmd())
	cmd.AddCommand(newBookingListCmd())

	return cmd
}

func newBookingShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the booking policy in effect",
		Args:  cobra.NoArgs,
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

			policy, err := a.configs.BookingConfig(cmd.Context())
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(policy)
			if err != nil {
				return err
			}
			fmt.Print(string(data))
			return nil
		},
	}
}

func newBookingSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <file>",
		Short: "Store a booking policy from a YAML or JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			policy, err := readPolicy(args[0])
			if err != nil {
				return err
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := openApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.configs.SetBookingConfig(cmd.Context(), policy); err != nil {
				return err
			}
			fmt.Printf("Stored booking policy from %s\n", args[0])
			return nil
		},
	}
}

func newBookingResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Remove the stored policy so the configured defaults apply",
		Args:  cobra.NoArgs,
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

			if err := a.configs.ResetBookingConfig(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("Booking policy reset to defaults")
			return nil
		},
	}
}

func newBookingListCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recently confirmed bookings",
		Args:  cobra.NoArgs,
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

			recs, err := a.bookings.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(recs) == 0 {
				fmt.Println("No bookings recorded")
				return nil
			}
			for _, r := range recs {
				fmt.Printf("%s  %-12s  %s\n", r.SlotStart.Format("2006-01-02 15:04 MST"), r.ServiceID, r.EventID)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of bookings to show")

	return cmd
}

// readPolicy decodes a booking policy file. JSON is picked by extension,
// anything else is read as YAML.
func readPolicy(path string) (availability.CalendarBookingConfig, error) {
	var policy availability.CalendarBookingConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return policy, err
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &policy)
	} else {
		err = yaml.Unmarshal(data, &policy)
	}
	if err != nil {
		return policy, fmt.Errorf("parsing %s: %w", path, err)
	}
	return policy, nil
}
