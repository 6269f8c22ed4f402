package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/soyeahso/flowbook/internal/config"
	"github.com/soyeahso/flowbook/internal/store"
	"github.com/soyeahso/flowbook/internal/version"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show flowbook status and configuration summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("Flowbook %s (commit %s)\n\n", version.Version, version.Commit)

			// Show paths
			fmt.Printf("Config:   %s\n", paths.Config)
			fmt.Printf("Data:     %s\n", paths.Data)
			fmt.Printf("Database: %s\n", paths.Database())
			fmt.Println()

			if _, err := os.Stat(paths.Config); os.IsNotExist(err) {
				fmt.Println("Config:   not found (using defaults)")
			}
			cfg, err := loadConfig()
			if err != nil {
				fmt.Printf("Config:   error loading: %v\n", err)
				return nil
			}

			fmt.Printf("Server:   port=%d bind=%s path=%s tls=%v\n",
				cfg.Server.Port, cfg.Server.Bind, cfg.Server.FlowPath, cfg.Server.TLS.Enabled)
			fmt.Printf("Calendar: provider=%s id=%s\n", cfg.Calendar.Provider, cfg.Calendar.CalendarID)
			if cfg.Calendar.Provider == "google" {
				if _, err := os.Stat(cfg.Calendar.TokenFile); err != nil {
					fmt.Println("          not connected (run `flowbook calendar auth`)")
				}
			}
			if len(cfg.Booking.Services) > 0 {
				ids := make([]string, len(cfg.Booking.Services))
				for i, s := range cfg.Booking.Services {
					ids[i] = s.ID
				}
				fmt.Printf("Services: %s\n", strings.Join(ids, ", "))
			} else {
				fmt.Println("Services: (single default service)")
			}
			if cfg.Cache.RedisAddr != "" {
				fmt.Printf("Cache:    redis=%s ttl=%ds\n", cfg.Cache.RedisAddr, cfg.Cache.TTLSeconds)
			} else {
				fmt.Println("Cache:    (none)")
			}
			if cfg.Platform.PhoneNumberID != "" && cfg.Platform.AccessToken != "" {
				fmt.Printf("Platform: phone=%s api=%s\n", cfg.Platform.PhoneNumberID, cfg.Platform.APIVersion)
			} else {
				fmt.Println("Platform: (not configured)")
			}

			printStoreStatus(cmd, cfg)

			// Validation
			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				fmt.Printf("\nValidation issues (%d):\n", len(issues))
				for _, issue := range issues {
					fmt.Printf("  - %s: %s\n", issue.Path, issue.Message)
				}
			}

			return nil
		},
	}

	return cmd
}

func printStoreStatus(cmd *cobra.Command, cfg config.Config) {
	if _, err := os.Stat(cfg.Store.Path); os.IsNotExist(err) {
		fmt.Println("Keys:     (no database yet)")
		return
	}
	a, err := openApp(cfg)
	if err != nil {
		fmt.Printf("Store:    error: %v\n", err)
		return
	}
	defer a.Close()

	ctx := cmd.Context()
	info, err := a.keyStore.Info(ctx)
	switch {
	case errors.Is(err, store.ErrNotFound):
		fmt.Println("Keys:     none (generated on first request)")
	case err != nil:
		fmt.Printf("Keys:     error: %v\n", err)
	default:
		registered := "not registered"
		if info.RegisteredAt != nil {
			registered = "registered " + info.RegisteredAt.Format(time.RFC3339)
		}
		fmt.Printf("Keys:     %s (%s)\n", info.Fingerprint, registered)
	}

	if n, err := a.bookings.Count(ctx); err == nil {
		fmt.Printf("Bookings: %d recorded\n", n)
	}
}
