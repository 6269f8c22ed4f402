package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/soyeahso/flowbook/internal/store"
	"github.com/spf13/cobra"
)

func newKeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage the flow encryption key pair",
	}

	cmd.AddCommand(newKeysGenerateCmd())
	cmd.AddCommand(newKeysShowCmd())
	cmd.AddCommand(newKeysRegisterCmd())

	return cmd
}

func newKeysGenerateCmd() *cobra.Command {
	var (
		force    bool
		register bool
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a new key pair",
		Long: "Generate a new RSA key pair and store it. Replacing an existing pair breaks\n" +
			"every client still encrypting with the old public key until the new one is registered.",
		Args: cobra.NoArgs,
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
			_, err = a.keyStore.PrivateKey(ctx)
			switch {
			case err == nil && !force:
				return errors.New("a key pair already exists; pass --force to replace it")
			case err != nil && !errors.Is(err, store.ErrNotFound):
				return err
			}

			fingerprint, err := a.keys.Rotate(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Generated key pair %s\n", fingerprint)

			if register {
				if err := a.keys.Register(ctx); err != nil {
					return err
				}
				fmt.Println("Public key registered with platform")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "replace an existing key pair")
	cmd.Flags().BoolVar(&register, "register", false, "register the new public key with the platform")

	return cmd
}

func newKeysShowCmd() *cobra.Command {
	var remote bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the stored public key",
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

			ctx := cmd.Context()
			info, err := a.keyStore.Info(ctx)
			if errors.Is(err, store.ErrNotFound) {
				fmt.Println("No key pair stored. One is generated on the first flow request,")
				fmt.Println("or run `flowbook keys generate`.")
				return nil
			}
			if err != nil {
				return err
			}

			fmt.Printf("Fingerprint: %s\n", info.Fingerprint)
			fmt.Printf("Created:     %s\n", info.CreatedAt.Format(time.RFC3339))
			if info.RegisteredAt != nil {
				fmt.Printf("Registered:  %s\n", info.RegisteredAt.Format(time.RFC3339))
			} else {
				fmt.Println("Registered:  no")
			}
			fmt.Println()
			fmt.Print(info.PublicPEM)

			if !remote {
				return nil
			}
			rk, err := a.platform.PublicKey(ctx)
			if err != nil {
				return fmt.Errorf("fetching platform key: %w", err)
			}
			fmt.Println()
			fmt.Printf("Platform signature status: %s\n", rk.SignatureStatus)
			if strings.TrimSpace(rk.PublicPEM) == strings.TrimSpace(info.PublicPEM) {
				fmt.Println("Platform key matches the stored key")
			} else {
				fmt.Println("Platform key differs from the stored key; run `flowbook keys register`")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&remote, "remote", false, "compare with the key registered on the platform")

	return cmd
}

func newKeysRegisterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "register",
		Short: "Register the stored public key with the platform",
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

			if err := a.keys.Register(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("Public key registered with platform")
			return nil
		},
	}
}
