package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dativo-io/veil/internal/anonymizer"
	"github.com/dativo-io/veil/internal/config"
)

var decryptKey string

var decryptCmd = &cobra.Command{
	Use:   "decrypt <token>",
	Short: "Recover a value replaced by the encrypt operator",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := decryptKey
		if key == "" {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			key = cfg.EncryptionKey
		}
		if key == "" {
			return fmt.Errorf("no key: pass --key or set VEIL_ENCRYPTION_KEY")
		}
		plain, err := anonymizer.Decrypt(key, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), plain)
		return nil
	},
}

func init() {
	decryptCmd.Flags().StringVar(&decryptKey, "key", "", "encryption key (default: encryption_key from config)")
	rootCmd.AddCommand(decryptCmd)
}
