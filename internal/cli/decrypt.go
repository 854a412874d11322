package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Dilnura23/speech-recognition-safety-keyword-hci/internal/config"
	"github.com/Dilnura23/speech-recognition-safety-keyword-hci/internal/cryptobox"
)

// DecryptCmd returns the command that opens sealed alert recordings.
func DecryptCmd() *cobra.Command {
	var out string
	var key string

	cmd := &cobra.Command{
		Use:   "decrypt <file>",
		Short: "Decrypt a sealed alert recording",
		Long: `Decrypts a recording produced by the alert pipeline.

The passphrase comes from --key or the SAFEWORD_ENCRYPTION_KEY
environment variable. Without --out, the ".encrypted" suffix is
stripped from the input name to form the output path.

Examples:
  safeword decrypt recordings/alert_20250101_120000.wav.encrypted
  safeword decrypt --key mypass -o /tmp/alert.wav alert.wav.encrypted`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			passphrase := key
			if passphrase == "" {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				passphrase = cfg.Crypto.Passphrase
			}

			box, err := cryptobox.New(passphrase)
			if err != nil {
				return err
			}
			written, err := box.DecryptFile(args[0], out)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), written)
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "output path (default: input without the .encrypted suffix)")
	cmd.Flags().StringVar(&key, "key", "", "encryption passphrase (default: SAFEWORD_ENCRYPTION_KEY)")

	return cmd
}
