package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Dilnura23/speech-recognition-safety-keyword-hci/internal/version"
)

// VersionCmd returns the command that prints build information.
func VersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
