package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Dilnura23/speech-recognition-safety-keyword-hci/internal/cli"
	"github.com/Dilnura23/speech-recognition-safety-keyword-hci/internal/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "safeword",
		Short:   "Safeword - wake-word triggered emergency response service",
		Version: version.String(),
		Long: `Safeword supervises an always-on wake-word engine and runs the
emergency response sequence when the safety key phrase is heard:
record audio, encrypt it and notify the configured contacts.`,
	}

	// Add subcommands
	rootCmd.AddCommand(cli.ServeCmd())
	rootCmd.AddCommand(cli.DoctorCmd())
	rootCmd.AddCommand(cli.DecryptCmd())
	rootCmd.AddCommand(cli.VersionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
