package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Dilnura23/speech-recognition-safety-keyword-hci/internal/bootstrap"
	"github.com/Dilnura23/speech-recognition-safety-keyword-hci/internal/config"
	"github.com/Dilnura23/speech-recognition-safety-keyword-hci/internal/version"
)

// ServeCmd returns the command that runs the detection service.
func ServeCmd() *cobra.Command {
	var listen bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the safeword detection service",
		Long: `Starts the HTTP API and, with --listen, the wake-word engine.

The service watches engine output for the configured key phrase. On a
detection it records audio, encrypts the recording and notifies the
configured emergency contacts.

Examples:
  safeword serve            # API only; start detection via POST /start-detection
  safeword serve --listen   # start detecting immediately`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := bootstrap.NewLogger(cfg.Log)

			services, err := bootstrap.Build(cfg, logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if listen {
				if err := services.Supervisor.Start(ctx, bootstrap.ListenerDefaults(cfg)); err != nil {
					logger.WithError(err).Error("wake-word engine did not start; retry via /start-detection")
				}
			}

			logger.WithFields(logrus.Fields{
				"addr":    cfg.HTTP.Addr,
				"version": version.String(),
			}).Info("safeword service starting")

			err = services.Server.Run(ctx, cfg.HTTP.ShutdownTimeout)

			closeCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
			defer cancel()
			if closeErr := services.Close(closeCtx); closeErr != nil && err == nil {
				err = closeErr
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&listen, "listen", false, "start wake-word detection immediately")

	return cmd
}
