package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/menta2k/toolbox/internal/server"
)

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newServeCommand(a *app) *cobra.Command {
	var (
		addr     string
		noVision bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Serve the toolbox over HTTP.

Endpoints:
  GET  /api/health
  GET  /api/icons/sizes
  POST /api/crop        file, x, y, width, height, display_width, display_height, aspect, preview
  POST /api/icons       file, sizes, fit, format (zip, ico, png)
  POST /api/convert     file, targetFormat, quality
  POST /api/remove-bg   file, tolerance, feather
  POST /api/suggest     file, display_width, display_height`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr != "" {
				a.cfg.Server.Addr = addr
			}
			opts := []server.Option{
				server.WithLogger(a.log),
				server.WithVersion(a.version),
			}
			if !noVision {
				d, err := a.tb.NewDetector()
				if err != nil {
					a.log.Warn().Err(err).Msg("region suggestion disabled")
				} else {
					opts = append(opts, server.WithDetector(d))
				}
			}
			srv := server.New(a.cfg, a.tb.Processor(), a.tb.Extractor(), opts...)
			return srv.ListenAndServe(a.context(cmd))
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().BoolVar(&noVision, "no-vision", false, "disable POST /api/suggest")
	return cmd
}
