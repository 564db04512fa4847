package main

import (
	"os/signal"
	"syscall"

	"github.com/powerboard/tui/internal/relay"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newGatewayCmd(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "gateway",
		Short: "Run the push relay that fans backend events out to connected clients",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			closeLog, err := opts.setupLogging(false, nil)
			if err != nil {
				return err
			}
			defer closeLog()

			rc := opts.cfg.Relay
			if addr != "" {
				rc.Addr = addr
			}
			if rc.InternalSecret == "dev-secret" {
				log.Warn().Msg("relay is using the development internal secret")
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			srv := relay.NewServer(relay.Config{
				InternalSecret: rc.InternalSecret,
				JWTSecret:      rc.JWTSecret,
				AllowedOrigins: rc.AllowedOrigins,
				MaxConnections: rc.MaxConnections,
			}, reg)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			err = srv.ListenAndServe(ctx, rc.Addr)
			log.Info().Msg("relay stopped")
			return err
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides relay.addr)")
	return cmd
}
