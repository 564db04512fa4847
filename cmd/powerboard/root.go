package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/powerboard/tui/internal/auth"
	"github.com/powerboard/tui/internal/config"
	"github.com/powerboard/tui/internal/gateway"
	"github.com/powerboard/tui/internal/guard"
	"github.com/powerboard/tui/internal/logging"
	"github.com/powerboard/tui/internal/metrics"
	"github.com/powerboard/tui/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	logLevel   string
	token      string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:          "powerboard",
		Short:        "Realtime notifications for the Powerboard dashboard",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if opts.logLevel != "" {
				cfg.Log.Level = opts.logLevel
			}
			opts.cfg = cfg
			return nil
		},
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to config file (default ~/.powerboard/config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&opts.token, "token", "", "use a fixed access token instead of the stored credential")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runTUI(cmd.Context(), opts)
	}

	cmd.AddCommand(
		newTUICmd(opts),
		newNotificationsCmd(opts),
		newGatewayCmd(opts),
		newLoginCmd(opts),
		newLogoutCmd(opts),
	)
	return cmd
}

// setupLogging installs the global logger for a non-interactive command.
func (o *rootOptions) setupLogging(quiet bool, sink io.Writer) (func(), error) {
	return logging.Setup(logging.Options{
		Level: o.cfg.Log.Level,
		File:  o.cfg.Log.File,
		Quiet: quiet,
		Sink:  sink,
	})
}

// client is the credential side shared by every client command.
type client struct {
	scopes   storage.Scopes
	local    *storage.SQLite
	provider *auth.Provider
	token    auth.TokenFunc
	// loader is nil when a fixed token bypasses the provider.
	loader guard.Loader
}

func openClient(cfg *config.Config, staticToken string) (*client, error) {
	local, err := storage.OpenSQLite(cfg.Storage.Path)
	if err != nil {
		return nil, err
	}
	provider := auth.NewProvider(auth.Config{
		TokenURL:      cfg.Auth.TokenURL,
		DeviceAuthURL: cfg.Auth.DeviceAuthURL,
		ClientID:      cfg.Auth.ClientID,
		Audience:      cfg.Auth.Audience,
		Scopes:        cfg.Auth.Scopes(),
		HTTPClient:    &http.Client{Timeout: 15 * time.Second},
	}, local)
	c := &client{
		scopes:   storage.Scopes{Session: storage.NewMemory(), Local: local},
		local:    local,
		provider: provider,
		token:    provider.Token,
		loader:   provider,
	}
	if staticToken != "" {
		c.token = auth.Static(staticToken)
		c.loader = nil
	}
	return c, nil
}

// load runs the provider's loading phase unless a fixed token is in use.
func (c *client) load(ctx context.Context) error {
	if c.loader == nil {
		return nil
	}
	return c.provider.Load(ctx)
}

// user is the subject of the fixed token or the one recorded at the
// last login.
func (c *client) user() string {
	if c.loader == nil {
		tok, err := c.token(context.Background())
		if err != nil {
			return ""
		}
		return auth.Subject(tok)
	}
	sub, _, err := c.local.Get(storage.KeySubject)
	if err != nil {
		return ""
	}
	return sub
}

func (c *client) Close() error {
	return c.local.Close()
}

func reconnectPolicy(cfg config.GatewayConfig) backoff.BackOff {
	switch {
	case cfg.ReconnectPolicy == "exponential":
		return gateway.ExponentialBackoff(cfg.ReconnectDelay, cfg.ReconnectMaxDelay, cfg.MaxElapsed)
	case cfg.MaxElapsed > 0:
		// Multiplier 1 keeps the delay fixed while honouring the budget.
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = cfg.ReconnectDelay
		eb.MaxInterval = cfg.ReconnectDelay
		eb.Multiplier = 1
		eb.RandomizationFactor = 0
		eb.MaxElapsedTime = cfg.MaxElapsed
		return eb
	default:
		return gateway.FixedBackoff(cfg.ReconnectDelay)
	}
}

// serveMetrics exposes reg on addr until ctx is done.
func serveMetrics(ctx context.Context, addr string, reg prometheus.Gatherer) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           metrics.Handler(reg),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("metrics listening")
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
