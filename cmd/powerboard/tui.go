package main

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/powerboard/tui/internal/api"
	"github.com/powerboard/tui/internal/app"
	"github.com/powerboard/tui/internal/gateway"
	"github.com/powerboard/tui/internal/guard"
	"github.com/powerboard/tui/internal/logging"
	"github.com/powerboard/tui/internal/metrics"
	"github.com/powerboard/tui/internal/notify"
	"github.com/powerboard/tui/internal/toast"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newTUICmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Open the live notification dashboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd.Context(), opts)
		},
	}
}

func runTUI(ctx context.Context, opts *rootOptions) error {
	cfg := opts.cfg
	policy, err := notify.ParsePolicy(cfg.Notifications.OnFailure)
	if err != nil {
		return err
	}
	cl, err := openClient(cfg, opts.token)
	if err != nil {
		return err
	}
	defer cl.Close()

	// The guard's redirect is recorded and printed once the terminal is
	// released.
	var redirect string
	nav := guard.NavigatorFunc(func(target string) error {
		redirect = target
		return nil
	})
	g := guard.New(cl.token, cl.scopes.Purge, nav, cfg.LoginURL)

	reg := prometheus.NewRegistry()
	m := metrics.NewGateway(reg)

	store := notify.NewStore(
		api.New(cfg.NotificationAPI, cl.token),
		notify.WithPolicy(policy),
		notify.WithMetrics(m),
	)
	events := gateway.NewDispatcher()
	conn, err := gateway.New(gateway.Options{
		Origin:     cfg.Origin,
		Token:      cl.token,
		Dispatcher: events,
		Backoff:    reconnectPolicy(cfg.Gateway),
		Metrics:    m,
	})
	if err != nil {
		return err
	}
	toasts := toast.New(toast.Options{
		MaxVisible: cfg.Toasts.MaxVisible,
		Duration:   cfg.Toasts.Duration,
		Metrics:    m,
	})

	model := app.New(app.Deps{
		Guard:   g,
		Loader:  cl.loader,
		Gateway: conn,
		Events:  events,
		Store:   store,
		Toasts:  toasts,
		User:    cl.user(),
	})

	closeLog, err := opts.setupLogging(true, logging.NewSink(model.LogFunc()))
	if err != nil {
		return err
	}
	defer closeLog()

	go func() {
		if err := cl.load(ctx); err != nil {
			log.Error().Err(err).Msg("load credential")
		}
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	grp, gctx := errgroup.WithContext(runCtx)
	if cfg.Metrics.Addr != "" {
		grp.Go(func() error {
			return serveMetrics(gctx, cfg.Metrics.Addr, reg)
		})
	}
	grp.Go(func() error {
		defer cancel()
		defer model.Shutdown()
		_, err := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(gctx)).Run()
		return err
	})
	if err := grp.Wait(); err != nil {
		return err
	}

	if redirect != "" {
		fmt.Fprintf(os.Stderr, "Your session has ended. Sign in again at:\n  %s\nthen run `powerboard login`.\n", redirect)
	}
	return nil
}
