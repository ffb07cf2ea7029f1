package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/vango-dev/vango-live/internal/config"
	"github.com/vango-dev/vango-live/internal/errors"
	"github.com/vango-dev/vango-live/pkg/component"
	"github.com/vango-dev/vango-live/pkg/middleware"
	"github.com/vango-dev/vango-live/pkg/server"
)

type serveOptions struct {
	addr      string
	backend   string
	storePath string
	bucket    string
	mounts    []string
	tick      time.Duration
	accessLog bool
	tracing   bool
}

func serveCmd(g *globals) *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the demo components",
		Long: `Serve mounts components of the built-in kinds (counter, clock, greeter)
and serves them on the WebSocket channel and the HTTP fallback.

A GET on / renders every mounted component into one page; "vango-live
connect" binds to that page.`,
		Example: `  vango-live serve --mount counter:counter-1 --mount greeter:hello
  vango-live serve --store sqlite --store-path live.sqlite3`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := g.load()
			if err != nil {
				return err
			}
			applyServeFlags(cmd, cfg, opts)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, opts, logger)
		},
	}

	cmd.Flags().StringVarP(&opts.addr, "addr", "a", "", "Listen address (overrides server.address)")
	cmd.Flags().StringVar(&opts.backend, "store", "", "Snapshot store: memory, sqlite or s3")
	cmd.Flags().StringVar(&opts.storePath, "store-path", "", "SQLite database file")
	cmd.Flags().StringVar(&opts.bucket, "bucket", "", "S3 bucket for snapshots")
	cmd.Flags().StringArrayVarP(&opts.mounts, "mount", "m", []string{"counter:counter-1", "clock:clock", "greeter:greeter-1"}, "Mount a component as kind:id")
	cmd.Flags().DurationVar(&opts.tick, "tick", time.Second, "Clock update interval, 0 to disable")
	cmd.Flags().BoolVar(&opts.accessLog, "access-log", false, "Log every HTTP request")
	cmd.Flags().BoolVar(&opts.tracing, "tracing", false, "Open a span per action on the global tracer provider")

	return cmd
}

func applyServeFlags(cmd *cobra.Command, cfg *config.Config, opts *serveOptions) {
	flags := cmd.Flags()
	if flags.Changed("addr") {
		cfg.Server.Address = opts.addr
	}
	if flags.Changed("store") {
		cfg.Store.Backend = opts.backend
	}
	if flags.Changed("store-path") {
		cfg.Store.Path = opts.storePath
	}
	if flags.Changed("bucket") {
		cfg.Store.Bucket = opts.bucket
	}
	if flags.Changed("access-log") {
		cfg.Server.AccessLog = opts.accessLog
	}
	if flags.Changed("tracing") {
		cfg.Server.Tracing = opts.tracing
	}
}

func runServe(ctx context.Context, cfg *config.Config, opts *serveOptions, logger *slog.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	if st != nil {
		defer st.Close()
	}

	registry := prometheus.NewRegistry()
	bc := cfg.BrokerConfig(logger)
	bc.Store = st
	if !cfg.Server.DisableMetrics {
		metrics := middleware.Prometheus(middleware.WithRegistry(registry))
		bc.Observer = metrics
		bc.Middleware = append(bc.Middleware, metrics.Middleware())
	}
	if cfg.Server.Tracing {
		bc.Middleware = append(bc.Middleware, middleware.OpenTelemetry(
			middleware.WithTracerProvider(otel.GetTracerProvider()),
		))
	}

	broker, err := newDemoBroker(bc, opts.mounts)
	if err != nil {
		return err
	}
	if n, err := broker.Restore(ctx); err != nil {
		logger.Warn("snapshot restore failed", "error", err, "restored", n)
	} else if n > 0 {
		logger.Info("restored snapshots", "components", n)
	}

	sc := cfg.ServerConfig(logger)
	sc.MetricsGatherer = registry
	srv, err := server.New(broker, sc)
	if err != nil {
		return errors.New(errors.CodeConfigInvalid).Wrap(err)
	}
	srv.Router().Get("/", pageHandler(broker, sc.WebSocketPath))

	tickCtx, stopTick := context.WithCancel(ctx)
	defer stopTick()
	if opts.tick > 0 {
		go runClock(tickCtx, broker, opts.tick)
	}

	info("Components: %s", strings.Join(broker.Components().IDs(), ", "))
	info("Listening on %s", sc.Address)
	if err := srv.Run(); err != nil {
		return errors.New(errors.CodeListen).Wrap(err)
	}
	return nil
}

// newDemoBroker registers the demo kinds and mounts each kind:id pair.
func newDemoBroker(bc *server.BrokerConfig, mounts []string) (*server.Broker, error) {
	broker := server.NewBroker(bc)
	for _, k := range demoKinds() {
		broker.RegisterKind(k)
	}
	for _, m := range mounts {
		kind, id, ok := strings.Cut(m, ":")
		if !ok || kind == "" || id == "" {
			return nil, errors.New(errors.CodeMissingArgument).
				WithField("--mount").
				Wrap(fmt.Errorf("%q is not kind:id", m))
		}
		if _, err := broker.Mount(kind, id); err != nil {
			if stderrors.Is(err, server.ErrUnknownKind) {
				return nil, errors.New(errors.CodeUnknownKind).
					WithField(kind).
					WithSuggestion("registered kinds: " + strings.Join(broker.Kinds(), ", "))
			}
			return nil, err
		}
	}
	return broker, nil
}

// runClock pushes the current time into every clock component.
func runClock(ctx context.Context, b *server.Broker, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			stamp := now.Format(time.TimeOnly)
			for _, c := range b.Components().All() {
				if c.Kind() != "clock" {
					continue
				}
				err := b.Mutate(ctx, c.ID(), func(c *component.Component) error {
					return c.Set("now", stamp)
				})
				if err != nil {
					b.Logger().Warn("clock update failed", "component_id", c.ID(), "error", err)
				}
			}
		}
	}
}
