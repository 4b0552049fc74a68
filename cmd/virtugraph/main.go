package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/hanpama/virtugraph/internal/config"
	"github.com/hanpama/virtugraph/internal/dispatch"
	"github.com/hanpama/virtugraph/internal/eventbus"
	"github.com/hanpama/virtugraph/internal/language"
	"github.com/hanpama/virtugraph/internal/materialize"
	"github.com/hanpama/virtugraph/internal/metamodel"
	"github.com/hanpama/virtugraph/internal/otel"
	"github.com/hanpama/virtugraph/internal/preparse"
	"github.com/hanpama/virtugraph/internal/server"
)

var (
	// Build information. Populated at build-time via -ldflags flag.
	version = "dev"
	commit  = "HEAD"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := newApp(os.Stdout).Run(context.Background(), os.Args); err != nil {
		log.Fatal().Err(err).Msg("failed to run virtugraph")
	}
}

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "gateway configuration file",
		Sources: cli.EnvVars("VIRTUGRAPH_CONFIG"),
		Value:   "virtugraph.yaml",
	}
}

func newApp(stdout io.Writer) *cli.Command {
	return &cli.Command{
		Name:    "virtugraph",
		Usage:   "GraphQL gateway composing remote and in-process sources",
		Version: version + " (" + commit + ")",
		Writer:  stdout,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "log level (debug, info, warn, error, fatal, panic)",
				Sources: cli.EnvVars("VIRTUGRAPH_LOG_LEVEL"),
				Value:   "info",
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			level, err := zerolog.ParseLevel(c.String("log-level"))
			if err != nil {
				return ctx, fmt.Errorf("failed to parse log level: %w", err)
			}
			log.Logger = log.Level(level)
			return ctx, nil
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Run the HTTP GraphQL gateway",
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{Name: "addr", Usage: "HTTP listen address (overrides server.addr)"},
					&cli.StringFlag{Name: "otel.endpoint", Usage: "OTLP collector endpoint (overrides telemetry.otlp_endpoint)"},
					&cli.BoolFlag{Name: "pretty", Usage: "pretty-print JSON responses"},
					&cli.BoolFlag{Name: "graphql.introspection", Usage: "enable GraphQL introspection", Value: true},
					&cli.BoolFlag{Name: "graphql.graphiql", Usage: "serve GraphiQL to browsers", Value: true},
					&cli.StringSliceFlag{Name: "forward-header", Usage: "forward an HTTP header to remote sources; repeatable"},
					&cli.StringSliceFlag{Name: "cors-origin", Usage: "allowed CORS origin; repeatable"},
				},
				Action: serve,
			},
			{
				Name:  "compile-sdl",
				Usage: "Merge and validate the configured sources into one schema",
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{Name: "out", Usage: "write the schema to a file instead of stdout"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return compileSDL(c.String("config"), c.String("out"), stdout)
				},
			},
		},
	}
}

func loadMetamodel(path string) (*config.Config, *metamodel.Metamodel, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	sources, err := cfg.RemoteSources()
	if err != nil {
		return nil, nil, err
	}
	m, err := metamodel.Compose(sources)
	if err != nil {
		return nil, nil, err
	}
	return cfg, m, nil
}

func compileSDL(configPath, out string, stdout io.Writer) error {
	_, m, err := loadMetamodel(configPath)
	if err != nil {
		return err
	}
	sdl := language.FormatSchema(m.Schema())
	if out == "" {
		_, err := io.WriteString(stdout, sdl)
		return err
	}
	return os.WriteFile(out, []byte(sdl), 0o644)
}

func serve(ctx context.Context, c *cli.Command) error {
	cfg, m, err := loadMetamodel(c.String("config"))
	if err != nil {
		return err
	}
	if addr := c.String("addr"); addr != "" {
		cfg.Server.Addr = addr
	}
	if ep := c.String("otel.endpoint"); ep != "" {
		cfg.Telemetry.OTLPEndpoint = ep
	}

	eventbus.Use(eventbus.New())
	shutdownTracing, err := otel.Setup(cfg.Telemetry.OTLPEndpoint, cfg.Telemetry.ServiceName)
	if err != nil {
		return fmt.Errorf("otel setup: %w", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	dopts := []dispatch.Option{
		dispatch.WithMemo(dispatch.NewMemo(cfg.Cache.MemoSize, cfg.Cache.MemoTTL)),
		dispatch.WithLogger(log.Logger.With().Str("component", "dispatch").Logger()),
	}
	if cfg.Server.Concurrency > 0 {
		dopts = append(dopts, dispatch.WithConcurrency(cfg.Server.Concurrency))
	}
	cache := preparse.New(
		preparse.WithTTL(cfg.Cache.TTL),
		preparse.WithLogger(log.Logger.With().Str("component", "preparse").Logger()),
		preparse.WithDispatcher(dispatch.New(dopts...)),
		preparse.WithCallableContextFactory(materialize.TimeoutContextFactory(cfg.Server.CallableTimeout)),
	)

	sopts := []server.Option{
		server.WithLogger(log.Logger.With().Str("component", "server").Logger()),
		server.WithIntrospection(c.Bool("graphql.introspection")),
		server.WithGraphiQL(c.Bool("graphql.graphiql")),
	}
	if c.Bool("pretty") {
		sopts = append(sopts, server.WithPretty())
	}
	if hs := c.StringSlice("forward-header"); len(hs) > 0 {
		sopts = append(sopts, server.WithForwardHeaders(hs...))
	}
	if origins := c.StringSlice("cors-origin"); len(origins) > 0 {
		sopts = append(sopts, server.WithCORS(origins...))
	}
	h, err := server.New(m, cache, sopts...)
	if err != nil {
		return fmt.Errorf("server init: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/graphql", h)
	mux.Handle("/graphql/tabular", h)
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: cfg.Server.Addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().
		Str("addr", cfg.Server.Addr).
		Int("sources", len(cfg.Sources)).
		Str("version", version).
		Msg("GraphQL server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
