package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Varshaa-Selva/Languard-ai/pkg/api"
	"github.com/Varshaa-Selva/Languard-ai/pkg/artifacts"
	"github.com/Varshaa-Selva/Languard-ai/pkg/audit"
	"github.com/Varshaa-Selva/Languard-ai/pkg/auth"
	"github.com/Varshaa-Selva/Languard-ai/pkg/config"
	"github.com/Varshaa-Selva/Languard-ai/pkg/engine"
	"github.com/Varshaa-Selva/Languard-ai/pkg/events"
	"github.com/Varshaa-Selva/Languard-ai/pkg/intake"
	"github.com/Varshaa-Selva/Languard-ai/pkg/integrity"
	"github.com/Varshaa-Selva/Languard-ai/pkg/ledger"
	"github.com/Varshaa-Selva/Languard-ai/pkg/observability"
	"github.com/Varshaa-Selva/Languard-ai/pkg/regulation"
	"github.com/Varshaa-Selva/Languard-ai/pkg/sensing"
)

const shutdownTimeout = 15 * time.Second

func runServe(args []string, _ io.Writer, stderr io.Writer) int {
	cmd := flag.NewFlagSet("serve", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	port := cmd.String("port", "", "Listen port (overrides PORT)")
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	if *port != "" {
		cfg.Port = *port
	}
	logger := slog.New(slog.NewJSONHandler(stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, cfg)
	if err != nil {
		logger.Error("startup failed", "error", err)
		return 1
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := app.Close(closeCtx); err != nil {
			logger.Warn("shutdown", "error", err)
		}
	}()

	if err := app.monitor.Start(); err != nil {
		logger.Error("integrity monitor", "error", err)
		return 1
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           app.server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("landguard listening", "addr", srv.Addr, "auth", cfg.AuthEnabled(), "ledger", cfg.LedgerDriver)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			return 1
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", "error", err)
			return 1
		}
	}
	return 0
}

// app holds the wired server and everything that must be released on exit.
type app struct {
	engine  *engine.Engine
	server  *api.Server
	monitor *integrity.Monitor
	closers []func(context.Context) error
}

// newApp wires every component from cfg. The caller owns Close.
func newApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()

	catalog, err := loadCatalog(cfg.CatalogPath)
	if err != nil {
		return nil, err
	}

	rec, closeLedger, err := openLedger(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) error { return closeLedger() })

	validator, err := intake.NewValidator()
	if err != nil {
		return nil, fmt.Errorf("intake validator: %w", err)
	}
	auditLog := audit.NewLogger()

	store, err := artifacts.NewStore(ctx, artifactConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("artifact store: %w", err)
	}
	exporter := audit.NewExporter(rec, store, auditLog)

	telemetry, err := observability.New(ctx, observability.Config{
		ServiceName:    "landguard",
		ServiceVersion: version,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Insecure:       true,
		SampleRate:     1.0,
		Enabled:        cfg.OTelEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("observability: %w", err)
	}
	a.closers = append(a.closers, telemetry.Shutdown)

	opts := []engine.Option{
		engine.WithAudit(auditLog),
		engine.WithTelemetry(telemetry),
		engine.WithChecker(validator),
	}
	if cfg.NATSURL != "" {
		pub, err := events.DialNATS(cfg.NATSURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { pub.Close(); return nil })
		opts = append(opts, engine.WithPublisher(pub))
	}
	if cfg.SensingURL != "" {
		opts = append(opts, engine.WithScanSource(sensing.NewClient(cfg.SensingURL)))
	}

	a.engine, err = engine.New(catalog, rec, opts...)
	if err != nil {
		return nil, err
	}

	a.monitor, err = integrity.NewMonitor(rec, cfg.VerifySchedule, integrity.WithAudit(auditLog))
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) error { a.monitor.Stop(); return nil })

	serverCfg := api.Config{
		Engine:    a.engine,
		Catalog:   catalog,
		Validator: validator,
		Exporter:  exporter,
		Limit:     api.LimitPolicy{RPS: cfg.RateLimitRPS, Burst: cfg.RateLimitBurst},
	}
	if cfg.RateLimitRPS > 0 {
		if cfg.RedisAddr != "" {
			serverCfg.Limiter = api.NewRedisLimiterStore(cfg.RedisAddr)
		} else {
			serverCfg.Limiter = api.NewMemoryLimiterStore()
		}
	}
	if cfg.AuthEnabled() {
		serverCfg.JWT, err = auth.NewJWTValidator([]byte(cfg.JWTSecret), cfg.JWTIssuer)
		if err != nil {
			return nil, err
		}
	}
	a.server, err = api.NewServer(serverCfg)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Close releases resources in reverse acquisition order.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func loadCatalog(path string) (*regulation.Catalog, error) {
	if path == "" {
		return regulation.Default(), nil
	}
	c, err := regulation.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return c, nil
}

// openLedger opens the configured ledger store and replays it.
func openLedger(ctx context.Context, cfg *config.Config) (*ledger.Recorder, func() error, error) {
	var store ledger.Store
	closeFn := func() error { return nil }
	switch cfg.LedgerDriver {
	case config.DriverSQLite, config.DriverPostgres:
		dialect, dsn := ledger.DialectSQLite, cfg.SQLitePath
		if cfg.LedgerDriver == config.DriverPostgres {
			dialect, dsn = ledger.DialectPostgres, cfg.DatabaseURL
		} else if err := os.MkdirAll(filepath.Dir(dsn), 0o750); err != nil {
			return nil, nil, fmt.Errorf("sqlite ledger dir: %w", err)
		}
		s, err := ledger.OpenSQLStore(ctx, dialect, dsn)
		if err != nil {
			return nil, nil, err
		}
		store, closeFn = s, s.Close
	default:
		store = ledger.NewMemoryStore()
	}

	rec, err := ledger.Open(ctx, store)
	if err != nil {
		_ = closeFn()
		return nil, nil, err
	}
	return rec, closeFn, nil
}

func artifactConfig(cfg *config.Config) artifacts.Config {
	return artifacts.Config{
		Backend: cfg.ArtifactStorage,
		DataDir: cfg.DataDir,
		S3: artifacts.S3Config{
			Bucket:   cfg.S3Bucket,
			Region:   cfg.S3Region,
			Endpoint: cfg.S3Endpoint,
			Prefix:   cfg.S3Prefix,
		},
		GCSBucket: cfg.GCSBucket,
		GCSPrefix: cfg.GCSPrefix,
	}
}
