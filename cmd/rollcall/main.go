package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"rollcall.app/internal/audit"
	"rollcall.app/internal/auth"
	"rollcall.app/internal/config"
	"rollcall.app/internal/grpcapi"
	"rollcall.app/internal/httpapi"
	"rollcall.app/internal/members"
	"rollcall.app/internal/obs"
	"rollcall.app/internal/store/memory"
	"rollcall.app/internal/store/pg"
	"rollcall.app/internal/store/redisstore"
)

var (
	version = "dev"
	commit  = "none"
)

const purgeInterval = time.Hour

func main() {
	configPath := flag.String("config", os.Getenv("ROLLCALL_CONFIG"), "Path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := obs.NewLogger(cfg.Log.Level, os.Stdout)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("rollcall stopped with error", "error", err)
		os.Exit(1)
	}
}

type credentialSource interface {
	auth.CredentialRepository
	auth.IdentitySource
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := obs.NewMetrics(reg)
	metrics.SetBuildInfo(version, commit)

	ready := httpapi.ReadyProbe{}
	var (
		creds       credentialSource
		repo        members.Repository
		revocations auth.RevocationStore
		purge       func(context.Context) (int64, error)
	)
	if cfg.Database.DSN != "" {
		st, err := pg.Open(cfg.Database.DSN, pg.PoolConfig{
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		})
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer st.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = st.Ping(pingCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("ping database: %w", err)
		}
		creds, repo, revocations = st, st.Members(), st
		purge = func(ctx context.Context) (int64, error) { return st.PurgeExpired(ctx, time.Now()) }
		ready["postgres"] = st
	} else {
		if cfg.Production() {
			return errors.New("database.dsn is required in production")
		}
		logger.Warn("no database configured, using in-memory stores")
		mem := memory.NewCredentials()
		creds, repo, revocations = mem, memory.NewMembers(), memory.NewRevocations(nil)
	}

	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		rs := redisstore.New(client)
		revocations = rs
		purge = nil
		ready["redis"] = rs
	}

	svc, err := auth.NewService(cfg.AuthCore(), auth.Dependencies{
		Credentials:        creds,
		Identities:         creds,
		Revocations:        revocations,
		NamespaceCacheSize: cfg.Auth.NamespaceCacheSize,
	}, auth.WithLogger(logger), auth.WithMetrics(metrics), auth.WithAudit(audit.New(logger)))
	if err != nil {
		return fmt.Errorf("auth service: %w", err)
	}
	defer svc.Close()

	proxies, err := cfg.HTTP.Proxies()
	if err != nil {
		return err
	}
	api := httpapi.New(svc, repo, metrics, logger, ready, httpapi.Config{
		Version:        version,
		SecureCookies:  cfg.Production(),
		RefreshInBody:  cfg.Auth.RefreshInBody,
		RateLimitRPS:   cfg.HTTP.RateLimitRPS,
		RateLimitBurst: cfg.HTTP.RateLimitBurst,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		TrustedProxies: proxies,
	})
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("http listening", "addr", srv.Addr, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()

	var grpcStop func()
	if cfg.GRPC.Addr != "" {
		lis, err := net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		gs, _ := grpcapi.NewServer(svc, logger,
			grpcapi.UnaryRequire(svc.Gate(), auth.OpOrganizationUpdate, grpcapi.ChannelzService))
		grpcapi.RegisterChannelz(gs)
		grpcStop = gs.GracefulStop
		go func() {
			logger.Info("grpc listening", "addr", cfg.GRPC.Addr)
			if err := gs.Serve(lis); err != nil {
				errCh <- fmt.Errorf("grpc: %w", err)
			}
		}()
	}

	if purge != nil {
		go purgeRevocations(ctx, purge, logger)
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if grpcStop != nil {
		grpcStop()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	logger.Info("stopped")
	return nil
}

// purgeRevocations drops revocation rows whose tokens have expired anyway.
func purgeRevocations(ctx context.Context, purge func(context.Context) (int64, error), logger *slog.Logger) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := purge(ctx)
			if err != nil {
				logger.Warn("purge revocations failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("purged expired revocations", "count", n)
			}
		}
	}
}
