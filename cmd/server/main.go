// Command collabvault-server starts the sync gRPC server and the billing HTTP portal.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/and161185/collabvault/internal/auth"
	"github.com/and161185/collabvault/internal/config"
	"github.com/and161185/collabvault/internal/limiter"
	"github.com/and161185/collabvault/internal/mailer"
	"github.com/and161185/collabvault/internal/migrate"
	"github.com/and161185/collabvault/internal/notify"
	"github.com/and161185/collabvault/internal/repository"
	"github.com/and161185/collabvault/internal/repository/memory"
	"github.com/and161185/collabvault/internal/repository/postgres"
	grpcserver "github.com/and161185/collabvault/internal/server/grpc"
	"github.com/and161185/collabvault/internal/server/httpapi"
	"github.com/and161185/collabvault/internal/service"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:           "collabvault-server",
		Short:         "End-to-end encrypted document sync server",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "TOML configuration file")
	overrides := config.RegisterFlags(cmd.Flags())

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return err
		}
		overrides.Apply(&cfg)
		if err := cfg.Validate(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return err
		}

		logger, err := newLogger(cfg.Dev)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		// Context with OS signals
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := run(ctx, cfg, logger); err != nil {
			logger.Error("server stopped", zap.Error(err))
			return err
		}
		return nil
	}
	return cmd
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// stores is one storage backend with everything built on it.
type stores struct {
	users    repository.UserRepository
	devices  repository.DeviceRepository
	keys     repository.OneTimeKeyRepository
	repos    repository.CollabRepository
	contacts repository.ContactRepository
	info     repository.PrivateInfoRepository
	licenses repository.LicenseRepository
	lim      limiter.Limiter
	purge    limiter.Purger
	close    func()
}

func openStores(ctx context.Context, cfg config.Config, logger *zap.Logger) (*stores, error) {
	l := cfg.Limiter
	if cfg.Storage == config.StorageMemory {
		logger.Warn("memory storage: state is lost on restart")
		st := memory.New()
		lim := limiter.NewMemory(l.Window, l.MaxFails, l.BlockFor)
		return &stores{
			users:    st.Users(),
			devices:  st.Devices(),
			keys:     st.Keys(),
			repos:    st.Repositories(),
			contacts: st.Contacts(),
			info:     st.PrivateInfo(),
			licenses: st.Licenses(),
			lim:      lim,
			purge:    lim,
			close:    func() {},
		}, nil
	}

	if err := migrate.Up(ctx, cfg.DSN, logger); err != nil {
		return nil, fmt.Errorf("migrate up: %w", err)
	}
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	db := &postgres.DB{Pool: pool}
	lim := limiter.NewPG(pool, l.Window, l.MaxFails, l.BlockFor)
	return &stores{
		users:    postgres.NewUserRepo(db),
		devices:  postgres.NewDeviceRepo(db),
		keys:     postgres.NewKeyRepo(db),
		repos:    postgres.NewCollabRepo(db),
		contacts: postgres.NewContactRepo(db),
		info:     postgres.NewPrivateInfoRepo(db),
		licenses: postgres.NewLicenseRepo(db),
		lim:      lim,
		purge:    lim,
		close:    pool.Close,
	}, nil
}

func newNotifier(ctx context.Context, addr string, logger *zap.Logger) (notify.Notifier, func()) {
	if addr == "" {
		return notify.Nop{}, func() {}
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		// delivery is best effort; clients still poll
		logger.Warn("redis unreachable, notifications may be lost", zap.String("addr", addr), zap.Error(err))
	}
	return notify.NewRedis(rdb, logger), func() { _ = rdb.Close() }
}

func newMailer(cfg config.SMTP, logger *zap.Logger) mailer.Mailer {
	if cfg.Addr == "" {
		logger.Warn("no smtp relay configured: billing login tokens are logged")
		return mailer.NewLog(logger)
	}
	return mailer.NewSMTP(cfg.Addr, cfg.From, cfg.Username, cfg.Password)
}

// run serves gRPC and HTTP until ctx is cancelled or either listener fails.
func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("grpc", cfg.GRPCAddr),
		zap.String("http", cfg.HTTPAddr),
		zap.String("storage", cfg.Storage),
	)

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()

	notifier, closeNotifier := newNotifier(ctx, cfg.RedisAddr, logger)
	defer closeNotifier()

	// Services
	licenses := service.NewLicenseService(st.licenses, st.users, newMailer(cfg.SMTP, logger), []byte(cfg.BillingKey), st.lim)
	svc := grpcserver.Services{
		Devices:     service.NewDeviceService(st.users, st.devices, st.lim, logger),
		Keys:        service.NewKeyService(st.keys, st.devices, cfg.ClaimParallelism, logger),
		Repos:       service.NewRepositoryService(st.repos, st.devices, st.contacts, notifier, logger),
		Contacts:    service.NewContactService(st.contacts, st.devices, st.lim),
		PrivateInfo: service.NewPrivateInfoService(st.info, st.devices, logger),
		Licenses:    licenses,
	}
	verifier := auth.NewVerifier(st.devices, st.users, auth.WithWindow(cfg.AuthWindow))

	opts := []grpc.ServerOption{grpcserver.Chain(logger)}
	if cfg.TLS.Cert != "" {
		creds, err := credentials.NewServerTLSFromFile(cfg.TLS.Cert, cfg.TLS.Key)
		if err != nil {
			return fmt.Errorf("load TLS cert/key: %w", err)
		}
		opts = append(opts, grpc.Creds(creds))
	} else {
		logger.Warn("TLS disabled")
	}
	gs := grpc.NewServer(opts...)
	grpcserver.Register(gs, grpcserver.New(svc, verifier))

	// Health & reflection (dev)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	if cfg.Dev {
		reflection.Register(gs)
	}

	hsrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.New(licenses, logger, cfg.TLS.Cert != "").Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("grpc listening", zap.String("addr", cfg.GRPCAddr))
		return gs.Serve(lis)
	})
	g.Go(func() error {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		var err error
		if cfg.TLS.Cert != "" {
			err = hsrv.ListenAndServeTLS(cfg.TLS.Cert, cfg.TLS.Key)
		} else {
			err = hsrv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		limiter.RunPurge(gctx, st.purge, time.Hour, logger)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		hs.Shutdown()
		shutdown(gs, hsrv, logger)
		return nil
	})

	err = g.Wait()
	logger.Info("shutdown complete")
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// shutdown stops both servers, forcing them after 5 seconds.
func shutdown(gs *grpc.Server, hsrv *http.Server, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := hsrv.Shutdown(ctx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}

	done := make(chan struct{})
	go func() {
		gs.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		gs.Stop()
	}
}
