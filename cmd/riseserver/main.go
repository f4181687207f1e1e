// Command riseserver runs the Rise control plane: the HTTP API, the
// six reconciliation loops, and the Prometheus metrics endpoint, all in
// one process, sharing one store and one backend.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/docker/docker/client"
	"github.com/go-logr/zapr"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/kubernetes/scheme"
	ctrlclient "sigs.k8s.io/controller-runtime/pkg/client"
	ctrlconfig "sigs.k8s.io/controller-runtime/pkg/client/config"

	"github.com/rise-sh/rise/internal/authz"
	"github.com/rise-sh/rise/internal/backend"
	dockerbackend "github.com/rise-sh/rise/internal/backend/docker"
	k8sbackend "github.com/rise-sh/rise/internal/backend/kubernetes"
	"github.com/rise-sh/rise/internal/config"
	"github.com/rise-sh/rise/internal/controller"
	"github.com/rise-sh/rise/internal/database"
	"github.com/rise-sh/rise/internal/httpapi"
	"github.com/rise-sh/rise/internal/jwtauth"
	"github.com/rise-sh/rise/internal/logging"
	"github.com/rise-sh/rise/internal/metrics"
	"github.com/rise-sh/rise/internal/store"
	"github.com/rise-sh/rise/internal/urlcalc"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Default()
	cfg.LoadFromEnv()

	logger, err := logging.New(os.Getenv("RISE_ENV") != "production")
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	registry := metrics.NewRegistry()

	httpPool := database.DefaultHTTPPoolConfig()
	controllerPool := database.DefaultControllerPoolConfig()
	httpDB, err := database.Connect(cfg.Database.DSN(), httpPool, logger)
	if err != nil {
		return fmt.Errorf("connecting http pool: %w", err)
	}
	defer httpDB.Close()
	controllerDB, err := database.Connect(cfg.Database.DSN(), controllerPool, logger)
	if err != nil {
		return fmt.Errorf("connecting controller pool: %w", err)
	}
	defer controllerDB.Close()

	storeMetrics := store.NewMetrics(registry)
	httpStore := store.NewPostgresStore(httpDB, storeMetrics)
	controllerStore := store.NewPostgresStore(controllerDB, storeMetrics)

	be, closeBackend, err := buildBackend(controllerStore, cfg, logger)
	if err != nil {
		return fmt.Errorf("building backend: %w", err)
	}
	defer closeBackend()

	signer, err := jwtauth.New(cfg.JWT.HS256Secret, cfg.JWT.Issuer, cfg.JWT.AccessExpiry, cfg.JWT.RS256PEMKey, cfg.JWT.RS256PEMCert)
	if err != nil {
		return fmt.Errorf("building jwt signer: %w", err)
	}
	az := authz.NewEvaluator(zapr.NewLogger(logger))

	lease, closeLease := buildLease(cfg, logger)
	defer closeLease()

	ctrlMetrics := controller.NewMetrics(registry)
	notifier := controller.NewSlackNotifier(cfg.Slack)
	ctl := controller.New(controllerStore, backend.WithBreaker(be, backend.DefaultBreakerConfig("backend")), cfg.Controller, lease, ctrlMetrics, notifier, logger)

	httpMetrics := httpapi.NewMetrics(registry)
	apiServer := httpapi.New(httpStore, be, signer, az, urlcalc.DefaultConfig(), cfg.Server, cfg.Registry, nil, logger, httpMetrics)

	metricsServer := metrics.NewServer("9090", registry, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctl.Start(ctx)
	metricsServer.StartAsync()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server", zap.String("addr", ":"+cfg.Server.HTTPPort))
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		logger.Error("http server failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
	defer cancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
	}
	if err := metricsServer.Stop(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown error", zap.Error(err))
	}

	return nil
}

// buildBackend picks the deployment backend from RISE_BACKEND ("docker"
// by default, for local single-node development; "kubernetes" for a
// production control plane). This is a deploy-time wiring choice rather
// than an operator-tunable knob, so it lives outside config.Config.
func buildBackend(st store.Store, cfg *config.Config, logger *zap.Logger) (backend.Backend, func(), error) {
	switch os.Getenv("RISE_BACKEND") {
	case "kubernetes":
		restCfg, err := ctrlconfig.GetConfig()
		if err != nil {
			return nil, nil, fmt.Errorf("loading kubernetes config: %w", err)
		}
		c, err := ctrlclient.New(restCfg, ctrlclient.Options{Scheme: scheme.Scheme})
		if err != nil {
			return nil, nil, fmt.Errorf("building controller-runtime client: %w", err)
		}
		clientset, err := kubernetes.NewForConfig(restCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("building kubernetes clientset: %w", err)
		}
		k8sCfg := k8sbackend.DefaultConfig()
		k8sCfg.RegistryBase = cfg.Registry.BaseURL
		be := k8sbackend.New(c, clientset, st, k8sCfg, urlcalc.DefaultConfig())
		be.Start(context.Background())
		return be, func() {}, nil
	default:
		docker, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
		if err != nil {
			return nil, nil, fmt.Errorf("building docker client: %w", err)
		}
		be := dockerbackend.New(dockerbackend.NewEngineClient(docker), st, dockerbackend.DefaultConfig())
		return be, func() { _ = docker.Close() }, nil
	}
}

// buildLease returns a Redis-backed controller.Lease when cfg.Redis is
// enabled (REDIS_ADDR or REDIS_ENABLED), for running more than one control-plane replica safely, and
// controller.NoopLease otherwise (the common single-replica case).
func buildLease(cfg *config.Config, logger *zap.Logger) (controller.Lease, func()) {
	if !cfg.Redis.Enabled {
		return controller.NoopLease, func() {}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		logger.Warn("redis lease disabled: ping failed", zap.Error(err))
		return controller.NoopLease, func() {}
	}
	return controller.NewRedisLease(client), func() { _ = client.Close() }
}
