package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	cachecoordinator "github.com/huykn/cache-coordinator"
	"github.com/huykn/cache-coordinator/internal/api"
	"github.com/huykn/cache-coordinator/store"
	cachesync "github.com/huykn/cache-coordinator/sync"
	"github.com/huykn/cache-coordinator/types"
)

const (
	defaultGracefulTimeout = 30 * time.Second
	serverRequestTimeout   = 10 * time.Second
	serverReadTimeout      = 10 * time.Second
	serverWriteTimeout     = 15 * time.Second
	serverIdleTimeout      = 60 * time.Second
)

var serveFlags = []string{
	"address", "redis-addr", "redis-password", "redis-db", "namespace", "channel", "pod-id",
}

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the coordinator behind an HTTP API",
		Long: `Run a cache update coordinator behind an HTTP API.

With --redis-addr the coordinator invalidates a shared Redis cache and
announces every change on a pub/sub channel. Without it the coordinator
drives an in-memory query store, which is useful for trying the API out.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := bindFlags(v, cmd.Flags(), append(serveFlags, coordinatorFlags...)...); err != nil {
				return err
			}
			return runServe(cmd.Context(), v)
		},
	}

	fs := cmd.Flags()
	fs.String("address", ":8080", "Address to listen on")
	fs.String("redis-addr", "", "Redis address; empty runs with an in-memory store")
	fs.String("redis-password", "", "Redis password")
	fs.Int("redis-db", 0, "Redis database number")
	fs.String("namespace", store.DefaultRedisStoreOptions().Namespace, "Prefix of every Redis key")
	fs.String("channel", "cachecoord:events", "Redis pub/sub channel for cache events")
	fs.String("pod-id", "", "Identifier of this process in published events (default: random)")
	addCoordinatorFlags(fs)

	return cmd
}

func runServe(ctx context.Context, v *viper.Viper) error {
	if ctx == nil {
		ctx = context.Background()
	}

	logger, err := newLogger(v)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	podID := v.GetString("pod-id")
	if podID == "" {
		podID = uuid.NewString()
	}

	cacheStore, cleanup, err := buildStore(ctx, v, podID, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	cfg := cachecoordinator.DefaultConfig()
	readCoordinatorSettings(v).apply(&cfg)
	cfg.Store = cacheStore
	cfg.Logger = cachecoordinator.NewZapLogger(logger.Named("coordinator"))
	cfg.DebugMode = v.GetBool("debug")
	cfg.MetricsRegisterer = reg

	coord, err := cachecoordinator.New(cfg)
	if err != nil {
		return fmt.Errorf("create coordinator: %w", err)
	}
	defer coord.Close()

	router := api.NewServer(coord,
		api.WithMetrics(reg),
		api.WithMiddlewares(
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			middleware.Timeout(serverRequestTimeout),
			api.LoggingMiddleware(logger.Named("http")),
		),
	)

	address := v.GetString("address")
	server := &http.Server{
		Addr:         address,
		Handler:      router,
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
		IdleTimeout:  serverIdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("address", address), zap.String("pod_id", podID))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("listen on %s: %w", address, err)
		}
	case <-quit:
	case <-ctx.Done():
	}
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultGracefulTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
		return err
	}

	logger.Info("server shutdown complete")
	return nil
}

// buildStore returns the store named by the configuration and a function
// releasing everything it opened.
func buildStore(ctx context.Context, v *viper.Viper, podID string, logger *zap.Logger) (cachecoordinator.Store, func(), error) {
	addr := v.GetString("redis-addr")
	if addr == "" {
		qsOpts := store.DefaultQueryStoreOptions()
		qsOpts.Logger = cachecoordinator.NewZapLogger(logger.Named("store"))
		qsOpts.DebugMode = v.GetBool("debug")
		qs, err := store.NewQueryStore(qsOpts)
		if err != nil {
			return nil, nil, fmt.Errorf("create query store: %w", err)
		}
		logger.Info("using in-memory query store")
		return qs, func() { _ = qs.Close() }, nil
	}

	opts := store.DefaultRedisStoreOptions()
	opts.Addr = addr
	opts.Password = v.GetString("redis-password")
	opts.DB = v.GetInt("redis-db")
	opts.Namespace = v.GetString("namespace")
	opts.PodID = podID
	if err := opts.Validate(); err != nil {
		return nil, nil, err
	}

	client := redis.NewClient(&redis.Options{Addr: opts.Addr, Password: opts.Password, DB: opts.DB})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}

	channel := v.GetString("channel")
	synchronizer := cachesync.NewPubSubSynchronizer(client, channel, podID)
	synchronizer.SetLogger(cachecoordinator.NewZapLogger(logger.Named("sync")))
	synchronizer.OnEvent(func(event types.Event) {
		logger.Debug("peer event", zap.String("key", event.Key), zap.String("action", string(event.Action)), zap.String("sender", event.Sender))
	})
	if err := synchronizer.Subscribe(ctx); err != nil {
		client.Close()
		return nil, nil, err
	}

	opts.Publisher = synchronizer
	rs := store.NewRedisStoreWithClient(client, opts)

	logger.Info("using redis store", zap.String("addr", addr), zap.String("namespace", opts.Namespace), zap.String("channel", channel))
	return rs, func() {
		_ = synchronizer.Close()
		_ = rs.Close()
	}, nil
}
