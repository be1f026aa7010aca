package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"echogate/internal/api"
	"echogate/internal/auth"
	"echogate/internal/config"
	"echogate/internal/logger"
	"echogate/internal/metrics"
	"echogate/internal/redis"
	"echogate/internal/service/assistant"
	"echogate/internal/service/graph"
	"echogate/internal/storage"
	"echogate/internal/worker"
)

const shutdownTimeout = 10 * time.Second

func serveCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts.cfg)
		},
	}
}

func runServe(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbType := cfg.BasicConfig.DatabaseType
	logrus.WithField("db", dbType).Info("opening log store")
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := storage.Migrate(db, dbType); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	store, err := storage.NewChatLogStore(db, dbType)
	if err != nil {
		return err
	}
	var sink storage.Sink = store
	rdb, err := redis.NewRedisClient(cfg)
	if err != nil {
		return fmt.Errorf("create redis client: %w", err)
	}
	if rdb != nil {
		defer rdb.Close()
		sink = storage.NewCachedSink(store, rdb, time.Duration(cfg.Redis.CacheTTL)*time.Second)
		logrus.Info("chat log listings cached in redis")
	}

	recorder, err := metrics.Setup(cfg.Metrics)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := recorder.Shutdown(sctx); err != nil {
			logrus.WithError(err).Warn("metrics shutdown")
		}
	}()

	processor, err := graph.Build(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build conversation processor: %w", err)
	}

	b := cfg.BasicConfig
	dispatcher := worker.NewDispatcher(b.MinWorkers, b.MaxWorkers, b.QueueSize, b.WorkerIdle())
	defer dispatcher.Close()

	svc, err := assistant.NewService(processor, sink,
		assistant.WithPool(dispatcher),
		assistant.WithRecorder(recorder),
	)
	if err != nil {
		return fmt.Errorf("init assistant service: %w", err)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), logger.Middleware())
	api.NewHandler(cfg, svc, auth.NewGate(cfg, recorder), recorder).RegisterRoutes(router)

	server := &http.Server{
		Addr:              b.ServerAddress,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logrus.WithFields(logrus.Fields{
			"addr":    b.ServerAddress,
			"engine":  cfg.Processor.Engine,
			"stages":  cfg.Processor.Stages,
			"model":   b.ModelID,
			"workers": b.MaxWorkers,
		}).Info("echogate listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server stopped: %w", err)
	case <-ctx.Done():
	}

	logrus.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(sctx)
}
