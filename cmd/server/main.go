package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"quizclash/internal/cache"
	"quizclash/internal/config"
	"quizclash/internal/repository"
	"quizclash/internal/service"
	"quizclash/internal/transport/rest"
	"quizclash/internal/transport/ws"
)

const releaseVersion = "1.0.0"

func main() {
	cmd := &cobra.Command{
		Use:           "quizclash-server",
		Short:         "Real-time quiz room synchronization server.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}
	cobra.CheckErr(cmd.Execute())
}

func run(ctx context.Context) error {
	cfg := config.Load()

	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	// MongoDB connection
	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return err
	}
	defer mongoClient.Disconnect(context.Background())

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := mongoClient.Ping(pingCtx, nil); err != nil {
		return err
	}
	logger.Info("connected to MongoDB", "uri", cfg.MongoURI)

	db := mongoClient.Database(cfg.MongoDB)
	if err := repository.EnsureIndexes(pingCtx, db); err != nil {
		return err
	}

	// Redis connection
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	if _, err := rdb.Ping(pingCtx).Result(); err != nil {
		return err
	}
	logger.Info("connected to Redis", "addr", cfg.RedisAddr)

	// Wire the engine: store -> ledger -> dispatcher, hub on both sides.
	scoreStore := repository.NewScoreStore(db)
	leaderboard := cache.NewLeaderboardCache(rdb)
	hub := ws.NewHub(logger)
	ledger := service.NewLedger(scoreStore)
	dispatcher := service.NewDispatcher(hub, ledger, leaderboard, hub, logger)
	wsHandler := ws.NewHandler(dispatcher, logger)

	router := rest.NewRouter(&rest.Container{
		Leaderboard: leaderboard,
		WSHandler:   wsHandler,
		StaticDir:   cfg.StaticDir,
		CORSOrigins: cfg.CORSOrigins,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-quit:
	}
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	logger.Info("server exited")
	return nil
}
