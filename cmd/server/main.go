package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/jmoiron/sqlx"
	goredis "github.com/redis/go-redis/v9"
	"github.com/umar/staychat/internal/auth"
	"github.com/umar/staychat/internal/chat"
	"github.com/umar/staychat/internal/config"
	"github.com/umar/staychat/internal/database"
	"github.com/umar/staychat/internal/handlers"
	"github.com/umar/staychat/internal/messages"
	"github.com/umar/staychat/internal/presence"
	redisc "github.com/umar/staychat/internal/redis"
	"github.com/umar/staychat/internal/rooms"
)

// store is what both the Postgres and the in-memory backends provide.
type store interface {
	rooms.Store
	messages.Repository
	handlers.Profiles
	auth.ProfileSink
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)
	slog.Info("starting chat server", "store", cfg.StoreDriver)

	ctx := context.Background()

	var (
		backend store
		db      *sqlx.DB
	)
	switch cfg.StoreDriver {
	case config.StoreMemory:
		backend = database.NewMemory()
		slog.Warn("using in-memory store, data is lost on restart")
	default:
		db, err = database.InitDB(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to init database", "error", err)
			os.Exit(1)
		}
		slog.Info("connected to PostgreSQL")

		if err := database.RunMigrations(ctx, db); err != nil {
			slog.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		slog.Info("database migrations complete")
		backend = database.NewPostgres(db)
	}

	tracker := presence.NewTracker()
	registry := rooms.NewRegistry(backend)
	msgStore := messages.NewStore(backend)

	gw := chat.NewGateway(tracker, registry, chat.GatewayConfig{
		EventRate:      cfg.SocketEventRate,
		EventBurst:     cfg.SocketEventBurst,
		RequestTimeout: cfg.RequestTimeout,
	}, logger)
	broker := chat.NewBroker(gw, registry, msgStore, logger)

	mirrorCtx, stopMirror := context.WithCancel(ctx)
	mirrorDone := make(chan struct{})
	var (
		redisClient *goredis.Client
		mirror      *redisc.PresenceMirror
	)
	if cfg.RedisURL != "" {
		redisClient, err = redisc.Connect(ctx, cfg.RedisURL)
		if err != nil {
			slog.Error("failed to init Redis", "error", err)
			os.Exit(1)
		}
		slog.Info("connected to Redis")

		mirror = redisc.NewPresenceMirror(redisClient, tracker, logger)
		if err := mirror.Reset(ctx); err != nil {
			slog.Warn("failed to clear stale presence", "error", err)
		}
		go func() {
			defer close(mirrorDone)
			mirror.Run(mirrorCtx)
		}()
	} else {
		close(mirrorDone)
	}

	verifier := auth.NewJWTVerifier(cfg.JWTSecret)
	router := handlers.NewRouter(&handlers.Deps{
		Rooms:        registry,
		Messages:     msgStore,
		Profiles:     backend,
		Gateway:      gw,
		Broker:       broker,
		HistoryLimit: cfg.HistoryLimit,
	}, verifier, backend, cfg.CORSOrigin)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("server listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"chat-server": func(ctx context.Context) error {
				slog.Info("shutting down")
				var errs []error
				if err := srv.Shutdown(ctx); err != nil {
					errs = append(errs, err)
				}
				if err := gw.Shutdown(ctx); err != nil {
					errs = append(errs, err)
				}
				stopMirror()
				<-mirrorDone
				if mirror != nil {
					if err := mirror.Reset(ctx); err != nil {
						errs = append(errs, err)
					}
					errs = append(errs, redisClient.Close())
				}
				if db != nil {
					errs = append(errs, db.Close())
				}
				return errors.Join(errs...)
			},
		},
	)

	exitCode := <-wait
	slog.Info("server stopped", "exit_code", exitCode)
	os.Exit(exitCode)
}
