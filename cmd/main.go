package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/cors"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/btfbank/bank-api/internal/auth"
	"github.com/btfbank/bank-api/internal/command"
	"github.com/btfbank/bank-api/internal/config"
	"github.com/btfbank/bank-api/internal/documents"
	"github.com/btfbank/bank-api/internal/handler"
	"github.com/btfbank/bank-api/internal/lock"
	"github.com/btfbank/bank-api/internal/query"
	"github.com/btfbank/bank-api/internal/repository"
	"github.com/btfbank/bank-api/shared/events"
	"github.com/btfbank/bank-api/shared/logger"
	"github.com/btfbank/bank-api/shared/middleware"
	sharedredis "github.com/btfbank/bank-api/shared/redis"
)

const (
	shutdownTimeout = 30 * time.Second
	projectorGroup  = "bank-api-projector"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	zl := logger.Init(cfg.Env, cfg.LogLevel, cfg.LogFormat)
	defer logger.Sync()

	if err := run(cfg, zl); err != nil {
		zl.Fatal("server stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, zl *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	checks := map[string]handler.Pinger{"database": store}

	// Redis backs the read model caches and, optionally, the event streams.
	var rdb *goredis.Client
	if cfg.RedisAddr != "" {
		client, err := sharedredis.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return err
		}
		defer client.Close()
		rdb = client.Client
		checks["redis"] = handler.PingFunc(client.Healthy)
	}
	accountViews := sharedredis.NewAccountViews(rdb, cfg.AccountViewTTL)
	userViews := sharedredis.NewUserViews(rdb, cfg.UserViewTTL)

	publisher, closePublisher := newPublisher(cfg, rdb, zl)
	defer closePublisher()

	var uploader documents.Uploader
	if cfg.DocumentsEnabled() {
		s3Uploader, err := documents.NewS3Uploader(ctx, cfg.DocumentsBucket, cfg.DocumentsRegion, cfg.DocumentsEndpoint)
		if err != nil {
			return err
		}
		uploader = s3Uploader
	}

	tokens := auth.NewTokenService(cfg.JWTSecret, cfg.AccessTokenTTL)
	locks := lock.NewStriped(lock.DefaultStripes)
	branch := command.Branch{SortCode: cfg.SortCode, Currency: cfg.Currency}

	// --- CQRS wiring ---
	accountCmds := command.NewAccountCommandService(store, locks, branch, accountViews, publisher)
	transactionCmds := command.NewTransactionCommandService(store, locks, accountViews, publisher)
	userCmds := command.NewUserCommandService(store, accountCmds, uploader, tokens, userViews)

	authQrys := query.NewAuthQueryService(store.Users(), tokens)
	userQrys := query.NewUserQueryService(store.Users(), userViews)
	accountQrys := query.NewAccountQueryService(store.Accounts(), accountViews)
	transactionQrys := query.NewTransactionQueryService(accountQrys, store.Transactions())

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.LoggingMiddleware(zl), middleware.RecoveryMiddleware(zl))

	handler.RegisterRoutes(router, handler.Handlers{
		Auth:         handler.NewAuthHandler(userCmds, authQrys, cfg.MaxUploadBytes),
		Users:        handler.NewUserHandler(userQrys),
		Accounts:     handler.NewAccountHandler(accountCmds, accountQrys),
		Transactions: handler.NewTransactionHandler(transactionCmds, transactionQrys),
		Health:       handler.NewHealthHandler(checks),
	}, middleware.AuthMiddleware(tokens))

	srv := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
			AllowedHeaders:   []string{"Authorization", "Content-Type", "Idempotency-Key"},
			AllowCredentials: true,
			MaxAge:           300,
		})(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		zl.Info("server starting", zap.String("port", cfg.Port), zap.String("store", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		zl.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	// Projectors only run when events travel over Redis Streams.
	if rdb != nil && cfg.EventsBackend == config.EventsBackendRedis {
		for _, sub := range []events.SubscriberConfig{
			{Stream: events.TransactionEventsStream, Handler: accountQrys.HandleTransactionEvent},
			{Stream: events.AccountEventsStream, Handler: accountQrys.HandleAccountEvent},
		} {
			sub.Group = projectorGroup
			sub.Consumer = consumerName()
			sub.Logger = zl
			subscriber := events.NewSubscriber(rdb, sub)
			g.Go(func() error { return subscriber.Start(gctx) })
		}
	}

	return g.Wait()
}

func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		logger.Get().Warn("using the in-memory store; data is lost on restart")
		return repository.NewMemoryStore(), nil
	}
	db, err := repository.OpenPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	store := repository.NewPostgresStore(db)
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

func newPublisher(cfg *config.Config, rdb *goredis.Client, zl *zap.Logger) (events.Publisher, func()) {
	switch cfg.EventsBackend {
	case config.EventsBackendRedis:
		return events.NewStreamPublisher(rdb), func() {}
	case config.EventsBackendKafka:
		p := events.NewKafkaPublisher(cfg.KafkaBrokers, zl)
		return p, func() {
			if err := p.Close(); err != nil {
				zl.Warn("failed to close kafka writer", zap.Error(err))
			}
		}
	default:
		return events.NewLogPublisher(zl), func() {}
	}
}

func consumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "bank-api"
	}
	return "bank-api-" + host
}
