package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/thegr8khalee/em-furniture-and-interior-sub001/internal/cache"
	"github.com/thegr8khalee/em-furniture-and-interior-sub001/internal/catalog"
	"github.com/thegr8khalee/em-furniture-and-interior-sub001/internal/config"
	"github.com/thegr8khalee/em-furniture-and-interior-sub001/internal/events"
	h "github.com/thegr8khalee/em-furniture-and-interior-sub001/internal/http"
	"github.com/thegr8khalee/em-furniture-and-interior-sub001/internal/identity"
	"github.com/thegr8khalee/em-furniture-and-interior-sub001/internal/logger"
	"github.com/thegr8khalee/em-furniture-and-interior-sub001/internal/repository"
	"github.com/thegr8khalee/em-furniture-and-interior-sub001/internal/service"
	"github.com/thegr8khalee/em-furniture-and-interior-sub001/internal/session"
	"github.com/thegr8khalee/em-furniture-and-interior-sub001/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zl, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()
	zap.ReplaceGlobals(zl)

	ctx := context.Background()

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.Telemetry, zl)
	if err != nil {
		zl.Fatal("failed to set up telemetry", zap.Error(err))
	}
	metrics, err := telemetry.NewMetrics(nil)
	if err != nil {
		zl.Fatal("failed to create metrics", zap.Error(err))
	}

	// Storage
	var mongoDB *mongo.Database
	if cfg.Storage.Driver == "mongo" || cfg.Catalog.Driver == "mongo" {
		mongoDB, err = repository.ConnectMongoDB(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			zl.Fatal("failed to connect to MongoDB", zap.Error(err))
		}
		zl.Info("connected to MongoDB", zap.String("database", cfg.Mongo.Database))
	}

	var repo repository.Repository
	switch cfg.Storage.Driver {
	case "mongo":
		mongoRepo := repository.NewMongoRepository(mongoDB, cfg.Session.TTL)
		if err := mongoRepo.CreateIndexes(ctx); err != nil {
			zl.Fatal("failed to create indexes", zap.Error(err))
		}
		repo = mongoRepo
	default:
		zl.Warn("using in-memory storage, state is lost on restart")
		repo = repository.NewMemoryRepository(cfg.Session.TTL)
	}

	// Cache
	var stateCache cache.StateCache = cache.NopCache{}
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			zl.Fatal("redis connection failed", zap.Error(err))
		}
		stateCache = cache.NewRedisCache(redisClient, cfg.Redis.CacheTTL)
		zl.Info("redis cache enabled", zap.String("addr", cfg.Redis.Addr))
	}

	// Catalog
	var backend catalog.Catalog
	var sqlCatalog *catalog.SQLCatalog
	switch cfg.Catalog.Driver {
	case "sql":
		sqlCatalog, err = catalog.NewSQLCatalog(cfg.Catalog.SQLDriver, cfg.Catalog.DSN)
		if err != nil {
			zl.Fatal("failed to open catalog database", zap.Error(err))
		}
		if err := sqlCatalog.RunMigrations(cfg.Catalog.MigrationsPath); err != nil {
			zl.Fatal("failed to run catalog migrations", zap.Error(err))
		}
		zl.Info("catalog migrations completed", zap.String("driver", cfg.Catalog.SQLDriver))
		backend = sqlCatalog
	default:
		backend = catalog.NewMongoCatalog(mongoDB)
	}
	checker := catalog.NewChecker(catalog.NewBreakerCatalog(backend, cfg.Catalog.BreakerMaxFail, cfg.Catalog.BreakerTimeout, zl))

	// Identity
	lifecycle := session.NewLifecycle(repo, cfg.Session.TTL, metrics, zl)
	resolver := identity.NewResolver(identity.NewJWTVerifier(cfg.JWT.Secret, cfg.JWT.Issuer), lifecycle, zl)

	// Services
	carts := service.NewCartService(repo, stateCache, checker, metrics, zl)
	wishlists := service.NewWishlistService(repo, stateCache, checker, metrics, zl)

	var reporter service.FailureReporter
	var publisher *events.FailurePublisher
	var sealer *events.TokenSealer
	if cfg.Kafka.Enabled {
		sealer, err = events.NewTokenSealer(cfg.JWT.Secret)
		if err != nil {
			zl.Fatal("failed to create merge failure token sealer", zap.Error(err))
		}
		publisher = events.NewFailurePublisher(cfg.Kafka.Brokers, cfg.Kafka.MergeFailureTopic, sealer)
		reporter = publisher
	}
	merges := service.NewMergeCoordinator(repo, stateCache, reporter, metrics, zl)

	// Background workers
	var wg sync.WaitGroup
	bgCtx, bgCancel := context.WithCancel(context.Background())

	sweeper := session.NewSweeper(repo, cfg.Session.SweepInterval, metrics, zl)
	wg.Add(1)
	go func() {
		defer wg.Done()
		sweeper.Run(bgCtx)
	}()

	var checkoutConsumer *events.CheckoutConsumer
	var retryConsumer *events.MergeRetryConsumer
	if cfg.Kafka.Enabled {
		checkoutConsumer = events.NewCheckoutConsumer(carts, zl, cfg.Kafka.Brokers, cfg.Kafka.CheckoutTopic, cfg.Kafka.CheckoutGroupID)
		retryConsumer = events.NewMergeRetryConsumer(merges, sealer, zl, cfg.Kafka.MaxMergeAttempts, cfg.Kafka.MergeRetryInterval,
			cfg.Kafka.Brokers, cfg.Kafka.MergeFailureTopic, cfg.Kafka.MergeRetryGroupID)

		wg.Add(2)
		go func() {
			defer wg.Done()
			checkoutConsumer.Run(bgCtx)
		}()
		go func() {
			defer wg.Done()
			retryConsumer.Run(bgCtx)
		}()
	}

	// HTTP
	router := h.NewRouter(h.RouterConfig{
		RequestTimeout: cfg.HTTP.RequestTimeout,
		MaxBodySize:    cfg.HTTP.MaxBodySize,
		AllowedOrigins: cfg.HTTP.CORSAllowOrigins,
		Session: h.SessionTransport{
			HeaderName:   cfg.Session.HeaderName,
			CookieName:   cfg.Session.CookieName,
			CookieSecure: cfg.Session.CookieSecure,
			TTL:          lifecycle.TTL(),
		},
	}, h.Dependencies{
		Carts:     carts,
		Wishlists: wishlists,
		Resolver:  resolver,
		Merges:    merges,
		Logger:    zl,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		zl.Info("shopping state service starting",
			zap.String("port", cfg.App.Port),
			zap.String("env", cfg.App.Env),
			zap.String("storage", cfg.Storage.Driver),
			zap.String("catalog", cfg.Catalog.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zl.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Error("server forced to shutdown", zap.Error(err))
	}

	bgCancel()
	if err := merges.Wait(shutdownCtx); err != nil {
		zl.Warn("pending merges did not finish", zap.Error(err))
	}

	doneChan := make(chan struct{})
	go func() {
		wg.Wait()
		close(doneChan)
	}()
	select {
	case <-doneChan:
		zl.Info("background workers stopped cleanly")
	case <-shutdownCtx.Done():
		zl.Warn("background workers didn't stop in time")
	}

	if checkoutConsumer != nil {
		checkoutConsumer.Close()
	}
	if retryConsumer != nil {
		retryConsumer.Close()
	}
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			zl.Error("failed to close merge failure publisher", zap.Error(err))
		}
	}
	if sqlCatalog != nil {
		_ = sqlCatalog.Close()
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
	if mongoDB != nil {
		_ = mongoDB.Client().Disconnect(context.Background())
	}
	if err := shutdownTelemetry(context.Background()); err != nil {
		zl.Error("telemetry shutdown failed", zap.Error(err))
	}
	zl.Info("server exited")
}
