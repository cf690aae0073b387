package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"anoncart/internal/config"
	"anoncart/internal/database"
	"anoncart/internal/handler"
	"anoncart/internal/middleware"
	"anoncart/internal/monitor"
	"anoncart/internal/redis"
	"anoncart/internal/repository"
	"anoncart/internal/service/auth"
	"anoncart/internal/service/cart"
	"anoncart/internal/service/catalog"
	"anoncart/internal/service/merge"
	"anoncart/internal/service/preference"
	"anoncart/internal/utils"
	"anoncart/pkg/limiter"
	"anoncart/pkg/lock"
	"anoncart/pkg/log"
	pkgutils "anoncart/pkg/utils"

	redisv9 "github.com/redis/go-redis/v9"
)

const version = "1.0.0"

func main() {
	cfg, err := config.LoadConfig("")
	if err != nil {
		log.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Fatal("Failed to load config")
	}

	if err := log.Init(log.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		Filename:   cfg.Log.Filename,
		MaxSize:    cfg.Log.MaxSize,
		MaxAge:     cfg.Log.MaxAge,
		MaxBackups: cfg.Log.MaxBackups,
		Compress:   cfg.Log.Compress,
	}); err != nil {
		log.WithError(err).Fatal("Failed to initialize logger")
	}

	config.WatchConfig(func(newCfg *config.Config) {
		if log.SetLevel(newCfg.Log.Level) {
			log.WithField("level", newCfg.Log.Level).Info("Log level reloaded")
		}
	})

	db, err := database.Init(&cfg.Database, cfg.Log.Level)
	if err != nil {
		log.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Fatal("Failed to initialize database")
	}
	defer database.Close()

	if cfg.Database.AutoMigrate {
		if err := database.AutoMigrate(db); err != nil {
			log.WithError(err).Fatal("Failed to migrate database")
		}
	}

	redisClient, err := redis.Init(&cfg.Redis)
	if err != nil {
		log.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Fatal("Failed to initialize redis")
	}
	defer redis.Close()

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	pkgutils.RegisterCustomValidators()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	metrics := monitor.NewMetricsCollector(cfg.Metrics.Namespace)
	if sqlDB, err := db.DB(); err == nil {
		go metrics.StartDBStatsCollection(ctx, 15*time.Second, sqlDB.Stats)
	}

	router, err := setupRouter(ctx, cfg, db, redisClient, metrics)
	if err != nil {
		log.WithError(err).Fatal("Failed to set up router")
	}

	server := &http.Server{
		Addr:           cfg.Server.GetAddr(),
		Handler:        router,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: 1 << 20, // 1MB
	}

	go func() {
		log.WithFields(map[string]interface{}{
			"addr": server.Addr,
			"mode": cfg.Server.Mode,
		}).Info("Starting HTTP server")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithFields(map[string]interface{}{
				"error": err.Error(),
			}).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Error("Server forced to shutdown")
	}

	log.Info("Server exited")
}

func setupRouter(ctx context.Context, cfg *config.Config, db *gorm.DB, redisClient *redisv9.Client, metrics *monitor.MetricsCollector) (*gin.Engine, error) {
	anonCfg := cfg.Security.Anonymous
	anonTokens, err := utils.NewAnonymousTokenManager(
		anonCfg.Secret,
		anonCfg.Issuer,
		anonCfg.Audience,
		anonCfg.Expire(),
		anonCfg.ClockSkew,
	)
	if err != nil {
		return nil, err
	}

	jwtManager := utils.NewJWTManager(
		cfg.Security.JWT.Secret,
		cfg.Security.JWT.Issuer,
		cfg.Security.JWT.Expire,
		cfg.Security.JWT.RefreshTTL,
	)

	// catalog
	var offeringCache *bigcache.BigCache
	if cfg.Catalog.Cache.Enabled {
		offeringCache, err = catalog.NewCache(ctx, cfg.Catalog.Cache.TTL, cfg.Catalog.Cache.Shards)
		if err != nil {
			return nil, err
		}
	}
	catalogBreaker := catalog.NewBreaker(
		cfg.Catalog.Breaker.MaxRequests,
		cfg.Catalog.Breaker.Interval,
		cfg.Catalog.Breaker.Timeout,
	)
	catalogService := catalog.NewService(repository.NewCatalogRepository(db), offeringCache, catalogBreaker)

	// stores and services
	stores := repository.NewStores(db)
	mergeService := merge.NewService(repository.NewUnitOfWork(db), anonTokens, metrics,
		merge.WithLocker(lock.NewLocker(redisClient, "merge", 30*time.Second, 20, 50*time.Millisecond)))
	authService := auth.NewAuthService(repository.NewUserRepository(db), jwtManager, redisClient, mergeService, metrics)

	anonCart := cart.NewService[string](stores.AnonCarts, catalogService, metrics, "anonymous")
	userCart := cart.NewService[uint64](stores.UserCarts, catalogService, metrics, "user")
	anonPreference := preference.NewService[string](stores.AnonPreferences, "anonymous")
	userPreference := preference.NewService[uint64](stores.UserPreferences, "user")

	// handlers
	healthHandler := handler.NewHealthHandler(version, map[string]handler.HealthCheck{
		"database": database.Health,
		"redis":    redis.Health,
	})
	sessionHandler := handler.NewSessionHandler(anonTokens, metrics)
	authHandler := handler.NewAuthHandler(authService, mergeService)
	anonCartHandler := handler.NewCartHandler[string](anonCart, handler.AnonymousOwner)
	userCartHandler := handler.NewCartHandler[uint64](userCart, handler.AccountOwner)
	anonPreferenceHandler := handler.NewPreferenceHandler[string](anonPreference, handler.AnonymousOwner)
	userPreferenceHandler := handler.NewPreferenceHandler[uint64](userPreference, handler.AccountOwner)

	router := gin.New()
	router.Use(middleware.Logger(metrics))
	router.Use(middleware.Recovery())
	router.Use(middleware.CORS(cfg.Security.CORS.AllowOrigins, cfg.Security.CORS.AllowCredentials, anonCfg.Header))
	router.Use(middleware.Timeout(cfg.Server.WriteTimeout))

	router.GET("/health", healthHandler.Health)
	router.GET("/ping", healthHandler.Ping)
	if cfg.Metrics.Enabled {
		router.GET(cfg.Metrics.Path, gin.WrapH(metrics.Handler()))
	}

	v1 := router.Group("/api/v1")
	{
		anonymous := v1.Group("/anonymous")
		{
			session := anonymous.Group("/session")
			if cfg.RateLimit.Enabled {
				session.Use(middleware.RateLimit(limiter.Chain{
					limiter.NewKeyedTokenBucket(rate.Limit(cfg.RateLimit.LocalRPS), cfg.RateLimit.LocalBurst, 10*time.Minute),
					limiter.NewSlidingWindowLimiter(redisClient, "anonymous_session", cfg.RateLimit.SessionsPerIP, cfg.RateLimit.SessionsWindow),
				}, middleware.ClientIPKey))
			}
			session.POST("", sessionHandler.Issue)

			scoped := anonymous.Group("", middleware.AnonymousAuth(anonCfg.Header, anonTokens, metrics))
			anonCartHandler.Register(scoped.Group("/cart"))
			anonPreferenceHandler.Register(scoped.Group("/preferences"))
		}

		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
			authGroup.POST("/refresh", authHandler.RefreshToken)
		}

		protected := v1.Group("", middleware.Auth(authService.ValidateToken))
		{
			protected.POST("/auth/logout", authHandler.Logout)
			protected.POST("/auth/merge-anonymous", authHandler.MergeAnonymous)
			userCartHandler.Register(protected.Group("/cart"))
			userPreferenceHandler.Register(protected.Group("/preferences"))
		}
	}

	return router, nil
}
