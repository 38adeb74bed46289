package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/lunchbox-orders-api/config"
	"github.com/kendall-kelly/lunchbox-orders-api/controllers"
	"github.com/kendall-kelly/lunchbox-orders-api/middleware"
	"github.com/kendall-kelly/lunchbox-orders-api/models"
	"github.com/kendall-kelly/lunchbox-orders-api/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger := config.NewLogger(cfg.LogLevel, cfg.GoEnv)
	log.Logger = logger
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	logger.Info().Str("env", cfg.GoEnv).Msg("Starting Lunchbox Orders API server...")

	// Connect to database
	db, err := config.OpenDatabase(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to database")
	}
	config.SetDB(db)

	if err := models.Migrate(db); err != nil {
		logger.Fatal().Err(err).Msg("Failed to migrate database")
	}
	logger.Info().Msg("Database migration completed successfully")

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	notifier, closeNotifier := newNotifier(cfg, logger)
	defer closeNotifier()

	engine, err := newEngine(ctx, cfg, db, services.OrderOptions{
		Location:             cfg.Location(),
		PaymentWindow:        cfg.PaymentWindow,
		DeadlineExtension:    cfg.DeadlineExtension,
		MaxRetries:           cfg.OrderNumberMaxRetries,
		EnforceQuantityLimit: cfg.EnforceQuantityLimit,
		Notifier:             notifier,
		Metrics:              services.NewMetrics(registry),
		Logger:               logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize order engine")
	}
	controllers.SetEngine(engine)

	router := newRouter(cfg, logger, registry, middleware.EnsureValidToken(cfg))
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	sweeper := services.NewExpirySweeper(engine.Machine, cfg.ExpirySweepInterval, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", server.Addr).Msg("Server is running")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return sweeper.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info().Msg("Shutting down server")
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal().Err(err).Msg("Server stopped with error")
	}
	logger.Info().Msg("Server stopped")
}

// newNotifier publishes to NATS when NATS_URL is set and logs otherwise
func newNotifier(cfg *config.Config, logger zerolog.Logger) (services.Notifier, func()) {
	if cfg.NATSURL == "" {
		return services.NewLogNotifier(logger), func() {}
	}

	nc, err := services.NewNATSNotifier(cfg.NATSURL, "orders")
	if err != nil {
		logger.Warn().Err(err).Msg("NATS unavailable, falling back to log notifications")
		return services.NewLogNotifier(logger), func() {}
	}
	logger.Info().Str("url", cfg.NATSURL).Msg("Publishing order notifications to NATS")
	return nc, func() {
		if err := nc.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close NATS connection")
		}
	}
}

// newEngine builds the order services. Manifest exports are only available
// when an S3 bucket is configured.
func newEngine(ctx context.Context, cfg *config.Config, db *gorm.DB, opts services.OrderOptions) (*controllers.Engine, error) {
	var store services.ObjectStore
	if cfg.AWSS3Bucket != "" {
		s3Service, err := services.NewS3Service(ctx, cfg)
		if err != nil {
			return nil, err
		}
		store = s3Service
	}

	return &controllers.Engine{
		Orders:    services.NewOrderService(db, opts),
		Machine:   services.NewOrderStateMachine(db, opts),
		Catalog:   services.NewCatalogService(db),
		Manifests: services.NewManifestService(db, store, opts.Clock),
	}, nil
}

// newRouter mounts every route. validate is the JWT check; tests pass a fake.
func newRouter(cfg *config.Config, logger zerolog.Logger, registry *prometheus.Registry, validate gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	router.Use(
		middleware.RequestID(),
		middleware.RequestLogger(logger),
		gin.Recovery(),
		cors.New(cors.Config{
			AllowOrigins: cfg.CORSAllowedOrigins,
			AllowMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowHeaders: []string{
				"Origin", "Content-Type", "Authorization", middleware.RequestIDHeader,
				controllers.OrderPhoneHeader, controllers.OrderPasscodeHeader,
			},
			ExposeHeaders:    []string{middleware.RequestIDHeader},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}),
	)

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Health check endpoint
		v1.GET("/health", healthCheck)

		// Database status endpoint
		v1.GET("/database/status", databaseStatus)

		// Storefront routes, open to guests
		v1.GET("/menu/today", controllers.GetTodayMenu)
		v1.GET("/coupons/auto", controllers.ListAutoCoupons)
		v1.POST("/coupons/validate", controllers.ValidateCoupon)
		v1.POST("/delivery/fee", controllers.ResolveDeliveryFee)
		v1.POST("/orders/quote", controllers.QuoteOrder)
		v1.POST("/orders", middleware.OptionalToken(validate), controllers.CreateOrder)
		v1.POST("/orders/lookup", controllers.LookupOrder)
		v1.GET("/orders/:id", middleware.OptionalToken(validate), controllers.GetOrder)
		v1.POST("/orders/:id/payment-notification", middleware.OptionalToken(validate), controllers.NotifyPayment)

		// User routes (protected)
		users := v1.Group("/users", validate)
		{
			users.POST("", controllers.CreateUser)
			users.GET("/me", controllers.GetMyProfile)
			users.PUT("/me", controllers.UpdateMyProfile)
			users.GET("/me/orders", controllers.GetMyOrders)
		}

		// Admin routes
		admin := v1.Group("/admin", validate, middleware.RequireRole(middleware.RoleAdmin))
		{
			admin.GET("/orders", controllers.ListOrders)
			admin.POST("/orders/expire", controllers.ExpireOrders)
			admin.GET("/orders/:id", controllers.GetAdminOrder)
			admin.GET("/orders/:id/events", controllers.GetOrderEvents)
			admin.POST("/orders/:id/confirm-payment", controllers.ConfirmPayment)
			admin.POST("/orders/:id/advance", controllers.AdvanceOrder)
			admin.POST("/orders/:id/revert", controllers.RevertOrder)
			admin.POST("/orders/:id/cancel", controllers.CancelOrder)
			admin.POST("/orders/:id/restore", controllers.RestoreOrder)
			admin.POST("/orders/:id/extend-deadline", controllers.ExtendDeadline)
			admin.POST("/exports/daily", controllers.ExportDailyManifest)
		}
	}

	return router
}

// healthCheck handles the health check endpoint
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Lunchbox Orders API is running",
	})
}

// databaseStatus checks database connectivity and returns table information
func databaseStatus(c *gin.Context) {
	db := config.GetDB()

	// Get the underlying SQL database to check connection
	sqlDB, err := db.DB()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to get database instance",
			},
		})
		return
	}

	// Ping the database to verify connection
	if err := sqlDB.PingContext(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_CONNECTION_ERROR",
				"message": "Database connection failed",
			},
		})
		return
	}

	tables, err := db.Migrator().GetTables()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_QUERY_ERROR",
				"message": "Failed to query tables",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Database connected",
		"tables":  tables,
	})
}
