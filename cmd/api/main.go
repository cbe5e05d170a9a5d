package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"despensa/internal/analysis"
	"despensa/internal/config"
	"despensa/internal/crypto"
	"despensa/internal/database"
	"despensa/internal/handlers"
	"despensa/internal/logger"
	"despensa/internal/middleware"
	"despensa/internal/services"
	"despensa/internal/validator"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "despensa/internal/docs" // Import swagger docs
)

// @title           Despensa API
// @version         1.0
// @description     Despensa is a household expense tracker: receipt photos are analyzed with OpenAI vision, extracted purchases are persisted, and pantry stock is kept in an append-only ledger.
// @termsOfService  http://swagger.io/terms/

// @host      localhost:8080
// @BasePath  /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	// Initialize logger (use ENV var if available, default to development)
	logger.Init(os.Getenv("ENV"))
	defer logger.Sync()

	if err := run(); err != nil {
		logger.Get().Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	log := logger.Get()

	// Load configuration
	appConfig, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Initialize database configuration
	dbConfig := database.NewConfig(appConfig)

	// Create database manager
	dbManager, err := database.NewManager(dbConfig)
	if err != nil {
		return fmt.Errorf("failed to create database manager: %w", err)
	}

	// Run migrations
	if err := dbManager.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	// Register request validators
	validator.Register()

	// Field cipher for the stored OpenAI key
	cipher := crypto.NewFieldCipher(appConfig.EncryptionKey)

	// Initialize services
	db := dbManager.DB()
	userService := services.NewUserService(db)
	categoryService := services.NewCategoryService(db)
	settingsService := services.NewSettingsService(db, cipher, userService)

	categoryNames, err := categoryService.CategoryNames()
	if err != nil {
		return fmt.Errorf("failed to load category names: %w", err)
	}

	analyzer := analysis.NewOpenAIClient(appConfig, settingsService, categoryNames)
	stockService := services.NewStockService(db)
	receiptService := services.NewReceiptService(db, analyzer, stockService)
	defer receiptService.Close()
	analyticsService := services.NewAnalyticsService(db)
	exportService := services.NewExportService(db)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(userService)
	userHandler := handlers.NewUserHandler(userService)
	categoryHandler := handlers.NewCategoryHandler(categoryService)
	setupHandler := handlers.NewSetupHandler(settingsService)
	receiptHandler := handlers.NewReceiptHandler(receiptService, exportService)
	stockHandler := handlers.NewStockHandler(stockService)
	analyticsHandler := handlers.NewAnalyticsHandler(analyticsService)

	// Initialize Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogging())
	router.Use(middleware.ErrorHandler())

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "X-Analysis-Warnings, Content-Disposition")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health check endpoint
	router.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// API v1 group
	v1 := router.Group("/api/v1")

	// Public routes
	v1.POST("/auth/login", authHandler.Login)
	v1.GET("/setup/status", setupHandler.CheckSetup)
	v1.POST("/setup/admin", setupHandler.CreateAdmin)

	// Protected routes
	protected := v1.Group("/")
	protected.Use(middleware.AuthMiddleware())

	protected.GET("/auth/me", authHandler.GetProfile)

	// Admin-only routes
	admin := protected.Group("/")
	admin.Use(middleware.AdminMiddleware())
	admin.POST("/setup/openai-key", setupHandler.SetOpenAIKey)
	users := admin.Group("/users")
	users.POST("", userHandler.CreateUser)
	users.GET("", userHandler.GetUsers)
	users.GET("/:id", userHandler.GetUser)
	users.PUT("/:id", userHandler.UpdateUser)
	users.DELETE("/:id", userHandler.DeleteUser)

	// Category routes
	categories := protected.Group("/categories")
	categories.GET("", categoryHandler.GetCategories)
	categories.GET("/:id", categoryHandler.GetCategory)

	// Receipt routes
	receipts := protected.Group("/receipts")
	receipts.POST("", receiptHandler.UploadReceipt)
	receipts.GET("", receiptHandler.GetReceipts)
	receipts.GET("/export", receiptHandler.ExportReceipts)
	receipts.GET("/:id", receiptHandler.GetReceipt)
	receipts.GET("/:id/image", receiptHandler.GetReceiptImage)
	receipts.POST("/:id/analyze", receiptHandler.AnalyzeReceipt)

	// Stock routes
	stock := protected.Group("/stock")
	stock.GET("", stockHandler.GetStockItems)
	stock.POST("", stockHandler.CreateStockItem)
	stock.GET("/alerts", stockHandler.GetLowStockAlerts)
	stock.GET("/:id", stockHandler.GetStockItem)
	stock.PUT("/:id", stockHandler.UpdateStockItem)
	stock.DELETE("/:id", stockHandler.DeleteStockItem)
	stock.POST("/:id/adjust", stockHandler.AdjustStock)
	stock.POST("/:id/consume", stockHandler.ConsumeStock)
	stock.POST("/:id/expire", stockHandler.ExpireStock)
	stock.GET("/:id/transactions", stockHandler.GetStockTransactions)

	// Analytics routes
	analytics := protected.Group("/analytics")
	analytics.GET("/stores", analyticsHandler.GetStoreAnalytics)
	analytics.GET("/monthly", analyticsHandler.GetMonthlyExpenses)
	analytics.GET("/categories", analyticsHandler.GetCategoryExpenses)

	srv := &http.Server{
		Addr:    ":" + appConfig.Port,
		Handler: router,
	}

	// Serve until interrupted, then drain in-flight requests and the
	// pending store name pre-fill jobs.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Starting Despensa backend server on port %s", appConfig.Port)
		log.Infof("Swagger documentation available at http://localhost:%s/swagger/index.html", appConfig.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
