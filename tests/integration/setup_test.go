package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"despensa/internal/analysis"
	"despensa/internal/crypto"
	"despensa/internal/handlers"
	"despensa/internal/logger"
	"despensa/internal/middleware"
	"despensa/internal/models"
	"despensa/internal/services"
	"despensa/internal/validator"
)

// testApp holds the full application stack for integration tests.
type testApp struct {
	DB       *gorm.DB
	Router   *gin.Engine
	Receipts services.ReceiptServicer
}

// stubAnalyzer stands in for the OpenAI client so integration tests run
// without a provider.
type stubAnalyzer struct {
	result    *analysis.Result
	err       error
	storeName string
}

func (s *stubAnalyzer) AnalyzeReceipt(_ context.Context, _ []byte, _ string) (*analysis.Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.result != nil {
		return s.result, nil
	}
	return &analysis.Result{TotalAmount: decimal.NewFromInt(-1)}, nil
}

func (s *stubAnalyzer) ExtractStoreName(_ context.Context, _ []byte, _ string) (string, error) {
	return s.storeName, nil
}

// dbCounter ensures each test gets a unique in-memory database.
var dbCounter atomic.Int64

func init() {
	gin.SetMode(gin.TestMode)
	logger.Init("test")
	validator.Register()
}

// setupIsolatedDB creates an isolated in-memory SQLite database for a single test.
func setupIsolatedDB(t *testing.T) *gorm.DB {
	t.Helper()

	n := dbCounter.Add(1)
	dsn := fmt.Sprintf("file:testdb%d?mode=memory&cache=shared", n)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	allModels := []interface{}{
		&models.User{},
		&models.Category{},
		&models.Receipt{},
		&models.LineItem{},
		&models.StockItem{},
		&models.StockTransaction{},
		&models.AppSetting{},
	}
	if err := db.AutoMigrate(allModels...); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	// Seed the fixed category set the SQL migration provides in production.
	categories := []models.Category{
		{Name: "Lácteos", Color: "#3B82F6"},
		{Name: "Panadería", Color: "#F59E0B"},
		{Name: "Bebidas", Color: "#10B981"},
		{Name: "Otros", Color: "#6B7280"},
	}
	if err := db.Create(&categories).Error; err != nil {
		t.Fatalf("failed to seed categories: %v", err)
	}

	return db
}

// setupApp creates a full application stack backed by an isolated in-memory
// SQLite, with the given analyzer standing in for the OpenAI client.
func setupApp(t *testing.T, analyzer analysis.Analyzer) *testApp {
	t.Helper()

	db := setupIsolatedDB(t)
	if analyzer == nil {
		analyzer = &stubAnalyzer{}
	}

	// Services
	cipher := crypto.NewFieldCipher("integration-test-encryption-key")
	userService := services.NewUserService(db)
	categoryService := services.NewCategoryService(db)
	settingsService := services.NewSettingsService(db, cipher, userService)
	stockService := services.NewStockService(db)
	receiptService := services.NewReceiptService(db, analyzer, stockService)
	t.Cleanup(receiptService.Close)
	analyticsService := services.NewAnalyticsService(db)
	exportService := services.NewExportService(db)

	// Handlers
	authHandler := handlers.NewAuthHandler(userService)
	userHandler := handlers.NewUserHandler(userService)
	categoryHandler := handlers.NewCategoryHandler(categoryService)
	setupHandler := handlers.NewSetupHandler(settingsService)
	receiptHandler := handlers.NewReceiptHandler(receiptService, exportService)
	stockHandler := handlers.NewStockHandler(stockService)
	analyticsHandler := handlers.NewAnalyticsHandler(analyticsService)

	// Router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.ErrorHandler())

	v1 := router.Group("/api/v1")

	// Public routes
	v1.POST("/auth/login", authHandler.Login)
	v1.GET("/setup/status", setupHandler.CheckSetup)
	v1.POST("/setup/admin", setupHandler.CreateAdmin)

	// Protected routes
	protected := v1.Group("/")
	protected.Use(middleware.AuthMiddleware())
	protected.GET("/auth/me", authHandler.GetProfile)

	admin := protected.Group("/")
	admin.Use(middleware.AdminMiddleware())
	admin.POST("/setup/openai-key", setupHandler.SetOpenAIKey)
	users := admin.Group("/users")
	users.POST("", userHandler.CreateUser)
	users.GET("", userHandler.GetUsers)
	users.GET("/:id", userHandler.GetUser)
	users.PUT("/:id", userHandler.UpdateUser)
	users.DELETE("/:id", userHandler.DeleteUser)

	categories := protected.Group("/categories")
	categories.GET("", categoryHandler.GetCategories)
	categories.GET("/:id", categoryHandler.GetCategory)

	receipts := protected.Group("/receipts")
	receipts.POST("", receiptHandler.UploadReceipt)
	receipts.GET("", receiptHandler.GetReceipts)
	receipts.GET("/export", receiptHandler.ExportReceipts)
	receipts.GET("/:id", receiptHandler.GetReceipt)
	receipts.GET("/:id/image", receiptHandler.GetReceiptImage)
	receipts.POST("/:id/analyze", receiptHandler.AnalyzeReceipt)

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

	analytics := protected.Group("/analytics")
	analytics.GET("/stores", analyticsHandler.GetStoreAnalytics)
	analytics.GET("/monthly", analyticsHandler.GetMonthlyExpenses)
	analytics.GET("/categories", analyticsHandler.GetCategoryExpenses)

	return &testApp{DB: db, Router: router, Receipts: receiptService}
}

// request makes an HTTP request to the test router and returns the recorder.
func (app *testApp) request(method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	app.Router.ServeHTTP(rec, req)
	return rec
}

// upload posts a multipart receipt image and returns the recorder.
func (app *testApp) upload(t *testing.T, token, contentType string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	h := map[string][]string{
		"Content-Disposition": {`form-data; name="file"; filename="ticket.jpg"`},
		"Content-Type":        {contentType},
	}
	part, err := w.CreatePart(h)
	if err != nil {
		t.Fatalf("failed to create multipart: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("failed to write multipart: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("failed to close multipart: %v", err)
	}

	req := httptest.NewRequest("POST", "/api/v1/receipts", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	app.Router.ServeHTTP(rec, req)
	return rec
}

// parseJSON parses the response body into a map.
func parseJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var result map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, rec.Body.String())
	}
	return result
}

// createAdmin runs first-run setup and returns the admin's token and ID.
func (app *testApp) createAdmin(t *testing.T) (token, userID string) {
	t.Helper()
	body := `{"username":"admin","email":"admin@test.com","password":"secret123"}`
	rec := app.request("POST", "/api/v1/setup/admin", body, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("admin setup failed: %d %s", rec.Code, rec.Body.String())
	}
	return app.login(t, "admin", "secret123")
}

// login authenticates and returns the token and user ID.
func (app *testApp) login(t *testing.T, username, password string) (token, userID string) {
	t.Helper()
	body := fmt.Sprintf(`{"username":%q,"password":%q}`, username, password)
	rec := app.request("POST", "/api/v1/auth/login", body, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("login failed: %d %s", rec.Code, rec.Body.String())
	}
	result := parseJSON(t, rec)
	user := result["user"].(map[string]interface{})
	return result["token"].(string), user["id"].(string)
}
