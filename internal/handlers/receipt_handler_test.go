package handlers

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	apperrors "despensa/internal/errors"
	"despensa/internal/models"
	"despensa/internal/pagination"
	"despensa/internal/services"
)

// --- mock receipt and export services ---

type mockReceiptService struct {
	uploadReceiptFn   func(userID string, data []byte, contentType string) (*models.Receipt, error)
	analyzeReceiptFn  func(ctx context.Context, userID, receiptID string) (*services.AnalyzeResult, error)
	getUserReceiptsFn func(userID string, page pagination.PageRequest) (*pagination.PageResponse[models.Receipt], error)
	getReceiptByIDFn  func(userID, receiptID string) (*models.Receipt, error)
	getReceiptImageFn func(userID, receiptID string) ([]byte, string, error)
}

func (m *mockReceiptService) UploadReceipt(userID string, data []byte, contentType string) (*models.Receipt, error) {
	if m.uploadReceiptFn != nil {
		return m.uploadReceiptFn(userID, data, contentType)
	}
	return &models.Receipt{}, nil
}

func (m *mockReceiptService) AnalyzeReceipt(ctx context.Context, userID, receiptID string) (*services.AnalyzeResult, error) {
	if m.analyzeReceiptFn != nil {
		return m.analyzeReceiptFn(ctx, userID, receiptID)
	}
	return &services.AnalyzeResult{Receipt: &models.Receipt{}}, nil
}

func (m *mockReceiptService) GetUserReceipts(userID string, page pagination.PageRequest) (*pagination.PageResponse[models.Receipt], error) {
	if m.getUserReceiptsFn != nil {
		return m.getUserReceiptsFn(userID, page)
	}
	resp := pagination.NewPageResponse([]models.Receipt{}, 1, 20, 0)
	return &resp, nil
}

func (m *mockReceiptService) GetReceiptByID(userID, receiptID string) (*models.Receipt, error) {
	if m.getReceiptByIDFn != nil {
		return m.getReceiptByIDFn(userID, receiptID)
	}
	return &models.Receipt{}, nil
}

func (m *mockReceiptService) GetReceiptImage(userID, receiptID string) ([]byte, string, error) {
	if m.getReceiptImageFn != nil {
		return m.getReceiptImageFn(userID, receiptID)
	}
	return []byte("fake-image"), "image/jpeg", nil
}

func (m *mockReceiptService) Close() {}

var _ services.ReceiptServicer = (*mockReceiptService)(nil)

type mockExportService struct {
	exportReceiptsFn func(userID string, year *int) ([]byte, string, error)
}

func (m *mockExportService) ExportReceipts(userID string, year *int) ([]byte, string, error) {
	if m.exportReceiptsFn != nil {
		return m.exportReceiptsFn(userID, year)
	}
	return []byte("xlsx-bytes"), "tickets-2026-01-01.xlsx", nil
}

func setupReceiptRouter(handler *ReceiptHandler) *gin.Engine {
	r := gin.New()
	auth := r.Group("", injectUserID(testUserID))
	auth.POST("/receipts", handler.UploadReceipt)
	auth.GET("/receipts", handler.GetReceipts)
	auth.GET("/receipts/export", handler.ExportReceipts)
	auth.GET("/receipts/:id", handler.GetReceipt)
	auth.GET("/receipts/:id/image", handler.GetReceiptImage)
	auth.POST("/receipts/:id/analyze", handler.AnalyzeReceipt)
	return r
}

// doUpload sends a multipart request with a single "file" part.
func doUpload(r *gin.Engine, path, filename, contentType string, data []byte) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	h := make(map[string][]string)
	h["Content-Disposition"] = []string{`form-data; name="file"; filename="` + filename + `"`}
	h["Content-Type"] = []string{contentType}
	part, _ := w.CreatePart(h)
	_, _ = part.Write(data)
	_ = w.Close()

	req := httptest.NewRequest("POST", path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

// --- tests ---

func TestReceiptHandler_UploadReceipt(t *testing.T) {
	t.Run("returns 201 on success", func(t *testing.T) {
		var capturedType string
		svc := &mockReceiptService{
			uploadReceiptFn: func(userID string, data []byte, contentType string) (*models.Receipt, error) {
				capturedType = contentType
				return &models.Receipt{
					Base:             models.Base{ID: testItemID},
					UserID:           userID,
					ImageContentType: contentType,
				}, nil
			},
		}
		handler := NewReceiptHandler(svc, &mockExportService{})
		r := setupReceiptRouter(handler)

		rec := doUpload(r, "/receipts", "ticket.jpg", "image/jpeg", []byte("jpeg-bytes"))

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		if capturedType != "image/jpeg" {
			t.Errorf("expected content type image/jpeg, got %q", capturedType)
		}
		result := parseJSON(t, rec)
		receipt := result["receipt"].(map[string]interface{})
		if receipt["id"] != testItemID {
			t.Errorf("expected receipt id %s, got %v", testItemID, receipt["id"])
		}
	})

	t.Run("returns 400 without a file", func(t *testing.T) {
		handler := NewReceiptHandler(&mockReceiptService{}, &mockExportService{})
		r := setupReceiptRouter(handler)

		rec := doRequest(r, "POST", "/receipts", "")

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "INVALID_INPUT")
	})

	t.Run("passes service rejections through", func(t *testing.T) {
		svc := &mockReceiptService{
			uploadReceiptFn: func(_ string, _ []byte, _ string) (*models.Receipt, error) {
				return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Tipo de archivo no soportado.")
			},
		}
		handler := NewReceiptHandler(svc, &mockExportService{})
		r := setupReceiptRouter(handler)

		rec := doUpload(r, "/receipts", "notes.txt", "text/plain", []byte("hello"))

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}

func TestReceiptHandler_AnalyzeReceipt(t *testing.T) {
	t.Run("returns 200 with receipt and warnings", func(t *testing.T) {
		store := "Mercadona"
		svc := &mockReceiptService{
			analyzeReceiptFn: func(_ context.Context, _, receiptID string) (*services.AnalyzeResult, error) {
				return &services.AnalyzeResult{
					Receipt: &models.Receipt{
						Base:       models.Base{ID: receiptID},
						StoreName:  &store,
						IsAnalyzed: true,
					},
					Warnings: []string{"Se descartó un producto sin nombre."},
				}, nil
			},
		}
		handler := NewReceiptHandler(svc, &mockExportService{})
		r := setupReceiptRouter(handler)

		rec := doRequest(r, "POST", "/receipts/"+testItemID+"/analyze", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if got := rec.Header().Get("X-Analysis-Warnings"); got != "Se descartó un producto sin nombre." {
			t.Errorf("unexpected warnings header: %q", got)
		}
		result := parseJSON(t, rec)
		receipt := result["receipt"].(map[string]interface{})
		if receipt["is_analyzed"] != true {
			t.Errorf("expected is_analyzed=true, got %v", receipt["is_analyzed"])
		}
		warnings := result["warnings"].([]interface{})
		if len(warnings) != 1 {
			t.Errorf("expected 1 warning, got %d", len(warnings))
		}
	})

	t.Run("omits warnings header when clean", func(t *testing.T) {
		handler := NewReceiptHandler(&mockReceiptService{}, &mockExportService{})
		r := setupReceiptRouter(handler)

		rec := doRequest(r, "POST", "/receipts/"+testItemID+"/analyze", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if got := rec.Header().Get("X-Analysis-Warnings"); got != "" {
			t.Errorf("expected no warnings header, got %q", got)
		}
	})

	t.Run("returns 422 with warnings when nothing extracted", func(t *testing.T) {
		svc := &mockReceiptService{
			analyzeReceiptFn: func(_ context.Context, _, _ string) (*services.AnalyzeResult, error) {
				return nil, apperrors.WithWarnings(apperrors.ErrAnalysisEmpty,
					[]string{"Se descartó un producto sin nombre.", "Se descartó 'Pan' por cantidad inválida (0)."})
			},
		}
		handler := NewReceiptHandler(svc, &mockExportService{})
		r := setupReceiptRouter(handler)

		rec := doRequest(r, "POST", "/receipts/"+testItemID+"/analyze", "")

		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
		}
		result := parseJSON(t, rec)
		assertErrorCode(t, result, "ANALYSIS_EMPTY")
		errObj := result["error"].(map[string]interface{})
		warnings := errObj["warnings"].([]interface{})
		if len(warnings) != 2 {
			t.Errorf("expected 2 warnings in error body, got %d", len(warnings))
		}
	})

	t.Run("maps provider errors to their status", func(t *testing.T) {
		svc := &mockReceiptService{
			analyzeReceiptFn: func(_ context.Context, _, _ string) (*services.AnalyzeResult, error) {
				return nil, apperrors.ErrAIRateLimited
			},
		}
		handler := NewReceiptHandler(svc, &mockExportService{})
		r := setupReceiptRouter(handler)

		rec := doRequest(r, "POST", "/receipts/"+testItemID+"/analyze", "")

		if rec.Code != http.StatusTooManyRequests {
			t.Fatalf("expected 429, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "AI_RATE_LIMITED")
	})

	t.Run("returns 400 on invalid ID", func(t *testing.T) {
		handler := NewReceiptHandler(&mockReceiptService{}, &mockExportService{})
		r := setupReceiptRouter(handler)

		rec := doRequest(r, "POST", "/receipts/abc/analyze", "")

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}

func TestReceiptHandler_GetReceipts(t *testing.T) {
	t.Run("returns 200 with paginated receipts", func(t *testing.T) {
		svc := &mockReceiptService{
			getUserReceiptsFn: func(_ string, _ pagination.PageRequest) (*pagination.PageResponse[models.Receipt], error) {
				resp := pagination.NewPageResponse([]models.Receipt{
					{Base: models.Base{ID: testItemID}},
				}, 1, 20, 1)
				return &resp, nil
			},
		}
		handler := NewReceiptHandler(svc, &mockExportService{})
		r := setupReceiptRouter(handler)

		rec := doRequest(r, "GET", "/receipts", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		result := parseJSON(t, rec)
		data := result["data"].([]interface{})
		if len(data) != 1 {
			t.Errorf("expected 1 receipt, got %d", len(data))
		}
	})

	t.Run("returns 400 on invalid page size", func(t *testing.T) {
		handler := NewReceiptHandler(&mockReceiptService{}, &mockExportService{})
		r := setupReceiptRouter(handler)

		rec := doRequest(r, "GET", "/receipts?page_size=500", "")

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}

func TestReceiptHandler_GetReceiptImage(t *testing.T) {
	t.Run("serves the raw image", func(t *testing.T) {
		svc := &mockReceiptService{
			getReceiptImageFn: func(_, _ string) ([]byte, string, error) {
				return []byte("png-bytes"), "image/png", nil
			},
		}
		handler := NewReceiptHandler(svc, &mockExportService{})
		r := setupReceiptRouter(handler)

		rec := doRequest(r, "GET", "/receipts/"+testItemID+"/image", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if got := rec.Header().Get("Content-Type"); got != "image/png" {
			t.Errorf("expected image/png, got %q", got)
		}
		if rec.Body.String() != "png-bytes" {
			t.Errorf("unexpected body: %q", rec.Body.String())
		}
	})

	t.Run("returns 404 when image missing", func(t *testing.T) {
		svc := &mockReceiptService{
			getReceiptImageFn: func(_, _ string) ([]byte, string, error) {
				return nil, "", apperrors.ErrReceiptNotFound
			},
		}
		handler := NewReceiptHandler(svc, &mockExportService{})
		r := setupReceiptRouter(handler)

		rec := doRequest(r, "GET", "/receipts/"+testItemID+"/image", "")

		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
	})
}

func TestReceiptHandler_ExportReceipts(t *testing.T) {
	t.Run("serves the workbook as an attachment", func(t *testing.T) {
		handler := NewReceiptHandler(&mockReceiptService{}, &mockExportService{})
		r := setupReceiptRouter(handler)

		rec := doRequest(r, "GET", "/receipts/export", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		disposition := rec.Header().Get("Content-Disposition")
		if disposition != `attachment; filename="tickets-2026-01-01.xlsx"` {
			t.Errorf("unexpected disposition: %q", disposition)
		}
		if rec.Body.String() != "xlsx-bytes" {
			t.Errorf("unexpected body: %q", rec.Body.String())
		}
	})

	t.Run("passes the year filter through", func(t *testing.T) {
		var capturedYear *int
		svc := &mockExportService{
			exportReceiptsFn: func(userID string, year *int) ([]byte, string, error) {
				capturedYear = year
				return []byte("xlsx-bytes"), "tickets-2025.xlsx", nil
			},
		}
		handler := NewReceiptHandler(&mockReceiptService{}, svc)
		r := setupReceiptRouter(handler)

		rec := doRequest(r, "GET", "/receipts/export?year=2025", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if capturedYear == nil || *capturedYear != 2025 {
			t.Errorf("expected year 2025, got %v", capturedYear)
		}
	})

	t.Run("returns 400 on a malformed year", func(t *testing.T) {
		handler := NewReceiptHandler(&mockReceiptService{}, &mockExportService{})
		r := setupReceiptRouter(handler)

		rec := doRequest(r, "GET", "/receipts/export?year=abc", "")

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
		}
		assertErrorCode(t, parseJSON(t, rec), "INVALID_INPUT")
	})
}
