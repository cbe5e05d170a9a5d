package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"

	apperrors "despensa/internal/errors"
	"despensa/internal/models"
	"despensa/internal/services"
)

type mockSettingsService struct {
	checkSetupFn   func() (*services.SetupStatus, error)
	createAdminFn  func(username, email, password string) (*models.User, error)
	setOpenAIKeyFn func(rawKey string) error
	openAIKeyFn    func(ctx context.Context) (string, error)
}

func (m *mockSettingsService) CheckSetup() (*services.SetupStatus, error) {
	if m.checkSetupFn != nil {
		return m.checkSetupFn()
	}
	return &services.SetupStatus{}, nil
}

func (m *mockSettingsService) CreateAdmin(username, email, password string) (*models.User, error) {
	if m.createAdminFn != nil {
		return m.createAdminFn(username, email, password)
	}
	return &models.User{}, nil
}

func (m *mockSettingsService) SetOpenAIKey(rawKey string) error {
	if m.setOpenAIKeyFn != nil {
		return m.setOpenAIKeyFn(rawKey)
	}
	return nil
}

func (m *mockSettingsService) OpenAIKey(ctx context.Context) (string, error) {
	if m.openAIKeyFn != nil {
		return m.openAIKeyFn(ctx)
	}
	return "sk-test", nil
}

func setupSetupRouter(handler *SetupHandler) *gin.Engine {
	r := gin.New()
	r.GET("/setup/status", handler.CheckSetup)
	r.POST("/setup/admin", handler.CreateAdmin)
	r.POST("/setup/openai-key", injectUserID(testUserID), handler.SetOpenAIKey)
	return r
}

func TestSetupHandler_CheckSetup(t *testing.T) {
	t.Run("returns 200 with status", func(t *testing.T) {
		svc := &mockSettingsService{
			checkSetupFn: func() (*services.SetupStatus, error) {
				return &services.SetupStatus{IsSetupComplete: true, HasOpenAIKey: false}, nil
			},
		}
		handler := NewSetupHandler(svc)
		r := setupSetupRouter(handler)

		rec := doRequest(r, "GET", "/setup/status", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		result := parseJSON(t, rec)
		if result["is_setup_complete"] != true {
			t.Errorf("expected is_setup_complete=true, got %v", result["is_setup_complete"])
		}
		if result["has_openai_key"] != false {
			t.Errorf("expected has_openai_key=false, got %v", result["has_openai_key"])
		}
	})
}

func TestSetupHandler_CreateAdmin(t *testing.T) {
	t.Run("returns 201 on success", func(t *testing.T) {
		svc := &mockSettingsService{
			createAdminFn: func(username, email, _ string) (*models.User, error) {
				return &models.User{
					Base:     models.Base{ID: testUserID},
					Username: username,
					Email:    email,
					IsAdmin:  true,
				}, nil
			},
		}
		handler := NewSetupHandler(svc)
		r := setupSetupRouter(handler)

		rec := doRequest(r, "POST", "/setup/admin",
			`{"username":"admin","email":"admin@test.com","password":"secret123"}`)

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		result := parseJSON(t, rec)
		user := result["user"].(map[string]interface{})
		if user["is_admin"] != true {
			t.Errorf("expected is_admin=true, got %v", user["is_admin"])
		}
	})

	t.Run("returns 409 when an admin exists", func(t *testing.T) {
		svc := &mockSettingsService{
			createAdminFn: func(_, _, _ string) (*models.User, error) {
				return nil, apperrors.ErrAdminExists
			},
		}
		handler := NewSetupHandler(svc)
		r := setupSetupRouter(handler)

		rec := doRequest(r, "POST", "/setup/admin",
			`{"username":"admin","email":"admin@test.com","password":"secret123"}`)

		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "ADMIN_EXISTS")
	})

	t.Run("returns 400 on short password", func(t *testing.T) {
		handler := NewSetupHandler(&mockSettingsService{})
		r := setupSetupRouter(handler)

		rec := doRequest(r, "POST", "/setup/admin",
			`{"username":"admin","email":"admin@test.com","password":"abc"}`)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}

func TestSetupHandler_SetOpenAIKey(t *testing.T) {
	t.Run("returns 200 on success", func(t *testing.T) {
		var captured string
		svc := &mockSettingsService{
			setOpenAIKeyFn: func(rawKey string) error {
				captured = rawKey
				return nil
			},
		}
		handler := NewSetupHandler(svc)
		r := setupSetupRouter(handler)

		rec := doRequest(r, "POST", "/setup/openai-key", `{"api_key":"sk-abc123"}`)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if captured != "sk-abc123" {
			t.Errorf("expected key to be passed, got %q", captured)
		}
	})

	t.Run("returns 400 on missing key", func(t *testing.T) {
		handler := NewSetupHandler(&mockSettingsService{})
		r := setupSetupRouter(handler)

		rec := doRequest(r, "POST", "/setup/openai-key", `{}`)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "INVALID_INPUT")
	})
}
