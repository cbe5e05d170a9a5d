package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "despensa/internal/errors"
	"despensa/internal/services"
)

// SetupHandler handles first-run setup requests. The status and admin
// creation endpoints are unauthenticated so a fresh install can bootstrap
// itself; the OpenAI key endpoint requires an admin token.
type SetupHandler struct {
	settingsService services.SettingsServicer
}

// NewSetupHandler creates a new SetupHandler
func NewSetupHandler(settingsService services.SettingsServicer) *SetupHandler {
	return &SetupHandler{settingsService: settingsService}
}

// CreateAdminRequest represents the first-run admin creation payload.
type CreateAdminRequest struct {
	Username string `json:"username" binding:"required,min=1,max=100"`
	Email    string `json:"email" binding:"required,email,max=255"`
	Password string `json:"password" binding:"required,min=6,max=128"`
}

// SetOpenAIKeyRequest represents the analysis provider key payload.
type SetOpenAIKeyRequest struct {
	APIKey string `json:"api_key" binding:"required"`
}

// CheckSetup reports whether first-run setup has completed.
// @Summary     Get setup status
// @Description Report whether an admin exists and an analysis key is stored
// @Tags        setup
// @Accept      json
// @Produce     json
// @Success     200 {object} services.SetupStatus "Setup status"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /setup/status [get]
func (h *SetupHandler) CheckSetup(c *gin.Context) {
	status, err := h.settingsService.CheckSetup()
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}

// CreateAdmin creates the first admin account.
// @Summary     Create the admin account
// @Description Create the first admin account; fails once an admin exists
// @Tags        setup
// @Accept      json
// @Produce     json
// @Param       request body CreateAdminRequest true "Admin details"
// @Success     201 {object} UserResponse "Admin created"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     409 {object} ErrorResponse "Admin already exists"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /setup/admin [post]
func (h *SetupHandler) CreateAdmin(c *gin.Context) {
	var req CreateAdminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	user, err := h.settingsService.CreateAdmin(req.Username, req.Email, req.Password)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"user": user})
}

// SetOpenAIKey stores the analysis provider API key.
// @Summary     Configure the analysis provider key
// @Description Store or replace the OpenAI API key used for receipt analysis
// @Tags        setup
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body SetOpenAIKeyRequest true "API key"
// @Success     200 {object} MessageResponse "Key stored"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     403 {object} ErrorResponse "Admin access required"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /setup/openai-key [post]
func (h *SetupHandler) SetOpenAIKey(c *gin.Context) {
	var req SetOpenAIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	if err := h.settingsService.SetOpenAIKey(req.APIKey); err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "OpenAI key configured successfully"})
}
