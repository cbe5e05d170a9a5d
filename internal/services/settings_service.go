package services

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"despensa/internal/crypto"
	apperrors "despensa/internal/errors"
	"despensa/internal/logger"
	"despensa/internal/models"
)

// settingsService handles first-run setup and the stored OpenAI key.
// The key is encrypted at rest and decrypted just before each AI call.
type settingsService struct {
	db     *gorm.DB
	cipher *crypto.FieldCipher
	users  UserServicer
}

// NewSettingsService creates a new SettingsServicer.
func NewSettingsService(db *gorm.DB, cipher *crypto.FieldCipher, users UserServicer) SettingsServicer {
	return &settingsService{db: db, cipher: cipher, users: users}
}

// CheckSetup reports whether an admin exists and a provider key is stored.
func (s *settingsService) CheckSetup() (*SetupStatus, error) {
	var adminCount int64
	if err := s.db.Model(&models.User{}).Where("is_admin = ?", true).Count(&adminCount).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var keyCount int64
	if err := s.db.Model(&models.AppSetting{}).Where("key = ?", models.SettingOpenAIKey).Count(&keyCount).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	return &SetupStatus{
		IsSetupComplete: adminCount > 0,
		HasOpenAIKey:    keyCount > 0,
	}, nil
}

// CreateAdmin creates the first administrator. Fails once one exists.
func (s *settingsService) CreateAdmin(username, email, password string) (*models.User, error) {
	var adminCount int64
	if err := s.db.Model(&models.User{}).Where("is_admin = ?", true).Count(&adminCount).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if adminCount > 0 {
		return nil, apperrors.ErrAdminExists
	}

	return s.users.CreateUser(username, email, password, true)
}

// SetOpenAIKey encrypts and stores the provider key, replacing any
// previously stored value.
func (s *settingsService) SetOpenAIKey(rawKey string) error {
	rawKey = strings.TrimSpace(rawKey)
	if rawKey == "" {
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "API key is required")
	}

	encrypted, err := s.cipher.Encrypt(rawKey)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		var setting models.AppSetting
		err := tx.Where("key = ?", models.SettingOpenAIKey).First(&setting).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			setting = models.AppSetting{Key: models.SettingOpenAIKey, Value: encrypted}
			if err := tx.Create(&setting).Error; err != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, err)
			}
		case err != nil:
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		default:
			setting.Value = encrypted
			if err := tx.Save(&setting).Error; err != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, err)
			}
		}
		logger.Get().Infow("analysis provider key updated")
		return nil
	})
}

// OpenAIKey loads and decrypts the stored provider key. Absence of a
// configured key is a precondition failure, not a provider failure.
func (s *settingsService) OpenAIKey(ctx context.Context) (string, error) {
	var setting models.AppSetting
	if err := s.db.WithContext(ctx).Where("key = ?", models.SettingOpenAIKey).First(&setting).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", apperrors.ErrAIKeyMissing
		}
		return "", apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	key, err := s.cipher.Decrypt(setting.Value)
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if strings.TrimSpace(key) == "" {
		return "", apperrors.ErrAIKeyMissing
	}
	return key, nil
}
