package services

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	apperrors "despensa/internal/errors"
	"despensa/internal/models"
)

// userService handles user-related business logic.
type userService struct {
	db *gorm.DB
}

// NewUserService creates a new UserServicer.
func NewUserService(db *gorm.DB) UserServicer {
	return &userService{db: db}
}

// CreateUser registers a new user
func (s *userService) CreateUser(username, email, password string, isAdmin bool) (*models.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(strings.ToLower(email))
	if username == "" || email == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "username and email are required")
	}
	if len(password) < 6 {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "password must be at least 6 characters")
	}

	var count int64
	s.db.Model(&models.User{}).Where("username = ? OR email = ?", username, email).Count(&count)
	if count > 0 {
		return nil, apperrors.ErrDuplicateUser
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	user := &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hashedPassword),
		IsAdmin:      isAdmin,
	}

	if err := s.db.Create(user).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	return user, nil
}

// GetUsers lists all users ordered by username
func (s *userService) GetUsers() ([]models.User, error) {
	var users []models.User
	if err := s.db.Order("username asc").Find(&users).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return users, nil
}

// GetUserByID retrieves a user by ID
func (s *userService) GetUserByID(id string) (*models.User, error) {
	var user models.User
	if err := s.db.Where("id = ?", id).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &user, nil
}

// UpdateUser partially updates a user. Nil fields are left unchanged.
func (s *userService) UpdateUser(id string, username, email, password *string, isAdmin *bool) (*models.User, error) {
	user, err := s.GetUserByID(id)
	if err != nil {
		return nil, err
	}

	if username != nil && strings.TrimSpace(*username) != "" {
		newName := strings.TrimSpace(*username)
		var count int64
		s.db.Model(&models.User{}).Where("username = ? AND id <> ?", newName, id).Count(&count)
		if count > 0 {
			return nil, apperrors.ErrDuplicateUser
		}
		user.Username = newName
	}
	if email != nil && strings.TrimSpace(*email) != "" {
		newEmail := strings.TrimSpace(strings.ToLower(*email))
		var count int64
		s.db.Model(&models.User{}).Where("email = ? AND id <> ?", newEmail, id).Count(&count)
		if count > 0 {
			return nil, apperrors.ErrDuplicateUser
		}
		user.Email = newEmail
	}
	if password != nil && *password != "" {
		if len(*password) < 6 {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "password must be at least 6 characters")
		}
		hashed, err := bcrypt.GenerateFromPassword([]byte(*password), bcrypt.DefaultCost)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		user.PasswordHash = string(hashed)
	}
	if isAdmin != nil {
		user.IsAdmin = *isAdmin
	}

	if err := s.db.Save(user).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return user, nil
}

// DeleteUser removes a user and, via cascade, their receipts and stock.
func (s *userService) DeleteUser(id string) error {
	result := s.db.Where("id = ?", id).Delete(&models.User{})
	if result.Error != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrUserNotFound
	}
	return nil
}

// AttemptLogin verifies credentials and returns the user on success.
// The error is identical for unknown user and wrong password.
func (s *userService) AttemptLogin(username, password string) (*models.User, error) {
	var user models.User
	if err := s.db.Where("username = ?", strings.TrimSpace(username)).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrInvalidCredentials
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, apperrors.ErrInvalidCredentials
	}
	return &user, nil
}
