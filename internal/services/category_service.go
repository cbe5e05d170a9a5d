package services

import (
	"errors"

	"gorm.io/gorm"

	apperrors "despensa/internal/errors"
	"despensa/internal/models"
)

// categoryService reads the fixed category set seeded by migration.
type categoryService struct {
	db *gorm.DB
}

// NewCategoryService creates a new CategoryServicer.
func NewCategoryService(db *gorm.DB) CategoryServicer {
	return &categoryService{db: db}
}

// GetCategories lists all categories ordered by name
func (s *categoryService) GetCategories() ([]models.Category, error) {
	var categories []models.Category
	if err := s.db.Order("name asc").Find(&categories).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return categories, nil
}

// GetCategoryByID retrieves a category by ID
func (s *categoryService) GetCategoryByID(id string) (*models.Category, error) {
	var category models.Category
	if err := s.db.Where("id = ?", id).First(&category).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrCategoryNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &category, nil
}

// CategoryNames returns just the category names, for the analysis prompt.
func (s *categoryService) CategoryNames() ([]string, error) {
	var names []string
	if err := s.db.Model(&models.Category{}).Order("name asc").Pluck("name", &names).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return names, nil
}
