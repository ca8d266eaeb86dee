package repositories

import (
	"errors"
	"fmt"

	"github.com/shashiranjanraj/kirana/app/models"
	"gorm.io/gorm"
)

// SettingRepository persists key/value settings rows.
type SettingRepository struct {
	db *gorm.DB
}

func NewSettingRepository(db *gorm.DB) *SettingRepository {
	return &SettingRepository{db: db}
}

// Get returns the stored value for key, or fallback when unset.
func (r *SettingRepository) Get(key, fallback string) (string, error) {
	var s models.Setting
	err := r.db.Where("key = ?", key).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fallback, nil
	}
	if err != nil {
		return "", fmt.Errorf("setting %s: %w", key, err)
	}
	return s.Value, nil
}

// Set upserts the value for key.
func (r *SettingRepository) Set(key, value string) error {
	var s models.Setting
	err := r.db.Where("key = ?", key).First(&s).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := r.db.Create(&models.Setting{Key: key, Value: value}).Error; err != nil {
			return fmt.Errorf("create setting %s: %w", key, err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("setting %s: %w", key, err)
	default:
		if err := r.db.Model(&s).Update("value", value).Error; err != nil {
			return fmt.Errorf("update setting %s: %w", key, err)
		}
		return nil
	}
}

// All returns every settings row.
func (r *SettingRepository) All() ([]models.Setting, error) {
	var out []models.Setting
	if err := r.db.Order("key").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	return out, nil
}
