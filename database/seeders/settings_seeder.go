package seeders

import (
	"errors"

	"github.com/shashiranjanraj/kirana/app/models"
	"gorm.io/gorm"
)

func init() {
	Register("settings", SeedSettings)
}

// SeedSettings inserts the default sync configuration. Existing keys are
// left alone so re-seeding never clobbers operator changes.
func SeedSettings(db *gorm.DB) error {
	defaults := map[string]string{
		"sync_enabled":        "true",
		"auto_update_on_sale": "true",
		"sync_interval_ms":    "300000",
	}

	for key, value := range defaults {
		var existing models.Setting
		err := db.Where("key = ?", key).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if err := db.Create(&models.Setting{Key: key, Value: value}).Error; err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}
