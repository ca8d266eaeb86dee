package migrations

import (
	"github.com/shashiranjanraj/kirana/app/models"
	"github.com/shashiranjanraj/kirana/pkg/migration"
	"gorm.io/gorm"
)

func init() {
	migration.Register("20250901000005_create_settings_table", &CreateSettingsTable{})
}

type CreateSettingsTable struct{}

func (m *CreateSettingsTable) Up(db *gorm.DB) error {
	return db.AutoMigrate(&models.Setting{})
}

func (m *CreateSettingsTable) Down(db *gorm.DB) error {
	return db.Migrator().DropTable("settings")
}
