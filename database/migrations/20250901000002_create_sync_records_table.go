package migrations

import (
	"github.com/shashiranjanraj/kirana/app/models"
	"github.com/shashiranjanraj/kirana/pkg/migration"
	"gorm.io/gorm"
)

func init() {
	migration.Register("20250901000002_create_sync_records_table", &CreateSyncRecordsTable{})
}

type CreateSyncRecordsTable struct{}

func (m *CreateSyncRecordsTable) Up(db *gorm.DB) error {
	return db.AutoMigrate(&models.SyncRecord{})
}

func (m *CreateSyncRecordsTable) Down(db *gorm.DB) error {
	return db.Migrator().DropTable("sync_records")
}
