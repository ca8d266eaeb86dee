package migrations

import (
	"github.com/shashiranjanraj/kirana/app/models"
	"github.com/shashiranjanraj/kirana/pkg/migration"
	"gorm.io/gorm"
)

func init() {
	migration.Register("20250901000004_create_sales_tables", &CreateSalesTables{})
}

type CreateSalesTables struct{}

func (m *CreateSalesTables) Up(db *gorm.DB) error {
	return db.AutoMigrate(&models.Sale{}, &models.SaleItem{})
}

func (m *CreateSalesTables) Down(db *gorm.DB) error {
	if err := db.Migrator().DropTable("sale_items"); err != nil {
		return err
	}
	return db.Migrator().DropTable("sales")
}
