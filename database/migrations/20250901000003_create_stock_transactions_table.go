package migrations

import (
	"github.com/shashiranjanraj/kirana/app/models"
	"github.com/shashiranjanraj/kirana/pkg/migration"
	"gorm.io/gorm"
)

func init() {
	migration.Register("20250901000003_create_stock_transactions_table", &CreateStockTransactionsTable{})
}

type CreateStockTransactionsTable struct{}

func (m *CreateStockTransactionsTable) Up(db *gorm.DB) error {
	return db.AutoMigrate(&models.StockTransaction{})
}

func (m *CreateStockTransactionsTable) Down(db *gorm.DB) error {
	return db.Migrator().DropTable("stock_transactions")
}
