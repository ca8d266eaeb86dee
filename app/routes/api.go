package routes

import (
	"net/http"

	"github.com/shashiranjanraj/kirana/app/controllers"
	"github.com/shashiranjanraj/kirana/pkg/metrics"
	"github.com/shashiranjanraj/kirana/pkg/middleware"
	"github.com/shashiranjanraj/kirana/pkg/response"
	"github.com/shashiranjanraj/kirana/pkg/router"
	"github.com/shashiranjanraj/kirana/pkg/ws"
)

// Deps carries the constructed controllers and the sync event hub into route
// registration.
type Deps struct {
	Auth     *controllers.AuthController
	Sync     *controllers.SyncController
	Stock    *controllers.StockController
	Sales    *controllers.SaleController
	Products *controllers.ProductController
	Settings *controllers.SettingsController
	Hub      *ws.Hub
}

func RegisterAPI(r *router.Router, d Deps) {
	r.Get("/health", "health", func(w http.ResponseWriter, _ *http.Request) {
		response.Success(w, map[string]string{"status": "ok"})
	})
	r.Get("/metrics", "metrics", metrics.Handler())

	r.Get("/ws/sync", "ws.sync", func(w http.ResponseWriter, req *http.Request) {
		ws.Upgrade(w, req, d.Hub)
	})

	api := r.Group("/api")
	api.Post("/auth/token", "auth.token", d.Auth.Token)

	protected := api.Group("", middleware.AuthMiddleware)

	protected.Post("/sync/manage", "sync.manage", d.Sync.Manage)
	protected.Get("/sync/status", "sync.status", d.Sync.Status)
	protected.Post("/sync/warehouses/{id}", "sync.run", d.Sync.RunWarehouse)

	protected.Post("/stock/adjust", "stock.adjust", d.Stock.Adjust)
	protected.Get("/stock/history", "stock.history", d.Stock.History)
	protected.Get("/stock/audit/{productID}", "stock.audit", d.Stock.Audit)
	protected.Get("/stock/low", "stock.low", d.Stock.LowStock)

	protected.Post("/sales", "sales.create", d.Sales.Create)
	protected.Post("/sales/{id}/return", "sales.return", d.Sales.Return)

	protected.Get("/products/{id}", "products.show", d.Products.Show)
	protected.Get("/warehouses/{id}/products", "products.by_warehouse", d.Products.ByWarehouse)

	protected.Get("/settings", "settings.index", d.Settings.Index)
	protected.Put("/settings", "settings.update", d.Settings.Update)
}
