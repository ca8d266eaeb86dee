package controllers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shashiranjanraj/kirana/app/repositories"
	"github.com/shashiranjanraj/kirana/app/services"
	"github.com/shashiranjanraj/kirana/pkg/middleware"
	"github.com/shashiranjanraj/kirana/pkg/response"
)

// StockController exposes manual stock adjustments and the ledger.
type StockController struct {
	stock    *services.StockService
	products *repositories.ProductRepository
	ledger   *repositories.TransactionLogRepository
}

func NewStockController(
	stock *services.StockService,
	products *repositories.ProductRepository,
	ledger *repositories.TransactionLogRepository,
) *StockController {
	return &StockController{stock: stock, products: products, ledger: ledger}
}

type adjustRequest struct {
	ProductID uint   `json:"product_id" validate:"required"`
	Reason    string `json:"reason" validate:"required,in=return,damage,theft,found,correction"`
	Quantity  int    `json:"quantity" validate:"required"`
	Notes     string `json:"notes" validate:"nullable,max=500"`
}

// Adjust applies a manual stock adjustment.
// POST /api/stock/adjust
func (c *StockController) Adjust(w http.ResponseWriter, r *http.Request) {
	var body adjustRequest
	if !decode(w, r, &body) {
		return
	}

	reason, ok := services.ParseAdjustmentReason(body.Reason)
	if !ok {
		response.Error(w, http.StatusUnprocessableEntity, "unknown adjustment reason")
		return
	}

	var performedBy uint
	if claims := middleware.ClaimsFromCtx(r.Context()); claims != nil {
		performedBy = claims.UserID
	}

	change, err := c.stock.ApplyAdjustment(r.Context(), body.ProductID, reason, body.Quantity, performedBy, body.Notes)
	if err != nil {
		fail(w, err)
		return
	}
	response.Success(w, change)
}

// History lists ledger entries.
// GET /api/stock/history?product_id=&action=&warehouse_id=&page=&limit=
func (c *StockController) History(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	productID, _ := strconv.ParseUint(q.Get("product_id"), 10, 64)
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	entries, pagination, err := c.ledger.History(repositories.HistoryFilter{
		ProductID:   uint(productID),
		Action:      q.Get("action"),
		WarehouseID: q.Get("warehouse_id"),
	}, page, limit)
	if err != nil {
		fail(w, err)
		return
	}
	response.Paginated(w, entries, pagination)
}

// Audit replays a product's ledger and compares it with the stored stock.
// GET /api/stock/audit/{productID}
func (c *StockController) Audit(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "productID"), 10, 64)
	if err != nil {
		response.Error(w, http.StatusBadRequest, "invalid product id")
		return
	}

	product, err := c.products.FindByID(uint(id))
	if err != nil {
		fail(w, err)
		return
	}
	if product == nil {
		response.NotFound(w)
		return
	}

	replayed, err := c.ledger.Replay(uint(id))
	if err != nil {
		fail(w, err)
		return
	}

	response.Success(w, map[string]interface{}{
		"product_id":     product.ID,
		"stored_stock":   product.Stock,
		"replayed_stock": replayed,
		"consistent":     product.Stock == replayed,
	})
}

// LowStock lists active products at or below their minimum stock.
// GET /api/stock/low?limit=
func (c *StockController) LowStock(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 200 {
		limit = 50
	}

	products, err := c.products.LowStock(limit)
	if err != nil {
		fail(w, err)
		return
	}
	response.Success(w, products)
}
