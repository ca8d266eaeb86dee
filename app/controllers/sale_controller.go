package controllers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shashiranjanraj/kirana/app/services"
	"github.com/shashiranjanraj/kirana/pkg/middleware"
	"github.com/shashiranjanraj/kirana/pkg/response"
)

// SaleController exposes sale completion and returns.
type SaleController struct {
	sales *services.SaleService
}

func NewSaleController(sales *services.SaleService) *SaleController {
	return &SaleController{sales: sales}
}

// Create completes a sale.
// POST /api/sales
func (c *SaleController) Create(w http.ResponseWriter, r *http.Request) {
	var body services.SaleInput
	if !decode(w, r, &body) {
		return
	}

	if claims := middleware.ClaimsFromCtx(r.Context()); claims != nil {
		body.PerformedByID = claims.UserID
	}

	result, err := c.sales.CreateSale(r.Context(), body)
	if err != nil {
		fail(w, err)
		return
	}
	response.Created(w, result)
}

// Return reverses a completed sale.
// POST /api/sales/{id}/return
func (c *SaleController) Return(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.Error(w, http.StatusBadRequest, "invalid sale id")
		return
	}

	var performedBy uint
	if claims := middleware.ClaimsFromCtx(r.Context()); claims != nil {
		performedBy = claims.UserID
	}

	sale, err := c.sales.ReturnSale(r.Context(), uint(id), performedBy)
	if err != nil {
		fail(w, err)
		return
	}
	response.Success(w, sale)
}
