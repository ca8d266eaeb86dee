package controllers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shashiranjanraj/kirana/app/repositories"
	"github.com/shashiranjanraj/kirana/pkg/response"
)

// ProductController exposes read access to the catalogue.
type ProductController struct {
	products *repositories.ProductRepository
}

func NewProductController(products *repositories.ProductRepository) *ProductController {
	return &ProductController{products: products}
}

// ByWarehouse lists a warehouse's active products.
// GET /api/warehouses/{id}/products
func (c *ProductController) ByWarehouse(w http.ResponseWriter, r *http.Request) {
	products, err := c.products.ActiveByWarehouse(chi.URLParam(r, "id"))
	if err != nil {
		fail(w, err)
		return
	}
	response.Success(w, products)
}

// Show returns one product.
// GET /api/products/{id}
func (c *ProductController) Show(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
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
	response.Success(w, product)
}
