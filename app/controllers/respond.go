package controllers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shashiranjanraj/kirana/app/services"
	"github.com/shashiranjanraj/kirana/pkg/response"
	"github.com/shashiranjanraj/kirana/pkg/validate"
)

// decode reads a JSON body into dst and runs struct-tag validation. On
// failure it writes the error response and returns false.
func decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	if errs := validate.Struct(dst); len(errs) > 0 {
		response.ValidationError(w, errs)
		return false
	}
	return true
}

// fail maps service errors to HTTP status codes and writes the envelope.
func fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrValidation):
		response.Error(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, services.ErrEntityNotFound):
		response.Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrInsufficientStock):
		response.Error(w, http.StatusConflict, err.Error())
	case errors.Is(err, services.ErrNonRetryable):
		response.Error(w, http.StatusConflict, err.Error())
	case errors.Is(err, services.ErrConnectionUnavailable):
		response.Error(w, http.StatusBadGateway, err.Error())
	default:
		response.Error(w, http.StatusInternalServerError, err.Error())
	}
}
