package controllers

import (
	"crypto/subtle"
	"net/http"

	"github.com/shashiranjanraj/kirana/config"
	"github.com/shashiranjanraj/kirana/pkg/auth"
	"github.com/shashiranjanraj/kirana/pkg/response"
)

// AuthController exchanges the configured API key for JWTs used on the
// management endpoints. There is no user store; the back office is operated
// by trusted terminals sharing one key.
type AuthController struct{}

func NewAuthController() *AuthController {
	return &AuthController{}
}

type tokenRequest struct {
	APIKey string `json:"api_key" validate:"required"`
}

// Token issues an access and refresh token pair.
// POST /api/auth/token
func (c *AuthController) Token(w http.ResponseWriter, r *http.Request) {
	var body tokenRequest
	if !decode(w, r, &body) {
		return
	}

	key := config.APIKey()
	if key == "" || subtle.ConstantTimeCompare([]byte(body.APIKey), []byte(key)) != 1 {
		response.Unauthorized(w)
		return
	}

	access, err := auth.GenerateToken(1, "operator")
	if err != nil {
		fail(w, err)
		return
	}
	refresh, err := auth.GenerateRefreshToken(1, "operator")
	if err != nil {
		fail(w, err)
		return
	}

	response.Success(w, map[string]string{
		"token":         access,
		"refresh_token": refresh,
	})
}
