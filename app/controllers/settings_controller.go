package controllers

import (
	"net/http"

	"github.com/shashiranjanraj/kirana/app/services"
	"github.com/shashiranjanraj/kirana/pkg/response"
)

// SettingsController exposes the sync configuration keys.
type SettingsController struct {
	settings *services.SettingsService
}

func NewSettingsController(settings *services.SettingsService) *SettingsController {
	return &SettingsController{settings: settings}
}

// Index lists all settings with defaults applied.
// GET /api/settings
func (c *SettingsController) Index(w http.ResponseWriter, r *http.Request) {
	all, err := c.settings.All()
	if err != nil {
		fail(w, err)
		return
	}
	response.Success(w, all)
}

type settingRequest struct {
	Key   string `json:"key" validate:"required,max=64"`
	Value string `json:"value" validate:"required,max=255"`
}

// Update stores one setting after allow-list validation.
// PUT /api/settings
func (c *SettingsController) Update(w http.ResponseWriter, r *http.Request) {
	var body settingRequest
	if !decode(w, r, &body) {
		return
	}

	if err := c.settings.Set(body.Key, body.Value); err != nil {
		fail(w, err)
		return
	}
	response.Success(w, map[string]string{body.Key: body.Value})
}
