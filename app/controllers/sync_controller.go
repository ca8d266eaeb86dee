package controllers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shashiranjanraj/kirana/app/repositories"
	"github.com/shashiranjanraj/kirana/app/services"
	"github.com/shashiranjanraj/kirana/pkg/response"
)

// SyncController exposes the reconciliation engine and the sync record
// management surface.
type SyncController struct {
	sync     *services.SyncService
	retry    *services.RetryService
	records  *repositories.SyncRecordRepository
	settings *services.SettingsService
}

func NewSyncController(
	sync *services.SyncService,
	retry *services.RetryService,
	records *repositories.SyncRecordRepository,
	settings *services.SettingsService,
) *SyncController {
	return &SyncController{sync: sync, retry: retry, records: records, settings: settings}
}

// RunWarehouse triggers a reconciliation of one warehouse.
// POST /api/sync/warehouses/{id}?full=true
func (c *SyncController) RunWarehouse(w http.ResponseWriter, r *http.Request) {
	warehouseID := chi.URLParam(r, "id")
	full := r.URL.Query().Get("full") == "true"

	summary, err := c.sync.SyncWarehouse(r.Context(), warehouseID, services.SyncOptions{FullSync: full})
	if err != nil {
		if summary != nil {
			// The batch failed but the partial summary is still useful.
			response.Error(w, http.StatusBadGateway, err.Error())
			return
		}
		fail(w, err)
		return
	}
	response.Success(w, summary)
}

// Status reports the engine's configuration and last completed run.
// GET /api/sync/status
func (c *SyncController) Status(w http.ResponseWriter, r *http.Request) {
	pending, err := c.records.Pending(repositories.PendingFilter{})
	if err != nil {
		fail(w, err)
		return
	}

	var lastSync interface{}
	if t := c.settings.LastSync(); !t.IsZero() {
		lastSync = t
	}

	response.Success(w, map[string]interface{}{
		"sync_enabled":        c.settings.SyncEnabled(),
		"auto_update_on_sale": c.settings.AutoUpdateOnSale(),
		"sync_interval_ms":    c.settings.SyncInterval().Milliseconds(),
		"last_sync":           lastSync,
		"pending_records":     len(pending),
	})
}

type manageRequest struct {
	Action     string `json:"action" validate:"required,in=get_history,get_pending,retry_sync,cleanup_old"`
	RecordID   uint   `json:"record_id"`
	Force      bool   `json:"force"`
	EntityType string `json:"entity_type"`
	Direction  string `json:"direction"`
	Status     string `json:"status"`
	Page       int    `json:"page"`
	Limit      int    `json:"limit"`
	OlderThan  int    `json:"older_than_days"`
}

// Manage is the single management endpoint over the sync bookkeeping table.
// POST /api/sync/manage
func (c *SyncController) Manage(w http.ResponseWriter, r *http.Request) {
	var body manageRequest
	if !decode(w, r, &body) {
		return
	}

	switch body.Action {
	case "get_history":
		recs, pagination, err := c.records.History(body.EntityType, body.Direction, body.Status, body.Page, body.Limit)
		if err != nil {
			fail(w, err)
			return
		}
		response.Paginated(w, recs, pagination)

	case "get_pending":
		recs, err := c.records.Pending(repositories.PendingFilter{
			EntityType: body.EntityType,
			Direction:  body.Direction,
		})
		if err != nil {
			fail(w, err)
			return
		}
		response.Success(w, recs)

	case "retry_sync":
		if body.RecordID != 0 {
			outcome, err := c.retry.Retry(r.Context(), body.RecordID, body.Force)
			if err != nil {
				fail(w, err)
				return
			}
			response.Success(w, outcome)
			return
		}
		outcomes, err := c.retry.RetryAll(r.Context(), repositories.PendingFilter{
			EntityType: body.EntityType,
			Direction:  body.Direction,
		})
		if err != nil {
			fail(w, err)
			return
		}
		response.Success(w, outcomes)

	case "cleanup_old":
		days := body.OlderThan
		if days <= 0 {
			days = 30
		}
		deleted, err := c.records.CleanupOld(time.Duration(days) * 24 * time.Hour)
		if err != nil {
			fail(w, err)
			return
		}
		response.Success(w, map[string]string{"deleted": strconv.FormatInt(deleted, 10)})
	}
}
