package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shashiranjanraj/kirana/app/models"
	"github.com/shashiranjanraj/kirana/app/repositories"
	"github.com/shashiranjanraj/kirana/pkg/logger"
	"github.com/shashiranjanraj/kirana/pkg/metrics"
)

// RetryOutcome is the per-record result of a retry pass.
type RetryOutcome struct {
	RecordID   uint   `json:"record_id"`
	EntityType string `json:"entity_type"`
	Direction  string `json:"direction"`
	Succeeded  bool   `json:"succeeded"`
	Requeued   bool   `json:"requeued,omitempty"`
	Message    string `json:"message,omitempty"`
}

// RetryService owns the second chance of failed sync records. A plain retry
// only puts the record back in the scheduler's queue; the forced variant
// re-executes the reconstructed action on the spot. Records whose action
// cannot be reconstructed are non-retryable and stay parked for an operator.
type RetryService struct {
	records  *repositories.SyncRecordRepository
	sync     *SyncService
	outbound *OutboundService
}

func NewRetryService(records *repositories.SyncRecordRepository, sync *SyncService, outbound *OutboundService) *RetryService {
	return &RetryService{records: records, sync: sync, outbound: outbound}
}

// Retry reschedules or re-executes a single record. Without force it only
// flips a failed record back to pending with an immediate retry slot, and the
// scheduler's next scan does the actual work. With force the reconstructed
// action runs synchronously, and stuck pending records become eligible too.
// Records in the terminal success state are never touched, force or not.
func (r *RetryService) Retry(ctx context.Context, id uint, force bool) (RetryOutcome, error) {
	rec, err := r.records.FindByID(id)
	if err != nil {
		return RetryOutcome{}, err
	}
	if rec == nil {
		return RetryOutcome{}, fmt.Errorf("sync record %d: %w", id, ErrEntityNotFound)
	}

	out := RetryOutcome{RecordID: rec.ID, EntityType: rec.EntityType, Direction: rec.Direction}

	if rec.Terminal() {
		return out, fmt.Errorf("%w: record %d already completed", ErrNonRetryable, id)
	}

	if !force {
		if rec.Status != models.SyncFailed {
			return out, fmt.Errorf("%w: record %d is %s, not failed", ErrValidation, id, rec.Status)
		}
		if err := r.records.Requeue(rec.ID); err != nil {
			return out, err
		}
		metrics.RetryAttempts.WithLabelValues("requeued").Inc()
		out.Requeued = true
		out.Message = "requeued for next scan"
		return out, nil
	}

	// Outbound pushes own their record bookkeeping; marking again here
	// would double-count the failure backoff.
	if rec.Direction == models.DirectionOutbound && rec.EntityType == models.EntitySale {
		if err := r.outbound.Push(ctx, rec.ID); err != nil {
			metrics.RetryAttempts.WithLabelValues("failed").Inc()
			out.Message = err.Error()
			return out, err
		}
		metrics.RetryAttempts.WithLabelValues("success").Inc()
		out.Succeeded = true
		return out, nil
	}

	if err := r.execute(ctx, rec); err != nil {
		if recErr := r.records.MarkFailure(rec.ID, err); recErr != nil {
			logger.Error("retry: failed to record failure", "record_id", rec.ID, "error", recErr)
		}
		metrics.RetryAttempts.WithLabelValues("failed").Inc()
		out.Message = err.Error()
		return out, err
	}

	if err := r.records.MarkSuccess(rec.ID, ""); err != nil {
		return out, err
	}
	metrics.RetryAttempts.WithLabelValues("success").Inc()
	out.Succeeded = true
	return out, nil
}

// RetryAll requeues every failed record matching the filter so the scheduler
// picks them up on its next scan. Pending records are already queued and are
// left alone.
func (r *RetryService) RetryAll(ctx context.Context, f repositories.PendingFilter) ([]RetryOutcome, error) {
	recs, err := r.records.Pending(f)
	if err != nil {
		return nil, err
	}

	out := make([]RetryOutcome, 0, len(recs))
	for _, rec := range recs {
		if rec.Status != models.SyncFailed {
			continue
		}
		res, err := r.Retry(ctx, rec.ID, false)
		if err != nil && res.Message == "" {
			res.Message = err.Error()
		}
		out = append(out, res)
	}
	return out, nil
}

// ScanDue is the scheduler entry point and the place queued work actually
// runs: every record whose next_retry_at has elapsed gets its reconstructed
// action executed. Fresh pending records never show up here because their
// retry slot is born one grace period out; anything pending that does appear
// is either an operator requeue or an orphan left by a crash.
func (r *RetryService) ScanDue(ctx context.Context, limit int) (int, error) {
	due, err := r.records.Due(time.Now(), limit, repositories.PendingFilter{})
	if err != nil {
		return 0, err
	}

	retried := 0
	for _, rec := range due {
		if _, err := r.Retry(ctx, rec.ID, true); err != nil {
			logger.Warn("retry: scheduled retry failed", "record_id", rec.ID, "error", err)
			continue
		}
		retried++
	}
	return retried, nil
}

// execute reconstructs the record's original action from its payload.
func (r *RetryService) execute(ctx context.Context, rec *models.SyncRecord) error {
	switch {
	case rec.Direction == models.DirectionInbound &&
		(rec.EntityType == models.EntityProductBatch || rec.EntityType == models.EntityProduct):
		// Inbound work is re-derived, not replayed: an incremental sync of
		// the payload's warehouse converges on the same end state whatever
		// the original item was.
		var p struct {
			WarehouseID string `json:"warehouse_id"`
		}
		if err := json.Unmarshal([]byte(rec.Payload), &p); err != nil || p.WarehouseID == "" {
			return fmt.Errorf("%w: record %d has no reconstructable warehouse", ErrNonRetryable, rec.ID)
		}
		_, err := r.sync.SyncWarehouse(ctx, p.WarehouseID, SyncOptions{})
		return err

	default:
		return fmt.Errorf("%w: no retry action for %s/%s", ErrNonRetryable, rec.EntityType, rec.Direction)
	}
}
