package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shashiranjanraj/kirana/app/models"
	"github.com/shashiranjanraj/kirana/app/repositories"
	"github.com/shashiranjanraj/kirana/pkg/erp"
	"github.com/shashiranjanraj/kirana/pkg/logger"
	"github.com/shashiranjanraj/kirana/pkg/metrics"
)

// JobStockPush is the queue job name for outbound stock pushes.
const JobStockPush = "stock:push"

// Enqueuer hands work to the background queue. pkg/queue provides the Redis
// implementation; a nil enqueuer makes pushes run inline, which keeps tests
// and single-binary deployments simple.
type Enqueuer interface {
	Enqueue(job string, payload []byte) error
}

// StockPushPayload is the durable payload of an outbound sync record. It
// carries everything needed to re-execute the push later, so a retry never
// has to reconstruct state from the sale itself.
type StockPushPayload struct {
	SaleID  uint              `json:"sale_id"`
	Updates []erp.StockUpdate `json:"updates"`
}

// OutboundService pushes local stock deltas back to the external inventory.
// Every push is backed by a sync record created before the network call, so
// a crash between "sale committed" and "push delivered" leaves a pending
// record the retry scanner will pick up.
type OutboundService struct {
	records *repositories.SyncRecordRepository
	source  erp.Client
	jobs    Enqueuer
}

func NewOutboundService(records *repositories.SyncRecordRepository, source erp.Client, jobs Enqueuer) *OutboundService {
	return &OutboundService{records: records, source: source, jobs: jobs}
}

// QueuePush records the outbound intent and schedules its delivery. The sync
// record is committed before the job is enqueued; if enqueueing fails the
// record stays pending and the retry scanner delivers it instead.
func (o *OutboundService) QueuePush(ctx context.Context, saleID uint, updates []erp.StockUpdate) (*models.SyncRecord, error) {
	if len(updates) == 0 {
		return nil, fmt.Errorf("%w: push requires at least one stock update", ErrValidation)
	}

	payload, err := json.Marshal(StockPushPayload{SaleID: saleID, Updates: updates})
	if err != nil {
		return nil, fmt.Errorf("encode push payload: %w", err)
	}

	rec, err := o.records.Start(models.EntitySale, strconv.FormatUint(uint64(saleID), 10), models.DirectionOutbound, string(payload))
	if err != nil {
		return nil, err
	}

	if o.jobs == nil {
		if err := o.Push(ctx, rec.ID); err != nil {
			// The record already carries the failure; the caller's sale
			// stays committed either way.
			logger.Warn("outbound: inline push failed", "record_id", rec.ID, "error", err)
		}
		return rec, nil
	}

	jobPayload, _ := json.Marshal(map[string]uint{"record_id": rec.ID})
	if err := o.jobs.Enqueue(JobStockPush, jobPayload); err != nil {
		logger.Warn("outbound: enqueue failed, retry scanner will deliver", "record_id", rec.ID, "error", err)
	}
	return rec, nil
}

// Push executes the outbound delivery for one sync record. It is safe to
// call repeatedly: a record that already completed is left alone.
func (o *OutboundService) Push(ctx context.Context, recordID uint) error {
	rec, err := o.records.FindByID(recordID)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("sync record %d: %w", recordID, ErrEntityNotFound)
	}
	if rec.Terminal() {
		return nil
	}
	if rec.Direction != models.DirectionOutbound || rec.EntityType != models.EntitySale {
		return fmt.Errorf("%w: record %d is not an outbound sale push", ErrNonRetryable, recordID)
	}

	var payload StockPushPayload
	if err := json.Unmarshal([]byte(rec.Payload), &payload); err != nil || len(payload.Updates) == 0 {
		cause := fmt.Errorf("%w: record %d payload cannot be decoded", ErrNonRetryable, recordID)
		if recErr := o.records.MarkFailure(recordID, cause); recErr != nil {
			logger.Error("outbound: failed to record push failure", "record_id", recordID, "error", recErr)
		}
		return cause
	}

	actor := "sale:" + strconv.FormatUint(uint64(payload.SaleID), 10)
	if err := o.deliver(ctx, payload.Updates, actor); err != nil {
		if recErr := o.records.MarkFailure(recordID, err); recErr != nil {
			logger.Error("outbound: failed to record push failure", "record_id", recordID, "error", recErr)
		}
		metrics.OutboundPushes.WithLabelValues("failed").Inc()
		return err
	}

	if err := o.records.MarkSuccess(recordID, ""); err != nil {
		return err
	}
	metrics.OutboundPushes.WithLabelValues("success").Inc()
	logger.Info("outbound: stock push delivered", "record_id", recordID, "sale_id", payload.SaleID, "updates", len(payload.Updates))
	return nil
}

func (o *OutboundService) deliver(ctx context.Context, updates []erp.StockUpdate, actorID string) error {
	status, err := o.source.CheckConnection(ctx)
	if err != nil || !status.Connected {
		reason := status.Message
		if err != nil {
			reason = err.Error()
		}
		return fmt.Errorf("%w: %s", ErrConnectionUnavailable, reason)
	}
	if err := o.source.Connect(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionUnavailable, err)
	}
	defer func() {
		if err := o.source.Disconnect(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("outbound: disconnect failed", "error", err)
		}
	}()

	results, err := o.source.BulkUpdateStock(ctx, updates, actorID)
	if err != nil {
		if errors.Is(err, erp.ErrUnavailable) {
			return fmt.Errorf("%w: %v", ErrConnectionUnavailable, err)
		}
		return err
	}

	var rejected []string
	for _, res := range results {
		if !res.Success {
			rejected = append(rejected, fmt.Sprintf("%s: %s", res.ExternalID, res.Error))
		}
	}
	if len(rejected) > 0 {
		return fmt.Errorf("external source rejected %d of %d updates: %s", len(rejected), len(updates), strings.Join(rejected, "; "))
	}
	return nil
}
