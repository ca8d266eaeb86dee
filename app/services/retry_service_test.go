package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shashiranjanraj/kirana/app/models"
	"github.com/shashiranjanraj/kirana/app/repositories"
	"github.com/shashiranjanraj/kirana/pkg/erp"
)

func TestRetryUnknownRecord(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.retry.Retry(context.Background(), 9999, false)
	require.ErrorIs(t, err, ErrEntityNotFound)
}

func TestRetryTerminalRecordRejected(t *testing.T) {
	env := newTestEnv(t)
	rec, err := env.records.Start(models.EntityProduct, "w1:e1", models.DirectionInbound, `{"warehouse_id":"w1"}`)
	require.NoError(t, err)
	require.NoError(t, env.records.MarkSuccess(rec.ID, ""))

	// Completed records stay completed, force or not.
	_, err = env.retry.Retry(context.Background(), rec.ID, false)
	require.ErrorIs(t, err, ErrNonRetryable)
	_, err = env.retry.Retry(context.Background(), rec.ID, true)
	require.ErrorIs(t, err, ErrNonRetryable)
}

func TestRetryPendingRequiresForce(t *testing.T) {
	env := newTestEnv(t)
	seedWarehouse(env, "w1", extProduct("e1", 5))

	rec, err := env.records.Start(models.EntityProduct, "w1:e1", models.DirectionInbound, `{"warehouse_id":"w1"}`)
	require.NoError(t, err)

	_, err = env.retry.Retry(context.Background(), rec.ID, false)
	require.ErrorIs(t, err, ErrValidation)

	out, err := env.retry.Retry(context.Background(), rec.ID, true)
	require.NoError(t, err)
	assert.True(t, out.Succeeded)
	assert.Equal(t, models.SyncSuccess, env.recordByID(t, rec.ID).Status)
}

func TestRetryWithoutForceOnlyRequeues(t *testing.T) {
	env := newTestEnv(t)
	env.source.SetAvailable(false)

	_, err := env.sync.SyncWarehouse(context.Background(), "w1", SyncOptions{})
	require.ErrorIs(t, err, ErrConnectionUnavailable)
	failed := env.lastRecord(t, models.EntityProductBatch, models.DirectionInbound)
	require.Equal(t, models.SyncFailed, failed.Status)

	env.source.SetAvailable(true)
	seedWarehouse(env, "w1", extProduct("e1", 4))
	connects := env.source.ConnectCalls

	out, err := env.retry.Retry(context.Background(), failed.ID, false)
	require.NoError(t, err)
	assert.True(t, out.Requeued)
	assert.False(t, out.Succeeded)

	// The record is back in the queue with an immediate slot; no work ran.
	after := env.recordByID(t, failed.ID)
	assert.Equal(t, models.SyncPending, after.Status)
	require.NotNil(t, after.NextRetryAt)
	assert.False(t, after.NextRetryAt.After(time.Now()))
	assert.Equal(t, connects, env.source.ConnectCalls)

	p, err := env.products.FindBySyncID("w1:e1")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestRequeuedRecordRunsOnNextScan(t *testing.T) {
	env := newTestEnv(t)
	env.source.SetAvailable(false)

	_, err := env.sync.SyncWarehouse(context.Background(), "w1", SyncOptions{})
	require.ErrorIs(t, err, ErrConnectionUnavailable)
	failed := env.lastRecord(t, models.EntityProductBatch, models.DirectionInbound)

	env.source.SetAvailable(true)
	seedWarehouse(env, "w1", extProduct("e1", 4))

	_, err = env.retry.Retry(context.Background(), failed.ID, false)
	require.NoError(t, err)

	retried, err := env.retry.ScanDue(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, retried)
	assert.Equal(t, models.SyncSuccess, env.recordByID(t, failed.ID).Status)

	p, err := env.products.FindBySyncID("w1:e1")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, 4, p.Stock)
}

func TestRetryForceUnreconstructablePayload(t *testing.T) {
	env := newTestEnv(t)
	rec, err := env.records.Start(models.EntityProduct, "w1:e1", models.DirectionInbound, "not json")
	require.NoError(t, err)
	require.NoError(t, env.records.MarkFailure(rec.ID, assert.AnError))

	_, err = env.retry.Retry(context.Background(), rec.ID, true)
	require.ErrorIs(t, err, ErrNonRetryable)

	// The failed attempt is bookkept like any other failure.
	assert.Equal(t, 2, env.recordByID(t, rec.ID).RetryCount)
}

func TestRetryForceReconstructsInboundSync(t *testing.T) {
	env := newTestEnv(t)
	env.source.SetAvailable(false)

	_, err := env.sync.SyncWarehouse(context.Background(), "w1", SyncOptions{})
	require.ErrorIs(t, err, ErrConnectionUnavailable)
	failed := env.lastRecord(t, models.EntityProductBatch, models.DirectionInbound)
	require.Equal(t, models.SyncFailed, failed.Status)

	env.source.SetAvailable(true)
	seedWarehouse(env, "w1", extProduct("e1", 4))

	out, err := env.retry.Retry(context.Background(), failed.ID, true)
	require.NoError(t, err)
	assert.True(t, out.Succeeded)
	assert.Equal(t, models.SyncSuccess, env.recordByID(t, failed.ID).Status)

	p, err := env.products.FindBySyncID("w1:e1")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, 4, p.Stock)
}

func TestRetryForceOutboundDelegatesToPush(t *testing.T) {
	env := newTestEnv(t)
	env.source.SetAvailable(false)

	rec, err := env.outbound.QueuePush(context.Background(), 1, []erp.StockUpdate{{ExternalID: "e1", Delta: -2}})
	require.NoError(t, err)
	require.Equal(t, models.SyncFailed, env.recordByID(t, rec.ID).Status)
	require.Equal(t, 1, env.recordByID(t, rec.ID).RetryCount)

	env.source.SetAvailable(true)

	out, err := env.retry.Retry(context.Background(), rec.ID, true)
	require.NoError(t, err)
	assert.True(t, out.Succeeded)
	assert.Equal(t, -2, env.source.PushedDeltas["e1"])

	// The push owns its record; the retry wrapper must not bump the count
	// again on top of it.
	after := env.recordByID(t, rec.ID)
	assert.Equal(t, models.SyncSuccess, after.Status)
	assert.Equal(t, 1, after.RetryCount)
}

func TestRetryAllRequeuesOnlyFailed(t *testing.T) {
	env := newTestEnv(t)
	env.source.SetAvailable(false)

	failedRec, err := env.outbound.QueuePush(context.Background(), 1, []erp.StockUpdate{{ExternalID: "e1", Delta: -1}})
	require.NoError(t, err)
	pendingRec, err := env.records.Start(models.EntitySale, "2", models.DirectionOutbound, `{"sale_id":2}`)
	require.NoError(t, err)

	env.source.SetAvailable(true)

	outcomes, err := env.retry.RetryAll(context.Background(), repositories.PendingFilter{})
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, failedRec.ID, outcomes[0].RecordID)
	assert.True(t, outcomes[0].Requeued)
	assert.False(t, outcomes[0].Succeeded)

	// The failed record went back to pending; nothing was delivered yet, and
	// the record that was already pending kept its original schedule.
	assert.Equal(t, models.SyncPending, env.recordByID(t, failedRec.ID).Status)
	assert.Equal(t, 0, env.source.PushedDeltas["e1"])
	assert.WithinDuration(t, *pendingRec.NextRetryAt, *env.recordByID(t, pendingRec.ID).NextRetryAt, time.Second)
}

func TestScanDueRetriesElapsedRecords(t *testing.T) {
	env := newTestEnv(t)
	seedWarehouse(env, "w1", extProduct("e1", 5))

	rec, err := env.records.Start(models.EntityProduct, "w1:e1", models.DirectionInbound, `{"warehouse_id":"w1"}`)
	require.NoError(t, err)
	require.NoError(t, env.records.MarkFailure(rec.ID, assert.AnError))

	// Pull the scheduled attempt into the past.
	past := time.Now().Add(-time.Minute)
	require.NoError(t, env.db.Model(&models.SyncRecord{}).Where("id = ?", rec.ID).Update("next_retry_at", past).Error)

	retried, err := env.retry.ScanDue(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, retried)
	assert.Equal(t, models.SyncSuccess, env.recordByID(t, rec.ID).Status)
}

func TestScanDueLeavesFreshPendingAlone(t *testing.T) {
	env := newTestEnv(t)
	seedWarehouse(env, "w1", extProduct("e1", 5))

	rec, err := env.records.Start(models.EntityProduct, "w1:e1", models.DirectionInbound, `{"warehouse_id":"w1"}`)
	require.NoError(t, err)

	// A record that just started is inside its orphan grace period.
	retried, err := env.retry.ScanDue(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, retried)
	assert.Equal(t, models.SyncPending, env.recordByID(t, rec.ID).Status)
}

func TestScanDueRecoversOrphanedPending(t *testing.T) {
	env := newTestEnv(t)
	seedWarehouse(env, "w1", extProduct("e1", 5))

	rec, err := env.records.Start(models.EntityProduct, "w1:e1", models.DirectionInbound, `{"warehouse_id":"w1"}`)
	require.NoError(t, err)

	// Shift the whole record an hour into the past, as if the process died
	// mid-flight an hour ago. Nothing ever reschedules it.
	require.NoError(t, env.db.Model(&models.SyncRecord{}).Where("id = ?", rec.ID).Updates(map[string]interface{}{
		"started_at":    rec.StartedAt.Add(-time.Hour),
		"next_retry_at": rec.NextRetryAt.Add(-time.Hour),
	}).Error)

	retried, err := env.retry.ScanDue(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, retried)
	assert.Equal(t, models.SyncSuccess, env.recordByID(t, rec.ID).Status)
}

type failingEnqueuer struct{}

func (failingEnqueuer) Enqueue(string, []byte) error { return assert.AnError }

func TestScanDueDeliversPushWhoseEnqueueFailed(t *testing.T) {
	env := newTestEnv(t)
	out := NewOutboundService(env.records, env.source, failingEnqueuer{})

	rec, err := out.QueuePush(context.Background(), 7, []erp.StockUpdate{{ExternalID: "e1", Delta: -2}})
	require.NoError(t, err)
	require.Equal(t, models.SyncPending, env.recordByID(t, rec.ID).Status)

	// Not due yet; the delivery could still be in flight.
	retried, err := env.retry.ScanDue(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, retried)

	// Once the grace elapses the scanner delivers the orphaned push itself.
	require.NoError(t, env.db.Model(&models.SyncRecord{}).Where("id = ?", rec.ID).Updates(map[string]interface{}{
		"started_at":    rec.StartedAt.Add(-time.Hour),
		"next_retry_at": rec.NextRetryAt.Add(-time.Hour),
	}).Error)

	retried, err = env.retry.ScanDue(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, retried)
	assert.Equal(t, models.SyncSuccess, env.recordByID(t, rec.ID).Status)
	assert.Equal(t, -2, env.source.PushedDeltas["e1"])
}
