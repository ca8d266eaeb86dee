package repositories

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/shashiranjanraj/kirana/app/models"
)

func newRecordRepo(t *testing.T) *SyncRecordRepository {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.SyncRecord{}))

	return NewSyncRecordRepository(db, time.Second, 3)
}

func TestStartCreatesPendingRecord(t *testing.T) {
	repo := newRecordRepo(t)

	rec, err := repo.Start(models.EntityProduct, "w1:e1", models.DirectionInbound, `{"warehouse_id":"w1"}`)
	require.NoError(t, err)
	assert.Equal(t, models.SyncPending, rec.Status)
	assert.Equal(t, 0, rec.RetryCount)
	assert.Nil(t, rec.CompletedAt)
	assert.WithinDuration(t, time.Now(), rec.StartedAt, 5*time.Second)

	// The retry schedule exists from birth so a crash cannot strand the
	// record outside the scanner's view.
	require.NotNil(t, rec.NextRetryAt)
	assert.WithinDuration(t, rec.StartedAt.Add(pendingGrace), *rec.NextRetryAt, time.Second)
}

func TestFreshPendingBecomesDueAfterGrace(t *testing.T) {
	repo := newRecordRepo(t)

	rec, err := repo.Start(models.EntityProduct, "w1:e1", models.DirectionInbound, "{}")
	require.NoError(t, err)

	// Inside the grace period the record is presumed in flight.
	due, err := repo.Due(time.Now(), 10, PendingFilter{})
	require.NoError(t, err)
	assert.Empty(t, due)

	// Past the grace it surfaces on its own, with no one rescheduling it.
	due, err = repo.Due(time.Now().Add(pendingGrace+time.Minute), 10, PendingFilter{})
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, rec.ID, due[0].ID)
}

func TestMarkSuccessIsTerminalAndIdempotent(t *testing.T) {
	repo := newRecordRepo(t)
	rec, err := repo.Start(models.EntityProduct, "w1:e1", models.DirectionInbound, "{}")
	require.NoError(t, err)

	require.NoError(t, repo.MarkSuccess(rec.ID, `{"created":1}`))
	first, err := repo.FindByID(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncSuccess, first.Status)
	assert.Equal(t, `{"created":1}`, first.Payload)
	require.NotNil(t, first.CompletedAt)

	// Neither a replayed success nor a late failure may touch the record.
	require.NoError(t, repo.MarkSuccess(rec.ID, `{"created":2}`))
	require.NoError(t, repo.MarkFailure(rec.ID, errors.New("late failure")))

	after, err := repo.FindByID(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncSuccess, after.Status)
	assert.Equal(t, `{"created":1}`, after.Payload)
	assert.Equal(t, 0, after.RetryCount)
	assert.True(t, after.CompletedAt.Equal(*first.CompletedAt))
}

func TestMarkFailureBackoffGrowsAndCaps(t *testing.T) {
	repo := newRecordRepo(t)
	rec, err := repo.Start(models.EntityProduct, "w1:e1", models.DirectionInbound, "{}")
	require.NoError(t, err)

	// base 1s, cap 3: 2s, 4s, 8s, then pinned at 8s.
	expected := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 8 * time.Second, 8 * time.Second}
	for i, d := range expected {
		before := time.Now()
		require.NoError(t, repo.MarkFailure(rec.ID, errors.New("still down")))

		got, err := repo.FindByID(rec.ID)
		require.NoError(t, err)
		assert.Equal(t, models.SyncFailed, got.Status)
		assert.Equal(t, i+1, got.RetryCount)
		assert.Equal(t, "still down", got.ErrorMessage)
		require.NotNil(t, got.NextRetryAt)
		assert.WithinDuration(t, before.Add(d), *got.NextRetryAt, time.Second)
	}
}

func TestMarkFailureTruncatesLongErrors(t *testing.T) {
	repo := newRecordRepo(t)
	rec, err := repo.Start(models.EntityProduct, "w1:e1", models.DirectionInbound, "{}")
	require.NoError(t, err)

	long := make([]byte, 2000)
	for i := range long {
		long[i] = 'x'
	}
	require.NoError(t, repo.MarkFailure(rec.ID, errors.New(string(long))))

	got, err := repo.FindByID(rec.ID)
	require.NoError(t, err)
	assert.Len(t, got.ErrorMessage, 500)
}

func TestRequeueOnlyFromFailed(t *testing.T) {
	repo := newRecordRepo(t)
	rec, err := repo.Start(models.EntityProduct, "w1:e1", models.DirectionInbound, "{}")
	require.NoError(t, err)

	require.Error(t, repo.Requeue(rec.ID))

	require.NoError(t, repo.MarkFailure(rec.ID, errors.New("down")))
	require.NoError(t, repo.Requeue(rec.ID))

	got, err := repo.FindByID(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncPending, got.Status)
	require.NotNil(t, got.NextRetryAt)
	assert.False(t, got.NextRetryAt.After(time.Now()))
}

func TestDueOrdersByNextRetry(t *testing.T) {
	repo := newRecordRepo(t)

	mk := func(entityID string, next time.Time) uint {
		rec, err := repo.Start(models.EntityProduct, entityID, models.DirectionInbound, "{}")
		require.NoError(t, err)
		require.NoError(t, repo.db.Model(&models.SyncRecord{}).Where("id = ?", rec.ID).Updates(map[string]interface{}{
			"status":        models.SyncFailed,
			"next_retry_at": next,
		}).Error)
		return rec.ID
	}

	now := time.Now()
	later := mk("w1:later", now.Add(-time.Minute))
	soonest := mk("w1:soonest", now.Add(-time.Hour))
	future := mk("w1:future", now.Add(time.Hour))

	// A freshly started record sits inside its grace period, so it is not
	// due at the current horizon.
	_, err := repo.Start(models.EntityProduct, "w1:fresh", models.DirectionInbound, "{}")
	require.NoError(t, err)

	due, err := repo.Due(now, 10, PendingFilter{})
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, soonest, due[0].ID)
	assert.Equal(t, later, due[1].ID)

	due, err = repo.Due(now, 1, PendingFilter{})
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, soonest, due[0].ID)

	due, err = repo.Due(now.Add(2*time.Hour), 10, PendingFilter{})
	require.NoError(t, err)
	assert.Len(t, due, 4)
	_ = future
}

func TestPendingFilters(t *testing.T) {
	repo := newRecordRepo(t)

	_, err := repo.Start(models.EntityProduct, "w1:e1", models.DirectionInbound, "{}")
	require.NoError(t, err)
	sale, err := repo.Start(models.EntitySale, "42", models.DirectionOutbound, "{}")
	require.NoError(t, err)
	done, err := repo.Start(models.EntityProduct, "w1:e2", models.DirectionInbound, "{}")
	require.NoError(t, err)
	require.NoError(t, repo.MarkSuccess(done.ID, ""))

	all, err := repo.Pending(PendingFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	outbound, err := repo.Pending(PendingFilter{Direction: models.DirectionOutbound})
	require.NoError(t, err)
	require.Len(t, outbound, 1)
	assert.Equal(t, sale.ID, outbound[0].ID)

	none, err := repo.Pending(PendingFilter{EntityType: models.EntityProductBatch})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestHistoryPaginatesNewestFirst(t *testing.T) {
	repo := newRecordRepo(t)

	ids := make([]uint, 0, 5)
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		rec, err := repo.Start(models.EntityProduct, "w1:e1", models.DirectionInbound, "{}")
		require.NoError(t, err)
		// Spread started_at so ordering is deterministic.
		require.NoError(t, repo.db.Model(&models.SyncRecord{}).Where("id = ?", rec.ID).
			Update("started_at", base.Add(time.Duration(i)*time.Minute)).Error)
		ids = append(ids, rec.ID)
	}

	page1, pg, err := repo.History("", "", "", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), pg.Total)
	assert.Equal(t, 3, pg.TotalPages)
	require.Len(t, page1, 2)
	assert.Equal(t, ids[4], page1[0].ID)
	assert.Equal(t, ids[3], page1[1].ID)

	page3, _, err := repo.History("", "", "", 3, 2)
	require.NoError(t, err)
	require.Len(t, page3, 1)
	assert.Equal(t, ids[0], page3[0].ID)

	failedOnly, _, err := repo.History("", "", models.SyncFailed, 1, 50)
	require.NoError(t, err)
	assert.Empty(t, failedOnly)
}

func TestCleanupOldRemovesOnlyOldSuccesses(t *testing.T) {
	repo := newRecordRepo(t)

	oldDone, err := repo.Start(models.EntityProduct, "w1:e1", models.DirectionInbound, "{}")
	require.NoError(t, err)
	require.NoError(t, repo.MarkSuccess(oldDone.ID, ""))
	require.NoError(t, repo.db.Model(&models.SyncRecord{}).Where("id = ?", oldDone.ID).
		Update("completed_at", time.Now().Add(-48*time.Hour)).Error)

	freshDone, err := repo.Start(models.EntityProduct, "w1:e2", models.DirectionInbound, "{}")
	require.NoError(t, err)
	require.NoError(t, repo.MarkSuccess(freshDone.ID, ""))

	oldFailed, err := repo.Start(models.EntityProduct, "w1:e3", models.DirectionInbound, "{}")
	require.NoError(t, err)
	require.NoError(t, repo.MarkFailure(oldFailed.ID, errors.New("down")))

	deleted, err := repo.CleanupOld(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	gone, err := repo.FindByID(oldDone.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
	kept, err := repo.FindByID(freshDone.ID)
	require.NoError(t, err)
	assert.NotNil(t, kept)
	failed, err := repo.FindByID(oldFailed.ID)
	require.NoError(t, err)
	assert.NotNil(t, failed)
}
