package repositories

import (
	"errors"
	"fmt"
	"time"

	"github.com/shashiranjanraj/kirana/app/models"
	"gorm.io/gorm"
)

const maxStoredErrorLen = 500

// pendingGrace is how long a pending record may sit untouched before the
// retry scanner treats it as orphaned by a crash. Every record is born with
// next_retry_at one grace period out, so an orphan becomes due on its own
// without anyone having to reschedule it.
const pendingGrace = 10 * time.Minute

// Pagination is the metadata returned with paginated listings.
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// SyncRecordRepository owns the sync bookkeeping table and its state machine:
// pending → success (terminal) or pending → failed → pending (retry) → …
type SyncRecordRepository struct {
	db *gorm.DB

	backoffBase time.Duration
	backoffCap  int
}

// NewSyncRecordRepository builds the store. backoffBase and backoffCap drive
// the failure backoff: next_retry_at = now + base * 2^min(retry_count, cap).
func NewSyncRecordRepository(db *gorm.DB, backoffBase time.Duration, backoffCap int) *SyncRecordRepository {
	if backoffBase <= 0 {
		backoffBase = 30 * time.Second
	}
	if backoffCap <= 0 {
		backoffCap = 6
	}
	return &SyncRecordRepository{db: db, backoffBase: backoffBase, backoffCap: backoffCap}
}

// Start creates the pending record for one logical sync unit. Called before
// any side effect of that unit is attempted. The record carries a retry
// schedule from birth: if the unit completes normally the schedule is cleared
// or replaced, and if the process dies mid-flight the scanner finds the
// orphan once the grace period elapses.
func (r *SyncRecordRepository) Start(entityType, entityID, direction, payload string) (*models.SyncRecord, error) {
	now := time.Now()
	next := now.Add(pendingGrace)
	rec := &models.SyncRecord{
		EntityType:  entityType,
		EntityID:    entityID,
		Direction:   direction,
		Status:      models.SyncPending,
		Payload:     payload,
		StartedAt:   now,
		NextRetryAt: &next,
	}
	if err := r.db.Create(rec).Error; err != nil {
		return nil, fmt.Errorf("start sync record %s/%s: %w", entityType, entityID, err)
	}
	return rec, nil
}

// MarkSuccess transitions the record to its terminal success state. Calling
// it on an already successful record is a no-op, so replays cannot clobber
// the original completion time.
func (r *SyncRecordRepository) MarkSuccess(id uint, resultPayload string) error {
	rec, err := r.FindByID(id)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("sync record %d: %w", id, gorm.ErrRecordNotFound)
	}
	if rec.Terminal() {
		return nil
	}

	now := time.Now()
	updates := map[string]interface{}{
		"status":        models.SyncSuccess,
		"completed_at":  now,
		"error_message": "",
		"next_retry_at": nil,
	}
	if resultPayload != "" {
		updates["payload"] = resultPayload
	}
	if err := r.db.Model(&models.SyncRecord{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return fmt.Errorf("mark sync record %d success: %w", id, err)
	}
	return nil
}

// MarkFailure transitions the record to failed, bumps the retry count and
// schedules the next attempt with exponential backoff. Terminal success
// records are left untouched.
func (r *SyncRecordRepository) MarkFailure(id uint, cause error) error {
	rec, err := r.FindByID(id)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("sync record %d: %w", id, gorm.ErrRecordNotFound)
	}
	if rec.Terminal() {
		return nil
	}

	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if len(msg) > maxStoredErrorLen {
		msg = msg[:maxStoredErrorLen]
	}

	retries := rec.RetryCount + 1
	next := time.Now().Add(r.backoff(retries))

	err = r.db.Model(&models.SyncRecord{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":        models.SyncFailed,
		"retry_count":   retries,
		"next_retry_at": next,
		"error_message": msg,
	}).Error
	if err != nil {
		return fmt.Errorf("mark sync record %d failed: %w", id, err)
	}
	return nil
}

// Requeue flips a failed record back to pending with next_retry_at = now so
// the scheduler picks it up on its next scan.
func (r *SyncRecordRepository) Requeue(id uint) error {
	now := time.Now()
	res := r.db.Model(&models.SyncRecord{}).
		Where("id = ? AND status = ?", id, models.SyncFailed).
		Updates(map[string]interface{}{
			"status":        models.SyncPending,
			"next_retry_at": now,
		})
	if res.Error != nil {
		return fmt.Errorf("requeue sync record %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return errors.New("record is not in a failed state")
	}
	return nil
}

func (r *SyncRecordRepository) FindByID(id uint) (*models.SyncRecord, error) {
	var rec models.SyncRecord
	err := r.db.First(&rec, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sync record %d: %w", id, err)
	}
	return &rec, nil
}

// PendingFilter narrows Pending and Due listings. Zero values match all.
type PendingFilter struct {
	EntityType string
	Direction  string
	OlderThan  time.Duration // only records started at least this long ago
}

// Pending lists records eligible for inspection or manual retry: everything
// still pending plus everything failed.
func (r *SyncRecordRepository) Pending(f PendingFilter) ([]models.SyncRecord, error) {
	q := r.db.Where("status IN ?", []string{models.SyncPending, models.SyncFailed})
	q = applyPendingFilter(q, f)

	var out []models.SyncRecord
	if err := q.Order("started_at").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("pending sync records: %w", err)
	}
	return out, nil
}

// Due lists failed or pending records whose next_retry_at has elapsed,
// ordered soonest first. The table itself is the durable priority queue.
func (r *SyncRecordRepository) Due(now time.Time, limit int, f PendingFilter) ([]models.SyncRecord, error) {
	q := r.db.
		Where("status IN ?", []string{models.SyncPending, models.SyncFailed}).
		Where("next_retry_at IS NOT NULL AND next_retry_at <= ?", now)
	q = applyPendingFilter(q, f)
	if limit > 0 {
		q = q.Limit(limit)
	}

	var out []models.SyncRecord
	if err := q.Order("next_retry_at").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("due sync records: %w", err)
	}
	return out, nil
}

// History returns a page of records, newest first.
func (r *SyncRecordRepository) History(entityType, direction, status string, page, limit int) ([]models.SyncRecord, Pagination, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 200 {
		limit = 50
	}

	q := r.db.Model(&models.SyncRecord{})
	if entityType != "" {
		q = q.Where("entity_type = ?", entityType)
	}
	if direction != "" {
		q = q.Where("direction = ?", direction)
	}
	if status != "" {
		q = q.Where("status = ?", status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, Pagination{}, fmt.Errorf("count sync records: %w", err)
	}

	var out []models.SyncRecord
	err := q.Order("started_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, Pagination{}, fmt.Errorf("list sync records: %w", err)
	}

	pages := int((total + int64(limit) - 1) / int64(limit))
	return out, Pagination{Page: page, Limit: limit, Total: total, TotalPages: pages}, nil
}

// CleanupOld deletes terminal success records older than the cutoff. This is
// retention housekeeping, not a correctness requirement; pending and failed
// records are never touched.
func (r *SyncRecordRepository) CleanupOld(olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	res := r.db.Unscoped().
		Where("status = ? AND completed_at IS NOT NULL AND completed_at < ?", models.SyncSuccess, cutoff).
		Delete(&models.SyncRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("cleanup sync records: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func applyPendingFilter(q *gorm.DB, f PendingFilter) *gorm.DB {
	if f.EntityType != "" {
		q = q.Where("entity_type = ?", f.EntityType)
	}
	if f.Direction != "" {
		q = q.Where("direction = ?", f.Direction)
	}
	if f.OlderThan > 0 {
		q = q.Where("started_at <= ?", time.Now().Add(-f.OlderThan))
	}
	return q
}

func (r *SyncRecordRepository) backoff(retries int) time.Duration {
	exp := retries
	if exp > r.backoffCap {
		exp = r.backoffCap
	}
	return r.backoffBase * (1 << uint(exp))
}
