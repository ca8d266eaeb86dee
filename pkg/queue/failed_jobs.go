package queue

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// FailedJobRecord is the database row persisted for a job that exhausted its
// retries, so failures survive a restart and can be inspected later.
type FailedJobRecord struct {
	ID       uint      `gorm:"primaryKey;autoIncrement"`
	JobType  string    `gorm:"size:255;not null;index"`
	Payload  string    `gorm:"type:text;not null"`
	Error    string    `gorm:"type:text"`
	Attempts int       `gorm:"not null;default:0"`
	FailedAt time.Time `gorm:"autoCreateTime"`
}

func (FailedJobRecord) TableName() string { return "kirana_failed_jobs" }

// UseDB configures the manager to persist failed jobs. Call once at boot
// after the database is connected.
func (m *Manager) UseDB(db *gorm.DB) error {
	if err := db.AutoMigrate(&FailedJobRecord{}); err != nil {
		return fmt.Errorf("queue: migrate failed jobs table: %w", err)
	}
	m.mu.Lock()
	m.failedDB = db
	m.mu.Unlock()
	return nil
}

// persistFailed appends the failure in memory and, when a database is
// configured, writes it there too.
func (m *Manager) persistFailed(name string, payload []byte, lastErr error, attempts int) {
	m.mu.Lock()
	m.failed = append(m.failed, FailedJob{
		Job: name, Payload: payload, Err: lastErr, FailedAt: time.Now(), Attempts: attempts,
	})
	db := m.failedDB
	m.mu.Unlock()

	if db == nil {
		return
	}

	msg := ""
	if lastErr != nil {
		msg = lastErr.Error()
	}
	record := FailedJobRecord{
		JobType:  name,
		Payload:  string(payload),
		Error:    msg,
		Attempts: attempts,
		FailedAt: time.Now(),
	}
	if err := db.Create(&record).Error; err != nil {
		fmt.Printf("queue: failed to persist failed job %s: %v\n", name, err)
	}
}
