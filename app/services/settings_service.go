package services

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shashiranjanraj/kirana/app/repositories"
)

// Settings keys the API accepts. Anything else is rejected so stray writes
// cannot grow an untyped config namespace.
const (
	SettingSyncEnabled      = "sync_enabled"
	SettingAutoUpdateOnSale = "auto_update_on_sale"
	SettingSyncIntervalMs   = "sync_interval_ms"
	SettingLastSync         = "last_sync"
)

// MinSyncIntervalMs is the floor for the periodic sync interval. Anything
// lower would hammer the external source.
const MinSyncIntervalMs = 60000

const defaultSyncIntervalMs = 300000

// SettingsService wraps the settings rows with an allow-list and typed
// accessors. last_sync is maintained by the sync engine and is read-only
// through the API.
type SettingsService struct {
	settings *repositories.SettingRepository
}

func NewSettingsService(settings *repositories.SettingRepository) *SettingsService {
	return &SettingsService{settings: settings}
}

// Set validates and stores one setting.
func (s *SettingsService) Set(key, value string) error {
	switch key {
	case SettingSyncEnabled, SettingAutoUpdateOnSale:
		if _, err := strconv.ParseBool(value); err != nil {
			return fmt.Errorf("%w: %s must be a boolean", ErrValidation, key)
		}
	case SettingSyncIntervalMs:
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%w: %s must be an integer", ErrValidation, key)
		}
		if n < MinSyncIntervalMs {
			return fmt.Errorf("%w: %s must be at least %d", ErrValidation, key, MinSyncIntervalMs)
		}
	case SettingLastSync:
		return fmt.Errorf("%w: %s is maintained by the sync engine", ErrValidation, key)
	default:
		return fmt.Errorf("%w: unknown setting %q", ErrValidation, key)
	}
	return s.settings.Set(key, value)
}

// Get returns the raw stored value, falling back to the key's default.
func (s *SettingsService) Get(key string) (string, error) {
	switch key {
	case SettingSyncEnabled, SettingAutoUpdateOnSale:
		return s.settings.Get(key, "true")
	case SettingSyncIntervalMs:
		return s.settings.Get(key, strconv.Itoa(defaultSyncIntervalMs))
	case SettingLastSync:
		return s.settings.Get(key, "")
	default:
		return "", fmt.Errorf("%w: unknown setting %q", ErrValidation, key)
	}
}

// All returns every known setting with defaults applied for unset keys.
func (s *SettingsService) All() (map[string]string, error) {
	out := make(map[string]string, 4)
	for _, key := range []string{SettingSyncEnabled, SettingAutoUpdateOnSale, SettingSyncIntervalMs, SettingLastSync} {
		v, err := s.Get(key)
		if err != nil {
			return nil, err
		}
		out[key] = v
	}
	return out, nil
}

// SyncEnabled reports whether the periodic sync scheduler should run at all.
func (s *SettingsService) SyncEnabled() bool {
	return s.boolSetting(SettingSyncEnabled)
}

// AutoUpdateOnSale reports whether completed sales push their stock deltas
// back to the external source.
func (s *SettingsService) AutoUpdateOnSale() bool {
	return s.boolSetting(SettingAutoUpdateOnSale)
}

// SyncInterval returns the periodic sync interval, never below the floor.
func (s *SettingsService) SyncInterval() time.Duration {
	raw, err := s.Get(SettingSyncIntervalMs)
	if err != nil {
		return time.Duration(defaultSyncIntervalMs) * time.Millisecond
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < MinSyncIntervalMs {
		n = defaultSyncIntervalMs
	}
	return time.Duration(n) * time.Millisecond
}

// LastSync returns the completion time of the most recent successful sync,
// or the zero time when no sync has run yet.
func (s *SettingsService) LastSync() time.Time {
	raw, err := s.Get(SettingLastSync)
	if err != nil || raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

func (s *SettingsService) stampLastSync(t time.Time) error {
	return s.settings.Set(SettingLastSync, t.UTC().Format(time.RFC3339))
}

func (s *SettingsService) boolSetting(key string) bool {
	raw, err := s.Get(key)
	if err != nil {
		return true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return true
	}
	return v
}
