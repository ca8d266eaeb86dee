package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettingsDefaults(t *testing.T) {
	env := newTestEnv(t)

	all, err := env.settings.All()
	require.NoError(t, err)
	assert.Equal(t, "true", all[SettingSyncEnabled])
	assert.Equal(t, "true", all[SettingAutoUpdateOnSale])
	assert.Equal(t, "300000", all[SettingSyncIntervalMs])
	assert.Equal(t, "", all[SettingLastSync])

	assert.True(t, env.settings.SyncEnabled())
	assert.True(t, env.settings.AutoUpdateOnSale())
	assert.Equal(t, 5*time.Minute, env.settings.SyncInterval())
	assert.True(t, env.settings.LastSync().IsZero())
}

func TestSettingsRejectsUnknownKey(t *testing.T) {
	env := newTestEnv(t)
	err := env.settings.Set("favourite_colour", "blue")
	require.ErrorIs(t, err, ErrValidation)

	_, err = env.settings.Get("favourite_colour")
	require.ErrorIs(t, err, ErrValidation)
}

func TestSettingsLastSyncIsReadOnly(t *testing.T) {
	env := newTestEnv(t)
	err := env.settings.Set(SettingLastSync, time.Now().Format(time.RFC3339))
	require.ErrorIs(t, err, ErrValidation)
}

func TestSettingsBooleanValidation(t *testing.T) {
	env := newTestEnv(t)

	require.ErrorIs(t, env.settings.Set(SettingSyncEnabled, "yes please"), ErrValidation)

	require.NoError(t, env.settings.Set(SettingSyncEnabled, "false"))
	assert.False(t, env.settings.SyncEnabled())

	require.NoError(t, env.settings.Set(SettingAutoUpdateOnSale, "false"))
	assert.False(t, env.settings.AutoUpdateOnSale())
}

func TestSettingsIntervalFloor(t *testing.T) {
	env := newTestEnv(t)

	require.ErrorIs(t, env.settings.Set(SettingSyncIntervalMs, "59999"), ErrValidation)
	require.ErrorIs(t, env.settings.Set(SettingSyncIntervalMs, "soon"), ErrValidation)

	require.NoError(t, env.settings.Set(SettingSyncIntervalMs, "60000"))
	assert.Equal(t, time.Minute, env.settings.SyncInterval())
}

func TestSettingsStampLastSync(t *testing.T) {
	env := newTestEnv(t)

	stamp := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	require.NoError(t, env.settings.stampLastSync(stamp))
	assert.True(t, env.settings.LastSync().Equal(stamp))
}
