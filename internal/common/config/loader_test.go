package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const minimalConfig = `
database:
  postgres:
    host: localhost
    database: clinic
    user: clinic
`

func TestLoadFromFile_AppliesDefaults(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, BackendPostgres, cfg.Sequence.Backend)
	assert.Equal(t, BackendPostgres, cfg.Notifications.RecordBackend)
	assert.Equal(t, 200, cfg.Scheduler.BatchSize)
	assert.Equal(t, "Asia/Colombo", cfg.Scheduler.Timezone)
	assert.Equal(t, "06:00", cfg.Scheduler.RundownAt)
	assert.Equal(t, 10*time.Minute, GetDuration(cfg.Scheduler.Tick))
	assert.Equal(t, 24*time.Hour, GetDuration(cfg.Scheduler.ReminderOffset))
	assert.Equal(t, "no-reply@clinic.local", cfg.Notifications.Email.FromEmail)
	assert.Equal(t, 5432, cfg.Database.Postgres.Port)
	assert.Equal(t, "disable", cfg.Database.Postgres.SSLMode)
}

func TestLoadFromFile_ExpandsEnvPlaceholders(t *testing.T) {
	t.Setenv("CLINIC_TEST_DB_HOST", "db.internal")
	cfg, err := LoadFromFile(writeConfig(t, `
database:
  postgres:
    host: ${CLINIC_TEST_DB_HOST}
    database: clinic
    user: clinic
`))
	require.NoError(t, err)
	assert.Equal(t, "db.internal", cfg.Database.Postgres.Host)
}

func TestLoadFromFile_Validation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "missing postgres host",
			body:    "database:\n  postgres:\n    database: clinic\n    user: clinic\n",
			wantErr: "database.postgres.host is required",
		},
		{
			name:    "redis sequence backend without address",
			body:    minimalConfig + "sequence:\n  backend: redis\n",
			wantErr: "database.redis.address is required",
		},
		{
			name:    "redis is not a record backend",
			body:    minimalConfig + "notifications:\n  record_backend: redis\n",
			wantErr: "does not support redis",
		},
		{
			name:    "unknown email provider",
			body:    minimalConfig + "notifications:\n  email:\n    provider: pigeon\n",
			wantErr: "unsupported notifications.email.provider",
		},
		{
			name:    "ses without region",
			body:    minimalConfig + "notifications:\n  email:\n    provider: ses\n",
			wantErr: "notifications.aws.region is required",
		},
		{
			name:    "bad rundown clock",
			body:    minimalConfig + "scheduler:\n  rundown_at: six\n",
			wantErr: "scheduler.rundown_at",
		},
		{
			name:    "camunda enabled without broker",
			body:    minimalConfig + "camunda:\n  enabled: true\n",
			wantErr: "camunda.broker_address is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromFile(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseClock(t *testing.T) {
	d, err := ParseClock("06:30")
	require.NoError(t, err)
	assert.Equal(t, 6*time.Hour+30*time.Minute, d)

	_, err = ParseClock("25:00")
	assert.Error(t, err)
}

func TestGetWorkerConfig_FallsBackToDefaults(t *testing.T) {
	cfg := &Config{Workers: map[string]WorkerConfig{
		"allocate-code": {Enabled: false, MaxJobsActive: 2},
	}}

	assert.False(t, GetWorkerConfig(cfg, "allocate-code").Enabled)
	def := GetWorkerConfig(cfg, "send-notification")
	assert.True(t, def.Enabled)
	assert.Equal(t, 5, def.MaxJobsActive)
}
