package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, int32(8188), cfg.HTTP.Port)
	assert.Equal(t, DefaultDatabasePath, cfg.Database.Path)
	assert.Equal(t, "auto", cfg.Import.Delimiter)
	assert.True(t, cfg.Import.HasHeaderRow)
	assert.Equal(t, 1000, cfg.Export.Limit)
	assert.Equal(t, "=", cfg.Export.SanitizeChars)
	assert.Equal(t, 72*time.Hour, cfg.Tasks.UploadRetention)
	assert.Equal(t, []string{"Member"}, cfg.ScheduledExport.Classes)
	assert.Empty(t, cfg.Auth.TokenHash)
}

func TestNewConfigFromEnv(t *testing.T) {
	t.Setenv("IMPORT_DELIMITER", ";")
	t.Setenv("EXPORT_LIMIT", "50")
	t.Setenv("SCHEDULED_EXPORT_CLASSES", "Member, Group,,")
	t.Setenv("LOG_FORMAT", "json")

	cfg := NewConfig()

	assert.Equal(t, ";", cfg.Import.Delimiter)
	assert.Equal(t, 50, cfg.Export.Limit)
	assert.Equal(t, []string{"Member", "Group"}, cfg.ScheduledExport.Classes)
	assert.Equal(t, "json", cfg.Log.Format)
}
