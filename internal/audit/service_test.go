package audit

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mrlokans/sheetloader/internal/bulkloader"
	"github.com/mrlokans/sheetloader/internal/database"
	auditRepo "github.com/mrlokans/sheetloader/internal/database/audit"
	"github.com/mrlokans/sheetloader/internal/entities"
)

func setupTestService(t *testing.T) (*Service, *database.Database) {
	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "audit.db"), database.WithLogLevel(logger.Silent))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo := auditRepo.NewRepository(db.DB)
	svc := NewService(repo)

	return svc, db
}

func importCompanies(t *testing.T, db *database.Database, preview bool, names ...string) *bulkloader.Result {
	t.Helper()
	records := make([]*bulkloader.Record, len(names))
	for i, name := range names {
		records[i] = bulkloader.RecordFrom("Name", name)
	}
	l := bulkloader.New(db.Store(), bulkloader.DefaultOptions(entities.ClassCompany))
	run := l.ProcessData
	if preview {
		run = l.PreviewData
	}
	result, err := run(context.Background(), records)
	require.NoError(t, err)
	return result
}

func findByAction(t *testing.T, db *gorm.DB, action string) entities.AuditEvent {
	t.Helper()
	var event entities.AuditEvent
	require.NoError(t, db.Where("action = ?", action).First(&event).Error)
	return event
}

func TestService_Log(t *testing.T) {
	svc, db := setupTestService(t)

	event := &entities.AuditEvent{
		EventType:   entities.AuditEventImport,
		Action:      "test_import",
		Description: "Test import event",
		Status:      entities.AuditStatusSuccess,
	}

	err := svc.Log(event)
	require.NoError(t, err)

	var saved entities.AuditEvent
	err = db.DB.First(&saved, event.ID).Error
	require.NoError(t, err)
	assert.Equal(t, "test_import", saved.Action)
}

func TestService_LogImport(t *testing.T) {
	svc, db := setupTestService(t)

	t.Run("successful import", func(t *testing.T) {
		runID := uint(3)
		result := importCompanies(t, db, false, "Acme", "Globex")
		svc.LogImport(entities.ImportOriginHTTP, entities.ClassCompany, &runID, result, nil)
		svc.Wait()

		event := findByAction(t, db.DB, "http_import")
		assert.Equal(t, entities.AuditEventImport, event.EventType)
		assert.Equal(t, entities.AuditStatusSuccess, event.Status)
		assert.Equal(t, "Imported 2 records.", event.Description)
		assert.Equal(t, entities.ClassCompany, event.EntityType)
		assert.Equal(t, entities.ImportOriginHTTP, event.Origin)
		assert.Equal(t, 2, event.Rows)
		assert.JSONEq(t, `{"created":2,"updated":0,"deleted":0}`, event.Metadata)
		require.NotNil(t, event.ImportRunID)
		assert.Equal(t, runID, *event.ImportRunID)
	})

	t.Run("preview", func(t *testing.T) {
		result := importCompanies(t, db, true, "Initech")
		svc.LogImport(entities.ImportOriginCLI, entities.ClassCompany, nil, result, nil)
		svc.Wait()

		event := findByAction(t, db.DB, "cli_preview")
		assert.Equal(t, entities.AuditEventPreview, event.EventType)
	})

	t.Run("failed import", func(t *testing.T) {
		svc.LogImport(entities.ImportOriginTask, entities.ClassMember, nil, nil, errors.New("cannot read file"))
		svc.Wait()

		event := findByAction(t, db.DB, "task_import")
		assert.Equal(t, entities.AuditStatusFailed, event.Status)
		assert.Equal(t, "Import of Member failed", event.Description)
		assert.Contains(t, event.ErrorMsg, "cannot read file")
	})
}

func TestService_LogExport(t *testing.T) {
	svc, db := setupTestService(t)

	svc.LogExport(entities.ImportOriginHTTP, entities.ClassMember, "export-Member-20240101_1200.csv", 12, nil)
	svc.LogExport(entities.ImportOriginTask, entities.ClassGroup, "", 0, errors.New("disk full"))
	svc.Wait()

	event := findByAction(t, db.DB, "http_export")
	assert.Equal(t, entities.AuditEventExport, event.EventType)
	assert.Equal(t, "export-Member-20240101_1200.csv", event.Description)
	assert.Equal(t, 12, event.Rows)
	assert.Equal(t, entities.ImportOriginHTTP, event.Origin)

	failed := findByAction(t, db.DB, "task_export")
	assert.Equal(t, entities.AuditStatusFailed, failed.Status)
	assert.Equal(t, "disk full", failed.ErrorMsg)
}

func TestService_LogSampleAndCleanup(t *testing.T) {
	svc, db := setupTestService(t)

	svc.LogSample(entities.ImportOriginCLI, entities.ClassGroup, "csv")
	svc.LogCleanup("cleanup_uploads", "Removed 3 uploads", nil)
	svc.Wait()

	sample := findByAction(t, db.DB, "sample_csv")
	assert.Equal(t, entities.AuditEventSample, sample.EventType)
	assert.Equal(t, entities.ClassGroup, sample.EntityType)
	assert.Equal(t, entities.ImportOriginCLI, sample.Origin)

	cleanup := findByAction(t, db.DB, "cleanup_uploads")
	assert.Equal(t, entities.AuditEventCleanup, cleanup.EventType)
	assert.Equal(t, "Removed 3 uploads", cleanup.Description)
}

func TestService_Events(t *testing.T) {
	svc, _ := setupTestService(t)

	for i := 0; i < 5; i++ {
		err := svc.Log(&entities.AuditEvent{
			EventType:  entities.AuditEventImport,
			Action:     "test",
			EntityType: entities.ClassMember,
			Status:     entities.AuditStatusSuccess,
		})
		require.NoError(t, err)
	}
	require.NoError(t, svc.Log(&entities.AuditEvent{
		EventType: entities.AuditEventExport,
		Action:    "test",
		Status:    entities.AuditStatusSuccess,
	}))

	events, total, err := svc.Events(entities.AuditFilter{Class: entities.ClassMember}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	assert.Len(t, events, 5)

	_, total, err = svc.Events(entities.AuditFilter{Type: entities.AuditEventExport}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestService_DeleteOldEvents(t *testing.T) {
	svc, db := setupTestService(t)

	oldEvent := &entities.AuditEvent{
		EventType: entities.AuditEventImport,
		Action:    "old",
		Status:    entities.AuditStatusSuccess,
		CreatedAt: time.Now().Add(-48 * time.Hour),
	}
	require.NoError(t, db.DB.Create(oldEvent).Error)

	newEvent := &entities.AuditEvent{
		EventType: entities.AuditEventExport,
		Action:    "new",
		Status:    entities.AuditStatusSuccess,
		CreatedAt: time.Now(),
	}
	require.NoError(t, db.DB.Create(newEvent).Error)

	deleted, err := svc.DeleteOldEvents(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	var remaining []entities.AuditEvent
	db.DB.Find(&remaining)
	assert.Len(t, remaining, 1)
	assert.Equal(t, "new", remaining[0].Action)
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		input    string
		maxLen   int
		expected string
	}{
		{"short", 10, "short"},
		{"exactly10c", 10, "exactly10c"},
		{"this is a very long string", 10, "this is..."},
		{"", 5, ""},
	}

	for _, tc := range tests {
		result := truncate(tc.input, tc.maxLen)
		assert.Equal(t, tc.expected, result)
	}
}
