package audit

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/mrlokans/sheetloader/internal/bulkloader"
	"github.com/mrlokans/sheetloader/internal/database/audit"
	"github.com/mrlokans/sheetloader/internal/entities"
)

const maxErrorLen = 500

// Service provides high-level audit logging functionality.
type Service struct {
	repo    *audit.Repository
	pending sync.WaitGroup
}

// NewService creates a new audit service.
func NewService(repo *audit.Repository) *Service {
	return &Service{repo: repo}
}

// Log records a generic audit event.
func (s *Service) Log(event *entities.AuditEvent) error {
	return s.repo.Insert(event)
}

// LogAsync records an audit event in the background (non-blocking).
func (s *Service) LogAsync(event *entities.AuditEvent) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := s.repo.Insert(event); err != nil {
			log.Printf("Failed to log audit event: %v", err)
		}
	}()
}

// Wait blocks until background events are written.
func (s *Service) Wait() {
	s.pending.Wait()
}

// LogImport records an import or preview run. origin is where the import
// came from (http, cli, task).
func (s *Service) LogImport(origin entities.ImportOrigin, class string, runID *uint, result *bulkloader.Result, err error) {
	event := &entities.AuditEvent{
		EventType:   entities.AuditEventImport,
		Origin:      origin,
		Action:      string(origin) + "_import",
		EntityType:  class,
		ImportRunID: runID,
		Status:      entities.AuditStatusSuccess,
	}

	if result != nil {
		if result.Preview() {
			event.EventType = entities.AuditEventPreview
			event.Action = string(origin) + "_preview"
		}
		event.Description = result.Message()
		event.Rows = result.CreatedCount() + result.UpdatedCount()
		metadata := map[string]any{
			"created": result.CreatedCount(),
			"updated": result.UpdatedCount(),
			"deleted": result.DeletedCount(),
		}
		if mdBytes, e := json.Marshal(metadata); e == nil {
			event.Metadata = string(mdBytes)
		}
	}

	if err != nil {
		event.Status = entities.AuditStatusFailed
		event.ErrorMsg = truncate(err.Error(), maxErrorLen)
		if event.Description == "" {
			event.Description = "Import of " + class + " failed"
		}
	}

	s.LogAsync(event)
}

// LogExport records an export of rows entities of class.
func (s *Service) LogExport(origin entities.ImportOrigin, class, fileName string, rows int, err error) {
	event := &entities.AuditEvent{
		EventType:   entities.AuditEventExport,
		Origin:      origin,
		Action:      string(origin) + "_export",
		Description: fileName,
		EntityType:  class,
		Rows:        rows,
		Status:      entities.AuditStatusSuccess,
	}

	if err != nil {
		event.Status = entities.AuditStatusFailed
		event.ErrorMsg = truncate(err.Error(), maxErrorLen)
	}

	s.LogAsync(event)
}

// LogSample records a sample file download.
func (s *Service) LogSample(origin entities.ImportOrigin, class, format string) {
	s.LogAsync(&entities.AuditEvent{
		EventType:   entities.AuditEventSample,
		Origin:      origin,
		Action:      "sample_" + format,
		Description: "Sample file for " + class,
		EntityType:  class,
		Status:      entities.AuditStatusSuccess,
	})
}

// LogCleanup records a retention cleanup.
func (s *Service) LogCleanup(action, description string, err error) {
	event := &entities.AuditEvent{
		EventType:   entities.AuditEventCleanup,
		Action:      action,
		Description: description,
		Status:      entities.AuditStatusSuccess,
	}

	if err != nil {
		event.Status = entities.AuditStatusFailed
		event.ErrorMsg = truncate(err.Error(), maxErrorLen)
	}

	s.LogAsync(event)
}

// Events returns a page of events matching filter, newest first.
func (s *Service) Events(filter entities.AuditFilter, limit, offset int) ([]entities.AuditEvent, int64, error) {
	return s.repo.List(filter, limit, offset)
}

// DeleteOldEvents removes events older than the specified duration.
func (s *Service) DeleteOldEvents(retention time.Duration) (int64, error) {
	return s.repo.DeleteBefore(time.Now().Add(-retention))
}

// truncate shortens a string to max length.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
