package tasks

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mikestefanello/backlite"
)

// cleanupQueueConfig is shared by the retention queues.
func cleanupQueueConfig(name string) backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        name,
		MaxAttempts: 3,
		Backoff:     5 * time.Minute,
		Timeout:     2 * time.Minute,
		Retention: &backlite.Retention{
			Duration:   24 * time.Hour,
			OnlyFailed: false,
			Data:       &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// CleanupAuditor records what a cleanup removed.
type CleanupAuditor interface {
	LogCleanup(action, description string, err error)
}

// AuditEventCleaner provides the ability to delete old audit events.
type AuditEventCleaner interface {
	DeleteOldEvents(retention time.Duration) (int64, error)
}

// CleanupAuditEventsTask removes audit events older than the configured retention period.
type CleanupAuditEventsTask struct {
	RetentionDays int `json:"retention_days"`
}

// Config returns the queue configuration for audit cleanup tasks.
func (t CleanupAuditEventsTask) Config() backlite.QueueConfig {
	return cleanupQueueConfig("cleanup_audit_events")
}

// CleanupAuditEventsProcessor creates a processor function for CleanupAuditEventsTask.
func CleanupAuditEventsProcessor(cleaner AuditEventCleaner) backlite.QueueProcessor[CleanupAuditEventsTask] {
	return func(ctx context.Context, task CleanupAuditEventsTask) error {
		if cleaner == nil {
			return fmt.Errorf("audit event cleaner not configured")
		}

		retentionDays := task.RetentionDays
		if retentionDays <= 0 {
			retentionDays = 30
		}
		retention := time.Duration(retentionDays) * 24 * time.Hour

		deleted, err := cleaner.DeleteOldEvents(retention)
		if err != nil {
			return fmt.Errorf("cleanup audit events: %w", err)
		}

		log.Printf("[TASK] Cleaned up %d audit events older than %d days", deleted, retentionDays)
		return nil
	}
}

// NewCleanupAuditEventsQueue creates a backlite queue for audit cleanup tasks.
func NewCleanupAuditEventsQueue(cleaner AuditEventCleaner) backlite.Queue {
	return backlite.NewQueue(CleanupAuditEventsProcessor(cleaner))
}

// StoredUploads lists and forgets uploads referenced by finished import runs.
type StoredUploads interface {
	StoredPathsBefore(cutoff time.Time) ([]string, error)
	ClearStoredPath(path string) error
}

// UploadSweeper removes upload files.
type UploadSweeper interface {
	Remove(path string) error
	RemoveOlderThan(cutoff time.Time) (int, error)
}

// CleanupUploadsTask removes uploads of finished runs and stray upload
// files older than MaxAgeHours.
type CleanupUploadsTask struct {
	MaxAgeHours int `json:"max_age_hours"`
}

// Config returns the queue configuration for upload cleanup tasks.
func (t CleanupUploadsTask) Config() backlite.QueueConfig {
	return cleanupQueueConfig("cleanup_uploads")
}

// CleanupUploadsProcessor creates a processor function for CleanupUploadsTask.
func CleanupUploadsProcessor(runs StoredUploads, files UploadSweeper, auditor CleanupAuditor) backlite.QueueProcessor[CleanupUploadsTask] {
	return func(ctx context.Context, task CleanupUploadsTask) error {
		if runs == nil || files == nil {
			return fmt.Errorf("upload cleaner not configured")
		}

		maxAge := task.MaxAgeHours
		if maxAge <= 0 {
			maxAge = 72
		}
		cutoff := time.Now().Add(-time.Duration(maxAge) * time.Hour)

		paths, err := runs.StoredPathsBefore(cutoff)
		if err != nil {
			return fmt.Errorf("list stored uploads: %w", err)
		}
		for _, path := range paths {
			if err := files.Remove(path); err != nil {
				log.Printf("[TASK ERROR] Failed to remove upload %s: %v", path, err)
				continue
			}
			if err := runs.ClearStoredPath(path); err != nil {
				return fmt.Errorf("clear stored upload %s: %w", path, err)
			}
		}

		stray, err := files.RemoveOlderThan(cutoff)
		if auditor != nil {
			auditor.LogCleanup("cleanup_uploads",
				fmt.Sprintf("Removed %d uploads of finished imports and %d stray files", len(paths), stray), err)
		}
		if err != nil {
			return fmt.Errorf("remove stray uploads: %w", err)
		}

		log.Printf("[TASK] Cleaned up %d uploads older than %d hours", len(paths)+stray, maxAge)
		return nil
	}
}

// NewCleanupUploadsQueue creates a backlite queue for upload cleanup tasks.
func NewCleanupUploadsQueue(runs StoredUploads, files UploadSweeper, auditor CleanupAuditor) backlite.Queue {
	return backlite.NewQueue(CleanupUploadsProcessor(runs, files, auditor))
}
