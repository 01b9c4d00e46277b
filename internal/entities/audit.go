package entities

import "time"

type AuditEventType string

const (
	AuditEventImport  AuditEventType = "import"
	AuditEventPreview AuditEventType = "preview"
	AuditEventExport  AuditEventType = "export"
	AuditEventSample  AuditEventType = "sample"
	AuditEventCleanup AuditEventType = "cleanup"
)

type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusFailed  AuditStatus = "failed"
)

// AuditEvent is one entry of the import/export trail. Rows is the number of
// records written or exported; import counts go to Metadata.
type AuditEvent struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	EventType   AuditEventType `gorm:"index;size:50" json:"event_type"`
	Origin      ImportOrigin   `gorm:"index;size:20" json:"origin,omitempty"`
	Action      string         `gorm:"size:100" json:"action"` // e.g. "http_import", "cleanup_uploads"
	Description string         `gorm:"size:500" json:"description"`
	EntityType  string         `gorm:"index;size:100" json:"entity_type"`
	ImportRunID *uint          `gorm:"index" json:"import_run_id,omitempty"`
	Rows        int            `json:"rows"`
	Metadata    string         `gorm:"type:text" json:"metadata,omitempty"`
	Status      AuditStatus    `gorm:"size:20" json:"status"`
	ErrorMsg    string         `gorm:"size:500" json:"error_msg,omitempty"`
	CreatedAt   time.Time      `gorm:"index" json:"created_at"`
}

func (AuditEvent) TableName() string {
	return "audit_events"
}

// AuditFilter narrows audit queries. Zero fields match everything.
type AuditFilter struct {
	Type   AuditEventType
	Origin ImportOrigin
	Status AuditStatus
	Class  string
	RunID  uint
}
