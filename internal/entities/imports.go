package entities

import "time"

type ImportStatus string

const (
	ImportStatusPending   ImportStatus = "pending"
	ImportStatusRunning   ImportStatus = "running"
	ImportStatusCompleted ImportStatus = "completed"
	ImportStatusFailed    ImportStatus = "failed"
)

// ImportOrigin tells where an import was started from.
type ImportOrigin string

const (
	ImportOriginHTTP ImportOrigin = "http"
	ImportOriginCLI  ImportOrigin = "cli"
	ImportOriginTask ImportOrigin = "task"
	// ImportOriginSchedule marks scheduled exports.
	ImportOriginSchedule ImportOrigin = "schedule"
)

// ImportRun is the persisted record of one spreadsheet import.
type ImportRun struct {
	ID          uint         `gorm:"primaryKey" json:"id"`
	Class       string       `gorm:"index;size:100" json:"class"`
	FileName    string       `gorm:"size:512" json:"file_name"`
	StoredPath  string       `gorm:"size:1024" json:"-"`
	Origin      ImportOrigin `gorm:"size:20" json:"origin"`
	TaskID      string       `gorm:"index;size:64" json:"task_id,omitempty"`
	Status      ImportStatus `gorm:"size:20;default:'pending'" json:"status"`
	Preview     bool         `json:"preview"`
	Created     int          `json:"created"`
	Updated     int          `json:"updated"`
	Deleted     int          `json:"deleted"`
	Message     string       `gorm:"size:500" json:"message,omitempty"`
	Error       string       `gorm:"type:text" json:"error,omitempty"`
	StartedAt   *time.Time   `json:"started_at,omitempty"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
	CreatedAt   time.Time    `gorm:"index" json:"created_at"`
}

func (ImportRun) TableName() string {
	return "import_runs"
}

// Finished reports whether the run reached a final status.
func (r *ImportRun) Finished() bool {
	return r.Status == ImportStatusCompleted || r.Status == ImportStatusFailed
}
