package http

import (
	"github.com/mrlokans/sheetloader/internal/auth"
	"github.com/mrlokans/sheetloader/internal/bulkloader"
	"github.com/mrlokans/sheetloader/internal/config"
	"github.com/mrlokans/sheetloader/internal/database"
)

// RouterConfig contains all dependencies and configuration needed
// to create the HTTP router.
type RouterConfig struct {
	// Core dependencies
	Database *database.Database
	Store    bulkloader.Store
	Classes  []string

	// Import bookkeeping
	Imports ImportRunStore
	Auditor Auditor
	Audit   AuditReader

	// Async imports (optional, both required)
	Uploads    UploadStore
	TaskClient TaskQueue

	// Authentication (optional)
	AuthMiddleware *auth.Middleware
	AuthConfig     config.Auth

	// Retention passed to manually triggered cleanups
	AuditRetentionDays   int
	UploadRetentionHours int

	// Loader and exporter defaults
	Import config.Import
	Export config.Export

	// Application info
	Version string
}
