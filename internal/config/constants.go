package config

// Default paths for databases and files
const (
	// DefaultDatabasePath is the default path for the main application database
	DefaultDatabasePath = "./sheetloader.db"

	// DefaultTasksDatabasePath is the default path for the task queue database
	DefaultTasksDatabasePath = "./sheetloader-tasks.db"

	// DefaultUploadDir keeps uploaded files for asynchronous imports
	DefaultUploadDir = "./uploads"

	// DefaultExportDir receives scheduled export files
	DefaultExportDir = "./exports"
)
