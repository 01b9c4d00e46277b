package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type (
	Config struct {
		HTTP
		Global
		Database
		Log
		Import
		Export
		Audit
		Tasks
		ScheduledExport
		Auth
	}

	HTTP struct {
		Port int32
		Host string
	}
	Global struct {
		ShutdownTimeoutInSeconds int
	}
	Database struct {
		Path      string
		TasksPath string // Separate sqlite file for the task queue
	}
	Log struct {
		Level  string // debug, info, warn, error
		Format string // text or json
	}
	Import struct {
		Delimiter        string // Single character or "auto"
		Enclosure        string
		HasHeaderRow     bool
		UseTransaction   bool
		CheckPermissions bool
		MakeRelations    bool
		FileType         string // Used when an upload has no extension
		UploadDir        string
		MaxUploadMB      int64
	}
	Export struct {
		Limit            int
		SanitizeChars    string
		Creator          string
		DefaultExtension string
	}
	Audit struct {
		RetentionDays int // Days to keep audit events (default: 30)
	}
	Tasks struct {
		Enabled         bool
		Workers         int
		ReleaseAfter    time.Duration
		CleanupInterval time.Duration
		UploadRetention time.Duration // Age after which stored uploads are removed
	}
	ScheduledExport struct {
		Enabled  bool
		Schedule string // Cron format: "0 2 * * *" = daily at 02:00
		Classes  []string
		Format   string
		Dir      string
		Combine  bool // xlsx only: also write one workbook with a sheet per class
	}
	Auth struct {
		TokenHash     string // SHA-256 hex of the API token; empty disables the check
		BcryptCost    int    // Cost for passwords imported from spreadsheets
		SecureHeaders bool
	}
)

func NewConfig() *Config {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("port", 8188)
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("shutdown_timeout_in_seconds", 2)
	v.SetDefault("database_path", DefaultDatabasePath)
	v.SetDefault("tasks_database_path", DefaultTasksDatabasePath)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")

	// Import defaults
	v.SetDefault("import_delimiter", "auto")
	v.SetDefault("import_enclosure", `"`)
	v.SetDefault("import_has_header_row", true)
	v.SetDefault("import_use_transaction", true)
	v.SetDefault("import_check_permissions", true)
	v.SetDefault("import_make_relations", false)
	v.SetDefault("import_file_type", "xlsx")
	v.SetDefault("import_upload_dir", DefaultUploadDir)
	v.SetDefault("import_max_upload_mb", 32)

	// Export defaults
	v.SetDefault("export_limit", 1000)
	v.SetDefault("export_sanitize_chars", "=")
	v.SetDefault("export_creator", "sheetloader")
	v.SetDefault("export_default_extension", "xlsx")

	v.SetDefault("audit_retention_days", 30)

	// Task queue defaults
	v.SetDefault("tasks_enabled", true)
	v.SetDefault("task_workers", 2)
	v.SetDefault("task_release_after", "15m")
	v.SetDefault("task_cleanup_interval", "1h")
	v.SetDefault("task_upload_retention", "72h")

	// Scheduled export defaults
	v.SetDefault("scheduled_export_enabled", false)
	v.SetDefault("scheduled_export_schedule", "0 2 * * *") // Daily at 02:00
	v.SetDefault("scheduled_export_classes", "Member")
	v.SetDefault("scheduled_export_format", "csv")
	v.SetDefault("scheduled_export_dir", DefaultExportDir)
	v.SetDefault("scheduled_export_combine", false)

	// Auth defaults
	v.SetDefault("auth_token_hash", "")
	v.SetDefault("auth_bcrypt_cost", 12)
	v.SetDefault("auth_secure_headers", true)

	return &Config{
		HTTP: HTTP{
			Port: v.GetInt32("PORT"),
			Host: v.GetString("HOST"),
		},
		Global: Global{
			ShutdownTimeoutInSeconds: v.GetInt("SHUTDOWN_TIMEOUT_IN_SECONDS"),
		},
		Database: Database{
			Path:      v.GetString("DATABASE_PATH"),
			TasksPath: v.GetString("TASKS_DATABASE_PATH"),
		},
		Log: Log{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
		Import: Import{
			Delimiter:        v.GetString("IMPORT_DELIMITER"),
			Enclosure:        v.GetString("IMPORT_ENCLOSURE"),
			HasHeaderRow:     v.GetBool("IMPORT_HAS_HEADER_ROW"),
			UseTransaction:   v.GetBool("IMPORT_USE_TRANSACTION"),
			CheckPermissions: v.GetBool("IMPORT_CHECK_PERMISSIONS"),
			MakeRelations:    v.GetBool("IMPORT_MAKE_RELATIONS"),
			FileType:         v.GetString("IMPORT_FILE_TYPE"),
			UploadDir:        v.GetString("IMPORT_UPLOAD_DIR"),
			MaxUploadMB:      v.GetInt64("IMPORT_MAX_UPLOAD_MB"),
		},
		Export: Export{
			Limit:            v.GetInt("EXPORT_LIMIT"),
			SanitizeChars:    v.GetString("EXPORT_SANITIZE_CHARS"),
			Creator:          v.GetString("EXPORT_CREATOR"),
			DefaultExtension: v.GetString("EXPORT_DEFAULT_EXTENSION"),
		},
		Audit: Audit{
			RetentionDays: v.GetInt("AUDIT_RETENTION_DAYS"),
		},
		Tasks: Tasks{
			Enabled:         v.GetBool("TASKS_ENABLED"),
			Workers:         v.GetInt("TASK_WORKERS"),
			ReleaseAfter:    v.GetDuration("TASK_RELEASE_AFTER"),
			CleanupInterval: v.GetDuration("TASK_CLEANUP_INTERVAL"),
			UploadRetention: v.GetDuration("TASK_UPLOAD_RETENTION"),
		},
		ScheduledExport: ScheduledExport{
			Enabled:  v.GetBool("SCHEDULED_EXPORT_ENABLED"),
			Schedule: v.GetString("SCHEDULED_EXPORT_SCHEDULE"),
			Classes:  splitList(v.GetString("SCHEDULED_EXPORT_CLASSES")),
			Format:   v.GetString("SCHEDULED_EXPORT_FORMAT"),
			Dir:      v.GetString("SCHEDULED_EXPORT_DIR"),
			Combine:  v.GetBool("SCHEDULED_EXPORT_COMBINE"),
		},
		Auth: Auth{
			TokenHash:     v.GetString("AUTH_TOKEN_HASH"),
			BcryptCost:    v.GetInt("AUTH_BCRYPT_COST"),
			SecureHeaders: v.GetBool("AUTH_SECURE_HEADERS"),
		},
	}
}

// splitList parses a comma separated environment value.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
