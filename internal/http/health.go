package http

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/sheetloader/internal/database"
)

type HealthResponse struct {
	Status  string            `json:"status"`
	Time    string            `json:"time"`
	Version string            `json:"version,omitempty"`
	Classes []string          `json:"classes"`
	Checks  map[string]string `json:"checks"`
}

// HealthController reports whether imports can be served: the database
// must answer, the rest is informational.
type HealthController struct {
	db        *database.Database
	version   string
	classes   []string
	uploadDir string
	tasks     bool
}

func NewHealthController(db *database.Database, version string, classes []string, uploadDir string, tasks bool) *HealthController {
	return &HealthController{
		db:        db,
		version:   version,
		classes:   classes,
		uploadDir: uploadDir,
		tasks:     tasks,
	}
}

func (h *HealthController) Status(c *gin.Context) {
	checks := map[string]string{
		"database": h.checkDatabase(),
		"tasks":    "disabled",
		"uploads":  h.checkUploads(),
	}
	if h.tasks {
		checks["tasks"] = "ok"
	}

	status := "healthy"
	if checks["database"] != "ok" {
		status = "unhealthy"
	}

	statusCode := http.StatusOK
	if status != "healthy" {
		statusCode = http.StatusServiceUnavailable
	}

	c.IndentedJSON(statusCode, HealthResponse{
		Status:  status,
		Time:    time.Now().Format(time.RFC3339),
		Version: h.version,
		Classes: h.classes,
		Checks:  checks,
	})
}

func (h *HealthController) checkDatabase() string {
	if h.db == nil {
		return "not configured"
	}
	sqlDB, err := h.db.DB.DB()
	if err != nil {
		return "error: " + err.Error()
	}
	if err := sqlDB.Ping(); err != nil {
		return "error: " + err.Error()
	}
	return "ok"
}

// checkUploads only reports; the directory is created on the first
// background import.
func (h *HealthController) checkUploads() string {
	if h.uploadDir == "" || !h.tasks {
		return "not used"
	}
	info, err := os.Stat(h.uploadDir)
	switch {
	case os.IsNotExist(err):
		return "not created yet"
	case err != nil:
		return "error: " + err.Error()
	case !info.IsDir():
		return fmt.Sprintf("error: %s is not a directory", h.uploadDir)
	}
	return "ok"
}
