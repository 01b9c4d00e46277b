package http

import (
	"github.com/gin-gonic/gin"

	"github.com/mrlokans/sheetloader/internal/auth"
)

// NewRouter creates and configures the HTTP router with all endpoints.
// Uses RouterConfig to receive all dependencies.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(RequestIDMiddleware())
	router.Use(RequestLogMiddleware())
	router.Use(gin.Recovery())

	router.Use(auth.SecurityHeaders(cfg.AuthConfig.SecureHeaders))

	if cfg.AuthMiddleware != nil && cfg.AuthMiddleware.Enabled() {
		router.Use(cfg.AuthMiddleware.Handler())
	}

	// Health endpoints
	health := NewHealthController(cfg.Database, cfg.Version, cfg.Classes, cfg.Import.UploadDir, cfg.TaskClient != nil)
	router.GET("/health", health.Status)
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "pong",
		})
	})

	api := router.Group("/api")

	// Class metadata
	classes := NewClassesController(cfg.Store, cfg.Classes)
	api.GET("/classes", classes.List)
	api.GET("/classes/:class", classes.Get)

	// Import endpoints
	importer := NewImportController(cfg.Store, cfg.Imports, cfg.Auditor, cfg.Uploads, cfg.TaskClient, cfg.Import)
	api.POST("/import/:class", importer.Import)
	api.POST("/import/:class/preview", importer.Preview)
	api.GET("/imports", importer.ListImports)
	api.GET("/imports/:id", importer.GetImport)

	// Export endpoints
	exporter := NewExportController(cfg.Store, cfg.Auditor, cfg.Export)
	api.GET("/export/:class", exporter.Export)
	api.GET("/sample/:class", exporter.Sample)

	// Audit log
	if cfg.Audit != nil {
		auditController := NewAuditController(cfg.Audit)
		api.GET("/audit", auditController.GetAuditEvents)
		api.GET("/audit/types", auditController.GetEventTypes)
	}

	// Task management endpoints
	if cfg.TaskClient != nil {
		tasksController := NewTasksController(cfg.TaskClient, cfg.Imports, cfg.AuditRetentionDays, cfg.UploadRetentionHours)
		api.GET("/tasks/types", tasksController.ListTaskTypes)
		api.GET("/tasks/:id", tasksController.GetTaskStatus)
		api.POST("/tasks/:type/run", tasksController.RunTask)
	}

	return router
}
