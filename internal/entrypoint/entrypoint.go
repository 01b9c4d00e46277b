package entrypoint

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/sheetloader/internal/audit"
	"github.com/mrlokans/sheetloader/internal/auth"
	"github.com/mrlokans/sheetloader/internal/config"
	"github.com/mrlokans/sheetloader/internal/database"
	auditRepo "github.com/mrlokans/sheetloader/internal/database/audit"
	"github.com/mrlokans/sheetloader/internal/database/imports"
	"github.com/mrlokans/sheetloader/internal/entities"
	http_controllers "github.com/mrlokans/sheetloader/internal/http"
	"github.com/mrlokans/sheetloader/internal/logging"
	"github.com/mrlokans/sheetloader/internal/scheduler"
	"github.com/mrlokans/sheetloader/internal/tasks"
	"github.com/mrlokans/sheetloader/internal/uploads"
)

// ShutdownFunc is called during graceful shutdown to clean up resources.
type ShutdownFunc func(ctx context.Context)

func Serve(router *gin.Engine, cfg *config.Config, onShutdown ShutdownFunc) {
	timeout := time.Duration(cfg.Global.ShutdownTimeoutInSeconds) * time.Second

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Starting server at %s:%d\n", cfg.HTTP.Host, cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// kill -2 is SIGINT, plain kill sends SIGTERM. SIGKILL cannot be caught.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Printf("Shutdown Server, waiting %v before killing\n", timeout)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Stop accepting imports before the queue and schedulers go away.
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server Shutdown: %v", err)
	}

	if onShutdown != nil {
		onShutdown(ctx)
	}

	log.Println("Server exiting")
}

func Run(cfg *config.Config, version string) {
	logging.Setup(cfg.Log.Level, cfg.Log.Format)
	log.Printf("Starting sheetloader v%s", version)

	if cfg.Auth.BcryptCost > 0 {
		entities.PasswordCost = cfg.Auth.BcryptCost
	}

	db, err := database.NewDatabase(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}()

	store := db.Store()
	auditService := audit.NewService(auditRepo.NewRepository(db.DB))
	defer auditService.Wait()
	importRuns := imports.NewRepository(db.DB)
	uploadStorage := uploads.NewStorage(cfg.Import.UploadDir)

	auditRetentionDays := cfg.Audit.RetentionDays
	uploadRetentionHours := int(cfg.Tasks.UploadRetention.Hours())

	routerCfg := http_controllers.RouterConfig{
		Database:             db,
		Store:                store,
		Classes:              database.Registry().Classes(),
		Imports:              importRuns,
		Auditor:              auditService,
		Audit:                auditService,
		AuthConfig:           cfg.Auth,
		AuditRetentionDays:   auditRetentionDays,
		UploadRetentionHours: uploadRetentionHours,
		Import:               cfg.Import,
		Export:               cfg.Export,
		Version:              version,
	}

	var (
		taskClient    *tasks.Client
		taskCtxCancel context.CancelFunc
		maintenance   *scheduler.MaintenanceScheduler
	)
	if cfg.Tasks.Enabled {
		tasksPath := cfg.Database.TasksPath
		if tasksPath == "" {
			tasksPath = tasks.TasksDBPath(cfg.Database.Path)
		}

		taskClient, err = tasks.NewClient(tasksPath, tasks.FromAppConfig(cfg.Tasks))
		if err != nil {
			log.Fatalf("Failed to initialize task queue: %v", err)
		}
		defer func() {
			if err := taskClient.Close(); err != nil {
				log.Printf("Error closing task client: %v", err)
			}
		}()

		taskClient.Register(
			tasks.NewImportFileQueue(tasks.ImportFileDeps{
				Store:   store,
				Runs:    importRuns,
				Audit:   auditService,
				Uploads: uploadStorage,
			}),
			tasks.NewCleanupAuditEventsQueue(auditService),
			tasks.NewCleanupUploadsQueue(importRuns, uploadStorage, auditService),
		)

		var taskCtx context.Context
		taskCtx, taskCtxCancel = context.WithCancel(context.Background())
		go taskClient.Start(taskCtx)

		maintenance = scheduler.NewMaintenanceScheduler(taskClient, auditRetentionDays, uploadRetentionHours)
		if err := maintenance.Start(taskCtx); err != nil {
			log.Printf("WARNING: Maintenance scheduler not started: %v", err)
			maintenance = nil
		}

		routerCfg.Uploads = uploadStorage
		routerCfg.TaskClient = taskClient
	} else {
		log.Printf("Task queue disabled: async imports and cleanups are unavailable")
	}

	var exportScheduler *scheduler.ExportScheduler
	if cfg.ScheduledExport.Enabled {
		exportScheduler = scheduler.NewExportScheduler(store, cfg.ScheduledExport, cfg.Export, auditService)
		if err := exportScheduler.Start(context.Background()); err != nil {
			log.Fatalf("Failed to start export scheduler: %v", err)
		}
	}

	authMiddleware := auth.NewMiddleware(cfg.Auth)
	if authMiddleware.Enabled() {
		log.Printf("Authentication: bearer token required for /api")
		routerCfg.AuthMiddleware = authMiddleware
	} else {
		log.Printf("Authentication: none (set AUTH_TOKEN_HASH to require a token)")
	}

	router := http_controllers.NewRouter(routerCfg)

	onShutdown := func(ctx context.Context) {
		if exportScheduler != nil {
			exportScheduler.Stop()
		}
		if maintenance != nil {
			maintenance.Stop()
		}
		if taskClient != nil && taskCtxCancel != nil {
			taskClient.Stop(ctx)
			taskCtxCancel()
		}
	}

	Serve(router, cfg, onShutdown)
}
