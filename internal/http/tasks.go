package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikestefanello/backlite"

	"github.com/mrlokans/sheetloader/internal/tasks"
)

// TasksController handles task queue management endpoints.
type TasksController struct {
	client          TaskQueue
	runs            ImportRunStore
	auditRetention  int
	uploadRetention int
}

// NewTasksController creates a new TasksController. Retention values are
// passed to manually triggered cleanups: days for audit events, hours for
// uploads.
func NewTasksController(client TaskQueue, runs ImportRunStore, auditRetentionDays, uploadRetentionHours int) *TasksController {
	return &TasksController{
		client:          client,
		runs:            runs,
		auditRetention:  auditRetentionDays,
		uploadRetention: uploadRetentionHours,
	}
}

// TaskTypeInfo describes an available task type.
type TaskTypeInfo struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Queue       string `json:"queue"`
}

// ListTaskTypes handles GET /api/tasks/types
// Returns the list of available task types that can be triggered.
func (tc *TasksController) ListTaskTypes(c *gin.Context) {
	types := []TaskTypeInfo{
		{
			Type:        "cleanup_audit_events",
			Description: "Delete audit events past the retention period",
			Queue:       tasks.CleanupAuditEventsTask{}.Config().Name,
		},
		{
			Type:        "cleanup_uploads",
			Description: "Delete uploads of finished imports and stray upload files",
			Queue:       tasks.CleanupUploadsTask{}.Config().Name,
		},
	}

	c.JSON(http.StatusOK, gin.H{
		"task_types": types,
	})
}

// GetTaskStatus handles GET /api/tasks/:id
// Returns the status of a task and, for imports, its run.
func (tc *TasksController) GetTaskStatus(c *gin.Context) {
	taskID := c.Param("id")
	if taskID == "" {
		respondBadRequest(c, "task ID is required")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status, err := tc.client.Status(ctx, taskID)
	if err != nil {
		respondInternalError(c, err, "task status")
		return
	}
	if status == backlite.TaskStatusNotFound {
		respondNotFound(c, "task "+taskID)
		return
	}

	resp := gin.H{
		"id":     taskID,
		"status": tasks.StatusName(status),
	}
	if tc.runs != nil {
		if run, err := tc.runs.GetByTaskID(taskID); err == nil {
			resp["import"] = run
		}
	}
	c.JSON(http.StatusOK, resp)
}

// RunTask handles POST /api/tasks/:type/run
// Manually triggers a task of the specified type.
func (tc *TasksController) RunTask(c *gin.Context) {
	taskType := c.Param("type")

	var task backlite.Task
	switch taskType {
	case "cleanup_audit_events":
		task = tasks.CleanupAuditEventsTask{RetentionDays: tc.auditRetention}
	case "cleanup_uploads":
		task = tasks.CleanupUploadsTask{MaxAgeHours: tc.uploadRetention}
	default:
		respondBadRequest(c, fmt.Sprintf("unknown task type: %s", taskType))
		return
	}

	id, err := tc.client.Enqueue(task)
	if err != nil {
		respondInternalError(c, err, "enqueue "+taskType)
		return
	}

	respondAccepted(c, "task enqueued", gin.H{
		"task_id": id,
		"type":    taskType,
	})
}
