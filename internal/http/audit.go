package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/sheetloader/internal/entities"
)

type AuditController struct {
	auditService AuditReader
}

func NewAuditController(auditService AuditReader) *AuditController {
	return &AuditController{
		auditService: auditService,
	}
}

// GetAuditEvents returns paginated audit events as JSON
// GET /api/audit?type=&origin=&status=&class=&run_id=&limit=&offset=
func (ac *AuditController) GetAuditEvents(c *gin.Context) {
	limit, offset := parsePagination(c, 25, 100)

	filter := entities.AuditFilter{
		Type:   entities.AuditEventType(c.Query("type")),
		Origin: entities.ImportOrigin(c.Query("origin")),
		Status: entities.AuditStatus(c.Query("status")),
		Class:  c.Query("class"),
	}
	if raw := c.Query("run_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			respondBadRequest(c, "invalid run_id")
			return
		}
		filter.RunID = uint(id)
	}

	events, total, err := ac.auditService.Events(filter, limit, offset)
	if err != nil {
		respondInternalError(c, err, "audit events")
		return
	}

	c.JSON(http.StatusOK, newPaginatedResponse(events, total, limit, offset))
}

// GetEventTypes handles GET /api/audit/types
func (ac *AuditController) GetEventTypes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"event_types": []EventTypeOption{
		{Value: string(entities.AuditEventImport), Label: "Import"},
		{Value: string(entities.AuditEventPreview), Label: "Preview"},
		{Value: string(entities.AuditEventExport), Label: "Export"},
		{Value: string(entities.AuditEventSample), Label: "Sample"},
		{Value: string(entities.AuditEventCleanup), Label: "Cleanup"},
	}})
}

type EventTypeOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}
