package http

import (
	"errors"
	"log"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/sheetloader/internal/bulkloader"
	"github.com/mrlokans/sheetloader/internal/spreadsheet"
)

// --- Response Types ---

// ErrorResponse is the standard error response format for all API errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`    // machine-readable error code
	Details any    `json:"details,omitempty"` // additional context (validation errors, etc.)
}

// SuccessResponse is a standard success response with optional data.
type SuccessResponse struct {
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// PaginatedResponse wraps paginated data with metadata.
type PaginatedResponse struct {
	Data       any   `json:"data"`
	Total      int64 `json:"total"`
	Limit      int   `json:"limit"`
	Offset     int   `json:"offset"`
	HasMore    bool  `json:"has_more"`
	TotalPages int   `json:"total_pages,omitempty"`
}

func newPaginatedResponse(data any, total int64, limit, offset int) PaginatedResponse {
	pages := 0
	if limit > 0 {
		pages = int((total + int64(limit) - 1) / int64(limit))
	}
	return PaginatedResponse{
		Data:       data,
		Total:      total,
		Limit:      limit,
		Offset:     offset,
		HasMore:    int64(offset+limit) < total,
		TotalPages: pages,
	}
}

// --- Error Response Helpers ---

// respondBadRequest sends a 400 Bad Request response.
func respondBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: message})
}

// respondNotFound sends a 404 Not Found response.
func respondNotFound(c *gin.Context, resource string) {
	c.JSON(http.StatusNotFound, ErrorResponse{Error: resource + " not found"})
}

// respondInternalError logs the error and sends a 500 Internal Server Error response.
// The actual error is logged but not exposed to the client.
func respondInternalError(c *gin.Context, err error, context string) {
	log.Printf("Internal error (%s): %v", context, err)
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
}

// respondError sends an error response with the given status code.
func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, ErrorResponse{Error: message})
}

// StatusCode maps a loader error to an HTTP status.
func StatusCode(err error) int {
	switch bulkloader.KindOf(err) {
	case bulkloader.KindPermissionDenied:
		return http.StatusForbidden
	case bulkloader.KindUnsupportedFileType:
		return http.StatusUnsupportedMediaType
	case bulkloader.KindValidation:
		return http.StatusUnprocessableEntity
	case bulkloader.KindConfiguration, bulkloader.KindUnreadableFile:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondLoaderError answers with the status of a loader error. Internal
// errors are logged and hidden from the client.
func respondLoaderError(c *gin.Context, err error) {
	status := StatusCode(err)
	if status == http.StatusInternalServerError {
		respondInternalError(c, err, c.FullPath())
		return
	}

	var lerr *bulkloader.Error
	code := ""
	if errors.As(err, &lerr) {
		code = strings.ReplaceAll(lerr.Kind.String(), " ", "_")
	}
	resp := ErrorResponse{Error: err.Error(), Code: code}
	if status == http.StatusUnsupportedMediaType {
		resp.Details = spreadsheet.ValidExtensionsText()
	}
	slog.WarnContext(c.Request.Context(), "request rejected", "path", c.FullPath(), "status", status, "error", err)
	c.JSON(status, resp)
}

// --- Success Response Helpers ---

// respondAccepted sends a 202 Accepted response (for async operations).
func respondAccepted(c *gin.Context, message string, data any) {
	c.JSON(http.StatusAccepted, SuccessResponse{Message: message, Data: data})
}

// --- Parameter Parsing ---

// parseIDParam extracts and validates an unsigned integer ID from URL parameters.
// Returns the parsed ID or responds with a 400 error and returns 0, false.
func parseIDParam(c *gin.Context, paramName string) (uint, bool) {
	idStr := c.Param(paramName)
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		respondBadRequest(c, "invalid "+paramName)
		return 0, false
	}
	return uint(id), true
}

// parsePagination reads limit and offset query parameters. Limit is
// capped at maxLimit.
func parsePagination(c *gin.Context, defaultLimit, maxLimit int) (limit, offset int) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultLimit)))
	if err != nil || limit < 1 || limit > maxLimit {
		limit = defaultLimit
	}
	offset, err = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}

// formBool reads a boolean form or query field, falling back to def when
// it is absent or malformed.
func formBool(c *gin.Context, name string, def bool) bool {
	raw, ok := c.GetPostForm(name)
	if !ok {
		raw, ok = c.GetQuery(name)
	}
	if !ok {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}
