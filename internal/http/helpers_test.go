package http

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/mrlokans/sheetloader/internal/bulkloader"
	"github.com/mrlokans/sheetloader/internal/spreadsheet"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestParseIDParam_Valid(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Params = gin.Params{{Key: "id", Value: "123"}}

	id, ok := parseIDParam(c, "id")

	assert.True(t, ok)
	assert.Equal(t, uint(123), id)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestParseIDParam_Invalid(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Params = gin.Params{{Key: "id", Value: "abc"}}

	id, ok := parseIDParam(c, "id")

	assert.False(t, ok)
	assert.Equal(t, uint(0), id)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid id")
}

func TestParseIDParam_Negative(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Params = gin.Params{{Key: "id", Value: "-1"}}

	id, ok := parseIDParam(c, "id")

	assert.False(t, ok)
	assert.Equal(t, uint(0), id)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestParsePagination(t *testing.T) {
	tests := []struct {
		query          string
		expectedLimit  int
		expectedOffset int
	}{
		{"", 25, 0},
		{"?limit=10&offset=20", 10, 20},
		{"?limit=1000", 25, 0},
		{"?limit=abc&offset=-5", 25, 0},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest("GET", "/"+tt.query, nil)

			limit, offset := parsePagination(c, 25, 100)

			assert.Equal(t, tt.expectedLimit, limit)
			assert.Equal(t, tt.expectedOffset, offset)
		})
	}
}

func TestFormBool(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("POST", "/?all=yes", strings.NewReader("async=1&preview=off&odd=maybe"))
	c.Request.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	assert.True(t, formBool(c, "async", false))
	assert.False(t, formBool(c, "preview", true))
	assert.True(t, formBool(c, "all", false), "falls back to the query string")
	assert.True(t, formBool(c, "odd", true), "malformed values keep the default")
	assert.False(t, formBool(c, "missing", false))
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		err      error
		expected int
	}{
		{fmt.Errorf("row 2: %w", bulkloader.ErrPermissionDenied), http.StatusForbidden},
		{bulkloader.ErrUnsupportedFileType, http.StatusUnsupportedMediaType},
		{bulkloader.NewValidationError("bad email"), http.StatusUnprocessableEntity},
		{bulkloader.ErrConfiguration, http.StatusBadRequest},
		{bulkloader.ErrUnreadableFile, http.StatusBadRequest},
		{errors.New("disk full"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, StatusCode(tt.err), "%v", tt.err)
	}
}

func TestRespondLoaderError(t *testing.T) {
	t.Run("Exposes loader errors", func(t *testing.T) {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest("POST", "/", nil)

		respondLoaderError(c, bulkloader.NewValidationError("invalid email %q", "x"))

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Contains(t, w.Body.String(), `"code":"validation_error"`)
		assert.Contains(t, w.Body.String(), `invalid email`)
	})

	t.Run("Hides internal errors", func(t *testing.T) {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest("POST", "/", nil)

		respondLoaderError(c, errors.New("database is locked"))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotContains(t, w.Body.String(), "locked")
	})
}

func TestNewPaginatedResponse(t *testing.T) {
	resp := newPaginatedResponse([]int{1, 2}, 5, 2, 2)
	assert.True(t, resp.HasMore)
	assert.Equal(t, 3, resp.TotalPages)

	resp = newPaginatedResponse(nil, 4, 2, 2)
	assert.False(t, resp.HasMore)
}

func newDownload(format spreadsheet.Format) (*download, *httptest.ResponseRecorder, *gin.Context) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/export/Company", nil)
	return &download{c: c, fileName: "export." + string(format), format: format}, w, c
}

func TestDownload(t *testing.T) {
	t.Run("Errors before output keep their status", func(t *testing.T) {
		d, w, _ := newDownload(spreadsheet.FormatCSV)
		d.fail(errors.New("database is locked"))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Empty(t, w.Header().Get("Content-Disposition"))
	})

	t.Run("Errors after output abort the response", func(t *testing.T) {
		d, w, c := newDownload(spreadsheet.FormatCSV)
		_, err := d.Write([]byte("Name\n"))
		assert.NoError(t, err)
		d.fail(errors.New("database is locked"))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "Name\n", w.Body.String())
		assert.True(t, c.IsAborted())
	})

	t.Run("Empty files still get attachment headers", func(t *testing.T) {
		d, w, _ := newDownload(spreadsheet.FormatCSV)
		d.done()

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
		assert.Equal(t, `attachment; filename="export.csv"`, w.Header().Get("Content-Disposition"))
		assert.Empty(t, w.Body.String())
	})
}
