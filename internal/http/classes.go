package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/sheetloader/internal/bulkloader"
)

// ClassInfo describes an importable class.
type ClassInfo struct {
	Name         string   `json:"name"`
	ImportFields []string `json:"import_fields"`
	ExportFields []string `json:"export_fields"`
}

type ClassesController struct {
	store   bulkloader.Store
	classes []string
}

func NewClassesController(store bulkloader.Store, classes []string) *ClassesController {
	return &ClassesController{store: store, classes: classes}
}

// List handles GET /api/classes
func (cc *ClassesController) List(c *gin.Context) {
	out := make([]ClassInfo, 0, len(cc.classes))
	for _, class := range cc.classes {
		info, err := cc.describe(class)
		if err != nil {
			respondInternalError(c, err, "describe "+class)
			return
		}
		out = append(out, info)
	}
	c.JSON(http.StatusOK, gin.H{"classes": out})
}

// Get handles GET /api/classes/:class
func (cc *ClassesController) Get(c *gin.Context) {
	class := c.Param("class")
	if _, err := cc.store.Schema(class); err != nil {
		respondNotFound(c, "class "+class)
		return
	}
	info, err := cc.describe(class)
	if err != nil {
		respondInternalError(c, err, "describe "+class)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (cc *ClassesController) describe(class string) (ClassInfo, error) {
	imported, err := bulkloader.ImportFields(cc.store, class)
	if err != nil {
		return ClassInfo{}, err
	}
	exported, err := bulkloader.ExportFields(cc.store, class)
	if err != nil {
		return ClassInfo{}, err
	}
	return ClassInfo{Name: class, ImportFields: imported, ExportFields: exported}, nil
}
