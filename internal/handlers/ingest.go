package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ddokjang/plan-service/internal/catalog"
)

// Global catalog repository instance (initialized by the application)
var catalogRepo *catalog.Repository

// InitIngest initializes the ingest surface.
func InitIngest(repo *catalog.Repository) {
	catalogRepo = repo
}

// IngestSnapshots imports a price-snapshot workbook
// POST /internal/ingest/xlsx (multipart form, field "file")
func IngestSnapshots(c *gin.Context) {
	if catalogRepo == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "catalog not initialized"})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "missing file field: " + err.Error()})
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	result, err := catalogRepo.ImportSnapshotsXLSX(c.Request.Context(), content)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}
