package scannermodule

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/jmherbst/aria/internal/database"
	"github.com/jmherbst/aria/internal/modules/scannermodule/scanner"
)

type startScanRequest struct {
	SourceID uint32 `json:"source_id" binding:"required"`
}

// RegisterRoutes mounts the scanner HTTP endpoints.
func (m *Module) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/scanner")
	{
		api.POST("/scan", m.startScan)
		api.GET("/status", m.scanStatus)
		api.GET("/jobs/:id", m.getJob)
	}
}

// startScan kicks off a background scan. Responds 202 with the job ID, or
// 409 while another scan is running.
func (m *Module) startScan(c *gin.Context) {
	var req startScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "source_id is required"})
		return
	}

	jobID, err := m.manager.StartScan(req.SourceID)
	switch {
	case errors.Is(err, scanner.ErrScanInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, scanner.ErrSourceNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusAccepted, gin.H{"job_id": jobID})
	}
}

// scanStatus returns the in-memory snapshot of the current or last scan.
func (m *Module) scanStatus(c *gin.Context) {
	c.JSON(http.StatusOK, m.manager.Status())
}

// getJob returns a persisted scan job row, current or historical.
func (m *Module) getJob(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return
	}

	var job database.ScanJob
	dbErr := database.GetDB().First(&job, uint32(id)).Error
	if errors.Is(dbErr, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "scan job not found"})
		return
	}
	if dbErr != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": dbErr.Error()})
		return
	}
	c.JSON(http.StatusOK, job)
}
