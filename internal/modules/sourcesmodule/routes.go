package sourcesmodule

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/jmherbst/aria/internal/config"
	"github.com/jmherbst/aria/internal/database"
	"github.com/jmherbst/aria/internal/logger"
	"github.com/jmherbst/aria/internal/mediasource"
)

type createSourceRequest struct {
	Name         string  `json:"name" binding:"required"`
	Provider     string  `json:"provider" binding:"required,oneof=smb local"`
	Host         string  `json:"host"`
	ShareName    string  `json:"share_name"`
	RootPath     string  `json:"root_path" binding:"required"`
	CredentialID *uint32 `json:"credential_id"`
}

type createCredentialRequest struct {
	Name     string `json:"name" binding:"required"`
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	Domain   string `json:"domain"`
}

// RegisterRoutes mounts the source management endpoints.
func (m *Module) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/sources")
	{
		api.GET("", m.listSources)
		api.POST("", m.createSource)
		api.GET("/:id", m.getSource)
		api.DELETE("/:id", m.deleteSource)
		api.GET("/:id/browse", m.browseSource)
	}

	creds := r.Group("/api/credentials")
	{
		creds.GET("", m.listCredentials)
		creds.POST("", m.createCredential)
	}
}

func (m *Module) listSources(c *gin.Context) {
	var sources []database.MediaSource
	if err := database.GetDB().Order("id").Find(&sources).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sources": sources})
}

func (m *Module) createSource(c *gin.Context) {
	var req createSourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Provider == "smb" && (req.Host == "" || req.ShareName == "") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "smb sources require host and share_name"})
		return
	}

	source := database.MediaSource{
		Name:         req.Name,
		Provider:     req.Provider,
		Host:         req.Host,
		ShareName:    req.ShareName,
		RootPath:     req.RootPath,
		CredentialID: req.CredentialID,
		Enabled:      true,
	}
	if err := database.GetDB().Create(&source).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	logger.Info("media source created", []logger.Field{
		logger.Int("id", int(source.ID)),
		logger.String("name", source.Name),
		logger.String("provider", source.Provider),
	})
	c.JSON(http.StatusCreated, source)
}

func (m *Module) getSource(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var source database.MediaSource
	err := database.GetDB().First(&source, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "source not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, source)
}

func (m *Module) deleteSource(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	res := database.GetDB().Delete(&database.MediaSource{}, id)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": res.Error.Error()})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "source not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

// browseSource lists one directory of a source, for picking scan roots from
// a UI. The accessor lives only for the request.
func (m *Module) browseSource(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	timeout := config.Get().Scanner.RemoteTimeout
	ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
	defer cancel()

	accessor, _, err := m.OpenAccessor(ctx, id)
	if errors.Is(err, ErrSourceNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	defer accessor.Close()

	dir := c.DefaultQuery("path", "/")
	entries, err := accessor.List(ctx, dir)
	if errors.Is(err, mediasource.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "path not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"path": dir, "entries": entries})
}

func (m *Module) listCredentials(c *gin.Context) {
	var creds []database.Credential
	if err := database.GetDB().Order("id").Find(&creds).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"credentials": creds})
}

func (m *Module) createCredential(c *gin.Context) {
	var req createCredentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cred := database.Credential{
		Name:     req.Name,
		Username: req.Username,
		Password: req.Password,
		Domain:   req.Domain,
	}
	if err := database.GetDB().Create(&cred).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, cred)
}

func parseID(c *gin.Context) (uint32, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return uint32(id), true
}
