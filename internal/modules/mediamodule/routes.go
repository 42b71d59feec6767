package mediamodule

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/jmherbst/aria/internal/database"
)

// RegisterRoutes mounts the library read endpoints.
func (m *Module) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/media")
	{
		api.GET("/entries", m.listEntries)
		api.GET("/entries/:id", m.getEntry)
		api.GET("/entries/:id/aliases", m.listAliases)
	}
}

// listEntries returns a page of library entries, optionally filtered by
// artist, album or source.
func (m *Module) listEntries(c *gin.Context) {
	limit := queryInt(c, "limit", 100)
	if limit < 1 || limit > 500 {
		limit = 100
	}
	offset := queryInt(c, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	q := database.GetDB().Model(&database.LibraryEntry{})
	if artist := c.Query("artist"); artist != "" {
		q = q.Where("artist = ?", artist)
	}
	if album := c.Query("album"); album != "" {
		q = q.Where("album = ?", album)
	}
	if sourceID := c.Query("source_id"); sourceID != "" {
		q = q.Where("source_id = ?", sourceID)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var entries []database.LibraryEntry
	err := q.Order("artist, album, track_number, title").
		Limit(limit).Offset(offset).Find(&entries).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"total":   total,
		"limit":   limit,
		"offset":  offset,
	})
}

func (m *Module) getEntry(c *gin.Context) {
	var entry database.LibraryEntry
	err := database.GetDB().Where("id = ?", c.Param("id")).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "entry not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, entry)
}

// listAliases returns the duplicate locations recorded for one entry.
func (m *Module) listAliases(c *gin.Context) {
	var aliases []database.EntryAlias
	err := database.GetDB().Where("entry_id = ?", c.Param("id")).Find(&aliases).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"aliases": aliases})
}

func queryInt(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
