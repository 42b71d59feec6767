package playbackmodule

import (
	"errors"
	"io"
	"net/http"
	"path"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/jmherbst/aria/internal/database"
	"github.com/jmherbst/aria/internal/events"
	"github.com/jmherbst/aria/internal/mediasource"
	"github.com/jmherbst/aria/internal/metadata"
	"github.com/jmherbst/aria/internal/modules/sourcesmodule"
)

// RegisterRoutes mounts the streaming endpoints.
func (m *Module) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/playback")
	{
		api.GET("/stream/:id", m.stream)
		api.GET("/sessions", m.listSessions)
	}
}

// stream serves one library entry. Containers the player handles natively go
// out unmodified with range support; everything else, or an explicit
// transcode=true, goes through ffmpeg. Seeking a transcode is expressed as a
// new request with a startTime offset.
func (m *Module) stream(c *gin.Context) {
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

	ctx := c.Request.Context()
	accessor, _, err := sourcesmodule.OpenAccessor(ctx, entry.SourceID)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	defer accessor.Close()

	f, err := accessor.Open(ctx, entry.Path)
	if errors.Is(err, mediasource.ErrNotFound) {
		// The entry is known but its bytes are no longer on the share.
		c.JSON(http.StatusGone, gin.H{"error": "source file no longer available"})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	transcode := c.Query("transcode") == "true" || !metadata.IsDirectPlayable(entry.Container)
	if transcode {
		m.streamTranscoded(c, &entry, f)
		return
	}

	defer f.Close()
	m.publishStarted(&entry, "direct")
	m.streamer.Serve(c.Writer, c.Request, path.Base(entry.Path), entry.ModTime, f)
}

// streamTranscoded pipes the entry through ffmpeg. The session owns the input
// file; a client disconnect cancels the request context, which kills ffmpeg.
func (m *Module) streamTranscoded(c *gin.Context, entry *database.LibraryEntry, f io.ReadCloser) {
	startTime := 0
	if raw := c.Query("startTime"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			_ = f.Close()
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid startTime"})
			return
		}
		startTime = n
	}

	clientID := c.GetHeader("X-Client-ID")
	if clientID == "" {
		clientID = c.ClientIP()
	}

	session, err := m.sessions.Start(c.Request.Context(), clientID, entry.ID, f, startTime)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	defer m.sessions.End(session)

	m.publishStarted(entry, "transcode")
	defer m.publishEnded(entry)

	c.Writer.Header().Set("Content-Type", "audio/mpeg")
	c.Writer.Header().Set("Cache-Control", "no-store")
	c.Status(http.StatusOK)

	if _, err := io.Copy(c.Writer, m.sessions.Reader(session)); err != nil {
		m.log.Debug("transcode stream ended", "session_id", session.ID, "error", err)
	}
}

func (m *Module) listSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": m.sessions.Active()})
}

func (m *Module) publishStarted(entry *database.LibraryEntry, mode string) {
	event := events.NewSystemEvent(events.EventPlaybackStarted, "Playback started", entry.Title)
	event.Data = map[string]interface{}{"entry_id": entry.ID, "mode": mode}
	events.GetGlobalEventBus().PublishAsync(event)
}

func (m *Module) publishEnded(entry *database.LibraryEntry) {
	event := events.NewSystemEvent(events.EventPlaybackEnded, "Playback ended", entry.Title)
	event.Data = map[string]interface{}{"entry_id": entry.ID}
	events.GetGlobalEventBus().PublishAsync(event)
}
