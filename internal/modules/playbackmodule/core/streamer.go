package core

import (
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
)

// mime types for the containers served directly
var containerMIME = map[string]string{
	"mp3":  "audio/mpeg",
	"flac": "audio/flac",
	"wav":  "audio/wav",
	"m4a":  "audio/mp4",
	"aac":  "audio/aac",
	"ogg":  "audio/ogg",
	"opus": "audio/opus",
}

// DirectStreamer serves file bytes unmodified, honoring HTTP range requests
// so players can seek without re-downloading.
type DirectStreamer struct {
	log hclog.Logger
}

// NewDirectStreamer creates a direct streamer.
func NewDirectStreamer(log hclog.Logger) *DirectStreamer {
	return &DirectStreamer{log: log.Named("direct")}
}

// ReadSeeker is the content source for direct streaming.
type ReadSeeker interface {
	Read(p []byte) (int, error)
	Seek(offset int64, whence int) (int64, error)
}

// Serve streams the content with range support. http.ServeContent handles
// Range and If-Modified-Since semantics, including 206 partial responses.
func (d *DirectStreamer) Serve(w http.ResponseWriter, r *http.Request, name string, modTime time.Time, content ReadSeeker) {
	if mime, ok := containerMIME[containerOf(name)]; ok {
		w.Header().Set("Content-Type", mime)
	}
	w.Header().Set("Accept-Ranges", "bytes")

	d.log.Debug("direct stream", "name", name, "range", r.Header.Get("Range"))
	http.ServeContent(w, r, name, modTime, content)
}

func containerOf(name string) string {
	ext := path.Ext(name)
	if len(ext) > 0 {
		return strings.ToLower(ext[1:])
	}
	return ""
}
