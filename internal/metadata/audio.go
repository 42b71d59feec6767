// Package metadata extracts best-effort tag fields from audio streams.
package metadata

import (
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/dhowden/tag"
)

// AudioMetadata holds the tag fields extracted from one file. Any subset of
// fields may be empty; extraction failures are expected and non-fatal to
// ingestion.
type AudioMetadata struct {
	Title       string
	Artist      string
	Album       string
	AlbumArtist string
	Genre       string
	Year        int
	TrackNumber int
}

// Extractor reads tags from an open audio stream.
type Extractor interface {
	Extract(r io.ReadSeeker) (*AudioMetadata, error)
}

// recognized audio extensions, lowercase without the dot
var audioExtensions = map[string]bool{
	"mp3":  true,
	"flac": true,
	"wav":  true,
	"m4a":  true,
	"aac":  true,
	"ogg":  true,
	"wma":  true,
	"opus": true,
	"aiff": true,
	"ape":  true,
	"wv":   true,
}

// formats the player can consume without transcoding
var directPlayable = map[string]bool{
	"mp3":  true,
	"flac": true,
	"wav":  true,
	"m4a":  true,
	"aac":  true,
	"ogg":  true,
	"opus": true,
}

// IsAudioFile reports whether the path has a recognized audio extension.
// Matching is case-insensitive; anything else is skipped by the scan walker.
func IsAudioFile(p string) bool {
	return audioExtensions[extension(p)]
}

// IsDirectPlayable reports whether the container can be streamed to the
// player unmodified. Everything else goes through the transcode path.
func IsDirectPlayable(container string) bool {
	return directPlayable[strings.ToLower(container)]
}

// Container returns the lowercase extension used as the container name.
func Container(p string) string {
	return extension(p)
}

func extension(p string) string {
	ext := strings.TrimPrefix(path.Ext(p), ".")
	return strings.ToLower(ext)
}

// TagExtractor extracts metadata using dhowden/tag.
type TagExtractor struct{}

// NewTagExtractor creates a tag-based extractor.
func NewTagExtractor() *TagExtractor {
	return &TagExtractor{}
}

// Extract reads tag fields from the stream. The reader is left at an
// unspecified position; callers that need the content afterwards must seek.
func (e *TagExtractor) Extract(r io.ReadSeeker) (*AudioMetadata, error) {
	m, err := tag.ReadFrom(r)
	if err != nil {
		return nil, fmt.Errorf("metadata: reading tags: %w", err)
	}

	meta := &AudioMetadata{
		Title:       cleanString(m.Title()),
		Artist:      cleanString(m.Artist()),
		Album:       cleanString(m.Album()),
		AlbumArtist: cleanString(m.AlbumArtist()),
		Genre:       cleanString(m.Genre()),
		Year:        m.Year(),
	}
	if track, _ := m.Track(); track != 0 {
		meta.TrackNumber = track
	}
	return meta, nil
}

// cleanString trims and collapses whitespace in a tag value.
func cleanString(s string) string {
	fields := strings.Fields(strings.TrimSpace(s))
	return strings.Join(fields, " ")
}
