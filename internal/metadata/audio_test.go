package metadata

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsAudioFile(t *testing.T) {
	assert.True(t, IsAudioFile("/music/track.mp3"))
	assert.True(t, IsAudioFile("/music/TRACK.FLAC"))
	assert.True(t, IsAudioFile("weird name with spaces.ogg"))
	assert.False(t, IsAudioFile("/music/cover.jpg"))
	assert.False(t, IsAudioFile("/music/track"))
	assert.False(t, IsAudioFile("/music/.mp3.bak"))
}

func TestContainer(t *testing.T) {
	assert.Equal(t, "mp3", Container("/a/b.MP3"))
	assert.Equal(t, "flac", Container("x.flac"))
	assert.Equal(t, "", Container("noext"))
}

func TestIsDirectPlayable(t *testing.T) {
	assert.True(t, IsDirectPlayable("mp3"))
	assert.True(t, IsDirectPlayable("FLAC"))
	assert.False(t, IsDirectPlayable("wma"))
	assert.False(t, IsDirectPlayable("ape"))
	assert.False(t, IsDirectPlayable(""))
}

func TestExtractRejectsUnparseableStream(t *testing.T) {
	e := NewTagExtractor()
	_, err := e.Extract(bytes.NewReader([]byte("definitely not a tagged audio file")))
	assert.Error(t, err)
}

func TestCleanString(t *testing.T) {
	assert.Equal(t, "The Artist", cleanString("  The   Artist \n"))
	assert.Equal(t, "", cleanString("   "))
}
