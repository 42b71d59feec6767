package mediasource

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocalRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "albums"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "albums", "track.mp3"), []byte("audio bytes"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("hi"), 0o644))
	return root
}

func TestLocalAccessorList(t *testing.T) {
	acc, err := Connect(context.Background(), SourceConfig{Provider: "local", RootPath: newLocalRoot(t)}, Credential{})
	require.NoError(t, err)
	defer acc.Close()

	entries, err := acc.List(context.Background(), "/")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	byName := make(map[string]Entry)
	for _, e := range entries {
		byName[e.Name] = e
	}
	assert.True(t, byName["albums"].IsDir)
	assert.False(t, byName["notes.txt"].IsDir)
	assert.Equal(t, "/notes.txt", byName["notes.txt"].Path)
}

func TestLocalAccessorOpenAndSeek(t *testing.T) {
	acc, err := Connect(context.Background(), SourceConfig{Provider: "local", RootPath: newLocalRoot(t)}, Credential{})
	require.NoError(t, err)
	defer acc.Close()

	f, err := acc.Open(context.Background(), "/albums/track.mp3")
	require.NoError(t, err)
	defer f.Close()

	_, err = f.Seek(6, io.SeekStart)
	require.NoError(t, err)
	rest, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "bytes", string(rest))
}

func TestLocalAccessorMissingPath(t *testing.T) {
	acc, err := Connect(context.Background(), SourceConfig{Provider: "local", RootPath: newLocalRoot(t)}, Credential{})
	require.NoError(t, err)
	defer acc.Close()

	_, err = acc.Open(context.Background(), "/nope.mp3")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = acc.Stat(context.Background(), "/albums/missing.flac")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalAccessorRejectsEscapes(t *testing.T) {
	acc, err := Connect(context.Background(), SourceConfig{Provider: "local", RootPath: newLocalRoot(t)}, Credential{})
	require.NoError(t, err)
	defer acc.Close()

	// Path cleaning keeps lookups inside the root.
	entries, err := acc.List(context.Background(), "/../../etc")
	assert.Nil(t, entries)
	assert.Error(t, err)
}

func TestConnectUnknownProvider(t *testing.T) {
	_, err := Connect(context.Background(), SourceConfig{Provider: "ftp"}, Credential{})
	assert.Error(t, err)
}
