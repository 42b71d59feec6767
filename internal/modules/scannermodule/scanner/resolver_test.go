package scanner

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmherbst/aria/internal/database"
	"github.com/jmherbst/aria/internal/hashing"
	"github.com/jmherbst/aria/internal/mediasource"
	"github.com/jmherbst/aria/internal/metadata"
)

// memStore is an in-memory LibraryStore for resolver tests.
type memStore struct {
	entries []*database.LibraryEntry
	aliases []*database.EntryAlias
}

func (s *memStore) FindBySize(sizeBytes int64) ([]*database.LibraryEntry, error) {
	var matches []*database.LibraryEntry
	for _, e := range s.entries {
		if e.SizeBytes == sizeBytes {
			matches = append(matches, e)
		}
	}
	return matches, nil
}

func (s *memStore) SetHash(entryID, hash string) error {
	for _, e := range s.entries {
		if e.ID == entryID {
			e.Hash = hash
			return nil
		}
	}
	return errors.New("no such entry")
}

func (s *memStore) HasAlias(entryID string, sourceID uint32, path string) (bool, error) {
	for _, a := range s.aliases {
		if a.EntryID == entryID && a.SourceID == sourceID && a.Path == path {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) CreateEntry(entry *database.LibraryEntry) error {
	s.entries = append(s.entries, entry)
	return nil
}

func (s *memStore) CreateAlias(alias *database.EntryAlias) error {
	s.aliases = append(s.aliases, alias)
	return nil
}

// newTestResolver backfills entry hashes through the same fake accessor the
// candidates are read from.
func newTestResolver(store LibraryStore, acc mediasource.Accessor) *Resolver {
	opener := func(ctx context.Context, entry *database.LibraryEntry) (io.ReadCloser, error) {
		return mediasource.OpenWithTimeout(ctx, acc, entry.Path, time.Second)
	}
	return NewResolver(store, hashing.NewSHA256Hasher(), metadata.NewTagExtractor(), nil, nil, opener, time.Second)
}

func candidate(path string, content []byte) FileCandidate {
	return FileCandidate{Path: path, Size: int64(len(content)), ModTime: time.Now()}
}

func TestResolverCreatesUnhashedEntryForUniqueSize(t *testing.T) {
	content := []byte("not really audio but unique bytes")
	acc := newFakeAccessor()
	acc.addFile("/music/song.mp3", content)

	store := &memStore{}
	r := newTestResolver(store, acc)

	outcome, err := r.Process(context.Background(), acc, 1, candidate("/music/song.mp3", content))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, outcome)
	require.Len(t, store.entries, 1)

	entry := store.entries[0]
	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, uint32(1), entry.SourceID)
	assert.Equal(t, "/music/song.mp3", entry.Path)
	assert.Equal(t, int64(len(content)), entry.SizeBytes)
	// No size collision, so hashing is deferred.
	assert.Empty(t, entry.Hash)
	assert.Equal(t, "mp3", entry.Container)
	// Tags are unreadable from junk bytes, so the filename becomes the title.
	assert.Equal(t, "song", entry.Title)
	assert.False(t, entry.FirstSeenAt.IsZero())
}

func TestResolverAliasesDuplicateContentAcrossSources(t *testing.T) {
	content := []byte("the same bytes on two shares")
	acc := newFakeAccessor()
	acc.addFile("/a/original.mp3", content)
	acc.addFile("/b/copy.mp3", content)

	store := &memStore{}
	r := newTestResolver(store, acc)
	ctx := context.Background()

	outcome, err := r.Process(ctx, acc, 1, candidate("/a/original.mp3", content))
	require.NoError(t, err)
	require.Equal(t, OutcomeCreated, outcome)

	outcome, err = r.Process(ctx, acc, 2, candidate("/b/copy.mp3", content))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAliased, outcome)

	require.Len(t, store.entries, 1)
	require.Len(t, store.aliases, 1)
	// The collision backfilled the canonical entry's hash.
	assert.Len(t, store.entries[0].Hash, 64)
	assert.Equal(t, store.entries[0].ID, store.aliases[0].EntryID)
	assert.Equal(t, uint32(2), store.aliases[0].SourceID)
	assert.Equal(t, "/b/copy.mp3", store.aliases[0].Path)
}

func TestResolverSplitsSameSizeDifferentContent(t *testing.T) {
	contentA := []byte("equal length, contents A")
	contentB := []byte("equal length, contents B")
	require.Equal(t, len(contentA), len(contentB))

	acc := newFakeAccessor()
	acc.addFile("/a.mp3", contentA)
	acc.addFile("/b.mp3", contentB)

	store := &memStore{}
	r := newTestResolver(store, acc)
	ctx := context.Background()

	_, err := r.Process(ctx, acc, 1, candidate("/a.mp3", contentA))
	require.NoError(t, err)

	outcome, err := r.Process(ctx, acc, 1, candidate("/b.mp3", contentB))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, outcome)

	require.Len(t, store.entries, 2)
	assert.Empty(t, store.aliases)
	assert.Len(t, store.entries[0].Hash, 64)
	assert.Len(t, store.entries[1].Hash, 64)
	assert.NotEqual(t, store.entries[0].Hash, store.entries[1].Hash)
}

func TestResolverRescanIsIdempotent(t *testing.T) {
	content := []byte("stable bytes")
	acc := newFakeAccessor()
	acc.addFile("/a/track.mp3", content)
	acc.addFile("/b/track.mp3", content)

	store := &memStore{}
	r := newTestResolver(store, acc)
	ctx := context.Background()

	_, err := r.Process(ctx, acc, 1, candidate("/a/track.mp3", content))
	require.NoError(t, err)
	_, err = r.Process(ctx, acc, 1, candidate("/b/track.mp3", content))
	require.NoError(t, err)

	// Seeing the canonical location again changes nothing.
	outcome, err := r.Process(ctx, acc, 1, candidate("/a/track.mp3", content))
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnchanged, outcome)

	// Seeing a known alias location again changes nothing either.
	outcome, err = r.Process(ctx, acc, 1, candidate("/b/track.mp3", content))
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnchanged, outcome)

	assert.Len(t, store.entries, 1)
	assert.Len(t, store.aliases, 1)
}

func TestResolverPropagatesReadErrors(t *testing.T) {
	acc := newFakeAccessor()
	acc.failOpen["/broken.mp3"] = errors.New("io timeout")

	store := &memStore{}
	r := newTestResolver(store, acc)

	_, err := r.Process(context.Background(), acc, 1, FileCandidate{Path: "/broken.mp3", Size: 10})
	assert.Error(t, err)
	assert.Empty(t, store.entries)
	assert.Empty(t, store.aliases)
}

func TestResolverDeduplicatesContextBoundFiles(t *testing.T) {
	// Remote providers tie every read of an open file to the context the
	// file was opened with; hashing and backfilling read well after the
	// open call returns.
	content := []byte("identical bytes behind context-bound reads")
	acc := newFakeAccessor()
	acc.bindOpenCtx = true
	acc.addFile("/a/one.mp3", content)
	acc.addFile("/b/two.mp3", content)

	store := &memStore{}
	r := newTestResolver(store, acc)
	ctx := context.Background()

	outcome, err := r.Process(ctx, acc, 1, candidate("/a/one.mp3", content))
	require.NoError(t, err)
	require.Equal(t, OutcomeCreated, outcome)

	outcome, err = r.Process(ctx, acc, 2, candidate("/b/two.mp3", content))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAliased, outcome)

	require.Len(t, store.entries, 1)
	assert.Len(t, store.entries[0].Hash, 64)
	require.Len(t, store.aliases, 1)
}

// fakeProber returns canned stream properties after draining the content,
// the way ffprobe consumes its stdin.
type fakeProber struct {
	res    metadata.ProbeResult
	err    error
	probes int
}

func (p *fakeProber) Probe(ctx context.Context, r io.Reader) (metadata.ProbeResult, error) {
	p.probes++
	if _, err := io.Copy(io.Discard, r); err != nil {
		return metadata.ProbeResult{}, err
	}
	return p.res, p.err
}

func TestResolverRecordsStreamProperties(t *testing.T) {
	content := []byte("bytes with probe-visible properties")
	acc := newFakeAccessor()
	acc.bindOpenCtx = true
	acc.addFile("/music/song.mp3", content)

	store := &memStore{}
	prober := &fakeProber{res: metadata.ProbeResult{DurationSeconds: 245, BitrateKbps: 320}}
	opener := func(ctx context.Context, entry *database.LibraryEntry) (io.ReadCloser, error) {
		return mediasource.OpenWithTimeout(ctx, acc, entry.Path, time.Second)
	}
	r := NewResolver(store, hashing.NewSHA256Hasher(), metadata.NewTagExtractor(), prober, nil, opener, time.Second)

	_, err := r.Process(context.Background(), acc, 1, candidate("/music/song.mp3", content))
	require.NoError(t, err)
	require.Len(t, store.entries, 1)
	assert.Equal(t, 245, store.entries[0].Duration)
	assert.Equal(t, 320, store.entries[0].BitrateKbps)
	assert.Equal(t, 1, prober.probes)
}

func TestResolverToleratesProbeFailure(t *testing.T) {
	content := []byte("bytes ffprobe cannot make sense of")
	acc := newFakeAccessor()
	acc.addFile("/music/odd.mp3", content)

	store := &memStore{}
	prober := &fakeProber{err: errors.New("ffprobe: invalid data")}
	r := NewResolver(store, hashing.NewSHA256Hasher(), metadata.NewTagExtractor(), prober, nil, nil, time.Second)

	outcome, err := r.Process(context.Background(), acc, 1, candidate("/music/odd.mp3", content))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, outcome)
	require.Len(t, store.entries, 1)
	assert.Zero(t, store.entries[0].Duration)
	assert.Zero(t, store.entries[0].BitrateKbps)
}

func TestResolverBackfillFailureSkipsCandidate(t *testing.T) {
	content := []byte("bytes whose canonical copy went away")
	acc := newFakeAccessor()
	acc.addFile("/copy.mp3", content)

	store := &memStore{}
	store.entries = append(store.entries, &database.LibraryEntry{
		ID:        "existing",
		SourceID:  2,
		Path:      "/gone.mp3",
		SizeBytes: int64(len(content)),
	})
	acc.failOpen["/gone.mp3"] = errors.New("share offline")

	r := newTestResolver(store, acc)
	_, err := r.Process(context.Background(), acc, 1, candidate("/copy.mp3", content))
	assert.Error(t, err)
	// Nothing was persisted; the invariant of one entry per content holds.
	assert.Len(t, store.entries, 1)
	assert.Empty(t, store.aliases)
}
