package scanner

import (
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/google/uuid"

	"github.com/jmherbst/aria/internal/database"
	"github.com/jmherbst/aria/internal/hashing"
	"github.com/jmherbst/aria/internal/logger"
	"github.com/jmherbst/aria/internal/mediasource"
	"github.com/jmherbst/aria/internal/metadata"
)

// Outcome classifies what processing one candidate did to the library.
type Outcome int

const (
	// OutcomeCreated means a new canonical entry was persisted.
	OutcomeCreated Outcome = iota
	// OutcomeAliased means the content already existed and a new alias
	// location was recorded.
	OutcomeAliased
	// OutcomeUnchanged means the candidate is already known at this exact
	// location, canonical or alias.
	OutcomeUnchanged
)

// LibraryStore persists canonical entries and their alias locations. The
// resolver is the only writer during a scan, so a lookup immediately followed
// by a write observes all earlier writes of the same scan.
type LibraryStore interface {
	FindBySize(sizeBytes int64) ([]*database.LibraryEntry, error)
	SetHash(entryID, hash string) error
	HasAlias(entryID string, sourceID uint32, path string) (bool, error)
	CreateEntry(entry *database.LibraryEntry) error
	CreateAlias(alias *database.EntryAlias) error
}

// EntryOpener opens the canonical bytes of a persisted entry, which may live
// on a different source than the one being scanned.
type EntryOpener func(ctx context.Context, entry *database.LibraryEntry) (io.ReadCloser, error)

// Resolver turns file candidates into library entries or aliases. Content
// identity is the (size, SHA-256) fingerprint, with size as the cheap
// pre-filter: a candidate is hashed only when its size collides with a known
// entry. Entries created without a collision carry an empty hash until a
// later collision forces a backfill.
type Resolver struct {
	store         LibraryStore
	hasher        hashing.Hasher
	extractor     metadata.Extractor
	prober        metadata.Prober
	throttle      *Throttle
	openEntry     EntryOpener
	remoteTimeout time.Duration
}

// NewResolver creates a resolver. throttle may be nil to disable pacing;
// prober may be nil to skip duration/bitrate probing.
func NewResolver(store LibraryStore, hasher hashing.Hasher, extractor metadata.Extractor, prober metadata.Prober, throttle *Throttle, openEntry EntryOpener, remoteTimeout time.Duration) *Resolver {
	return &Resolver{
		store:         store,
		hasher:        hasher,
		extractor:     extractor,
		prober:        prober,
		throttle:      throttle,
		openEntry:     openEntry,
		remoteTimeout: remoteTimeout,
	}
}

// Process reconciles one candidate against the library: a new entry, an
// alias of an existing entry, or nothing when the location is already known.
// Read errors propagate to the caller; the file is skipped, never partially
// persisted.
func (r *Resolver) Process(ctx context.Context, accessor mediasource.Accessor, sourceID uint32, cand FileCandidate) (Outcome, error) {
	sameSize, err := r.store.FindBySize(cand.Size)
	if err != nil {
		return OutcomeUnchanged, err
	}

	// No size collision: the content is certainly new. Skip hashing
	// entirely; a later collision will backfill the hash.
	if len(sameSize) == 0 {
		return r.createEntry(ctx, accessor, sourceID, cand, "")
	}

	hash, err := r.hashCandidate(ctx, accessor, cand)
	if err != nil {
		return OutcomeUnchanged, err
	}

	for _, existing := range sameSize {
		if existing.Hash == "" {
			if err := r.backfillHash(ctx, existing); err != nil {
				return OutcomeUnchanged, fmt.Errorf("backfilling hash for entry %s: %w", existing.ID, err)
			}
		}
		if existing.Hash == hash {
			return r.recordAlias(existing, sourceID, cand)
		}
	}

	// Same size, different content.
	return r.createEntry(ctx, accessor, sourceID, cand, hash)
}

func (r *Resolver) createEntry(ctx context.Context, accessor mediasource.Accessor, sourceID uint32, cand FileCandidate, hash string) (Outcome, error) {
	f, err := r.open(ctx, accessor, cand.Path)
	if err != nil {
		return OutcomeUnchanged, err
	}
	defer f.Close()

	entry := &database.LibraryEntry{
		ID:          uuid.NewString(),
		SourceID:    sourceID,
		Path:        cand.Path,
		SizeBytes:   cand.Size,
		Hash:        hash,
		Container:   metadata.Container(cand.Path),
		ModTime:     cand.ModTime,
		FirstSeenAt: time.Now().UTC(),
	}
	r.applyMetadata(entry, f, cand)
	r.applyProbe(ctx, entry, f, cand)

	if err := r.store.CreateEntry(entry); err != nil {
		return OutcomeUnchanged, err
	}
	return OutcomeCreated, nil
}

func (r *Resolver) recordAlias(existing *database.LibraryEntry, sourceID uint32, cand FileCandidate) (Outcome, error) {
	if existing.SourceID == sourceID && existing.Path == cand.Path {
		return OutcomeUnchanged, nil
	}

	known, err := r.store.HasAlias(existing.ID, sourceID, cand.Path)
	if err != nil {
		return OutcomeUnchanged, err
	}
	if known {
		return OutcomeUnchanged, nil
	}

	alias := &database.EntryAlias{
		EntryID:  existing.ID,
		SourceID: sourceID,
		Path:     cand.Path,
	}
	if err := r.store.CreateAlias(alias); err != nil {
		return OutcomeUnchanged, err
	}
	return OutcomeAliased, nil
}

func (r *Resolver) hashCandidate(ctx context.Context, accessor mediasource.Accessor, cand FileCandidate) (string, error) {
	if r.throttle != nil {
		if err := r.throttle.Wait(ctx); err != nil {
			return "", err
		}
	}

	f, err := r.open(ctx, accessor, cand.Path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return r.hasher.Sum(f)
}

// backfillHash hashes the canonical bytes of an entry persisted without one.
// A backfill failure aborts the candidate rather than risking a duplicate
// entry for content that could not be compared.
func (r *Resolver) backfillHash(ctx context.Context, entry *database.LibraryEntry) error {
	if r.throttle != nil {
		if err := r.throttle.Wait(ctx); err != nil {
			return err
		}
	}

	f, err := r.openEntry(ctx, entry)
	if err != nil {
		return err
	}
	defer f.Close()

	hash, err := r.hasher.Sum(f)
	if err != nil {
		return err
	}
	if err := r.store.SetHash(entry.ID, hash); err != nil {
		return err
	}
	entry.Hash = hash

	logger.Debug("backfilled content hash", []logger.Field{
		logger.String("entry_id", entry.ID),
		logger.String("path", entry.Path),
	})
	return nil
}

// open binds the remote timeout to the file's whole open-and-read lifetime.
// Remote files keep their open context for every read, so the deadline must
// outlive the open call itself.
func (r *Resolver) open(ctx context.Context, accessor mediasource.Accessor, path string) (mediasource.File, error) {
	return mediasource.OpenWithTimeout(ctx, accessor, path, r.remoteTimeout)
}

// applyMetadata fills tag fields, falling back to the filename as title.
// Extraction failures are logged and otherwise ignored.
func (r *Resolver) applyMetadata(entry *database.LibraryEntry, f io.ReadSeeker, cand FileCandidate) {
	entry.Title = trimExtension(path.Base(cand.Path))

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return
	}
	meta, err := r.extractor.Extract(f)
	if err != nil {
		logger.Debug("tag extraction failed", []logger.Field{
			logger.String("path", cand.Path),
			logger.Err("error", err),
		})
		return
	}

	if meta.Title != "" {
		entry.Title = meta.Title
	}
	entry.Artist = meta.Artist
	entry.Album = meta.Album
	entry.AlbumArtist = meta.AlbumArtist
	entry.Genre = meta.Genre
	entry.Year = meta.Year
	entry.TrackNumber = meta.TrackNumber
}

// applyProbe fills duration and bitrate via ffprobe. Probe failures (no
// ffprobe on the host, pipe-hostile container) leave the fields at zero.
func (r *Resolver) applyProbe(ctx context.Context, entry *database.LibraryEntry, f io.ReadSeeker, cand FileCandidate) {
	if r.prober == nil {
		return
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return
	}
	res, err := r.prober.Probe(ctx, f)
	if err != nil {
		logger.Debug("stream probe failed", []logger.Field{
			logger.String("path", cand.Path),
			logger.Err("error", err),
		})
		return
	}
	entry.Duration = res.DurationSeconds
	entry.BitrateKbps = res.BitrateKbps
}

func trimExtension(name string) string {
	ext := path.Ext(name)
	return name[:len(name)-len(ext)]
}
