// Package scanner implements library ingestion: walking a share, hashing
// content for deduplication and persisting canonical entries.
package scanner

import (
	"context"
	"time"

	"github.com/jmherbst/aria/internal/logger"
	"github.com/jmherbst/aria/internal/mediasource"
	"github.com/jmherbst/aria/internal/metadata"
)

// FileCandidate is one audio file discovered during a walk, before hashing
// and dedup resolution.
type FileCandidate struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// Walker performs a depth-first traversal of a share, emitting audio file
// candidates. A directory that cannot be listed is skipped along with its
// whole subtree; only a failure to list the scan root aborts the walk.
type Walker struct {
	accessor      mediasource.Accessor
	remoteTimeout time.Duration

	// onDir is invoked before each directory is listed, root included.
	// Optional; used for progress reporting.
	onDir func(path string)
	// onDirSkip is invoked for every unreadable directory. Optional.
	onDirSkip func(path string, err error)
}

// NewWalker creates a walker over the given accessor. remoteTimeout bounds
// each directory listing.
func NewWalker(accessor mediasource.Accessor, remoteTimeout time.Duration) *Walker {
	return &Walker{accessor: accessor, remoteTimeout: remoteTimeout}
}

// OnDir sets the callback invoked for each directory entered.
func (w *Walker) OnDir(fn func(path string)) {
	w.onDir = fn
}

// OnDirSkip sets the callback invoked when a subtree is skipped.
func (w *Walker) OnDirSkip(fn func(path string, err error)) {
	w.onDirSkip = fn
}

// Walk traverses the tree rooted at root and sends every audio file candidate
// to out. The channel is not closed by Walk; the caller owns it. Returns an
// error only when the root listing fails or the context is canceled.
func (w *Walker) Walk(ctx context.Context, root string, out chan<- FileCandidate) error {
	entries, err := w.list(ctx, root)
	if err != nil {
		return err
	}
	return w.descend(ctx, entries, out)
}

func (w *Walker) descend(ctx context.Context, entries []mediasource.Entry, out chan<- FileCandidate) error {
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}

		if entry.IsDir {
			children, err := w.list(ctx, entry.Path)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				logger.Warn("skipping unreadable directory", []logger.Field{
					logger.String("path", entry.Path),
					logger.Err("error", err),
				})
				if w.onDirSkip != nil {
					w.onDirSkip(entry.Path, err)
				}
				continue
			}
			if err := w.descend(ctx, children, out); err != nil {
				return err
			}
			continue
		}

		if !metadata.IsAudioFile(entry.Path) {
			continue
		}

		candidate := FileCandidate{
			Path:    entry.Path,
			Size:    entry.Size,
			ModTime: entry.ModTime,
		}
		select {
		case out <- candidate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (w *Walker) list(ctx context.Context, dir string) ([]mediasource.Entry, error) {
	if w.onDir != nil {
		w.onDir(dir)
	}
	listCtx, cancel := context.WithTimeout(ctx, w.remoteTimeout)
	defer cancel()
	return w.accessor.List(listCtx, dir)
}
