// Package mediasource provides read access to the remote shares that hold
// the audio library. The ingestion and playback code only depends on the
// Accessor capability interface; concrete providers (SMB, local directory)
// are selected per configured source.
package mediasource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

var (
	// ErrNotFound indicates the path does not exist on the share.
	ErrNotFound = errors.New("mediasource: path not found")
	// ErrNotDirectory indicates a listing was requested on a file.
	ErrNotDirectory = errors.New("mediasource: not a directory")
)

// Entry describes one directory entry on a share.
type Entry struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"` // share-relative
	IsDir   bool      `json:"is_dir"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// File is an open share file. Seekability is required so direct-mode
// streaming can honor HTTP range requests.
type File interface {
	io.Reader
	io.Seeker
	io.Closer
}

// Accessor is the capability interface over one share: list a directory,
// stat a path, open a file for reading. Every call is bounded by its context.
// The context passed to Open stays in force for the lifetime of the returned
// file: remote providers bind it to every subsequent read, so callers must
// keep it valid until Close. OpenWithTimeout handles that scoping.
type Accessor interface {
	List(ctx context.Context, path string) ([]Entry, error)
	Stat(ctx context.Context, path string) (Entry, error)
	Open(ctx context.Context, path string) (File, error)
	Close() error
}

// OpenWithTimeout opens path with a deadline that covers the whole open-and-
// read lifetime of the file. Canceling the open context at return would
// poison every later read on remote providers; the returned file's Close
// releases the context instead.
func OpenWithTimeout(ctx context.Context, acc Accessor, path string, timeout time.Duration) (File, error) {
	fileCtx, cancel := context.WithTimeout(ctx, timeout)
	f, err := acc.Open(fileCtx, path)
	if err != nil {
		cancel()
		return nil, err
	}
	return &scopedFile{File: f, cancel: cancel}, nil
}

type scopedFile struct {
	File
	cancel context.CancelFunc
}

func (f *scopedFile) Close() error {
	err := f.File.Close()
	f.cancel()
	return err
}

// Credential carries what a remote provider needs to authenticate.
type Credential struct {
	Username string
	Password string
	Domain   string
}

// SourceConfig is the provider-independent description of a share.
type SourceConfig struct {
	Provider  string // "smb" or "local"
	Host      string // host[:port], smb only
	ShareName string // smb only
	RootPath  string // path within the share; local providers use it as the directory root
}

// Connect builds an accessor for the given source. The context bounds the
// initial connection handshake only; individual calls carry their own.
func Connect(ctx context.Context, cfg SourceConfig, cred Credential) (Accessor, error) {
	switch cfg.Provider {
	case "smb":
		return dialSMB(ctx, cfg, cred)
	case "local":
		return newLocalAccessor(cfg.RootPath)
	default:
		return nil, fmt.Errorf("mediasource: unknown provider %q", cfg.Provider)
	}
}
