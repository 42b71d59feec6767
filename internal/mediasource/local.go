package mediasource

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// localAccessor serves a directory on the local filesystem. Used for local
// libraries and as the test double for remote providers.
type localAccessor struct {
	root string
}

func newLocalAccessor(root string) (Accessor, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("mediasource: local root %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("mediasource: local root %s: %w", root, ErrNotDirectory)
	}
	return &localAccessor{root: root}, nil
}

func (a *localAccessor) List(ctx context.Context, dir string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	full, err := a.resolve(dir)
	if err != nil {
		return nil, err
	}

	dirents, err := os.ReadDir(full)
	if err != nil {
		return nil, translateLocalErr(err)
	}

	entries := make([]Entry, 0, len(dirents))
	for _, de := range dirents {
		info, err := de.Info()
		if err != nil {
			continue
		}
		entries = append(entries, Entry{
			Name:    de.Name(),
			Path:    path.Join(dir, de.Name()),
			IsDir:   de.IsDir(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	return entries, nil
}

func (a *localAccessor) Stat(ctx context.Context, p string) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}

	full, err := a.resolve(p)
	if err != nil {
		return Entry{}, err
	}

	info, err := os.Stat(full)
	if err != nil {
		return Entry{}, translateLocalErr(err)
	}
	return Entry{
		Name:    info.Name(),
		Path:    p,
		IsDir:   info.IsDir(),
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, nil
}

func (a *localAccessor) Open(ctx context.Context, p string) (File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	full, err := a.resolve(p)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(full)
	if err != nil {
		return nil, translateLocalErr(err)
	}
	return f, nil
}

func (a *localAccessor) Close() error {
	return nil
}

// resolve joins a share-relative path under the root, rejecting escapes.
func (a *localAccessor) resolve(p string) (string, error) {
	clean := path.Clean("/" + p)
	if strings.Contains(clean, "..") {
		return "", ErrNotFound
	}
	return filepath.Join(a.root, filepath.FromSlash(strings.TrimPrefix(clean, "/"))), nil
}

func translateLocalErr(err error) error {
	if os.IsNotExist(err) {
		return ErrNotFound
	}
	return err
}
