package sugos

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// ErrArchiveExists is returned by WriteArchive when the target file exists.
var ErrArchiveExists = errors.New("sugos: archive already exists")

// ErrNoArchive is returned by WriteArchive for runs without an archive.
var ErrNoArchive = errors.New("sugos: run produced no archive")

// WriteArchive writes the archive of res into dir and returns its path.
// The target is guarded by "<path>.lock" and never overwritten, so a run
// lands at most one archive even when two runs share a name.
func WriteArchive(ctx context.Context, res *RunResult, dir string) (string, error) {
	if !res.HasArchive() {
		return "", ErrNoArchive
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("sugos: output dir: %w", err)
	}
	path := filepath.Join(dir, res.ArchiveName)

	lock := flock.New(path + ".lock")
	lctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	ok, err := lock.TryLockContext(lctx, 100*time.Millisecond)
	if err != nil {
		return "", fmt.Errorf("sugos: lock %s: %w", path, err)
	}
	if !ok {
		return "", fmt.Errorf("sugos: lock %s: held by another run", path)
	}
	defer func() {
		lock.Unlock()
		os.Remove(path + ".lock")
	}()

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, os.ErrExist) {
		return "", fmt.Errorf("%w: %s", ErrArchiveExists, path)
	}
	if err != nil {
		return "", fmt.Errorf("sugos: create archive: %w", err)
	}
	if _, err := f.Write(res.Archive); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("sugos: write archive: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("sugos: close archive: %w", err)
	}
	return path, nil
}
