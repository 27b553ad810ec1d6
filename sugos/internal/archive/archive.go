// Package archive assigns archive paths to normalized items and writes them
// into a single zip.
//
// Every item consumes the next sequence number of its owner, in the order
// items are placed, whether or not it produced a payload. An item path is
// {folder}/{folder}-{seq}{ext}; paths are never reused within an archive.
package archive

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/flate"

	"github.com/hazyhaar/sugos/sugos/internal/model"
)

var (
	// ErrClosed is returned when placing into or closing a finished archive.
	ErrClosed = errors.New("archive: already closed")
	// ErrDuplicatePath is returned when a path would be written twice.
	ErrDuplicatePath = errors.New("archive: duplicate path")
)

// Sequencer hands out per-owner sequence numbers starting at 1.
// Owners that map to the same folder share one counter.
type Sequencer struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewSequencer returns a Sequencer with every counter at zero.
func NewSequencer() *Sequencer {
	return &Sequencer{counts: make(map[string]int)}
}

// Next increments and returns the counter of owner.
func (s *Sequencer) Next(owner string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := Folder(owner)
	s.counts[key]++
	return s.counts[key]
}

// Folder returns the directory name used for identifier inside the archive.
// Path separators become underscores; "." and ".." are not allowed as names.
func Folder(identifier string) string {
	f := strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' {
			return '_'
		}
		return r
	}, identifier)
	if f == "." || f == ".." || f == "" {
		return strings.Repeat("_", max(len(f), 1))
	}
	return f
}

// EntryPath builds the archive path of the seq-th item of identifier.
func EntryPath(identifier string, seq int, ext string) string {
	f := Folder(identifier)
	return fmt.Sprintf("%s/%s-%d%s", f, f, seq, ext)
}

// Placement describes where an item landed.
type Placement struct {
	Sequence int
	// Path is empty when no entry was written.
	Path string
	Size int
	// SHA256 is the hex digest of the stored bytes.
	SHA256 string
}

// Tally counts placed items. Processed items were written without
// fallback; everything else is an error.
type Tally struct {
	Total     int `json:"total"`
	Processed int `json:"processed"`
	Errors    int `json:"errors"`
}

// Packager writes the archive of one run. Place must be called from a
// single goroutine, in item order.
type Packager struct {
	buf      bytes.Buffer
	zw       *zip.Writer
	modified time.Time
	seq      *Sequencer
	paths    map[string]struct{}
	tally    Tally
	closed   bool
}

// New starts an empty archive. Every entry is stamped with modified so that
// identical runs produce identical entries.
func New(modified time.Time) *Packager {
	p := &Packager{
		modified: modified,
		seq:      NewSequencer(),
		paths:    make(map[string]struct{}),
	}
	p.zw = zip.NewWriter(&p.buf)
	p.zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, flate.DefaultCompression)
	})
	return p
}

// Place consumes the next sequence number of owner and writes payload when
// itemErr is nil. A fallback payload is written but counted as an error.
func (p *Packager) Place(owner string, payload model.Payload, itemErr error) (Placement, error) {
	if p.closed {
		return Placement{}, ErrClosed
	}
	pl := Placement{Sequence: p.seq.Next(owner)}
	p.tally.Total++

	if itemErr != nil {
		p.tally.Errors++
		return pl, nil
	}

	path := EntryPath(owner, pl.Sequence, payload.Ext)
	if err := p.write(path, payload.Bytes); err != nil {
		p.tally.Errors++
		return pl, err
	}
	pl.Path = path
	pl.Size = len(payload.Bytes)
	sum := sha256.Sum256(payload.Bytes)
	pl.SHA256 = hex.EncodeToString(sum[:])

	if payload.Fallback {
		p.tally.Errors++
	} else {
		p.tally.Processed++
	}
	return pl, nil
}

func (p *Packager) write(path string, data []byte) error {
	if _, dup := p.paths[path]; dup {
		return fmt.Errorf("%w: %s", ErrDuplicatePath, path)
	}
	w, err := p.zw.CreateHeader(&zip.FileHeader{
		Name:     path,
		Method:   zip.Deflate,
		Modified: p.modified,
	})
	if err != nil {
		return fmt.Errorf("archive: create %s: %w", path, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("archive: write %s: %w", path, err)
	}
	p.paths[path] = struct{}{}
	return nil
}

// Tally returns the counts so far.
func (p *Packager) Tally() Tally { return p.tally }

// Close finishes the archive and returns its bytes. It may be called once.
func (p *Packager) Close() ([]byte, error) {
	if p.closed {
		return nil, ErrClosed
	}
	p.closed = true
	if err := p.zw.Close(); err != nil {
		return nil, fmt.Errorf("archive: close: %w", err)
	}
	return p.buf.Bytes(), nil
}

// Name returns the archive file name for a run of tenant started at t.
func Name(tenant string, t time.Time) string {
	return fmt.Sprintf("sugos_export_%s_%s.zip", strings.ReplaceAll(tenant, "_", "-"), t.Format("20060102_150405"))
}

// List returns the entry names of a zip archive, in archive order.
func List(data []byte) ([]string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("archive: open: %w", err)
	}
	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	return names, nil
}

// ReadEntry returns the content of one entry of a zip archive.
func ReadEntry(data []byte, name string) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("archive: open: %w", err)
	}
	f, err := zr.Open(name)
	if err != nil {
		return nil, fmt.Errorf("archive: %s: %w", name, err)
	}
	defer f.Close()
	return io.ReadAll(f)
}
