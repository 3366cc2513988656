// Package archive bundles encoded results into a single downloadable file.
package archive

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/klauspost/compress/zip"
)

// MIMEType is the content type of archives produced by Zip.
const MIMEType = "application/zip"

var (
	// ErrDuplicateEntry is returned when an entry name is added twice.
	ErrDuplicateEntry = errors.New("archive: duplicate entry")
	// ErrClosed is returned when adding to a finalized archive.
	ErrClosed = errors.New("archive: already closed")
)

// Writer collects named entries and produces the archive bytes on Close.
type Writer interface {
	Add(name string, data []byte) error
	Close() ([]byte, error)
}

// Zip is a Writer producing a deflate-compressed ZIP file in memory.
type Zip struct {
	buf      bytes.Buffer
	zw       *zip.Writer
	names    map[string]struct{}
	modified time.Time
	closed   bool
}

// NewZip creates an empty ZIP archive whose entries carry modified as their
// modification time.
func NewZip(modified time.Time) *Zip {
	z := &Zip{
		names:    make(map[string]struct{}),
		modified: modified,
	}
	z.zw = zip.NewWriter(&z.buf)
	return z
}

// Add stores data under name.
func (z *Zip) Add(name string, data []byte) error {
	if z.closed {
		return ErrClosed
	}
	if _, ok := z.names[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateEntry, name)
	}

	w, err := z.zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: z.modified,
	})
	if err != nil {
		return fmt.Errorf("archive: create %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("archive: write %s: %w", name, err)
	}

	z.names[name] = struct{}{}
	return nil
}

// Len returns the number of entries added so far.
func (z *Zip) Len() int {
	return len(z.names)
}

// Close finalizes the archive and returns its bytes. An archive with no
// entries is still a valid, empty ZIP file.
func (z *Zip) Close() ([]byte, error) {
	if z.closed {
		return nil, ErrClosed
	}
	z.closed = true

	if err := z.zw.Close(); err != nil {
		return nil, fmt.Errorf("archive: finalize: %w", err)
	}
	return z.buf.Bytes(), nil
}
