// Package file delivers encoded results to a local directory or an
// S3-compatible bucket.
package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/wb-go/wbf/retry"

	"github.com/aliskhannn/pixelkit/internal/config"
)

// ErrInvalidName is returned for names that would escape the target directory.
var ErrInvalidName = errors.New("storage: invalid file name")

// Storage saves one result and returns where it ended up.
type Storage interface {
	Save(ctx context.Context, name, contentType string, data []byte) (string, error)
}

// DirStorage writes results into a local directory.
type DirStorage struct {
	dir string
}

// NewDirStorage creates dir if needed and returns a DirStorage rooted there.
func NewDirStorage(dir string) (*DirStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}
	return &DirStorage{dir: dir}, nil
}

// Save writes data to dir/name. Existing files are overwritten.
func (s *DirStorage) Save(ctx context.Context, name, _ string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	dst := filepath.Join(s.dir, name)
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to save file: %w", err)
	}

	return dst, nil
}

// New returns the storage selected by cfg: the S3 bucket when enabled,
// otherwise the local directory. prefix namespaces S3 objects.
func New(ctx context.Context, cfg config.Storage, prefix string, strategy retry.Strategy) (Storage, error) {
	if cfg.S3.Enabled {
		s, err := NewS3Storage(ctx, cfg.S3, prefix, strategy)
		if err != nil {
			return nil, err
		}
		return s, nil
	}

	d, err := NewDirStorage(cfg.Dir)
	if err != nil {
		return nil, err
	}
	return d, nil
}
