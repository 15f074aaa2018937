package blob

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var ErrEmptyBlob = errors.New("empty blob")

// Store uploads opaque blobs and hands back a URL a browser can fetch.
// Product images are the only caller today.
type Store interface {
	Upload(ctx context.Context, name string, data []byte) (string, error)
}

// DiskStore writes blobs under a local directory that is served statically,
// returning URLs under the configured base URL.
type DiskStore struct {
	dir     string
	baseURL string
}

func NewDiskStore(dir string, baseURL string) (*DiskStore, error) {
	if dir == "" {
		return nil, errors.New("media dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &DiskStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (s *DiskStore) Upload(_ context.Context, name string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyBlob
	}

	// Drop any path components the client sent along.
	name = filepath.Base(filepath.Clean(name))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return "", errors.New("invalid blob name")
	}

	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%s", s.baseURL, name), nil
}

type NoopStore struct{}

func (NoopStore) Upload(_ context.Context, name string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyBlob
	}
	return "/media/" + filepath.Base(name), nil
}
