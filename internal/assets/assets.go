// Package assets stores named binary blobs and hands back retrievable URLs.
package assets

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Store accepts a named blob and returns a URL it can later be fetched from.
type Store interface {
	Put(ctx context.Context, name string, data []byte) (string, error)
}

// Dir is a filesystem-backed Store serving blobs under a URL prefix. Object
// names get a uuid prefix so repeated imports never collide.
type Dir struct {
	root    string
	baseURL string
}

// NewDir creates the root directory if needed.
func NewDir(root, baseURL string) (*Dir, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create asset dir: %w", err)
	}
	return &Dir{root: root, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Put writes the blob and returns its URL.
func (d *Dir) Put(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	object := uuid.NewString() + "-" + filepath.Base(name)
	if err := os.WriteFile(filepath.Join(d.root, object), data, 0o644); err != nil {
		return "", fmt.Errorf("write asset %s: %w", name, err)
	}
	return d.baseURL + "/" + object, nil
}

// Root returns the directory blobs land in, for mounting a file server.
func (d *Dir) Root() string {
	return d.root
}
