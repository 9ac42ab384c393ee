// Package evidence stores entry and exit photographs.
package evidence

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Store saves an image and returns the reference recorded on the visit.
type Store interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
}

// Key builds the object key for a gate photo, e.g. "entry/<user>/20240101T080000Z.jpg".
func Key(direction string, userID uuid.UUID, at time.Time, ext string) string {
	return fmt.Sprintf("%s/%s/%s%s", direction, userID, at.UTC().Format("20060102T150405Z"), ext)
}

// DirStore writes images below a local directory. Used when no bucket is
// configured.
type DirStore struct {
	root string
}

func NewDirStore(root string) *DirStore {
	return &DirStore{root: root}
}

func (s *DirStore) Put(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	path := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := io.Copy(f, body); err != nil {
		return "", err
	}
	return key, nil
}
