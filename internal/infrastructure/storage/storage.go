// Package storage keeps uploaded binaries (receipt images, request files)
// outside the database. Records only hold the key and public URL.
package storage

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrNotFound is returned by Open when the key does not exist.
var ErrNotFound = errors.New("blob not found")

// ErrInvalidKey rejects keys that could escape the store's namespace.
var ErrInvalidKey = errors.New("invalid blob key")

// Blob describes a stored object.
type Blob struct {
	Key         string
	Size        int64
	ContentType string
	URL         string
}

// Store is the blob backend.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, contentType string) (*Blob, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	URL(key string) string
}

// NewKey returns a unique key that keeps the original extension, e.g.
// "3f1c...-b2.png". An optional prefix namespaces the key ("requests/<id>").
func NewKey(prefix, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if len(ext) > 10 || strings.ContainsAny(ext, `/\`) {
		ext = ""
	}
	key := uuid.NewString() + ext
	if prefix != "" {
		key = strings.Trim(prefix, "/") + "/" + key
	}
	return key
}

// validateKey allows slash-separated segments without traversal.
func validateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, `\`) {
		return ErrInvalidKey
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return ErrInvalidKey
		}
	}
	return nil
}
