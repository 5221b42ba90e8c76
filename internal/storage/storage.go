// Package storage persists generated clips so compositions do not depend on
// provider-hosted URLs that expire. It defines the Storage port and local
// disk and S3 implementations.
package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
)

// ErrInvalidKey is returned for empty keys or keys escaping the store root.
var ErrInvalidKey = errors.New("storage: invalid key")

// Storage stores objects and returns a URL the render engine can fetch.
type Storage interface {
	// Store writes data under key and returns its public URL.
	Store(ctx context.Context, key string, data io.Reader, contentType string) (url string, err error)
}

// cleanKey normalizes key to a relative slash path and rejects traversal.
func cleanKey(key string) (string, error) {
	k := path.Clean("/" + strings.TrimSpace(key))
	k = strings.TrimPrefix(k, "/")
	if k == "" || k == "." {
		return "", ErrInvalidKey
	}
	return k, nil
}

// ClipKey is the object key of a job's archived clip.
func ClipKey(listingID, batchID, jobID string) string {
	return path.Join("clips", listingID, batchID, jobID+".mp4")
}
