package filestore

import (
	"io"
)

// FileStore keeps uploaded blobs addressed by the hash of their content.
type FileStore interface {
	// Save stores the content read from r and returns its hash and size.
	// Saving the same content twice keeps a single copy.
	Save(r io.Reader) (hash string, size int64, err error)

	// Get opens the content stored under hash.
	Get(hash string) (io.ReadCloser, error)
}
