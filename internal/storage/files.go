package storage

import (
	"fmt"

	"connectifyr/internal/models"

	"github.com/vmihailenco/msgpack/v5"
	"go.etcd.io/bbolt"
)

// FileMetadata is the record behind /api/media/{id}. The blob itself lives
// in the file store under Hash; several uploads may share one blob.
type FileMetadata struct {
	ID        string `msgpack:"id"`
	Hash      string `msgpack:"hash"`
	MimeType  string `msgpack:"mimeType"`
	Name      string `msgpack:"name"`
	Size      int64  `msgpack:"size"`
	CreatedAt int64  `msgpack:"createdAt"`
	// ContactID is the chat the upload was sent to.
	ContactID string `msgpack:"contactId"`
}

func (f *FileMetadata) Key() []byte { return []byte(f.ID) }

func (f *FileMetadata) MarshalBinary() ([]byte, error) {
	type plain FileMetadata
	return msgpack.Marshal((*plain)(f))
}

func (f *FileMetadata) UnmarshalBinary(data []byte) error {
	type plain FileMetadata
	return msgpack.Unmarshal(data, (*plain)(f))
}

// UpsertFileMetadata stores meta in the files bucket, which survives logout.
func (s *BboltStorage) UpsertFileMetadata(meta FileMetadata) error {
	data, err := meta.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to encode media %s: %w", meta.ID, err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketFiles).Put(meta.Key(), data)
	})
}

func (s *BboltStorage) GetFileMetadata(id string) (FileMetadata, error) {
	meta := FileMetadata{ID: id}
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketFiles).Get(meta.Key())
		if data == nil {
			return fmt.Errorf("media %s: %w", id, models.ErrNotFound)
		}
		return meta.UnmarshalBinary(data)
	})
	if err != nil {
		return FileMetadata{}, err
	}
	return meta, nil
}
