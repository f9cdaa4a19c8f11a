package media

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"connectifyr/internal/filestore"
	"connectifyr/internal/models"
	"connectifyr/internal/storage"

	"github.com/google/uuid"
)

// URLPrefix is where stored media is served from.
const URLPrefix = "/api/media/"

// MaxInlineSize caps media loaded into memory for the AI model.
const MaxInlineSize = 20 << 20

type MetadataStore interface {
	UpsertFileMetadata(meta storage.FileMetadata) error
	GetFileMetadata(id string) (storage.FileMetadata, error)
}

// Library stores uploads in the file store and resolves media references.
type Library struct {
	files filestore.FileStore
	meta  MetadataStore
	now   func() time.Time
}

func NewLibrary(files filestore.FileStore, meta MetadataStore) *Library {
	return &Library{files: files, meta: meta, now: time.Now}
}

// Store saves an upload and returns a reference to it along with how it
// should be displayed.
func (l *Library) Store(r io.Reader, name, declaredMime, contactID string) (models.MediaRef, models.ContentKind, error) {
	br := bufio.NewReaderSize(r, 512)
	head, err := br.Peek(512)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return models.MediaRef{}, "", fmt.Errorf("failed to read upload: %w", err)
	}
	kind, mime := Classify(head, declaredMime)

	hash, size, err := l.files.Save(br)
	if err != nil {
		return models.MediaRef{}, "", err
	}

	meta := storage.FileMetadata{
		ID:        uuid.NewString(),
		Hash:      hash,
		MimeType:  mime,
		Name:      name,
		Size:      size,
		CreatedAt: l.now().Unix(),
		ContactID: contactID,
	}
	if err := l.meta.UpsertFileMetadata(meta); err != nil {
		return models.MediaRef{}, "", err
	}

	return models.MediaRef{URL: URLPrefix + meta.ID, MimeType: mime, Name: name}, kind, nil
}

// Open returns the stored blob with the given media id.
func (l *Library) Open(id string) (io.ReadCloser, storage.FileMetadata, error) {
	meta, err := l.meta.GetFileMetadata(id)
	if err != nil {
		return nil, storage.FileMetadata{}, err
	}
	rc, err := l.files.Get(meta.Hash)
	if err != nil {
		return nil, storage.FileMetadata{}, err
	}
	return rc, meta, nil
}

// LoadMedia reads the bytes behind a media reference, either a data URL or a
// stored upload.
func (l *Library) LoadMedia(ref models.MediaRef) ([]byte, string, error) {
	if strings.HasPrefix(ref.URL, "data:") {
		return decodeInline(ref.URL)
	}

	id, ok := strings.CutPrefix(ref.URL, URLPrefix)
	if !ok {
		return nil, "", fmt.Errorf("unsupported media url %q", ref.URL)
	}
	rc, meta, err := l.Open(id)
	if err != nil {
		return nil, "", err
	}
	defer func() { _ = rc.Close() }()

	data, err := io.ReadAll(io.LimitReader(rc, MaxInlineSize+1))
	if err != nil {
		return nil, "", err
	}
	if len(data) > MaxInlineSize {
		return nil, "", fmt.Errorf("media %s is too large to inline", id)
	}
	return data, meta.MimeType, nil
}

func decodeInline(url string) ([]byte, string, error) {
	mime, data, err := ParseDataURL(url)
	if err != nil {
		return nil, "", err
	}
	return data, mime, nil
}
