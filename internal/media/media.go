package media

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"connectifyr/internal/models"

	"github.com/h2non/filetype"
)

const (
	VoiceMimeType = "audio/webm"
	VoiceName     = "Voice Message"
)

var ErrInvalidDataURL = errors.New("invalid data URL")

// Classify decides how an upload is shown from its leading bytes. The
// declared MIME type is only used when the content is not recognised.
func Classify(head []byte, declared string) (models.ContentKind, string) {
	mime := declared
	if kind, err := filetype.Match(head); err == nil && kind != filetype.Unknown {
		mime = kind.MIME.Value
	}
	if mime == "" {
		mime = "application/octet-stream"
	}

	switch {
	case filetype.IsImage(head), strings.HasPrefix(mime, "image/"):
		return models.KindImage, mime
	case filetype.IsVideo(head), strings.HasPrefix(mime, "video/"):
		return models.KindVideo, mime
	default:
		return models.KindFile, mime
	}
}

// DataURL encodes data as a base64 data URL.
func DataURL(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// ParseDataURL decodes a base64 data URL.
func ParseDataURL(s string) (mime string, data []byte, err error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return "", nil, ErrInvalidDataURL
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, ErrInvalidDataURL
	}
	mime, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return "", nil, fmt.Errorf("%w: only base64 payloads are supported", ErrInvalidDataURL)
	}
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	data, err = base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidDataURL, err)
	}
	return mime, data, nil
}
