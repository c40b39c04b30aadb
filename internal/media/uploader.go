// Package media stores images pulled out of detail pages.
package media

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"unicode"
)

var (
	ErrInvalidDataURL = errors.New("media: not a base64 image data url")
	ErrEmptyImage     = errors.New("media: image payload is empty")
	ErrNotImage       = errors.New("media: payload is not an image")
)

var dataURLPattern = regexp.MustCompile(`^data:image/(png|jpeg|jpg|gif|webp);base64,(.+)$`)

// BlobStore writes objects under a key and resolves their public address.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	PublicURL(key string) string
}

// Image is a decoded data URL.
type Image struct {
	Ext         string
	ContentType string
	Data        []byte
}

// Uploader validates inline images and writes them to a BlobStore.
type Uploader struct {
	store  BlobStore
	prefix string
	logger *slog.Logger
}

func NewUploader(store BlobStore, prefix string, logger *slog.Logger) *Uploader {
	return &Uploader{
		store:  store,
		prefix: strings.Trim(prefix, "/"),
		logger: logger.With("component", "uploader"),
	}
}

// Upload decodes dataURL and stores it under logicalName. Uploading the same
// name twice overwrites the first object and returns the same URL.
func (u *Uploader) Upload(ctx context.Context, dataURL, logicalName string) (string, error) {
	img, err := Decode(dataURL)
	if err != nil {
		return "", err
	}

	key := u.ObjectKey(logicalName, img.Ext)
	if err := u.store.Put(ctx, key, img.Data, img.ContentType); err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}

	url := u.store.PublicURL(key)
	u.logger.Debug("image uploaded", "key", key, "bytes", len(img.Data), "url", url)
	return url, nil
}

// ObjectKey is the sanitized logical name with the image extension.
func (u *Uploader) ObjectKey(logicalName, ext string) string {
	key := sanitize(logicalName) + "." + ext
	if u.prefix != "" {
		return u.prefix + "/" + key
	}
	return key
}

// Decode parses and checks a data:image/...;base64 URL.
func Decode(dataURL string) (*Image, error) {
	m := dataURLPattern.FindStringSubmatch(strings.TrimSpace(dataURL))
	if m == nil {
		return nil, ErrInvalidDataURL
	}

	ext := m[1]
	if ext == "jpeg" {
		ext = "jpg"
	}

	data, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(m[2]), ""))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDataURL, err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}

	ct := http.DetectContentType(data)
	if !strings.HasPrefix(ct, "image/") {
		return nil, fmt.Errorf("%w: detected %s", ErrNotImage, ct)
	}

	return &Image{Ext: ext, ContentType: ct, Data: data}, nil
}

func sanitize(name string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "image"
	}
	return b.String()
}
