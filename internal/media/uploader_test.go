package media

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/court-auction-scraper/internal/config"
)

// 1x1 transparent PNG.
const pngBase64 = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR42mNkYAAAAAYAAjCB0C8AAAAASUVORK5CYII="

type memStore struct {
	objects map[string][]byte
	types   map[string]string
	err     error
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (s *memStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if s.err != nil {
		return s.err
	}
	s.objects[key] = data
	s.types[key] = contentType
	return nil
}

func (s *memStore) PublicURL(key string) string {
	return "https://blob.test/auction-images/" + key
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestUpload(t *testing.T) {
	store := newMemStore()
	u := NewUploader(store, "", testLogger())

	url, err := u.Upload(context.Background(), "data:image/png;base64,"+pngBase64, "20240130012345_1_20240301")
	require.NoError(t, err)

	assert.Equal(t, "https://blob.test/auction-images/20240130012345_1_20240301.png", url)
	require.Contains(t, store.objects, "20240130012345_1_20240301.png")
	assert.Equal(t, "image/png", store.types["20240130012345_1_20240301.png"])

	again, err := u.Upload(context.Background(), "data:image/png;base64,"+pngBase64, "20240130012345_1_20240301")
	require.NoError(t, err)
	assert.Equal(t, url, again)
	assert.Len(t, store.objects, 1)
}

func TestUpload_StoreError(t *testing.T) {
	store := newMemStore()
	store.err = errors.New("access denied")
	u := NewUploader(store, "thumbs", testLogger())

	_, err := u.Upload(context.Background(), "data:image/png;base64,"+pngBase64, "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "thumbs/x.png")
}

func TestDecode(t *testing.T) {
	notImage := base64.StdEncoding.EncodeToString([]byte("<html>not an image</html>"))

	tests := []struct {
		name    string
		input   string
		wantErr error
		wantExt string
	}{
		{name: "png", input: "data:image/png;base64," + pngBase64, wantExt: "png"},
		{name: "jpeg normalized", input: "data:image/jpeg;base64," + pngBase64, wantExt: "jpg"},
		{name: "not a data url", input: "https://example.com/a.png", wantErr: ErrInvalidDataURL},
		{name: "unsupported type", input: "data:image/svg+xml;base64," + pngBase64, wantErr: ErrInvalidDataURL},
		{name: "bad base64", input: "data:image/png;base64,!!!!", wantErr: ErrInvalidDataURL},
		{name: "payload is html", input: "data:image/png;base64," + notImage, wantErr: ErrNotImage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := Decode(tt.input)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantExt, img.Ext)
			assert.NotEmpty(t, img.Data)
		})
	}
}

func TestObjectKey(t *testing.T) {
	u := NewUploader(newMemStore(), "/thumbs/", testLogger())
	assert.Equal(t, "thumbs/2024타경_123_1.jpg", u.ObjectKey("2024타경 123/1", "jpg"))

	bare := NewUploader(newMemStore(), "", testLogger())
	assert.Equal(t, "image.png", bare.ObjectKey("  ", "png"))
}

func TestPublicURL(t *testing.T) {
	assert.Equal(t, "http://localhost:9000/auction-images/a%20b.png", publicURL("http://localhost:9000/auction-images", "a b.png"))
}

func TestNewMinioStore(t *testing.T) {
	s, err := NewMinioStore(config.StorageConfig{
		Endpoint:  "localhost:9000",
		AccessKey: "minio",
		SecretKey: "minio123",
		Bucket:    "auction-images",
	}, testLogger())
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9000/auction-images/k.png", s.PublicURL("k.png"))

	s, err = NewMinioStore(config.StorageConfig{
		Endpoint:      "s3.example.com",
		Bucket:        "auction-images",
		UseSSL:        true,
		PublicBaseURL: "https://cdn.example.com/images/",
	}, testLogger())
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/images/k.png", s.PublicURL("k.png"))
}
