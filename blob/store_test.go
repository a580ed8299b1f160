package blob

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFSStore(t *testing.T) {
	ctx := context.Background()
	s, err := NewFSStore(filepath.Join(t.TempDir(), "blobs"))
	require.NoError(t, err)

	t.Run("Test Round Trip", func(t *testing.T) {
		require.NoError(t, s.Upload(ctx, "parking_lot_image.jpg", []byte("first")))
		require.NoError(t, s.Upload(ctx, "parking_lot_image.jpg", []byte("second")))
		got, err := s.Download(ctx, "parking_lot_image.jpg")
		require.NoError(t, err)
		assert.Equal(t, []byte("second"), got)
	})

	t.Run("Test Nested", func(t *testing.T) {
		require.NoError(t, s.Upload(ctx, "models/best_v8.onnx", []byte("onnx")))
		_, err := os.Stat(filepath.Join(s.Dir, "models", "best_v8.onnx"))
		assert.NoError(t, err)
	})

	t.Run("Test Missing", func(t *testing.T) {
		_, err := s.Download(ctx, "nope.jpg")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Test Invalid Name", func(t *testing.T) {
		assert.Error(t, s.Upload(ctx, "../escape.jpg", []byte("x")))
		_, err := s.Download(ctx, "")
		assert.Error(t, err)
	})
}

type fakeAzure struct {
	mu    sync.Mutex
	blobs map[string][]byte
	sas   string
}

func (f *fakeAzure) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.RawQuery != f.sas {
		http.Error(w, "auth", http.StatusForbidden)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	switch r.Method {
	case http.MethodPut:
		if r.Header.Get("x-ms-blob-type") != "BlockBlob" {
			http.Error(w, "blob type", http.StatusBadRequest)
			return
		}
		b, _ := io.ReadAll(r.Body)
		f.blobs[r.URL.Path] = b
		w.WriteHeader(http.StatusCreated)
	case http.MethodGet:
		b, ok := f.blobs[r.URL.Path]
		if !ok {
			http.Error(w, "BlobNotFound", http.StatusNotFound)
			return
		}
		_, _ = w.Write(b)
	}
}

func TestHTTPStore(t *testing.T) {
	ctx := context.Background()
	fake := &fakeAzure{blobs: map[string][]byte{}, sas: "sv=2024&sig=abc"}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	s := NewHTTPStore(srv.URL+"/", "parking", "?sv=2024&sig=abc", 5*time.Second)
	require.NoError(t, s.Upload(ctx, "parking_lot_image.jpg", []byte{0xff, 0xd8}))
	assert.Contains(t, fake.blobs, "/parking/parking_lot_image.jpg")

	got, err := s.Download(ctx, "parking_lot_image.jpg")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff, 0xd8}, got)

	_, err = s.Download(ctx, "best_v5.pt")
	assert.ErrorIs(t, err, ErrNotFound)

	bad := NewHTTPStore(srv.URL, "parking", "sig=wrong", time.Second)
	assert.Error(t, bad.Upload(ctx, "x.jpg", []byte("x")))
	_, err = bad.Download(ctx, "parking_lot_image.jpg")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestAccountURL(t *testing.T) {
	assert.Equal(t, "https://lotcam.blob.core.windows.net", AccountURL("lotcam"))
}
