package engine

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ParkSlotServer/geometry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemoteDetector(t *testing.T) {
	var gotFrame []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		file, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotFrame, _ = io.ReadAll(file)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"detections":[
			{"box":[10,20,30,40],"confidence":0.9,"class":"car"},
			{"box":[1,2,3,4],"confidence":0.2,"class":"car"},
			{"box":[5,5,9,9],"confidence":0.8,"class":"person"}
		]}`))
	}))
	defer srv.Close()

	d := NewRemoteDetector(srv.URL, []string{"car"}, 0.5, 5*time.Second)
	got, err := d.DetectJPEG(context.Background(), []byte("jpeg-bytes"))
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg-bytes"), gotFrame)
	require.Len(t, got, 1)
	assert.Equal(t, geometry.Box{X1: 10, Y1: 20, X2: 30, Y2: 40}, got[0].Box)
	assert.Equal(t, "car", got[0].Class)

	config := d.CheckConfig()
	assert.Equal(t, KindRemote, config.Kind)
	assert.Equal(t, srv.URL, config.URL)
	d.Destroy()
}

func TestRemoteDetector_Errors(t *testing.T) {
	t.Run("Test Server Error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model crashed", http.StatusInternalServerError)
		}))
		defer srv.Close()
		d := NewRemoteDetector(srv.URL, nil, 0, time.Second)
		_, err := d.DetectJPEG(context.Background(), []byte("x"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "500")
	})

	t.Run("Test Malformed Box", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"detections":[{"box":[1,2,3],"confidence":0.9}]}`))
		}))
		defer srv.Close()
		d := NewRemoteDetector(srv.URL, nil, 0, time.Second)
		_, err := d.DetectJPEG(context.Background(), []byte("x"))
		assert.Error(t, err)
	})

	t.Run("Test Unreachable", func(t *testing.T) {
		d := NewRemoteDetector("http://127.0.0.1:1/predict", nil, 0, time.Second)
		_, err := d.DetectJPEG(context.Background(), []byte("x"))
		assert.Error(t, err)
	})
}
