package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"ParkSlotServer/geometry"
	iface "ParkSlotServer/interface"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

type mockDetector struct {
	calls  atomic.Int32
	panics bool
	err    error
}

func (m *mockDetector) Detect(ctx context.Context, img gocv.Mat) ([]iface.Result, error) {
	m.calls.Add(1)
	if m.panics {
		panic("native crash")
	}
	if m.err != nil {
		return nil, m.err
	}
	return []iface.Result{{Conf: 0.9, Class: "car", Box: geometry.Box{X1: 1, Y1: 1, X2: 2, Y2: 2}}}, nil
}
func (m *mockDetector) Destroy()                        {}
func (m *mockDetector) CheckConfig() iface.EngineConfig { return iface.EngineConfig{Kind: "mock"} }

func TestWorkerPool(t *testing.T) {
	pool := NewWorkerPool(2)
	defer pool.Close()
	img := gocv.NewMat()
	defer img.Close()

	t.Run("Test Detect", func(t *testing.T) {
		det := &mockDetector{}
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				got, err := pool.Detect(context.Background(), det, img)
				assert.NoError(t, err)
				assert.Len(t, got, 1)
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(8), det.calls.Load())
	})

	t.Run("Test Error", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := pool.Detect(context.Background(), &mockDetector{err: boom}, img)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("Test Panic Recovered", func(t *testing.T) {
		_, err := pool.Detect(context.Background(), &mockDetector{panics: true}, img)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "native crash")

		// the worker survives
		_, err = pool.Detect(context.Background(), &mockDetector{}, img)
		assert.NoError(t, err)
	})

	t.Run("Test Cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		det := &mockDetector{}
		_, err := pool.Detect(ctx, det, img)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, int32(0), det.calls.Load())
	})
}

func TestWorkerPool_Closed(t *testing.T) {
	pool := NewWorkerPool(1)
	pool.Close()
	pool.Close()
	img := gocv.NewMat()
	defer img.Close()
	_, err := pool.Detect(context.Background(), &mockDetector{}, img)
	assert.ErrorIs(t, err, ErrPoolClosed)
}
