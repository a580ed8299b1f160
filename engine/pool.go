package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	iface "ParkSlotServer/interface"
	"ParkSlotServer/logger"

	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

var ErrPoolClosed = errors.New("worker pool closed")

type jobPackage struct {
	ctx      context.Context
	detector iface.Detector
	image    gocv.Mat
	result   chan jobResult
}

type jobResult struct {
	results []iface.Result
	err     error
}

// WorkerPool bounds concurrent inference. Each worker stays on one OS
// thread for the native calls it makes.
type WorkerPool struct {
	mu     sync.RWMutex
	closed bool
	jobs   chan jobPackage
	done   chan struct{}
	wg     sync.WaitGroup
}

func NewWorkerPool(workerNum int) *WorkerPool {
	if workerNum <= 0 {
		workerNum = 1
	}
	p := &WorkerPool{
		jobs: make(chan jobPackage, workerNum),
		done: make(chan struct{}),
	}
	p.wg.Add(workerNum)
	for i := 0; i < workerNum; i++ {
		go p.runWorker(i)
	}
	return p
}

func (p *WorkerPool) runWorker(workerID int) {
	defer p.wg.Done()
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	logger.Log().Debug("inference worker started", zap.Int("worker", workerID))
	for {
		select {
		case <-p.done:
			return
		case job := <-p.jobs:
			job.result <- p.run(workerID, job)
		}
	}
}

func (p *WorkerPool) run(workerID int, job jobPackage) (res jobResult) {
	defer func() {
		if r := recover(); r != nil {
			logger.Log().Error("inference worker panic recovered", zap.Int("worker", workerID), zap.Any("panic", r))
			res = jobResult{err: fmt.Errorf("detector panic: %v", r)}
		}
	}()
	if err := job.ctx.Err(); err != nil {
		return jobResult{err: err}
	}
	results, err := job.detector.Detect(job.ctx, job.image)
	return jobResult{results: results, err: err}
}

// Detect queues one inference and waits for it. The image must stay valid
// until Detect returns.
func (p *WorkerPool) Detect(ctx context.Context, det iface.Detector, img gocv.Mat) ([]iface.Result, error) {
	job := jobPackage{ctx: ctx, detector: det, image: img, result: make(chan jobResult, 1)}
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return nil, ErrPoolClosed
	}
	select {
	case p.jobs <- job:
		p.mu.RUnlock()
	case <-ctx.Done():
		p.mu.RUnlock()
		return nil, ctx.Err()
	}
	// once queued the worker owns img, so wait for it even on cancellation
	res := <-job.result
	return res.results, res.err
}

// Close stops the workers. Jobs still queued fail with ErrPoolClosed.
func (p *WorkerPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.done)
	p.mu.Unlock()
	p.wg.Wait()
	for {
		select {
		case job := <-p.jobs:
			job.result <- jobResult{err: ErrPoolClosed}
		default:
			return
		}
	}
}
