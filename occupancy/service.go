// Package occupancy turns a parking lot image into a slot occupancy report.
package occupancy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"ParkSlotServer/blob"
	"ParkSlotServer/config"
	"ParkSlotServer/geometry"
	"ParkSlotServer/grid"
	iface "ParkSlotServer/interface"
	"ParkSlotServer/logger"
	"ParkSlotServer/monitor"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

var (
	ErrUnknownModelVersion = errors.New("unknown model version")
	ErrImageDecode         = errors.New("image decode failed")
	ErrDetectorInvocation  = errors.New("detector invocation failed")
)

// Models resolves a model version to a loaded detector.
type Models interface {
	Get(version string) (iface.Detector, bool)
	Versions() []string
}

// Runner executes a detector, e.g. on a bounded worker pool.
type Runner interface {
	Detect(ctx context.Context, det iface.Detector, img gocv.Mat) ([]iface.Result, error)
}

type directRunner struct{}

func (directRunner) Detect(ctx context.Context, det iface.Detector, img gocv.Mat) ([]iface.Result, error) {
	return det.Detect(ctx, img)
}

// Service runs detection on lot images and resolves detections to slots.
type Service struct {
	models    Models
	store     blob.Store
	runner    Runner
	lot       []grid.Section
	slotW     float64
	slotL     float64
	inputSize int
	imageName string
}

type Option func(*Service)

func WithRunner(r Runner) Option {
	return func(s *Service) { s.runner = r }
}

func WithStore(store blob.Store, imageName string) Option {
	return func(s *Service) {
		s.store = store
		s.imageName = imageName
	}
}

func WithInputSize(size int) Option {
	return func(s *Service) { s.inputSize = size }
}

func NewService(models Models, lot config.LotConfig, opts ...Option) (*Service, error) {
	if err := lot.Validate(); err != nil {
		return nil, err
	}
	s := &Service{
		models:    models,
		runner:    directRunner{},
		lot:       lot.GridSections(),
		slotW:     lot.SlotWidth,
		slotL:     lot.SlotLength,
		inputSize: 640,
		imageName: config.DefaultImageName,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Service) Models() []string {
	return s.models.Versions()
}

func (s *Service) Detector(version string) (iface.Detector, bool) {
	return s.models.Get(version)
}

// GetSlotOccupancy decodes imageBytes, runs the detector for modelVersion
// and resolves detections onto the configured lot. Detection boxes stay in
// the resized input space.
func (s *Service) GetSlotOccupancy(ctx context.Context, imageBytes []byte, modelVersion string) (*grid.Report, error) {
	det, ok := s.models.Get(modelVersion)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModelVersion, modelVersion)
	}

	img, err := s.prepare(imageBytes)
	if err != nil {
		return nil, err
	}
	defer img.Close()

	start := time.Now()
	results, err := s.runner.Detect(ctx, det, img)
	monitor.ObserveDetect(modelVersion, start)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDetectorInvocation, err)
	}
	logger.Log().Debug("detections", zap.String("model", modelVersion), zap.Int("count", len(results)))

	report, err := s.Resolve(iface.Boxes(results))
	if err != nil {
		return nil, err
	}
	report.ModelVersion = modelVersion
	monitor.OccupiedSlots.WithLabelValues(modelVersion).Set(float64(report.Occupied))
	return report, nil
}

// Resolve matches boxes onto the lot without running a detector.
func (s *Service) Resolve(boxes []geometry.Box) (*grid.Report, error) {
	layout := grid.Build(s.lot, boxes, s.slotW, s.slotL, nil)
	occupied := grid.ApplyMatches(layout.Grid, layout.Matches)
	return grid.NewReport(layout.Grid, occupied, len(boxes))
}

// prepare decodes to BGR, resizes to the detector input and swaps to RGB.
func (s *Service) prepare(imageBytes []byte) (gocv.Mat, error) {
	if len(imageBytes) == 0 {
		return gocv.NewMat(), fmt.Errorf("%w: empty image", ErrImageDecode)
	}
	src, err := gocv.IMDecode(imageBytes, gocv.IMReadColor)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("%w: %v", ErrImageDecode, err)
	}
	defer src.Close()
	if src.Empty() {
		return gocv.NewMat(), fmt.Errorf("%w: decoded image is empty or unsupported format", ErrImageDecode)
	}

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(src, &resized, image.Pt(s.inputSize, s.inputSize), 0, 0, gocv.InterpolationLinear)

	rgb := gocv.NewMat()
	gocv.CvtColor(resized, &rgb, gocv.ColorBGRToRGB)
	return rgb, nil
}

// CurrentState runs GetSlotOccupancy on the most recently stored lot image.
func (s *Service) CurrentState(ctx context.Context, modelVersion string) (*grid.Report, error) {
	if s.store == nil {
		return nil, errors.New("no image store configured")
	}
	data, err := s.store.Download(ctx, s.imageName)
	if err != nil {
		return nil, err
	}
	return s.GetSlotOccupancy(ctx, data, modelVersion)
}

// StoreImage normalises an upload and saves it as the current lot image.
func (s *Service) StoreImage(ctx context.Context, data []byte) error {
	if s.store == nil {
		return errors.New("no image store configured")
	}
	normalised, err := NormaliseUpload(data)
	if err != nil {
		return err
	}
	return s.store.Upload(ctx, s.imageName, normalised)
}

// NormaliseUpload applies EXIF orientation and re-encodes as JPEG, so the
// stored frame has the pixel layout the section lines were drawn on.
func NormaliseUpload(data []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageDecode, err)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(95)); err != nil {
		return nil, fmt.Errorf("encode upload: %w", err)
	}
	return buf.Bytes(), nil
}
