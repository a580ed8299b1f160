package engine

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"sync"

	"ParkSlotServer/geometry"
	iface "ParkSlotServer/interface"
	"ParkSlotServer/logger"

	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// Detector runs an exported YOLO ONNX model through the OpenCV DNN module.
// gocv.Net is not safe for concurrent use, so Detect calls are serialised.
type Detector struct {
	mu        sync.Mutex
	ModelPath string
	Names     []string
	Classes   []string
	Layout    string
	Conf      float32
	Iou       float32
	UseGPU    bool
	InputSize int
	net       gocv.Net
	State     int
}

func (d *Detector) New() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.State = REGISTERED
	if d.InputSize <= 0 {
		d.InputSize = DefaultInputSize
	}
	if d.Layout == "" {
		d.Layout = LayoutYOLOv8
	}
	return true
}

func (d *Detector) CheckConfig() iface.EngineConfig {
	d.mu.Lock()
	defer d.mu.Unlock()
	return iface.EngineConfig{
		Kind:      KindONNX,
		Layout:    d.Layout,
		UseGPU:    d.UseGPU,
		ModelPath: d.ModelPath,
		Names:     iface.NamesConf{IsFile: false, Data: d.Names},
		Classes:   d.Classes,
		Conf:      d.Conf,
		Iou:       d.Iou,
		InputSize: d.InputSize,
	}
}

func (d *Detector) LoadModel(modelPath string, names iface.NamesConf, conf float32, iou float32, useGPU bool) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.State == UNREGISTERED {
		return false, errors.New("detector not registered")
	}
	if !strings.HasSuffix(modelPath, ".onnx") {
		return false, fmt.Errorf("onnx.LoadModel only supports .onnx, got %s", modelPath)
	}
	if conf < 0 || conf > 1 {
		return false, fmt.Errorf("confidence must be between 0.0 and 1.0, got %f", conf)
	}
	if iou < 0 || iou > 1 {
		return false, fmt.Errorf("IoU must be between 0.0 and 1.0, got %f", iou)
	}
	resolved, err := ResolveNames(names)
	if err != nil {
		return false, err
	}

	net := gocv.ReadNetFromONNX(modelPath)
	if net.Empty() {
		return false, fmt.Errorf("failed to read onnx model %s", modelPath)
	}
	if useGPU {
		net.SetPreferableBackend(gocv.NetBackendCUDA)
		net.SetPreferableTarget(gocv.NetTargetCUDA)
	} else {
		net.SetPreferableBackend(gocv.NetBackendDefault)
		net.SetPreferableTarget(gocv.NetTargetCPU)
	}
	if d.State == IDLE {
		_ = d.net.Close()
	}

	d.net = net
	d.Names = resolved
	d.ModelPath = modelPath
	d.Conf = conf
	d.Iou = iou
	d.UseGPU = useGPU
	d.State = IDLE
	return true, nil
}

func (d *Detector) Status() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.State
}

// Warmup pushes a few blank frames through the network so the first real
// request does not pay for CUDA kernel setup.
func (d *Detector) Warmup(rounds int) {
	blank := gocv.NewMatWithSize(32, 32, gocv.MatTypeCV8UC3)
	defer blank.Close()
	for i := 0; i < rounds; i++ {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Log().Warn("panic during warmup detect", zap.Any("panic", r))
				}
			}()
			_, _ = d.Detect(context.Background(), blank)
		}()
	}
}

func (d *Detector) SetInputSize(size int) {
	d.mu.Lock()
	d.InputSize = size
	d.mu.Unlock()
}

func (d *Detector) SetLayout(layout string) {
	d.mu.Lock()
	d.Layout = layout
	d.mu.Unlock()
}

// SetClasses restricts results to the named classes, e.g. "car".
func (d *Detector) SetClasses(classes []string) {
	d.mu.Lock()
	d.Classes = classes
	d.mu.Unlock()
}

func (d *Detector) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.State == IDLE {
		_ = d.net.Close()
	}
	d.ModelPath = ""
	d.Conf = 0
	d.Iou = 0
	d.UseGPU = false
	d.net = gocv.Net{}
	d.State = UNREGISTERED
}

func (d *Detector) Detect(ctx context.Context, img gocv.Mat) ([]iface.Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch d.State {
	case UNREGISTERED:
		return nil, errors.New("detector not registered")
	case REGISTERED:
		return nil, errors.New("model not loaded")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if img.Empty() {
		return nil, errors.New("empty input image")
	}
	d.State = BUSY
	defer func() { d.State = IDLE }()

	// input is already RGB, so no channel swap here
	blob := gocv.BlobFromImage(img, 1.0/255.0, image.Pt(d.InputSize, d.InputSize), gocv.NewScalar(0, 0, 0, 0), false, false)
	defer blob.Close()
	d.net.SetInput(blob, "")
	out := d.net.Forward("")
	defer out.Close()
	if out.Empty() {
		return nil, errors.New("forward pass returned no output")
	}

	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read output tensor: %w", err)
	}
	cands, err := decodeOutput(d.Layout, data, out.Size(), d.Conf)
	if err != nil {
		return nil, err
	}
	return postprocess(cands, d.Names, d.Classes, d.Layout, d.Iou), nil
}

// postprocess filters classes and suppresses overlapping boxes. End-to-end
// layouts are already suppressed by the model.
func postprocess(cands []candidate, names, classes []string, layout string, iou float32) []iface.Result {
	kept := make([]candidate, 0, len(cands))
	for _, c := range cands {
		if keepClass(classes, className(names, c.class)) {
			kept = append(kept, c)
		}
	}
	order := make([]int, len(kept))
	for i := range order {
		order[i] = i
	}
	if layout != LayoutYOLOv10 {
		boxes := make([]geometry.Box, len(kept))
		scores := make([]float64, len(kept))
		for i, c := range kept {
			boxes[i] = c.box
			scores[i] = float64(c.score)
		}
		order = geometry.NMS(boxes, scores, float64(iou))
	}
	out := make([]iface.Result, 0, len(order))
	for _, i := range order {
		c := kept[i]
		out = append(out, iface.Result{Conf: c.score, Class: className(names, c.class), Box: c.box})
	}
	return out
}
