package engine

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"ParkSlotServer/geometry"
	iface "ParkSlotServer/interface"

	"github.com/go-resty/resty/v2"
	"gocv.io/x/gocv"
)

type remoteDetection struct {
	Box        []float64 `json:"box"`
	Confidence float32   `json:"confidence"`
	Class      string    `json:"class"`
}

type remoteResponse struct {
	Detections []remoteDetection `json:"detections"`
}

// RemoteDetector posts frames to an HTTP inference server, e.g. an
// ultralytics model behind a small web service, and reads back xyxy boxes.
type RemoteDetector struct {
	URL       string
	Classes   []string
	Conf      float32
	InputSize int
	client    *resty.Client
}

func NewRemoteDetector(url string, classes []string, conf float32, timeout time.Duration) *RemoteDetector {
	return &RemoteDetector{
		URL:       url,
		Classes:   classes,
		Conf:      conf,
		InputSize: DefaultInputSize,
		client:    resty.New().SetTimeout(timeout),
	}
}

func (r *RemoteDetector) CheckConfig() iface.EngineConfig {
	return iface.EngineConfig{
		Kind:      KindRemote,
		URL:       r.URL,
		Classes:   r.Classes,
		Conf:      r.Conf,
		InputSize: r.InputSize,
	}
}

func (r *RemoteDetector) Destroy() {
	r.client.GetClient().CloseIdleConnections()
}

func (r *RemoteDetector) Detect(ctx context.Context, img gocv.Mat) ([]iface.Result, error) {
	// the JPEG encoder expects BGR
	bgr := gocv.NewMat()
	defer bgr.Close()
	gocv.CvtColor(img, &bgr, gocv.ColorRGBToBGR)
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, bgr)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()
	return r.DetectJPEG(ctx, buf.GetBytes())
}

// DetectJPEG sends an already encoded frame.
func (r *RemoteDetector) DetectJPEG(ctx context.Context, frame []byte) ([]iface.Result, error) {
	var body remoteResponse
	resp, err := r.client.R().
		SetContext(ctx).
		SetFileReader("file", "frame.jpg", bytes.NewReader(frame)).
		SetResult(&body).
		Post(r.URL)
	if err != nil {
		return nil, fmt.Errorf("inference request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("inference server returned %s: %s", resp.Status(), resp.String())
	}

	out := make([]iface.Result, 0, len(body.Detections))
	for i, det := range body.Detections {
		if len(det.Box) != 4 {
			return nil, fmt.Errorf("detection %d has %d box values, want 4", i, len(det.Box))
		}
		if det.Confidence < r.Conf || !keepClass(r.Classes, det.Class) {
			continue
		}
		out = append(out, iface.Result{
			Conf:  det.Confidence,
			Class: det.Class,
			Box:   geometry.Box{X1: det.Box[0], Y1: det.Box[1], X2: det.Box[2], Y2: det.Box[3]},
		})
	}
	return out, nil
}
