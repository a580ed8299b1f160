// Package registry holds the detectors loaded at startup, keyed by model
// version. A Registry never changes after it is built.
package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"ParkSlotServer/blob"
	"ParkSlotServer/config"
	"ParkSlotServer/engine"
	iface "ParkSlotServer/interface"
	"ParkSlotServer/logger"

	"go.uber.org/zap"
)

type Registry struct {
	models  map[string]iface.Detector
	tempDir string
}

func New(models map[string]iface.Detector) *Registry {
	m := make(map[string]iface.Detector, len(models))
	for v, d := range models {
		m[v] = d
	}
	return &Registry{models: m}
}

func (r *Registry) Get(version string) (iface.Detector, bool) {
	d, ok := r.models[version]
	return d, ok
}

func (r *Registry) Versions() []string {
	out := make([]string, 0, len(r.models))
	for v := range r.models {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) Len() int {
	return len(r.models)
}

// Close destroys every detector and removes downloaded model files.
func (r *Registry) Close() {
	for _, d := range r.models {
		d.Destroy()
	}
	if r.tempDir != "" {
		_ = os.RemoveAll(r.tempDir)
	}
}

// Loader builds detectors from config. The factories are swappable so tests
// can avoid native model loading.
type Loader struct {
	Store     blob.Store
	InputSize int
	Timeout   time.Duration
	NewONNX   func(path string, m config.ModelConfig, inputSize int) (iface.Detector, error)
	NewRemote func(m config.ModelConfig, inputSize int, timeout time.Duration) (iface.Detector, error)
}

func NewLoader(store blob.Store, inputSize int, timeout time.Duration) *Loader {
	return &Loader{
		Store:     store,
		InputSize: inputSize,
		Timeout:   timeout,
		NewONNX:   newONNXDetector,
		NewRemote: newRemoteDetector,
	}
}

// Load builds a registry from models. A version that fails to load is
// logged and left out, the rest still serve.
func (l *Loader) Load(ctx context.Context, models map[string]config.ModelConfig) (*Registry, error) {
	tmp, err := os.MkdirTemp("", "parkslot-models-")
	if err != nil {
		return nil, fmt.Errorf("create model dir: %w", err)
	}
	reg := &Registry{models: make(map[string]iface.Detector, len(models)), tempDir: tmp}

	versions := make([]string, 0, len(models))
	for v := range models {
		versions = append(versions, v)
	}
	sort.Strings(versions)

	for _, v := range versions {
		d, err := l.loadOne(ctx, tmp, v, models[v])
		if err != nil {
			logger.Log().Error("Error loading model", zap.String("version", v), zap.Error(err))
			continue
		}
		reg.models[v] = d
		logger.Log().Info("Loaded model", zap.String("version", v), zap.String("kind", models[v].Kind))
	}
	return reg, nil
}

func (l *Loader) loadOne(ctx context.Context, tmp, version string, m config.ModelConfig) (iface.Detector, error) {
	switch m.Kind {
	case "remote":
		return l.NewRemote(m, l.InputSize, l.Timeout)
	case "onnx", "":
		path := m.Path
		if m.Blob != "" {
			if l.Store == nil {
				return nil, fmt.Errorf("model %s is a blob but no store is configured", version)
			}
			data, err := l.Store.Download(ctx, m.Blob)
			if err != nil {
				return nil, err
			}
			path = filepath.Join(tmp, version+"_"+filepath.Base(m.Blob))
			if err := os.WriteFile(path, data, 0o600); err != nil {
				return nil, fmt.Errorf("write model file: %w", err)
			}
		}
		return l.NewONNX(path, m, l.InputSize)
	}
	return nil, fmt.Errorf("unknown model kind %q", m.Kind)
}

func newONNXDetector(path string, m config.ModelConfig, inputSize int) (iface.Detector, error) {
	d := &engine.Detector{Layout: m.Layout, InputSize: inputSize}
	d.New()
	names := iface.NamesConf{IsFile: false, Data: m.Names}
	if m.NamesFile != "" {
		names = iface.NamesConf{IsFile: true, Data: m.NamesFile}
	}
	if _, err := d.LoadModel(path, names, m.Conf, m.Iou, m.UseGPU); err != nil {
		d.Destroy()
		return nil, err
	}
	d.SetClasses(m.Classes)
	if m.UseGPU {
		d.Warmup(3)
	}
	return d, nil
}

func newRemoteDetector(m config.ModelConfig, inputSize int, timeout time.Duration) (iface.Detector, error) {
	d := engine.NewRemoteDetector(m.URL, m.Classes, m.Conf, timeout)
	d.InputSize = inputSize
	return d, nil
}
