package iface

import (
	"context"

	"ParkSlotServer/geometry"

	"gocv.io/x/gocv"
)

type NamesConf struct {
	IsFile bool
	Data   any
}

// EngineConfig describes a loaded detector. Fields not used by a backend
// stay zero.
type EngineConfig struct {
	Kind      string
	Layout    string
	UseGPU    bool
	ModelPath string
	URL       string
	Names     NamesConf
	Classes   []string
	Conf      float32
	Iou       float32
	InputSize int
}

// Result is one detection before it is reduced to a box for slot matching.
type Result struct {
	Conf  float32
	Class string
	Box   geometry.Box
}

// Detector turns a preprocessed image (RGB, InputSize square) into vehicle
// boxes in that image's coordinate space.
type Detector interface {
	Detect(ctx context.Context, img gocv.Mat) ([]Result, error)
	Destroy()
	CheckConfig() EngineConfig
}

func Boxes(results []Result) []geometry.Box {
	out := make([]geometry.Box, len(results))
	for i, r := range results {
		out[i] = r.Box
	}
	return out
}
