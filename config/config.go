// Package config loads the service configuration from config.yaml.
//
// Section lines are in the detector's input coordinate space (InputSize
// square, 640 by default). Boxes are never rescaled back to the camera
// image, so the lines must be calibrated on a frame resized to that size.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"ParkSlotServer/blob"
	"ParkSlotServer/geometry"
	"ParkSlotServer/grid"

	"gopkg.in/yaml.v3"
)

var ErrConfigMismatch = errors.New("config mismatch")

const (
	StorageFS   = "fs"
	StorageHTTP = "http"
)

const (
	DefaultModelVersion = "v8"
	DefaultImageName    = "parking_lot_image.jpg"
)

type Point [2]float64

type SectionConfig struct {
	Start    Point `yaml:"start"`
	End      Point `yaml:"end"`
	Capacity int   `yaml:"capacity"`
}

// LotConfig accepts either sections, or the parallel sectionLines and
// sectionCapacities lists.
type LotConfig struct {
	Sections          []SectionConfig `yaml:"sections"`
	SectionLines      [][2]Point      `yaml:"sectionLines"`
	SectionCapacities []int           `yaml:"sectionCapacities"`
	SlotWidth         float64         `yaml:"slotWidth"`
	SlotLength        float64         `yaml:"slotLength"`
}

type ModelConfig struct {
	Kind      string   `yaml:"kind"`
	Path      string   `yaml:"path"`
	Blob      string   `yaml:"blob"`
	URL       string   `yaml:"url"`
	Layout    string   `yaml:"layout"`
	Names     []string `yaml:"names"`
	NamesFile string   `yaml:"namesFile"`
	Classes   []string `yaml:"classes"`
	Conf      float32  `yaml:"conf"`
	Iou       float32  `yaml:"iou"`
	UseGPU    bool     `yaml:"useGPU"`
}

type StorageConfig struct {
	Kind      string `yaml:"kind"`
	Dir       string `yaml:"dir"`
	Account   string `yaml:"account"`
	BaseURL   string `yaml:"baseURL"`
	Container string `yaml:"container"`
	SASToken  string `yaml:"sasToken"`
}

type Config struct {
	HTTPPort       int                    `yaml:"HTTPPort"`
	RPCPort        int                    `yaml:"RPCPort"`
	AdhocPort      int                    `yaml:"AdhocPort"`
	WorkersNum     int                    `yaml:"workersNum"`
	LogMode        string                 `yaml:"logMode"`
	UseRegServer   bool                   `yaml:"UseRegServer"`
	RegServerPort  int                    `yaml:"RegServerPort"`
	RegServerHost  string                 `yaml:"RegServerHost"`
	InputSize      int                    `yaml:"inputSize"`
	DefaultModel   string                 `yaml:"defaultModel"`
	ImageName      string                 `yaml:"imageName"`
	RequestTimeout time.Duration          `yaml:"requestTimeout"`
	SessionIdle    time.Duration          `yaml:"sessionIdle"`
	Lot            LotConfig              `yaml:"lot"`
	Models         map[string]ModelConfig `yaml:"models"`
	Storage        StorageConfig          `yaml:"storage"`
}

// Load reads path, expands ${VAR} references from the environment, applies
// defaults and validates the result.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Lot.normalize(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.HTTPPort == 0 {
		c.HTTPPort = 8080
	}
	if c.RPCPort == 0 {
		c.RPCPort = 50051
	}
	if c.AdhocPort == 0 {
		c.AdhocPort = 50053
	}
	if c.WorkersNum <= 0 {
		c.WorkersNum = 1
	}
	if c.InputSize <= 0 {
		c.InputSize = 640
	}
	if c.DefaultModel == "" {
		c.DefaultModel = DefaultModelVersion
	}
	if c.ImageName == "" {
		c.ImageName = DefaultImageName
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.SessionIdle <= 0 {
		c.SessionIdle = 30 * time.Second
	}
	if c.Storage.Kind == "" {
		c.Storage.Kind = StorageFS
	}
	if c.Storage.Kind == StorageFS && c.Storage.Dir == "" {
		c.Storage.Dir = "./data"
	}
	if c.Storage.BaseURL == "" && c.Storage.Account != "" {
		c.Storage.BaseURL = blob.AccountURL(c.Storage.Account)
	}
	for v, m := range c.Models {
		if m.Kind == "" {
			m.Kind = "onnx"
		}
		if m.Conf == 0 {
			m.Conf = 0.25
		}
		if m.Iou == 0 {
			m.Iou = 0.45
		}
		c.Models[v] = m
	}
}

func (c *Config) Validate() error {
	if err := c.Lot.Validate(); err != nil {
		return err
	}
	for v, m := range c.Models {
		switch m.Kind {
		case "onnx":
			if m.Path == "" && m.Blob == "" {
				return fmt.Errorf("model %s: onnx model needs path or blob", v)
			}
		case "remote":
			if m.URL == "" {
				return fmt.Errorf("model %s: remote model needs url", v)
			}
		default:
			return fmt.Errorf("model %s: unknown kind %q", v, m.Kind)
		}
	}
	switch c.Storage.Kind {
	case StorageFS:
	case StorageHTTP:
		if c.Storage.BaseURL == "" || c.Storage.Container == "" {
			return errors.New("storage: http store needs baseURL (or account) and container")
		}
	default:
		return fmt.Errorf("storage: unknown kind %q", c.Storage.Kind)
	}
	return nil
}

// Validate checks the lot geometry. The report reads the last three
// sections, so fewer is a mismatch.
func (l LotConfig) Validate() error {
	if len(l.Sections) < 3 {
		return fmt.Errorf("%w: need at least 3 sections, got %d", ErrConfigMismatch, len(l.Sections))
	}
	for i, s := range l.Sections {
		if s.Capacity <= 0 {
			return fmt.Errorf("%w: section %d has capacity %d", ErrConfigMismatch, i, s.Capacity)
		}
	}
	if l.SlotWidth <= 0 || l.SlotLength <= 0 {
		return fmt.Errorf("%w: slot size must be positive, got %gx%g", ErrConfigMismatch, l.SlotWidth, l.SlotLength)
	}
	return nil
}

func (l *LotConfig) normalize() error {
	if len(l.SectionLines) == 0 && len(l.SectionCapacities) == 0 {
		return nil
	}
	if len(l.Sections) > 0 {
		return errors.New("lot: use either sections or sectionLines/sectionCapacities, not both")
	}
	lot, err := FromLists(l.SectionLines, l.SectionCapacities, l.SlotWidth, l.SlotLength)
	if err != nil {
		return err
	}
	*l = lot
	return nil
}

// FromLists builds a lot from parallel line and capacity lists, the shape
// older configs used.
func FromLists(lines [][2]Point, capacities []int, slotWidth, slotLength float64) (LotConfig, error) {
	if len(lines) != len(capacities) {
		return LotConfig{}, fmt.Errorf("%w: %d section lines but %d capacities", ErrConfigMismatch, len(lines), len(capacities))
	}
	l := LotConfig{SlotWidth: slotWidth, SlotLength: slotLength}
	for i, ln := range lines {
		l.Sections = append(l.Sections, SectionConfig{Start: ln[0], End: ln[1], Capacity: capacities[i]})
	}
	return l, l.Validate()
}

func (l LotConfig) GridSections() []grid.Section {
	out := make([]grid.Section, len(l.Sections))
	for i, s := range l.Sections {
		out[i] = grid.Section{
			Start:    geometry.Point{X: s.Start[0], Y: s.Start[1]},
			End:      geometry.Point{X: s.End[0], Y: s.End[1]},
			Capacity: s.Capacity,
		}
	}
	return out
}

func (c *Config) ModelVersions() []string {
	out := make([]string, 0, len(c.Models))
	for v := range c.Models {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
