// Package Adhoc keeps this instance registered with a discovery server.
package Adhoc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ParkSlotServer/logger"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const TimeOutSeconds = 5

type RegisterRequest struct {
	Id        string   `json:"id"`
	IP        string   `json:"ip"`
	Port      int      `json:"port"`
	HTTPPort  int      `json:"httpPort"`
	Models    []string `json:"models"`
	TimeStamp int64    `json:"timestamp"`
}

type RegisterResponse struct {
	Id      string `json:"id"`
	Success bool   `json:"success"`
}

type RegServerConfig struct {
	Addr     string
	Port     int
	Interval time.Duration
}

// Instance describes what gets advertised on every heartbeat.
type Instance struct {
	IP       string
	RPCPort  int
	HTTPPort int
	Models   []string
}

type Heartbeat struct {
	cfg    RegServerConfig
	inst   Instance
	id     string
	client *resty.Client
}

func NewHeartbeat(cfg RegServerConfig, inst Instance) *Heartbeat {
	if cfg.Interval <= 0 {
		cfg.Interval = TimeOutSeconds * time.Second
	}
	return &Heartbeat{
		cfg:    cfg,
		inst:   inst,
		id:     uuid.NewString(),
		client: resty.New().SetTimeout(TimeOutSeconds * time.Second),
	}
}

func (h *Heartbeat) ID() string { return h.id }

func (h *Heartbeat) url() string {
	return fmt.Sprintf("http://%s:%d/api/register", h.cfg.Addr, h.cfg.Port)
}

// Send posts a single registration.
func (h *Heartbeat) Send(ctx context.Context) (*RegisterResponse, error) {
	var respBody RegisterResponse
	resp, err := h.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(RegisterRequest{
			Id:        h.id,
			IP:        h.inst.IP,
			Port:      h.inst.RPCPort,
			HTTPPort:  h.inst.HTTPPort,
			Models:    h.inst.Models,
			TimeStamp: time.Now().Unix(),
		}).
		SetResult(&respBody).
		Post(h.url())
	if err != nil {
		return nil, fmt.Errorf("register request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("register server returned %s: %s", resp.Status(), resp.String())
	}
	return &respBody, nil
}

// Run registers right away and then once per interval until ctx is done.
func (h *Heartbeat) Run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	ticker := time.NewTicker(h.cfg.Interval)
	defer ticker.Stop()

	beat := func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Log().Error("heartbeat panic recovered", zap.Any("panic", r))
			}
		}()
		if _, err := h.Send(ctx); err != nil && ctx.Err() == nil {
			logger.Log().Error("heartbeat failed", zap.String("id", h.id), zap.Error(err))
		}
	}
	beat()
	for {
		select {
		case <-ctx.Done():
			logger.Log().Info("heartbeat stopped", zap.String("id", h.id))
			return
		case <-ticker.C:
			beat()
		}
	}
}
