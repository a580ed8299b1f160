package monitor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"time"

	"ParkSlotServer/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"
)

var (
	registry = prometheus.NewRegistry()

	memUsage = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "memory_usage_Megabytes",
		Help: "Memory usage in Megabytes",
	})
	cpuUsage = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cpu_usage_percent",
		Help: "CPU usage in percent",
	})
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "occupancy_requests_total",
		Help: "Occupancy requests by transport and outcome",
	}, []string{"transport", "outcome"})
	DetectDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "occupancy_detect_seconds",
		Help:    "Time spent in the detector per request",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
	}, []string{"model"})
	OccupiedSlots = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "parking_occupied_slots",
		Help: "Occupied slots in the last processed image",
	}, []string{"model"})
	ModelsLoaded = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "parking_models_loaded",
		Help: "Detector model versions available",
	})
)

func init() {
	registry.MustRegister(memUsage, cpuUsage, RequestsTotal, DetectDuration, OccupiedSlots, ModelsLoaded)
}

// Handler serves the service metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}

// ObserveRequest counts one request. err == nil counts as "ok".
func ObserveRequest(transport string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	RequestsTotal.WithLabelValues(transport, outcome).Inc()
}

func ObserveDetect(model string, start time.Time) {
	DetectDuration.WithLabelValues(model).Observe(time.Since(start).Seconds())
}

func checkProcessInfo(p *process.Process) {
	memInfo, err := p.MemoryInfo()
	if err == nil {
		memUsage.Set(float64(memInfo.RSS / 1024 / 1024))
	}
	cpuPercent, err := p.CPUPercent()
	if err == nil {
		cpuUsage.Set(math.Round(cpuPercent*100) / 100)
	}
}

// StartMon serves /metrics on port and samples process usage until ctx ends.
func StartMon(ctx context.Context, port int) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		logger.Log().Error("process handle unavailable", zap.Error(err))
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log().Error("Prometheus server ListenAndServe error", zap.Error(err))
		}
	}()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
checkPcs:
	for {
		select {
		case <-ctx.Done():
			break checkPcs
		case <-ticker.C:
			if p != nil {
				checkProcessInfo(p)
			}
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log().Error("Prometheus server Shutdown error", zap.Error(err))
	}
}
