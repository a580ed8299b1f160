package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"

	adhoc "ParkSlotServer/Adhoc"
	"ParkSlotServer/api"
	"ParkSlotServer/blob"
	"ParkSlotServer/config"
	"ParkSlotServer/engine"
	backend "ParkSlotServer/gRPC"
	"ParkSlotServer/logger"
	"ParkSlotServer/monitor"
	"ParkSlotServer/occupancy"
	"ParkSlotServer/registry"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func GetOutboundIP() (string, error) {
	// no packet is sent, dialing UDP only resolves the outbound route
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String(), nil
}

func newStore(cfg config.StorageConfig, timeout time.Duration) (blob.Store, error) {
	switch cfg.Kind {
	case config.StorageHTTP:
		return blob.NewHTTPStore(cfg.BaseURL, cfg.Container, cfg.SASToken, timeout), nil
	case config.StorageFS:
		return blob.NewFSStore(cfg.Dir)
	}
	return nil, fmt.Errorf("unknown storage kind %q", cfg.Kind)
}

func printBanner(cfg *config.Config, versions []string) {
	CPUNum := runtime.NumCPU()
	fmt.Println(strings.Repeat("#", 64))
	fmt.Printf("CPU Cores: %d\n", CPUNum)
	fmt.Println(" HTTP  Port:", cfg.HTTPPort)
	fmt.Println(" gRPC  Port:", cfg.RPCPort)
	fmt.Println(" Adhoc Port:", cfg.AdhocPort)
	fmt.Println("Configured Workers Num:", cfg.WorkersNum)
	fmt.Println("Sections:", len(cfg.Lot.GridSections()), "Storage:", cfg.Storage.Kind)
	fmt.Println("Configured Models:", strings.Join(cfg.ModelVersions(), ", "))
	fmt.Println("Loaded Models:", strings.Join(versions, ", "), "(default", cfg.DefaultModel+")")
	fmt.Println(strings.Repeat("#", 64))
	if cfg.WorkersNum > CPUNum {
		fmt.Println(strings.Repeat("!", 64))
		fmt.Println("Please noted that workersNum exceeds CPU cores, which may lead to performance degradation.")
		fmt.Println(strings.Repeat("!", 64))
	}
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Println("Failed to load config file:", err)
		os.Exit(1)
	}
	if err := logger.Init(cfg.LogMode); err != nil {
		fmt.Println("Failed to init logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()
	if cfg.LogMode != logger.ModeDevelopment {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := newStore(cfg.Storage, cfg.RequestTimeout)
	if err != nil {
		logger.Log().Fatal("storage setup failed", zap.Error(err))
	}

	reg, err := registry.NewLoader(store, cfg.InputSize, cfg.RequestTimeout).Load(ctx, cfg.Models)
	if err != nil {
		logger.Log().Fatal("model registry setup failed", zap.Error(err))
	}
	defer reg.Close()
	monitor.ModelsLoaded.Set(float64(reg.Len()))
	if reg.Len() == 0 {
		logger.Log().Warn("no model loaded, every occupancy request will fail")
	}
	printBanner(cfg, reg.Versions())

	pool := engine.NewWorkerPool(cfg.WorkersNum)
	defer pool.Close()

	svc, err := occupancy.NewService(reg, cfg.Lot,
		occupancy.WithRunner(pool),
		occupancy.WithStore(store, cfg.ImageName),
		occupancy.WithInputSize(cfg.InputSize),
	)
	if err != nil {
		logger.Log().Fatal("occupancy service setup failed", zap.Error(err))
	}

	var wg sync.WaitGroup
	if cfg.UseRegServer {
		ip, err := GetOutboundIP()
		if err != nil {
			logger.Log().Fatal("failed to get outbound IP", zap.Error(err))
		}
		logger.S().Infof("Outbound IP: %s, registering with %s:%d", ip, cfg.RegServerHost, cfg.RegServerPort)
		hb := adhoc.NewHeartbeat(
			adhoc.RegServerConfig{Addr: cfg.RegServerHost, Port: cfg.RegServerPort},
			adhoc.Instance{IP: ip, RPCPort: cfg.RPCPort, HTTPPort: cfg.HTTPPort, Models: reg.Versions()},
		)
		wg.Add(1)
		go hb.Run(ctx, &wg)
	} else {
		fmt.Println("UseRegServer is set to false, skipping registration")
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		monitor.StartMon(ctx, cfg.AdhocPort)
	}()

	grpcServer, err := backend.StartGRPCServer(backend.NewServer(svc, cfg.DefaultModel), cfg.RPCPort)
	if err != nil {
		logger.Log().Fatal("gRPC server setup failed", zap.Error(err))
	}

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: api.NewServer(svc, cfg).Router(),
	}
	go func() {
		logger.Log().Info("HTTP server listening", zap.Int("port", cfg.HTTPPort))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log().Error("HTTP server stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Log().Warn("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Log().Error("HTTP server shutdown", zap.Error(err))
	}
	grpcServer.GracefulStop()
	wg.Wait()
	fmt.Println("Safely exited")
}
