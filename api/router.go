// Package api exposes the occupancy service over HTTP and websocket.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"ParkSlotServer/config"
	"ParkSlotServer/engine"
	"ParkSlotServer/logger"
	"ParkSlotServer/monitor"
	"ParkSlotServer/occupancy"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// maxImageBytes caps uploads and websocket frames.
var maxImageBytes int64 = 20 << 20

var errUploadTooLarge = errors.New("upload too large")

// Server serves the occupancy service over gin routes and a websocket.
type Server struct {
	svc            *occupancy.Service
	defaultModel   string
	requestTimeout time.Duration
	idleTimeout    time.Duration
	upgrader       websocket.Upgrader
}

func NewServer(svc *occupancy.Service, cfg *config.Config) *Server {
	return &Server{
		svc:            svc,
		defaultModel:   cfg.DefaultModel,
		requestTimeout: cfg.RequestTimeout,
		idleTimeout:    cfg.SessionIdle,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())
	r.GET("/api/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	r.GET("/api/models", s.listModels)
	r.POST("/upload_image/", s.uploadImage)
	r.GET("/get_parking_lot_state/", s.parkingLotState)
	r.POST("/api/occupancy", s.occupancyOf)
	r.GET("/ws/occupancy", s.streamOccupancy)
	r.GET("/metrics", gin.WrapH(monitor.Handler()))
	return r
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Header("X-Request-ID", id)
		start := time.Now()
		c.Next()
		logger.Named("http").Info("request",
			zap.String("id", id),
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

func (s *Server) modelVersion(c *gin.Context) string {
	if v := c.Query("model_version"); v != "" {
		return v
	}
	return s.defaultModel
}

func (s *Server) listModels(c *gin.Context) {
	versions := s.svc.Models()
	out := make([]gin.H, 0, len(versions))
	for _, v := range versions {
		det, ok := s.svc.Detector(v)
		if !ok {
			continue
		}
		cfg := det.CheckConfig()
		item := gin.H{
			"version":   v,
			"kind":      cfg.Kind,
			"layout":    cfg.Layout,
			"conf":      cfg.Conf,
			"iou":       cfg.Iou,
			"useGPU":    cfg.UseGPU,
			"inputSize": cfg.InputSize,
			"classes":   cfg.Classes,
		}
		if d, ok := det.(*engine.Detector); ok {
			item["state"] = engine.StateName(d.Status())
		}
		out = append(out, item)
	}
	c.JSON(http.StatusOK, gin.H{"data": out, "default": s.defaultModel})
}

func readUpload(c *gin.Context) ([]byte, error) {
	file, err := c.FormFile("file")
	if err != nil {
		return nil, err
	}
	if file.Size > maxImageBytes {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", errUploadTooLarge, file.Size, maxImageBytes)
	}
	f, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func uploadFailed(c *gin.Context, err error) {
	code := http.StatusBadRequest
	if errors.Is(err, errUploadTooLarge) {
		code = http.StatusRequestEntityTooLarge
	}
	c.JSON(code, gin.H{"error": "File upload failed: " + err.Error()})
}

func (s *Server) uploadImage(c *gin.Context) {
	data, err := readUpload(c)
	if err != nil {
		uploadFailed(c, err)
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.requestTimeout)
	defer cancel()
	if err := s.svc.StoreImage(ctx, data); err != nil {
		logger.Log().Error("store image", zap.Error(err))
		code := http.StatusInternalServerError
		if errors.Is(err, occupancy.ErrImageDecode) {
			code = http.StatusBadRequest
		}
		c.JSON(code, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Image uploaded successfully"})
}

// parkingLotState answers with HTTP 200 even on failure, carrying the
// message in an error field.
func (s *Server) parkingLotState(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.requestTimeout)
	defer cancel()
	report, err := s.svc.CurrentState(ctx, s.modelVersion(c))
	monitor.ObserveRequest("http", err)
	if err != nil {
		logger.Log().Warn("parking lot state failed", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

// occupancyOf runs detection on the posted image without storing it.
func (s *Server) occupancyOf(c *gin.Context) {
	data, err := readUpload(c)
	if err != nil {
		uploadFailed(c, err)
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.requestTimeout)
	defer cancel()
	report, err := s.svc.GetSlotOccupancy(ctx, data, s.modelVersion(c))
	monitor.ObserveRequest("http", err)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}
