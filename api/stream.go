package api

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"

	"ParkSlotServer/logger"
	"ParkSlotServer/monitor"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type streamError struct {
	Error string `json:"error"`
}

// decodeBase64Image accepts plain base64 or a data:image/...;base64, URL.
func decodeBase64Image(msg string) ([]byte, error) {
	if i := strings.Index(msg, ","); i != -1 && strings.HasPrefix(msg, "data:") {
		msg = msg[i+1:]
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(msg))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("empty image")
	}
	return data, nil
}

// streamOccupancy answers every image frame on the socket with a report.
// Binary frames carry raw image bytes, text frames base64. A session that
// stays quiet for the idle timeout is closed.
func (s *Server) streamOccupancy(c *gin.Context) {
	version := s.modelVersion(c)
	if _, ok := s.svc.Detector(version); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown model version: " + version})
		return
	}
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader already replied
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxImageBytes)

	sessionID := uuid.NewString()
	log := logger.Named("ws").With(zap.String("session", sessionID), zap.String("model", version))
	log.Info("stream session opened")

	for {
		_ = conn.SetReadDeadline(time.Now().Add(s.idleTimeout))
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			var netErr interface{ Timeout() bool }
			if errors.As(err, &netErr) && netErr.Timeout() {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "idle timeout, released"),
					time.Now().Add(time.Second))
			}
			log.Info("stream session closed", zap.Error(err))
			return
		}

		var data []byte
		switch mt {
		case websocket.BinaryMessage:
			data = msg
		case websocket.TextMessage:
			data, err = decodeBase64Image(string(msg))
			if err != nil {
				_ = conn.WriteJSON(streamError{Error: "invalid image: " + err.Error()})
				continue
			}
		default:
			_ = conn.WriteJSON(streamError{Error: "unsupported message type"})
			continue
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), s.requestTimeout)
		report, err := s.svc.GetSlotOccupancy(ctx, data, version)
		cancel()
		monitor.ObserveRequest("ws", err)
		if err != nil {
			_ = conn.WriteJSON(streamError{Error: err.Error()})
			continue
		}
		if err := conn.WriteJSON(report); err != nil {
			log.Warn("stream write failed", zap.Error(err))
			return
		}
	}
}
