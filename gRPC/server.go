package proto

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"ParkSlotServer/blob"
	"ParkSlotServer/grid"
	"ParkSlotServer/logger"
	"ParkSlotServer/monitor"
	"ParkSlotServer/occupancy"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const maxMsgSize = 32 << 20

type Server struct {
	svc          *occupancy.Service
	defaultModel string
}

func NewServer(svc *occupancy.Service, defaultModel string) *Server {
	return &Server{svc: svc, defaultModel: defaultModel}
}

func (s *Server) UploadImage(ctx context.Context, req *wrapperspb.BytesValue) (*emptypb.Empty, error) {
	if err := s.svc.StoreImage(ctx, req.GetValue()); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *Server) GetParkingLotState(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	version := req.GetValue()
	if version == "" {
		version = s.defaultModel
	}
	report, err := s.svc.CurrentState(ctx, version)
	if err != nil {
		return nil, toStatus(err)
	}
	return reportStruct(report)
}

func (s *Server) ListModels(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	versions := s.svc.Models()
	values := make([]any, len(versions))
	for i, v := range versions {
		values[i] = v
	}
	return structpb.NewList(values)
}

func reportStruct(r *grid.Report) (*structpb.Struct, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return structpb.NewStruct(m)
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, occupancy.ErrUnknownModelVersion), errors.Is(err, blob.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, occupancy.ErrImageDecode):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func observeUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	monitor.ObserveRequest("grpc", err)
	fields := []zap.Field{
		zap.String("method", info.FullMethod),
		zap.Duration("latency", time.Since(start)),
	}
	if err != nil {
		logger.Named("grpc").Warn("request failed", append(fields, zap.Error(err))...)
	} else {
		logger.Named("grpc").Info("request", fields...)
	}
	return resp, err
}

// NewGRPCServer builds a server with the parking and health services
// registered.
func NewGRPCServer(srv *Server) *grpc.Server {
	s := grpc.NewServer(
		grpc.MaxRecvMsgSize(maxMsgSize),
		grpc.ChainUnaryInterceptor(observeUnary),
	)
	RegisterParkingServiceServer(s, srv)

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	return s
}

// StartGRPCServer listens on port and serves in the background.
func StartGRPCServer(srv *Server, port int) (*grpc.Server, error) {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("grpc listen: %w", err)
	}
	s := NewGRPCServer(srv)
	go func() {
		logger.Log().Info("gRPC server listening", zap.Int("port", port))
		if err := s.Serve(lis); err != nil {
			logger.Log().Error("gRPC server stopped", zap.Error(err))
		}
	}()
	return s, nil
}
