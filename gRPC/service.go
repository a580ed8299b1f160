// Package proto serves the occupancy service over gRPC. Messages are
// well-known protobuf types, so no generated code is needed.
package proto

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const ServiceName = "parkslot.ParkingService"

const (
	UploadImageMethod        = "/" + ServiceName + "/UploadImage"
	GetParkingLotStateMethod = "/" + ServiceName + "/GetParkingLotState"
	ListModelsMethod         = "/" + ServiceName + "/ListModels"
)

type ParkingServiceServer interface {
	UploadImage(context.Context, *wrapperspb.BytesValue) (*emptypb.Empty, error)
	GetParkingLotState(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	ListModels(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
}

func RegisterParkingServiceServer(s grpc.ServiceRegistrar, srv ParkingServiceServer) {
	s.RegisterService(&ParkingService_ServiceDesc, srv)
}

func uploadImageHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ParkingServiceServer).UploadImage(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: UploadImageMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ParkingServiceServer).UploadImage(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

func getParkingLotStateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ParkingServiceServer).GetParkingLotState(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GetParkingLotStateMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ParkingServiceServer).GetParkingLotState(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func listModelsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ParkingServiceServer).ListModels(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ListModelsMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ParkingServiceServer).ListModels(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

var ParkingService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ParkingServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "UploadImage", Handler: uploadImageHandler},
		{MethodName: "GetParkingLotState", Handler: getParkingLotStateHandler},
		{MethodName: "ListModels", Handler: listModelsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "parkslot.proto",
}

type ParkingServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewParkingServiceClient(cc grpc.ClientConnInterface) *ParkingServiceClient {
	return &ParkingServiceClient{cc: cc}
}

func (c *ParkingServiceClient) UploadImage(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, UploadImageMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ParkingServiceClient) GetParkingLotState(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, GetParkingLotStateMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ParkingServiceClient) ListModels(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, ListModelsMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
