package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "behaviortwin.v1.TwinService"

const (
	methodObserve = "/" + ServiceName + "/Observe"
	methodReport  = "/" + ServiceName + "/Report"
	methodSave    = "/" + ServiceName + "/Save"
)

// #region service-desc

// TwinServiceServer is the server side of the twin service. Every message is
// a google.protobuf.Struct carrying the JSON form of the Go value.
type TwinServiceServer interface {
	Observe(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Report(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Save(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes the twin service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TwinServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Observe", Handler: unaryHandler(methodObserve, TwinServiceServer.Observe)},
		{MethodName: "Report", Handler: unaryHandler(methodReport, TwinServiceServer.Report)},
		{MethodName: "Save", Handler: unaryHandler(methodSave, TwinServiceServer.Save)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "behaviortwin/v1/twin.proto",
}

// RegisterTwinServiceServer registers srv on s.
func RegisterTwinServiceServer(s grpc.ServiceRegistrar, srv TwinServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

type unaryMethod func(TwinServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryMethod) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(TwinServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(TwinServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// #endregion service-desc

// #region conversion

// toStruct encodes v as JSON and lifts it into a Struct.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("lift message: %w", err)
	}
	return out, nil
}

// fromStruct lowers s to JSON and decodes it into v.
func fromStruct(s *structpb.Struct, v any) error {
	if s == nil {
		s = &structpb.Struct{}
	}
	data, err := protojson.Marshal(s)
	if err != nil {
		return fmt.Errorf("lower message: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	return nil
}

// #endregion conversion
