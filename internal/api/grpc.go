package api

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "ap.approverselection.v1.ApproverSelection"

const (
	SelectApproverMethod   = "/" + ServiceName + "/SelectApprover"
	GetWorkloadStatsMethod = "/" + ServiceName + "/GetWorkloadStats"
)

// ApproverSelectionServer is implemented by the gRPC handler. Messages are
// google.protobuf.Struct values carrying the JSON wire types of this package.
type ApproverSelectionServer interface {
	SelectApprover(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetWorkloadStats(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// RegisterApproverSelectionServer registers srv on s.
func RegisterApproverSelectionServer(s grpc.ServiceRegistrar, srv ApproverSelectionServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// ServiceDesc describes the ApproverSelection service.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ApproverSelectionServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SelectApprover", Handler: selectApproverHandler},
		{MethodName: "GetWorkloadStats", Handler: getWorkloadStatsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ap/approverselection/v1/approver_selection.proto",
}

func selectApproverHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ApproverSelectionServer).SelectApprover(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: SelectApproverMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ApproverSelectionServer).SelectApprover(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func getWorkloadStatsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ApproverSelectionServer).GetWorkloadStats(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GetWorkloadStatsMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ApproverSelectionServer).GetWorkloadStats(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// ToStruct encodes v, which must marshal to a JSON object, as a Struct.
func ToStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(b, s); err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return s, nil
}

// FromStruct decodes s into v.
func FromStruct(s *structpb.Struct, v any) error {
	if s == nil {
		s = &structpb.Struct{}
	}
	b, err := protojson.Marshal(s)
	if err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	return nil
}
