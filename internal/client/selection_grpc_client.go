package client

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/pesio-ai/be-ap-approver-selection/internal/api"
)

// SelectionGRPCClient is a gRPC client for the approver selection service.
type SelectionGRPCClient struct {
	conn *grpc.ClientConn
}

// NewSelectionGRPCClient creates a new approver selection gRPC client.
func NewSelectionGRPCClient(addr string, opts ...grpc.DialOption) (*SelectionGRPCClient, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(forwardMetadata),
	}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}
	return &SelectionGRPCClient{conn: conn}, nil
}

// Close closes the gRPC connection
func (c *SelectionGRPCClient) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// SelectApprover asks the service to pick an approver.
func (c *SelectionGRPCClient) SelectApprover(ctx context.Context, req api.SelectApproverRequest) (*api.SelectApproverResponse, error) {
	in, err := api.ToStruct(req)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, api.SelectApproverMethod, in, out); err != nil {
		return nil, fmt.Errorf("failed to select approver: %w", err)
	}

	var resp api.SelectApproverResponse
	if err := api.FromStruct(out, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetWorkloadStats retrieves per-approver workload statistics.
func (c *SelectionGRPCClient) GetWorkloadStats(ctx context.Context) (*api.WorkloadStatsResponse, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, api.GetWorkloadStatsMethod, &structpb.Struct{}, out); err != nil {
		return nil, fmt.Errorf("failed to get workload stats: %w", err)
	}

	var resp api.WorkloadStatsResponse
	if err := api.FromStruct(out, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
