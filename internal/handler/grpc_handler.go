package handler

import (
	"context"

	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/pesio-ai/be-ap-approver-selection/internal/api"
	"github.com/pesio-ai/be-ap-approver-selection/internal/platform/errors"
)

// GRPCHandler implements the ApproverSelection gRPC interface
type GRPCHandler struct {
	service SelectionService
	logger  zerolog.Logger
}

var _ api.ApproverSelectionServer = (*GRPCHandler)(nil)

// NewGRPCHandler creates a new gRPC handler
func NewGRPCHandler(service SelectionService, logger zerolog.Logger) *GRPCHandler {
	return &GRPCHandler{
		service: service,
		logger:  logger.With().Str("handler", "grpc").Logger(),
	}
}

// SelectApprover picks an approver for a level
func (h *GRPCHandler) SelectApprover(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req api.SelectApproverRequest
	if err := api.FromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	h.logger.Info().
		Int("hierarchy_level", req.Level).
		Int64("amount", req.Amount).
		Int("requested", len(req.RequestedApprovers)).
		Msg("gRPC SelectApprover called")

	res, err := h.service.SelectApprover(ctx, req)
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return encode(api.FromResult(res))
}

// GetWorkloadStats returns per-approver workload statistics
func (h *GRPCHandler) GetWorkloadStats(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	stats, err := h.service.GetWorkloadStats(ctx)
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return encode(api.FromWorkloadStats(stats))
}

func encode(v any) (*structpb.Struct, error) {
	out, err := api.ToStruct(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func mapErrorToGRPC(err error) error {
	if err == nil {
		return nil
	}
	return status.Error(errors.GRPCCode(err), errorMessage(err))
}
