package client

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

func TestForwardMetadata(t *testing.T) {
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer abc"))
	ctx = metadata.AppendToOutgoingContext(ctx, "x-request-id", "req-1")

	var seen metadata.MD
	invoker := func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		seen, _ = metadata.FromOutgoingContext(ctx)
		return nil
	}

	require.NoError(t, forwardMetadata(ctx, "/svc/Method", nil, nil, nil, invoker))
	assert.Equal(t, []string{"Bearer abc"}, seen.Get("authorization"))
	assert.Equal(t, []string{"req-1"}, seen.Get("x-request-id"))
}

func TestForwardMetadata_NoIncoming(t *testing.T) {
	var called bool
	invoker := func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		called = true
		_, ok := metadata.FromOutgoingContext(ctx)
		assert.False(t, ok)
		return nil
	}
	require.NoError(t, forwardMetadata(context.Background(), "/svc/Method", nil, nil, nil, invoker))
	assert.True(t, called)
}
