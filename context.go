package goPortal

import (
	"context"

	"github.com/MrEthical07/goPortal/transport"
)

// WithRequestID attaches a request id to ctx. It is sent as X-Request-ID on
// every backend call made under ctx and recorded on audit events. Without it
// each call gets a fresh UUID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return transport.WithRequestID(ctx, id)
}

func requestIDFromContext(ctx context.Context) string {
	return transport.RequestID(ctx)
}
