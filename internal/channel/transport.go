package channel

import (
	"context"
	"fmt"
)

// Transport names accepted by Dial.
const (
	TransportDirect = "direct"
	TransportTCP    = "tcp"
	TransportHTTP   = "http"
	TransportGRPC   = "grpc"
)

// Transport moves one request to the engine and returns its status.
// Implementations report only delivery failures as errors; engine-side
// failures come back as a non-OK Status.
type Transport interface {
	RoundTrip(ctx context.Context, req *Request) (*Status, error)
	Close() error
}

// Handler executes requests on the engine side.
type Handler interface {
	Handle(ctx context.Context, req *Request) *Status
}

// HandlerFunc is a function adapter for Handler.
type HandlerFunc func(ctx context.Context, req *Request) *Status

func (f HandlerFunc) Handle(ctx context.Context, req *Request) *Status {
	return f(ctx, req)
}

type direct struct {
	h Handler
}

// Direct calls an in-process handler.
func Direct(h Handler) Transport {
	return &direct{h: h}
}

func (d *direct) RoundTrip(ctx context.Context, req *Request) (*Status, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	st := d.h.Handle(ctx, req)
	if st == nil {
		return nil, fmt.Errorf("handler returned no status for %s", req.Command)
	}
	return st, nil
}

func (d *direct) Close() error { return nil }

// Dial connects to a remote engine. The direct transport needs a handler
// and cannot be dialed.
func Dial(ctx context.Context, transport, addr string) (Transport, error) {
	switch transport {
	case TransportTCP:
		return DialFramed(ctx, addr)
	case TransportHTTP:
		return DialHTTP(ctx, addr)
	case TransportGRPC:
		return DialGRPC(ctx, addr)
	default:
		return nil, fmt.Errorf("unknown transport: %s", transport)
	}
}
