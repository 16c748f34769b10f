package channel

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-logr/logr"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

// GRPCMethod is the single method served by NewGRPCServer. There is no
// generated service; envelopes travel as JSON.
const GRPCMethod = "/physlink.Engine/Call"

type grpcJSON struct{}

func (grpcJSON) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (grpcJSON) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (grpcJSON) Name() string                       { return "json" }

// GRPCTransport calls GRPCMethod on a gRPC connection.
type GRPCTransport struct {
	conn *grpc.ClientConn
}

func DialGRPC(_ context.Context, addr string) (*GRPCTransport, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(grpcJSON{})),
	)
	if err != nil {
		return nil, fmt.Errorf("grpc dial: %w", err)
	}
	return &GRPCTransport{conn: conn}, nil
}

func (t *GRPCTransport) RoundTrip(ctx context.Context, req *Request) (*Status, error) {
	var st Status
	if err := t.conn.Invoke(ctx, GRPCMethod, req, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (t *GRPCTransport) Close() error {
	return t.conn.Close()
}

// NewGRPCServer returns a server answering GRPCMethod with h. The caller
// owns Serve and Stop.
func NewGRPCServer(h Handler, log logr.Logger) *grpc.Server {
	return grpc.NewServer(
		grpc.ForceServerCodec(grpcJSON{}),
		grpc.UnknownServiceHandler(func(_ any, stream grpc.ServerStream) error {
			method, _ := grpc.MethodFromServerStream(stream)
			if method != GRPCMethod {
				return status.Errorf(codes.Unimplemented, "unknown method %s", method)
			}
			var req Request
			if err := stream.RecvMsg(&req); err != nil {
				return err
			}
			st := h.Handle(stream.Context(), &req)
			if st == nil {
				return status.Errorf(codes.Internal, "no status for %s", req.Command)
			}
			log.V(2).Info("grpc call", "command", req.Command, "seq", req.Seq, "code", st.Code.String())
			return stream.SendMsg(st)
		}),
	)
}
