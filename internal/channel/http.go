package channel

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/rpc/v2"
	"github.com/gorilla/rpc/v2/json2"
)

const (
	// HTTPPath is where NewHTTPHandler is mounted by the serve command.
	HTTPPath      = "/rpc"
	httpRPCMethod = "Engine.Call"
)

// EngineService exposes a Handler as the JSON-RPC method Engine.Call.
type EngineService struct {
	h Handler
}

func (s *EngineService) Call(r *http.Request, req *Request, reply *Status) error {
	st := s.h.Handle(r.Context(), req)
	if st == nil {
		return fmt.Errorf("handler returned no status for %s", req.Command)
	}
	*reply = *st
	return nil
}

// NewHTTPHandler serves JSON-RPC 2.0 requests.
func NewHTTPHandler(h Handler) (http.Handler, error) {
	s := rpc.NewServer()
	s.RegisterCodec(json2.NewCodec(), "application/json")
	if err := s.RegisterService(&EngineService{h: h}, "Engine"); err != nil {
		return nil, fmt.Errorf("register engine service: %w", err)
	}
	return s, nil
}

// HTTPTransport posts JSON-RPC 2.0 requests.
type HTTPTransport struct {
	url    string
	client *http.Client
}

// DialHTTP accepts a host:port or a full URL. No connection is made until
// the first request.
func DialHTTP(_ context.Context, addr string) (*HTTPTransport, error) {
	url := addr
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "http://" + addr + HTTPPath
	}
	return &HTTPTransport{
		url:    url,
		client: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (t *HTTPTransport) RoundTrip(ctx context.Context, req *Request) (*Status, error) {
	body, err := json2.EncodeClientRequest(httpRPCMethod, req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer cleanlyClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("received status code: %d", resp.StatusCode)
	}

	var st Status
	if err := json2.DecodeClientResponse(resp.Body, &st); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &st, nil
}

func (t *HTTPTransport) Close() error {
	t.client.CloseIdleConnections()
	return nil
}

// cleanlyClose drains the body so the connection can be reused.
func cleanlyClose(body io.ReadCloser) error {
	_, _ = io.Copy(io.Discard, body)
	return body.Close()
}
