package channel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/san-kum/physlink/internal/dynamo"
)

// Conn keeps at most one request in flight on a Transport. Failures are
// reported, never retried.
type Conn struct {
	mu      sync.Mutex
	t       Transport
	codec   Codec
	log     logr.Logger
	timeout time.Duration
	seq     uint32
	closed  bool
}

type Option func(*Conn)

func WithCodec(c Codec) Option {
	return func(conn *Conn) { conn.codec = c }
}

func WithLogger(log logr.Logger) Option {
	return func(conn *Conn) { conn.log = log }
}

// WithTimeout bounds every call that arrives without a deadline.
func WithTimeout(d time.Duration) Option {
	return func(conn *Conn) { conn.timeout = d }
}

func NewConn(t Transport, opts ...Option) *Conn {
	c := &Conn{
		t:     t,
		codec: JSON,
		log:   logr.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Conn) Codec() Codec { return c.codec }

// Call sends cmd with args and decodes the reply payload into reply. Either
// may be nil. Non-OK statuses come back as *dynamo.StatusError.
func (c *Conn) Call(ctx context.Context, cmd Command, args, reply any) error {
	var payload []byte
	if args != nil {
		var err error
		payload, err = c.codec.Encode(args)
		if err != nil {
			return fmt.Errorf("%s: encode: %w", cmd, err)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("%s: %w", cmd, dynamo.ErrNotConnected)
	}

	if _, ok := ctx.Deadline(); !ok && c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	c.seq++
	req := &Request{
		Seq:      c.seq,
		Command:  cmd,
		Encoding: c.codec.Name(),
		Payload:  payload,
	}

	start := time.Now()
	st, err := c.t.RoundTrip(ctx, req)
	if err != nil {
		c.log.V(1).Info("call failed", "command", cmd, "seq", req.Seq, "error", err.Error())
		return fmt.Errorf("%w: %s: %v", dynamo.ErrTransport, cmd, err)
	}
	if st.Seq != req.Seq {
		return fmt.Errorf("%w: %s: status seq %d for request %d", dynamo.ErrTransport, cmd, st.Seq, req.Seq)
	}
	c.log.V(1).Info("call", "command", cmd, "seq", req.Seq, "code", st.Code.String(), "elapsed", time.Since(start))

	if st.Code != OK {
		return &dynamo.StatusError{
			Command: string(cmd),
			Code:    st.Code.String(),
			Message: st.Message,
			Wrapped: st.Code.Err(),
		}
	}
	if reply != nil && len(st.Payload) > 0 {
		if err := c.codec.Decode(st.Payload, reply); err != nil {
			return fmt.Errorf("%w: %s: decode reply: %v", dynamo.ErrTransport, cmd, err)
		}
	}
	return nil
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.t.Close()
}
