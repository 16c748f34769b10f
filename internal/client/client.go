package client

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/san-kum/physlink/internal/body"
	"github.com/san-kum/physlink/internal/channel"
	"github.com/san-kum/physlink/internal/config"
	"github.com/san-kum/physlink/internal/dynamo"
	"github.com/san-kum/physlink/internal/refengine"
)

type (
	ControlMode     = channel.ControlMode
	EngineInfo      = channel.EngineInfo
	Parameters      = channel.Parameters
	ParameterUpdate = channel.ParameterUpdate
)

const (
	ControlPosition = channel.ControlPosition
	ControlVelocity = channel.ControlVelocity
	ControlTorque   = channel.ControlTorque
)

type PhysicsClient struct {
	conn     *channel.Conn
	registry *body.Registry
	log      logr.Logger
	info     *EngineInfo
}

type options struct {
	log     logr.Logger
	codec   channel.Codec
	timeout time.Duration
}

type Option func(*options)

func WithLogger(log logr.Logger) Option {
	return func(o *options) { o.log = log }
}

func WithCodec(c channel.Codec) Option {
	return func(o *options) { o.codec = c }
}

// WithTimeout bounds each command that arrives without a deadline.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

func buildOptions(opts []Option) *options {
	o := &options{log: logr.Discard(), codec: channel.JSON}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// New wraps an open transport.
func New(t channel.Transport, opts ...Option) *PhysicsClient {
	o := buildOptions(opts)
	return &PhysicsClient{
		conn: channel.NewConn(t,
			channel.WithCodec(o.codec),
			channel.WithLogger(o.log),
			channel.WithTimeout(o.timeout)),
		registry: body.NewRegistry(),
		log:      o.log,
	}
}

// Connect opens the engine named by cfg and pushes cfg's world settings.
// The direct transport runs a reference engine in process.
func Connect(ctx context.Context, cfg *config.Config, opts ...Option) (*PhysicsClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	codec, err := channel.CodecByName(cfg.Engine.Codec)
	if err != nil {
		return nil, err
	}
	opts = append([]Option{WithCodec(codec), WithTimeout(cfg.Engine.Timeout)}, opts...)
	o := buildOptions(opts)

	var t channel.Transport
	if cfg.Engine.Transport == channel.TransportDirect {
		t = channel.Direct(refengine.New(refengine.WithLogger(o.log.WithName("engine"))))
	} else {
		t, err = channel.Dial(ctx, cfg.Engine.Transport, cfg.Engine.Address)
		if err != nil {
			return nil, fmt.Errorf("%w: dial %s %s: %v", dynamo.ErrTransport, cfg.Engine.Transport, cfg.Engine.Address, err)
		}
	}

	c := New(t, opts...)
	info, err := c.EngineInfo(ctx)
	if err != nil {
		c.Close()
		return nil, err
	}
	if err := c.SetPhysicsEngineParameters(ctx, cfg.World.Update()); err != nil {
		c.Close()
		return nil, err
	}
	c.log.V(1).Info("connected", "transport", cfg.Engine.Transport, "engine", info.Name, "version", info.Version)
	return c, nil
}

func (c *PhysicsClient) Close() error {
	c.registry.Invalidate()
	return c.conn.Close()
}

// EngineInfo is fetched once per connection.
func (c *PhysicsClient) EngineInfo(ctx context.Context) (*EngineInfo, error) {
	if c.info != nil {
		return c.info, nil
	}
	var info EngineInfo
	if err := c.conn.Call(ctx, channel.CmdEngineInfo, nil, &info); err != nil {
		return nil, err
	}
	c.info = &info
	return c.info, nil
}

// Registry exposes the body metadata cache.
func (c *PhysicsClient) Registry() *body.Registry { return c.registry }

// entry returns cached metadata for id, fetching it on a miss.
func (c *PhysicsClient) entry(ctx context.Context, id dynamo.BodyID) (*body.Entry, error) {
	if e, ok := c.registry.Get(id); ok {
		return e, nil
	}
	var r channel.BodyReply
	if err := c.conn.Call(ctx, channel.CmdBodyInfo, &channel.BodyArgs{Body: int(id)}, &r); err != nil {
		return nil, err
	}
	e, err := r.Entry()
	if err != nil {
		return nil, err
	}
	c.registry.Put(e)
	return e, nil
}
