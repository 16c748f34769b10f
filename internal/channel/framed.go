package channel

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
)

var (
	ErrFramedClosed = errors.New("framed: connection closed")
	ErrFrameTooLong = errors.New("framed: frame too long")
)

// Frames are [4 len][1 type][4 seq][body]; the body is a msgpack envelope
// for requests and responses and a UTF-8 message for errors.
type frameType uint8

const (
	frameRequest  frameType = 0x01
	frameResponse frameType = 0x02
	frameError    frameType = 0x03
)

const (
	frameHeader   = 1 + 4
	maxFrameLen   = 64 * 1024 * 1024
	writeDeadline = 30 * time.Second
)

func writeFrame(w io.Writer, typ frameType, seq uint32, body []byte) error {
	n := frameHeader + len(body)
	if n > maxFrameLen {
		return ErrFrameTooLong
	}
	buf := make([]byte, 4+n)
	binary.BigEndian.PutUint32(buf[0:4], uint32(n))
	buf[4] = byte(typ)
	binary.BigEndian.PutUint32(buf[5:9], seq)
	copy(buf[9:], body)
	_, err := w.Write(buf)
	return err
}

func readFrame(r io.Reader) (frameType, uint32, []byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, 0, nil, err
	}
	n := binary.BigEndian.Uint32(header[:])
	if n < frameHeader || n > maxFrameLen {
		return 0, 0, nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLong, n)
	}
	msg := make([]byte, n)
	if _, err := io.ReadFull(r, msg); err != nil {
		return 0, 0, nil, err
	}
	return frameType(msg[0]), binary.BigEndian.Uint32(msg[1:5]), msg[5:], nil
}

type framedResult struct {
	st  *Status
	err error
}

// FramedTransport speaks length-prefixed frames over one TCP connection.
type FramedTransport struct {
	conn     net.Conn
	writeMu  sync.Mutex
	pending  sync.Map // seq -> chan framedResult
	closed   atomic.Bool
	readDone chan struct{}
}

func DialFramed(ctx context.Context, addr string) (*FramedTransport, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("framed dial: %w", err)
	}
	t := &FramedTransport{
		conn:     conn,
		readDone: make(chan struct{}),
	}
	go t.readLoop()
	return t, nil
}

func (t *FramedTransport) RoundTrip(ctx context.Context, req *Request) (*Status, error) {
	if t.closed.Load() {
		return nil, ErrFramedClosed
	}

	body, err := Msgpack.Encode(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	ch := make(chan framedResult, 1)
	t.pending.Store(req.Seq, ch)
	defer t.pending.Delete(req.Seq)

	t.writeMu.Lock()
	t.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	err = writeFrame(t.conn, frameRequest, req.Seq, body)
	t.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("framed write: %w", err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.st, res.err
	case <-t.readDone:
		return nil, ErrFramedClosed
	}
}

func (t *FramedTransport) readLoop() {
	defer close(t.readDone)
	for {
		typ, seq, body, err := readFrame(t.conn)
		if err != nil {
			return
		}
		v, ok := t.pending.Load(seq)
		if !ok {
			continue
		}
		ch := v.(chan framedResult)
		switch typ {
		case frameResponse:
			var st Status
			if err := Msgpack.Decode(body, &st); err != nil {
				ch <- framedResult{err: fmt.Errorf("decode status: %w", err)}
				continue
			}
			ch <- framedResult{st: &st}
		case frameError:
			ch <- framedResult{err: errors.New(string(body))}
		}
	}
}

func (t *FramedTransport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	return t.conn.Close()
}

// FramedServer serves a Handler over length-prefixed frames. Requests on one
// connection are handled in arrival order.
type FramedServer struct {
	listener net.Listener
	handler  Handler
	log      logr.Logger
	conns    sync.Map
	closed   atomic.Bool
}

func NewFramedServer(listener net.Listener, h Handler, log logr.Logger) *FramedServer {
	return &FramedServer{
		listener: listener,
		handler:  h,
		log:      log,
	}
}

// Serve accepts connections until Close is called or ctx is done.
func (s *FramedServer) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.closed.Load() {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			s.log.Error(err, "accept failed")
			continue
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *FramedServer) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	s.conns.Store(conn, struct{}{})
	defer s.conns.Delete(conn)

	log := s.log.WithValues("remote", conn.RemoteAddr().String())
	log.V(1).Info("client connected")
	for {
		typ, seq, body, err := readFrame(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !s.closed.Load() {
				log.Error(err, "read frame")
			}
			return
		}
		if typ != frameRequest {
			continue
		}

		var req Request
		if err := Msgpack.Decode(body, &req); err != nil {
			s.send(conn, frameError, seq, []byte("decode request: "+err.Error()))
			continue
		}
		st := s.handler.Handle(ctx, &req)
		out, err := Msgpack.Encode(st)
		if err != nil {
			s.send(conn, frameError, seq, []byte("encode status: "+err.Error()))
			continue
		}
		s.send(conn, frameResponse, seq, out)
	}
}

func (s *FramedServer) send(conn net.Conn, typ frameType, seq uint32, body []byte) {
	conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	if err := writeFrame(conn, typ, seq, body); err != nil {
		s.log.Error(err, "write frame", "seq", seq)
	}
}

func (s *FramedServer) Close() error {
	s.closed.Store(true)
	s.conns.Range(func(key, _ any) bool {
		key.(net.Conn).Close()
		return true
	})
	return s.listener.Close()
}

func (s *FramedServer) Addr() net.Addr {
	return s.listener.Addr()
}
