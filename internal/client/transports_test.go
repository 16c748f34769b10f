package client_test

import (
	"context"
	"net"
	"net/http/httptest"

	"github.com/go-logr/logr"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/san-kum/physlink/internal/channel"
	"github.com/san-kum/physlink/internal/client"
	"github.com/san-kum/physlink/internal/refengine"
)

type transportCase struct {
	name    string
	connect func() *client.PhysicsClient
}

func listen() net.Listener {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	Expect(err).NotTo(HaveOccurred())
	return ln
}

// transports starts a fresh reference engine behind every transport.
var transports = []transportCase{
	{"direct", func() *client.PhysicsClient {
		return client.New(channel.Direct(refengine.New()))
	}},
	{"direct msgpack", func() *client.PhysicsClient {
		return client.New(channel.Direct(refengine.New()), client.WithCodec(channel.Msgpack))
	}},
	{"framed tcp", func() *client.PhysicsClient {
		ctx, cancel := context.WithCancel(context.Background())
		srv := channel.NewFramedServer(listen(), refengine.New(), logr.Discard())
		go srv.Serve(ctx)
		DeferCleanup(cancel)

		tr, err := channel.DialFramed(context.Background(), srv.Addr().String())
		Expect(err).NotTo(HaveOccurred())
		return client.New(tr, client.WithCodec(channel.Msgpack))
	}},
	{"json-rpc http", func() *client.PhysicsClient {
		h, err := channel.NewHTTPHandler(refengine.New())
		Expect(err).NotTo(HaveOccurred())
		srv := httptest.NewServer(h)
		DeferCleanup(srv.Close)

		tr, err := channel.DialHTTP(context.Background(), srv.URL)
		Expect(err).NotTo(HaveOccurred())
		return client.New(tr)
	}},
	{"grpc", func() *client.PhysicsClient {
		ln := listen()
		srv := channel.NewGRPCServer(refengine.New(), logr.Discard())
		go srv.Serve(ln)
		DeferCleanup(srv.Stop)

		tr, err := channel.DialGRPC(context.Background(), ln.Addr().String())
		Expect(err).NotTo(HaveOccurred())
		return client.New(tr, client.WithCodec(channel.Msgpack))
	}},
}
