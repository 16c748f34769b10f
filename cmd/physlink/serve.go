package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/san-kum/physlink/internal/channel"
	"github.com/san-kum/physlink/internal/refengine"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "run the reference engine behind a network transport",
		RunE:  serve,
	}
	return cmd
}

func serve(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := newLogger()

	params := channel.Parameters{
		TimeStep:         cfg.World.TimeStep,
		Gravity:          cfg.World.Gravity,
		SubSteps:         cfg.World.SubSteps,
		SolverIterations: cfg.World.SolverIterations,
		Integrator:       cfg.World.Integrator,
	}
	engine := refengine.New(
		refengine.WithLogger(log.WithName("engine")),
		refengine.WithParameters(params),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", cfg.Engine.Address)
	if err != nil {
		return err
	}

	fmt.Println(panel.Render(
		title.Render("physlink reference engine") + "\n" +
			field("transport", cfg.Engine.Transport) + "\n" +
			field("address", ln.Addr()) + "\n" +
			field("integrator", params.Integrator) + "\n" +
			field("time step", params.TimeStep)))

	switch cfg.Engine.Transport {
	case channel.TransportTCP:
		srv := channel.NewFramedServer(ln, engine, log.WithName("framed"))
		return srv.Serve(ctx)

	case channel.TransportHTTP:
		h, err := channel.NewHTTPHandler(engine)
		if err != nil {
			ln.Close()
			return err
		}
		mux := http.NewServeMux()
		mux.Handle(channel.HTTPPath, h)
		srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			<-ctx.Done()
			shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdown)
		}()
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil

	case channel.TransportGRPC:
		srv := channel.NewGRPCServer(engine, log.WithName("grpc"))
		go func() {
			<-ctx.Done()
			srv.GracefulStop()
		}()
		return srv.Serve(ln)

	default:
		ln.Close()
		return fmt.Errorf("cannot serve over transport %q", cfg.Engine.Transport)
	}
}
