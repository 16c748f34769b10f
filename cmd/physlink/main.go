package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
	"github.com/san-kum/physlink/internal/client"
	"github.com/san-kum/physlink/internal/config"
	"github.com/san-kum/physlink/internal/dynamo"
	"github.com/spf13/cobra"
)

var (
	configFile string
	transport  string
	address    string
	codec      string
	preset     string
	dataDir    string
	verbose    int
	fixedBase  bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error: ")+err.Error())
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "physlink",
		Short:         "control and query a rigid-body physics engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "config file path (yaml or ini)")
	pf.StringVar(&transport, "transport", config.DefaultTransport, "engine transport: direct, tcp, http, grpc")
	pf.StringVar(&address, "address", config.DefaultAddress, "engine address")
	pf.StringVar(&codec, "codec", config.DefaultCodec, "payload codec: json, msgpack")
	pf.StringVar(&preset, "preset", "", "engine parameter preset")
	pf.StringVar(&dataDir, "data-dir", config.DefaultDataDir, "snapshot store directory")
	pf.IntVarP(&verbose, "verbose", "v", 0, "log verbosity")

	rootCmd.AddCommand(
		serveCmd(),
		modelsCmd(),
		jointsCmd(),
		linkStateCmd(),
		jacobianCmd(),
		ikCmd(),
		traceCmd(),
		scenarioCmd(),
		sweepCmd(),
		monteCarloCmd(),
		presetsCmd(),
		snapshotsCmd(),
	)
	return rootCmd
}

func newLogger() logr.Logger {
	return funcr.New(func(prefix, args string) {
		if prefix != "" {
			fmt.Fprintln(os.Stderr, subtle.Render(prefix), args)
			return
		}
		fmt.Fprintln(os.Stderr, args)
	}, funcr.Options{Verbosity: verbose})
}

// loadConfig reads --config, then applies flags the user set explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if configFile != "" {
		var err error
		if cfg, err = config.Load(configFile); err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	flags := cmd.Flags()
	if flags.Changed("transport") {
		cfg.Engine.Transport = transport
	}
	if flags.Changed("address") {
		cfg.Engine.Address = address
	}
	if flags.Changed("codec") {
		cfg.Engine.Codec = codec
	}
	if flags.Changed("data-dir") {
		cfg.DataDir = dataDir
	}
	if flags.Changed("preset") {
		if err := cfg.ApplyPreset(preset); err != nil {
			return nil, err
		}
	}
	return cfg, cfg.Validate()
}

func connect(cmd *cobra.Command) (*client.PhysicsClient, *config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	c, err := client.Connect(cmd.Context(), cfg, client.WithLogger(newLogger()))
	if err != nil {
		return nil, nil, err
	}
	return c, cfg, nil
}

// resolveBody treats a numeric argument as an existing body and anything
// else as a model to load.
func resolveBody(ctx context.Context, c *client.PhysicsClient, arg string) (dynamo.BodyID, error) {
	if n, err := strconv.Atoi(arg); err == nil {
		id := dynamo.BodyID(n)
		if _, err := c.BodyInfo(ctx, id); err != nil {
			return 0, err
		}
		return id, nil
	}
	return c.LoadModel(ctx, arg, client.LoadOptions{FixedBase: fixedBase})
}

func addBodyFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&fixedBase, "fixed", true, "load the model with a fixed base")
}
