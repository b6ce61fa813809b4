package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var version = "0.1.0-dev"

type rootOptions struct {
	configPath string
	debug      bool
	headless   bool
	output     string
	text       string
	voice      string
	speed      float64
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "loqa-tts",
		Short:         "Interactive text-to-speech session",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInteractive(cmd, opts)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "Path to a YAML or TOML configuration file")
	flags.BoolVar(&opts.debug, "debug", false, "Verbose logging and model build output")
	flags.BoolVar(&opts.headless, "headless", false, "Run without prompts")
	flags.StringVarP(&opts.output, "output", "o", "", "Output WAV path")
	flags.StringVarP(&opts.text, "text", "t", "", "Text to synthesize")
	flags.StringVar(&opts.voice, "voice", "", "Initial voice")
	flags.Float64Var(&opts.speed, "speed", 0, "Speech speed (0.5-2.0)")

	cmd.AddCommand(newSayCmd(opts), newVoicesCmd(opts), newWorkersCmd(opts))
	return cmd
}

func runInteractive(cmd *cobra.Command, opts *rootOptions) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cmd, opts)
	if err != nil {
		return err
	}
	defer a.close()

	port, closePort, err := a.port(portOptions{script: a.cfg.Session.Commands})
	if err != nil {
		return err
	}
	defer closePort()

	controller := a.controller(port)
	defer controller.Close()

	if err := controller.Load(ctx); err != nil {
		return err
	}
	return controller.Start(ctx)
}
