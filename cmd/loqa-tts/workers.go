package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/loqalabs/loqa-tts/internal/bus"
	"github.com/loqalabs/loqa-tts/internal/capability"
	"github.com/loqalabs/loqa-tts/internal/config"
	"github.com/loqalabs/loqa-tts/internal/telemetry"
	"github.com/spf13/cobra"
)

func newWorkersCmd(opts *rootOptions) *cobra.Command {
	var wait time.Duration
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "List loqa-ttsd workers reachable on the bus",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			logger := telemetry.NewLogger(cfg.Telemetry, cmd.ErrOrStderr(), opts.debug)
			client, err := bus.Connect(ctx, cfg.RuntimeName, cfg.Bus, logger)
			if err != nil {
				return err
			}
			defer client.Close()

			workers, err := capability.Discover(ctx, client.Conn(), wait)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(workers) == 0 {
				fmt.Fprintln(out, "No workers found.")
				return nil
			}
			for _, w := range workers {
				fmt.Fprintf(out, "%s  %s/%s  models=%d  seen %s\n",
					w.ID, w.Backend, w.Device, w.Models, humanize.Time(w.Timestamp))
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", time.Second, "How long to collect replies")
	return cmd
}
