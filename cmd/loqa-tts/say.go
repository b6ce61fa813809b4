package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newSayCmd(opts *rootOptions) *cobra.Command {
	var play bool
	cmd := &cobra.Command{
		Use:   "say [text]",
		Short: "Synthesize text once and save it without prompting",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, cmd, opts)
			if err != nil {
				return err
			}
			defer a.close()

			port, closePort, err := a.port(portOptions{forceHeadless: true, noPlayback: !play})
			if err != nil {
				return err
			}
			defer closePort()

			controller := a.controller(port)
			defer controller.Close()
			if err := controller.Load(ctx); err != nil {
				return err
			}

			if _, err := controller.HandleGenerateSpeech(ctx, strings.Join(args, " "), !play); err != nil {
				return err
			}
			s := controller.Session()
			if !s.LastSaved {
				return errors.New("no audio was saved")
			}
			if info, err := os.Stat(s.OutputPath); err == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", s.OutputPath, humanize.Bytes(uint64(info.Size())))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&play, "play", false, "Play the audio after synthesis")
	return cmd
}
