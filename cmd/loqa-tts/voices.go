package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newVoicesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "voices",
		Short: "List the voices the model provides",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, cmd, opts)
			if err != nil {
				return err
			}
			defer a.close()

			model, err := a.gateway.Build(ctx, a.buildOptions())
			if err != nil {
				return err
			}
			defer model.Close()

			voices, err := a.gateway.Voices(ctx, model)
			if err != nil {
				return err
			}
			for _, v := range voices {
				fmt.Fprintln(cmd.OutOrStdout(), v)
			}
			return nil
		},
	}
}
