package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"montewalk/internal/app"
)

func (c *cli) toolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the available tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.run(cmd, func(_ context.Context, a *app.App, _ zerolog.Logger) error {
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "NAME\tDESCRIPTION")
				for _, t := range a.Tools.List() {
					fmt.Fprintf(w, "%s\t%s\n", t.Name, t.Description)
				}
				return w.Flush()
			})
		},
	}
}

func (c *cli) toolCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "tool NAME [JSON]",
		Short: "Run any tool with JSON arguments",
		Example: `  montewalk tool var '{"symbol":"AAPL","confidence":0.99}'
  montewalk tool place_order --file order.json`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var raw json.RawMessage
			switch {
			case file != "":
				data, err := os.ReadFile(file)
				if err != nil {
					return err
				}
				raw = data
			case len(args) == 2:
				raw = json.RawMessage(args[1])
			}
			return c.run(cmd, func(ctx context.Context, a *app.App, _ zerolog.Logger) error {
				resp, err := a.Tools.Call(ctx, args[0], raw)
				if err != nil {
					return err
				}
				return c.print(cmd.OutOrStdout(), resp)
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Read arguments from a JSON file")
	return cmd
}
