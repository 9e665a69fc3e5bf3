package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newChainsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "chains",
		Short: "List the chains available in the configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			cfg, err := loadConfig(opts.cfgPath)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
			_, _ = fmt.Fprintln(w, "CHAIN\tWEBSOCKET\tBUFFER\tBACKPRESSURE")
			for _, c := range cfg.Chains {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
					c.ChainID,
					c.WebsocketAddr,
					c.EventSource.BufferSize,
					c.EventSource.Backpressure)
			}
			return w.Flush()
		},
	}
}
