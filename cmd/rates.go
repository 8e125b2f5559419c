package cmd

import (
	"fmt"
	"os"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func ratesCommand() *cobra.Command {
	var noCache bool
	cmd := &cobra.Command{
		Use:   "rates",
		Short: "Resolve and print the currency → EUR multipliers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger := loadConfig()
			defer func() { _ = logger.Sync() }()

			rates, source := newRateProvider(cfg, logger).GetRates(cmd.Context(), cfg.RatesBase, cfg.RatesSymbols, !noCache)

			codes := make([]string, 0, len(rates))
			for c := range rates {
				codes = append(codes, c)
			}
			sort.Strings(codes)

			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.SetStyle(table.StyleRounded)
			t.AppendHeader(table.Row{"Currency", "EUR per unit"})
			for _, c := range codes {
				t.AppendRow(table.Row{c, fmt.Sprintf("%.6f", rates[c])})
			}
			t.AppendFooter(table.Row{"Source", string(source)})
			t.Render()
			return nil
		},
	}
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "skip the fresh-cache check and fetch from the rate service")
	return cmd
}
