package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

type pathFlags struct {
	in  string
	out string
}

func (f *pathFlags) bind(cmd *cobra.Command, inHelp, outHelp string) {
	cmd.Flags().StringVar(&f.in, "in", "", inHelp)
	cmd.Flags().StringVar(&f.out, "out", "", outHelp)
}

func orDefault(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

func silverCommand() *cobra.Command {
	var flags pathFlags
	cmd := &cobra.Command{
		Use:   "silver",
		Short: "Clean the Bronze table into the Silver table",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.close()

			_, report, err := a.pipeline.BronzeToSilver(cmd.Context(),
				orDefault(flags.in, a.cfg.BronzePath), orDefault(flags.out, a.cfg.SilverPath))
			if err != nil {
				return err
			}
			a.insights.PrintStageReport(os.Stdout, report)
			return nil
		},
	}
	flags.bind(cmd, "Bronze table (default BRONZE_PATH)", "Silver table (default SILVER_PATH)")
	return cmd
}

func goldCommand() *cobra.Command {
	var flags pathFlags
	cmd := &cobra.Command{
		Use:   "gold",
		Short: "Engineer features from the Silver table into the Gold table",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer a.close()

			gold, report, err := a.pipeline.SilverToGold(cmd.Context(),
				orDefault(flags.in, a.cfg.SilverPath), orDefault(flags.out, a.cfg.GoldPath))
			if err != nil {
				return err
			}
			a.insights.PrintStageReport(os.Stdout, report)
			a.insights.Print(os.Stdout, a.insights.Generate(gold.Rows))
			return nil
		},
	}
	flags.bind(cmd, "Silver table (default SILVER_PATH)", "Gold table (default GOLD_PATH)")
	return cmd
}

func runCommand() *cobra.Command {
	var bronze, silver, gold string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run Bronze → Silver → Gold",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer a.close()

			silverPath := orDefault(silver, a.cfg.SilverPath)
			_, sr, err := a.pipeline.BronzeToSilver(cmd.Context(), orDefault(bronze, a.cfg.BronzePath), silverPath)
			if err != nil {
				return err
			}
			a.insights.PrintStageReport(os.Stdout, sr)

			ft, gr, err := a.pipeline.SilverToGold(cmd.Context(), silverPath, orDefault(gold, a.cfg.GoldPath))
			if err != nil {
				return err
			}
			a.insights.PrintStageReport(os.Stdout, gr)
			a.insights.Print(os.Stdout, a.insights.Generate(ft.Rows))
			return nil
		},
	}
	cmd.Flags().StringVar(&bronze, "bronze", "", "Bronze table (default BRONZE_PATH)")
	cmd.Flags().StringVar(&silver, "silver", "", "Silver table (default SILVER_PATH)")
	cmd.Flags().StringVar(&gold, "gold", "", "Gold table (default GOLD_PATH)")
	return cmd
}
