package cmd

import (
	"bufio"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/leadscout/internal/lead"
	"github.com/JakeFAU/leadscout/internal/report"
)

func newAnalyzeCmd() *cobra.Command {
	var (
		format   string
		headless bool
	)
	cmd := &cobra.Command{
		Use:   "analyze <url>",
		Short: "Score one business website and print the report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := report.ParseFormat(format)
			if err != nil {
				return err
			}
			return withApp(cmd, true, func(app App) error {
				result, _, err := app.Analyzer().Analyze(cmd.Context(), args[0], lead.AnalyzeOptions{AllowHeadless: headless})
				if err != nil {
					return fmt.Errorf("analyze %s: %w", args[0], err)
				}
				out := bufio.NewWriter(cmd.OutOrStdout())
				if err := report.Analysis(out, f, result); err != nil {
					return err
				}
				return out.Flush()
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "markdown", "output format: json, yaml or markdown")
	cmd.Flags().BoolVar(&headless, "headless", false, "allow promotion to headless Chrome")
	return cmd
}
