package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/leadscout/internal/lead"
	"github.com/JakeFAU/leadscout/internal/report"
)

type discoverFlags struct {
	query      string
	location   string
	owner      string
	saved      string
	maxResults int
	sources    []string
	noAnalyze  bool
	format     string
}

func newDiscoverCmd() *cobra.Command {
	var flags discoverFlags
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Run one discovery job in the foreground and print the result",
		Example: `  leadscout discover --query plumbers --location "Denver, CO"
  leadscout discover --saved denver-plumbers --format json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := report.ParseFormat(flags.format)
			if err != nil {
				return err
			}
			cfg, err := resolveConfig(cmd.Context())
			if err != nil {
				return err
			}
			params, err := flags.params(cmd, cfg.SavedSearches)
			if err != nil {
				return err
			}
			params = cfg.ApplyDiscoveryDefaults(params)
			return withApp(cmd, true, func(app App) error {
				result, err := app.Discover(cmd.Context(), params)
				if err != nil {
					return fmt.Errorf("discover: %w", err)
				}
				out := bufio.NewWriter(cmd.OutOrStdout())
				if err := report.JobResult(out, f, result); err != nil {
					return err
				}
				if err := out.Flush(); err != nil {
					return err
				}
				if result.Job.Status == lead.JobStatusFailed {
					return fmt.Errorf("job %s failed: %s", result.Job.ID, result.Job.ErrorText)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&flags.query, "query", "q", "", "business type or keywords to search for")
	cmd.Flags().StringVarP(&flags.location, "location", "l", "", "city or region appended to the query")
	cmd.Flags().StringVar(&flags.owner, "owner", "cli", "owner id the new leads belong to")
	cmd.Flags().StringVar(&flags.saved, "saved", "", "run a saved search from the config instead of --query")
	cmd.Flags().IntVarP(&flags.maxResults, "max-results", "n", 0, "candidate cap (0 uses the configured default)")
	cmd.Flags().StringSliceVar(&flags.sources, "sources", nil, "restrict to these search providers")
	cmd.Flags().BoolVar(&flags.noAnalyze, "no-analyze", false, "skip website analysis")
	cmd.Flags().StringVarP(&flags.format, "format", "f", "markdown", "output format: json, yaml or markdown")
	return cmd
}

func (f discoverFlags) params(cmd *cobra.Command, saved map[string]lead.DiscoveryParams) (lead.DiscoveryParams, error) {
	var params lead.DiscoveryParams
	switch {
	case f.saved != "":
		tmpl, ok := saved[strings.ToLower(f.saved)]
		if !ok {
			return lead.DiscoveryParams{}, fmt.Errorf("saved search %q not found", f.saved)
		}
		params = tmpl
		params.Sources = append([]string(nil), tmpl.Sources...)
	case strings.TrimSpace(f.query) != "":
		params.Query = strings.TrimSpace(f.query)
		params.Location = strings.TrimSpace(f.location)
	default:
		return lead.DiscoveryParams{}, errors.New("either --query or --saved is required")
	}
	params.OwnerID = f.owner
	if f.maxResults > 0 {
		params.MaxResults = f.maxResults
	}
	if len(f.sources) > 0 {
		params.Sources = f.sources
	}
	if cmd.Flags().Changed("no-analyze") {
		params.Analyze = !f.noAnalyze
		params.AnalyzeProvided = true
	}
	return params, nil
}
