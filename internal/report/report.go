// Package report renders website analyses and discovery results for people
// and tools: JSON for integrations, YAML for config-adjacent workflows and
// Markdown for sharing with a prospect or a sales channel.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/leadscout/internal/lead"
)

// Format names an output encoding.
type Format string

// Supported formats.
const (
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
	FormatMarkdown Format = "markdown"
)

// ErrUnknownFormat is returned by ParseFormat for unsupported names.
var ErrUnknownFormat = errors.New("unknown report format")

// ParseFormat accepts json, yaml/yml and markdown/md in any case.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// Analysis writes one website analysis in the requested format.
func Analysis(w io.Writer, format Format, a lead.WebsiteAnalysis) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, a)
	case FormatYAML:
		return writeYAML(w, a)
	case FormatMarkdown:
		return analysisMarkdown(w, a)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// JobResult writes a discovery job result in the requested format.
func JobResult(w io.Writer, format Format, res lead.JobResult) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, res)
	case FormatYAML:
		return writeYAML(w, newJobView(res))
	case FormatMarkdown:
		return jobMarkdown(w, res)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json report: %w", err)
	}
	return nil
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode yaml report: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close yaml report: %w", err)
	}
	return nil
}

// jobView flattens a JobResult for YAML, whose default key names would
// otherwise be the lowercased Go field names.
type jobView struct {
	ID         string            `yaml:"id"`
	Status     lead.JobStatus    `yaml:"status"`
	Query      string            `yaml:"query"`
	Location   string            `yaml:"location,omitempty"`
	Error      string            `yaml:"error,omitempty"`
	Counters   countersView      `yaml:"counters"`
	Leads      []leadView        `yaml:"leads"`
	Duplicates []duplicateView   `yaml:"duplicates,omitempty"`
	Tags       map[string]string `yaml:"tags,omitempty"`
}

type countersView struct {
	Found          int `yaml:"found"`
	Filtered       int `yaml:"filtered"`
	Duplicates     int `yaml:"duplicates"`
	Analyzed       int `yaml:"analyzed"`
	AnalysisFailed int `yaml:"analysis_failed"`
	Created        int `yaml:"created"`
}

type leadView struct {
	ID          string           `yaml:"id"`
	Name        string           `yaml:"name"`
	Website     string           `yaml:"website,omitempty"`
	Phone       string           `yaml:"phone,omitempty"`
	Email       string           `yaml:"email,omitempty"`
	Score       int              `yaml:"score"`
	Grade       string           `yaml:"grade,omitempty"`
	Opportunity lead.Opportunity `yaml:"opportunity,omitempty"`
	Source      string           `yaml:"source,omitempty"`
}

type duplicateView struct {
	Name       string  `yaml:"name"`
	Website    string  `yaml:"website,omitempty"`
	LeadID     string  `yaml:"lead_id,omitempty"`
	Reason     string  `yaml:"reason"`
	Similarity float64 `yaml:"similarity"`
}

func newJobView(res lead.JobResult) jobView {
	c := res.Job.Counters
	view := jobView{
		ID:       res.Job.ID,
		Status:   res.Job.Status,
		Query:    res.Job.Parameters.Query,
		Location: res.Job.Parameters.Location,
		Error:    res.Job.ErrorText,
		Counters: countersView(c),
		Leads:    make([]leadView, 0, len(res.Leads)),
		Tags:     res.Job.Parameters.Tags,
	}
	for _, l := range res.Leads {
		lv := leadView{
			ID:      l.ID,
			Name:    l.Name,
			Website: l.Website,
			Phone:   l.Phone,
			Email:   l.Email,
			Score:   l.Score,
			Grade:   l.Grade,
			Source:  l.Source,
		}
		if l.Analysis != nil {
			lv.Opportunity = l.Analysis.Opportunity
		}
		view.Leads = append(view.Leads, lv)
	}
	for _, d := range res.Duplicates {
		view.Duplicates = append(view.Duplicates, duplicateView{
			Name:       d.Business.Name,
			Website:    d.Business.Website,
			LeadID:     d.LeadID,
			Reason:     d.Reason,
			Similarity: d.Similarity,
		})
	}
	return view
}
