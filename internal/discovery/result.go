package discovery

import (
	"context"
	"errors"
	"fmt"

	"github.com/JakeFAU/leadscout/internal/lead"
)

// LoadResult assembles the job, the leads it created and the duplicates it
// skipped. Leads deleted since the run are left out.
func LoadResult(ctx context.Context, jobs lead.JobStore, leads lead.LeadStore, jobID string) (lead.JobResult, error) {
	job, err := jobs.GetJob(ctx, jobID)
	if err != nil {
		return lead.JobResult{}, fmt.Errorf("get job: %w", err)
	}
	outcome, err := jobs.GetOutcome(ctx, jobID)
	if err != nil {
		return lead.JobResult{}, fmt.Errorf("get outcome: %w", err)
	}
	result := lead.JobResult{Job: job, Leads: []lead.Lead{}, Duplicates: outcome.Duplicates}
	if result.Duplicates == nil {
		result.Duplicates = []lead.Duplicate{}
	}
	for _, id := range outcome.LeadIDs {
		l, err := leads.GetLead(ctx, job.Parameters.OwnerID, id)
		if errors.Is(err, lead.ErrNotFound) {
			continue
		}
		if err != nil {
			return lead.JobResult{}, fmt.Errorf("get lead %s: %w", id, err)
		}
		result.Leads = append(result.Leads, l)
	}
	return result, nil
}
