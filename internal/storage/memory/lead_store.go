package memory

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"

	"github.com/JakeFAU/leadscout/internal/lead"
)

// LeadStore keeps leads per owner in memory.
type LeadStore struct {
	mu    sync.RWMutex
	leads map[string]lead.Lead
}

// NewLeadStore constructs an empty LeadStore.
func NewLeadStore() *LeadStore {
	return &LeadStore{leads: make(map[string]lead.Lead)}
}

// CreateLead inserts a new lead.
func (s *LeadStore) CreateLead(_ context.Context, l lead.Lead) error {
	if l.ID == "" || l.OwnerID == "" {
		return errors.New("lead id and owner id are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.leads[l.ID]; exists {
		return fmt.Errorf("lead %s already exists", l.ID)
	}
	s.leads[l.ID] = cloneLead(l)
	return nil
}

// GetLead returns the owner's lead.
func (s *LeadStore) GetLead(_ context.Context, ownerID, leadID string) (lead.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.leads[leadID]
	if !ok || l.OwnerID != ownerID {
		return lead.Lead{}, fmt.Errorf("lead %s: %w", leadID, lead.ErrNotFound)
	}
	return cloneLead(l), nil
}

// ListLeads returns the owner's leads matching filter, newest first.
func (s *LeadStore) ListLeads(_ context.Context, ownerID string, filter lead.LeadFilter) ([]lead.Lead, error) {
	s.mu.RLock()
	out := make([]lead.Lead, 0)
	for _, l := range s.leads {
		if l.OwnerID == ownerID && matches(l, filter) {
			out = append(out, cloneLead(l))
		}
	}
	s.mu.RUnlock()

	sortNewestFirst(out)
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []lead.Lead{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// UpdateLead replaces a lead's mutable fields. Stage and history are only
// changed through AppendStageChange.
func (s *LeadStore) UpdateLead(_ context.Context, l lead.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.leads[l.ID]
	if !ok || current.OwnerID != l.OwnerID {
		return fmt.Errorf("lead %s: %w", l.ID, lead.ErrNotFound)
	}
	next := cloneLead(l)
	next.Stage = current.Stage
	next.StageHistory = current.StageHistory
	next.CreatedAt = current.CreatedAt
	s.leads[l.ID] = next
	return nil
}

// DeleteLead removes the owner's lead.
func (s *LeadStore) DeleteLead(_ context.Context, ownerID, leadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[leadID]
	if !ok || l.OwnerID != ownerID {
		return fmt.Errorf("lead %s: %w", leadID, lead.ErrNotFound)
	}
	delete(s.leads, leadID)
	return nil
}

// AppendStageChange moves the lead to change.To and records the history row
// under one lock. change.From must match the stored stage.
func (s *LeadStore) AppendStageChange(
	_ context.Context,
	ownerID, leadID string,
	change lead.StageChange,
) (lead.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[leadID]
	if !ok || l.OwnerID != ownerID {
		return lead.Lead{}, fmt.Errorf("lead %s: %w", leadID, lead.ErrNotFound)
	}
	if l.Stage != change.From || !lead.CanTransition(change.From, change.To) {
		return lead.Lead{}, fmt.Errorf("%s -> %s: %w", l.Stage, change.To, lead.ErrInvalidTransition)
	}
	l.Stage = change.To
	l.UpdatedAt = change.At
	l.StageHistory = append(append([]lead.StageChange(nil), l.StageHistory...), change)
	s.leads[leadID] = l
	return cloneLead(l), nil
}

// ListOwnerLeads returns every lead the owner has.
func (s *LeadStore) ListOwnerLeads(_ context.Context, ownerID string) ([]lead.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]lead.Lead, 0)
	for _, l := range s.leads {
		if l.OwnerID == ownerID {
			out = append(out, cloneLead(l))
		}
	}
	sortNewestFirst(out)
	return out, nil
}

// PipelineSummary counts leads and sums estimated value per stage, in
// pipeline order, including empty stages.
func (s *LeadStore) PipelineSummary(_ context.Context, ownerID string) ([]lead.StageSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byStage := make(map[lead.Stage]*lead.StageSummary)
	out := make([]lead.StageSummary, 0, len(lead.Stages()))
	for _, st := range lead.Stages() {
		out = append(out, lead.StageSummary{Stage: st})
	}
	for i := range out {
		byStage[out[i].Stage] = &out[i]
	}
	for _, l := range s.leads {
		if l.OwnerID != ownerID {
			continue
		}
		if sum, ok := byStage[l.Stage]; ok {
			sum.Count++
			sum.Value += l.EstimatedValue
		}
	}
	return out, nil
}

func matches(l lead.Lead, f lead.LeadFilter) bool {
	if f.Stage != "" && l.Stage != f.Stage {
		return false
	}
	if f.MinScore != nil && l.Score < *f.MinScore {
		return false
	}
	if f.MaxScore != nil && l.Score > *f.MaxScore {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" {
		haystack := strings.ToLower(strings.Join([]string{l.Name, l.Website, l.Email, l.Address, l.Notes}, "\n"))
		if !strings.Contains(haystack, q) {
			return false
		}
	}
	return true
}

func sortNewestFirst(leads []lead.Lead) {
	sort.SliceStable(leads, func(i, j int) bool {
		if leads[i].CreatedAt.Equal(leads[j].CreatedAt) {
			return leads[i].ID > leads[j].ID
		}
		return leads[i].CreatedAt.After(leads[j].CreatedAt)
	})
}

func cloneLead(l lead.Lead) lead.Lead {
	out := l
	if l.Tags != nil {
		out.Tags = maps.Clone(l.Tags)
	}
	if l.StageHistory != nil {
		out.StageHistory = append([]lead.StageChange(nil), l.StageHistory...)
	}
	if l.Analysis != nil {
		analysis := *l.Analysis
		analysis.Checks = append([]lead.Check(nil), l.Analysis.Checks...)
		out.Analysis = &analysis
	}
	return out
}
