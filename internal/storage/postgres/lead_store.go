package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/leadscout/internal/lead"
)

const leadColumns = `id, owner_id, name, website, phone, email, address, stage, score, grade,
	analysis, estimated_value, notes, tags, source, discovery_job_id, created_at, updated_at`

// LeadStore persists leads and stage history in Postgres.
type LeadStore struct {
	pool pool
}

var _ lead.LeadStore = (*LeadStore)(nil)

// NewLeadStore wraps an open pool.
func NewLeadStore(p pool) (*LeadStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &LeadStore{pool: p}, nil
}

// Close releases the underlying pool resources.
func (s *LeadStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// CreateLead inserts a lead row.
func (s *LeadStore) CreateLead(ctx context.Context, l lead.Lead) error {
	analysis, tags, err := encodeLeadJSON(l)
	if err != nil {
		return err
	}
	query := `INSERT INTO leads (` + leadColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`
	_, err = s.pool.Exec(ctx, query,
		l.ID, l.OwnerID, l.Name, l.Website, l.Phone, l.Email, l.Address, string(l.Stage), l.Score, l.Grade,
		analysis, l.EstimatedValue, l.Notes, tags, l.Source, l.DiscoveryJobID, l.CreatedAt, l.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert lead: %w", err)
	}
	return nil
}

// GetLead loads a lead plus its stage history.
func (s *LeadStore) GetLead(ctx context.Context, ownerID, leadID string) (lead.Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE id = $1 AND owner_id = $2`
	l, err := scanLead(s.pool.QueryRow(ctx, query, leadID, ownerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return lead.Lead{}, fmt.Errorf("lead %s: %w", leadID, lead.ErrNotFound)
		}
		return lead.Lead{}, fmt.Errorf("get lead: %w", err)
	}
	history, err := s.history(ctx, leadID)
	if err != nil {
		return lead.Lead{}, err
	}
	l.StageHistory = history
	return l, nil
}

func (s *LeadStore) history(ctx context.Context, leadID string) ([]lead.StageChange, error) {
	rows, err := s.pool.Query(ctx, `SELECT from_stage, to_stage, changed_at, note
FROM lead_stage_history WHERE lead_id = $1 ORDER BY changed_at, id`, leadID)
	if err != nil {
		return nil, fmt.Errorf("query stage history: %w", err)
	}
	defer rows.Close()
	var out []lead.StageChange
	for rows.Next() {
		var (
			change   lead.StageChange
			from, to string
		)
		if err := rows.Scan(&from, &to, &change.At, &change.Note); err != nil {
			return nil, fmt.Errorf("scan stage history: %w", err)
		}
		change.From, change.To = lead.Stage(from), lead.Stage(to)
		out = append(out, change)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stage history: %w", err)
	}
	return out, nil
}

// ListLeads returns the owner's leads matching filter, newest first.
func (s *LeadStore) ListLeads(ctx context.Context, ownerID string, filter lead.LeadFilter) ([]lead.Lead, error) {
	where := []string{"owner_id = $1"}
	args := []any{ownerID}
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.Stage != "" {
		add("stage = $%d", string(filter.Stage))
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		add("(name ILIKE $%[1]d OR website ILIKE $%[1]d OR email ILIKE $%[1]d OR address ILIKE $%[1]d OR notes ILIKE $%[1]d)",
			"%"+escapeLike(q)+"%")
	}
	if filter.MinScore != nil {
		add("score >= $%d", *filter.MinScore)
	}
	if filter.MaxScore != nil {
		add("score <= $%d", *filter.MaxScore)
	}
	query := `SELECT ` + leadColumns + ` FROM leads WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return s.queryLeads(ctx, query, args...)
}

// ListOwnerLeads returns every lead the owner has, without history.
func (s *LeadStore) ListOwnerLeads(ctx context.Context, ownerID string) ([]lead.Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE owner_id = $1 ORDER BY created_at DESC, id DESC`
	return s.queryLeads(ctx, query, ownerID)
}

func (s *LeadStore) queryLeads(ctx context.Context, query string, args ...any) ([]lead.Lead, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	defer rows.Close()
	out := make([]lead.Lead, 0)
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lead: %w", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate leads: %w", err)
	}
	return out, nil
}

// UpdateLead rewrites the mutable columns. Stage only moves through
// AppendStageChange.
func (s *LeadStore) UpdateLead(ctx context.Context, l lead.Lead) error {
	analysis, tags, err := encodeLeadJSON(l)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `UPDATE leads SET
	name = $3, website = $4, phone = $5, email = $6, address = $7, score = $8, grade = $9,
	analysis = $10, estimated_value = $11, notes = $12, tags = $13, updated_at = $14
WHERE id = $1 AND owner_id = $2`,
		l.ID, l.OwnerID, l.Name, l.Website, l.Phone, l.Email, l.Address, l.Score, l.Grade,
		analysis, l.EstimatedValue, l.Notes, tags, l.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update lead: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("lead %s: %w", l.ID, lead.ErrNotFound)
	}
	return nil
}

// DeleteLead removes a lead; history rows cascade.
func (s *LeadStore) DeleteLead(ctx context.Context, ownerID, leadID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM leads WHERE id = $1 AND owner_id = $2`, leadID, ownerID)
	if err != nil {
		return fmt.Errorf("delete lead: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("lead %s: %w", leadID, lead.ErrNotFound)
	}
	return nil
}

// AppendStageChange locks the lead row, checks the transition, and writes
// the new stage plus a history row in one transaction.
func (s *LeadStore) AppendStageChange(
	ctx context.Context,
	ownerID, leadID string,
	change lead.StageChange,
) (_ lead.Lead, err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return lead.Lead{}, fmt.Errorf("begin stage change: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var current string
	err = tx.QueryRow(ctx, `SELECT stage FROM leads WHERE id = $1 AND owner_id = $2 FOR UPDATE`, leadID, ownerID).
		Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return lead.Lead{}, fmt.Errorf("lead %s: %w", leadID, lead.ErrNotFound)
		}
		return lead.Lead{}, fmt.Errorf("lock lead: %w", err)
	}
	if lead.Stage(current) != change.From || !lead.CanTransition(change.From, change.To) {
		return lead.Lead{}, fmt.Errorf("%s -> %s: %w", current, change.To, lead.ErrInvalidTransition)
	}
	if _, err = tx.Exec(ctx, `UPDATE leads SET stage = $2, updated_at = $3 WHERE id = $1`,
		leadID, string(change.To), change.At); err != nil {
		return lead.Lead{}, fmt.Errorf("update stage: %w", err)
	}
	if _, err = tx.Exec(ctx, `INSERT INTO lead_stage_history (lead_id, from_stage, to_stage, changed_at, note)
VALUES ($1, $2, $3, $4, $5)`, leadID, string(change.From), string(change.To), change.At, change.Note); err != nil {
		return lead.Lead{}, fmt.Errorf("insert stage history: %w", err)
	}
	if err = tx.Commit(ctx); err != nil {
		return lead.Lead{}, fmt.Errorf("commit stage change: %w", err)
	}
	return s.GetLead(ctx, ownerID, leadID)
}

// PipelineSummary counts leads and sums value per stage in pipeline order.
func (s *LeadStore) PipelineSummary(ctx context.Context, ownerID string) ([]lead.StageSummary, error) {
	rows, err := s.pool.Query(ctx, `SELECT stage, COUNT(*), COALESCE(SUM(estimated_value), 0)
FROM leads WHERE owner_id = $1 GROUP BY stage`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("pipeline summary: %w", err)
	}
	defer rows.Close()
	counts := make(map[lead.Stage]lead.StageSummary)
	for rows.Next() {
		var (
			stage string
			sum   lead.StageSummary
			count int64
		)
		if err := rows.Scan(&stage, &count, &sum.Value); err != nil {
			return nil, fmt.Errorf("scan pipeline summary: %w", err)
		}
		sum.Stage = lead.Stage(stage)
		sum.Count = int(count)
		counts[sum.Stage] = sum
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pipeline summary: %w", err)
	}
	out := make([]lead.StageSummary, 0, len(lead.Stages()))
	for _, st := range lead.Stages() {
		sum := counts[st]
		sum.Stage = st
		out = append(out, sum)
	}
	return out, nil
}

func scanLead(row pgx.Row) (lead.Lead, error) {
	var (
		l        lead.Lead
		stage    string
		analysis []byte
		tags     []byte
	)
	err := row.Scan(
		&l.ID, &l.OwnerID, &l.Name, &l.Website, &l.Phone, &l.Email, &l.Address, &stage, &l.Score, &l.Grade,
		&analysis, &l.EstimatedValue, &l.Notes, &tags, &l.Source, &l.DiscoveryJobID, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return lead.Lead{}, err
	}
	l.Stage = lead.Stage(stage)
	if len(analysis) > 0 {
		var a lead.WebsiteAnalysis
		if err := json.Unmarshal(analysis, &a); err != nil {
			return lead.Lead{}, fmt.Errorf("decode analysis: %w", err)
		}
		l.Analysis = &a
	}
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &l.Tags); err != nil {
			return lead.Lead{}, fmt.Errorf("decode tags: %w", err)
		}
		if len(l.Tags) == 0 {
			l.Tags = nil
		}
	}
	return l, nil
}

func encodeLeadJSON(l lead.Lead) (analysis []byte, tags []byte, err error) {
	if l.Analysis != nil {
		if analysis, err = json.Marshal(l.Analysis); err != nil {
			return nil, nil, fmt.Errorf("marshal analysis: %w", err)
		}
	}
	t := l.Tags
	if t == nil {
		t = map[string]string{}
	}
	if tags, err = json.Marshal(t); err != nil {
		return nil, nil, fmt.Errorf("marshal tags: %w", err)
	}
	return analysis, tags, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
