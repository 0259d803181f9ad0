package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/JakeFAU/leadscout/internal/lead"
)

var _ lead.LeadStore = (*Repository)(nil)

// dbLead represents a lead as stored in the database.
type dbLead struct {
	ID             string         `db:"id"`
	OwnerID        string         `db:"owner_id"`
	Name           string         `db:"name"`
	Website        string         `db:"website"`
	Phone          string         `db:"phone"`
	Email          string         `db:"email"`
	Address        string         `db:"address"`
	Stage          string         `db:"stage"`
	Score          int            `db:"score"`
	Grade          string         `db:"grade"`
	Analysis       sql.NullString `db:"analysis"`
	EstimatedValue int64          `db:"estimated_value"`
	Notes          string         `db:"notes"`
	Tags           string         `db:"tags"`
	Source         string         `db:"source"`
	DiscoveryJobID string         `db:"discovery_job_id"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

type dbStageChange struct {
	From      string    `db:"from_stage"`
	To        string    `db:"to_stage"`
	ChangedAt time.Time `db:"changed_at"`
	Note      string    `db:"note"`
}

func toDBLead(l lead.Lead) (dbLead, error) {
	row := dbLead{
		ID:             l.ID,
		OwnerID:        l.OwnerID,
		Name:           l.Name,
		Website:        l.Website,
		Phone:          l.Phone,
		Email:          l.Email,
		Address:        l.Address,
		Stage:          string(l.Stage),
		Score:          l.Score,
		Grade:          l.Grade,
		EstimatedValue: l.EstimatedValue,
		Notes:          l.Notes,
		Tags:           "{}",
		Source:         l.Source,
		DiscoveryJobID: l.DiscoveryJobID,
		CreatedAt:      l.CreatedAt.UTC(),
		UpdatedAt:      l.UpdatedAt.UTC(),
	}
	if l.Analysis != nil {
		raw, err := json.Marshal(l.Analysis)
		if err != nil {
			return dbLead{}, fmt.Errorf("marshalling analysis: %w", err)
		}
		row.Analysis = sql.NullString{String: string(raw), Valid: true}
	}
	if len(l.Tags) > 0 {
		raw, err := json.Marshal(l.Tags)
		if err != nil {
			return dbLead{}, fmt.Errorf("marshalling tags: %w", err)
		}
		row.Tags = string(raw)
	}
	return row, nil
}

func toDomainLead(row dbLead) (lead.Lead, error) {
	l := lead.Lead{
		ID:             row.ID,
		OwnerID:        row.OwnerID,
		Name:           row.Name,
		Website:        row.Website,
		Phone:          row.Phone,
		Email:          row.Email,
		Address:        row.Address,
		Stage:          lead.Stage(row.Stage),
		Score:          row.Score,
		Grade:          row.Grade,
		EstimatedValue: row.EstimatedValue,
		Notes:          row.Notes,
		Source:         row.Source,
		DiscoveryJobID: row.DiscoveryJobID,
		CreatedAt:      row.CreatedAt.UTC(),
		UpdatedAt:      row.UpdatedAt.UTC(),
	}
	if row.Analysis.Valid && row.Analysis.String != "" {
		var a lead.WebsiteAnalysis
		if err := json.Unmarshal([]byte(row.Analysis.String), &a); err != nil {
			return lead.Lead{}, fmt.Errorf("decoding analysis for %s: %w", row.ID, err)
		}
		l.Analysis = &a
	}
	if row.Tags != "" && row.Tags != "{}" {
		if err := json.Unmarshal([]byte(row.Tags), &l.Tags); err != nil {
			return lead.Lead{}, fmt.Errorf("decoding tags for %s: %w", row.ID, err)
		}
	}
	return l, nil
}

// CreateLead inserts a new lead.
func (r *Repository) CreateLead(ctx context.Context, l lead.Lead) error {
	row, err := toDBLead(l)
	if err != nil {
		return err
	}
	query := `INSERT INTO leads (id, owner_id, name, website, phone, email, address, stage, score, grade,
		analysis, estimated_value, notes, tags, source, discovery_job_id, created_at, updated_at)
	VALUES (:id, :owner_id, :name, :website, :phone, :email, :address, :stage, :score, :grade,
		:analysis, :estimated_value, :notes, :tags, :source, :discovery_job_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("inserting lead %s: %w", l.ID, err)
	}
	return nil
}

// GetLead returns the owner's lead with its stage history.
func (r *Repository) GetLead(ctx context.Context, ownerID, leadID string) (lead.Lead, error) {
	var row dbLead
	err := r.db.GetContext(ctx, &row, `SELECT * FROM leads WHERE id = ? AND owner_id = ?`, leadID, ownerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return lead.Lead{}, fmt.Errorf("lead %s: %w", leadID, lead.ErrNotFound)
		}
		return lead.Lead{}, fmt.Errorf("getting lead: %w", err)
	}
	l, err := toDomainLead(row)
	if err != nil {
		return lead.Lead{}, err
	}
	var history []dbStageChange
	err = r.db.SelectContext(ctx, &history, `SELECT from_stage, to_stage, changed_at, note
		FROM lead_stage_history WHERE lead_id = ? ORDER BY changed_at, id`, leadID)
	if err != nil {
		return lead.Lead{}, fmt.Errorf("getting stage history: %w", err)
	}
	for _, h := range history {
		l.StageHistory = append(l.StageHistory, lead.StageChange{
			From: lead.Stage(h.From),
			To:   lead.Stage(h.To),
			At:   h.ChangedAt.UTC(),
			Note: h.Note,
		})
	}
	return l, nil
}

// ListLeads returns the owner's leads matching filter, newest first.
func (r *Repository) ListLeads(ctx context.Context, ownerID string, filter lead.LeadFilter) ([]lead.Lead, error) {
	where := []string{"owner_id = ?"}
	args := []any{ownerID}
	if filter.Stage != "" {
		where = append(where, "stage = ?")
		args = append(args, string(filter.Stage))
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		like := "%" + strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(q) + "%"
		where = append(where, `(name LIKE ? ESCAPE '\' OR website LIKE ? ESCAPE '\' OR email LIKE ? ESCAPE '\'
			OR address LIKE ? ESCAPE '\' OR notes LIKE ? ESCAPE '\')`)
		args = append(args, like, like, like, like, like)
	}
	if filter.MinScore != nil {
		where = append(where, "score >= ?")
		args = append(args, *filter.MinScore)
	}
	if filter.MaxScore != nil {
		where = append(where, "score <= ?")
		args = append(args, *filter.MaxScore)
	}
	query := `SELECT * FROM leads WHERE ` + strings.Join(where, " AND ") + ` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 || filter.Offset > 0 {
		limit := filter.Limit
		if limit <= 0 {
			limit = -1
		}
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, filter.Offset)
	}
	return r.selectLeads(ctx, query, args...)
}

// ListOwnerLeads returns every lead the owner has.
func (r *Repository) ListOwnerLeads(ctx context.Context, ownerID string) ([]lead.Lead, error) {
	return r.selectLeads(ctx, `SELECT * FROM leads WHERE owner_id = ? ORDER BY created_at DESC, id DESC`, ownerID)
}

func (r *Repository) selectLeads(ctx context.Context, query string, args ...any) ([]lead.Lead, error) {
	var rows []dbLead
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("listing leads: %w", err)
	}
	out := make([]lead.Lead, 0, len(rows))
	for _, row := range rows {
		l, err := toDomainLead(row)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

// UpdateLead rewrites the mutable columns; stage is left alone.
func (r *Repository) UpdateLead(ctx context.Context, l lead.Lead) error {
	row, err := toDBLead(l)
	if err != nil {
		return err
	}
	query := `UPDATE leads SET name = :name, website = :website, phone = :phone, email = :email,
		address = :address, score = :score, grade = :grade, analysis = :analysis,
		estimated_value = :estimated_value, notes = :notes, tags = :tags, updated_at = :updated_at
	WHERE id = :id AND owner_id = :owner_id`
	result, err := r.db.NamedExecContext(ctx, query, row)
	if err != nil {
		return fmt.Errorf("updating lead: %w", err)
	}
	return requireAffected(result, "lead", l.ID)
}

// DeleteLead removes the owner's lead; history cascades.
func (r *Repository) DeleteLead(ctx context.Context, ownerID, leadID string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM leads WHERE id = ? AND owner_id = ?`, leadID, ownerID)
	if err != nil {
		return fmt.Errorf("deleting lead: %w", err)
	}
	return requireAffected(result, "lead", leadID)
}

// AppendStageChange updates the stage and writes the history row in one transaction.
func (r *Repository) AppendStageChange(
	ctx context.Context,
	ownerID, leadID string,
	change lead.StageChange,
) (lead.Lead, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return lead.Lead{}, fmt.Errorf("beginning stage change: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current string
	if err := tx.GetContext(ctx, &current, `SELECT stage FROM leads WHERE id = ? AND owner_id = ?`, leadID, ownerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return lead.Lead{}, fmt.Errorf("lead %s: %w", leadID, lead.ErrNotFound)
		}
		return lead.Lead{}, fmt.Errorf("reading stage: %w", err)
	}
	if lead.Stage(current) != change.From || !lead.CanTransition(change.From, change.To) {
		return lead.Lead{}, fmt.Errorf("%s -> %s: %w", current, change.To, lead.ErrInvalidTransition)
	}
	at := change.At.UTC()
	if _, err := tx.ExecContext(ctx, `UPDATE leads SET stage = ?, updated_at = ? WHERE id = ?`,
		string(change.To), at, leadID); err != nil {
		return lead.Lead{}, fmt.Errorf("updating stage: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO lead_stage_history (lead_id, from_stage, to_stage, changed_at, note)
		VALUES (?, ?, ?, ?, ?)`, leadID, string(change.From), string(change.To), at, change.Note); err != nil {
		return lead.Lead{}, fmt.Errorf("inserting stage history: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return lead.Lead{}, fmt.Errorf("committing stage change: %w", err)
	}
	return r.GetLead(ctx, ownerID, leadID)
}

// PipelineSummary counts leads and sums value per stage in pipeline order.
func (r *Repository) PipelineSummary(ctx context.Context, ownerID string) ([]lead.StageSummary, error) {
	var rows []struct {
		Stage string `db:"stage"`
		Count int    `db:"count"`
		Value int64  `db:"value"`
	}
	err := r.db.SelectContext(ctx, &rows, `SELECT stage, COUNT(*) AS count, COALESCE(SUM(estimated_value), 0) AS value
		FROM leads WHERE owner_id = ? GROUP BY stage`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("summarizing pipeline: %w", err)
	}
	byStage := make(map[lead.Stage]lead.StageSummary, len(rows))
	for _, row := range rows {
		byStage[lead.Stage(row.Stage)] = lead.StageSummary{Stage: lead.Stage(row.Stage), Count: row.Count, Value: row.Value}
	}
	out := make([]lead.StageSummary, 0, len(lead.Stages()))
	for _, st := range lead.Stages() {
		sum := byStage[st]
		sum.Stage = st
		out = append(out, sum)
	}
	return out, nil
}

func requireAffected(result sql.Result, kind, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("fetching rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, lead.ErrNotFound)
	}
	return nil
}
