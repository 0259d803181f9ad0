package sinks

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/leadscout/internal/progress"
	"github.com/JakeFAU/leadscout/internal/store"
)

const unknownSource = "unknown"

// StoreSink persists progress through a store.ProgressRepository, collapsing
// per-source deltas within a batch to one write each.
type StoreSink struct {
	repo   store.ProgressRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo store.ProgressRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Consume applies job lifecycle events in order and then flushes the
// aggregated source deltas.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	pending := make(map[sourceKey]*sourceAgg)

	for _, evt := range batch {
		jobID := evt.JobUUID()
		switch evt.Stage {
		case progress.StageJobStart, progress.StageJobDone, progress.StageJobError:
			if err := s.handleJobEvent(ctx, jobID, evt); err != nil {
				return err
			}
		default:
			addSourceDelta(pending, jobID, evt)
		}
	}

	for key, agg := range pending {
		if agg.delta.IsZero() {
			continue
		}
		if err := s.repo.UpsertSourceStats(ctx, key.jobID, key.source, agg.delta, agg.at); err != nil {
			return fmt.Errorf("upsert source stats: %w", err)
		}
	}
	s.logger.Debug("progress batch persisted", zap.Int("events", len(batch)), zap.Int("sources", len(pending)))
	return nil
}

func (s *StoreSink) handleJobEvent(ctx context.Context, jobID uuid.UUID, evt progress.Event) error {
	switch evt.Stage {
	case progress.StageJobStart:
		if err := s.repo.UpsertJobStart(ctx, jobID, evt.TS); err != nil {
			return fmt.Errorf("upsert job start: %w", err)
		}
	case progress.StageJobDone:
		if err := s.repo.CompleteJob(ctx, jobID, evt.TS, store.RunSuccess, nil); err != nil {
			return fmt.Errorf("complete job: %w", err)
		}
	case progress.StageJobError:
		var note *string
		if evt.Note != "" {
			note = &evt.Note
		}
		if err := s.repo.CompleteJob(ctx, jobID, evt.TS, store.RunError, note); err != nil {
			return fmt.Errorf("complete job: %w", err)
		}
	}
	return nil
}

func addSourceDelta(pending map[sourceKey]*sourceAgg, jobID uuid.UUID, evt progress.Event) {
	source := evt.Source
	if source == "" {
		source = unknownSource
	}
	key := sourceKey{jobID: jobID, source: source}
	agg := pending[key]
	if agg == nil {
		agg = &sourceAgg{}
		pending[key] = agg
	}
	switch evt.Stage {
	case progress.StageSearchDone:
		agg.delta.Results += evt.Results
	case progress.StageAnalyzeDone:
		agg.delta.Bytes += evt.Bytes
		if evt.Score < 0 {
			agg.delta.Failed++
		} else {
			agg.delta.Analyzed++
			agg.delta.Score += int64(evt.Score)
		}
	case progress.StageLeadCreated:
		agg.delta.Created++
	case progress.StageDuplicateSkipped:
		agg.delta.Duplicates++
	}
	if agg.at.IsZero() || evt.TS.After(agg.at) {
		agg.at = evt.TS
	}
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}

type sourceKey struct {
	jobID  uuid.UUID
	source string
}

type sourceAgg struct {
	delta store.SourceDelta
	at    time.Time
}
