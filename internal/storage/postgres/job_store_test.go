package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/leadscout/internal/lead"
)

func newJobStoreMock(t *testing.T) (*JobStore, pgxmock.PgxPoolIface, time.Time) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store, err := NewJobStore(mock)
	require.NoError(t, err)
	now := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	return store, mock, now
}

func TestJobStoreCreateJob(t *testing.T) {
	t.Parallel()

	store, mock, now := newJobStoreMock(t)
	job := lead.Job{
		ID:         "job-1",
		Status:     lead.JobStatusQueued,
		Submitted:  now,
		Parameters: lead.DiscoveryParams{OwnerID: "o", Query: "plumbers"},
	}
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO discovery_jobs")).
		WithArgs("job-1", "queued", now, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.CreateJob(context.Background(), job))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobStoreUpdateJobStatus(t *testing.T) {
	t.Parallel()

	store, mock, now := newJobStoreMock(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE discovery_jobs SET")).
		WithArgs("job-1", "running", "", []byte(`{"found":2,"filtered":0,"duplicates":0,"analyzed":0,"analysis_failed":0,"created":0}`), now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE discovery_jobs SET")).
		WithArgs("job-2", "failed", "boom", pgxmock.AnyArg(), now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.NoError(t, store.UpdateJobStatus(context.Background(), "job-1", lead.JobStatusRunning, "", lead.JobCounters{Found: 2}))
	err := store.UpdateJobStatus(context.Background(), "job-2", lead.JobStatusFailed, "boom", lead.JobCounters{})
	require.ErrorIs(t, err, lead.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobStoreGetJob(t *testing.T) {
	t.Parallel()

	store, mock, now := newJobStoreMock(t)
	started := now.Add(time.Second)
	mock.ExpectQuery(regexp.QuoteMeta("FROM discovery_jobs WHERE id = $1")).
		WithArgs("job-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "status", "submitted_at", "started_at", "finished_at", "error_text", "parameters", "counters",
		}).AddRow(
			"job-1", "running", now, &started, nil, "",
			[]byte(`{"owner_id":"o","query":"roofers","location":"Austin, TX"}`),
			[]byte(`{"found":5,"created":1}`),
		))

	job, err := store.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, lead.JobStatusRunning, job.Status)
	require.Equal(t, "roofers", job.Parameters.Query)
	require.Equal(t, 5, job.Counters.Found)
	require.NotNil(t, job.Started)
	require.Nil(t, job.Finished)

	mock.ExpectQuery(regexp.QuoteMeta("FROM discovery_jobs WHERE id = $1")).
		WithArgs("nope").
		WillReturnError(pgx.ErrNoRows)
	_, err = store.GetJob(context.Background(), "nope")
	require.ErrorIs(t, err, lead.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobStoreOutcomeRoundTrip(t *testing.T) {
	t.Parallel()

	store, mock, _ := newJobStoreMock(t)
	outcome := lead.JobOutcome{LeadIDs: []string{"l1"}, Duplicates: []lead.Duplicate{{LeadID: "l0", Reason: "phone", Similarity: 1}}}
	mock.ExpectExec(regexp.QuoteMeta("UPDATE discovery_jobs SET outcome = $2")).
		WithArgs("job-1", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT outcome FROM discovery_jobs")).
		WithArgs("job-1").
		WillReturnRows(pgxmock.NewRows([]string{"outcome"}).
			AddRow([]byte(`{"lead_ids":["l1"],"duplicates":[{"business":{"name":"X"},"lead_id":"l0","reason":"phone","similarity":1}]}`)))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT outcome FROM discovery_jobs")).
		WithArgs("job-2").
		WillReturnRows(pgxmock.NewRows([]string{"outcome"}).AddRow([]byte(nil)))

	require.NoError(t, store.RecordOutcome(context.Background(), "job-1", outcome))
	got, err := store.GetOutcome(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, []string{"l1"}, got.LeadIDs)
	require.Equal(t, "phone", got.Duplicates[0].Reason)

	empty, err := store.GetOutcome(context.Background(), "job-2")
	require.NoError(t, err)
	require.Empty(t, empty.LeadIDs)
	require.NoError(t, mock.ExpectationsWereMet())
}
