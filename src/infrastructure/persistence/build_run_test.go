package persistence

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"

	"github.com/input-output-hk/freighter/src/domain"
)

func TestBuildRunSave(t *testing.T) {
	t.Parallel()

	// given
	mock, err := pgxmock.NewPool()
	if !assert.NoError(t, err) {
		return
	}
	defer mock.Close()

	run := domain.NewBuildRun(42, "abc123")

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO build_run (run_id, id, commit_sha, started_at) VALUES ($1, $2, $3, $4)`)).
		WithArgs(run.RunID, run.ID, run.CommitSHA, run.StartedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	// when
	err = NewBuildRunRepository(mock).Save(context.Background(), &run)

	// then
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBuildRunUpdateOutcome(t *testing.T) {
	t.Parallel()

	// given
	mock, err := pgxmock.NewPool()
	if !assert.NoError(t, err) {
		return
	}
	defer mock.Close()

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE build_run SET outcome = $2 WHERE id = $1`)).
		WithArgs(uint64(42), "success").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	// when
	err = NewBuildRunRepository(mock).UpdateOutcome(context.Background(), 42, domain.RunOutcomeSuccess)

	// then
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBuildRunGetLatest(t *testing.T) {
	t.Parallel()

	// given
	mock, err := pgxmock.NewPool()
	if !assert.NoError(t, err) {
		return
	}
	defer mock.Close()

	runID := uuid.New()
	startedAt := time.Now().UTC()
	outcome := "failure"

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT run_id, id, commit_sha, started_at, outcome FROM build_run ORDER BY id DESC LIMIT 1`)).
		WillReturnRows(
			pgxmock.NewRows([]string{"run_id", "id", "commit_sha", "started_at", "outcome"}).
				AddRow(runID, uint64(42), "abc123", startedAt, &outcome),
		)

	// when
	run, err := NewBuildRunRepository(mock).GetLatest(context.Background())

	// then
	assert.NoError(t, err)
	if assert.NotNil(t, run) {
		assert.Equal(t, runID, run.RunID)
		assert.Equal(t, uint64(42), run.ID)
		assert.Equal(t, "abc123", run.CommitSHA)
		if assert.NotNil(t, run.Outcome) {
			assert.Equal(t, domain.RunOutcomeFailure, *run.Outcome)
		}
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBuildRunGetLatestOnEmptyTable(t *testing.T) {
	t.Parallel()

	// given
	mock, err := pgxmock.NewPool()
	if !assert.NoError(t, err) {
		return
	}
	defer mock.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT run_id, id, commit_sha, started_at, outcome FROM build_run ORDER BY id DESC LIMIT 1`)).
		WillReturnError(pgx.ErrNoRows)

	// when
	run, err := NewBuildRunRepository(mock).GetLatest(context.Background())

	// then
	assert.NoError(t, err)
	assert.Nil(t, run)
	assert.NoError(t, mock.ExpectationsWereMet())
}
