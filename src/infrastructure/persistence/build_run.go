package persistence

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/input-output-hk/freighter/src/config"
	"github.com/input-output-hk/freighter/src/domain"
	"github.com/input-output-hk/freighter/src/domain/repository"
)

type buildRunRepository struct {
	DB config.PgxIface
}

func NewBuildRunRepository(db config.PgxIface) repository.BuildRunRepository {
	return buildRunRepository{db}
}

func (self buildRunRepository) WithQuerier(querier config.PgxIface) repository.BuildRunRepository {
	return buildRunRepository{querier}
}

func (self buildRunRepository) Save(ctx context.Context, run *domain.BuildRun) (err error) {
	_, err = self.DB.Exec(
		ctx,
		`INSERT INTO build_run (run_id, id, commit_sha, started_at) VALUES ($1, $2, $3, $4)`,
		run.RunID, run.ID, run.CommitSHA, run.StartedAt,
	)
	return
}

func (self buildRunRepository) UpdateOutcome(ctx context.Context, id uint64, outcome domain.RunOutcome) error {
	str, err := outcome.String()
	if err != nil {
		return err
	}

	_, err = self.DB.Exec(
		ctx,
		`UPDATE build_run SET outcome = $2 WHERE id = $1`,
		id, str,
	)
	return err
}

func (self buildRunRepository) GetLatest(ctx context.Context) (*domain.BuildRun, error) {
	run := domain.BuildRun{}
	var outcome *string

	row := self.DB.QueryRow(
		ctx,
		`SELECT run_id, id, commit_sha, started_at, outcome FROM build_run ORDER BY id DESC LIMIT 1`,
	)
	if err := row.Scan(&run.RunID, &run.ID, &run.CommitSHA, &run.StartedAt, &outcome); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	if outcome != nil {
		parsed := domain.RunOutcome(0)
		if err := parsed.FromString(*outcome); err != nil {
			return nil, err
		}
		run.Outcome = &parsed
	}

	return &run, nil
}
