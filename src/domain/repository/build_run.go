package repository

import (
	"context"

	"github.com/input-output-hk/freighter/src/config"
	"github.com/input-output-hk/freighter/src/domain"
)

type BuildRunRepository interface {
	WithQuerier(config.PgxIface) BuildRunRepository

	Save(context.Context, *domain.BuildRun) error
	UpdateOutcome(ctx context.Context, id uint64, outcome domain.RunOutcome) error
	GetLatest(context.Context) (*domain.BuildRun, error)
}
