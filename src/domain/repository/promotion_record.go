package repository

import (
	"context"

	"github.com/input-output-hk/freighter/src/config"
	"github.com/input-output-hk/freighter/src/domain"
)

type PromotionRecordRepository interface {
	WithQuerier(config.PgxIface) PromotionRecordRepository

	Save(context.Context, []domain.PromotionRecord) error
	GetByBuildID(ctx context.Context, buildID uint64) ([]domain.PromotionRecord, error)
}
