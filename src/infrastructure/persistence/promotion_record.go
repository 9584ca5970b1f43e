package persistence

import (
	"context"

	"github.com/georgysavva/scany/v2/pgxscan"

	"github.com/input-output-hk/freighter/src/config"
	"github.com/input-output-hk/freighter/src/domain"
	"github.com/input-output-hk/freighter/src/domain/repository"
)

type promotionRecordRepository struct {
	DB config.PgxIface
}

func NewPromotionRecordRepository(db config.PgxIface) repository.PromotionRecordRepository {
	return promotionRecordRepository{db}
}

func (self promotionRecordRepository) WithQuerier(querier config.PgxIface) repository.PromotionRecordRepository {
	return promotionRecordRepository{querier}
}

func (self promotionRecordRepository) Save(ctx context.Context, records []domain.PromotionRecord) error {
	for _, record := range records {
		if _, err := self.DB.Exec(
			ctx,
			`INSERT INTO promotion_record (component, previous_stable_image, new_stable_image, new_canary_image, build_id, "timestamp") VALUES ($1, $2, $3, $4, $5, $6)`,
			record.Component, record.PreviousStableImage, record.NewStableImage, record.NewCanaryImage, record.BuildID, record.Timestamp,
		); err != nil {
			return err
		}
	}
	return nil
}

func (self promotionRecordRepository) GetByBuildID(ctx context.Context, buildID uint64) (records []domain.PromotionRecord, err error) {
	err = pgxscan.Select(
		ctx, self.DB, &records,
		`SELECT component, previous_stable_image, new_stable_image, new_canary_image, build_id, "timestamp"
		FROM promotion_record
		WHERE build_id = $1
		ORDER BY component ASC`,
		buildID,
	)
	return
}
