package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/input-output-hk/freighter/src/config"
	"github.com/input-output-hk/freighter/src/domain"
	"github.com/input-output-hk/freighter/src/domain/repository"
	"github.com/input-output-hk/freighter/src/infrastructure/persistence"
)

// AuditService persists build runs and promotion records for
// traceability. It feeds no control decision, so every failure here
// is logged and swallowed.
type AuditService interface {
	RecordStart(context.Context, *domain.BuildRun)
	RecordOutcome(ctx context.Context, id uint64, outcome domain.RunOutcome)
	RecordPromotions(context.Context, []domain.PromotionRecord)

	// LastRun returns the most recent recorded run, or nil when
	// there is none (or no audit database is configured).
	LastRun(context.Context) (*domain.BuildRun, error)
}

func NewAuditService(db config.PgxIface, logger *zerolog.Logger) AuditService {
	contextualLogger := logger.With().Str("component", "AuditService").Logger()

	if db == nil {
		return &nopAuditService{logger: contextualLogger}
	}

	return &auditService{
		logger:                    contextualLogger,
		buildRunRepository:        persistence.NewBuildRunRepository(db),
		promotionRecordRepository: persistence.NewPromotionRecordRepository(db),
	}
}

type auditService struct {
	logger                    zerolog.Logger
	buildRunRepository        repository.BuildRunRepository
	promotionRecordRepository repository.PromotionRecordRepository
}

func (self *auditService) RecordStart(ctx context.Context, run *domain.BuildRun) {
	if err := self.buildRunRepository.Save(ctx, run); err != nil {
		self.logger.Warn().Err(err).Uint64("build", run.ID).Msg("Could not record run start")
	}
}

func (self *auditService) RecordOutcome(ctx context.Context, id uint64, outcome domain.RunOutcome) {
	if err := self.buildRunRepository.UpdateOutcome(ctx, id, outcome); err != nil {
		self.logger.Warn().Err(err).Uint64("build", id).Msg("Could not record run outcome")
	}
}

func (self *auditService) RecordPromotions(ctx context.Context, records []domain.PromotionRecord) {
	if err := self.promotionRecordRepository.Save(ctx, records); err != nil {
		self.logger.Warn().Err(err).Msg("Could not record promotions")
	}
}

func (self *auditService) LastRun(ctx context.Context) (*domain.BuildRun, error) {
	return self.buildRunRepository.GetLatest(ctx)
}

type nopAuditService struct {
	logger zerolog.Logger
}

func (self *nopAuditService) RecordStart(context.Context, *domain.BuildRun) {}

func (self *nopAuditService) RecordOutcome(context.Context, uint64, domain.RunOutcome) {}

func (self *nopAuditService) RecordPromotions(context.Context, []domain.PromotionRecord) {}

func (self *nopAuditService) LastRun(context.Context) (*domain.BuildRun, error) {
	return nil, nil
}
