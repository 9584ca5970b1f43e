package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/input-output-hk/freighter/src/config"
	"github.com/input-output-hk/freighter/src/domain"
)

// CommandScanner runs one scanner process against the workspace.
type CommandScanner interface {
	Scan(ctx context.Context, workspace string, gate config.Gate) (domain.GateStatus, string)
}

// ScoreWaiter waits for a score-style gate's computed status,
// bounded by the gate's timeout.
type ScoreWaiter interface {
	Wait(ctx context.Context, gate config.Gate) (domain.GateStatus, string)
}

type QualityGateService interface {
	// Run executes every configured gate in order and returns the full
	// report. Gates are independent and all of them run even after a
	// hard failure, so the report is always complete; it is the caller
	// who aborts the pipeline on a blocking result.
	Run(ctx context.Context, workspace string, gates []config.Gate) domain.GateReport
}

type qualityGateService struct {
	logger  zerolog.Logger
	scanner CommandScanner
	waiter  ScoreWaiter
}

func NewQualityGateService(scanner CommandScanner, waiter ScoreWaiter, logger *zerolog.Logger) QualityGateService {
	return &qualityGateService{
		logger:  logger.With().Str("component", "QualityGateService").Logger(),
		scanner: scanner,
		waiter:  waiter,
	}
}

func (self *qualityGateService) Run(ctx context.Context, workspace string, gates []config.Gate) domain.GateReport {
	report := make(domain.GateReport, 0, len(gates))

	for _, gate := range gates {
		var status domain.GateStatus
		var detail string

		switch gate.Kind {
		case config.GateKindScore:
			status, detail = self.waiter.Wait(ctx, gate)
		default:
			status, detail = self.scanner.Scan(ctx, workspace, gate)
		}

		result := domain.GateResult{
			GateName: gate.Name,
			Status:   status,
			Hard:     gate.Hard,
			Detail:   detail,
		}
		report = append(report, result)

		statusStr, _ := status.String()
		event := self.logger.Info()
		if result.Blocking() {
			event = self.logger.Error()
		} else if status != domain.GateStatusPass {
			event = self.logger.Warn()
		}
		event.
			Str("gate", gate.Name).
			Str("status", statusStr).
			Bool("hard", gate.Hard).
			Msg("Gate finished")
	}

	return report
}
