package application

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/input-output-hk/freighter/src/application/service"
	"github.com/input-output-hk/freighter/src/config"
	"github.com/input-output-hk/freighter/src/domain"
)

// Trigger is what the invoking environment supplies for one run:
// the strictly increasing build identifier, the commit to deliver
// and a pointer at the run's diagnostic output.
type Trigger struct {
	BuildID   uint64
	CommitSHA string
	RunURL    string
}

// SourceFetcher downloads the source tree for a revision into a
// per-run workspace.
type SourceFetcher interface {
	Fetch(ctx context.Context, revision, runID string) (string, error)
}

// ConfigRepoOpener checks out the configuration repository for a run.
type ConfigRepoOpener interface {
	Open(ctx context.Context) (service.ConfigRepo, error)
}

// Pipeline executes one delivery run as a linear state machine.
// Each stage is owned by one service; a hard error from any stage
// moves the run to the failed state and skips everything after it
// except the single terminal notification.
type Pipeline struct {
	Logger zerolog.Logger

	Cfg     *config.Pipeline
	Metrics *config.Metrics

	Source     SourceFetcher
	GitOps     ConfigRepoOpener
	Classifier service.ChangeClassifierService
	Gates      service.QualityGateService
	Builds     service.ImageBuildService
	Publisher  service.RegistryPublishService
	Promoter   service.ManifestPromotionService
	Committer  service.GitOpsCommitService
	Notifier   service.NotificationService
	Audit      service.AuditService
}

// Execute runs the pipeline once. The returned outcome decides the
// process exit status: skipped and successful runs both exit zero.
// The notification is dispatched exactly once for every terminal
// state, including failures.
func (self *Pipeline) Execute(ctx context.Context, trigger Trigger) (domain.RunOutcome, error) {
	run := domain.NewBuildRun(trigger.BuildID, trigger.CommitSHA)

	logger := self.Logger.With().
		Uint64("build", run.ID).
		Str("run", run.RunID.String()).
		Str("commit", run.CommitSHA).
		Logger()

	logger.Info().Msg("Starting delivery run")
	self.Audit.RecordStart(ctx, &run)

	state, runErr := self.advanceThrough(ctx, &run, trigger, &logger)

	outcome, err := state.Outcome()
	if err != nil {
		// A non-terminal final state is a bug in the state machine itself.
		logger.Error().Err(err).Stringer("state", state).Msg("Run ended in a non-terminal state")
		outcome = domain.RunOutcomeFailure
	}
	run.Outcome = &outcome

	outcomeStr, _ := outcome.String()
	self.Audit.RecordOutcome(ctx, run.ID, outcome)
	if self.Metrics != nil {
		self.Metrics.RunsTotal.WithLabelValues(outcomeStr).Inc()
	}

	notifyOutcome := outcome
	if notifyOutcome == domain.RunOutcomeSkipped {
		// A skipped run is reported as a success.
		notifyOutcome = domain.RunOutcomeSuccess
	}
	self.Notifier.Notify(ctx, notifyOutcome, run.ID, trigger.RunURL)

	if runErr != nil {
		logger.Error().Err(runErr).Msg("Delivery run failed")
	} else {
		logger.Info().Str("outcome", outcomeStr).Msg("Delivery run finished")
	}

	return outcome, runErr
}

// advanceThrough walks the state machine and returns the terminal
// state. Any error it returns moved the run to the failed state.
func (self *Pipeline) advanceThrough(ctx context.Context, run *domain.BuildRun, trigger Trigger, logger *zerolog.Logger) (domain.RunState, error) {
	state := domain.RunStateStart

	step := func(next domain.RunState) error {
		if !state.CanAdvanceTo(next) {
			return errors.Errorf("Illegal transition %s -> %s", state, next)
		}
		state = next
		logger.Debug().Stringer("state", state).Msg("Entered state")
		return nil
	}
	fail := func(err error) (domain.RunState, error) {
		state = domain.RunStateFailed
		return state, err
	}

	workspace, err := self.Source.Fetch(ctx, trigger.CommitSHA, run.RunID.String())
	if err != nil {
		return fail(err)
	}

	priorSHA := ""
	if last, err := self.Audit.LastRun(ctx); err != nil {
		logger.Warn().Err(err).Msg("Could not look up the previous run")
	} else if last != nil {
		priorSHA = last.CommitSHA
	}

	decision := self.Classifier.Decide(ctx, workspace, priorSHA, trigger.CommitSHA, self.Cfg.Source.Exclusions)
	if err := step(domain.RunStateClassified); err != nil {
		return fail(err)
	}
	if decision.Skip() {
		if err := step(domain.RunStateSkipped); err != nil {
			return fail(err)
		}
		logger.Info().Msg("Only excluded paths changed, skipping this run")
		return state, nil
	}

	if err := step(domain.RunStateGating); err != nil {
		return fail(err)
	}
	report := self.Gates.Run(ctx, workspace, self.Cfg.Gates)
	if self.Metrics != nil {
		for _, result := range report {
			if result.Status != domain.GateStatusPass {
				self.Metrics.GateFailures.WithLabelValues(result.GateName).Inc()
			}
		}
	}
	if blocking := report.HardFailure(); blocking != nil {
		return fail(domain.GateFailure{Gate: blocking.GateName, Status: blocking.Status, Hard: true})
	}
	if err := step(domain.RunStateGatedOk); err != nil {
		return fail(err)
	}

	if err := step(domain.RunStateBuilding); err != nil {
		return fail(err)
	}
	builds, err := self.Builds.BuildAll(ctx, workspace, self.Cfg.Components, trigger.BuildID)
	if err != nil {
		return fail(err)
	}
	if err := step(domain.RunStateBuilt); err != nil {
		return fail(err)
	}

	if err := step(domain.RunStatePublishing); err != nil {
		return fail(err)
	}
	if err := self.Publisher.Publish(ctx, builds); err != nil {
		return fail(err)
	}
	if err := step(domain.RunStatePublished); err != nil {
		return fail(err)
	}

	if err := step(domain.RunStatePromoting); err != nil {
		return fail(err)
	}
	repo, err := self.GitOps.Open(ctx)
	if err != nil {
		return fail(err)
	}
	deltas, records, err := self.Promoter.PromoteAll(repo, self.Cfg.Components, self.Cfg.GitOps.ManifestDir, trigger.BuildID)
	if err != nil {
		return fail(err)
	}
	self.Audit.RecordPromotions(ctx, records)
	if err := step(domain.RunStatePromoted); err != nil {
		return fail(err)
	}

	if err := step(domain.RunStateCommitting); err != nil {
		return fail(err)
	}
	if _, err := self.Committer.CommitAndPush(ctx, repo, deltas, trigger.BuildID); err != nil {
		return fail(err)
	}
	if err := step(domain.RunStateDone); err != nil {
		return fail(err)
	}

	return state, nil
}
