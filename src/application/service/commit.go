package service

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/input-output-hk/freighter/src/domain"
)

// MaxPushAttempts bounds the conflict retries of one run.
const MaxPushAttempts = 3

// ConfigRepo is the checkout of the configuration repository the
// promotion deltas are committed to.
type ConfigRepo interface {
	ManifestStore

	Add(paths ...string) error
	IsClean() (bool, error)
	Commit(message string) error
	Push(ctx context.Context) error
	ResetToRemote(ctx context.Context) error
}

type GitOpsCommitService interface {
	// CommitAndPush stages exactly the manifests the promotion touched
	// and pushes them. An empty change set is a successful no-op. A push
	// rejected because of a concurrent update is retried: re-fetch the
	// remote state, re-apply the captured deltas and push again, up to
	// MaxPushAttempts before giving up for good.
	CommitAndPush(ctx context.Context, repo ConfigRepo, deltas []domain.ManifestDelta, buildID uint64) (domain.CommitOutcome, error)
}

// ConflictObserver is notified about every push conflict, e.g. to
// count them in metrics.
type ConflictObserver func()

type gitOpsCommitService struct {
	logger     zerolog.Logger
	promoter   ManifestPromotionService
	onConflict ConflictObserver
}

func NewGitOpsCommitService(promoter ManifestPromotionService, onConflict ConflictObserver, logger *zerolog.Logger) GitOpsCommitService {
	return &gitOpsCommitService{
		logger:     logger.With().Str("component", "GitOpsCommitService").Logger(),
		promoter:   promoter,
		onConflict: onConflict,
	}
}

func (self *gitOpsCommitService) CommitAndPush(ctx context.Context, repo ConfigRepo, deltas []domain.ManifestDelta, buildID uint64) (domain.CommitOutcome, error) {
	message := fmt.Sprintf("Promote build %d", buildID)

	for attempt := 1; ; attempt++ {
		paths := make([]string, 0, len(deltas))
		for _, delta := range deltas {
			paths = append(paths, delta.Path)
		}
		if err := repo.Add(paths...); err != nil {
			return 0, domain.CommitFailure{Attempts: attempt, Err: err}
		}

		if clean, err := repo.IsClean(); err != nil {
			return 0, domain.CommitFailure{Attempts: attempt, Err: err}
		} else if clean {
			// The canary already equalled the stable image, or the
			// remote has these exact contents. Nothing to record.
			self.logger.Info().Msg("Manifests are unchanged, nothing to commit")
			return domain.CommitOutcomeNoChanges, nil
		}

		if err := repo.Commit(message); err != nil {
			return 0, domain.CommitFailure{Attempts: attempt, Err: err}
		}

		err := repo.Push(ctx)
		switch {
		case err == nil:
			self.logger.Info().Int("attempt", attempt).Msg("Pushed manifests")
			return domain.CommitOutcomeCommitted, nil

		case errors.Is(err, domain.ErrCommitConflict):
			if self.onConflict != nil {
				self.onConflict()
			}
			if attempt >= MaxPushAttempts {
				return 0, domain.CommitFailure{Attempts: attempt, Err: err}
			}

			self.logger.Warn().Int("attempt", attempt).Msg("Push was rejected, re-applying deltas onto the new remote state")

			if err := repo.ResetToRemote(ctx); err != nil {
				return 0, domain.CommitFailure{Attempts: attempt, Err: err}
			}
			if err := self.promoter.Apply(repo, deltas); err != nil {
				return 0, domain.CommitFailure{Attempts: attempt, Err: err}
			}

		default:
			// Auth and network failures are not worth retrying here;
			// the next run will try again from scratch.
			return 0, domain.CommitFailure{Attempts: attempt, Err: err}
		}
	}
}
