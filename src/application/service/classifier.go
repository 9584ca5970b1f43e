package service

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/input-output-hk/freighter/src/domain"
)

// ChangeLister computes the set of paths changed between two revisions
// of the source checkout.
type ChangeLister interface {
	ChangedPaths(ctx context.Context, dir, fromSHA, toSHA string) ([]string, error)
}

type ChangeClassifierService interface {
	// Decide inspects the changes that triggered the run and decides
	// whether the run should happen at all. It never fails the run:
	// when the diff cannot be computed (for example on the very first
	// run, with no prior revision) it fails open and proceeds.
	Decide(ctx context.Context, workspace, fromSHA, toSHA string, exclusions []string) domain.Decision
}

type changeClassifierService struct {
	logger zerolog.Logger
	lister ChangeLister
}

func NewChangeClassifierService(lister ChangeLister, logger *zerolog.Logger) ChangeClassifierService {
	return &changeClassifierService{
		logger: logger.With().Str("component", "ChangeClassifierService").Logger(),
		lister: lister,
	}
}

func (self *changeClassifierService) Decide(ctx context.Context, workspace, fromSHA, toSHA string, exclusions []string) domain.Decision {
	changed, err := self.lister.ChangedPaths(ctx, workspace, fromSHA, toSHA)
	if err != nil {
		self.logger.Warn().Err(err).Msg("Could not compute changed paths, proceeding")
		return domain.DecisionProceed
	}

	decision := Classify(changed, exclusions)
	self.logger.Info().
		Strs("changed", changed).
		Bool("skip", decision.Skip()).
		Msg("Classified change set")

	return decision
}

// Classify returns Skip iff the change set is non-empty and every
// entry falls under an exclusion prefix. An empty change set proceeds:
// it usually means the trigger had no diff information to offer.
func Classify(changed []string, exclusions []string) domain.Decision {
	if len(changed) == 0 {
		return domain.DecisionProceed
	}

	for _, path := range changed {
		if !excluded(path, exclusions) {
			return domain.DecisionProceed
		}
	}

	return domain.DecisionSkip
}

func excluded(path string, exclusions []string) bool {
	for _, prefix := range exclusions {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
