package component

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/input-output-hk/freighter/src/application"
	"github.com/input-output-hk/freighter/src/application/service"
	"github.com/input-output-hk/freighter/src/config"
	"github.com/input-output-hk/freighter/src/domain"
)

// HeadResolver resolves the current tip of the watched branch.
type HeadResolver interface {
	Head(ctx context.Context, credentials config.Credentials) (string, error)
}

// Runner executes one delivery run.
type Runner interface {
	Execute(ctx context.Context, trigger application.Trigger) (domain.RunOutcome, error)
}

// Poller triggers a delivery run whenever the watched branch moves.
// It is the scheduled counterpart to invoking `freighter run` from a
// source-control change event.
type Poller struct {
	Logger   zerolog.Logger
	Source   config.Source
	Interval time.Duration
	Heads    HeadResolver
	Runner   Runner
	Audit    service.AuditService

	lastSeen string
}

func (self *Poller) Start(ctx context.Context) error {
	self.Logger.Info().Dur("interval", self.Interval).Msg("Starting")

	if last, err := self.Audit.LastRun(ctx); err != nil {
		self.Logger.Warn().Err(err).Msg("Could not look up the last recorded run")
	} else if last != nil {
		self.lastSeen = last.CommitSHA
	}

	ticker := time.NewTicker(self.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			self.Logger.Info().Msg("Stopping")
			return nil
		case <-ticker.C:
			if err := self.poll(ctx); err != nil {
				self.Logger.Error().Err(err).Msg("Poll failed")
			}
		}
	}
}

func (self *Poller) poll(ctx context.Context) error {
	head, err := self.Heads.Head(ctx, config.Credentials{})
	if err != nil {
		return err
	}

	if head == self.lastSeen {
		return nil
	}

	buildID := uint64(1)
	if last, err := self.Audit.LastRun(ctx); err != nil {
		return err
	} else if last != nil {
		buildID = last.ID + 1
	}

	self.Logger.Info().Str("commit", head).Uint64("build", buildID).Msg("Branch moved, triggering run")

	// The run's own failure handling already logged and notified;
	// the poller only remembers that this commit was attempted so it
	// is not retried in a loop.
	if _, err := self.Runner.Execute(ctx, application.Trigger{
		BuildID:   buildID,
		CommitSHA: head,
	}); err != nil {
		self.lastSeen = head
		return nil
	}

	self.lastSeen = head
	return nil
}
