package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/input-output-hk/freighter/src/domain"
)

// RegistrySession is one authenticated session with the artifact
// registry. Close must run on every exit path of a run so that the
// credentials never outlive it.
type RegistrySession interface {
	Push(ctx context.Context, layoutPath string, ref domain.ImageReference) error
	Close() error
}

type RegistrySessionOpener interface {
	Open(ctx context.Context) (RegistrySession, error)
}

type RegistryPublishService interface {
	// Publish authenticates once, pushes every built image in sequence
	// and releases the session whatever happens. A failure for any one
	// image aborts the entire run so that no component advances alone.
	Publish(ctx context.Context, builds []ComponentBuild) error
}

type registryPublishService struct {
	logger zerolog.Logger
	opener RegistrySessionOpener
}

func NewRegistryPublishService(opener RegistrySessionOpener, logger *zerolog.Logger) RegistryPublishService {
	return &registryPublishService{
		logger: logger.With().Str("component", "RegistryPublishService").Logger(),
		opener: opener,
	}
}

func (self *registryPublishService) Publish(ctx context.Context, builds []ComponentBuild) error {
	session, err := self.opener.Open(ctx)
	if err != nil {
		return domain.PushFailure{Component: "", Err: err}
	}
	defer func() {
		if err := session.Close(); err != nil {
			self.logger.Warn().Err(err).Msg("Could not release the registry session")
		}
	}()

	for _, build := range builds {
		self.logger.Info().Str("component", build.Component.Name).Stringer("image", build.Ref).Msg("Publishing")

		if err := session.Push(ctx, build.Layout, build.Ref); err != nil {
			return domain.PushFailure{Component: build.Component.Name, Err: err}
		}
	}

	return nil
}
