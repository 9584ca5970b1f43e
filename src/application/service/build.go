package service

import (
	"context"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/input-output-hk/freighter/src/config"
	"github.com/input-output-hk/freighter/src/domain"
)

// ImageBuilder produces a tagged OCI image layout for one component.
type ImageBuilder interface {
	Build(ctx context.Context, contextDir, layoutDir string, ref domain.ImageReference) error
}

// ComponentBuild is one successfully built, not yet published image.
type ComponentBuild struct {
	Component domain.Component
	Ref       domain.ImageReference
	Layout    string
}

type ImageBuildService interface {
	// BuildAll builds every component's image for the given build
	// identifier. The first failure aborts: no partially built
	// artifact is ever tagged or handed to the publisher.
	BuildAll(ctx context.Context, workspace string, components []config.Component, buildID uint64) ([]ComponentBuild, error)
}

type imageBuildService struct {
	logger  zerolog.Logger
	builder ImageBuilder
}

func NewImageBuildService(builder ImageBuilder, logger *zerolog.Logger) ImageBuildService {
	return &imageBuildService{
		logger:  logger.With().Str("component", "ImageBuildService").Logger(),
		builder: builder,
	}
}

func (self *imageBuildService) BuildAll(ctx context.Context, workspace string, components []config.Component, buildID uint64) ([]ComponentBuild, error) {
	builds := make([]ComponentBuild, 0, len(components))

	for _, component := range components {
		domainComponent := domain.Component{
			Name:            component.Name,
			SourcePath:      component.SourcePath,
			ImageRepository: component.ImageRepository,
		}
		ref := domain.NewImageReference(domainComponent, buildID)

		contextDir := filepath.Join(workspace, component.SourcePath)
		layoutDir := filepath.Join(workspace, "images", component.Name)

		self.logger.Info().Str("component", component.Name).Stringer("image", ref).Msg("Building")

		if err := self.builder.Build(ctx, contextDir, layoutDir, ref); err != nil {
			return nil, domain.BuildFailure{Component: component.Name, Err: err}
		}

		builds = append(builds, ComponentBuild{
			Component: domainComponent,
			Ref:       ref,
			Layout:    layoutDir,
		})
	}

	return builds, nil
}
