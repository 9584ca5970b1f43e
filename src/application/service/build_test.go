package service

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/input-output-hk/freighter/src/config"
	"github.com/input-output-hk/freighter/src/domain"
)

type fakeBuilder struct {
	built  []domain.ImageReference
	failOn string
}

func (self *fakeBuilder) Build(ctx context.Context, contextDir, layoutDir string, ref domain.ImageReference) error {
	if self.failOn != "" && filepath.Base(layoutDir) == self.failOn {
		return errors.New("Build command exited with status 1")
	}
	self.built = append(self.built, ref)
	return nil
}

func TestBuildAllTagsWithBuildID(t *testing.T) {
	t.Parallel()

	// given
	logger := zerolog.Nop()
	builder := &fakeBuilder{}
	components := []config.Component{
		{Name: "frontend", SourcePath: "frontend", ImageRepository: "registry.example.com/acme/frontend"},
		{Name: "backend", SourcePath: "backend", ImageRepository: "registry.example.com/acme/backend"},
	}
	service := NewImageBuildService(builder, &logger)

	// when
	builds, err := service.BuildAll(context.Background(), "/work", components, 42)

	// then
	assert.NoError(t, err)
	if assert.Len(t, builds, 2) {
		assert.Equal(t, "registry.example.com/acme/frontend:42", builds[0].Ref.String())
		assert.Equal(t, "registry.example.com/acme/backend:42", builds[1].Ref.String())
		assert.Equal(t, "frontend", builds[0].Component.SourcePath)
		assert.Equal(t, filepath.Join("/work", "images", "frontend"), builds[0].Layout)
	}
}

func TestBuildAllAbortsOnFirstFailure(t *testing.T) {
	t.Parallel()

	// given
	logger := zerolog.Nop()
	builder := &fakeBuilder{failOn: "backend"}
	components := []config.Component{
		{Name: "frontend", SourcePath: "frontend", ImageRepository: "registry.example.com/acme/frontend"},
		{Name: "backend", SourcePath: "backend", ImageRepository: "registry.example.com/acme/backend"},
		{Name: "worker", SourcePath: "worker", ImageRepository: "registry.example.com/acme/worker"},
	}
	service := NewImageBuildService(builder, &logger)

	// when
	builds, err := service.BuildAll(context.Background(), "/work", components, 42)

	// then
	assert.Nil(t, builds)
	var failure domain.BuildFailure
	if assert.ErrorAs(t, err, &failure) {
		assert.Equal(t, "backend", failure.Component)
	}
	// the worker was never attempted
	assert.Len(t, builder.built, 1)
}
