package service

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/input-output-hk/freighter/src/domain"
)

type fakeSession struct {
	pushed []domain.ImageReference
	failOn string
	closed bool
}

func (self *fakeSession) Push(ctx context.Context, layoutPath string, ref domain.ImageReference) error {
	if self.failOn == ref.Repository {
		return errors.New("unexpected status code 401")
	}
	self.pushed = append(self.pushed, ref)
	return nil
}

func (self *fakeSession) Close() error {
	self.closed = true
	return nil
}

type fakeSessionOpener struct {
	session *fakeSession
	err     error
}

func (self fakeSessionOpener) Open(context.Context) (RegistrySession, error) {
	if self.err != nil {
		return nil, self.err
	}
	return self.session, nil
}

func someBuilds() []ComponentBuild {
	frontend := domain.Component{Name: "frontend", ImageRepository: "registry.example.com/acme/frontend"}
	backend := domain.Component{Name: "backend", ImageRepository: "registry.example.com/acme/backend"}
	return []ComponentBuild{
		{Component: frontend, Ref: domain.NewImageReference(frontend, 42), Layout: "/work/images/frontend"},
		{Component: backend, Ref: domain.NewImageReference(backend, 42), Layout: "/work/images/backend"},
	}
}

func TestPublishPushesEveryBuildAndReleasesTheSession(t *testing.T) {
	t.Parallel()

	// given
	logger := zerolog.Nop()
	session := &fakeSession{}
	service := NewRegistryPublishService(fakeSessionOpener{session: session}, &logger)

	// when
	err := service.Publish(context.Background(), someBuilds())

	// then
	assert.NoError(t, err)
	assert.Len(t, session.pushed, 2)
	assert.True(t, session.closed)
}

func TestPublishReleasesTheSessionOnFailure(t *testing.T) {
	t.Parallel()

	// given
	logger := zerolog.Nop()
	session := &fakeSession{failOn: "registry.example.com/acme/backend"}
	service := NewRegistryPublishService(fakeSessionOpener{session: session}, &logger)

	// when
	err := service.Publish(context.Background(), someBuilds())

	// then
	var failure domain.PushFailure
	if assert.ErrorAs(t, err, &failure) {
		assert.Equal(t, "backend", failure.Component)
	}
	assert.True(t, session.closed)
}

func TestPublishFailsWhenTheSessionCannotBeOpened(t *testing.T) {
	t.Parallel()

	// given
	logger := zerolog.Nop()
	service := NewRegistryPublishService(fakeSessionOpener{err: errors.New("Missing registry credentials")}, &logger)

	// when
	err := service.Publish(context.Background(), someBuilds())

	// then
	var failure domain.PushFailure
	assert.ErrorAs(t, err, &failure)
}
