package registry

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	pipeline "github.com/input-output-hk/freighter/src/config"
	"github.com/input-output-hk/freighter/src/domain"
)

func TestOpenRequiresCredentials(t *testing.T) {
	// no t.Parallel: manipulates the process environment

	logger := zerolog.Nop()
	opener := Opener{
		Cfg:    pipeline.Registry{Host: "registry.example.com", UsernameEnv: "TEST_PUSH_USER", TokenEnv: "TEST_PUSH_TOKEN"},
		Logger: &logger,
	}

	// when the environment holds no credentials
	_, err := opener.Open(context.Background())

	// then
	assert.ErrorContains(t, err, "TEST_PUSH_USER")

	// when they are present
	t.Setenv("TEST_PUSH_USER", "robot")
	t.Setenv("TEST_PUSH_TOKEN", "s3cret")
	session, err := opener.Open(context.Background())

	// then
	assert.NoError(t, err)
	assert.NotNil(t, session)
	assert.NoError(t, session.Close())
}

func TestPushOnAClosedSessionFails(t *testing.T) {
	// no t.Parallel: manipulates the process environment

	t.Setenv("TEST_PUSH_USER", "robot")
	t.Setenv("TEST_PUSH_TOKEN", "s3cret")

	logger := zerolog.Nop()
	opener := Opener{
		Cfg:    pipeline.Registry{Host: "registry.example.com", UsernameEnv: "TEST_PUSH_USER", TokenEnv: "TEST_PUSH_TOKEN"},
		Logger: &logger,
	}

	session, err := opener.Open(context.Background())
	if !assert.NoError(t, err) {
		return
	}

	// when
	assert.NoError(t, session.Close())
	err = session.Push(context.Background(), t.TempDir(), domain.ImageReference{Repository: "registry.example.com/acme/frontend", Tag: "42"})

	// then
	assert.ErrorContains(t, err, "closed")

	// closing twice is fine
	assert.NoError(t, session.Close())
}
