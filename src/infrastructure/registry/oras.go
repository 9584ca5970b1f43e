// Package registry publishes built image layouts to the artifact
// registry through ORAS. One Session spans one delivery run; closing
// it forgets the credentials so they never outlive the run on a
// shared build host.
package registry

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	oras "oras.land/oras-go/v2"
	"oras.land/oras-go/v2/content/oci"
	"oras.land/oras-go/v2/registry/remote"
	"oras.land/oras-go/v2/registry/remote/auth"

	pipeline "github.com/input-output-hk/freighter/src/config"
	"github.com/input-output-hk/freighter/src/domain"
)

type Session struct {
	logger zerolog.Logger
	cfg    pipeline.Registry
	client *auth.Client
	closed bool
}

type Opener struct {
	Cfg    pipeline.Registry
	Logger *zerolog.Logger
}

func (self Opener) Open(ctx context.Context) (*Session, error) {
	credentials := self.Cfg.Credentials()
	if credentials.Username == "" {
		return nil, errors.Errorf("No registry credentials in environment variable %q", self.Cfg.UsernameEnv)
	}

	return &Session{
		logger: self.Logger.With().Str("component", "RegistrySession").Logger(),
		cfg:    self.Cfg,
		client: &auth.Client{
			Client: &http.Client{},
			Cache:  auth.NewCache(),
			Credential: auth.StaticCredential(self.Cfg.Host, auth.Credential{
				Username: credentials.Username,
				Password: credentials.Token,
			}),
		},
	}, nil
}

// Push copies the image layout produced by the builder to the remote
// repository under the reference's tag.
func (self *Session) Push(ctx context.Context, layoutPath string, ref domain.ImageReference) error {
	if self.closed {
		return errors.New("Registry session is already closed")
	}

	store, err := oci.New(layoutPath)
	if err != nil {
		return errors.WithMessagef(err, "While opening image layout %q", layoutPath)
	}

	repo, err := remote.NewRepository(ref.Repository)
	if err != nil {
		return errors.WithMessagef(err, "While parsing repository %q", ref.Repository)
	}
	repo.PlainHTTP = self.cfg.PlainHTTP
	repo.Client = self.client

	self.logger.Debug().Stringer("image", ref).Msg("Pushing image")

	if _, err := oras.Copy(ctx, store, ref.Tag, repo, ref.Tag, oras.DefaultCopyOptions); err != nil {
		return errors.WithMessagef(err, "While pushing %s", ref)
	}

	return nil
}

// Close releases the session. It runs on every exit path of a run
// and wipes the in-memory credentials.
func (self *Session) Close() error {
	if self.closed {
		return nil
	}
	self.closed = true

	self.client.Credential = func(context.Context, string) (auth.Credential, error) {
		return auth.EmptyCredential, nil
	}
	self.client.Client.CloseIdleConnections()

	self.logger.Debug().Msg("Registry session released")
	return nil
}
