// Package gitops owns the checkout of the configuration repository
// that the external reconciler watches. The checkout lives entirely
// in memory; nothing is written to the build host's disk.
package gitops

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	billyutil "github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	pipeline "github.com/input-output-hk/freighter/src/config"
	"github.com/input-output-hk/freighter/src/domain"
)

const remoteName = "origin"

type Repo struct {
	logger   zerolog.Logger
	cfg      pipeline.GitOps
	auth     transport.AuthMethod
	repo     *git.Repository
	worktree *git.Worktree
	fs       billy.Filesystem
}

// Clone checks out the configuration repository's push branch.
// Credentials are held for the lifetime of the Repo value only.
func Clone(ctx context.Context, cfg pipeline.GitOps, credentials pipeline.Credentials, logger *zerolog.Logger) (*Repo, error) {
	self := &Repo{
		logger: logger.With().Str("component", "GitOpsRepo").Logger(),
		cfg:    cfg,
		fs:     memfs.New(),
	}

	if credentials.Username != "" {
		self.auth = &githttp.BasicAuth{Username: credentials.Username, Password: credentials.Token}
	}

	repo, err := git.CloneContext(ctx, memory.NewStorage(), self.fs, &git.CloneOptions{
		URL:           cfg.URL,
		ReferenceName: plumbing.NewBranchReferenceName(cfg.Branch),
		SingleBranch:  true,
		Auth:          self.auth,
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "While cloning %q", cfg.URL)
	}
	self.repo = repo

	worktree, err := repo.Worktree()
	if err != nil {
		return nil, errors.WithMessage(err, "While getting the worktree")
	}
	self.worktree = worktree

	return self, nil
}

func (self *Repo) ReadFile(path string) ([]byte, error) {
	file, err := self.fs.Open(path)
	if err != nil {
		return nil, errors.WithMessagef(err, "While opening %q", path)
	}
	defer file.Close()

	return io.ReadAll(file)
}

func (self *Repo) WriteFile(path string, content []byte) error {
	return billyutil.WriteFile(self.fs, path, content, 0o644)
}

func (self *Repo) Add(paths ...string) error {
	for _, path := range paths {
		if _, err := self.worktree.Add(path); err != nil {
			return errors.WithMessagef(err, "While staging %q", path)
		}
	}
	return nil
}

// IsClean reports whether the worktree holds no changes to commit.
func (self *Repo) IsClean() (bool, error) {
	status, err := self.worktree.Status()
	if err != nil {
		return false, errors.WithMessage(err, "While reading the worktree status")
	}
	return status.IsClean(), nil
}

func (self *Repo) Commit(message string) error {
	_, err := self.worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  self.cfg.AuthorName,
			Email: self.cfg.AuthorEmail,
			When:  time.Now().UTC(),
		},
	})
	return errors.WithMessage(err, "While committing")
}

// Push sends the branch to the remote. A rejection caused by a
// concurrent update maps to domain.ErrCommitConflict; anything
// else is returned as-is and treated as fatal by the caller.
func (self *Repo) Push(ctx context.Context) error {
	err := self.repo.PushContext(ctx, &git.PushOptions{
		RemoteName: remoteName,
		Auth:       self.auth,
	})
	switch {
	case err == nil, errors.Is(err, git.NoErrAlreadyUpToDate):
		return nil
	case errors.Is(err, git.ErrNonFastForwardUpdate), isNonFastForward(err):
		return domain.ErrCommitConflict
	default:
		return errors.WithMessagef(err, "While pushing to %q", self.cfg.URL)
	}
}

func isNonFastForward(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "non-fast-forward") || strings.Contains(msg, "fetch first")
}

// ResetToRemote discards the local branch state and makes the worktree
// match the remote tip again, so promotion deltas can be re-applied
// after a push conflict.
func (self *Repo) ResetToRemote(ctx context.Context) error {
	err := self.repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: remoteName,
		Auth:       self.auth,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return errors.WithMessage(err, "While fetching the remote state")
	}

	ref, err := self.repo.Reference(plumbing.NewRemoteReferenceName(remoteName, self.cfg.Branch), true)
	if err != nil {
		return errors.WithMessagef(err, "While resolving the remote tip of %q", self.cfg.Branch)
	}

	if err := self.worktree.Reset(&git.ResetOptions{
		Mode:   git.HardReset,
		Commit: ref.Hash(),
	}); err != nil {
		return errors.WithMessage(err, "While resetting to the remote tip")
	}

	return nil
}
