// Package scm talks to the application source repository:
// fetching a working tree for a run and computing the set of
// paths changed between two revisions.
package scm

import (
	"context"
	"encoding/base64"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/storage/memory"
	getter "github.com/hashicorp/go-getter/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	pipeline "github.com/input-output-hk/freighter/src/config"
)

type SourceClient struct {
	logger zerolog.Logger
	source pipeline.Source
}

func NewSourceClient(source pipeline.Source, logger *zerolog.Logger) *SourceClient {
	return &SourceClient{
		logger: logger.With().Str("component", "SourceClient").Logger(),
		source: source,
	}
}

func cacheDir() string {
	if dir := pipeline.GetenvStr("FREIGHTER_CACHE_DIR"); dir != "" {
		return dir
	}
	return filepath.Join(xdg.CacheHome, "freighter")
}

// Fetch downloads the source tree for the given revision into a
// per-run directory under the cache and returns its path.
// Runs never share a workspace.
func (self *SourceClient) Fetch(ctx context.Context, revision, runID string) (string, error) {
	key := base64.RawURLEncoding.EncodeToString([]byte(self.source.URL + "@" + revision))

	dst, err := filepath.Abs(filepath.Join(cacheDir(), "sources", runID, key))
	if err != nil {
		return "", err
	}

	src := self.source.URL
	if revision != "" {
		src += "?ref=" + revision
	}

	self.logger.Debug().Str("src", src).Str("dst", dst).Msg("Fetching source tree")

	result, err := getter.GetAny(ctx, dst, src)
	if err != nil {
		return "", errors.WithMessagef(err, "While fetching source tree from %q", self.source.URL)
	}
	if result.Dst != dst {
		return "", errors.New("go-getter did not download to the given directory. This should never happen™")
	}

	return dst, nil
}

// ChangedPaths lists the paths that differ between two revisions of the
// fetched working tree. It errors when either revision cannot be resolved,
// which the classifier treats as a reason to proceed, not to abort.
func (self *SourceClient) ChangedPaths(ctx context.Context, dir, fromSHA, toSHA string) ([]string, error) {
	if fromSHA == "" {
		return nil, errors.New("No prior revision to diff against")
	}

	repo, err := git.PlainOpen(dir)
	if err != nil {
		return nil, errors.WithMessagef(err, "While opening source checkout %q", dir)
	}

	fromTree, err := commitTree(repo, fromSHA)
	if err != nil {
		return nil, err
	}
	toTree, err := commitTree(repo, toSHA)
	if err != nil {
		return nil, err
	}

	changes, err := object.DiffTreeWithOptions(ctx, fromTree, toTree, object.DefaultDiffTreeOptions)
	if err != nil {
		return nil, errors.WithMessagef(err, "While diffing %s..%s", fromSHA, toSHA)
	}

	seen := map[string]bool{}
	paths := []string{}
	for _, change := range changes {
		for _, name := range []string{change.From.Name, change.To.Name} {
			if name == "" || seen[name] {
				continue
			}
			seen[name] = true
			paths = append(paths, name)
		}
	}

	return paths, nil
}

func commitTree(repo *git.Repository, sha string) (*object.Tree, error) {
	commit, err := repo.CommitObject(plumbing.NewHash(sha))
	if err != nil {
		return nil, errors.WithMessagef(err, "While resolving revision %q", sha)
	}

	tree, err := commit.Tree()
	if err != nil {
		return nil, errors.WithMessagef(err, "While reading tree of %q", sha)
	}

	return tree, nil
}

// Head resolves the current tip of the configured branch on the remote
// without a checkout. The poll trigger uses this to detect new commits.
func (self *SourceClient) Head(ctx context.Context, credentials pipeline.Credentials) (string, error) {
	remote := git.NewRemote(memory.NewStorage(), &config.RemoteConfig{
		Name: "origin",
		URLs: []string{self.source.URL},
	})

	listOptions := &git.ListOptions{}
	if credentials.Username != "" {
		listOptions.Auth = &http.BasicAuth{Username: credentials.Username, Password: credentials.Token}
	}

	refs, err := remote.ListContext(ctx, listOptions)
	if err != nil {
		return "", errors.WithMessagef(err, "While listing refs of %q", self.source.URL)
	}

	want := plumbing.NewBranchReferenceName(self.source.Branch)
	for _, ref := range refs {
		if ref.Name() == want {
			return ref.Hash().String(), nil
		}
	}

	return "", errors.Errorf("Branch %q not found on %q", self.source.Branch, self.source.URL)
}
