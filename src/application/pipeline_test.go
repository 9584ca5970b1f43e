package application

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/input-output-hk/freighter/src/application/service"
	"github.com/input-output-hk/freighter/src/config"
	"github.com/input-output-hk/freighter/src/domain"
)

type fakeFetcher struct {
	workspace string
	err       error
}

func (self fakeFetcher) Fetch(ctx context.Context, revision, runID string) (string, error) {
	return self.workspace, self.err
}

type fakeClassifier struct {
	decision domain.Decision
}

func (self fakeClassifier) Decide(context.Context, string, string, string, []string) domain.Decision {
	return self.decision
}

type fakeGates struct {
	report domain.GateReport
}

func (self fakeGates) Run(context.Context, string, []config.Gate) domain.GateReport {
	return self.report
}

type fakeBuilds struct {
	builds []service.ComponentBuild
	err    error
	calls  int
}

func (self *fakeBuilds) BuildAll(ctx context.Context, workspace string, components []config.Component, buildID uint64) ([]service.ComponentBuild, error) {
	self.calls++
	if self.err != nil {
		return nil, self.err
	}
	builds := make([]service.ComponentBuild, 0, len(components))
	for _, component := range components {
		domainComponent := domain.Component{Name: component.Name, SourcePath: component.SourcePath, ImageRepository: component.ImageRepository}
		builds = append(builds, service.ComponentBuild{
			Component: domainComponent,
			Ref:       domain.NewImageReference(domainComponent, buildID),
			Layout:    "/work/images/" + component.Name,
		})
	}
	return builds, nil
}

type fakePublisher struct {
	err   error
	calls int
}

func (self *fakePublisher) Publish(context.Context, []service.ComponentBuild) error {
	self.calls++
	return self.err
}

type fakeNotifier struct {
	outcomes []domain.RunOutcome
}

func (self *fakeNotifier) Notify(ctx context.Context, outcome domain.RunOutcome, buildID uint64, runURL string) {
	self.outcomes = append(self.outcomes, outcome)
}

// memConfigRepo is an in-memory stand-in for the configuration
// repository checkout. remote holds the state a reset reverts to.
type memConfigRepo struct {
	files    map[string][]byte
	remote   map[string][]byte
	dirty    bool
	commits  []string
	pushErrs []error
	pushes   int
	resets   int
}

func newMemConfigRepo(files map[string][]byte) *memConfigRepo {
	remote := make(map[string][]byte, len(files))
	for path, content := range files {
		remote[path] = content
	}
	return &memConfigRepo{files: files, remote: remote}
}

func (self *memConfigRepo) ReadFile(path string) ([]byte, error) {
	content, ok := self.files[path]
	if !ok {
		return nil, errors.Errorf("file does not exist: %q", path)
	}
	return content, nil
}

func (self *memConfigRepo) WriteFile(path string, content []byte) error {
	if string(self.files[path]) != string(content) {
		self.dirty = true
	}
	self.files[path] = content
	return nil
}

func (self *memConfigRepo) Add(...string) error { return nil }

func (self *memConfigRepo) IsClean() (bool, error) { return !self.dirty, nil }

func (self *memConfigRepo) Commit(message string) error {
	self.commits = append(self.commits, message)
	self.dirty = false
	return nil
}

func (self *memConfigRepo) Push(ctx context.Context) error {
	if self.pushes >= len(self.pushErrs) {
		self.pushes++
		return nil
	}
	err := self.pushErrs[self.pushes]
	self.pushes++
	return err
}

func (self *memConfigRepo) ResetToRemote(context.Context) error {
	self.resets++
	self.files = make(map[string][]byte, len(self.remote))
	for path, content := range self.remote {
		self.files[path] = content
	}
	self.dirty = false
	return nil
}

type fakeRepoOpener struct {
	repo *memConfigRepo
	err  error
}

func (self fakeRepoOpener) Open(context.Context) (service.ConfigRepo, error) {
	if self.err != nil {
		return nil, self.err
	}
	return self.repo, nil
}

func deployManifest(image string) []byte {
	return []byte("spec:\n  template:\n    spec:\n      containers:\n        - name: app\n          image: " + image + "\n")
}

type pipelineFixture struct {
	pipeline  *Pipeline
	repo      *memConfigRepo
	builds    *fakeBuilds
	publisher *fakePublisher
	notifier  *fakeNotifier
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()
	logger := zerolog.Nop()

	cfg := &config.Pipeline{
		JobName: "acme-deploy",
		Source: config.Source{
			URL:        "https://github.com/acme/app",
			Branch:     "main",
			Exclusions: []string{"deployments/"},
		},
		Components: []config.Component{
			{Name: "frontend", SourcePath: "frontend", ImageRepository: "registry.example.com/acme/frontend"},
		},
		GitOps: config.GitOps{ManifestDir: "deployments"},
	}

	repo := newMemConfigRepo(map[string][]byte{
		"deployments/frontend-canary.yaml": deployManifest("registry.example.com/acme/frontend:41"),
		"deployments/frontend-stable.yaml": deployManifest("registry.example.com/acme/frontend:40"),
	})

	builds := &fakeBuilds{}
	publisher := &fakePublisher{}
	notifier := &fakeNotifier{}
	promoter := service.NewManifestPromotionService(&logger)

	fixture := &pipelineFixture{
		pipeline: &Pipeline{
			Logger:  logger,
			Cfg:     cfg,
			Metrics: config.NewMetrics(prometheus.NewRegistry()),

			Source:     fakeFetcher{workspace: "/work"},
			GitOps:     fakeRepoOpener{repo: repo},
			Classifier: fakeClassifier{decision: domain.DecisionProceed},
			Gates:      fakeGates{},
			Builds:     builds,
			Publisher:  publisher,
			Promoter:   promoter,
			Committer:  service.NewGitOpsCommitService(promoter, nil, &logger),
			Notifier:   notifier,
			Audit:      service.NewAuditService(nil, &logger),
		},
		repo:      repo,
		builds:    builds,
		publisher: publisher,
		notifier:  notifier,
	}
	return fixture
}

func TestPipelineHappyPath(t *testing.T) {
	t.Parallel()

	// given
	fixture := newPipelineFixture(t)

	// when
	outcome, err := fixture.pipeline.Execute(context.Background(), Trigger{BuildID: 42, CommitSHA: "abc123"})

	// then
	assert.NoError(t, err)
	assert.Equal(t, domain.RunOutcomeSuccess, outcome)
	assert.True(t, outcome.Successful())

	// the previous canary became stable, the new build became canary
	stable, err := service.ParseImageLine(fixture.repo.files["deployments/frontend-stable.yaml"])
	assert.NoError(t, err)
	assert.Equal(t, "registry.example.com/acme/frontend:41", stable.String())
	canary, err := service.ParseImageLine(fixture.repo.files["deployments/frontend-canary.yaml"])
	assert.NoError(t, err)
	assert.Equal(t, "registry.example.com/acme/frontend:42", canary.String())

	assert.Equal(t, []string{"Promote build 42"}, fixture.repo.commits)
	assert.Equal(t, 1, fixture.publisher.calls)
	assert.Equal(t, []domain.RunOutcome{domain.RunOutcomeSuccess}, fixture.notifier.outcomes)
}

func TestPipelineSkipsWhenOnlyExcludedPathsChanged(t *testing.T) {
	t.Parallel()

	// given
	fixture := newPipelineFixture(t)
	fixture.pipeline.Classifier = fakeClassifier{decision: domain.DecisionSkip}

	// when
	outcome, err := fixture.pipeline.Execute(context.Background(), Trigger{BuildID: 43, CommitSHA: "def456"})

	// then
	assert.NoError(t, err)
	assert.Equal(t, domain.RunOutcomeSkipped, outcome)
	assert.True(t, outcome.Successful())

	// nothing downstream of classification ran
	assert.Zero(t, fixture.builds.calls)
	assert.Zero(t, fixture.publisher.calls)
	assert.Empty(t, fixture.repo.commits)

	// a skipped run is reported as a success
	assert.Equal(t, []domain.RunOutcome{domain.RunOutcomeSuccess}, fixture.notifier.outcomes)
}

func TestPipelineStopsOnHardGateFailure(t *testing.T) {
	t.Parallel()

	// given
	fixture := newPipelineFixture(t)
	fixture.pipeline.Gates = fakeGates{report: domain.GateReport{
		{GateName: "secrets", Status: domain.GateStatusFail, Hard: true},
		{GateName: "lint", Status: domain.GateStatusFail, Hard: false},
	}}

	// when
	outcome, err := fixture.pipeline.Execute(context.Background(), Trigger{BuildID: 44, CommitSHA: "abc789"})

	// then
	assert.Equal(t, domain.RunOutcomeFailure, outcome)
	var failure domain.GateFailure
	if assert.ErrorAs(t, err, &failure) {
		assert.Equal(t, "secrets", failure.Gate)
	}

	// no image was built, published or promoted
	assert.Zero(t, fixture.builds.calls)
	assert.Zero(t, fixture.publisher.calls)
	assert.Empty(t, fixture.repo.commits)

	// the failure was still notified, exactly once
	assert.Equal(t, []domain.RunOutcome{domain.RunOutcomeFailure}, fixture.notifier.outcomes)
}

func TestPipelineToleratesSoftGateFailures(t *testing.T) {
	t.Parallel()

	// given
	fixture := newPipelineFixture(t)
	fixture.pipeline.Gates = fakeGates{report: domain.GateReport{
		{GateName: "lint", Status: domain.GateStatusFail, Hard: false},
	}}

	// when
	outcome, err := fixture.pipeline.Execute(context.Background(), Trigger{BuildID: 45, CommitSHA: "abcabc"})

	// then
	assert.NoError(t, err)
	assert.Equal(t, domain.RunOutcomeSuccess, outcome)
	assert.Equal(t, 1, fixture.builds.calls)
}

func TestPipelineFailsWhenTheBuildFails(t *testing.T) {
	t.Parallel()

	// given
	fixture := newPipelineFixture(t)
	fixture.builds.err = domain.BuildFailure{Component: "frontend", Err: errors.New("exit status 1")}

	// when
	outcome, err := fixture.pipeline.Execute(context.Background(), Trigger{BuildID: 46, CommitSHA: "abcdef"})

	// then
	assert.Equal(t, domain.RunOutcomeFailure, outcome)
	var failure domain.BuildFailure
	assert.ErrorAs(t, err, &failure)

	// nothing was published or promoted
	assert.Zero(t, fixture.publisher.calls)
	assert.Empty(t, fixture.repo.commits)
	assert.Equal(t, []domain.RunOutcome{domain.RunOutcomeFailure}, fixture.notifier.outcomes)
}

func TestPipelineFailsAfterExhaustedPushConflicts(t *testing.T) {
	t.Parallel()

	// given
	fixture := newPipelineFixture(t)
	fixture.repo.pushErrs = []error{domain.ErrCommitConflict, domain.ErrCommitConflict, domain.ErrCommitConflict}

	// when
	outcome, err := fixture.pipeline.Execute(context.Background(), Trigger{BuildID: 47, CommitSHA: "fedcba"})

	// then
	assert.Equal(t, domain.RunOutcomeFailure, outcome)
	var failure domain.CommitFailure
	if assert.ErrorAs(t, err, &failure) {
		assert.Equal(t, service.MaxPushAttempts, failure.Attempts)
	}
	assert.Equal(t, []domain.RunOutcome{domain.RunOutcomeFailure}, fixture.notifier.outcomes)
}

func TestPipelineRecoversFromASinglePushConflict(t *testing.T) {
	t.Parallel()

	// given
	fixture := newPipelineFixture(t)
	fixture.repo.pushErrs = []error{domain.ErrCommitConflict}

	// when
	outcome, err := fixture.pipeline.Execute(context.Background(), Trigger{BuildID: 48, CommitSHA: "cafeba"})

	// then
	assert.NoError(t, err)
	assert.Equal(t, domain.RunOutcomeSuccess, outcome)
	assert.Equal(t, 1, fixture.repo.resets)
	assert.Equal(t, 2, fixture.repo.pushes)
}
