package freighter

import (
	"context"
	"time"

	"cirello.io/oversight"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/input-output-hk/freighter/src/application"
	"github.com/input-output-hk/freighter/src/application/component"
	"github.com/input-output-hk/freighter/src/application/service"
	"github.com/input-output-hk/freighter/src/config"
	"github.com/input-output-hk/freighter/src/infrastructure/builder"
	"github.com/input-output-hk/freighter/src/infrastructure/gitops"
	"github.com/input-output-hk/freighter/src/infrastructure/notify"
	"github.com/input-output-hk/freighter/src/infrastructure/registry"
	"github.com/input-output-hk/freighter/src/infrastructure/scanner"
	"github.com/input-output-hk/freighter/src/infrastructure/scm"
)

type RunCmd struct {
	Pipeline string `arg:"--pipeline,env:FREIGHTER_PIPELINE" default:"freighter.yaml" help:"pipeline definition file"`
	BuildID  uint64 `arg:"--build-id,env:FREIGHTER_BUILD_ID,required" help:"monotonically increasing build identifier"`
	Commit   string `arg:"--commit,env:FREIGHTER_COMMIT,required" help:"commit to deliver"`
	RunURL   string `arg:"--run-url,env:FREIGHTER_RUN_URL" help:"link to this run's diagnostic output"`
}

func (cmd *RunCmd) Run(logger *zerolog.Logger) error {
	ctx := context.Background()

	instance, err := NewInstance(ctx, cmd.Pipeline, logger)
	if err != nil {
		return err
	}
	defer instance.Close()

	outcome, err := instance.Pipeline.Execute(ctx, application.Trigger{
		BuildID:   cmd.BuildID,
		CommitSHA: cmd.Commit,
		RunURL:    cmd.RunURL,
	})
	if err != nil {
		return err
	}
	if !outcome.Successful() {
		return errors.New("Delivery run failed")
	}
	return nil
}

type StartCmd struct {
	Pipeline      string        `arg:"--pipeline,env:FREIGHTER_PIPELINE" default:"freighter.yaml" help:"pipeline definition file"`
	PollInterval  time.Duration `arg:"--poll-interval,env:FREIGHTER_POLL_INTERVAL" default:"1m"`
	MetricsListen string        `arg:"--metrics-listen,env:FREIGHTER_METRICS_LISTEN" default:":8080"`
}

func (cmd *StartCmd) Run(logger *zerolog.Logger) error {
	ctx := context.Background()

	instance, err := NewInstance(ctx, cmd.Pipeline, logger)
	if err != nil {
		return err
	}
	defer instance.Close()

	poller := &component.Poller{
		Logger:   logger.With().Str("component", "Poller").Logger(),
		Source:   instance.Cfg.Source,
		Interval: cmd.PollInterval,
		Heads:    instance.Source,
		Runner:   instance.Pipeline,
		Audit:    instance.Pipeline.Audit,
	}

	metrics := &component.MetricsListener{
		Logger:   logger.With().Str("component", "MetricsListener").Logger(),
		Listen:   cmd.MetricsListen,
		Registry: instance.Registry,
	}

	supervisor := oversight.New(
		oversight.WithLogger(&config.SupervisorLogger{Logger: logger}),
		oversight.WithSpecification(
			10,                    // number of restarts
			1*time.Minute,         // within this time period
			oversight.OneForOne(), // restart every task on its own
		),
	)

	if err := supervisor.Add(poller.Start); err != nil {
		return err
	}
	if err := supervisor.Add(metrics.Start); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := supervisor.Start(ctx); err != nil {
		return errors.WithMessage(err, "While starting supervisor")
	}

	<-ctx.Done()
	return nil
}

type Instance struct {
	Pipeline *application.Pipeline
	Cfg      *config.Pipeline
	Source   *scm.SourceClient
	Registry *prometheus.Registry

	db *pgxpool.Pool
}

func NewInstance(ctx context.Context, pipelineFile string, logger *zerolog.Logger) (*Instance, error) {
	cfg, err := config.LoadPipeline(pipelineFile)
	if err != nil {
		return nil, err
	}

	db, err := config.DBConnection(ctx, config.GetenvStr("DATABASE_URL"), logger)
	if err != nil {
		return nil, err
	}

	promRegistry := prometheus.NewRegistry()
	metrics := config.NewMetrics(promRegistry)

	source := scm.NewSourceClient(cfg.Source, logger)

	var auditDb config.PgxIface
	if db != nil {
		auditDb = db
	}
	audit := service.NewAuditService(auditDb, logger)

	promoter := service.NewManifestPromotionService(logger)

	notifier, err := service.NewNotificationService(cfg.JobName, cfg.Notification, notify.NewWebhookSender(cfg.Notification, logger), logger)
	if err != nil {
		return nil, errors.WithMessage(err, "While parsing the notification template")
	}

	pipeline := &application.Pipeline{
		Logger:  logger.With().Str("component", "Pipeline").Str("job", cfg.JobName).Logger(),
		Cfg:     cfg,
		Metrics: metrics,

		Source:     source,
		GitOps:     gitOpsOpener{cfg: cfg.GitOps, logger: logger},
		Classifier: service.NewChangeClassifierService(source, logger),
		Gates: service.NewQualityGateService(
			scanner.NewExecScanner(logger),
			scanner.NewScoreGateWaiter(logger),
			logger,
		),
		Builds:    service.NewImageBuildService(builder.NewExecBuilder(cfg.Build, logger), logger),
		Publisher: service.NewRegistryPublishService(registryOpener{registry.Opener{Cfg: cfg.Registry, Logger: logger}}, logger),
		Promoter:  promoter,
		Committer: service.NewGitOpsCommitService(promoter, func() { metrics.CommitConflicts.Inc() }, logger),
		Notifier:  notifier,
		Audit:     audit,
	}

	return &Instance{
		Pipeline: pipeline,
		Cfg:      cfg,
		Source:   source,
		Registry: promRegistry,
		db:       db,
	}, nil
}

func (self *Instance) Close() {
	if self.db != nil {
		self.db.Close()
	}
}

// registryOpener adapts the concrete session type to the interface
// the publish service consumes.
type registryOpener struct {
	opener registry.Opener
}

func (self registryOpener) Open(ctx context.Context) (service.RegistrySession, error) {
	return self.opener.Open(ctx)
}

// gitOpsOpener clones the configuration repository lazily, once the
// run reaches the promotion stage.
type gitOpsOpener struct {
	cfg    config.GitOps
	logger *zerolog.Logger
}

func (self gitOpsOpener) Open(ctx context.Context) (service.ConfigRepo, error) {
	return gitops.Clone(ctx, self.cfg, self.cfg.Credentials(), self.logger)
}
