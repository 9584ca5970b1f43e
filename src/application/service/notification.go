package service

import (
	"bytes"
	"context"
	"text/template"

	"github.com/rs/zerolog"

	"github.com/input-output-hk/freighter/src/config"
	"github.com/input-output-hk/freighter/src/domain"
)

// NotifySender delivers one rendered notification.
type NotifySender interface {
	Send(ctx context.Context, body []byte) error
}

type NotificationService interface {
	// Notify reports the terminal outcome of a run. It is fire and
	// forget: any failure is logged and swallowed, it can never change
	// the outcome of the run itself.
	Notify(ctx context.Context, outcome domain.RunOutcome, buildID uint64, runURL string)
}

const defaultNotificationTemplate = `{"job_name":"{{.JobName}}","build_id":{{.BuildID}},"status":"{{.Status}}","run_url":"{{.RunURL}}","recipient":"{{.Recipient}}"}`

type notificationService struct {
	logger   zerolog.Logger
	sender   NotifySender
	jobName  string
	cfg      config.Notification
	template *template.Template
}

func NewNotificationService(jobName string, cfg config.Notification, sender NotifySender, logger *zerolog.Logger) (NotificationService, error) {
	text := cfg.Template
	if text == "" {
		text = defaultNotificationTemplate
	}

	tmpl, err := template.New("notification").Parse(text)
	if err != nil {
		return nil, err
	}

	return &notificationService{
		logger:   logger.With().Str("component", "NotificationService").Logger(),
		sender:   sender,
		jobName:  jobName,
		cfg:      cfg,
		template: tmpl,
	}, nil
}

func (self *notificationService) Notify(ctx context.Context, outcome domain.RunOutcome, buildID uint64, runURL string) {
	status, err := outcome.String()
	if err != nil {
		self.logger.Error().Err(err).Msg("Could not render notification")
		return
	}

	body := bytes.Buffer{}
	err = self.template.Execute(&body, struct {
		JobName   string
		BuildID   uint64
		Status    string
		RunURL    string
		Recipient string
	}{self.jobName, buildID, status, runURL, self.cfg.Recipient})
	if err != nil {
		self.logger.Error().Err(err).Msg("Could not render notification")
		return
	}

	if err := self.sender.Send(ctx, body.Bytes()); err != nil {
		self.logger.Error().Err(err).Uint64("build", buildID).Msg("Could not deliver notification")
		return
	}

	self.logger.Info().Uint64("build", buildID).Str("status", status).Msg("Notified")
}
