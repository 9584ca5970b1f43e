// Package notify delivers the terminal outcome of a run to the
// configured notification channel over HTTP.
package notify

import (
	"bytes"
	"context"
	"net/http"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	pipeline "github.com/input-output-hk/freighter/src/config"
)

type WebhookSender struct {
	logger zerolog.Logger
	cfg    pipeline.Notification
	client *http.Client
}

func NewWebhookSender(cfg pipeline.Notification, logger *zerolog.Logger) *WebhookSender {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 2
	retryClient.Logger = nil

	return &WebhookSender{
		logger: logger.With().Str("component", "WebhookSender").Logger(),
		cfg:    cfg,
		client: retryClient.StandardClient(),
	}
}

func (self *WebhookSender) Send(ctx context.Context, body []byte) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, self.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return errors.WithMessage(err, "While building the notification request")
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := self.client.Do(request)
	if err != nil {
		return errors.WithMessage(err, "While sending the notification")
	}
	defer response.Body.Close()

	if response.StatusCode >= 300 {
		return errors.Errorf("Notification endpoint answered %s", response.Status)
	}

	return nil
}
