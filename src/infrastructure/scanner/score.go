package scanner

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"

	pipeline "github.com/input-output-hk/freighter/src/config"
	"github.com/input-output-hk/freighter/src/domain"
)

const scorePollInterval = 5 * time.Second

// ScoreGateWaiter polls the static-analysis server for the computed
// quality gate status of an analysis task. The wait is bounded by the
// gate's timeout; hitting the bound counts as a failing result.
type ScoreGateWaiter struct {
	logger zerolog.Logger
	client *http.Client
}

func NewScoreGateWaiter(logger *zerolog.Logger) *ScoreGateWaiter {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.Logger = nil

	return &ScoreGateWaiter{
		logger: logger.With().Str("component", "ScoreGateWaiter").Logger(),
		client: retryClient.StandardClient(),
	}
}

type taskStatus struct {
	Status string `json:"status"`
}

func (self *ScoreGateWaiter) Wait(ctx context.Context, gate pipeline.Gate) (domain.GateStatus, string) {
	ctx, cancel := context.WithTimeout(ctx, gate.Timeout)
	defer cancel()

	ticker := time.NewTicker(scorePollInterval)
	defer ticker.Stop()

	for {
		status, done, err := self.poll(ctx, gate.TaskURL)
		switch {
		case err != nil && ctx.Err() != nil:
			return domain.GateStatusFail, "Quality gate was not computed within " + gate.Timeout.String()
		case err != nil:
			return domain.GateStatusError, err.Error()
		case done:
			if status == "OK" {
				return domain.GateStatusPass, "Quality gate passed"
			}
			return domain.GateStatusFail, "Quality gate status " + status
		}

		select {
		case <-ctx.Done():
			return domain.GateStatusFail, "Quality gate was not computed within " + gate.Timeout.String()
		case <-ticker.C:
		}
	}
}

func (self *ScoreGateWaiter) poll(ctx context.Context, taskURL string) (status string, done bool, err error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, taskURL, nil)
	if err != nil {
		return
	}

	response, err := self.client.Do(request)
	if err != nil {
		return
	}
	defer response.Body.Close()

	task := taskStatus{}
	if err = json.NewDecoder(response.Body).Decode(&task); err != nil {
		return
	}

	self.logger.Trace().Str("status", task.Status).Msg("Polled quality gate task")

	switch task.Status {
	case "PENDING", "IN_PROGRESS":
		return task.Status, false, nil
	default:
		return task.Status, true, nil
	}
}
