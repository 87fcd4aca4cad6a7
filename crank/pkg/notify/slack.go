// Package notify forwards crank reports to operators.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/slack-go/slack"

	"github.com/malbeclabs/govrewards-crank/crank/pkg/crank"
	"github.com/malbeclabs/govrewards-crank/utils/pkg/retry"
)

type SlackConfig struct {
	Logger     *slog.Logger
	WebhookURL string
	HTTPClient *http.Client

	// NotifyOK also posts runs that finished without degradations.
	NotifyOK bool
	Retry    retry.Config
}

func (cfg *SlackConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.WebhookURL == "" {
		return errors.New("webhook url is required")
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultConfig()
	}
	return nil
}

// Slack posts run reports to an incoming webhook.
type Slack struct {
	log *slog.Logger
	cfg SlackConfig
}

func NewSlack(cfg SlackConfig) (*Slack, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Slack{log: cfg.Logger, cfg: cfg}, nil
}

func (s *Slack) RecordReport(ctx context.Context, r crank.Report) error {
	if r.Status() == crank.StatusOK && !s.cfg.NotifyOK {
		return nil
	}
	msg := slackMessage(r)
	err := retry.Do(ctx, s.cfg.Retry, func() error {
		return slack.PostWebhookCustomHTTPContext(ctx, s.cfg.WebhookURL, s.cfg.HTTPClient, msg)
	})
	if err != nil {
		return fmt.Errorf("failed to post slack webhook: %w", err)
	}
	s.log.Debug("notify/slack: posted report", "run_id", r.RunID, "status", r.Status())
	return nil
}

func slackMessage(r crank.Report) *slack.WebhookMessage {
	color := "good"
	switch r.Status() {
	case crank.StatusDegraded:
		color = "warning"
	case crank.StatusFatal:
		color = "danger"
	}

	fields := []slack.AttachmentField{
		{Title: "Distribution", Value: r.Distribution.String()},
		{Title: "Processed", Value: fmt.Sprint(r.Processed), Short: true},
		{Title: "Succeeded", Value: fmt.Sprint(r.Succeeded), Short: true},
		{Title: "Degraded", Value: fmt.Sprint(r.Degraded), Short: true},
		{Title: "Skipped", Value: fmt.Sprint(r.Skipped), Short: true},
		{Title: "Duration", Value: r.Duration().Round(time.Millisecond).String(), Short: true},
		{Title: "Run", Value: r.RunID.String(), Short: true},
	}
	if r.Err != nil {
		fields = append(fields, slack.AttachmentField{Title: "Error", Value: "```" + r.Err.Error() + "```"})
	}

	return &slack.WebhookMessage{
		Text: fmt.Sprintf("govrewards crank %s run: *%s*", r.Workflow, r.Status()),
		Attachments: []slack.Attachment{{
			Color:  color,
			Fields: fields,
		}},
	}
}
