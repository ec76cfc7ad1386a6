package stats

import (
	"context"
	"log/slog"
)

// SlogSink writes stat events to the structured log. This is the default sink
// when no Kafka brokers are configured.
type SlogSink struct {
	logger *slog.Logger
}

// NewSlogSink creates a sink logging at info level under the "captcha stat" message.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	return &SlogSink{logger: logger}
}

func (s *SlogSink) Record(ctx context.Context, event Event) error {
	attrs := []any{
		"id", event.ID,
		"kind", event.Kind,
		"provider", event.Provider,
		"tag", event.Tag,
		"action", event.Action,
		"threshold", event.Threshold,
	}
	if event.Score != nil {
		attrs = append(attrs, "score", *event.Score)
	}
	if event.ResponseAction != "" {
		attrs = append(attrs, "response_action", event.ResponseAction)
	}
	if event.RuleID != "" {
		attrs = append(attrs, "rule_id", event.RuleID)
	}
	if event.Reason != "" {
		attrs = append(attrs, "reason", event.Reason)
	}
	s.logger.InfoContext(ctx, "captcha stat", attrs...)
	return nil
}

func (s *SlogSink) Close() error { return nil }
