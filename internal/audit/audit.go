// Package audit defines the fire-and-forget audit event contract. Usage
// tracking durability never depends on this channel: a failing sink is
// logged by the caller and the call proceeds.
package audit

import (
	"context"

	"go.uber.org/zap"
)

// Sink receives structured audit events.
type Sink interface {
	LogAction(ctx context.Context, actor, resource string, fields map[string]any) error
}

// ZapSink writes audit events as structured log entries.
type ZapSink struct {
	logger *zap.Logger
}

// NewZapSink returns a sink backed by the given logger.
func NewZapSink(logger *zap.Logger) *ZapSink {
	return &ZapSink{logger: logger}
}

// LogAction emits one audit entry.
func (s *ZapSink) LogAction(_ context.Context, actor, resource string, fields map[string]any) error {
	s.logger.Info("audit",
		zap.String("actor", actor),
		zap.String("resource", resource),
		zap.Any("context", fields),
	)
	return nil
}

// NopSink discards all events.
type NopSink struct{}

// LogAction discards the event.
func (NopSink) LogAction(context.Context, string, string, map[string]any) error {
	return nil
}
