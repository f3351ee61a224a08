package sink

import (
	"context"

	"github.com/leon4s4/httpsource/internal/logger"
)

// LoggingSink logs each record at Info and never fails, useful as the
// default sink for local runs and the one cmd/ingestworker falls back to
// when no downstream sink is configured.
type LoggingSink struct {
	Logger logger.Logger
}

func NewLoggingSink(log logger.Logger) *LoggingSink {
	if log == nil {
		log = logger.NewDefaultLogger()
	}
	return &LoggingSink{Logger: log}
}

func (s *LoggingSink) Publish(ctx context.Context, records []Record) error {
	for _, r := range records {
		s.Logger.Info("record", map[string]interface{}{
			"endpoint": r.EndpointID,
			"topic":    r.Topic,
			"key":      r.Key,
			"bytes":    len(r.Value),
		})
	}
	return nil
}

// ChannelSink fans records out onto a buffered Go channel, letting a test or
// an embedding application consume them without standing up a real broker.
// Publish blocks until every record is enqueued or ctx is done.
type ChannelSink struct {
	ch chan Record
}

func NewChannelSink(buffer int) *ChannelSink {
	return &ChannelSink{ch: make(chan Record, buffer)}
}

func (s *ChannelSink) C() <-chan Record { return s.ch }

func (s *ChannelSink) Publish(ctx context.Context, records []Record) error {
	for _, r := range records {
		select {
		case s.ch <- r:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// DeadLetterLoggingSink is the default DeadLetterSink: it logs the raw body
// and reason at Warn rather than dropping it silently.
type DeadLetterLoggingSink struct {
	Logger logger.Logger
}

func NewDeadLetterLoggingSink(log logger.Logger) *DeadLetterLoggingSink {
	if log == nil {
		log = logger.NewDefaultLogger()
	}
	return &DeadLetterLoggingSink{Logger: log}
}

func (s *DeadLetterLoggingSink) PublishDeadLetter(ctx context.Context, endpointID string, reason string, raw []byte) error {
	s.Logger.Warn("dead letter", map[string]interface{}{
		"endpoint": endpointID,
		"reason":   reason,
		"bytes":    len(raw),
	})
	return nil
}
