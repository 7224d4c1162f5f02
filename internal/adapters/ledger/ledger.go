// Package ledger publishes data-ledger hand-off events.
package ledger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/tjfontaine/bundle-gateway/internal/core/ports"
	"github.com/tjfontaine/bundle-gateway/internal/pkg/config"
)

// LogLedger writes entries as structured log lines.
type LogLedger struct {
	logger *slog.Logger
}

// NewLogLedger creates a ledger that logs through logger.
func NewLogLedger(logger *slog.Logger) *LogLedger {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogLedger{logger: logger}
}

func (l *LogLedger) Record(ctx context.Context, e ports.LedgerEntry) error {
	l.logger.InfoContext(ctx, "data ledger",
		slog.String("actor", e.Actor),
		slog.String("action", e.Action),
		slog.String("destination", e.Destination),
		slog.String("data_id", e.DataID),
		slog.String("interaction_id", e.InteractionID),
		slog.String("source_type", e.SourceType),
		slog.Time("executed_at", e.ExecutedAt),
	)
	return nil
}

// New builds the ledger named by cfg.Type. It returns a nil ledger for
// "none"; the returned closer is never nil.
func New(cfg config.LedgerConfig, logger *slog.Logger) (ports.Ledger, io.Closer, error) {
	switch strings.ToLower(cfg.Type) {
	case "none":
		return nil, nopCloser{}, nil
	case "", "log":
		return NewLogLedger(logger), nopCloser{}, nil
	case "http":
		if cfg.HTTP.URL == "" {
			return nil, nil, fmt.Errorf("ledger.http.url is required for the http ledger")
		}
		return NewHTTPLedger(cfg.HTTP.URL, config.Duration(cfg.HTTP.Timeout, DefaultHTTPTimeout), nil), nopCloser{}, nil
	case "kafka":
		l, err := NewKafkaLedger(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return nil, nil, err
		}
		return l, l, nil
	default:
		return nil, nil, fmt.Errorf("unknown ledger type: %s (supported: none, log, http, kafka)", cfg.Type)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// DefaultHTTPTimeout bounds one HTTP ledger post.
const DefaultHTTPTimeout = 10 * time.Second
