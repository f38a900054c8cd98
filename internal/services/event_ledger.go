package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bazaarhq/marketplace-api/internal/domain"
	"github.com/bazaarhq/marketplace-api/internal/repositories"
)

// EventLedgerDeps bundles the ledger's collaborators.
type EventLedgerDeps struct {
	Events repositories.ProcessedEventRepository
	Clock  func() time.Time
	Logger Logger
}

type eventLedger struct {
	events repositories.ProcessedEventRepository
	clock  func() time.Time
	logger Logger
}

// NewEventLedger constructs the processed-event ledger.
func NewEventLedger(deps EventLedgerDeps) (EventLedger, error) {
	if deps.Events == nil {
		return nil, errors.New("event ledger requires processed event repository")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &eventLedger{events: deps.Events, clock: clock, logger: logger}, nil
}

// HasProcessed reports whether the event has already been applied. Callers
// must still tolerate two concurrent callers both seeing false; MarkProcessed
// carries the real guard.
func (l *eventLedger) HasProcessed(ctx context.Context, eventID string) (bool, error) {
	id := strings.TrimSpace(eventID)
	if id == "" {
		return false, fmt.Errorf("%w: event id is required", ErrWebhookInvalidEvent)
	}
	return l.events.Exists(ctx, id)
}

// MarkProcessed records the event behind the storage uniqueness constraint. A
// duplicate insert means a concurrent caller won the race and is success.
func (l *eventLedger) MarkProcessed(ctx context.Context, eventID string) error {
	id := strings.TrimSpace(eventID)
	if id == "" {
		return fmt.Errorf("%w: event id is required", ErrWebhookInvalidEvent)
	}

	err := l.events.Insert(ctx, domain.ProcessedEvent{
		EventID:     id,
		Source:      "stripe",
		ProcessedAt: l.clock().UTC(),
	})
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsConflict() {
		l.logger(ctx, "ledger.duplicate_event", map[string]any{"eventId": id})
		return nil
	}
	return fmt.Errorf("mark event %s processed: %w", id, err)
}
