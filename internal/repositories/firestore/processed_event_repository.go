package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	pfirestore "github.com/bazaarhq/marketplace-api/internal/platform/firestore"

	"github.com/bazaarhq/marketplace-api/internal/domain"
)

const processedEventsCollection = "processed_events"

// ProcessedEventRepository stores applied webhook event records keyed by the
// upstream event ID. Document IDs double as the uniqueness constraint: a
// concurrent duplicate insert fails with AlreadyExists, which WrapError maps
// to a conflict for the ledger to treat as success.
type ProcessedEventRepository struct {
	events *pfirestore.BaseRepository[domain.ProcessedEvent]
}

// NewProcessedEventRepository constructs a Firestore-backed processed event repository.
func NewProcessedEventRepository(provider *pfirestore.Provider) (*ProcessedEventRepository, error) {
	if provider == nil {
		return nil, errors.New("processed event repository requires firestore provider")
	}
	return &ProcessedEventRepository{
		events: pfirestore.NewBaseRepository[domain.ProcessedEvent](provider, processedEventsCollection, nil),
	}, nil
}

// Exists reports whether the event has already been applied.
func (r *ProcessedEventRepository) Exists(ctx context.Context, eventID string) (bool, error) {
	return r.events.Exists(ctx, strings.TrimSpace(eventID))
}

// Insert records the event, failing with a conflict when already present.
func (r *ProcessedEventRepository) Insert(ctx context.Context, record domain.ProcessedEvent) error {
	id := strings.TrimSpace(record.EventID)
	if id == "" {
		return errors.New("processed event: event id is required")
	}
	if record.ProcessedAt.IsZero() {
		record.ProcessedAt = time.Now().UTC()
	}
	_, err := r.events.Create(ctx, id, record)
	return err
}
