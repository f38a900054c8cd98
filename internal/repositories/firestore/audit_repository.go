package firestore

import (
	"context"
	"crypto/rand"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	pfirestore "github.com/bazaarhq/marketplace-api/internal/platform/firestore"

	"github.com/bazaarhq/marketplace-api/internal/domain"
)

const auditRecordsCollection = "audit_records"

// AuditRepository appends fee-override audit records. The collection is
// append-only; records are never updated or removed by the API.
type AuditRepository struct {
	records *pfirestore.BaseRepository[domain.AuditRecord]
	clock   func() time.Time
	newID   func() string
}

// NewAuditRepository constructs a Firestore-backed audit repository.
func NewAuditRepository(provider *pfirestore.Provider) (*AuditRepository, error) {
	if provider == nil {
		return nil, errors.New("audit repository requires firestore provider")
	}
	return &AuditRepository{
		records: pfirestore.NewBaseRepository[domain.AuditRecord](provider, auditRecordsCollection, nil),
		clock:   func() time.Time { return time.Now().UTC() },
		newID:   newAuditRecordID,
	}, nil
}

// Append stores a new audit record under a freshly minted ID.
func (r *AuditRepository) Append(ctx context.Context, record domain.AuditRecord) error {
	if strings.TrimSpace(record.OrderID) == "" {
		return errors.New("audit record: order id is required")
	}
	if record.OccurredAt.IsZero() {
		record.OccurredAt = r.clock()
	}
	_, err := r.records.Create(ctx, r.newID(), record)
	return err
}

func newAuditRecordID() string {
	return "aud_" + ulid.MustNew(ulid.Timestamp(time.Now().UTC()), ulid.Monotonic(rand.Reader, 0)).String()
}
