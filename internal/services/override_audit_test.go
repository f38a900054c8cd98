package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/bazaarhq/marketplace-api/internal/domain"
	"github.com/bazaarhq/marketplace-api/internal/platform/money"
)

func fixedClock() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func TestOverrideAuditorRecordsEverywhere(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	audits := &stubAuditRepo{}
	sink := &stubAuditSink{}
	auditor := NewOverrideAuditor(OverrideAuditorDeps{
		Logger: zap.New(core),
		Audits: audits,
		Sink:   sink,
		Clock:  fixedClock,
	})

	auditor.RecordOverrideAttempt(context.Background(), OverrideAttempt{
		OrderID:              "ord_1",
		ActorID:              "user_7",
		Operation:            domain.OperationUpdate,
		AttemptedPlatformFee: money.Explicit(999),
		Fields:               []string{"platformFeeCents"},
	})

	if logs.Len() != 1 {
		t.Fatalf("warn logs = %d, want 1", logs.Len())
	}
	if len(audits.records) != 1 {
		t.Fatalf("audit records = %d, want 1", len(audits.records))
	}
	record := audits.records[0]
	if record.AttemptedPlatformFee == nil || *record.AttemptedPlatformFee != 999 {
		t.Fatalf("attempted platform fee = %v, want 999", record.AttemptedPlatformFee)
	}
	if record.AttemptedProcessorFee != nil {
		t.Fatal("absent processor fee should stay nil")
	}
	if !record.OccurredAt.Equal(fixedClock()) {
		t.Fatalf("occurredAt = %v", record.OccurredAt)
	}
	if len(sink.published) != 1 {
		t.Fatalf("published = %d, want 1", len(sink.published))
	}
}

func TestOverrideAuditorSwallowsAppendFailure(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	audits := &stubAuditRepo{err: errors.New("store down")}
	sink := &stubAuditSink{err: errors.New("broker down")}
	auditor := NewOverrideAuditor(OverrideAuditorDeps{
		Logger: zap.New(core),
		Audits: audits,
		Sink:   sink,
		Clock:  fixedClock,
	})

	// Must not panic or surface the failures in any way.
	auditor.RecordOverrideAttempt(context.Background(), OverrideAttempt{
		OrderID:   "ord_1",
		Operation: domain.OperationUpdate,
	})

	// warning for the attempt plus one per failed sink
	if logs.Len() != 3 {
		t.Fatalf("warn logs = %d, want 3", logs.Len())
	}
}

func TestOverrideAuditorWorksWithoutSinks(t *testing.T) {
	auditor := NewOverrideAuditor(OverrideAuditorDeps{})
	auditor.RecordOverrideAttempt(context.Background(), OverrideAttempt{OrderID: "ord_1"})
}
