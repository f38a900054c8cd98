package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/bazaarhq/marketplace-api/internal/domain"
	"github.com/bazaarhq/marketplace-api/internal/repositories"
)

// OverrideAuditorDeps bundles the auditor's collaborators. Every dependency
// except the logger is optional; the warning log is the one guaranteed trace.
type OverrideAuditorDeps struct {
	Logger *zap.Logger
	Audits repositories.AuditRepository
	Sink   AuditSink
	Clock  func() time.Time
}

type overrideAuditor struct {
	logger *zap.Logger
	audits repositories.AuditRepository
	sink   AuditSink
	clock  func() time.Time
}

// NewOverrideAuditor constructs the fee-override audit logger.
func NewOverrideAuditor(deps OverrideAuditorDeps) OverrideAuditor {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &overrideAuditor{
		logger: logger,
		audits: deps.Audits,
		sink:   deps.Sink,
		clock:  clock,
	}
}

// RecordOverrideAttempt emits the operational warning, appends the audit
// record, and publishes it to the outbound sink. Append and publish failures
// are swallowed: an audit-trail gap must never block or fail the order write
// it is auditing.
func (a *overrideAuditor) RecordOverrideAttempt(ctx context.Context, attempt OverrideAttempt) {
	fields := []zap.Field{
		zap.String("orderId", attempt.OrderID),
		zap.String("actorId", attempt.ActorID),
		zap.String("operation", string(attempt.Operation)),
		zap.Bool("isSystemTrusted", attempt.SystemTrusted),
		zap.Strings("fields", attempt.Fields),
	}
	if v, ok := attempt.AttemptedPlatformFee.Get(); ok {
		fields = append(fields, zap.Int64("attemptedPlatformFeeCents", v))
	}
	if v, ok := attempt.AttemptedProcessorFee.Get(); ok {
		fields = append(fields, zap.Int64("attemptedStripeFeeCents", v))
	}
	a.logger.Warn("fee override attempt discarded", fields...)

	record := domain.AuditRecord{
		OrderID:               attempt.OrderID,
		ActorID:               attempt.ActorID,
		Operation:             attempt.Operation,
		SystemTrusted:         attempt.SystemTrusted,
		AttemptedPlatformFee:  attempt.AttemptedPlatformFee.Pointer(),
		AttemptedProcessorFee: attempt.AttemptedProcessorFee.Pointer(),
		Fields:                attempt.Fields,
		OccurredAt:            a.clock().UTC(),
	}

	if a.audits != nil {
		if err := a.audits.Append(ctx, record); err != nil {
			a.logger.Warn("audit record append failed",
				zap.String("orderId", attempt.OrderID),
				zap.Error(err),
			)
		}
	}
	if a.sink != nil {
		if err := a.sink.PublishAuditEvent(ctx, record); err != nil {
			a.logger.Warn("audit event publish failed",
				zap.String("orderId", attempt.OrderID),
				zap.Error(err),
			)
		}
	}
}
