package workers

import (
	"context"
	"errors"
	"log/slog"
	"time"

	application "key2key/contexts/marketplace/listing-settlement/application"
	"key2key/contexts/marketplace/listing-settlement/application/commands"
	domainerrors "key2key/contexts/marketplace/listing-settlement/domain/errors"
	"key2key/contexts/marketplace/listing-settlement/ports"
)

// AssignmentSLASweeper reassigns leads whose broker did not acknowledge them
// within the SLA.
type AssignmentSLASweeper struct {
	Assignments ports.AssignmentRepository
	Machine     commands.ListingStateMachine
	Lock        ports.SweepLock
	Clock       ports.Clock
	SLA         time.Duration
	BatchSize   int
	LockTTL     time.Duration
	Metrics     *application.SettlementMetrics
	Logger      *slog.Logger
}

func (s AssignmentSLASweeper) RunOnce(ctx context.Context) error {
	if s.SLA <= 0 {
		return errors.New("assignment sla timeout is not configured")
	}
	return runExclusive(ctx, s.Lock, "settlement:assignment-sla", s.LockTTL, s.Logger, s.sweep)
}

func (s AssignmentSLASweeper) sweep(ctx context.Context) error {
	logger := application.ResolveLogger(s.Logger)
	limit := s.BatchSize
	if limit <= 0 {
		limit = 100
	}
	now := application.Now(s.Clock)

	stale, err := s.Assignments.ListStaleAssignments(ctx, now.Add(-s.SLA), limit)
	if err != nil {
		logger.Error("assignment sla scan failed",
			"event", "settlement_assignment_sla_scan_failed",
			"module", "marketplace/listing-settlement",
			"layer", "worker",
			"error", err.Error(),
		)
		return err
	}

	reassigned, unassignable := 0, 0
	for _, assignment := range stale {
		if !assignment.SLAExpired(now, s.SLA) {
			continue
		}
		_, err := s.Machine.ReassignBroker(ctx, assignment.ListingID, commands.AssignmentSLAReason)
		switch {
		case err == nil:
			reassigned++
		case errors.Is(err, domainerrors.ErrNoEligibleBroker):
			unassignable++
			logger.Warn("no broker available for reassignment",
				"event", "settlement_assignment_sla_no_broker",
				"module", "marketplace/listing-settlement",
				"layer", "worker",
				"listing_id", assignment.ListingID,
				"assignment_id", assignment.AssignmentID,
			)
		default:
			logger.Warn("assignment reassignment skipped",
				"event", "settlement_assignment_sla_skipped",
				"module", "marketplace/listing-settlement",
				"layer", "worker",
				"listing_id", assignment.ListingID,
				"error", err.Error(),
			)
		}
	}
	s.Metrics.RecordSweep(ctx, "assignment_sla", "reassigned", reassigned)
	s.Metrics.RecordSweep(ctx, "assignment_sla", "no_broker", unassignable)
	if reassigned > 0 || unassignable > 0 {
		logger.Info("assignment sla sweep completed",
			"event", "settlement_assignment_sla_completed",
			"module", "marketplace/listing-settlement",
			"layer", "worker",
			"reassigned_count", reassigned,
			"no_broker_count", unassignable,
		)
	}
	return nil
}
