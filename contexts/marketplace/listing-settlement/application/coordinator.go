package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"key2key/contexts/marketplace/listing-settlement/domain/entities"
	domainerrors "key2key/contexts/marketplace/listing-settlement/domain/errors"
	"key2key/contexts/marketplace/listing-settlement/domain/services"
	"key2key/contexts/marketplace/listing-settlement/ports"
)

const assignmentEventChanged = "settlement.assignment.status_changed"

// Coordinator owns lead assignments. Every method that takes a listing must
// run inside the caller's transaction.
type Coordinator struct {
	Tx          ports.TxRunner
	Assignments ports.AssignmentRepository
	Eligibility ports.EligibilityProvider
	Policy      services.AssignmentPolicy
	Audit       AuditWriter
	Outbox      ports.OutboxWriter
	IDGenerator ports.IDGenerator
	Clock       ports.Clock
	Logger      *slog.Logger
}

// Assign picks a broker for the listing through the configured policy and
// creates the active assignment.
func (c Coordinator) Assign(ctx context.Context, listing entities.Listing, actorID string) (entities.LeadAssignment, error) {
	if _, found, err := c.Assignments.GetActiveAssignment(ctx, listing.ListingID); err != nil {
		return entities.LeadAssignment{}, err
	} else if found {
		return entities.LeadAssignment{}, domainerrors.ErrActiveAssignmentExists
	}
	return c.assign(ctx, listing, actorID, nil)
}

// Release marks an active assignment released. Releasing a released
// assignment is a no-op.
func (c Coordinator) Release(
	ctx context.Context,
	assignment entities.LeadAssignment,
	actorID string,
	reason string,
) (entities.LeadAssignment, error) {
	switch assignment.Status {
	case entities.AssignmentStatusReleased:
		return assignment, nil
	case entities.AssignmentStatusActive:
	default:
		return entities.LeadAssignment{}, fmt.Errorf("%w: release from %s", domainerrors.ErrAssignmentTransition, assignment.Status)
	}
	if strings.TrimSpace(reason) == "" {
		return entities.LeadAssignment{}, domainerrors.ErrReasonRequired
	}

	now := Now(c.Clock)
	next := assignment
	next.Status = entities.AssignmentStatusReleased
	next.ReleasedAt = &now
	next.ReleaseReason = reason
	next.UpdatedAt = now
	if err := c.persist(ctx, assignment, next, entities.ActionAssignmentReleased, actorID, reason); err != nil {
		return entities.LeadAssignment{}, err
	}
	return next, nil
}

// ReleaseActive releases the listing's active assignment when there is one.
func (c Coordinator) ReleaseActive(ctx context.Context, listingID string, actorID string, reason string) (bool, error) {
	active, found, err := c.Assignments.GetActiveAssignment(ctx, listingID)
	if err != nil || !found {
		return false, err
	}
	if _, err := c.Release(ctx, active, actorID, reason); err != nil {
		return false, err
	}
	return true, nil
}

// Reassign releases the active assignment and assigns another broker,
// avoiding the previous one unless nobody else is eligible. When no broker
// can take the lead the error is returned and the caller's transaction
// keeps the old assignment in place.
func (c Coordinator) Reassign(
	ctx context.Context,
	listing entities.Listing,
	reason string,
) (entities.LeadAssignment, entities.LeadAssignment, error) {
	logger := ResolveLogger(c.Logger)
	active, found, err := c.Assignments.GetActiveAssignment(ctx, listing.ListingID)
	if err != nil {
		return entities.LeadAssignment{}, entities.LeadAssignment{}, err
	}
	if !found {
		return entities.LeadAssignment{}, entities.LeadAssignment{}, domainerrors.ErrAssignmentNotFound
	}

	released, err := c.Release(ctx, active, entities.SystemActor, reason)
	if err != nil {
		return entities.LeadAssignment{}, entities.LeadAssignment{}, err
	}
	assigned, err := c.assign(ctx, listing, entities.SystemActor, map[string]struct{}{active.BrokerID: {}})
	if errors.Is(err, domainerrors.ErrNoEligibleBroker) {
		logger.Warn("no alternative broker, reassigning to previous broker",
			"event", "settlement_reassign_same_broker",
			"module", "marketplace/listing-settlement",
			"layer", "application",
			"listing_id", listing.ListingID,
			"broker_id", active.BrokerID,
		)
		assigned, err = c.assign(ctx, listing, entities.SystemActor, nil)
	}
	if err != nil {
		return entities.LeadAssignment{}, entities.LeadAssignment{}, err
	}
	return released, assigned, nil
}

// Acknowledge records the broker's response, which stops the SLA clock.
func (c Coordinator) Acknowledge(ctx context.Context, assignmentID string, brokerID string) (entities.LeadAssignment, error) {
	var acknowledged entities.LeadAssignment
	err := c.Tx.WithTx(ctx, func(ctx context.Context) error {
		current, err := c.Assignments.GetAssignment(ctx, assignmentID)
		if err != nil {
			return err
		}
		if current.BrokerID != brokerID {
			return domainerrors.ErrAssignmentNotOwned
		}
		if current.Status != entities.AssignmentStatusActive {
			return fmt.Errorf("%w: acknowledge from %s", domainerrors.ErrAssignmentTransition, current.Status)
		}
		if current.AcknowledgedAt != nil {
			acknowledged = current
			return nil
		}
		now := Now(c.Clock)
		next := current
		next.AcknowledgedAt = &now
		next.UpdatedAt = now
		if err := c.persist(ctx, current, next, entities.ActionAssignmentAcknowledged, brokerID, ""); err != nil {
			return err
		}
		acknowledged = next
		return nil
	})
	if err != nil {
		return entities.LeadAssignment{}, err
	}
	return acknowledged, nil
}

// Complete closes the listing's active assignment after settlement.
func (c Coordinator) Complete(ctx context.Context, listingID string) error {
	active, found, err := c.Assignments.GetActiveAssignment(ctx, listingID)
	if err != nil || !found {
		return err
	}
	now := Now(c.Clock)
	next := active
	next.Status = entities.AssignmentStatusCompleted
	next.UpdatedAt = now
	return c.persist(ctx, active, next, entities.ActionAssignmentCompleted, entities.SystemActor, "listing settled")
}

func (c Coordinator) assign(
	ctx context.Context,
	listing entities.Listing,
	actorID string,
	exclude map[string]struct{},
) (entities.LeadAssignment, error) {
	logger := ResolveLogger(c.Logger)
	roster, err := c.Eligibility.EligibleBrokers(ctx, listing.Region, listing.Kind)
	if err != nil {
		return entities.LeadAssignment{}, err
	}
	brokerIDs := make([]string, 0, len(roster))
	for _, broker := range roster {
		brokerIDs = append(brokerIDs, broker.BrokerID)
	}
	load, err := c.Assignments.CountActiveByBroker(ctx, brokerIDs)
	if err != nil {
		return entities.LeadAssignment{}, err
	}

	candidates := services.EligibleBrokers(listing, roster, load, exclude)
	broker, err := c.policy().Pick(listing, candidates, load)
	if err != nil {
		logger.Warn("no eligible broker for listing",
			"event", "settlement_assign_no_broker",
			"module", "marketplace/listing-settlement",
			"layer", "application",
			"listing_id", listing.ListingID,
			"region", listing.Region,
			"kind", listing.Kind,
			"roster_size", len(roster),
		)
		return entities.LeadAssignment{}, err
	}

	assignmentID, err := c.IDGenerator.NewID(ctx)
	if err != nil {
		return entities.LeadAssignment{}, err
	}
	now := Now(c.Clock)
	assignment := entities.LeadAssignment{
		AssignmentID: assignmentID,
		ListingID:    listing.ListingID,
		BrokerID:     broker.BrokerID,
		Status:       entities.AssignmentStatusActive,
		AssignedAt:   now,
		UpdatedAt:    now,
	}
	if err := c.Assignments.CreateAssignment(ctx, assignment); err != nil {
		return entities.LeadAssignment{}, err
	}
	if _, err := c.Audit.Append(ctx, AuditRecord{
		EntityType: entities.AuditEntityAssignment,
		EntityID:   assignment.AssignmentID,
		Action:     entities.ActionAssignmentCreated,
		ActorID:    actorID,
		Reason:     "policy " + c.policy().Name(),
		After:      SnapshotAssignment(assignment),
	}); err != nil {
		return entities.LeadAssignment{}, err
	}
	if err := c.emit(ctx, assignment, actorID, ""); err != nil {
		return entities.LeadAssignment{}, err
	}

	logger.Info("broker assigned",
		"event", "settlement_broker_assigned",
		"module", "marketplace/listing-settlement",
		"layer", "application",
		"listing_id", listing.ListingID,
		"broker_id", broker.BrokerID,
		"assignment_id", assignment.AssignmentID,
		"policy", c.policy().Name(),
	)
	return assignment, nil
}

func (c Coordinator) persist(
	ctx context.Context,
	before entities.LeadAssignment,
	after entities.LeadAssignment,
	action string,
	actorID string,
	reason string,
) error {
	if err := c.Assignments.UpdateAssignment(ctx, after, before.Status); err != nil {
		return err
	}
	if _, err := c.Audit.Append(ctx, AuditRecord{
		EntityType: entities.AuditEntityAssignment,
		EntityID:   after.AssignmentID,
		Action:     action,
		ActorID:    actorID,
		Reason:     reason,
		Before:     SnapshotAssignment(before),
		After:      SnapshotAssignment(after),
	}); err != nil {
		return err
	}
	return c.emit(ctx, after, actorID, reason)
}

func (c Coordinator) emit(ctx context.Context, assignment entities.LeadAssignment, actorID string, reason string) error {
	return EmitOutbox(ctx, c.Outbox, c.IDGenerator, ports.OutboxEvent{
		EventType:  assignmentEventChanged,
		EntityType: entities.AuditEntityAssignment,
		EntityID:   assignment.AssignmentID,
		ListingID:  assignment.ListingID,
		ActorID:    firstNonEmpty(actorID, entities.SystemActor),
		Status:     string(assignment.Status),
		Reason:     reason,
		OccurredAt: assignment.UpdatedAt,
	})
}

func (c Coordinator) policy() services.AssignmentPolicy {
	if c.Policy == nil {
		return services.LeastLoadedPolicy{}
	}
	return c.Policy
}
