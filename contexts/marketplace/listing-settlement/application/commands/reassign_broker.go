package commands

import (
	"context"

	"key2key/contexts/marketplace/listing-settlement/domain/entities"
	"key2key/contexts/marketplace/listing-settlement/domain/services"
)

// AssignmentSLAReason is recorded when the SLA sweep moves a lead.
const AssignmentSLAReason = "assignment SLA timeout"

type ReassignBrokerResult struct {
	Listing  entities.Listing
	Released entities.LeadAssignment
	Assigned entities.LeadAssignment
}

// ReassignBroker releases the listing's unresponsive broker and assigns a new
// one in a single version-checked commit. Driven by the SLA sweep.
func (m ListingStateMachine) ReassignBroker(ctx context.Context, listingID string, reason string) (ReassignBrokerResult, error) {
	reason = firstNonEmpty(reason, AssignmentSLAReason)
	var result ReassignBrokerResult
	err := m.inTx(ctx, listingID, func(ctx context.Context) error {
		listing, err := m.load(ctx, listingID)
		if err != nil {
			return err
		}
		next, err := services.NextListingStatus(listing, services.ListingEventReassignBroker)
		if err != nil {
			return err
		}
		released, assigned, err := m.Coordinator.Reassign(ctx, listing, reason)
		if err != nil {
			return err
		}

		after := listing.Next(next, m.now())
		after.BrokerID = assigned.BrokerID
		if err := m.commit(ctx, listing, after, entities.ActionBrokerAssigned, entities.SystemActor, reason); err != nil {
			return err
		}
		result = ReassignBrokerResult{Listing: after, Released: released, Assigned: assigned}
		return nil
	})
	if err != nil {
		m.logRejected(listingID, "settlement_broker_reassign_rejected", err)
		return ReassignBrokerResult{}, err
	}
	m.logTransition(result.Listing, "settlement_broker_reassigned", "broker reassigned")
	return result, nil
}

type AssignBrokerCommand struct {
	ListingID string
	ActorID   string
}

// AssignBroker gives a listing published without a broker its first lead.
// No eligible broker surfaces as ErrNoEligibleBroker.
func (m ListingStateMachine) AssignBroker(ctx context.Context, cmd AssignBrokerCommand) (ReassignBrokerResult, error) {
	var result ReassignBrokerResult
	err := m.inTx(ctx, cmd.ListingID, func(ctx context.Context) error {
		listing, err := m.load(ctx, cmd.ListingID)
		if err != nil {
			return err
		}
		next, err := services.NextListingStatus(listing, services.ListingEventReassignBroker)
		if err != nil {
			return err
		}
		assigned, err := m.Coordinator.Assign(ctx, listing, cmd.ActorID)
		if err != nil {
			return err
		}

		after := listing.Next(next, m.now())
		after.BrokerID = assigned.BrokerID
		if err := m.commit(ctx, listing, after, entities.ActionBrokerAssigned, cmd.ActorID, ""); err != nil {
			return err
		}
		result = ReassignBrokerResult{Listing: after, Assigned: assigned}
		return nil
	})
	if err != nil {
		m.logRejected(cmd.ListingID, "settlement_broker_assign_rejected", err)
		return ReassignBrokerResult{}, err
	}
	m.logTransition(result.Listing, "settlement_broker_assigned", "broker assigned")
	return result, nil
}
