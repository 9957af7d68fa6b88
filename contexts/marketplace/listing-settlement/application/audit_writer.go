package application

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"key2key/contexts/marketplace/listing-settlement/domain/entities"
	domainerrors "key2key/contexts/marketplace/listing-settlement/domain/errors"
	"key2key/contexts/marketplace/listing-settlement/ports"
)

// AuditRecord is one mutation to log. Before is nil for creations.
type AuditRecord struct {
	EntityType entities.AuditEntityType
	EntityID   string
	Action     string
	ActorID    string
	Reason     string
	Before     any
	After      any
}

// AuditWriter is the only producer of audit entries. Append must be called
// with the context of the transaction that carries the mutation so both
// commit or neither does.
type AuditWriter struct {
	Audit       ports.AuditRepository
	Quarantine  ports.QuarantineStore
	Alerter     ports.OperatorAlerter
	IDGenerator ports.IDGenerator
	Clock       ports.Clock
	Logger      *slog.Logger
}

func (w AuditWriter) Append(ctx context.Context, record AuditRecord) (entities.AuditEntry, error) {
	if strings.TrimSpace(record.EntityID) == "" || strings.TrimSpace(record.Action) == "" {
		return entities.AuditEntry{}, fmt.Errorf("%w: audit entry requires entity id and action", domainerrors.ErrValidation)
	}
	before, err := marshalSnapshot(record.Before)
	if err != nil {
		return entities.AuditEntry{}, err
	}
	after, err := marshalSnapshot(record.After)
	if err != nil {
		return entities.AuditEntry{}, err
	}
	auditID, err := w.IDGenerator.NewID(ctx)
	if err != nil {
		return entities.AuditEntry{}, err
	}
	actor := strings.TrimSpace(record.ActorID)
	if actor == "" {
		actor = entities.SystemActor
	}

	stored, err := w.Audit.AppendAudit(ctx, entities.AuditEntry{
		AuditID:    auditID,
		EntityType: record.EntityType,
		EntityID:   record.EntityID,
		Action:     record.Action,
		ActorID:    actor,
		Reason:     record.Reason,
		Before:     before,
		After:      after,
		OccurredAt: Now(w.Clock),
	})
	if err != nil {
		ResolveLogger(w.Logger).Error("audit append failed",
			"event", "settlement_audit_append_failed",
			"module", "marketplace/listing-settlement",
			"layer", "application",
			"entity_type", record.EntityType,
			"entity_id", record.EntityID,
			"action", record.Action,
			"error", err.Error(),
		)
		return entities.AuditEntry{}, err
	}
	return stored, nil
}

// AppendCompensation records a correction for an earlier entry. History is
// never edited; the compensating entry references the corrected sequence.
func (w AuditWriter) AppendCompensation(
	ctx context.Context,
	entityType entities.AuditEntityType,
	entityID string,
	correctsSequence int64,
	actorID string,
	reason string,
	before any,
	after any,
) (entities.AuditEntry, error) {
	if strings.TrimSpace(reason) == "" {
		return entities.AuditEntry{}, domainerrors.ErrReasonRequired
	}
	return w.Append(ctx, AuditRecord{
		EntityType: entityType,
		EntityID:   entityID,
		Action:     entities.ActionCompensation,
		ActorID:    actorID,
		Reason:     fmt.Sprintf("corrects #%d: %s", correctsSequence, reason),
		Before:     before,
		After:      after,
	})
}

// CheckListing fails with ErrEntityQuarantined for a quarantined listing and
// with ErrMissingAuditEntry when the stored listing is not the after-image of
// its latest audit entry. It never repairs anything.
func (w AuditWriter) CheckListing(ctx context.Context, listing entities.Listing) error {
	if w.Quarantine != nil {
		quarantined, err := w.Quarantine.IsQuarantined(ctx, entities.AuditEntityListing, listing.ListingID)
		if err != nil {
			return err
		}
		if quarantined {
			return domainerrors.ErrEntityQuarantined
		}
	}

	latest, found, err := w.Audit.LatestAuditForEntity(ctx, entities.AuditEntityListing, listing.ListingID)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: listing %s has no audit history", domainerrors.ErrMissingAuditEntry, listing.ListingID)
	}
	var snapshot ListingSnapshot
	if err := json.Unmarshal(latest.After, &snapshot); err != nil {
		return fmt.Errorf("%w: listing %s audit #%d unreadable", domainerrors.ErrMissingAuditEntry, listing.ListingID, latest.Sequence)
	}
	if snapshot.Version != listing.Version || snapshot.Status != string(listing.Status) {
		return fmt.Errorf(
			"%w: listing %s at version %d (%s), audit #%d records version %d (%s)",
			domainerrors.ErrMissingAuditEntry,
			listing.ListingID,
			listing.Version,
			listing.Status,
			latest.Sequence,
			snapshot.Version,
			snapshot.Status,
		)
	}
	return nil
}

// QuarantineEntity blocks further writes and pages an operator. Call it
// outside the failed transaction so the quarantine row survives the rollback.
func (w AuditWriter) QuarantineEntity(
	ctx context.Context,
	entityType entities.AuditEntityType,
	entityID string,
	cause error,
) {
	logger := ResolveLogger(w.Logger)
	reason := "audit verification failed"
	if cause != nil {
		reason = cause.Error()
	}
	if w.Quarantine != nil {
		if err := w.Quarantine.Quarantine(ctx, entityType, entityID, reason, Now(w.Clock)); err != nil {
			logger.Error("entity quarantine failed",
				"event", "settlement_quarantine_failed",
				"module", "marketplace/listing-settlement",
				"layer", "application",
				"entity_type", entityType,
				"entity_id", entityID,
				"error", err.Error(),
			)
		}
	}
	logger.Error("fatal consistency error, entity quarantined",
		"event", "settlement_entity_quarantined",
		"module", "marketplace/listing-settlement",
		"layer", "application",
		"entity_type", entityType,
		"entity_id", entityID,
		"reason", reason,
	)
	if w.Alerter != nil {
		w.Alerter.Alert(ctx, "critical", "entity quarantined after audit verification failure", map[string]string{
			"entity_type": string(entityType),
			"entity_id":   entityID,
			"reason":      reason,
		})
	}
}

func marshalSnapshot(value any) (json.RawMessage, error) {
	if value == nil {
		return nil, nil
	}
	if raw, ok := value.(json.RawMessage); ok {
		return raw, nil
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode audit snapshot: %w", err)
	}
	return encoded, nil
}
