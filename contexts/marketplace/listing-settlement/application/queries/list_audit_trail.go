package queries

import (
	"context"
	"strings"

	"key2key/contexts/marketplace/listing-settlement/domain/entities"
	domainerrors "key2key/contexts/marketplace/listing-settlement/domain/errors"
	"key2key/contexts/marketplace/listing-settlement/ports"
)

type ListAuditTrailQuery struct {
	EntityType entities.AuditEntityType
	EntityID   string
}

// ListAuditTrailUseCase returns an entity's audit entries in sequence order.
type ListAuditTrailUseCase struct {
	Audit ports.AuditRepository
}

func (u ListAuditTrailUseCase) Execute(ctx context.Context, query ListAuditTrailQuery) ([]entities.AuditEntry, error) {
	if strings.TrimSpace(query.EntityID) == "" {
		return nil, domainerrors.ErrValidation
	}
	switch query.EntityType {
	case entities.AuditEntityListing, entities.AuditEntityTransaction,
		entities.AuditEntityAssignment, entities.AuditEntityGatewayEvent:
	case "":
		query.EntityType = entities.AuditEntityListing
	default:
		return nil, domainerrors.ErrValidation
	}
	return u.Audit.ListAuditByEntity(ctx, query.EntityType, query.EntityID)
}
