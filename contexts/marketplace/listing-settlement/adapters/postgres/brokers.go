package postgresadapter

import (
	"context"
	"strings"

	"key2key/contexts/marketplace/listing-settlement/domain/entities"

	"gorm.io/gorm/clause"
)

// EligibleBrokers reads the broker directory. An empty regions or kinds array
// means the broker covers all of them.
func (r *Repository) EligibleBrokers(ctx context.Context, region string, kind entities.ListingKind) ([]entities.Broker, error) {
	var rows []brokerModel
	if err := r.conn(ctx).
		Where("(jsonb_array_length(regions) = 0 OR regions @> to_jsonb(?::text))", strings.ToLower(strings.TrimSpace(region))).
		Where("(jsonb_array_length(kinds) = 0 OR kinds @> to_jsonb(?::text))", string(kind)).
		Order("broker_id ASC").
		Find(&rows).
		Error; err != nil {
		return nil, err
	}
	items := make([]entities.Broker, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items, nil
}

// UpsertBroker is used by directory sync and seeding.
func (r *Repository) UpsertBroker(ctx context.Context, broker entities.Broker) error {
	kinds := make([]string, 0, len(broker.Kinds))
	for _, kind := range broker.Kinds {
		kinds = append(kinds, string(kind))
	}
	regions := make([]string, 0, len(broker.Regions))
	for _, region := range broker.Regions {
		regions = append(regions, strings.ToLower(strings.TrimSpace(region)))
	}
	row := brokerModel{
		BrokerID:      broker.BrokerID,
		Regions:       regions,
		Kinds:         kinds,
		Available:     broker.Available,
		Verified:      broker.Verified,
		MaxActiveLoad: broker.MaxActiveLoad,
	}
	return r.conn(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "broker_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"regions", "kinds", "available", "verified", "max_active_load"}),
		}).
		Create(&row).
		Error
}
