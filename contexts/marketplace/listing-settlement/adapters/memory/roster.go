package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"key2key/contexts/marketplace/listing-settlement/domain/entities"
)

// Roster is the in-memory broker directory. It filters by coverage only;
// availability and load caps are applied by the coordinator.
type Roster struct {
	mu      sync.RWMutex
	brokers map[string]entities.Broker
}

func NewRoster(brokers ...entities.Broker) *Roster {
	roster := &Roster{brokers: make(map[string]entities.Broker, len(brokers))}
	for _, broker := range brokers {
		roster.Upsert(broker)
	}
	return roster
}

func (r *Roster) Upsert(broker entities.Broker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	regions := make([]string, 0, len(broker.Regions))
	for _, region := range broker.Regions {
		regions = append(regions, strings.ToLower(strings.TrimSpace(region)))
	}
	broker.Regions = regions
	r.brokers[broker.BrokerID] = broker
}

// SetAvailable flips a broker's availability, as the directory would when a
// broker goes off shift.
func (r *Roster) SetAvailable(brokerID string, available bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	broker, ok := r.brokers[brokerID]
	if !ok {
		return
	}
	broker.Available = available
	r.brokers[brokerID] = broker
}

func (r *Roster) EligibleBrokers(_ context.Context, region string, kind entities.ListingKind) ([]entities.Broker, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	probe := entities.Listing{Region: strings.ToLower(strings.TrimSpace(region)), Kind: kind}
	items := make([]entities.Broker, 0, len(r.brokers))
	for _, broker := range r.brokers {
		if broker.Serves(probe) {
			items = append(items, broker)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].BrokerID < items[j].BrokerID
	})
	return items, nil
}
