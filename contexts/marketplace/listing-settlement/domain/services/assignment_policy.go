package services

import (
	"sort"
	"sync"

	"key2key/contexts/marketplace/listing-settlement/domain/entities"
	domainerrors "key2key/contexts/marketplace/listing-settlement/domain/errors"
)

const (
	PolicyRoundRobin  = "round_robin"
	PolicyLeastLoaded = "least_loaded"
)

// AssignmentPolicy picks one broker among already-eligible candidates.
// load holds the current active-assignment count per broker id.
type AssignmentPolicy interface {
	Name() string
	Pick(listing entities.Listing, candidates []entities.Broker, load map[string]int) (entities.Broker, error)
}

// EligibleBrokers filters the provider's roster down to brokers that may take
// a new assignment for the listing right now.
func EligibleBrokers(
	listing entities.Listing,
	roster []entities.Broker,
	load map[string]int,
	exclude map[string]struct{},
) []entities.Broker {
	eligible := make([]entities.Broker, 0, len(roster))
	for _, broker := range roster {
		if !broker.Available || !broker.Verified || !broker.Serves(listing) {
			continue
		}
		if _, skip := exclude[broker.BrokerID]; skip {
			continue
		}
		if broker.MaxActiveLoad > 0 && load[broker.BrokerID] >= broker.MaxActiveLoad {
			continue
		}
		eligible = append(eligible, broker)
	}
	sort.Slice(eligible, func(i, j int) bool {
		return eligible[i].BrokerID < eligible[j].BrokerID
	})
	return eligible
}

// RoundRobinPolicy rotates through candidates per (region, kind) pool.
type RoundRobinPolicy struct {
	mu      sync.Mutex
	cursors map[string]int
}

func NewRoundRobinPolicy() *RoundRobinPolicy {
	return &RoundRobinPolicy{cursors: make(map[string]int)}
}

func (p *RoundRobinPolicy) Name() string { return PolicyRoundRobin }

func (p *RoundRobinPolicy) Pick(
	listing entities.Listing,
	candidates []entities.Broker,
	_ map[string]int,
) (entities.Broker, error) {
	if len(candidates) == 0 {
		return entities.Broker{}, domainerrors.ErrNoEligibleBroker
	}
	pool := listing.Region + "|" + string(listing.Kind)

	p.mu.Lock()
	defer p.mu.Unlock()
	idx := p.cursors[pool] % len(candidates)
	p.cursors[pool] = idx + 1
	return candidates[idx], nil
}

// LeastLoadedPolicy picks the broker with the fewest active assignments,
// breaking ties by broker id for determinism.
type LeastLoadedPolicy struct{}

func (LeastLoadedPolicy) Name() string { return PolicyLeastLoaded }

func (LeastLoadedPolicy) Pick(
	_ entities.Listing,
	candidates []entities.Broker,
	load map[string]int,
) (entities.Broker, error) {
	if len(candidates) == 0 {
		return entities.Broker{}, domainerrors.ErrNoEligibleBroker
	}
	best := candidates[0]
	for _, candidate := range candidates[1:] {
		if load[candidate.BrokerID] < load[best.BrokerID] ||
			(load[candidate.BrokerID] == load[best.BrokerID] && candidate.BrokerID < best.BrokerID) {
			best = candidate
		}
	}
	return best, nil
}

// ResolvePolicy maps a configured policy name to a strategy; unknown names
// fall back to round-robin.
func ResolvePolicy(name string) AssignmentPolicy {
	if name == PolicyLeastLoaded {
		return LeastLoadedPolicy{}
	}
	return NewRoundRobinPolicy()
}
