package entities

import "time"

type AssignmentStatus string

const (
	AssignmentStatusActive    AssignmentStatus = "active"
	AssignmentStatusReleased  AssignmentStatus = "released"
	AssignmentStatusCompleted AssignmentStatus = "completed"
)

type LeadAssignment struct {
	AssignmentID   string
	ListingID      string
	BrokerID       string
	Status         AssignmentStatus
	AssignedAt     time.Time
	AcknowledgedAt *time.Time
	ReleasedAt     *time.Time
	ReleaseReason  string
	UpdatedAt      time.Time
}

// SLAExpired reports whether an unacknowledged assignment outlived its response window.
func (a LeadAssignment) SLAExpired(now time.Time, sla time.Duration) bool {
	if a.Status != AssignmentStatusActive || a.AcknowledgedAt != nil || sla <= 0 {
		return false
	}
	return !now.UTC().Before(a.AssignedAt.UTC().Add(sla))
}

// Broker is the read-only eligibility view supplied by the broker directory.
type Broker struct {
	BrokerID      string
	Regions       []string
	Kinds         []ListingKind
	Available     bool
	Verified      bool
	MaxActiveLoad int
}

// Serves reports whether the broker covers the listing's region and kind.
func (b Broker) Serves(listing Listing) bool {
	regionOK := len(b.Regions) == 0
	for _, region := range b.Regions {
		if region == listing.Region {
			regionOK = true
			break
		}
	}
	kindOK := len(b.Kinds) == 0
	for _, kind := range b.Kinds {
		if kind == listing.Kind {
			kindOK = true
			break
		}
	}
	return regionOK && kindOK
}
