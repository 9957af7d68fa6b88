package application

import (
	"time"

	"key2key/contexts/marketplace/listing-settlement/ports"
)

// Now reads the injected clock, falling back to wall time in UTC.
func Now(clock ports.Clock) time.Time {
	if clock == nil {
		return time.Now().UTC()
	}
	return clock.Now().UTC()
}
