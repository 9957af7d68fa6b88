package outbox

// Outbox rows are written in the same DB transaction as the state change
// they describe. The relay publishes pending rows and marks them sent.
const (
	StatusPending = "pending"
	StatusSent    = "sent"
)
