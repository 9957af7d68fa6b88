// Package listingsettlement implements the listing lifecycle and transaction
// settlement engine inside the marketplace context.
//
// The module owns listing status transitions (draft through sold, leased,
// cancelled or archived), the payment ledger and its gateway webhooks, broker
// lead assignment with SLA reassignment, and an append-only audit trail.
// Every state change commits together with its audit entry and an outbox
// notification. Business rules live in the application/domain layers and
// infrastructure sits behind ports and adapters.
package listingsettlement
