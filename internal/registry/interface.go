// Package registry implements the ownership registry of spec.md §4.F: the
// single piece of cross-session shared state, mutated only by the
// Supervisor's start/stop operations.
package registry

import "context"

// OwnerRegistry maps a stationId to the ownerId currently running it.
type OwnerRegistry interface {
	// Claim atomically assigns stationID to ownerID if unclaimed (or already
	// claimed by ownerID, idempotently). ok is false if another owner holds it.
	Claim(ctx context.Context, stationID, ownerID string) (ok bool, err error)
	// Release clears the claim if it is currently held by ownerID.
	Release(ctx context.Context, stationID, ownerID string) error
	// OwnerOf returns the current owner, or "" if unclaimed.
	OwnerOf(ctx context.Context, stationID string) (string, error)
}
