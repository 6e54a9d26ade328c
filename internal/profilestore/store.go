// Package profilestore holds the per-station, per-connector ordered
// collection of charging profiles described in spec.md §4.B. It is pure
// in-memory and carries no mutex: the session's receiver worker is the sole
// mutator per spec.md §5, so a plain map suffices.
package profilestore

import "github.com/charging-platform/station-fleet-simulator/internal/domain/chargingprofile"

// AddResult is the outcome of Add.
type AddResult string

const (
	AddOk                AddResult = "Ok"
	AddConflictingStack  AddResult = "ConflictingStack"
)

// Store is a per-connector ordered collection of profiles.
type Store struct {
	byConnector map[int][]*chargingprofile.Profile
}

// New returns an empty Store.
func New() *Store {
	return &Store{byConnector: make(map[int][]*chargingprofile.Profile)}
}

// Add inserts profile on connectorId, per spec.md §4.B: any existing profile
// with the same ID on this connector is replaced first, then the surviving
// set is checked for a (purpose, stackLevel) collision.
func (s *Store) Add(connectorID int, profile *chargingprofile.Profile) AddResult {
	existing := s.byConnector[connectorID]
	filtered := existing[:0:0]
	for _, p := range existing {
		if p.ID != profile.ID {
			filtered = append(filtered, p)
		}
	}

	key := profile.StackKey()
	for _, p := range filtered {
		if p.StackKey() == key {
			return AddConflictingStack
		}
	}

	filtered = append(filtered, profile)
	s.byConnector[connectorID] = filtered
	return AddOk
}

// ClearFilter is the AND-combined filter set for Clear, per spec.md §4.B.
// A nil field means "don't filter on this dimension".
type ClearFilter struct {
	ConnectorID *int
	ProfileID   *int
	Purpose     *chargingprofile.Purpose
	StackLevel  *int
}

// Clear removes every profile matching all non-nil fields of filter and
// returns the count removed. When filter.ConnectorID is nil, every
// connector in the store is considered (the "apply to all connectors" OCPP
// boundary rule, §6.2, is the caller's responsibility to translate into a
// nil ConnectorID before calling Clear).
func (s *Store) Clear(filter ClearFilter) int {
	removed := 0
	connectorIDs := []int{}
	if filter.ConnectorID != nil {
		connectorIDs = append(connectorIDs, *filter.ConnectorID)
	} else {
		for id := range s.byConnector {
			connectorIDs = append(connectorIDs, id)
		}
	}

	for _, connID := range connectorIDs {
		existing := s.byConnector[connID]
		kept := existing[:0:0]
		for _, p := range existing {
			if matchesFilter(p, filter) {
				removed++
				continue
			}
			kept = append(kept, p)
		}
		if len(kept) == 0 {
			delete(s.byConnector, connID)
		} else {
			s.byConnector[connID] = kept
		}
	}
	return removed
}

func matchesFilter(p *chargingprofile.Profile, filter ClearFilter) bool {
	if filter.ProfileID != nil && p.ID != *filter.ProfileID {
		return false
	}
	if filter.Purpose != nil && p.Purpose != *filter.Purpose {
		return false
	}
	if filter.StackLevel != nil && p.StackLevel != *filter.StackLevel {
		return false
	}
	return true
}

// ListForConnector returns a snapshot of the profiles stored on connectorID.
func (s *Store) ListForConnector(connectorID int) []*chargingprofile.Profile {
	existing := s.byConnector[connectorID]
	snapshot := make([]*chargingprofile.Profile, len(existing))
	copy(snapshot, existing)
	return snapshot
}

// ConnectorIDs returns the set of connectors holding at least one profile.
func (s *Store) ConnectorIDs() []int {
	ids := make([]int, 0, len(s.byConnector))
	for id := range s.byConnector {
		ids = append(ids, id)
	}
	return ids
}
