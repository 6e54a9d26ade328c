package profilestore

import (
	"testing"

	"github.com/charging-platform/station-fleet-simulator/internal/domain/chargingprofile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func profile(id int, purpose chargingprofile.Purpose, stackLevel int) *chargingprofile.Profile {
	return &chargingprofile.Profile{
		ID:         id,
		Purpose:    purpose,
		StackLevel: stackLevel,
		Kind:       chargingprofile.KindAbsolute,
		Schedule: chargingprofile.Schedule{
			RateUnit: chargingprofile.RateUnitW,
			Periods:  []chargingprofile.Period{{StartPeriod: 0, Limit: 1000}},
		},
	}
}

func TestAdd_ConflictingStackRejected(t *testing.T) {
	s := New()
	require.Equal(t, AddOk, s.Add(1, profile(1, chargingprofile.PurposeTxDefault, 0)))
	require.Equal(t, AddConflictingStack, s.Add(1, profile(2, chargingprofile.PurposeTxDefault, 0)))
	assert.Len(t, s.ListForConnector(1), 1)
}

func TestAdd_SameIDReplaces(t *testing.T) {
	s := New()
	require.Equal(t, AddOk, s.Add(1, profile(1, chargingprofile.PurposeTxDefault, 0)))
	require.Equal(t, AddOk, s.Add(1, profile(1, chargingprofile.PurposeTxDefault, 1)))
	list := s.ListForConnector(1)
	require.Len(t, list, 1)
	assert.Equal(t, 1, list[0].StackLevel)
}

func TestClear_ByPurpose(t *testing.T) {
	s := New()
	s.Add(1, profile(1, chargingprofile.PurposeTxDefault, 0))
	s.Add(1, profile(2, chargingprofile.PurposeChargePointMax, 0))

	purpose := chargingprofile.PurposeTxDefault
	connID := 1
	removed := s.Clear(ClearFilter{ConnectorID: &connID, Purpose: &purpose})

	assert.Equal(t, 1, removed)
	list := s.ListForConnector(1)
	require.Len(t, list, 1)
	assert.Equal(t, 2, list[0].ID)
}

func TestClear_AllConnectorsWhenConnectorIDNil(t *testing.T) {
	s := New()
	s.Add(1, profile(1, chargingprofile.PurposeTxDefault, 0))
	s.Add(2, profile(2, chargingprofile.PurposeTxDefault, 0))

	removed := s.Clear(ClearFilter{})

	assert.Equal(t, 2, removed)
	assert.Empty(t, s.ConnectorIDs())
}

func TestConnectorIDs(t *testing.T) {
	s := New()
	s.Add(1, profile(1, chargingprofile.PurposeTxDefault, 0))
	s.Add(0, profile(2, chargingprofile.PurposeChargePointMax, 0))
	assert.ElementsMatch(t, []int{0, 1}, s.ConnectorIDs())
}
