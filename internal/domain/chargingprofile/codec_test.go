package chargingprofile

import (
	"testing"
	"time"

	"github.com/charging-platform/station-fleet-simulator/internal/domain/ocpp16"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wireAbsoluteProfile() ocpp16.ChargingProfile {
	start := ocpp16.DateTime{Time: time.Date(2026, 1, 8, 10, 0, 0, 0, time.UTC)}
	return ocpp16.ChargingProfile{
		ChargingProfileId:      1,
		StackLevel:             0,
		ChargingProfilePurpose: ocpp16.ChargingProfilePurposeChargePointMaxProfile,
		ChargingProfileKind:    ocpp16.ChargingProfileKindAbsolute,
		ChargingSchedule: ocpp16.ChargingSchedule{
			StartSchedule:    &start,
			ChargingRateUnit: ocpp16.ChargingRateUnitW,
			ChargingSchedulePeriod: []ocpp16.ChargingSchedulePeriod{
				{StartPeriod: 0, Limit: 22000},
			},
		},
	}
}

func TestParse_Valid(t *testing.T) {
	p, err := Parse(wireAbsoluteProfile())
	require.NoError(t, err)
	assert.Equal(t, 1, p.ID)
	assert.Equal(t, PurposeChargePointMax, p.Purpose)
	assert.Equal(t, KindAbsolute, p.Kind)
	assert.Equal(t, RateUnitW, p.Schedule.RateUnit)
	require.Len(t, p.Schedule.Periods, 1)
	assert.Equal(t, 22000.0, p.Schedule.Periods[0].Limit)
}

func TestParse_MissingID(t *testing.T) {
	wire := wireAbsoluteProfile()
	wire.ChargingProfileId = 0
	_, err := Parse(wire)
	require.Error(t, err)
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, FailMissingField, pe.Kind)
}

func TestParse_InvalidEnum(t *testing.T) {
	wire := wireAbsoluteProfile()
	wire.ChargingProfilePurpose = "Bogus"
	_, err := Parse(wire)
	require.Error(t, err)
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, FailInvalidEnum, pe.Kind)
}

func TestParse_NoPeriods(t *testing.T) {
	wire := wireAbsoluteProfile()
	wire.ChargingSchedule.ChargingSchedulePeriod = nil
	_, err := Parse(wire)
	require.Error(t, err)
}

func TestValidate_TxRequiresTransactionID(t *testing.T) {
	wire := wireAbsoluteProfile()
	wire.ChargingProfilePurpose = ocpp16.ChargingProfilePurposeTxProfile
	p, err := Parse(wire)
	require.NoError(t, err)

	err = Validate(p)
	require.Error(t, err)

	txID := 1234
	p.TransactionID = &txID
	require.NoError(t, Validate(p))
}

func TestValidate_RecurringRequiresRecurrencyKindAndStart(t *testing.T) {
	wire := wireAbsoluteProfile()
	wire.ChargingProfileKind = ocpp16.ChargingProfileKindRecurring
	p, err := Parse(wire)
	require.NoError(t, err)

	err = Validate(p)
	require.Error(t, err)

	daily := RecurrencyDaily
	p.RecurrencyKind = &daily
	require.NoError(t, Validate(p))

	p.Schedule.StartSchedule = nil
	require.Error(t, Validate(p))
}

func TestValidate_PeriodsMustBeStrictlyAscending(t *testing.T) {
	wire := wireAbsoluteProfile()
	wire.ChargingSchedule.ChargingSchedulePeriod = []ocpp16.ChargingSchedulePeriod{
		{StartPeriod: 0, Limit: 11000},
		{StartPeriod: 0, Limit: 5000},
	}
	p, err := Parse(wire)
	require.NoError(t, err)
	require.Error(t, Validate(p))
}

func TestParseSerializeRoundTrip(t *testing.T) {
	wire := wireAbsoluteProfile()
	p, err := Parse(wire)
	require.NoError(t, err)

	roundTripped := Serialize(p)
	p2, err := Parse(roundTripped)
	require.NoError(t, err)

	assert.Equal(t, p.ID, p2.ID)
	assert.Equal(t, p.Purpose, p2.Purpose)
	assert.Equal(t, p.Kind, p2.Kind)
	assert.Equal(t, p.Schedule.RateUnit, p2.Schedule.RateUnit)
	assert.Equal(t, p.Schedule.Periods, p2.Schedule.Periods)
	assert.True(t, p.Schedule.StartSchedule.Equal(*p2.Schedule.StartSchedule))
}
