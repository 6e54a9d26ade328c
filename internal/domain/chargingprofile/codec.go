package chargingprofile

import (
	"time"

	"github.com/charging-platform/station-fleet-simulator/internal/domain/ocpp16"
)

// Parse converts a wire ChargingProfile (already unmarshaled from JSON and
// shape-checked by go-playground/validator) into the domain type, per
// spec.md §4.A. It fails with a precise FailKind and field path rather than
// a generic error.
func Parse(wire ocpp16.ChargingProfile) (*Profile, error) {
	if wire.ChargingProfileId <= 0 {
		return nil, missingField("chargingProfileId")
	}
	if wire.StackLevel < 0 {
		return nil, invalidShape("stackLevel", "must be >= 0")
	}

	purpose, err := parsePurpose(wire.ChargingProfilePurpose)
	if err != nil {
		return nil, err
	}
	kind, err := parseKind(wire.ChargingProfileKind)
	if err != nil {
		return nil, err
	}

	schedule, err := parseSchedule(wire.ChargingSchedule)
	if err != nil {
		return nil, err
	}

	p := &Profile{
		ID:            wire.ChargingProfileId,
		StackLevel:    wire.StackLevel,
		Purpose:       purpose,
		Kind:          kind,
		Schedule:      *schedule,
		TransactionID: wire.TransactionId,
	}

	if wire.RecurrencyKind != nil {
		rk, err := parseRecurrency(*wire.RecurrencyKind)
		if err != nil {
			return nil, err
		}
		p.RecurrencyKind = &rk
	}
	if wire.ValidFrom != nil {
		t := wire.ValidFrom.Time.UTC()
		p.ValidFrom = &t
	}
	if wire.ValidTo != nil {
		t := wire.ValidTo.Time.UTC()
		p.ValidTo = &t
	}

	return p, nil
}

func parseSchedule(wire ocpp16.ChargingSchedule) (*Schedule, error) {
	rateUnit, err := parseRateUnit(wire.ChargingRateUnit)
	if err != nil {
		return nil, err
	}
	if len(wire.ChargingSchedulePeriod) == 0 {
		return nil, missingField("chargingSchedule.chargingSchedulePeriod")
	}

	periods := make([]Period, 0, len(wire.ChargingSchedulePeriod))
	for i, wp := range wire.ChargingSchedulePeriod {
		if wp.StartPeriod < 0 {
			return nil, invalidShape("chargingSchedule.chargingSchedulePeriod[].startPeriod", "must be >= 0")
		}
		if wp.Limit <= 0 {
			return nil, invalidShape("chargingSchedule.chargingSchedulePeriod[].limit", "must be > 0")
		}
		if wp.NumberPhases != nil {
			if *wp.NumberPhases < 1 || *wp.NumberPhases > 3 {
				return nil, invalidEnum("chargingSchedule.chargingSchedulePeriod[].numberPhases", "out of range")
			}
		}
		periods = append(periods, Period{
			StartPeriod:  wp.StartPeriod,
			Limit:        wp.Limit,
			NumberPhases: wp.NumberPhases,
		})
		_ = i
	}

	s := &Schedule{RateUnit: rateUnit, Periods: periods, MinChargingRate: wire.MinChargingRate}
	if wire.Duration != nil {
		d := time.Duration(*wire.Duration) * time.Second
		s.Duration = &d
	}
	if wire.StartSchedule != nil {
		t := wire.StartSchedule.Time.UTC()
		s.StartSchedule = &t
	}
	return s, nil
}

func parsePurpose(v ocpp16.ChargingProfilePurpose) (Purpose, error) {
	switch v {
	case ocpp16.ChargingProfilePurposeChargePointMaxProfile:
		return PurposeChargePointMax, nil
	case ocpp16.ChargingProfilePurposeTxDefaultProfile:
		return PurposeTxDefault, nil
	case ocpp16.ChargingProfilePurposeTxProfile:
		return PurposeTx, nil
	default:
		return "", invalidEnum("chargingProfilePurpose", string(v))
	}
}

func parseKind(v ocpp16.ChargingProfileKind) (Kind, error) {
	switch v {
	case ocpp16.ChargingProfileKindAbsolute:
		return KindAbsolute, nil
	case ocpp16.ChargingProfileKindRecurring:
		return KindRecurring, nil
	case ocpp16.ChargingProfileKindRelative:
		return KindRelative, nil
	default:
		return "", invalidEnum("chargingProfileKind", string(v))
	}
}

func parseRecurrency(v ocpp16.RecurrencyKind) (RecurrencyKind, error) {
	switch v {
	case ocpp16.RecurrencyKindDaily:
		return RecurrencyDaily, nil
	case ocpp16.RecurrencyKindWeekly:
		return RecurrencyWeekly, nil
	default:
		return "", invalidEnum("recurrencyKind", string(v))
	}
}

func parseRateUnit(v ocpp16.ChargingRateUnit) (RateUnit, error) {
	switch v {
	case ocpp16.ChargingRateUnitW:
		return RateUnitW, nil
	case ocpp16.ChargingRateUnitA:
		return RateUnitA, nil
	default:
		return "", invalidEnum("chargingSchedule.chargingRateUnit", string(v))
	}
}

// Validate enforces every invariant in spec.md §3.1 plus the period
// ordering/shape rules in §4.A.
func Validate(p *Profile) error {
	if len(p.Schedule.Periods) == 0 {
		return invariantViolation("schedule must have at least one period")
	}
	if p.Schedule.Periods[0].StartPeriod != 0 {
		return invariantViolation("first period must start at 0")
	}
	for i := 1; i < len(p.Schedule.Periods); i++ {
		if p.Schedule.Periods[i].StartPeriod <= p.Schedule.Periods[i-1].StartPeriod {
			return invariantViolation("periods must be strictly ascending by startPeriod")
		}
	}

	switch p.Purpose {
	case PurposeTx:
		if p.TransactionID == nil {
			return invariantViolation("purpose=Tx requires transactionId")
		}
	}

	switch p.Kind {
	case KindRecurring:
		if p.RecurrencyKind == nil {
			return invariantViolation("kind=Recurring requires recurrencyKind")
		}
		if p.Schedule.StartSchedule == nil {
			return invariantViolation("kind=Recurring requires schedule.startSchedule")
		}
	case KindAbsolute:
		if p.Schedule.StartSchedule == nil {
			return invariantViolation("kind=Absolute requires schedule.startSchedule")
		}
	}

	if p.ValidFrom != nil && p.ValidTo != nil && p.ValidFrom.After(*p.ValidTo) {
		return invariantViolation("validFrom must be <= validTo")
	}

	return nil
}

// Serialize is the inverse of Parse; optional fields that are absent are omitted.
func Serialize(p *Profile) ocpp16.ChargingProfile {
	wire := ocpp16.ChargingProfile{
		ChargingProfileId:      p.ID,
		StackLevel:             p.StackLevel,
		ChargingProfilePurpose: ocpp16.ChargingProfilePurpose(p.Purpose),
		ChargingProfileKind:    ocpp16.ChargingProfileKind(p.Kind),
		TransactionId:          p.TransactionID,
		ChargingSchedule:       serializeSchedule(p.Schedule),
	}
	if p.RecurrencyKind != nil {
		rk := ocpp16.RecurrencyKind(*p.RecurrencyKind)
		wire.RecurrencyKind = &rk
	}
	if p.ValidFrom != nil {
		wire.ValidFrom = &ocpp16.DateTime{Time: *p.ValidFrom}
	}
	if p.ValidTo != nil {
		wire.ValidTo = &ocpp16.DateTime{Time: *p.ValidTo}
	}
	return wire
}

// SerializeSchedule exposes the schedule half of Serialize for callers (such
// as a GetCompositeSchedule response) that only have a bare Schedule, not a
// full Profile.
func SerializeSchedule(s Schedule) ocpp16.ChargingSchedule {
	return serializeSchedule(s)
}

func serializeSchedule(s Schedule) ocpp16.ChargingSchedule {
	periods := make([]ocpp16.ChargingSchedulePeriod, 0, len(s.Periods))
	for _, p := range s.Periods {
		periods = append(periods, ocpp16.ChargingSchedulePeriod{
			StartPeriod:  p.StartPeriod,
			Limit:        p.Limit,
			NumberPhases: p.NumberPhases,
		})
	}
	wire := ocpp16.ChargingSchedule{
		ChargingRateUnit:       ocpp16.ChargingRateUnit(s.RateUnit),
		ChargingSchedulePeriod: periods,
		MinChargingRate:        s.MinChargingRate,
	}
	if s.Duration != nil {
		secs := int(s.Duration.Seconds())
		wire.Duration = &secs
	}
	if s.StartSchedule != nil {
		wire.StartSchedule = &ocpp16.DateTime{Time: *s.StartSchedule}
	}
	return wire
}
