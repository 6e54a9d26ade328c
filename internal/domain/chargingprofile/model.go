// Package chargingprofile holds the typed charging-profile domain model,
// distinct from the validator-tagged wire DTOs in ocpp16: parsing and
// validation turn an untyped wire ChargingProfile into this shape before any
// resolver or store logic touches it.
package chargingprofile

import "time"

// Purpose 充电配置文件目的
type Purpose string

const (
	PurposeChargePointMax Purpose = "ChargePointMaxProfile"
	PurposeTxDefault      Purpose = "TxDefaultProfile"
	PurposeTx             Purpose = "TxProfile"
)

// Kind 充电配置文件类型
type Kind string

const (
	KindAbsolute  Kind = "Absolute"
	KindRecurring Kind = "Recurring"
	KindRelative  Kind = "Relative"
)

// RecurrencyKind 重复类型
type RecurrencyKind string

const (
	RecurrencyDaily  RecurrencyKind = "Daily"
	RecurrencyWeekly RecurrencyKind = "Weekly"
)

// RateUnit 充电速率单位，canonical wire values are "W"/"A" (see spec design note 3).
type RateUnit string

const (
	RateUnitW RateUnit = "W"
	RateUnitA RateUnit = "A"
)

// Period is one immutable segment of a Schedule.
type Period struct {
	StartPeriod  int
	Limit        float64
	NumberPhases *int
}

// Schedule is an ordered, non-empty sequence of Periods, strictly ascending
// by StartPeriod, the first always at 0 once Validate has run.
type Schedule struct {
	RateUnit        RateUnit
	Periods         []Period
	Duration        *time.Duration
	StartSchedule   *time.Time
	MinChargingRate *float64
}

// Profile is the domain representation of spec.md §3.1's ChargingProfile entity.
type Profile struct {
	ID             int
	StackLevel     int
	Purpose        Purpose
	Kind           Kind
	Schedule       Schedule
	TransactionID  *int
	RecurrencyKind *RecurrencyKind
	ValidFrom      *time.Time
	ValidTo        *time.Time
}

// ActiveAt reports whether now falls within [ValidFrom, ValidTo], treating
// absent bounds as open.
func (p *Profile) ActiveAt(now time.Time) bool {
	if p.ValidFrom != nil && now.Before(*p.ValidFrom) {
		return false
	}
	if p.ValidTo != nil && now.After(*p.ValidTo) {
		return false
	}
	return true
}

// StackKey identifies the (purpose, stackLevel) pair that must be unique per
// connector per spec.md §3.1's uniqueness invariant.
type StackKey struct {
	Purpose    Purpose
	StackLevel int
}

func (p *Profile) StackKey() StackKey {
	return StackKey{Purpose: p.Purpose, StackLevel: p.StackLevel}
}
