// Package policy implements the charging policy engine of spec.md §4.D: a
// pure, deterministic, total decision function with no I/O, kept separate
// from transport and session concerns the way the teacher keeps its
// decision logic free of network code.
package policy

// Action is the base decision returned by Evaluate.
type Action string

const (
	ActionCharge Action = "charge"
	ActionWait   Action = "wait"
	ActionPause  Action = "pause"
)

// EnergyAction is the decision returned by EvaluateEnergy.
type EnergyAction string

const (
	EnergyContinue EnergyAction = "continue"
	EnergyStop     EnergyAction = "stop"
)

// StationState is the subset of session state the policy needs.
type StationState struct {
	EnergyDispensedKwh float64
	Charging           bool
	SessionActive      bool
}

// ProfileConfig is the station's policy configuration.
type ProfileConfig struct {
	ChargeIfPriceBelow float64
	MaxEnergyKwh       float64
	AllowPeakHours     bool
	PeakHours          map[int]struct{}
}

// Env is the environment snapshot consulted at decision time.
type Env struct {
	CurrentPrice float64
	Hour         int
}

// Decision is Evaluate's result.
type Decision struct {
	Action Action
	Reason string
}

// Evaluate applies spec.md §4.D's ordered rules; the first match wins.
func Evaluate(state StationState, cfg ProfileConfig, env Env) Decision {
	if state.EnergyDispensedKwh >= cfg.MaxEnergyKwh {
		return Decision{Action: ActionPause, Reason: "Energy cap reached: station has dispensed its configured maximum"}
	}
	if env.CurrentPrice > cfg.ChargeIfPriceBelow {
		return Decision{Action: ActionWait, Reason: "Price too high: current price exceeds the configured threshold"}
	}
	if _, peak := cfg.PeakHours[env.Hour]; peak && !cfg.AllowPeakHours {
		return Decision{Action: ActionWait, Reason: "Peak hour block: charging is disallowed during this hour"}
	}
	return Decision{Action: ActionCharge, Reason: "Conditions OK"}
}

// EnergyDecision is EvaluateEnergy's result.
type EnergyDecision struct {
	Action EnergyAction
	Reason string
}

// EvaluateEnergy is the Wh-precise variant consulted in the meter loop: it
// adds an unconditional hard stop at maxEnergyWh, then maps Evaluate's base
// action (pause/wait -> stop, charge -> continue).
func EvaluateEnergy(state StationState, cfg ProfileConfig, env Env, currentEnergyWh, maxEnergyWh float64) EnergyDecision {
	if currentEnergyWh >= maxEnergyWh {
		return EnergyDecision{Action: EnergyStop, Reason: "Energy cap reached: meter has reached its configured maximum"}
	}

	base := Evaluate(state, cfg, env)
	if base.Action == ActionCharge {
		return EnergyDecision{Action: EnergyContinue, Reason: base.Reason}
	}
	return EnergyDecision{Action: EnergyStop, Reason: base.Reason}
}
