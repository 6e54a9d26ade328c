// Package schedule implements the Schedule Resolver of spec.md §4.C: the
// current-limit query consulted on every metering tick, and the
// composite-schedule query served to GetCompositeSchedule.
package schedule

import (
	"fmt"
	"time"

	"github.com/charging-platform/station-fleet-simulator/internal/cache"
	"github.com/charging-platform/station-fleet-simulator/internal/domain/chargingprofile"
	"github.com/charging-platform/station-fleet-simulator/internal/profilestore"
)

// TxContext carries the transaction id and start time needed to resolve
// Tx-purpose and Relative-kind profiles. Pass nil when there is no active
// transaction (e.g. composite-schedule queries never have tx context).
type TxContext struct {
	ID    int
	Start time.Time
}

// Resolver computes effective limits from a station's profile store. Clock
// is injected so callers (and tests) control "now" without sleeping,
// mirroring how the teacher's managers take collaborators as constructor
// parameters rather than reaching for globals.
type Resolver struct {
	Store *profilestore.Store
	Clock func() time.Time

	// Cache, when set, memoizes CompositeSchedule results: a GetCompositeSchedule
	// burst against an unchanged profile store (e.g. a CSMS retry) is served
	// without resampling every second in the window. CacheTTL bounds staleness
	// after a SetChargingProfile/ClearChargingProfile call.
	Cache    *cache.LRUCache
	CacheTTL time.Duration
}

// New returns a Resolver over store, defaulting Clock to time.Now and with
// caching disabled.
func New(store *profilestore.Store) *Resolver {
	return &Resolver{Store: store, Clock: time.Now}
}

// NewWithCache returns a Resolver that memoizes CompositeSchedule lookups in
// lru, evicting entries after ttl.
func NewWithCache(store *profilestore.Store, lru *cache.LRUCache, ttl time.Duration) *Resolver {
	return &Resolver{Store: store, Clock: time.Now, Cache: lru, CacheTTL: ttl}
}

// CurrentLimit implements spec.md §4.C's currentLimit(connectorId, now, txId?).
// It returns (limit, true) when at least one profile applies; (0, false)
// otherwise.
func (r *Resolver) CurrentLimit(connectorID int, now time.Time, tx *TxContext) (float64, bool) {
	candidates := r.candidates(connectorID)

	best, found := 0.0, false
	for _, p := range candidates {
		limit, ok := contribution(p, now, tx)
		if !ok {
			continue
		}
		if !found || limit < best {
			best, found = limit, true
		}
	}
	return best, found
}

// CurrentLimitNow calls CurrentLimit with r.Clock().
func (r *Resolver) CurrentLimitNow(connectorID int, tx *TxContext) (float64, bool) {
	return r.CurrentLimit(connectorID, r.Clock(), tx)
}

func (r *Resolver) candidates(connectorID int) []*chargingprofile.Profile {
	all := r.Store.ListForConnector(0)
	if connectorID != 0 {
		all = append(all, r.Store.ListForConnector(connectorID)...)
	}
	return all
}

// contribution computes a single profile's contribution to currentLimit at
// now, per spec.md §4.C steps 2-6. ok is false when the profile does not
// apply.
func contribution(p *chargingprofile.Profile, now time.Time, tx *TxContext) (float64, bool) {
	if !p.ActiveAt(now) {
		return 0, false
	}

	if p.Purpose == chargingprofile.PurposeTx {
		if tx == nil || p.TransactionID == nil || tx.ID != *p.TransactionID {
			return 0, false
		}
	}

	start, ok := effectiveStart(p, now, tx)
	if !ok {
		return 0, false
	}

	elapsed := now.Sub(start)
	if elapsed < 0 {
		return 0, false
	}
	if p.Schedule.Duration != nil && elapsed > *p.Schedule.Duration {
		return 0, false
	}

	period, ok := lastPeriodAtOrBefore(p.Schedule.Periods, int(elapsed.Seconds()))
	if !ok {
		return 0, false
	}
	return period.Limit, true
}

// effectiveStart computes S per spec.md §4.C step 3.
func effectiveStart(p *chargingprofile.Profile, now time.Time, tx *TxContext) (time.Time, bool) {
	switch p.Kind {
	case chargingprofile.KindAbsolute:
		if p.Schedule.StartSchedule == nil {
			return time.Time{}, false
		}
		return *p.Schedule.StartSchedule, true
	case chargingprofile.KindRecurring:
		if p.Schedule.StartSchedule == nil || p.RecurrencyKind == nil {
			return time.Time{}, false
		}
		switch *p.RecurrencyKind {
		case chargingprofile.RecurrencyDaily:
			return projectDaily(*p.Schedule.StartSchedule, now), true
		case chargingprofile.RecurrencyWeekly:
			return projectWeekly(*p.Schedule.StartSchedule, now), true
		default:
			return time.Time{}, false
		}
	case chargingprofile.KindRelative:
		if tx == nil {
			return time.Time{}, false
		}
		return tx.Start, true
	default:
		return time.Time{}, false
	}
}

func projectDaily(start, now time.Time) time.Time {
	candidate := time.Date(now.Year(), now.Month(), now.Day(),
		start.Hour(), start.Minute(), start.Second(), start.Nanosecond(), time.UTC)
	if candidate.After(now) {
		candidate = candidate.AddDate(0, 0, -1)
	}
	return candidate
}

func projectWeekly(start, now time.Time) time.Time {
	diff := int(now.Weekday()) - int(start.Weekday())
	if diff < 0 {
		diff += 7
	}
	candidate := time.Date(now.Year(), now.Month(), now.Day()-diff,
		start.Hour(), start.Minute(), start.Second(), start.Nanosecond(), time.UTC)
	if candidate.After(now) {
		candidate = candidate.AddDate(0, 0, -7)
	}
	return candidate
}

func lastPeriodAtOrBefore(periods []chargingprofile.Period, elapsedSeconds int) (chargingprofile.Period, bool) {
	found := false
	var best chargingprofile.Period
	for _, period := range periods {
		if period.StartPeriod <= elapsedSeconds {
			if !found || period.StartPeriod > best.StartPeriod {
				best, found = period, true
			}
		}
	}
	return best, found
}

// CompositeSchedule implements spec.md §4.C's compositeSchedule query: it
// samples CurrentLimit at every integer second in [startTime, startTime+duration)
// with no tx context (Relative-kind profiles are skipped entirely), then
// run-length-encodes adjacent equal samples into periods. It returns
// (nil, false) if every sample is empty.
func (r *Resolver) CompositeSchedule(connectorID int, duration time.Duration, unit chargingprofile.RateUnit, startTime time.Time) (*chargingprofile.Schedule, bool) {
	totalSeconds := int(duration.Seconds())
	if totalSeconds <= 0 {
		return nil, false
	}

	if r.Cache != nil {
		key := compositeScheduleCacheKey(connectorID, duration, unit, startTime)
		if cached, ok := r.Cache.Get(key); ok {
			sched, ok := cached.(*chargingprofile.Schedule)
			return sched, ok
		}
		sched, ok := r.computeCompositeSchedule(connectorID, totalSeconds, duration, unit, startTime)
		if ok {
			r.Cache.Set(key, sched, r.CacheTTL)
		}
		return sched, ok
	}

	return r.computeCompositeSchedule(connectorID, totalSeconds, duration, unit, startTime)
}

func compositeScheduleCacheKey(connectorID int, duration time.Duration, unit chargingprofile.RateUnit, startTime time.Time) string {
	return fmt.Sprintf("composite:%d:%d:%s:%d", connectorID, int64(duration.Seconds()), unit, startTime.Unix())
}

func (r *Resolver) computeCompositeSchedule(connectorID int, totalSeconds int, duration time.Duration, unit chargingprofile.RateUnit, startTime time.Time) (*chargingprofile.Schedule, bool) {

	var periods []chargingprofile.Period
	var haveOpen bool
	var openStart int
	var openLimit float64

	flush := func(endSecond int) {
		if haveOpen {
			periods = append(periods, chargingprofile.Period{StartPeriod: openStart, Limit: openLimit})
			haveOpen = false
		}
		_ = endSecond
	}

	for sec := 0; sec < totalSeconds; sec++ {
		now := startTime.Add(time.Duration(sec) * time.Second)
		limit, ok := r.CurrentLimit(connectorID, now, nil)
		if !ok {
			flush(sec)
			continue
		}
		if !haveOpen {
			haveOpen, openStart, openLimit = true, sec, limit
			continue
		}
		if limit != openLimit {
			flush(sec)
			haveOpen, openStart, openLimit = true, sec, limit
		}
	}
	flush(totalSeconds)

	if len(periods) == 0 {
		return nil, false
	}

	d := duration
	return &chargingprofile.Schedule{
		RateUnit:      unit,
		Periods:       periods,
		Duration:      &d,
		StartSchedule: &startTime,
	}, true
}
