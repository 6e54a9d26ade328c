// Package supervisor implements the fleet-level orchestration of spec.md
// §4.F: a map of running stations guarded by a single mutex, the same shape
// the teacher's chargepoint.Manager uses for its connected-charge-point map,
// with a ctx/cancel pair and a done channel per station instead of a
// WaitGroup over worker goroutines.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charging-platform/station-fleet-simulator/internal/config"
	"github.com/charging-platform/station-fleet-simulator/internal/eventsink"
	"github.com/charging-platform/station-fleet-simulator/internal/logger"
	"github.com/charging-platform/station-fleet-simulator/internal/metrics"
	"github.com/charging-platform/station-fleet-simulator/internal/policy"
	"github.com/charging-platform/station-fleet-simulator/internal/registry"
	"github.com/charging-platform/station-fleet-simulator/internal/station"
)

// ErrNotOwned is returned by every operation called by a principal that does
// not currently own the station, per spec.md §4.F.
var ErrNotOwned = errors.New("station not owned by caller")

type runningStation struct {
	ownerID     string
	profileName string
	session     *station.Session
	cancel      context.CancelFunc
	done        chan struct{}
}

// Supervisor owns the fleet of running stations and the ownership map. It
// never touches a station's internal state directly; all interaction goes
// through the Session it created at start.
type Supervisor struct {
	cfg    *config.Config
	own    registry.OwnerRegistry
	sink   eventsink.Sink
	logger *logger.Logger

	mu       sync.RWMutex
	stations map[string]*runningStation
}

// New builds a Supervisor. reg defaults to an in-memory registry and sink to
// a no-op sink when nil, mirroring the teacher's nil-collaborator defaults.
func New(cfg *config.Config, reg registry.OwnerRegistry, sink eventsink.Sink, log *logger.Logger) *Supervisor {
	if reg == nil {
		reg = registry.NewInMemoryRegistry()
	}
	if sink == nil {
		sink = eventsink.NoopSink{}
	}
	return &Supervisor{
		cfg:      cfg,
		own:      reg,
		sink:     sink,
		logger:   log,
		stations: make(map[string]*runningStation),
	}
}

// Start allocates a Session for stationID and runs it in the background.
// It is idempotent for the same owner and rejects a different owner with
// ErrNotOwned. A transport connect failure does not fail Start: the station
// enters a degraded keep-alive per spec.md §4.F instead of crashing the
// fleet.
func (sup *Supervisor) Start(ctx context.Context, ownerID, stationID, profileName string) error {
	ok, err := sup.own.Claim(ctx, stationID, ownerID)
	if err != nil {
		return fmt.Errorf("claim %s: %w", stationID, err)
	}
	if !ok {
		return ErrNotOwned
	}

	sup.mu.Lock()
	if _, exists := sup.stations[stationID]; exists {
		sup.mu.Unlock()
		return nil
	}
	sup.mu.Unlock()

	runCtx, cancel := context.WithCancel(context.Background())
	rs := &runningStation{
		ownerID:     ownerID,
		profileName: profileName,
		cancel:      cancel,
		done:        make(chan struct{}),
	}

	sessionCfg := station.Config{
		StationID:    stationID,
		OwnerID:      ownerID,
		ProfileName:  profileName,
		CSMS:         sup.cfg.CSMS,
		Station:      sup.cfg.Station,
		Policy:       toProfileConfig(sup.cfg.Policy),
		Cache:        sup.cfg.Cache,
		InitialPrice: sup.cfg.Policy.ChargeIfPriceBelow,
	}

	sess, err := station.New(runCtx, sessionCfg, sup.sink, sup.logger)
	if err != nil {
		metrics.ReconnectAttempts.WithLabelValues("failure").Inc()
		sup.logger.Warnf("%s: connect failed, entering degraded keep-alive: %v", stationID, err)
		go sup.degradedKeepAlive(runCtx, stationID, rs)
	} else {
		metrics.ReconnectAttempts.WithLabelValues("success").Inc()
		rs.session = sess
		go sup.runSession(runCtx, stationID, rs)
	}

	sup.mu.Lock()
	sup.stations[stationID] = rs
	sup.mu.Unlock()

	return nil
}

func (sup *Supervisor) runSession(ctx context.Context, stationID string, rs *runningStation) {
	defer close(rs.done)
	if err := rs.session.Run(ctx); err != nil && ctx.Err() == nil {
		sup.logger.Errorf("%s: session exited: %v", stationID, err)
	}
}

// degradedKeepAlive implements the "sleeps indefinitely" fallback named in
// spec.md §4.F and §5's connect-timeout rule: a dead CSMS must not stall the
// fleet, so the station sits idle until cancelled rather than retrying.
func (sup *Supervisor) degradedKeepAlive(ctx context.Context, stationID string, rs *runningStation) {
	defer close(rs.done)
	if err := sup.sink.Publish(eventsink.Record{
		Timestamp:   time.Now(),
		StationID:   stationID,
		Kind:        eventsink.KindError,
		Description: "degraded: transport unavailable",
	}); err != nil {
		sup.logger.Warnf("%s: publish degraded event: %v", stationID, err)
	}
	<-ctx.Done()
}

// Stop cancels stationID's task, awaits clean termination, and releases the
// ownership claim. Idempotent; rejects non-owning callers with ErrNotOwned.
func (sup *Supervisor) Stop(ctx context.Context, ownerID, stationID string) error {
	sup.mu.Lock()
	rs, exists := sup.stations[stationID]
	if !exists {
		sup.mu.Unlock()
		return nil
	}
	if rs.ownerID != ownerID {
		sup.mu.Unlock()
		return ErrNotOwned
	}
	delete(sup.stations, stationID)
	sup.mu.Unlock()

	rs.cancel()
	<-rs.done
	return sup.own.Release(ctx, stationID, ownerID)
}

// Scale stops every station currently owned by ownerID, then starts
// targetCount freshly-named stations PY-SIM-0001 … PY-SIM-<targetCount:04d>,
// per spec.md §4.F.
func (sup *Supervisor) Scale(ctx context.Context, ownerID string, targetCount int, profileName string) error {
	for _, stationID := range sup.ListForOwner(ownerID) {
		if err := sup.Stop(ctx, ownerID, stationID); err != nil {
			return fmt.Errorf("scale down %s: %w", stationID, err)
		}
	}

	for i := 1; i <= targetCount; i++ {
		stationID := fmt.Sprintf("PY-SIM-%04d", i)
		if err := sup.Start(ctx, ownerID, stationID, profileName); err != nil {
			return fmt.Errorf("scale up %s: %w", stationID, err)
		}
	}
	return nil
}

// ListForOwner returns the stationIds currently owned by ownerID.
func (sup *Supervisor) ListForOwner(ownerID string) []string {
	sup.mu.RLock()
	defer sup.mu.RUnlock()

	ids := make([]string, 0, len(sup.stations))
	for stationID, rs := range sup.stations {
		if rs.ownerID == ownerID {
			ids = append(ids, stationID)
		}
	}
	return ids
}

// GetLogs returns stationID's recent log lines. Rejects a non-owning caller
// with ErrNotOwned.
func (sup *Supervisor) GetLogs(ownerID, stationID string) ([]string, error) {
	sup.mu.RLock()
	rs, exists := sup.stations[stationID]
	sup.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("station not running: %s", stationID)
	}
	if rs.ownerID != ownerID {
		return nil, ErrNotOwned
	}
	if rs.session == nil {
		return nil, nil
	}
	return rs.session.Logs(), nil
}

// StopAll cancels every running station regardless of owner, for clean
// process shutdown.
func (sup *Supervisor) StopAll(ctx context.Context) {
	sup.mu.Lock()
	all := make([]*runningStation, 0, len(sup.stations))
	for stationID, rs := range sup.stations {
		all = append(all, rs)
		delete(sup.stations, stationID)
	}
	sup.mu.Unlock()

	for _, rs := range all {
		rs.cancel()
	}
	for _, rs := range all {
		<-rs.done
	}
}

func toProfileConfig(cfg config.PolicyConfig) policy.ProfileConfig {
	peak := make(map[int]struct{}, len(cfg.PeakHours))
	for _, h := range cfg.PeakHours {
		peak[h] = struct{}{}
	}
	return policy.ProfileConfig{
		ChargeIfPriceBelow: cfg.ChargeIfPriceBelow,
		MaxEnergyKwh:       cfg.MaxEnergyKwh,
		AllowPeakHours:     cfg.AllowPeakHours,
		PeakHours:          peak,
	}
}
