// Package station implements the Session State Machine of spec.md §4.E: the
// per-station OCPP lifecycle running as three cooperative workers sharing a
// single cancellable context, mirroring the ctx/cancel/sync.WaitGroup
// lifecycle the teacher uses for its connection goroutines.
package station

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/charging-platform/station-fleet-simulator/internal/cache"
	"github.com/charging-platform/station-fleet-simulator/internal/config"
	"github.com/charging-platform/station-fleet-simulator/internal/domain/ocpp16"
	"github.com/charging-platform/station-fleet-simulator/internal/domain/validation"
	"github.com/charging-platform/station-fleet-simulator/internal/eventsink"
	"github.com/charging-platform/station-fleet-simulator/internal/logger"
	"github.com/charging-platform/station-fleet-simulator/internal/metrics"
	"github.com/charging-platform/station-fleet-simulator/internal/policy"
	"github.com/charging-platform/station-fleet-simulator/internal/profilestore"
	"github.com/charging-platform/station-fleet-simulator/internal/schedule"
	"github.com/charging-platform/station-fleet-simulator/internal/transport"
)

const connectorID = 1

const logRingCapacity = 50

// Config is the fixed configuration a Session is built from; it is supplied
// once by the Supervisor at start and never mutated afterwards.
type Config struct {
	StationID    string
	OwnerID      string
	ProfileName  string
	CSMS         config.CSMSConfig
	Station      config.StationConfig
	Policy       policy.ProfileConfig
	Cache        config.CacheConfig
	InitialPrice float64
}

// Session owns one station's transport, profile store and resolver, and
// drives its OCPP lifecycle. Only the transaction worker mutates currentTxID
// and the price snapshot; the receiver and heartbeat workers are read-only
// with respect to session state, so a single mutex is enough (§5).
type Session struct {
	cfg Config

	client   *transport.Client
	store    *profilestore.Store
	resolver *schedule.Resolver
	cache    *cache.LRUCache
	validate *validation.Validator

	sink   eventsink.Sink
	logger *logger.Logger
	logs   *LogRing

	rng *rand.Rand

	mu          sync.Mutex
	currentTxID *int
	txStart     time.Time
	price       float64
}

// New constructs a Session and dials its transport. Callers (the Supervisor)
// are responsible for handling a non-nil error by entering a degraded
// keep-alive rather than giving up on the station.
func New(ctx context.Context, cfg Config, sink eventsink.Sink, log *logger.Logger) (*Session, error) {
	if sink == nil {
		sink = eventsink.NoopSink{}
	}

	store := profilestore.New()

	s := &Session{
		cfg:      cfg,
		store:    store,
		validate: validation.NewValidator(),
		sink:     sink,
		logger:   log,
		logs:     NewLogRing(logRingCapacity),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		price:    cfg.InitialPrice,
	}

	if cfg.Cache.MaxSize > 0 {
		s.cache = cache.NewLRUCache(&cache.CacheConfig{
			Capacity:        cfg.Cache.MaxSize,
			ShardCount:      1,
			MaxSize:         int64(cfg.Cache.MaxSize) * 1024,
			MemoryLimitMB:   1,
			DefaultTTL:      cfg.Cache.TTL,
			CleanupInterval: cfg.Cache.CleanupInterval,
			EvictionBatch:   8,
		})
		if err := s.cache.Start(); err != nil {
			return nil, fmt.Errorf("start composite schedule cache: %w", err)
		}
		s.resolver = schedule.NewWithCache(store, s.cache, cfg.Cache.TTL)
	} else {
		s.resolver = schedule.New(store)
	}

	client, err := transport.Dial(ctx, cfg.CSMS.URL, cfg.CSMS.BasePath, cfg.StationID, cfg.Station.ConnectTimeout, cfg.CSMS.CallTimeout, log)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.StationID, err)
	}
	s.client = client

	return s, nil
}

// SetPrice delivers a fresh price snapshot to the session, per the
// spec's "updates delivered via a message, each session reads a per-tick
// snapshot" rule: no shared mutable reference crosses goroutine boundaries.
func (s *Session) SetPrice(price float64) {
	s.mu.Lock()
	s.price = price
	s.mu.Unlock()
}

func (s *Session) snapshotPrice() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.price
}

// Logs returns a snapshot of the session's recent log lines.
func (s *Session) Logs() []string {
	return s.logs.Snapshot()
}

func (s *Session) publish(r eventsink.Record) {
	if err := s.sink.Publish(r); err != nil {
		s.logger.Warnf("%s: publish event: %v", s.cfg.StationID, err)
	}
}

func (s *Session) logf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	s.logger.Infof("%s: %s", s.cfg.StationID, msg)
	s.logs.Add(msg)
}

// Run boots the station and drives its three cooperative workers until ctx
// is cancelled or a worker returns an error. It always returns once every
// worker has exited.
func (s *Session) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.teardown()

	if err := s.boot(runCtx); err != nil {
		return fmt.Errorf("boot %s: %w", s.cfg.StationID, err)
	}

	metrics.ActiveSessions.Inc()
	defer metrics.ActiveSessions.Dec()
	s.publish(eventsink.Record{StationID: s.cfg.StationID, Kind: eventsink.KindConnected, Description: "session booted"})

	var wg sync.WaitGroup
	errCh := make(chan error, 3)

	spawn := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := fn(runCtx)
			if err != nil && runCtx.Err() == nil {
				s.logger.Warnf("%s: worker %s exited: %v", s.cfg.StationID, name, err)
			}
			errCh <- err
			cancel()
		}()
	}

	spawn("receiver", s.runReceiver)
	spawn("heartbeat", s.runHeartbeat)
	spawn("transactions", s.runTransactions)

	wg.Wait()
	close(errCh)

	var first error
	for err := range errCh {
		if err != nil && first == nil && runCtx.Err() == nil {
			first = err
		}
	}

	s.publish(eventsink.Record{StationID: s.cfg.StationID, Kind: eventsink.KindDisconnected, Description: "session closed"})
	return first
}

func (s *Session) teardown() {
	s.client.Close()
	if s.cache != nil {
		s.cache.Stop()
	}
}

func (s *Session) boot(ctx context.Context) error {
	var bootResp ocpp16.BootNotificationResponse
	bootReq := ocpp16.BootNotificationRequest{
		ChargePointVendor: "fleet-simulator",
		ChargePointModel:  s.cfg.ProfileName,
	}
	if err := s.client.Call(ctx, string(ocpp16.ActionBootNotification), bootReq, &bootResp); err != nil {
		return err
	}
	s.logf("boot notification: status=%s", bootResp.Status)

	var statusResp ocpp16.StatusNotificationResponse
	statusReq := ocpp16.StatusNotificationRequest{
		ConnectorId: connectorID,
		ErrorCode:   ocpp16.ChargePointErrorCodeNoError,
		Status:      ocpp16.ChargePointStatusAvailable,
	}
	return s.client.Call(ctx, string(ocpp16.ActionStatusNotification), statusReq, &statusResp)
}

func (s *Session) runReceiver(ctx context.Context) error {
	return s.client.Serve(ctx, s.handleInbound)
}

func (s *Session) runHeartbeat(ctx context.Context) error {
	interval := s.cfg.CSMS.HeartbeatInterval
	if interval <= 0 {
		interval = 60 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			var resp ocpp16.HeartbeatResponse
			if err := s.client.Call(ctx, string(ocpp16.ActionHeartbeat), ocpp16.HeartbeatRequest{}, &resp); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("heartbeat: %w", err)
			}
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func uniform(rng *rand.Rand, min, max float64) float64 {
	if max <= min {
		return min
	}
	return min + rng.Float64()*(max-min)
}

func uniformDuration(rng *rand.Rand, min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rng.Int63n(int64(max-min)))
}

func isPeakHour(hour int, peakHours map[int]struct{}) bool {
	_, ok := peakHours[hour]
	return ok
}

// runTransactions drives spec.md §4.E's transaction loop forever unless
// transactions are disabled for this profile.
func (s *Session) runTransactions(ctx context.Context) error {
	if !s.cfg.Station.EnableTransactions {
		<-ctx.Done()
		return nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		if err := s.runOneTransaction(ctx); err != nil {
			return err
		}
	}
}

func (s *Session) runOneTransaction(ctx context.Context) error {
	cfg := s.cfg.Station

	// 1. idle
	if err := sleepCtx(ctx, uniformDuration(s.rng, cfg.IdleMin, cfg.IdleMax)); err != nil {
		return nil
	}

	// 2. policy consult, retry without consuming the idle slot
	for {
		env := policy.Env{CurrentPrice: s.snapshotPrice(), Hour: time.Now().Hour()}
		decision := policy.Evaluate(policy.StationState{}, s.cfg.Policy, env)
		if decision.Action == policy.ActionCharge {
			break
		}
		s.logf("transaction deferred: %s", decision.Reason)
		if err := sleepCtx(ctx, 60*time.Second); err != nil {
			return nil
		}
	}

	// 3. offline simulation
	if s.rng.Float64() < cfg.OfflineProbability {
		s.logf("simulating offline for %s", cfg.OfflineDuration)
		s.publish(eventsink.Record{StationID: s.cfg.StationID, Kind: eventsink.KindDisconnected, Description: "simulated offline"})
		s.client.Close()
		return sleepCtx(ctx, cfg.OfflineDuration)
	}

	idTag := cfg.IdTagPool[s.rng.Intn(len(cfg.IdTagPool))]

	// 4. Authorize
	var authResp ocpp16.AuthorizeResponse
	if err := s.client.Call(ctx, string(ocpp16.ActionAuthorize), ocpp16.AuthorizeRequest{IdTag: idTag}, &authResp); err != nil {
		return fmt.Errorf("authorize: %w", err)
	}

	// 5. StartTransaction
	now := time.Now().UTC()
	var startResp ocpp16.StartTransactionResponse
	startReq := ocpp16.StartTransactionRequest{
		ConnectorId: connectorID,
		IdTag:       idTag,
		MeterStart:  0,
		Timestamp:   ocpp16.DateTime{Time: now},
	}
	if err := s.client.Call(ctx, string(ocpp16.ActionStartTransaction), startReq, &startResp); err != nil {
		return fmt.Errorf("start transaction: %w", err)
	}

	txID := startResp.TransactionId
	if txID == 0 {
		txID = 1000 + s.rng.Intn(9000)
	}

	s.mu.Lock()
	s.currentTxID = &txID
	s.txStart = now
	s.mu.Unlock()
	metrics.TransactionsStarted.Inc()
	s.publish(eventsink.Record{StationID: s.cfg.StationID, Kind: eventsink.KindTransaction, Description: fmt.Sprintf("started %d", txID)})

	totalWh := s.meterLoop(ctx, txID, now)

	// 7. StopTransaction
	stopReq := ocpp16.StopTransactionRequest{
		IdTag:         &idTag,
		MeterStop:     int(totalWh),
		Timestamp:     ocpp16.DateTime{Time: time.Now().UTC()},
		TransactionId: txID,
	}
	var stopResp ocpp16.StopTransactionResponse
	err := s.client.Call(ctx, string(ocpp16.ActionStopTransaction), stopReq, &stopResp)

	s.mu.Lock()
	s.currentTxID = nil
	s.mu.Unlock()
	metrics.TransactionsStopped.Inc()
	s.publish(eventsink.Record{StationID: s.cfg.StationID, Kind: eventsink.KindTransaction, Description: fmt.Sprintf("stopped %d", txID)})

	if err != nil {
		return fmt.Errorf("stop transaction: %w", err)
	}
	return nil
}

// meterLoop runs step 6 of spec.md §4.E and returns the total energy
// dispensed in Wh.
func (s *Session) meterLoop(ctx context.Context, txID int, txStart time.Time) float64 {
	cfg := s.cfg.Station
	ticks := 3 + s.rng.Intn(6)
	maxWh := s.cfg.Policy.MaxEnergyKwh * 1000
	var totalWh float64

	for i := 0; i < ticks; i++ {
		interval := uniformDuration(s.rng, cfg.SampleIntervalMin, cfg.SampleIntervalMax)
		if err := sleepCtx(ctx, interval); err != nil {
			return totalWh
		}

		baseStep := uniform(s.rng, cfg.EnergyStepMinWh, cfg.EnergyStepMaxWh)
		hour := time.Now().Hour()

		var energyStep float64
		tx := &schedule.TxContext{ID: txID, Start: txStart}
		if limitW, ok := s.resolver.CurrentLimitNow(connectorID, tx); ok {
			energyStep = math.Min(baseStep, limitW*interval.Seconds()/3600)
		} else {
			env := policy.Env{CurrentPrice: s.snapshotPrice(), Hour: hour}
			state := policy.StationState{EnergyDispensedKwh: totalWh / 1000, Charging: true, SessionActive: true}
			decision := policy.EvaluateEnergy(state, s.cfg.Policy, env, totalWh, maxWh)
			if decision.Action == policy.EnergyStop {
				break
			}
			energyStep = baseStep
			if s.cfg.Policy.AllowPeakHours && isPeakHour(hour, s.cfg.Policy.PeakHours) {
				energyStep = math.Max(energyStep/2, 10)
			}
		}

		totalWh += energyStep
		clamped := false
		if maxWh > 0 && totalWh >= maxWh {
			totalWh = maxWh
			clamped = true
		}

		if err := s.sendMeterValues(ctx, txID, totalWh); err != nil {
			s.logger.Warnf("%s: meter values: %v", s.cfg.StationID, err)
			break
		}

		if clamped {
			break
		}
	}

	return totalWh
}

func (s *Session) sendMeterValues(ctx context.Context, txID int, totalWh float64) error {
	measurand := ocpp16.MeasurandEnergyActiveImportRegister
	req := ocpp16.MeterValuesRequest{
		ConnectorId:   connectorID,
		TransactionId: &txID,
		MeterValue: []ocpp16.MeterValue{{
			Timestamp: ocpp16.DateTime{Time: time.Now().UTC()},
			SampledValue: []ocpp16.SampledValue{{
				Value:     fmt.Sprintf("%.0f", totalWh),
				Measurand: &measurand,
			}},
		}},
	}
	var resp ocpp16.MeterValuesResponse
	return s.client.Call(ctx, string(ocpp16.ActionMeterValues), req, &resp)
}
