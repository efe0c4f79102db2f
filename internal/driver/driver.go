// Package driver runs the fixed-interval step/broadcast loop: tick, gate
// the simulator, step, snapshot, publish. It is the single place engine
// mutation happens, giving the process one serialized writer instead of
// many.
package driver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"github.com/wessimpson/lobsim/internal/book"
	"github.com/wessimpson/lobsim/internal/sim"
)

// Status is the coarse health classification returned by the control
// channel's get_health command.
type Status int8

const (
	StatusHealthy Status = iota
	StatusDegraded
	StatusOverloaded
)

func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "HEALTHY"
	case StatusDegraded:
		return "DEGRADED"
	case StatusOverloaded:
		return "OVERLOADED"
	}
	return "UNKNOWN"
}

// MarshalJSON encodes Status as its string form rather than the
// underlying int8, so health payloads stay human-readable.
func (s Status) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

const (
	// degradedErrorThreshold is the number of fatal step errors within
	// errorWindowDuration that classifies the driver as DEGRADED.
	degradedErrorThreshold = 100
	// errorWindowDuration bounds how far back Health looks when counting
	// fatal errors; a burst that ages out of the window no longer counts
	// against the classification.
	errorWindowDuration = time.Minute
	// overloadedConnThreshold is the active-connection count that
	// classifies the driver as OVERLOADED.
	overloadedConnThreshold = 900
	// warnStepFraction is the fraction of the tick interval a step may
	// consume before the driver logs a warning
	warnStepFraction = 0.8
	// maxRecoveryAttempts bounds how many times the driver will reset
	// simulator metrics and keep going after maxConsecutive fatal steps in
	// a row; exceeding it escalates the error out of Run.
	maxRecoveryAttempts = 3
)

// Publisher receives each step's snapshot. A publisher with zero
// subscribers is not an error.
type Publisher interface {
	Publish(sim.Snapshot)
}

// Health is a point-in-time status report. TotalErrors is the lifetime
// count of fatal step errors; RecentErrors, the count within
// errorWindowDuration, is what actually drives the DEGRADED
// classification. RecoverableErrors mirrors sim.Simulator.RecoverableErrors,
// engine errors that were logged and absorbed without aborting a step.
type Health struct {
	Status            Status  `json:"status"`
	TotalErrors       int     `json:"total_errors"`
	RecentErrors      int     `json:"recent_errors"`
	RecoverableErrors int     `json:"recoverable_errors"`
	ConsecutiveErrors int     `json:"consecutive_errors"`
	SimulationSteps   uint64  `json:"simulation_steps"`
	AvgStepDurationMS float64 `json:"avg_step_duration_ms"`
	ActiveConnections int     `json:"active_connections"`
}

// Driver owns the periodic tick and the engine gate: every call into the
// simulator (step, manual order injection, snapshot) is serialized
// through mu, so only one of them ever touches the engine at a time.
type Driver struct {
	mu  sync.Mutex
	sim *sim.Simulator

	interval  time.Duration
	publisher Publisher
	topN      int

	consecutiveErrors int
	totalErrors       int
	errorTimestamps   []time.Time // fatal-error times, pruned to errorWindowDuration
	recoveryAttempts  int
	steps             uint64
	stepDurationSumNS int64
	activeConnections int
	maxConsecutive    int
}

// New constructs a Driver. maxConsecutiveFailures bounds how many
// successive fatal step errors the driver tolerates before invoking
// recovery: resetting simulator metrics and continuing with a fresh
// consecutive-error count, since the engine has no persisted state to roll
// back to. Recovery itself is bounded by maxRecoveryAttempts; once
// exhausted, tick propagates the error and Run aborts.
func New(s *sim.Simulator, interval time.Duration, topN int, pub Publisher, maxConsecutiveFailures int) *Driver {
	if maxConsecutiveFailures <= 0 {
		maxConsecutiveFailures = 5
	}
	return &Driver{sim: s, interval: interval, publisher: pub, topN: topN, maxConsecutive: maxConsecutiveFailures}
}

// Run ticks until ctx is cancelled, finishing any in-flight step before
// returning.
func (d *Driver) Run(ctx context.Context) error {
	parent := ctx
	t, ctx := tomb.WithContext(parent)
	t.Go(func() error {
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()
		for {
			select {
			case <-t.Dying():
				return nil
			case <-ticker.C:
				if err := d.tick(); err != nil {
					log.Error().Err(err).Msg("step driver: fatal step error")
					return err
				}
			}
		}
	})
	<-ctx.Done()
	t.Kill(nil)
	err := t.Wait()
	if err != nil && err == parent.Err() {
		// the tomb records the parent's cancellation as its death reason;
		// a requested shutdown is not a step failure
		return nil
	}
	return err
}

// tick runs one gated step/snapshot/publish cycle. sim.Simulator.Step
// already classifies and absorbs every recoverable engine error internally
// (see placeAndUpdate), so any error returned here is fatal by
// construction: tick never has to re-classify it, only decide whether to
// tolerate it, attempt recovery, or escalate.
func (d *Driver) tick() error {
	start := time.Now()

	d.mu.Lock()
	trades, err := d.sim.Step()
	snap := d.sim.Snapshot(d.topN)
	d.mu.Unlock()

	d.recordStepDuration(time.Since(start))
	_ = trades // trades are folded into metrics inside Step; kept for future reporting hooks

	if err == nil {
		d.mu.Lock()
		d.consecutiveErrors = 0
		d.recoveryAttempts = 0
		d.mu.Unlock()
		if d.publisher != nil {
			d.publisher.Publish(snap)
		}
		return nil
	}

	if escErr := d.handleFatalStepError(err); escErr != nil {
		return escErr
	}
	if d.publisher != nil {
		d.publisher.Publish(snap)
	}
	return nil
}

// handleFatalStepError records a fatal step error and, once maxConsecutive
// have landed in a row, attempts recovery by resetting simulator metrics.
// It returns a non-nil error only once maxRecoveryAttempts have failed to
// stop the bleeding, at which point the caller should abort the loop.
func (d *Driver) handleFatalStepError(err error) error {
	d.mu.Lock()
	d.consecutiveErrors++
	d.totalErrors++
	d.recordWindowedErrorLocked(time.Now())
	consecutive := d.consecutiveErrors
	d.mu.Unlock()

	log.Error().Err(err).Int("consecutive", consecutive).Msg("fatal step error")

	if consecutive < d.maxConsecutive {
		return nil
	}

	d.mu.Lock()
	d.consecutiveErrors = 0
	d.recoveryAttempts++
	attempt := d.recoveryAttempts
	d.sim.ResetMetrics()
	d.mu.Unlock()

	log.Error().Int("attempt", attempt).Msg("too many consecutive fatal steps, reset simulator metrics to recover")

	if attempt > maxRecoveryAttempts {
		return fmt.Errorf("step driver: exhausted %d recovery attempts: %w", maxRecoveryAttempts, err)
	}
	return nil
}

// recordWindowedErrorLocked appends now to the error window and prunes
// entries older than errorWindowDuration. Callers must hold d.mu.
func (d *Driver) recordWindowedErrorLocked(now time.Time) {
	d.errorTimestamps = append(d.errorTimestamps, now)
	d.pruneErrorWindowLocked(now)
}

func (d *Driver) pruneErrorWindowLocked(now time.Time) {
	cutoff := now.Add(-errorWindowDuration)
	i := 0
	for i < len(d.errorTimestamps) && d.errorTimestamps[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		d.errorTimestamps = d.errorTimestamps[i:]
	}
}

func (d *Driver) recordStepDuration(elapsed time.Duration) {
	d.mu.Lock()
	d.steps++
	d.stepDurationSumNS += elapsed.Nanoseconds()
	d.mu.Unlock()

	if elapsed > time.Duration(float64(d.interval)*warnStepFraction) {
		log.Warn().
			Dur("step_duration", elapsed).
			Dur("interval", d.interval).
			Msg("step exceeded 80% of the tick interval")
	}
}

// SetActiveConnections is called once a second by cmd/lobsim with the
// control server's connection count, feeding the OVERLOADED threshold.
func (d *Driver) SetActiveConnections(n int) {
	d.mu.Lock()
	d.activeConnections = n
	d.mu.Unlock()
}

// Health reports the current status classification. DEGRADED is driven by
// the windowed fatal-error count, not the lifetime total, so a burst of
// errors that has since aged out of errorWindowDuration stops counting
// against it.
func (d *Driver) Health() Health {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pruneErrorWindowLocked(time.Now())
	recent := len(d.errorTimestamps)

	status := StatusHealthy
	if recent > degradedErrorThreshold {
		status = StatusDegraded
	} else if d.activeConnections > overloadedConnThreshold {
		status = StatusOverloaded
	}

	var avgMS float64
	if d.steps > 0 {
		avgMS = float64(d.stepDurationSumNS) / float64(d.steps) / 1e6
	}

	return Health{
		Status:            status,
		TotalErrors:       d.totalErrors,
		RecentErrors:      recent,
		RecoverableErrors: d.sim.RecoverableErrors,
		ConsecutiveErrors: d.consecutiveErrors,
		SimulationSteps:   d.steps,
		AvgStepDurationMS: avgMS,
		ActiveConnections: d.activeConnections,
	}
}

// PlaceOrder injects a manual order under the engine gate, used by the
// control channel's place_test_order command.
func (d *Driver) PlaceOrder(o book.Order) ([]book.Trade, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sim.PlaceOrder(o)
}

// ResetMetrics zeroes simulator metrics under the engine gate, used by the
// control channel's reset_metrics command.
func (d *Driver) ResetMetrics() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sim.ResetMetrics()
}

// SetSimulationSpeed forwards a speed change to the attached historical
// data source, if any; a simulator with no data source silently accepts
// the call since speed only governs replay pacing.
func (d *Driver) SetSimulationSpeed(speed float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sim.DataSource == nil {
		return nil
	}
	return d.sim.DataSource.SetPlaybackSpeed(speed)
}

// Snapshot takes a gated snapshot outside the regular tick cadence, for
// manual inspection; get_health reports Health, not a snapshot.
func (d *Driver) Snapshot() sim.Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sim.Snapshot(d.topN)
}
