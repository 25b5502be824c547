// Package fade converges a voltage output to a requested target with a
// smooth, interruptible, time-bounded ramp. At most one ramp is ever active
// and the most recent request always wins.
package fade

import (
	"math"
	"sync"
	"time"

	"github.com/fogleman/ease"
	"github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	"voltlight/logger"
	"voltlight/utils"
)

const (
	// stepPeriod is the sample rate of the ramp worker (50 Hz).
	stepPeriod = 20 * time.Millisecond

	minRampDuration = 50 * time.Millisecond
	maxRampDuration = 5 * time.Second

	// targetEpsilon is the delta below which two voltages count as the same
	// target and no ramp is started.
	targetEpsilon = 0.01

	// cancelJoinWait bounds how long a retarget waits for the previous worker
	// to observe cancellation.
	cancelJoinWait = 100 * time.Millisecond

	// shutdownWait bounds how long Shutdown waits for the worker to exit.
	shutdownWait = 500 * time.Millisecond
)

// Output receives the interpolated voltage at every ramp step. Writes happen
// at up to 50 Hz and are never issued concurrently.
type Output interface {
	Write(voltage float64) error
}

// Engine owns the current/target voltage pair and the single ramp worker.
// All fields are guarded by mu; the worker takes the same lock for every
// device write, so a reader can never observe a torn update and a superseded
// worker can never interleave writes with its replacement.
type Engine struct {
	out   Output
	span  float64
	base  time.Duration
	curve ease.Function
	clock clock.Clock
	log   *logrus.Logger

	mu      sync.Mutex
	current float64
	target  float64
	cancel  chan struct{}
	done    chan struct{}
}

// New returns an idle engine at 0V. base is the fade time for a full-span
// transition; shorter deltas fade proportionally faster.
func New(out Output, span float64, base time.Duration, clk clock.Clock) *Engine {
	return &Engine{
		out:   out,
		span:  span,
		base:  base,
		curve: ease.Linear,
		clock: clk,
		log:   logger.GetProjectLogger(),
	}
}

// SetCurve replaces the interpolation curve; the default is linear. A ramp
// already in flight keeps the curve it started with.
func (e *Engine) SetCurve(fn ease.Function) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.curve = fn
}

// CurrentVoltage reports the most recently applied output voltage.
func (e *Engine) CurrentVoltage() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// RequestTarget asks the engine to converge the output to the given voltage.
// It never blocks for the duration of a ramp: it only swaps state and, when
// needed, waits a bounded interval for the previous worker to stand down.
func (e *Engine) RequestTarget(v float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.done != nil {
		select {
		case <-e.done:
			// previous worker already finished on its own
			e.cancel, e.done = nil, nil
		default:
			if math.Abs(v-e.target) < targetEpsilon {
				// the active ramp is already converging there
				return
			}
			e.cancelWorkerLocked(cancelJoinWait)
		}
	}

	e.target = v
	if math.Abs(v-e.current) < targetEpsilon {
		return
	}

	cancel := make(chan struct{})
	done := make(chan struct{})
	e.cancel, e.done = cancel, done
	go e.run(e.current, v, e.curve, cancel, done)
}

// Shutdown cancels any in-flight ramp and waits a bounded interval for the
// worker to stop.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelWorkerLocked(shutdownWait)
}

// cancelWorkerLocked signals the active worker and waits up to the given
// interval for it to exit. The worker re-checks cancellation under the lock
// before every device write, so even when this wait times out the old worker
// can no longer touch the output.
func (e *Engine) cancelWorkerLocked(wait time.Duration) {
	if e.done == nil {
		return
	}
	close(e.cancel)
	select {
	case <-e.done:
	case <-e.clock.After(wait):
	}
	e.cancel, e.done = nil, nil
}

// run is the ramp worker. The curve is snapshotted by the caller under the
// lock. Cancellation is cooperative: the cancel channel is checked at every
// step boundary, so a superseding request is observed within one step period.
func (e *Engine) run(start, target float64, curve ease.Function, cancel, done chan struct{}) {
	defer close(done)

	duration := rampDuration(target-start, e.span, e.base)
	steps := rampSteps(duration)
	startTime := e.clock.Now()

	e.log.WithFields(logrus.Fields{
		"from":     start,
		"to":       target,
		"duration": duration,
		"steps":    steps,
	}).Debug("starting fade")

	for i := 0; i <= steps; i++ {
		select {
		case <-cancel:
			// the superseding request owns convergence to its own target
			return
		default:
		}

		progress := float64(i) / float64(steps)
		v := utils.Lerp(start, target, curve(progress))
		if !e.applyStep(v, cancel) {
			return
		}

		// Sleep until the absolute deadline of the next step so device write
		// latency cannot accumulate into clock drift.
		wait := startTime.Add(time.Duration(i+1) * stepPeriod).Sub(e.clock.Now())
		if wait > 0 {
			select {
			case <-cancel:
				return
			case <-e.clock.After(wait):
			}
		}
	}

	// Land exactly on the target despite interpolation rounding.
	e.applyStep(target, cancel)
}

// applyStep publishes one interpolated value to the output under the engine
// lock. It reports false if the ramp has been superseded.
func (e *Engine) applyStep(v float64, cancel chan struct{}) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	select {
	case <-cancel:
		return false
	default:
	}

	if err := e.out.Write(v); err != nil {
		// Leave current at the last value that actually reached the device;
		// the next request starts a fresh ramp from there.
		e.log.WithError(err).Warn("device write failed mid-fade")
		return true
	}
	e.current = v
	return true
}

// rampDuration scales the full-span fade time by the distance to travel, so
// short hops settle quickly. The result is bounded away from instantaneous
// (visible pop) and from sluggish.
func rampDuration(delta, span float64, base time.Duration) time.Duration {
	if span <= 0 {
		return minRampDuration
	}
	d := time.Duration(float64(base) * math.Abs(delta) / span)
	return utils.Clamp(d, minRampDuration, maxRampDuration)
}

func rampSteps(d time.Duration) int {
	steps := int(math.Round(float64(d) / float64(stepPeriod)))
	if steps < 1 {
		return 1
	}
	return steps
}
