package breaker

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"k8s.io/apimachinery/pkg/util/clock"
)

// ErrOpen is returned when a call is rejected because the breaker is open.
// It is distinct from a real resource error and is never recorded in the
// breaker's own window, which would otherwise amplify the failure rate.
var ErrOpen = errors.New("circuit breaker is open")

type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "CLOSED"
	case Open:
		return "OPEN"
	case HalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Settings controls when a breaker trips and how it recovers.
type Settings struct {
	// Number of call outcomes kept in the sliding window
	WindowSize int
	// Percentage of failures over a full window at which the breaker opens
	FailureRateThreshold float64
	// How long the breaker stays open before probing the resource again
	OpenWait time.Duration
	// Number of trial calls allowed through while half open
	HalfOpenTrials int
}

func (s Settings) withDefaults() Settings {
	if s.WindowSize <= 0 {
		s.WindowSize = 5
	}
	if s.FailureRateThreshold <= 0 {
		s.FailureRateThreshold = 50
	}
	if s.OpenWait <= 0 {
		s.OpenWait = 10 * time.Second
	}
	if s.HalfOpenTrials <= 0 {
		s.HalfOpenTrials = 1
	}
	return s
}

// CircuitBreaker guards calls to a single named external resource.  State
// transitions are driven by the failure rate over a count-based sliding window
// of the most recent call outcomes.  Safe for concurrent use.
type CircuitBreaker struct {
	name     string
	settings Settings
	clock    clock.PassiveClock

	mu             sync.Mutex
	state          State
	outcomes       []bool // ring buffer of failures, true = failed call
	next           int
	recorded       int
	openedAt       time.Time
	trialsAllowed  int
	trialSuccesses int
}

func New(name string, settings Settings, clk clock.PassiveClock) *CircuitBreaker {
	settings = settings.withDefaults()
	return &CircuitBreaker{
		name:     name,
		settings: settings,
		clock:    clk,
		outcomes: make([]bool, settings.WindowSize),
	}
}

// Execute runs call through the breaker.  When the breaker rejects the call,
// the returned error wraps ErrOpen and the call is never invoked; callers must
// supply their own fallback behaviour for that case.
func (cb *CircuitBreaker) Execute(call func() error) error {
	if err := cb.allow(); err != nil {
		return err
	}
	err := call()
	cb.record(err == nil)
	return err
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case Closed:
		return nil
	case Open:
		if cb.clock.Since(cb.openedAt) < cb.settings.OpenWait {
			return errors.Wrapf(ErrOpen, "calls to %s are being rejected", cb.name)
		}
		cb.transition(HalfOpen)
		cb.trialsAllowed = 1
		cb.trialSuccesses = 0
		return nil
	case HalfOpen:
		if cb.trialsAllowed < cb.settings.HalfOpenTrials {
			cb.trialsAllowed++
			return nil
		}
		return errors.Wrapf(ErrOpen, "calls to %s are being rejected while half open", cb.name)
	}
	return nil
}

func (cb *CircuitBreaker) record(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case Closed:
		cb.outcomes[cb.next] = !success
		cb.next = (cb.next + 1) % cb.settings.WindowSize
		if cb.recorded < cb.settings.WindowSize {
			cb.recorded++
		}
		// Rate is only meaningful once a full window has been observed
		if cb.recorded == cb.settings.WindowSize && cb.failureRate() >= cb.settings.FailureRateThreshold {
			cb.trip()
		}
	case HalfOpen:
		if !success {
			cb.trip()
			return
		}
		cb.trialSuccesses++
		if cb.trialSuccesses >= cb.settings.HalfOpenTrials {
			cb.transition(Closed)
			cb.resetWindow()
		}
	case Open:
		// A slow call that started before the breaker opened; its outcome no
		// longer influences the window
	}
}

func (cb *CircuitBreaker) trip() {
	cb.transition(Open)
	cb.openedAt = cb.clock.Now()
	cb.resetWindow()
}

func (cb *CircuitBreaker) resetWindow() {
	for i := range cb.outcomes {
		cb.outcomes[i] = false
	}
	cb.next = 0
	cb.recorded = 0
}

func (cb *CircuitBreaker) failureRate() float64 {
	failures := 0
	for _, failed := range cb.outcomes {
		if failed {
			failures++
		}
	}
	return float64(failures) / float64(cb.recorded) * 100
}

func (cb *CircuitBreaker) transition(to State) {
	log.Infof("Circuit breaker %s state changed from %s to %s", cb.name, cb.state, to)
	cb.state = to
}
