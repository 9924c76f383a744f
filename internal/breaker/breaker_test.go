package breaker

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"k8s.io/apimachinery/pkg/util/clock"
)

var errResource = errors.New("resource down")

func testSettings() Settings {
	return Settings{
		WindowSize:           5,
		FailureRateThreshold: 50,
		OpenWait:             10 * time.Second,
		HalfOpenTrials:       1,
	}
}

func succeed() error { return nil }

func fail() error { return errResource }

func fillWindow(cb *CircuitBreaker, successes int, failures int) {
	for i := 0; i < successes; i++ {
		_ = cb.Execute(succeed)
	}
	for i := 0; i < failures; i++ {
		_ = cb.Execute(fail)
	}
}

func TestOpensWhenFailureRateExceeded(t *testing.T) {
	fc := clock.NewFakeClock(time.Now())
	cb := New("redis", testSettings(), fc)

	fillWindow(cb, 2, 3)
	assert.Equal(t, Open, cb.State())

	called := false
	err := cb.Execute(func() error {
		called = true
		return nil
	})
	assert.True(t, errors.Is(err, ErrOpen))
	assert.False(t, called)
}

func TestStaysClosedBelowThreshold(t *testing.T) {
	fc := clock.NewFakeClock(time.Now())
	cb := New("redis", testSettings(), fc)

	fillWindow(cb, 3, 2)
	assert.Equal(t, Closed, cb.State())
}

func TestNotEvaluatedUntilWindowFull(t *testing.T) {
	fc := clock.NewFakeClock(time.Now())
	cb := New("redis", testSettings(), fc)

	fillWindow(cb, 0, 3)
	assert.Equal(t, Closed, cb.State())
}

func TestHalfOpenProbeClosesOnSuccess(t *testing.T) {
	fc := clock.NewFakeClock(time.Now())
	cb := New("redis", testSettings(), fc)

	fillWindow(cb, 2, 3)
	assert.Equal(t, Open, cb.State())

	fc.Step(10 * time.Second)
	assert.NoError(t, cb.Execute(succeed))
	assert.Equal(t, Closed, cb.State())

	// The window was reset on close, so a single new failure cannot trip it
	assert.Error(t, cb.Execute(fail))
	assert.Equal(t, Closed, cb.State())
}

func TestHalfOpenProbeReopensOnFailure(t *testing.T) {
	fc := clock.NewFakeClock(time.Now())
	cb := New("redis", testSettings(), fc)

	fillWindow(cb, 2, 3)
	fc.Step(10 * time.Second)

	assert.Error(t, cb.Execute(fail))
	assert.Equal(t, Open, cb.State())

	// The wait timer restarted, so calls are still rejected
	err := cb.Execute(succeed)
	assert.True(t, errors.Is(err, ErrOpen))

	fc.Step(10 * time.Second)
	assert.NoError(t, cb.Execute(succeed))
	assert.Equal(t, Closed, cb.State())
}

func TestRejectionsAreNotRecorded(t *testing.T) {
	fc := clock.NewFakeClock(time.Now())
	cb := New("redis", testSettings(), fc)

	fillWindow(cb, 2, 3)
	for i := 0; i < 10; i++ {
		err := cb.Execute(succeed)
		assert.True(t, errors.Is(err, ErrOpen))
	}

	fc.Step(10 * time.Second)
	assert.NoError(t, cb.Execute(succeed))
	assert.Equal(t, Closed, cb.State())
}

func TestLimitedTrialsWhileHalfOpen(t *testing.T) {
	fc := clock.NewFakeClock(time.Now())
	settings := testSettings()
	settings.HalfOpenTrials = 2
	cb := New("redis", settings, fc)

	fillWindow(cb, 2, 3)
	fc.Step(10 * time.Second)

	assert.NoError(t, cb.Execute(succeed))
	assert.Equal(t, HalfOpen, cb.State())
	assert.NoError(t, cb.Execute(succeed))
	assert.Equal(t, Closed, cb.State())
}

func TestRegistryReturnsSameBreakerPerResource(t *testing.T) {
	registry := NewRegistry(testSettings(), map[string]Settings{
		"postgres": {WindowSize: 10, FailureRateThreshold: 40, OpenWait: time.Second, HalfOpenTrials: 1},
	})

	assert.Same(t, registry.Get("redis"), registry.Get("redis"))
	assert.NotSame(t, registry.Get("redis"), registry.Get("postgres"))
	assert.Equal(t, 10, registry.Get("postgres").settings.WindowSize)
}
