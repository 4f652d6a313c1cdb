package theme

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/laifehacker/lso-roll-calculator/internal/config"
	"github.com/laifehacker/lso-roll-calculator/internal/model"
	"github.com/laifehacker/lso-roll-calculator/internal/solar"
)

// fakeClock only moves when Advance is called. Every armed timer is
// reported on armed so tests can wait for the loop to go to sleep.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
	armed  chan time.Duration
}

type fakeTimer struct {
	c        chan time.Time
	deadline time.Time
	done     bool
	clock    *fakeClock
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now, armed: make(chan time.Duration, 16)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) NewTimer(d time.Duration) Timer {
	f.mu.Lock()
	t := &fakeTimer{c: make(chan time.Time, 1), deadline: f.now.Add(d), clock: f}
	f.timers = append(f.timers, t)
	f.mu.Unlock()
	f.armed <- d
	return t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
	for _, t := range f.timers {
		if !t.done && !t.deadline.After(f.now) {
			t.done = true
			t.c <- f.now
		}
	}
}

func (f *fakeClock) pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.timers {
		if !t.done {
			n++
		}
	}
	return n
}

func (t *fakeTimer) C() <-chan time.Time { return t.c }

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	wasActive := !t.done
	t.done = true
	return wasActive
}

func waitArmed(t *testing.T, c *fakeClock) time.Duration {
	t.Helper()
	select {
	case d := <-c.armed:
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not arm a timer")
		return 0
	}
}

func amsterdam() *solar.Calculator {
	return solar.New(config.DefaultLocation())
}

func at(hour, min, sec int) time.Time {
	return time.Date(2026, 6, 21, hour, min, sec, 0, time.UTC)
}

func TestEvaluate(t *testing.T) {
	calc := amsterdam()

	tests := []struct {
		name   string
		now    time.Time
		mode   model.ThemeMode
		target time.Time
		delay  time.Duration
	}{
		{"before sunrise", at(2, 0, 0), model.ThemeNight, at(3, 18, 0), 78*time.Minute + WakeMargin},
		{"exactly sunrise", at(3, 18, 0), model.ThemeDay, at(20, 6, 0), 16*time.Hour + 48*time.Minute + WakeMargin},
		{"midday", at(12, 0, 0), model.ThemeDay, at(20, 6, 0), 8*time.Hour + 6*time.Minute + WakeMargin},
		{"just before sunset clamps", at(20, 5, 58), model.ThemeDay, at(20, 6, 0), MinDelay},
		{"exactly sunset", at(20, 6, 0), model.ThemeNight, time.Time{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := Evaluate(calc, tt.now)
			assert.Equal(t, tt.mode, ev.Mode)
			if !tt.target.IsZero() {
				assert.True(t, tt.target.Equal(ev.Target), "target %s, want %s", ev.Target, tt.target)
				assert.Equal(t, tt.delay, ev.Delay)
			}
			assert.True(t, ev.NextWake().After(tt.now))
		})
	}
}

func TestEvaluate_AfterSunsetTargetsTomorrowSunrise(t *testing.T) {
	ev := Evaluate(amsterdam(), at(21, 0, 0))

	assert.Equal(t, model.ThemeNight, ev.Mode)
	assert.Equal(t, "2026-06-22", ev.Target.Format("2006-01-02"))
	assert.True(t, ev.Target.After(at(21, 0, 0)))
	assert.Less(t, ev.Delay, 12*time.Hour)
}

func TestEvaluate_PolarFallsBackToFullDay(t *testing.T) {
	svalbard := solar.New(config.Location{Latitude: 78.22, Longitude: 15.65, Zenith: config.DefaultZenith, Timezone: "UTC"})

	ev := Evaluate(svalbard, at(12, 0, 0))
	assert.Equal(t, model.ThemeNight, ev.Mode)
	assert.Nil(t, ev.Sun.Sunrise)
	assert.Equal(t, MaxDelay, ev.Delay)
}

func TestEvaluate_SweepProperties(t *testing.T) {
	calc := amsterdam()
	// covers the spring DST switch on 29 March
	start := time.Date(2026, 3, 27, 0, 0, 0, 0, time.UTC)

	for now := start; now.Before(start.Add(96 * time.Hour)); now = now.Add(7 * time.Minute) {
		ev := Evaluate(calc, now)
		sun := calc.ScheduleAt(now)

		wantDay := sun.Complete() && now.After(*sun.Sunrise) && now.Before(*sun.Sunset)
		if wantDay {
			require.Equal(t, model.ThemeDay, ev.Mode, "at %s", now)
		} else if sun.Complete() && (now.Before(*sun.Sunrise) || !now.Before(*sun.Sunset)) {
			require.Equal(t, model.ThemeNight, ev.Mode, "at %s", now)
		}

		wake := ev.NextWake()
		require.True(t, wake.After(now), "next wake must be in the future at %s", now)
		require.False(t, wake.After(now.Add(MaxDelay)), "next wake must be within 24h at %s", now)
		require.GreaterOrEqual(t, ev.Delay, MinDelay)
	}
}

func TestScheduler_StateMachine(t *testing.T) {
	clock := newFakeClock(at(12, 0, 0))
	s := NewScheduler(amsterdam()).WithClock(clock)

	var changes []model.ThemeMode
	s.WithChangeCallback(func(prev, next model.ThemeState) {
		changes = append(changes, next.Mode)
	})

	st := s.State()
	assert.Equal(t, model.ThemeDay, st.Mode)
	assert.Equal(t, model.ControlAuto, st.Control)
	require.NotNil(t, st.Sun.Sunrise)

	// Auto -> Manual pins the opposite of the current mode
	st = s.Toggle()
	assert.Equal(t, model.ThemeNight, st.Mode)
	assert.Equal(t, model.ControlManual, st.Control)

	// Manual flips the pin
	st = s.Toggle()
	assert.Equal(t, model.ThemeDay, st.Mode)

	// A timer firing after sunset refreshes wake and sun but keeps the pin
	clock.Advance(9 * time.Hour)
	st = s.fire()
	assert.Equal(t, model.ThemeDay, st.Mode, "manual pin wins over the timer")
	assert.Equal(t, model.ControlManual, st.Control)
	assert.True(t, st.NextWake.After(clock.Now()))
	assert.Equal(t, clock.Now(), st.UpdatedAt)

	// Reset returns to the solar mode immediately
	st = s.ResetToAuto()
	assert.Equal(t, model.ThemeNight, st.Mode)
	assert.Equal(t, model.ControlAuto, st.Control)

	assert.Equal(t, []model.ThemeMode{model.ThemeNight, model.ThemeDay, model.ThemeNight}, changes)
}

func TestScheduler_RunRearmsAndStops(t *testing.T) {
	clock := newFakeClock(at(10, 0, 0))
	s := NewScheduler(amsterdam()).WithClock(clock)

	stop := s.Start(context.Background())

	d := waitArmed(t, clock)
	assert.Equal(t, 10*time.Hour+6*time.Minute+WakeMargin, d, "first wake is sunset plus margin")
	assert.Equal(t, model.ThemeDay, s.State().Mode)

	clock.Advance(d)
	d2 := waitArmed(t, clock)

	st := s.State()
	assert.Equal(t, model.ThemeNight, st.Mode)
	assert.Equal(t, "2026-06-22", st.NextWake.Format("2006-01-02"))
	assert.Equal(t, d2, st.NextWake.Sub(clock.Now()))
	assert.Equal(t, 1, clock.pending(), "only one timer outstanding")

	stop()
	assert.Equal(t, 0, clock.pending(), "stop cancels the pending wake")

	before := s.State()
	clock.Advance(48 * time.Hour)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, before.UpdatedAt, s.State().UpdatedAt, "no evaluation after stop")

	select {
	case extra := <-clock.armed:
		t.Fatalf("timer armed after stop: %s", extra)
	default:
	}
}

func TestScheduler_ResetRearmsLoop(t *testing.T) {
	clock := newFakeClock(at(12, 0, 0))
	s := NewScheduler(amsterdam()).WithClock(clock)

	stop := s.Start(context.Background())
	defer stop()

	waitArmed(t, clock)
	s.Toggle()
	s.ResetToAuto()

	waitArmed(t, clock)
	assert.Equal(t, model.ThemeDay, s.State().Mode)
	assert.Equal(t, 1, clock.pending())
}

func TestScheduler_RunTwice(t *testing.T) {
	clock := newFakeClock(at(12, 0, 0))
	s := NewScheduler(amsterdam()).WithClock(clock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = s.Run(ctx) }()
	waitArmed(t, clock)

	assert.ErrorIs(t, s.Run(ctx), ErrAlreadyRunning)
}
