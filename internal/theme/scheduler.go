// Package theme keeps the day/night display mode in step with local sunrise
// and sunset.
//
// The scheduler is a two-state machine (Auto, Manual) with the transitions
// Toggle, ResetToAuto and a timer firing. Only a timer firing while Auto
// writes the mode from the solar computation; while Manual the pinned mode
// wins until ResetToAuto is called. Run re-arms a single timer for the next
// sunrise or sunset until its context is cancelled.
package theme

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/laifehacker/lso-roll-calculator/internal/model"
	"github.com/laifehacker/lso-roll-calculator/internal/solar"
)

// Wake delay bounds. The margin is added past the target so the timer never
// fires fractionally before the boundary.
const (
	MinDelay   = 5 * time.Second
	MaxDelay   = 24 * time.Hour
	WakeMargin = time.Second
)

// ErrAlreadyRunning is returned when Run is called on a running scheduler.
var ErrAlreadyRunning = errors.New("theme scheduler already running")

// Evaluation is the solar-derived mode at one instant and when to look again.
type Evaluation struct {
	At     time.Time
	Sun    model.SolarSchedule
	Mode   model.ThemeMode
	Target time.Time
	Delay  time.Duration
}

// NextWake is the instant the scheduler will re-evaluate.
func (e Evaluation) NextWake() time.Time {
	return e.At.Add(e.Delay)
}

// Evaluate computes the mode at now and the next boundary to wake for.
func Evaluate(calc *solar.Calculator, now time.Time) Evaluation {
	sun := calc.ScheduleAt(now)

	mode := model.ThemeNight
	if sun.Complete() && !now.Before(*sun.Sunrise) && now.Before(*sun.Sunset) {
		mode = model.ThemeDay
	}

	var target time.Time
	switch {
	case !sun.Complete():
		target = now.Add(MaxDelay)
	case now.Before(*sun.Sunrise):
		target = *sun.Sunrise
	case now.Before(*sun.Sunset):
		target = *sun.Sunset
	default:
		// next civil date, not now+24h: DST days are 23 or 25 hours long
		local := now.In(calc.Location().TZ())
		tomorrow := calc.Schedule(time.Date(local.Year(), local.Month(), local.Day()+1, 12, 0, 0, 0, time.UTC))
		if tomorrow.Sunrise != nil {
			target = *tomorrow.Sunrise
		} else {
			target = now.Add(MaxDelay)
		}
	}

	return Evaluation{
		At:     now,
		Sun:    sun,
		Mode:   mode,
		Target: target,
		Delay:  clampDelay(target.Sub(now) + WakeMargin),
	}
}

func clampDelay(d time.Duration) time.Duration {
	if d < MinDelay {
		return MinDelay
	}
	if d > MaxDelay {
		return MaxDelay
	}
	return d
}

// Scheduler owns the published ThemeState.
type Scheduler struct {
	calc  *solar.Calculator
	clock Clock

	mu      sync.RWMutex
	state   model.ThemeState
	running bool

	// rearm wakes the loop early after ResetToAuto
	rearm chan struct{}

	onChange func(prev, next model.ThemeState)
}

// NewScheduler creates a scheduler and performs the initial evaluation.
func NewScheduler(calc *solar.Calculator) *Scheduler {
	s := &Scheduler{
		calc:  calc,
		clock: SystemClock{},
		rearm: make(chan struct{}, 1),
		state: model.ThemeState{Mode: model.ThemeNight, Control: model.ControlAuto},
	}
	s.fire()
	return s
}

// WithClock replaces the clock and re-evaluates against it
func (s *Scheduler) WithClock(c Clock) *Scheduler {
	s.mu.Lock()
	s.clock = c
	s.mu.Unlock()
	s.fire()
	return s
}

// WithChangeCallback registers a function called after every mode change.
// It runs on the goroutine that caused the change, outside the state lock.
func (s *Scheduler) WithChangeCallback(fn func(prev, next model.ThemeState)) *Scheduler {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
	return s
}

// State returns the latest published state
func (s *Scheduler) State() model.ThemeState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Toggle pins the opposite of the current mode. In Auto this switches to
// Manual; in Manual it flips the pinned mode.
func (s *Scheduler) Toggle() model.ThemeState {
	s.mu.Lock()
	prev := s.state
	s.state.Control = model.ControlManual
	s.state.Mode = prev.Mode.Opposite()
	s.state.UpdatedAt = s.clock.Now()
	next := s.state
	cb := s.onChange
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"from": prev.Mode,
		"to":   next.Mode,
	}).Info("Theme manually overridden")

	if cb != nil {
		cb(prev, next)
	}
	return next
}

// ResetToAuto clears the manual pin and re-evaluates immediately.
func (s *Scheduler) ResetToAuto() model.ThemeState {
	s.mu.Lock()
	s.state.Control = model.ControlAuto
	s.mu.Unlock()

	logrus.Info("Theme returned to automatic control")
	next := s.fire()

	// wake the loop so it re-arms from the fresh evaluation
	select {
	case s.rearm <- struct{}{}:
	default:
	}
	return next
}

// Run evaluates, sleeps until the next boundary and repeats until ctx is
// cancelled. At most one timer is outstanding; it is stopped before every
// re-arm and on exit, and no evaluation happens once ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		state := s.fire()
		delay := state.NextWake.Sub(state.UpdatedAt)

		timer := s.clock.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			logrus.Debug("Theme scheduler stopped")
			return ctx.Err()
		case <-s.rearm:
			timer.Stop()
		case <-timer.C():
		}
	}
}

// Start runs the scheduler on its own goroutine. The returned stop function
// cancels the pending wake and blocks until the loop has exited.
func (s *Scheduler) Start(parent context.Context) (stop func()) {
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})

	go func() {
		defer close(done)
		if err := s.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logrus.Warnf("Theme scheduler exited: %v", err)
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

// fire is the timer transition: refresh sun times and next wake, and the
// mode only while under automatic control.
func (s *Scheduler) fire() model.ThemeState {
	s.mu.RLock()
	clock := s.clock
	s.mu.RUnlock()

	now := clock.Now()
	ev := Evaluate(s.calc, now)

	s.mu.Lock()
	prev := s.state
	s.state.Sun = ev.Sun
	s.state.NextWake = ev.NextWake()
	s.state.UpdatedAt = now
	if s.state.Control == model.ControlAuto {
		s.state.Mode = ev.Mode
	}
	next := s.state
	cb := s.onChange
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"mode":      next.Mode,
		"control":   next.Control,
		"next_wake": next.NextWake.Format(time.RFC3339),
	}).Debug("Theme evaluated")

	if prev.Mode != next.Mode {
		logrus.WithFields(logrus.Fields{
			"from": prev.Mode,
			"to":   next.Mode,
		}).Info("Theme mode changed")
		if cb != nil {
			cb(prev, next)
		}
	}
	return next
}
