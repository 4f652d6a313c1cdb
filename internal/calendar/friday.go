// Package calendar resolves weekly option expirations (Fridays) and the
// weekday evaluation mode in the configured civil timezone.
package calendar

import (
	"fmt"
	"time"

	"github.com/laifehacker/lso-roll-calculator/internal/config"
	"github.com/laifehacker/lso-roll-calculator/internal/model"
)

// Sequencer maps "N weeks out" to expiration Fridays.
// It holds no mutable state and is safe for concurrent use.
type Sequencer struct {
	tz *time.Location
}

// New creates a sequencer for the location's timezone.
func New(loc config.Location) *Sequencer {
	return &Sequencer{tz: loc.TZ()}
}

// NextFriday returns the date of the Friday weeksOut weeks after the first
// upcoming Friday. The first upcoming Friday is 1 to 7 days after the civil
// date of now, so on a Friday weeksOut=0 resolves to next week.
// The result is midnight in the configured timezone.
func (s *Sequencer) NextFriday(weeksOut int, now time.Time) time.Time {
	if weeksOut < 0 {
		weeksOut = 0
	}

	civil := now.In(s.tz)
	daysUntilFriday := int(time.Friday) - int(civil.Weekday())
	if daysUntilFriday <= 0 {
		daysUntilFriday += 7
	}

	year, month, day := civil.Date()
	return time.Date(year, month, day+daysUntilFriday+weeksOut*7, 0, 0, 0, 0, s.tz)
}

// IsFriday reports whether now falls on a Friday in the configured timezone.
func (s *Sequencer) IsFriday(now time.Time) bool {
	return now.In(s.tz).Weekday() == time.Friday
}

// Mode returns the evaluation mode active at now.
func (s *Sequencer) Mode(now time.Time) model.EvaluationMode {
	if s.IsFriday(now) {
		return model.ModeFriday
	}
	return model.ModeWeekdayOther
}

// Upcoming returns n consecutive expiration Fridays starting at weeksOut=0.
// The tile matching targetWeeks is flagged when targetWeeks > 0.
func (s *Sequencer) Upcoming(n int, now time.Time, targetWeeks int) []model.FridayTile {
	tiles := make([]model.FridayTile, 0, n)
	for i := 0; i < n; i++ {
		label := "This Fri"
		if i > 0 {
			label = fmt.Sprintf("+%d wk", i)
		}
		tiles = append(tiles, model.FridayTile{
			WeekNum:  i,
			Date:     s.NextFriday(i, now),
			Label:    label,
			IsTarget: targetWeeks > 0 && targetWeeks == i,
		})
	}
	return tiles
}
