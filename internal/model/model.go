// Package model defines the core data structures for the roll advisor.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is a covered short option evaluated against the underlying price.
// Both values must be strictly positive.
type Position struct {
	Strike       decimal.Decimal `json:"strike"`
	CurrentPrice decimal.Decimal `json:"current_price"`
}

// Valid reports whether both prices are strictly positive.
func (p Position) Valid() bool {
	return p.Strike.IsPositive() && p.CurrentPrice.IsPositive()
}

// Moneyness returns (strike - currentPrice) / strike * 100.
// Positive means in-the-money, negative out-of-the-money.
func (p Position) Moneyness() decimal.Decimal {
	return p.Strike.Sub(p.CurrentPrice).Div(p.Strike).Mul(decimal.NewFromInt(100))
}

// AbsDiff is the absolute dollar distance between strike and price.
func (p Position) AbsDiff() decimal.Decimal {
	return p.Strike.Sub(p.CurrentPrice).Abs()
}

// OTM reports whether the underlying trades above the strike.
func (p Position) OTM() bool {
	return p.CurrentPrice.GreaterThan(p.Strike)
}

// EvaluationMode selects which rule set applies on a given civil date.
type EvaluationMode string

const (
	ModeFriday       EvaluationMode = "friday"
	ModeWeekdayOther EvaluationMode = "weekday"
)

// Status is the recommendation category.
type Status string

const (
	StatusOTM     Status = "OTM"
	StatusCTM     Status = "CTM"
	StatusITM     Status = "ITM"
	StatusITMSafe Status = "ITM_SAFE"
)

// Recommendation is the outcome of one roll evaluation.
type Recommendation struct {
	Status       Status          `json:"status"`
	Tier         string          `json:"tier"`
	WeeksToRoll  int             `json:"weeks_to_roll"`
	TargetDate   *time.Time      `json:"target_date"`
	Advice       string          `json:"advice"`
	Percentage   decimal.Decimal `json:"percentage"`
	AbsoluteDiff decimal.Decimal `json:"absolute_diff"`
	Mode         EvaluationMode  `json:"mode"`
}

// Consistent checks weeksToRoll == 0 <=> targetDate == nil <=> status in {OTM, ITM_SAFE}.
func (r Recommendation) Consistent() bool {
	noRoll := r.WeeksToRoll == 0
	noDate := r.TargetDate == nil
	holdStatus := r.Status == StatusOTM || r.Status == StatusITMSafe
	return noRoll == noDate && noDate == holdStatus
}

// RollTier is one row of the tier legend shown for the active mode.
type RollTier struct {
	Range       string `json:"range"`
	Description string `json:"description"`
	Weeks       int    `json:"weeks"`
	Label       string `json:"label"`
}

// FridayTile is one upcoming expiration Friday.
type FridayTile struct {
	WeekNum  int       `json:"week_num"`
	Date     time.Time `json:"date"`
	Label    string    `json:"label"`
	IsTarget bool      `json:"is_target"`
}

// SolarSchedule holds the UTC sunrise and sunset for one civil date.
// A nil event does not occur on that date at the configured latitude.
type SolarSchedule struct {
	Date    time.Time  `json:"date"`
	Sunrise *time.Time `json:"sunrise"`
	Sunset  *time.Time `json:"sunset"`
}

// Complete reports whether both events occur.
func (s SolarSchedule) Complete() bool {
	return s.Sunrise != nil && s.Sunset != nil
}

// ThemeMode is the day/night display mode.
type ThemeMode string

const (
	ThemeDay   ThemeMode = "day"
	ThemeNight ThemeMode = "night"
)

// Opposite returns the other mode.
func (m ThemeMode) Opposite() ThemeMode {
	if m == ThemeDay {
		return ThemeNight
	}
	return ThemeDay
}

// ThemeControl tells whether the mode follows the sun or a manual pin.
type ThemeControl string

const (
	ControlAuto   ThemeControl = "auto"
	ControlManual ThemeControl = "manual"
)

// ThemeState is the published state of the day/night scheduler.
type ThemeState struct {
	Mode      ThemeMode     `json:"mode"`
	Control   ThemeControl  `json:"control"`
	NextWake  time.Time     `json:"next_wake"`
	Sun       SolarSchedule `json:"sun"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// PremiumCandidate is one roll horizon with its observed premium.
type PremiumCandidate struct {
	Label           string          `json:"label"`
	WeeksOut        int             `json:"weeks_out"`
	TargetDate      time.Time       `json:"target_date"`
	ObservedPremium decimal.Decimal `json:"observed_premium"`

	// Derived by the comparator
	PremiumPct     decimal.Decimal `json:"premium_pct"`
	WeeklyYieldPct decimal.Decimal `json:"weekly_yield_pct"`
	Valid          bool            `json:"valid"`
}

// Comparison is the annotated candidate set and the best weekly yield.
type Comparison struct {
	Strike     decimal.Decimal    `json:"strike"`
	Candidates []PremiumCandidate `json:"candidates"`
	Best       *PremiumCandidate  `json:"best"`
}

// DecisionEvent is a recommendation handed to the export pipeline.
type DecisionEvent struct {
	Position       Position       `json:"position"`
	Recommendation Recommendation `json:"recommendation"`
	EvaluatedAt    time.Time      `json:"evaluated_at"`
}
