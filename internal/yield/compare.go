// Package yield compares roll horizons by premium normalised per week.
package yield

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/laifehacker/lso-roll-calculator/internal/calendar"
	"github.com/laifehacker/lso-roll-calculator/internal/model"
	"github.com/laifehacker/lso-roll-calculator/internal/validation"
)

var hundred = decimal.NewFromInt(100)

// Compare annotates every candidate with its premium percentage and weekly
// yield and selects the highest weekly yield. Ties keep the first candidate
// in input order. Candidates without a positive premium are returned marked
// invalid and never selected. A non-positive strike yields an empty result.
func Compare(strike decimal.Decimal, candidates []model.PremiumCandidate) model.Comparison {
	result := model.Comparison{Strike: strike}
	if !strike.IsPositive() {
		return result
	}

	result.Candidates = make([]model.PremiumCandidate, len(candidates))
	bestIdx := -1

	for i, c := range candidates {
		c.Valid = c.ObservedPremium.IsPositive() && c.WeeksOut >= 1
		c.PremiumPct = decimal.Zero
		c.WeeklyYieldPct = decimal.Zero

		if c.Valid {
			c.PremiumPct = c.ObservedPremium.Div(strike).Mul(hundred)
			c.WeeklyYieldPct = c.PremiumPct.Div(decimal.NewFromInt(int64(c.WeeksOut)))

			if bestIdx < 0 || c.WeeklyYieldPct.GreaterThan(result.Candidates[bestIdx].WeeklyYieldPct) {
				bestIdx = i
			}
		}

		result.Candidates[i] = c
	}

	if bestIdx >= 0 {
		best := result.Candidates[bestIdx]
		result.Best = &best

		logrus.WithFields(logrus.Fields{
			"strike":       strike.String(),
			"best_label":   best.Label,
			"weekly_yield": best.WeeklyYieldPct.StringFixed(2),
		}).Debug("Premium comparison complete")
	}

	return result
}

// Comparator builds candidates from raw form input.
type Comparator struct {
	seq  *calendar.Sequencer
	opts validation.InputOptions
}

// NewComparator creates a comparator resolving expiration dates with seq.
func NewComparator(seq *calendar.Sequencer, opts validation.InputOptions) *Comparator {
	return &Comparator{seq: seq, opts: opts}
}

// Candidates builds the +1, +2, +3 week horizons and the custom horizon.
func (c *Comparator) Candidates(premiums validation.PremiumInputs, customWeeks string, now time.Time) []model.PremiumCandidate {
	weeksN := validation.ParseWeeks(customWeeks, c.opts)

	horizons := []struct {
		weeks int
		raw   string
	}{
		{1, premiums.Week1},
		{2, premiums.Week2},
		{3, premiums.Week3},
		{weeksN, premiums.WeekN},
	}

	candidates := make([]model.PremiumCandidate, 0, len(horizons))
	for _, h := range horizons {
		candidates = append(candidates, model.PremiumCandidate{
			Label:           fmt.Sprintf("+%d wk", h.weeks),
			WeeksOut:        h.weeks,
			TargetDate:      c.seq.NextFriday(h.weeks, now),
			ObservedPremium: validation.ParsePremium(h.raw),
		})
	}
	return candidates
}

// Evaluate parses a comparison request and compares its candidates.
// An absent strike yields an empty comparison.
func (c *Comparator) Evaluate(req validation.CompareRequest, now time.Time) model.Comparison {
	strike, ok := validation.ParsePrice(req.Strike)
	if !ok {
		return model.Comparison{}
	}
	return Compare(strike, c.Candidates(req.Premiums, req.CustomWeeks, now))
}
