// Package roll decides whether and how far to roll a covered short option.
//
// The decision is a pure function of strike, current price and the
// evaluation mode (Friday or any other day). Percentages are relative to the
// strike and computed in decimal arithmetic so the tier boundaries at 1, 5,
// 10, 15 and 20 percent are exact. A boundary value belongs to the lower tier.
package roll

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/laifehacker/lso-roll-calculator/internal/calendar"
	"github.com/laifehacker/lso-roll-calculator/internal/model"
	"github.com/laifehacker/lso-roll-calculator/internal/validation"
)

// Advice texts shown with each recommendation.
const (
	AdviceShortestTerm = "Roll to the shortest term for a good premium"
	AdviceLetExpire    = "Let it expire!"
	AdviceNoAction     = "No action needed"
	AdviceHoldWeekday  = "No action needed (Mon-Thu)"
	AdviceRoll1        = "Roll 1 week, keep 1%/week premium"
	AdviceRoll2        = "Roll 2 weeks, keep 1%/week premium"
	AdviceRoll3        = "Roll 3 weeks, keep 1%/week premium"
	AdviceDeepITM      = "Max 6 weeks, check 21 days before expiry!"
)

// Options configures the engine
type Options struct {
	// CTMMaxPct is the widest OTM distance that still counts as close-to-money on Fridays
	CTMMaxPct decimal.Decimal

	// CTMMinAbsDiff is the minimum dollar distance for the Friday CTM roll
	CTMMinAbsDiff decimal.Decimal
}

// DefaultOptions returns the 1% / $0.25 close-to-money rule
func DefaultOptions() Options {
	return Options{
		CTMMaxPct:     decimal.NewFromInt(1),
		CTMMinAbsDiff: decimal.RequireFromString("0.25"),
	}
}

// itmTier is one weekday row for in-the-money positions; a nil upTo is unbounded.
type itmTier struct {
	upTo   *decimal.Decimal
	status model.Status
	label  string
	weeks  int
	advice string
}

func pct(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

var weekdayITMTiers = []itmTier{
	{upTo: pct(5), status: model.StatusITMSafe, label: "0-5%", weeks: 0, advice: AdviceHoldWeekday},
	{upTo: pct(10), status: model.StatusITM, label: "5-10%", weeks: 1, advice: AdviceRoll1},
	{upTo: pct(15), status: model.StatusITM, label: "10-15%", weeks: 2, advice: AdviceRoll2},
	{upTo: pct(20), status: model.StatusITM, label: "15-20%", weeks: 3, advice: AdviceRoll3},
	{upTo: nil, status: model.StatusITM, label: "20%+", weeks: 4, advice: AdviceDeepITM},
}

// Engine evaluates positions. It holds no mutable state.
type Engine struct {
	seq  *calendar.Sequencer
	opts Options
}

// NewEngine creates an engine resolving target dates with seq
func NewEngine(seq *calendar.Sequencer, opts Options) *Engine {
	return &Engine{seq: seq, opts: opts}
}

// Evaluate parses raw strike and price text and decides using the mode
// active at now. ok is false when either input is absent or invalid.
func (e *Engine) Evaluate(strike, currentPrice string, now time.Time) (*model.Recommendation, bool) {
	pos, ok := validation.ParsePosition(strike, currentPrice)
	if !ok {
		return nil, false
	}
	return e.Decide(pos, e.seq.IsFriday(now), now)
}

// Decide maps a position and mode to exactly one recommendation.
// ok is false when either price is not strictly positive.
func (e *Engine) Decide(pos model.Position, friday bool, now time.Time) (*model.Recommendation, bool) {
	if !pos.Valid() {
		return nil, false
	}

	mode := model.ModeWeekdayOther
	if friday {
		mode = model.ModeFriday
	}

	moneyness := pos.Moneyness()
	absDiff := pos.AbsDiff()

	rec := model.Recommendation{
		Percentage:   moneyness.Abs().Round(2),
		AbsoluteDiff: absDiff.Round(2),
		Mode:         mode,
	}

	switch {
	case pos.OTM() && friday:
		otmPct := moneyness.Neg()
		if otmPct.LessThanOrEqual(e.opts.CTMMaxPct) && absDiff.GreaterThanOrEqual(e.opts.CTMMinAbsDiff) {
			e.fill(&rec, model.StatusCTM, "CTM", 1, AdviceShortestTerm, now)
		} else {
			e.fill(&rec, model.StatusOTM, "OTM", 0, AdviceLetExpire, now)
		}
	case pos.OTM():
		e.fill(&rec, model.StatusOTM, "OTM", 0, AdviceNoAction, now)
	case friday:
		e.fill(&rec, model.StatusITM, "ITM", 1, AdviceShortestTerm, now)
	default:
		for _, tier := range weekdayITMTiers {
			if tier.upTo == nil || moneyness.LessThanOrEqual(*tier.upTo) {
				e.fill(&rec, tier.status, tier.label, tier.weeks, tier.advice, now)
				break
			}
		}
	}

	logrus.WithFields(logrus.Fields{
		"strike":        pos.Strike.String(),
		"current_price": pos.CurrentPrice.String(),
		"mode":          mode,
		"status":        rec.Status,
		"tier":          rec.Tier,
		"weeks":         rec.WeeksToRoll,
	}).Debug("Roll decision")

	return &rec, true
}

func (e *Engine) fill(rec *model.Recommendation, status model.Status, tier string, weeks int, advice string, now time.Time) {
	rec.Status = status
	rec.Tier = tier
	rec.WeeksToRoll = weeks
	rec.Advice = advice
	rec.TargetDate = nil
	if weeks > 0 {
		target := e.seq.NextFriday(weeks, now)
		rec.TargetDate = &target
	}
}

// Tiers returns the legend of rules for the given mode.
func (e *Engine) Tiers(friday bool) []model.RollTier {
	if friday {
		return []model.RollTier{
			{Range: "OTM", Description: "Further OTM", Weeks: 0, Label: "Expire"},
			{Range: "CTM", Description: "<=" + e.opts.CTMMaxPct.String() + "% ($" + e.opts.CTMMinAbsDiff.StringFixed(2) + " min)", Weeks: 1, Label: "Roll"},
			{Range: "ITM", Description: "In the money", Weeks: 1, Label: "Roll"},
		}
	}

	tiers := []model.RollTier{
		{Range: "OTM", Description: "Above strike", Weeks: 0, Label: "Hold"},
	}
	for _, tier := range weekdayITMTiers {
		label := "Hold"
		desc := "ITM"
		switch {
		case tier.upTo == nil:
			label = "Max 6wk"
			desc = "Deep ITM"
		case tier.weeks > 0:
			label = "+" + strconv.Itoa(tier.weeks) + " wk"
		}
		tiers = append(tiers, model.RollTier{Range: tier.label, Description: desc, Weeks: tier.weeks, Label: label})
	}
	return tiers
}
