package roll

import (
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/laifehacker/lso-roll-calculator/internal/calendar"
	"github.com/laifehacker/lso-roll-calculator/internal/config"
	"github.com/laifehacker/lso-roll-calculator/internal/model"
)

var (
	testLoc = config.DefaultLocation()
	// Sunday 18 October 2026, 10:00 in Amsterdam
	sunday = time.Date(2026, 10, 18, 10, 0, 0, 0, testLoc.TZ())
	// Friday 23 October 2026, 10:00 in Amsterdam
	friday = time.Date(2026, 10, 23, 10, 0, 0, 0, testLoc.TZ())
)

func newTestEngine() *Engine {
	return NewEngine(calendar.New(testLoc), DefaultOptions())
}

func position(strike, price string) model.Position {
	return model.Position{
		Strike:       decimal.RequireFromString(strike),
		CurrentPrice: decimal.RequireFromString(price),
	}
}

func TestDecide_Table(t *testing.T) {
	engine := newTestEngine()

	tests := []struct {
		name   string
		strike string
		price  string
		friday bool
		status model.Status
		tier   string
		weeks  int
		advice string
	}{
		// Friday OTM
		{"friday ctm", "100", "100.5", true, model.StatusCTM, "CTM", 1, AdviceShortestTerm},
		{"friday ctm at 1%", "100", "101", true, model.StatusCTM, "CTM", 1, AdviceShortestTerm},
		{"friday ctm exactly $0.25", "25", "25.25", true, model.StatusCTM, "CTM", 1, AdviceShortestTerm},
		{"friday otm just beyond 1%", "100", "101.01", true, model.StatusOTM, "OTM", 0, AdviceLetExpire},
		{"friday otm below $0.25", "10", "10.05", true, model.StatusOTM, "OTM", 0, AdviceLetExpire},
		{"friday far otm", "100", "120", true, model.StatusOTM, "OTM", 0, AdviceLetExpire},

		// Weekday OTM never acts
		{"weekday near otm", "100", "100.5", false, model.StatusOTM, "OTM", 0, AdviceNoAction},
		{"weekday far otm", "100", "150", false, model.StatusOTM, "OTM", 0, AdviceNoAction},

		// Friday ITM always rolls one week
		{"friday shallow itm", "100", "95", true, model.StatusITM, "ITM", 1, AdviceShortestTerm},
		{"friday at the money", "100", "100", true, model.StatusITM, "ITM", 1, AdviceShortestTerm},
		{"friday deep itm", "100", "50", true, model.StatusITM, "ITM", 1, AdviceShortestTerm},

		// Weekday ITM tiers; boundaries belong to the lower tier
		{"weekday at the money", "100", "100", false, model.StatusITMSafe, "0-5%", 0, AdviceHoldWeekday},
		{"weekday exactly 5%", "100", "95", false, model.StatusITMSafe, "0-5%", 0, AdviceHoldWeekday},
		{"weekday just over 5%", "100", "94.99", false, model.StatusITM, "5-10%", 1, AdviceRoll1},
		{"weekday exactly 10%", "100", "90", false, model.StatusITM, "5-10%", 1, AdviceRoll1},
		{"weekday just over 10%", "100", "89.99", false, model.StatusITM, "10-15%", 2, AdviceRoll2},
		{"weekday exactly 15%", "100", "85", false, model.StatusITM, "10-15%", 2, AdviceRoll2},
		{"weekday just over 15%", "100", "84.99", false, model.StatusITM, "15-20%", 3, AdviceRoll3},
		{"weekday exactly 20%", "100", "80", false, model.StatusITM, "15-20%", 3, AdviceRoll3},
		{"weekday just over 20%", "100", "79.99", false, model.StatusITM, "20%+", 4, AdviceDeepITM},
		{"weekday non-round strike", "33.3", "31.635", false, model.StatusITMSafe, "0-5%", 0, AdviceHoldWeekday},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, ok := engine.Decide(position(tt.strike, tt.price), tt.friday, sunday)
			require.True(t, ok)
			require.NotNil(t, rec)

			assert.Equal(t, tt.status, rec.Status)
			assert.Equal(t, tt.tier, rec.Tier)
			assert.Equal(t, tt.weeks, rec.WeeksToRoll)
			assert.Equal(t, tt.advice, rec.Advice)
			assert.True(t, rec.Consistent(), "weeks/date/status invariant broken")
		})
	}
}

func TestDecide_PercentagesAndTargetDate(t *testing.T) {
	engine := newTestEngine()

	rec, ok := engine.Decide(position("100", "100.5"), true, friday)
	require.True(t, ok)
	assert.Equal(t, "0.5", rec.Percentage.String())
	assert.Equal(t, "0.5", rec.AbsoluteDiff.String())
	assert.Equal(t, model.ModeFriday, rec.Mode)
	require.NotNil(t, rec.TargetDate)
	// first Friday after a Friday is a week later, plus one week out
	assert.Equal(t, "2026-11-06", rec.TargetDate.Format("2006-01-02"))

	rec, ok = engine.Decide(position("100", "70"), false, sunday)
	require.True(t, ok)
	require.NotNil(t, rec.TargetDate)
	assert.Equal(t, "2026-11-20", rec.TargetDate.Format("2006-01-02"))
	assert.Equal(t, "30", rec.Percentage.String())

	rec, ok = engine.Decide(position("100", "120"), false, sunday)
	require.True(t, ok)
	assert.Nil(t, rec.TargetDate)
}

func TestDecide_AbsentInput(t *testing.T) {
	engine := newTestEngine()

	for _, pos := range []model.Position{
		position("0", "10"),
		position("10", "0"),
		position("-10", "5"),
		{},
	} {
		rec, ok := engine.Decide(pos, false, sunday)
		assert.False(t, ok)
		assert.Nil(t, rec)
	}
}

func TestEvaluate_RawText(t *testing.T) {
	engine := newTestEngine()

	rec, ok := engine.Evaluate("100", "100.5", friday)
	require.True(t, ok)
	assert.Equal(t, model.StatusCTM, rec.Status, "friday derived from the evaluation instant")

	rec, ok = engine.Evaluate("100", "100.5", sunday)
	require.True(t, ok)
	assert.Equal(t, model.StatusOTM, rec.Status)

	for _, in := range [][2]string{{"", "95"}, {"abc", "95"}, {"100", "-1"}, {"100", "zero"}} {
		rec, ok := engine.Evaluate(in[0], in[1], sunday)
		assert.False(t, ok, "input %v should be absent", in)
		assert.Nil(t, rec)
	}
}

func TestDecide_CustomCTMThreshold(t *testing.T) {
	opts := DefaultOptions()
	opts.CTMMinAbsDiff = decimal.RequireFromString("0.10")
	engine := NewEngine(calendar.New(testLoc), opts)

	rec, ok := engine.Decide(position("15", "15.12"), true, friday)
	require.True(t, ok)
	assert.Equal(t, model.StatusCTM, rec.Status)

	rec, ok = newTestEngine().Decide(position("15", "15.12"), true, friday)
	require.True(t, ok)
	assert.Equal(t, model.StatusOTM, rec.Status)
}

func TestDecide_RandomizedInvariants(t *testing.T) {
	engine := newTestEngine()
	rng := rand.New(rand.NewSource(42))

	valid := map[model.Status]bool{
		model.StatusOTM: true, model.StatusCTM: true, model.StatusITM: true, model.StatusITMSafe: true,
	}

	for i := 0; i < 5000; i++ {
		strike := decimal.NewFromFloat(1 + rng.Float64()*500).Round(2)
		price := strike.Mul(decimal.NewFromFloat(0.6 + rng.Float64()*0.8)).Round(2)
		if !price.IsPositive() {
			continue
		}
		isFriday := rng.Intn(2) == 0

		rec, ok := engine.Decide(model.Position{Strike: strike, CurrentPrice: price}, isFriday, sunday)
		require.True(t, ok)
		require.True(t, valid[rec.Status], "unexpected status %q", rec.Status)
		require.True(t, rec.Consistent(), "strike=%s price=%s friday=%v gave %+v", strike, price, isFriday, rec)

		if !isFriday && price.GreaterThan(strike) {
			require.Equal(t, model.StatusOTM, rec.Status)
		}
		if isFriday && price.LessThanOrEqual(strike) {
			require.Equal(t, 1, rec.WeeksToRoll)
		}
	}
}

func TestTiers(t *testing.T) {
	engine := newTestEngine()

	fridayTiers := engine.Tiers(true)
	require.Len(t, fridayTiers, 3)
	assert.Equal(t, "<=1% ($0.25 min)", fridayTiers[1].Description)

	weekdayTiers := engine.Tiers(false)
	require.Len(t, weekdayTiers, 6)
	assert.Equal(t, "0-5%", weekdayTiers[1].Range)
	assert.Equal(t, "Hold", weekdayTiers[1].Label)
	assert.Equal(t, "+2 wk", weekdayTiers[3].Label)
	assert.Equal(t, "Max 6wk", weekdayTiers[5].Label)
	assert.Equal(t, 4, weekdayTiers[5].Weeks)
}
