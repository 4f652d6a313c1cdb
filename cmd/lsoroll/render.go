package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/laifehacker/lso-roll-calculator/internal/model"
)

func printRecommendation(w io.Writer, rec *model.Recommendation, tz *time.Location) {
	fmt.Fprintf(w, "Status:     %s (%s)\n", rec.Status, rec.Tier)
	fmt.Fprintf(w, "Mode:       %s\n", rec.Mode)
	fmt.Fprintf(w, "Distance:   %s%% ($%s)\n", rec.Percentage.StringFixed(2), rec.AbsoluteDiff.StringFixed(2))
	if rec.TargetDate != nil {
		fmt.Fprintf(w, "Roll:       %d wk to %s\n", rec.WeeksToRoll, rec.TargetDate.In(tz).Format("Mon 2006-01-02"))
	} else {
		fmt.Fprintln(w, "Roll:       none")
	}
	fmt.Fprintf(w, "Advice:     %s\n", rec.Advice)
}

func printComparison(w io.Writer, cmp model.Comparison, tz *time.Location) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "HORIZON\tEXPIRY\tPREMIUM\tPREMIUM %\tWEEKLY %\t")
	for _, c := range cmp.Candidates {
		mark := ""
		if cmp.Best != nil && c.Label == cmp.Best.Label {
			mark = "best"
		}
		if !c.Valid {
			fmt.Fprintf(tw, "%s\t%s\t-\t-\t-\t%s\n", c.Label, c.TargetDate.In(tz).Format("2006-01-02"), mark)
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			c.Label,
			c.TargetDate.In(tz).Format("2006-01-02"),
			c.ObservedPremium.StringFixed(2),
			c.PremiumPct.StringFixed(2),
			c.WeeklyYieldPct.StringFixed(2),
			mark,
		)
	}
	tw.Flush()
}

func printFridays(w io.Writer, tiles []model.FridayTile, tz *time.Location) {
	for _, t := range tiles {
		marker := " "
		if t.IsTarget {
			marker = "*"
		}
		fmt.Fprintf(w, "%s %-9s %s\n", marker, t.Label, t.Date.In(tz).Format("Mon 2006-01-02"))
	}
}

func printSun(w io.Writer, sched model.SolarSchedule, tz *time.Location) {
	fmt.Fprintf(w, "Date:    %s\n", sched.Date.Format("2006-01-02"))
	fmt.Fprintf(w, "Sunrise: %s\n", localClock(sched.Sunrise, tz))
	fmt.Fprintf(w, "Sunset:  %s\n", localClock(sched.Sunset, tz))
}

func localClock(t *time.Time, tz *time.Location) string {
	if t == nil {
		return "does not occur"
	}
	return t.In(tz).Format("15:04 MST")
}
