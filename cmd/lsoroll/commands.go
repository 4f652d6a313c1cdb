package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/laifehacker/lso-roll-calculator/internal/calendar"
	"github.com/laifehacker/lso-roll-calculator/internal/config"
	"github.com/laifehacker/lso-roll-calculator/internal/model"
	"github.com/laifehacker/lso-roll-calculator/internal/roll"
	"github.com/laifehacker/lso-roll-calculator/internal/solar"
	"github.com/laifehacker/lso-roll-calculator/internal/theme"
	"github.com/laifehacker/lso-roll-calculator/internal/validation"
	"github.com/laifehacker/lso-roll-calculator/internal/yield"
)

// app holds the components built once per invocation
type app struct {
	cfg        config.Config
	seq        *calendar.Sequencer
	sun        *solar.Calculator
	engine     *roll.Engine
	comparator *yield.Comparator

	jsonOut bool
	atRaw   string
}

func (a *app) init() error {
	a.cfg = config.Load()
	if err := a.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	opts := roll.DefaultOptions()
	opts.CTMMinAbsDiff = a.cfg.CTMMinAbsDiff

	a.seq = calendar.New(a.cfg.Location)
	a.sun = solar.New(a.cfg.Location)
	a.engine = roll.NewEngine(a.seq, opts)
	a.comparator = yield.NewComparator(a.seq, validation.DefaultInputOptions())
	return nil
}

// now is --at when given, else the wall clock
func (a *app) now() (time.Time, error) {
	if a.atRaw == "" {
		return time.Now(), nil
	}
	t, err := time.Parse(time.RFC3339, a.atRaw)
	if err != nil {
		return time.Time{}, fmt.Errorf("--at must be RFC3339: %w", err)
	}
	return t, nil
}

func (a *app) emit(w io.Writer, v interface{}, text func(io.Writer)) error {
	if a.jsonOut {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "lsoroll",
		Short: "Roll advisor for short options",
		Long: `lsoroll tells you whether to roll a short option and how far out,
compares premiums across roll horizons and shows the expiration calendar.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}
	rootCmd.PersistentFlags().BoolVar(&a.jsonOut, "json", false, "print JSON instead of text")
	rootCmd.PersistentFlags().StringVar(&a.atRaw, "at", "", "evaluate at this RFC3339 instant instead of now")

	rootCmd.AddCommand(
		newAdviseCmd(a),
		newCompareCmd(a),
		newFridaysCmd(a),
		newSunCmd(a),
		newThemeCmd(a),
	)
	return rootCmd
}

func newAdviseCmd(a *app) *cobra.Command {
	var friday, weekday bool

	cmd := &cobra.Command{
		Use:   "advise STRIKE PRICE",
		Short: "Recommend whether and how far to roll",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			now, err := a.now()
			if err != nil {
				return err
			}

			pos, ok := validation.ParsePosition(args[0], args[1])
			if !ok {
				return fmt.Errorf("strike and price must be positive numbers")
			}

			isFriday := a.seq.IsFriday(now)
			switch {
			case friday:
				isFriday = true
			case weekday:
				isFriday = false
			}

			rec, _ := a.engine.Decide(pos, isFriday, now)
			return a.emit(cmd.OutOrStdout(), rec, func(w io.Writer) {
				printRecommendation(w, rec, a.cfg.Location.TZ())
			})
		},
	}
	cmd.Flags().BoolVar(&friday, "friday", false, "apply the Friday rules")
	cmd.Flags().BoolVar(&weekday, "weekday", false, "apply the Monday-Thursday rules")
	cmd.MarkFlagsMutuallyExclusive("friday", "weekday")
	return cmd
}

func newCompareCmd(a *app) *cobra.Command {
	var premiums validation.PremiumInputs
	var weeks string

	cmd := &cobra.Command{
		Use:   "compare STRIKE",
		Short: "Compare weekly yield across roll horizons",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			now, err := a.now()
			if err != nil {
				return err
			}

			cmp := a.comparator.Evaluate(validation.CompareRequest{
				Strike:      args[0],
				Premiums:    premiums,
				CustomWeeks: weeks,
			}, now)
			if len(cmp.Candidates) == 0 {
				return fmt.Errorf("strike must be a positive number")
			}

			return a.emit(cmd.OutOrStdout(), cmp, func(w io.Writer) {
				printComparison(w, cmp, a.cfg.Location.TZ())
			})
		},
	}
	cmd.Flags().StringVar(&premiums.Week1, "w1", "", "premium for +1 week")
	cmd.Flags().StringVar(&premiums.Week2, "w2", "", "premium for +2 weeks")
	cmd.Flags().StringVar(&premiums.Week3, "w3", "", "premium for +3 weeks")
	cmd.Flags().StringVar(&premiums.WeekN, "wn", "", "premium for the custom horizon")
	cmd.Flags().StringVar(&weeks, "weeks", "4", "custom horizon in weeks (1-52)")
	return cmd
}

func newFridaysCmd(a *app) *cobra.Command {
	var target int

	cmd := &cobra.Command{
		Use:   "fridays",
		Short: "Show the next five expiration Fridays",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			now, err := a.now()
			if err != nil {
				return err
			}
			tiles := a.seq.Upcoming(5, now, target)
			return a.emit(cmd.OutOrStdout(), tiles, func(w io.Writer) {
				printFridays(w, tiles, a.cfg.Location.TZ())
			})
		},
	}
	cmd.Flags().IntVar(&target, "target", 0, "highlight the Friday this many weeks out")
	return cmd
}

func newSunCmd(a *app) *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "sun",
		Short: "Show sunrise and sunset for a date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tz := a.cfg.Location.TZ()

			var sched model.SolarSchedule
			if date != "" {
				d, err := time.ParseInLocation("2006-01-02", date, tz)
				if err != nil {
					return fmt.Errorf("--date must be YYYY-MM-DD: %w", err)
				}
				sched = a.sun.Schedule(d)
			} else {
				now, err := a.now()
				if err != nil {
					return err
				}
				sched = a.sun.ScheduleAt(now)
			}

			return a.emit(cmd.OutOrStdout(), sched, func(w io.Writer) {
				printSun(w, sched, tz)
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "civil date, YYYY-MM-DD (default today)")
	return cmd
}

func newThemeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "theme",
		Short: "Show the solar day/night mode and when it next changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			now, err := a.now()
			if err != nil {
				return err
			}
			ev := theme.Evaluate(a.sun, now)
			out := struct {
				Mode     model.ThemeMode     `json:"mode"`
				NextWake time.Time           `json:"next_wake"`
				Sun      model.SolarSchedule `json:"sun"`
			}{ev.Mode, ev.NextWake(), ev.Sun}

			return a.emit(cmd.OutOrStdout(), out, func(w io.Writer) {
				tz := a.cfg.Location.TZ()
				fmt.Fprintf(w, "Mode:      %s\n", ev.Mode)
				fmt.Fprintf(w, "Next wake: %s\n", ev.NextWake().In(tz).Format("Mon 2006-01-02 15:04:05 MST"))
			})
		},
	}
}
