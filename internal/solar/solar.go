// Package solar computes sunrise and sunset instants for a fixed location
// using the classic sunrise equation (Almanac for Computers, 1990).
package solar

import (
	"math"
	"time"

	"github.com/laifehacker/lso-roll-calculator/internal/config"
	"github.com/laifehacker/lso-roll-calculator/internal/model"
)

// Calculator computes solar schedules for one configured location.
// It holds no mutable state and is safe for concurrent use.
type Calculator struct {
	loc config.Location
}

// New creates a calculator for the given location.
func New(loc config.Location) *Calculator {
	return &Calculator{loc: loc}
}

// Location returns the configured location.
func (c *Calculator) Location() config.Location {
	return c.loc
}

// ScheduleAt returns the schedule for the civil date of instant in the
// configured timezone.
func (c *Calculator) ScheduleAt(instant time.Time) model.SolarSchedule {
	return c.Schedule(instant.In(c.loc.TZ()))
}

// Schedule returns the UTC sunrise and sunset for the calendar date of date,
// taken as-is (its own location decides the year, month and day).
func (c *Calculator) Schedule(date time.Time) model.SolarSchedule {
	year, month, day := date.Date()
	n := DayOfYear(year, month, day)

	schedule := model.SolarSchedule{
		Date: time.Date(year, month, day, 0, 0, 0, 0, time.UTC),
	}

	if h, m, ok := eventUTC(true, n, c.loc); ok {
		t := time.Date(year, month, day, h, m, 0, 0, time.UTC)
		schedule.Sunrise = &t
	}
	if h, m, ok := eventUTC(false, n, c.loc); ok {
		t := time.Date(year, month, day, h, m, 0, 0, time.UTC)
		schedule.Sunset = &t
	}

	return schedule
}

// DayOfYear returns the ordinal day, 1 for January 1st.
func DayOfYear(year int, month time.Month, day int) int {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC).YearDay()
}

// eventUTC returns the UTC hour and minute of sunrise or sunset on day n.
// ok is false when the sun does not cross the zenith that day.
func eventUTC(sunrise bool, n int, loc config.Location) (hour, minute int, ok bool) {
	lngHour := loc.Longitude / 15

	approx := 18.0
	if sunrise {
		approx = 6.0
	}
	t := float64(n) + (approx-lngHour)/24

	// mean anomaly and true longitude
	m := 0.9856*t - 3.289
	l := normalizeDegrees(m + 1.916*sinDeg(m) + 0.020*sinDeg(2*m) + 282.634)

	// right ascension, moved into the same quadrant as l
	ra := normalizeDegrees(radToDeg(math.Atan(0.91764 * math.Tan(degToRad(l)))))
	lQuadrant := math.Floor(l/90) * 90
	raQuadrant := math.Floor(ra/90) * 90
	ra = (ra + lQuadrant - raQuadrant) / 15

	sinDec := 0.39782 * sinDeg(l)
	cosDec := math.Cos(math.Asin(sinDec))
	cosH := (cosDeg(loc.Zenith) - sinDec*sinDeg(loc.Latitude)) / (cosDec * cosDeg(loc.Latitude))

	if cosH > 1 || cosH < -1 {
		return 0, 0, false
	}

	h := radToDeg(math.Acos(cosH))
	if sunrise {
		h = 360 - h
	}
	h /= 15

	localMean := h + ra - 0.06571*t - 6.622
	ut := math.Mod(localMean-lngHour, 24)
	if ut < 0 {
		ut += 24
	}

	hour = int(math.Floor(ut))
	minute = int(math.Round((ut - float64(hour)) * 60))
	hour = (hour + minute/60) % 24
	minute %= 60
	return hour, minute, true
}

func degToRad(deg float64) float64 { return deg * math.Pi / 180 }
func radToDeg(rad float64) float64 { return rad * 180 / math.Pi }

func sinDeg(deg float64) float64 { return math.Sin(degToRad(deg)) }
func cosDeg(deg float64) float64 { return math.Cos(degToRad(deg)) }

func normalizeDegrees(deg float64) float64 {
	return math.Mod(math.Mod(deg, 360)+360, 360)
}
