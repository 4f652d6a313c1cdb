package main

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/laifehacker/lso-roll-calculator/internal/model"
	"github.com/laifehacker/lso-roll-calculator/internal/validation"
)

// Prompts returned instead of a result when input is absent
const (
	PromptPosition = "Enter strike and current price to get a recommendation"
	PromptCompare  = "Enter a strike and at least one premium to compare roll horizons"
)

// calendarTiles is how many Fridays the calendar shows
const calendarTiles = 5

// AdviseResponse carries one recommendation with the context a client
// renders next to it.
type AdviseResponse struct {
	Recommendation *model.Recommendation `json:"recommendation"`
	Prompt         string                `json:"prompt,omitempty"`
	Mode           model.EvaluationMode  `json:"mode"`
	Tiers          []model.RollTier      `json:"tiers"`
	Fridays        []model.FridayTile    `json:"fridays"`
}

// CompareResponse wraps a premium comparison
type CompareResponse struct {
	Comparison model.Comparison `json:"comparison"`
	Prompt     string           `json:"prompt,omitempty"`
}

// SunResponse is the schedule for one civil date with local renderings
type SunResponse struct {
	model.SolarSchedule
	Timezone     string `json:"timezone"`
	SunriseLocal string `json:"sunrise_local,omitempty"`
	SunsetLocal  string `json:"sunset_local,omitempty"`
}

func (s *Server) handleAdvise(w http.ResponseWriter, r *http.Request) {
	var req validation.AdviseRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.errorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := validation.ValidateRequest(req); err != nil {
		s.errorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}

	now := s.now()
	friday := s.seq.IsFriday(now)
	if req.Friday != nil {
		friday = *req.Friday
	}
	mode := model.ModeWeekdayOther
	if friday {
		mode = model.ModeFriday
	}

	resp := AdviseResponse{
		Mode:  mode,
		Tiers: s.engine.Tiers(friday),
	}

	pos, ok := validation.ParsePosition(req.Strike, req.CurrentPrice)
	if !ok {
		resp.Prompt = PromptPosition
		resp.Fridays = s.seq.Upcoming(calendarTiles, now, 0)
		writeJSON(w, http.StatusOK, resp)
		return
	}

	rec, _ := s.engine.Decide(pos, friday, now)
	resp.Recommendation = rec
	resp.Fridays = s.seq.Upcoming(calendarTiles, now, rec.WeeksToRoll)

	trace.SpanFromContext(r.Context()).SetAttributes(
		attribute.String("lso.status", string(rec.Status)),
		attribute.String("lso.mode", string(mode)),
		attribute.Int("lso.weeks_to_roll", rec.WeeksToRoll),
	)
	s.metrics.recommendations.WithLabelValues(string(rec.Status), string(mode)).Inc()
	s.exporter.Record(model.DecisionEvent{
		Position:       pos,
		Recommendation: *rec,
		EvaluatedAt:    now.UTC(),
	})

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	var req validation.CompareRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.errorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := validation.ValidateRequest(req); err != nil {
		s.errorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}

	resp := CompareResponse{Comparison: s.comparator.Evaluate(req, s.now())}
	if resp.Comparison.Best == nil {
		resp.Prompt = PromptCompare
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleFridays(w http.ResponseWriter, r *http.Request) {
	target := 0
	if raw := r.URL.Query().Get("target"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.errorResponse(w, r, http.StatusBadRequest, "target must be a non-negative integer")
			return
		}
		target = n
	}

	now := s.now()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"mode":    s.seq.Mode(now),
		"fridays": s.seq.Upcoming(calendarTiles, now, target),
	})
}

func (s *Server) handleTiers(w http.ResponseWriter, r *http.Request) {
	var friday bool
	switch strings.ToLower(r.URL.Query().Get("mode")) {
	case "":
		friday = s.seq.IsFriday(s.now())
	case string(model.ModeFriday):
		friday = true
	case string(model.ModeWeekdayOther):
		friday = false
	default:
		s.errorResponse(w, r, http.StatusBadRequest, "mode must be friday or weekday")
		return
	}

	mode := model.ModeWeekdayOther
	if friday {
		mode = model.ModeFriday
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"mode":  mode,
		"tiers": s.engine.Tiers(friday),
	})
}

func (s *Server) handleSun(w http.ResponseWriter, r *http.Request) {
	tz := s.cfg.Location.TZ()

	var sched model.SolarSchedule
	if raw := r.URL.Query().Get("date"); raw != "" {
		date, err := time.ParseInLocation("2006-01-02", raw, tz)
		if err != nil {
			s.errorResponse(w, r, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		sched = s.sun.Schedule(date)
	} else {
		sched = s.sun.ScheduleAt(s.now())
	}

	resp := SunResponse{SolarSchedule: sched, Timezone: tz.String()}
	if sched.Sunrise != nil {
		resp.SunriseLocal = sched.Sunrise.In(tz).Format("15:04")
	}
	if sched.Sunset != nil {
		resp.SunsetLocal = sched.Sunset.In(tz).Format("15:04")
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTheme(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.theme.State())
}

func (s *Server) handleThemeToggle(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.theme.Toggle())
}

func (s *Server) handleThemeReset(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.theme.ResetToAuto())
}

// handleHealth is a simple health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "OK",
		"version":   version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleStatus provides detailed service status information
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "operational",
		"uptime":  time.Since(startTime).String(),
		"version": version,
		"mode":    s.seq.Mode(now),
		"theme":   s.theme.State(),
		"export":  s.exporter.Status(),
		"configuration": map[string]interface{}{
			"location":         s.cfg.Location,
			"ctm_min_abs_diff": s.cfg.CTMMinAbsDiff.String(),
			"rate_limited":     s.rateLimit != nil,
		},
	})
}
