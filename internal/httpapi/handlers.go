package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"festivalbot/internal/holiday"
	rtsup "festivalbot/internal/runtime/supervisor"
	"festivalbot/internal/trigger"
	logx "festivalbot/pkg/logx"
)

const (
	defaultDays = 30
	maxDays     = 366
)

type errorBody struct {
	Error string `json:"error"`
}

type holidayItem struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Date         holiday.Date `json:"date"`
	Start        holiday.Date `json:"start"`
	DayIndex     int          `json:"day_index"`
	DurationDays int          `json:"duration_days"`
	Source       string       `json:"source"`
	Aliases      []string     `json:"aliases,omitempty"`
	Description  string       `json:"description,omitempty"`
	Eligible     *bool        `json:"eligible,omitempty"`
}

type holidaysBody struct {
	From     holiday.Date  `json:"from"`
	Days     int           `json:"days"`
	Holidays []holidayItem `json:"holidays"`
}

type todayBody struct {
	Date     holiday.Date  `json:"date"`
	Holidays []holidayItem `json:"holidays"`
}

type lastRun struct {
	Kind        trigger.Kind `json:"kind"`
	Date        holiday.Date `json:"date"`
	Started     time.Time    `json:"started"`
	DurationMS  int64        `json:"duration_ms"`
	Occurrences int          `json:"occurrences"`
	Targets     int          `json:"targets"`
	Dispatched  int          `json:"dispatched"`
	Skipped     int          `json:"skipped"`
	Failed      int          `json:"failed"`
}

type statusBody struct {
	Now         time.Time                 `json:"now"`
	Uptime      string                    `json:"uptime"`
	Running     bool                      `json:"running"`
	NextRun     *time.Time                `json:"next_run,omitempty"`
	Timezone    string                    `json:"timezone"`
	TriggerTime string                    `json:"trigger_time"`
	RepeatMode  trigger.RepeatMode        `json:"repeat_mode"`
	FilterMode  string                    `json:"filter_mode"`
	AllowManual bool                      `json:"allow_manual"`
	Targets     int                       `json:"targets"`
	Last        *lastRun                  `json:"last_run,omitempty"`
	Supervisors map[string]rtsup.Snapshot `json:"supervisors,omitempty"`
}

func item(o holiday.Occurrence) holidayItem {
	return holidayItem{
		ID:           o.Holiday.ID,
		Name:         o.Holiday.Name,
		Date:         o.Date,
		Start:        o.Start(),
		DayIndex:     o.DayIndex,
		DurationDays: o.Holiday.Duration(),
		Source:       string(o.Holiday.Source),
		Aliases:      o.Holiday.Aliases,
		Description:  o.Holiday.Description,
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Debug("http write failed", logx.Err(err))
	}
}

func (s *Server) badRequest(w http.ResponseWriter, msg string) {
	s.writeJSON(w, http.StatusBadRequest, errorBody{Error: msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// window reads ?from=YYYY-MM-DD&days=N, defaulting to today and def days.
func (s *Server) window(r *http.Request, def int) (holiday.Date, int, error) {
	from := s.deps.Engine.Today()
	if v := r.URL.Query().Get("from"); v != "" {
		d, err := holiday.ParseDate(v)
		if err != nil {
			return holiday.Date{}, 0, errors.New("from must be YYYY-MM-DD")
		}
		from = d
	}
	days := def
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxDays {
			return holiday.Date{}, 0, fmt.Errorf("days must be between 1 and %d", maxDays)
		}
		days = n
	}
	return from, days, nil
}

func (s *Server) handleHolidays(w http.ResponseWriter, r *http.Request) {
	from, days, err := s.window(r, defaultDays)
	if err != nil {
		s.badRequest(w, err.Error())
		return
	}
	occ, err := s.deps.Engine.Options().Catalog.Upcoming(from, days)
	if err != nil {
		s.log.Warn("upcoming holidays failed", logx.Err(err))
		s.writeJSON(w, http.StatusInternalServerError, errorBody{Error: "calendar expansion failed"})
		return
	}
	body := holidaysBody{From: from, Days: days, Holidays: make([]holidayItem, 0, len(occ))}
	for _, o := range occ {
		body.Holidays = append(body.Holidays, item(o))
	}
	s.writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleToday(w http.ResponseWriter, _ *http.Request) {
	opt := s.deps.Engine.Options()
	today := s.deps.Engine.Today()
	occ := opt.Catalog.Resolve(today)
	body := todayBody{Date: today, Holidays: make([]holidayItem, 0, len(occ))}
	for _, o := range occ {
		it := item(o)
		ok := opt.RepeatMode.Eligible(o)
		it.Eligible = &ok
		body.Holidays = append(body.Holidays, it)
	}
	s.writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.deps.Engine.State()
	now := s.deps.Now()
	body := statusBody{
		Now:         now,
		Uptime:      now.Sub(s.started).Round(time.Second).String(),
		Running:     st.Running,
		Timezone:    st.Timezone,
		TriggerTime: st.TriggerTime,
		RepeatMode:  st.RepeatMode,
		FilterMode:  st.FilterMode,
		AllowManual: st.AllowManual,
		Supervisors: s.deps.Supervisors.Snapshots(),
	}
	if !st.NextRun.IsZero() {
		next := st.NextRun
		body.NextRun = &next
	}
	if s.deps.Targets != nil {
		targets, err := s.deps.Targets.Targets(r.Context())
		if err != nil {
			s.log.Warn("status: loading targets failed", logx.Err(err))
		}
		body.Targets = len(targets)
	}
	if l := st.Last; l != nil {
		body.Last = &lastRun{
			Kind:        l.Kind,
			Date:        l.Date,
			Started:     l.Started,
			DurationMS:  l.Duration.Milliseconds(),
			Occurrences: len(l.Occurrences),
			Targets:     len(l.Targets),
			Dispatched:  l.Sent(),
			Skipped:     l.Count(trigger.StatusSkipped),
			Failed:      l.Count(trigger.StatusDispatchFailed) + l.Count(trigger.StatusPersistFailed),
		}
	}
	s.writeJSON(w, http.StatusOK, body)
}

// handleICS exports the upcoming year (or ?days=N) as an all-day calendar.
func (s *Server) handleICS(w http.ResponseWriter, r *http.Request) {
	from, days, err := s.window(r, maxDays)
	if err != nil {
		s.badRequest(w, err.Error())
		return
	}
	occ, err := s.deps.Engine.Options().Catalog.Upcoming(from, days)
	if err != nil {
		s.log.Warn("calendar export failed", logx.Err(err))
		http.Error(w, "calendar expansion failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="festivals.ics"`)
	if err := holiday.WriteICS(w, occ, s.deps.Now()); err != nil {
		s.log.Debug("calendar write failed", logx.Err(err))
	}
}
