package http

import (
	"fmt"
	"net/http"
	"time"

	"pockets/internal/core"
	"pockets/internal/log"
	"pockets/internal/notify"
	"pockets/internal/report"
)

// cachedReport serves a report through the version-keyed cache.
func (s *Server) cachedReport(w http.ResponseWriter, r *http.Request, key string, build func(pockets []core.Pocket, version uint64) any) {
	v, hit, err := s.reports.GetOrCompute(key, func() (any, error) {
		pockets, version := s.ledger.Snapshot()
		return build(pockets, version), nil
	})
	if err != nil {
		s.fail(w, r, log.OpReport, err)
		return
	}
	state := "MISS"
	if hit {
		state = "HIT"
	}
	s.respond(w, r, NewJSONResponse().Header("X-Cache", state).Data(v))
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	s.cachedReport(w, r, "summary", func(pockets []core.Pocket, version uint64) any {
		total := report.TotalBalance(pockets)
		return summaryView{
			Total:        total,
			TotalDisplay: total.Format(s.currency),
			Categories:   report.CategoryTotals(pockets),
			PocketCount:  len(pockets),
			Version:      version,
		}
	})
}

func (s *Server) handleSpending(w http.ResponseWriter, r *http.Request) {
	s.cachedReport(w, r, "spending", func(pockets []core.Pocket, _ uint64) any {
		return report.SpendingBreakdown(core.Flatten(pockets), pockets)
	})
}

func (s *Server) handleUpcomingBills(w http.ResponseWriter, r *http.Request) {
	days, err := ParseDays(r.URL.Query(), s.upcomingDays)
	if err != nil {
		s.fail(w, r, log.OpReport, err)
		return
	}
	now := s.now().UTC().Truncate(time.Hour)
	key := fmt.Sprintf("upcoming/%d/%s", days, now.Format(time.RFC3339))
	s.cachedReport(w, r, key, func(pockets []core.Pocket, _ uint64) any {
		return upcomingView{
			Days:     days,
			Upcoming: s.pocketViews(report.UpcomingBills(pockets, now, days)),
			Overdue:  s.pocketViews(report.OverdueBills(pockets, now)),
		}
	})
}

func (s *Server) handleMonth(w http.ResponseWriter, r *http.Request) {
	params, err := ParseMonthParams(r.URL.Query(), s.now().UTC())
	if err != nil {
		s.fail(w, r, log.OpReport, err)
		return
	}
	key := fmt.Sprintf("month/%04d-%02d", params.Year, params.Month)
	s.cachedReport(w, r, key, func(pockets []core.Pocket, _ uint64) any {
		return report.Month(core.Flatten(pockets), params.Year, params.Month)
	})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.settings.Settings()
	if err != nil {
		s.fail(w, r, log.OpRead, err)
		return
	}
	s.respond(w, r, NewJSONResponse().Data(map[string]any{
		"settings":        settings,
		"available_rules": notify.RuleNames(),
	}))
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req notify.Settings
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, log.OpUpdate, err)
		return
	}
	if err := s.settings.UpdateSettings(r.Context(), req); err != nil {
		s.fail(w, r, log.OpUpdate, err)
		return
	}
	s.respond(w, r, NewJSONResponse().Data(req).Notify(NotificationSuccess, "Reminder settings saved"))
}
