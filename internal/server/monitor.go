package server

import (
	"net/http"
	"time"

	"hideout/internal/db"
)

// Operator console endpoints: event statistics, overdue backlog, and
// the bulk clear used after an outage.

func (s *Server) handleEventStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.events.Statistics(s.cfg.OverdueGrace())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleEventsByGame(w http.ResponseWriter, r *http.Request) {
	grouped, err := s.events.EventsByGame()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	view := make(map[uint][]map[string]any, len(grouped))
	for gameID, events := range grouped {
		view[gameID] = s.eventViews(events)
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleOverdue(w http.ResponseWriter, r *http.Request) {
	events, err := s.events.Overdue(s.cfg.OverdueGrace())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.eventViews(events))
}

func (s *Server) handleClearOverdue(w http.ResponseWriter, r *http.Request) {
	count, err := s.events.ClearOverdue(s.cfg.OverdueGrace())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"cleared": count})
}

func (s *Server) handleGameEvents(w http.ResponseWriter, r *http.Request) {
	g, ok := s.loadGame(w, r)
	if !ok {
		return
	}
	includeExecuted := r.URL.Query().Get("include_executed") == "true"
	events, err := s.events.ForGame(g.ID, includeExecuted)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.eventViews(events))
}

func (s *Server) eventViews(events []db.ScheduledEvent) []map[string]any {
	loc := s.cfg.Location()
	views := make([]map[string]any, 0, len(events))
	for _, event := range events {
		view := map[string]any{
			"id":           event.ID,
			"game_id":      event.GameID,
			"kind":         event.Kind,
			"scheduled_at": event.ScheduledAt.In(loc).Format(time.RFC3339),
			"payload":      event.Payload,
			"executed":     event.Executed,
		}
		if event.ExecutedAt != nil {
			view["executed_at"] = event.ExecutedAt.In(loc).Format(time.RFC3339)
		}
		views = append(views, view)
	}
	return views
}
