package server

import (
	"fmt"
	"net/http"
	"time"

	"hideout/internal/db"
)

type createGameRequest struct {
	Title           string `json:"title"`
	ScheduledAt     string `json:"scheduled_at,omitempty"`
	MaxParticipants int    `json:"max_participants"`
	MaxDrivers      int    `json:"max_drivers"`
}

type rescheduleRequest struct {
	ScheduledAt string `json:"scheduled_at"`
}

type joinRequest struct {
	ChatID int64  `json:"chat_id"`
	Name   string `json:"name"`
}

type leaveRequest struct {
	ParticipantID uint `json:"participant_id"`
}

type roleRequest struct {
	Role string `json:"role"`
}

type foundRequest struct {
	Found bool `json:"found"`
}

// parseLocalTime accepts a human-entered time and normalizes it to the
// canonical zone. This is the single conversion point on input.
func (s *Server) parseLocalTime(raw string) (time.Time, error) {
	loc := s.cfg.Location()
	if at, err := time.ParseInLocation(time.RFC3339, raw, loc); err == nil {
		return at.In(loc), nil
	}
	at, err := time.ParseInLocation("2006-01-02 15:04", raw, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognized time %q", raw)
	}
	return at, nil
}

func (s *Server) handleCreateGame(w http.ResponseWriter, r *http.Request) {
	var req createGameRequest
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	var scheduledAt *time.Time
	if req.ScheduledAt != "" {
		at, err := s.parseLocalTime(req.ScheduledAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		scheduledAt = &at
	}
	created, err := s.life.CreateGame(req.Title, scheduledAt, req.MaxParticipants, req.MaxDrivers)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, s.gameView(created))
}

func (s *Server) handleGetGame(w http.ResponseWriter, r *http.Request) {
	g, ok := s.loadGame(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.gameView(g))
}

func (s *Server) handleReschedule(w http.ResponseWriter, r *http.Request) {
	g, ok := s.loadGame(w, r)
	if !ok {
		return
	}
	var req rescheduleRequest
	if err := readJSON(r.Body, &req); err != nil || req.ScheduledAt == "" {
		writeError(w, http.StatusBadRequest, "scheduled_at is required")
		return
	}
	at, err := s.parseLocalTime(req.ScheduledAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	updated, err := s.life.Reschedule(g.ID, at)
	if err != nil {
		writeLifecycleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.gameView(updated))
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := readJSON(r.Body, &req); err != nil || req.ChatID == 0 || req.Name == "" {
		writeError(w, http.StatusBadRequest, "chat_id and name are required")
		return
	}
	g, participant, err := s.life.Join(r.PathValue("code"), req.ChatID, req.Name)
	if err != nil {
		writeLifecycleError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"game_id":        g.ID,
		"participant_id": participant.ID,
	})
}

func (s *Server) handleLeave(w http.ResponseWriter, r *http.Request) {
	g, ok := s.loadGame(w, r)
	if !ok {
		return
	}
	var req leaveRequest
	if err := readJSON(r.Body, &req); err != nil || req.ParticipantID == 0 {
		writeError(w, http.StatusBadRequest, "participant_id is required")
		return
	}
	if err := s.life.Leave(g.ID, req.ParticipantID); err != nil {
		writeLifecycleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "left"})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.runOverride(w, r, s.life.Cancel)
}

func (s *Server) handleStartEarly(w http.ResponseWriter, r *http.Request) {
	s.runOverride(w, r, s.life.StartEarly)
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	s.runOverride(w, r, s.life.AdvanceToSearching)
}

func (s *Server) handleForceEnd(w http.ResponseWriter, r *http.Request) {
	s.runOverride(w, r, s.life.ForceEnd)
}

// runOverride is the shared shape of the one-shot manual transitions.
func (s *Server) runOverride(w http.ResponseWriter, r *http.Request, action func(gameID uint) error) {
	g, ok := s.loadGame(w, r)
	if !ok {
		return
	}
	if err := action(g.ID); err != nil {
		writeLifecycleError(w, err)
		return
	}
	updated, err := s.games.ByID(g.ID)
	if err != nil {
		writeLifecycleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.gameView(updated))
}

func (s *Server) handleAddParticipant(w http.ResponseWriter, r *http.Request) {
	g, ok := s.loadGame(w, r)
	if !ok {
		return
	}
	var req joinRequest
	if err := readJSON(r.Body, &req); err != nil || req.ChatID == 0 || req.Name == "" {
		writeError(w, http.StatusBadRequest, "chat_id and name are required")
		return
	}
	participant, err := s.life.AdminAddParticipant(g.ID, req.ChatID, req.Name)
	if err != nil {
		writeLifecycleError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"participant_id": participant.ID})
}

func (s *Server) handleRemoveParticipant(w http.ResponseWriter, r *http.Request) {
	g, participantID, ok := s.loadParticipantPath(w, r)
	if !ok {
		return
	}
	if err := s.life.AdminRemoveParticipant(g.ID, participantID); err != nil {
		writeLifecycleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (s *Server) handleRole(w http.ResponseWriter, r *http.Request) {
	g, participantID, ok := s.loadParticipantPath(w, r)
	if !ok {
		return
	}
	var req roleRequest
	if err := readJSON(r.Body, &req); err != nil || req.Role == "" {
		writeError(w, http.StatusBadRequest, "role is required")
		return
	}
	if err := s.life.ReassignRole(g.ID, participantID, req.Role); err != nil {
		writeLifecycleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "role updated"})
}

func (s *Server) handleFound(w http.ResponseWriter, r *http.Request) {
	g, participantID, ok := s.loadParticipantPath(w, r)
	if !ok {
		return
	}
	var req foundRequest
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.life.MarkFound(g.ID, participantID, req.Found); err != nil {
		writeLifecycleError(w, err)
		return
	}
	updated, err := s.games.ByID(g.ID)
	if err != nil {
		writeLifecycleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.gameView(updated))
}

func (s *Server) handleHidden(w http.ResponseWriter, r *http.Request) {
	g, participantID, ok := s.loadParticipantPath(w, r)
	if !ok {
		return
	}
	if err := s.life.ConfirmHidden(g.ID, participantID); err != nil {
		writeLifecycleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "hidden confirmed"})
}

func (s *Server) loadGame(w http.ResponseWriter, r *http.Request) (*db.Game, bool) {
	g, err := s.games.ByCode(r.PathValue("code"))
	if err != nil {
		writeLifecycleError(w, err)
		return nil, false
	}
	return g, true
}

func (s *Server) loadParticipantPath(w http.ResponseWriter, r *http.Request) (*db.Game, uint, bool) {
	g, ok := s.loadGame(w, r)
	if !ok {
		return nil, 0, false
	}
	participantID, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid participant id")
		return nil, 0, false
	}
	return g, participantID, true
}

// gameView renders timestamps into the canonical zone exactly once, on
// the way out.
func (s *Server) gameView(g *db.Game) map[string]any {
	loc := s.cfg.Location()
	formatTime := func(t *time.Time) any {
		if t == nil {
			return nil
		}
		return t.In(loc).Format(time.RFC3339)
	}
	participants := make([]map[string]any, 0, len(g.Participants))
	for _, p := range g.Participants {
		participants = append(participants, map[string]any{
			"id":     p.ID,
			"name":   p.Name,
			"role":   p.Role,
			"found":  p.Found,
			"hidden": p.Hidden,
		})
	}
	return map[string]any{
		"id":               g.ID,
		"code":             g.Code,
		"title":            g.Title,
		"status":           g.Status,
		"scheduled_at":     formatTime(g.ScheduledAt),
		"started_at":       formatTime(g.StartedAt),
		"ended_at":         formatTime(g.EndedAt),
		"max_participants": g.MaxParticipants,
		"max_drivers":      g.MaxDrivers,
		"participants":     participants,
	}
}
