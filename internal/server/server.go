package server

import (
	"net/http"

	"hideout/internal/config"
	"hideout/internal/db"
	"hideout/internal/game"
)

// Server is the administrator control surface and the operator
// monitoring read path. It holds no scheduling or state-machine logic;
// everything goes through the lifecycle and the event store.
type Server struct {
	life   *game.Lifecycle
	games  *db.GameStore
	events *db.EventStore
	cfg    config.Config
}

func New(life *game.Lifecycle, games *db.GameStore, events *db.EventStore, cfg config.Config) *Server {
	return &Server{
		life:   life,
		games:  games,
		events: events,
		cfg:    cfg,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/games", s.handleCreateGame)
	mux.HandleFunc("GET /api/games/{code}", s.handleGetGame)
	mux.HandleFunc("POST /api/games/{code}/reschedule", s.handleReschedule)
	mux.HandleFunc("POST /api/games/{code}/join", s.handleJoin)
	mux.HandleFunc("POST /api/games/{code}/leave", s.handleLeave)
	mux.HandleFunc("POST /api/games/{code}/cancel", s.handleCancel)
	mux.HandleFunc("POST /api/games/{code}/start", s.handleStartEarly)
	mux.HandleFunc("POST /api/games/{code}/advance", s.handleAdvance)
	mux.HandleFunc("POST /api/games/{code}/end", s.handleForceEnd)
	mux.HandleFunc("POST /api/games/{code}/participants", s.handleAddParticipant)
	mux.HandleFunc("DELETE /api/games/{code}/participants/{id}", s.handleRemoveParticipant)
	mux.HandleFunc("POST /api/games/{code}/participants/{id}/role", s.handleRole)
	mux.HandleFunc("POST /api/games/{code}/participants/{id}/found", s.handleFound)
	mux.HandleFunc("POST /api/games/{code}/participants/{id}/hidden", s.handleHidden)
	mux.HandleFunc("GET /api/games/{code}/events", s.handleGameEvents)
	mux.HandleFunc("GET /api/events/stats", s.handleEventStats)
	mux.HandleFunc("GET /api/events/by-game", s.handleEventsByGame)
	mux.HandleFunc("GET /api/events/overdue", s.handleOverdue)
	mux.HandleFunc("POST /api/events/overdue/clear", s.handleClearOverdue)
	return mux
}
