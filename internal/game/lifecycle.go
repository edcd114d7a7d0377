package game

import (
	"errors"
	"fmt"
	"log"
	"time"

	"hideout/internal/config"
	"hideout/internal/db"
	"hideout/internal/notify"

	"github.com/google/uuid"
)

// ErrWrongStatus marks a guard violation: the game is no longer in the
// status the action expected. On the automatic path this is a logged
// no-op; on the manual path it surfaces to the administrator.
var ErrWrongStatus = errors.New("game not in expected status")

// Origin tags who triggered a transition. It changes the notification
// wording only, never the transition logic.
type Origin int

const (
	OriginAuto Origin = iota
	OriginManual
	OriginEarly
)

// cleanupDelay is how long after a game ends its cleanup event runs.
const cleanupDelay = time.Hour

// GameStore is the persistence the lifecycle needs. Satisfied by
// *db.GameStore.
type GameStore interface {
	Create(game *db.Game) error
	ByID(id uint) (*db.Game, error)
	ByCode(code string) (*db.Game, error)
	Update(id uint, fn func(game *db.Game) error) (*db.Game, error)
	AddParticipant(gameID uint, chatID int64, name string) (*db.Participant, error)
	RemoveParticipant(gameID, participantID uint) error
}

// Scheduler is the arming capability the lifecycle needs. Satisfied by
// *scheduler.Engine.
type Scheduler interface {
	Schedule(gameID uint, kind db.EventKind, at time.Time, payload map[string]any) (*db.ScheduledEvent, error)
	CancelGame(gameID uint) error
}

// Lifecycle owns the game status field and every guarded transition.
// Both the scheduler's execution dispatcher and the administrator
// control surface go through it.
type Lifecycle struct {
	games     GameStore
	scheduler Scheduler
	notifier  notify.Notifier
	cfg       config.Config
	now       func() time.Time
}

func NewLifecycle(games GameStore, scheduler Scheduler, notifier notify.Notifier, cfg config.Config) *Lifecycle {
	loc := cfg.Location()
	return &Lifecycle{
		games:     games,
		scheduler: scheduler,
		notifier:  notifier,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().In(loc) },
	}
}

// CreateGame creates a game in recruiting, or directly in upcoming with
// a derived event schedule when a start time is given.
func (l *Lifecycle) CreateGame(title string, scheduledAt *time.Time, maxParticipants, maxDrivers int) (*db.Game, error) {
	if maxParticipants < 2 {
		return nil, errors.New("max_participants must be at least 2")
	}
	if maxDrivers < 1 || maxDrivers >= maxParticipants {
		return nil, errors.New("max_drivers must be at least 1 and below max_participants")
	}
	game := &db.Game{
		Code:            uuid.NewString(),
		Title:           title,
		Status:          db.StatusRecruiting,
		MaxParticipants: maxParticipants,
		MaxDrivers:      maxDrivers,
	}
	if scheduledAt != nil {
		at := scheduledAt.In(l.cfg.Location())
		game.ScheduledAt = &at
		game.Status = db.StatusUpcoming
	}
	if err := l.games.Create(game); err != nil {
		return nil, err
	}
	log.Printf("game created game_id=%d code=%s status=%s", game.ID, game.Code, game.Status)
	if game.ScheduledAt != nil {
		if err := l.scheduleEvents(game); err != nil {
			return nil, err
		}
	}
	return game, nil
}

// Reschedule moves the game's start time. The previous schedule is
// canceled before the new one is derived; timers are never mutated in
// place.
func (l *Lifecycle) Reschedule(gameID uint, at time.Time) (*db.Game, error) {
	at = at.In(l.cfg.Location())
	game, err := l.games.Update(gameID, func(g *db.Game) error {
		if g.Status != db.StatusRecruiting && g.Status != db.StatusUpcoming {
			return fmt.Errorf("%w: reschedule requires recruiting or upcoming, got %s", ErrWrongStatus, g.Status)
		}
		g.ScheduledAt = &at
		g.Status = db.StatusUpcoming
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := l.scheduleEvents(game); err != nil {
		return nil, err
	}
	l.notifyParticipants(game, rescheduledText(game, l.cfg.Location()))
	return game, nil
}

// Join adds a participant while recruitment is open. Joining twice with
// the same chat id is a no-op returning the existing record.
func (l *Lifecycle) Join(code string, chatID int64, name string) (*db.Game, *db.Participant, error) {
	game, err := l.games.ByCode(code)
	if err != nil {
		return nil, nil, err
	}
	for i := range game.Participants {
		if game.Participants[i].ChatID == chatID {
			return game, &game.Participants[i], nil
		}
	}
	if game.Status != db.StatusRecruiting && game.Status != db.StatusUpcoming {
		return nil, nil, fmt.Errorf("%w: game already started", ErrWrongStatus)
	}
	if len(game.Participants) >= game.MaxParticipants {
		return nil, nil, errors.New("game is full")
	}
	participant, err := l.games.AddParticipant(game.ID, chatID, name)
	if err != nil {
		return nil, nil, err
	}
	log.Printf("participant joined game_id=%d participant_id=%d chat_id=%d", game.ID, participant.ID, chatID)
	return game, participant, nil
}

// Leave removes a participant while recruitment is open.
func (l *Lifecycle) Leave(gameID, participantID uint) error {
	game, err := l.games.ByID(gameID)
	if err != nil {
		return err
	}
	if game.Status != db.StatusRecruiting && game.Status != db.StatusUpcoming {
		return fmt.Errorf("%w: game already started", ErrWrongStatus)
	}
	return l.games.RemoveParticipant(gameID, participantID)
}

// scheduleEvents derives the full event schedule for a scheduled game:
// reminders and phase_start at the start time, then the phase timers.
// Cancel-then-recreate: the previous schedule is retired first.
func (l *Lifecycle) scheduleEvents(game *db.Game) error {
	if game.ScheduledAt == nil {
		return errors.New("game has no scheduled time")
	}
	if err := l.scheduler.CancelGame(game.ID); err != nil {
		return err
	}
	start := *game.ScheduledAt
	now := l.now()
	for _, lead := range l.cfg.ReminderMinutes {
		at := start.Add(-time.Duration(lead) * time.Minute)
		if !at.After(now) {
			log.Printf("reminder lead already past, skipped game_id=%d minutes_before=%d", game.ID, lead)
			continue
		}
		if _, err := l.scheduler.Schedule(game.ID, db.KindReminder, at, map[string]any{"minutes_before": lead}); err != nil {
			return err
		}
	}
	if _, err := l.scheduler.Schedule(game.ID, db.KindPhaseStart, start, map[string]any{}); err != nil {
		return err
	}
	return l.schedulePhaseEvents(game.ID, start)
}

// schedulePhaseEvents arms the timers that run from a hiding phase
// beginning at start: the warning, the hiding end, the searching-end
// fallback, and cleanup.
func (l *Lifecycle) schedulePhaseEvents(gameID uint, start time.Time) error {
	hidingEnd := start.Add(l.cfg.HidingDuration())
	if lead := l.cfg.HidingWarningLead(); lead > 0 && lead < l.cfg.HidingDuration() {
		payload := map[string]any{"minutes_before": l.cfg.HidingWarningMinutes}
		if _, err := l.scheduler.Schedule(gameID, db.KindHidingWarning, hidingEnd.Add(-lead), payload); err != nil {
			return err
		}
	}
	if _, err := l.scheduler.Schedule(gameID, db.KindHidingEnd, hidingEnd, map[string]any{}); err != nil {
		return err
	}
	searchingEnd := hidingEnd.Add(l.cfg.SearchingDuration())
	if _, err := l.scheduler.Schedule(gameID, db.KindSearchingEnd, searchingEnd, map[string]any{}); err != nil {
		return err
	}
	_, err := l.scheduler.Schedule(gameID, db.KindCleanup, searchingEnd.Add(cleanupDelay), map[string]any{})
	return err
}
