package game

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"hideout/internal/db"
)

// HandleEvent is the execution dispatcher's entry point. Guard
// violations mean the game moved on (usually a manual override beat the
// timer); the event is consumed as a logged no-op, never an error.
func (l *Lifecycle) HandleEvent(event db.ScheduledEvent) error {
	err := l.handleEvent(event)
	if errors.Is(err, ErrWrongStatus) {
		log.Printf("stale event ignored event_id=%d game_id=%d kind=%s: %v",
			event.ID, event.GameID, event.Kind, err)
		return nil
	}
	return err
}

func (l *Lifecycle) handleEvent(event db.ScheduledEvent) error {
	switch event.Kind {
	case db.KindReminder:
		return l.sendReminder(event)
	case db.KindPhaseStart:
		return l.startGame(event.GameID, OriginAuto)
	case db.KindHidingWarning:
		return l.sendHidingWarning(event.GameID)
	case db.KindHidingEnd:
		return l.endHiding(event.GameID, OriginAuto)
	case db.KindSearchingEnd:
		return l.endSearching(event.GameID, OriginAuto)
	case db.KindCleanup:
		return l.cleanup(event.GameID)
	default:
		return fmt.Errorf("unknown event kind %q", event.Kind)
	}
}

type reminderPayload struct {
	MinutesBefore int `json:"minutes_before"`
}

// sendReminder notifies every current participant. Safe whatever the
// status; a reminder for a dead game is simply dropped.
func (l *Lifecycle) sendReminder(event db.ScheduledEvent) error {
	game, err := l.games.ByID(event.GameID)
	if err != nil {
		return err
	}
	if !game.Active() {
		log.Printf("reminder for inactive game dropped game_id=%d status=%s", game.ID, game.Status)
		return nil
	}
	var payload reminderPayload
	if len(event.Payload) > 0 {
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return fmt.Errorf("reminder payload: %w", err)
		}
	}
	l.notifyParticipants(game, reminderText(game, payload.MinutesBefore))
	return nil
}

// startGame moves an upcoming game into hiding, assigning roles. On the
// automatic path a game below the minimum participant count is canceled
// instead. The early origin bypasses that check.
func (l *Lifecycle) startGame(gameID uint, origin Origin) error {
	now := l.now()
	canceled := false
	game, err := l.games.Update(gameID, func(g *db.Game) error {
		if g.Status != db.StatusUpcoming {
			return fmt.Errorf("%w: phase_start requires upcoming, got %s", ErrWrongStatus, g.Status)
		}
		if origin == OriginAuto && len(g.Participants) < l.cfg.MinParticipants {
			g.Status = db.StatusCanceled
			g.EndedAt = &now
			canceled = true
			return nil
		}
		assignRoles(g)
		g.Status = db.StatusHiding
		g.StartedAt = &now
		return nil
	})
	if err != nil {
		return err
	}
	if canceled {
		if err := l.scheduler.CancelGame(game.ID); err != nil {
			log.Printf("cancel events failed game_id=%d error=%v", game.ID, err)
		}
		log.Printf("game canceled below minimum game_id=%d participants=%d min=%d",
			game.ID, len(game.Participants), l.cfg.MinParticipants)
		l.notifyParticipants(game, tooFewParticipantsText(game, l.cfg.MinParticipants))
		return nil
	}
	log.Printf("game started game_id=%d origin=%s drivers=%d participants=%d",
		game.ID, origin, len(game.Drivers()), len(game.Participants))
	if origin == OriginEarly {
		// The old phase timers assume the scheduled start; re-derive
		// them from the actual one.
		if err := l.scheduler.CancelGame(game.ID); err != nil {
			return err
		}
		if err := l.schedulePhaseEvents(game.ID, now); err != nil {
			return err
		}
	}
	l.notifyRole(game, db.RoleDriver, hidingDriverText(game, origin, l.cfg.HidingMinutes))
	l.notifyRole(game, db.RoleSeeker, hidingSeekerText(game, origin, l.cfg.HidingMinutes))
	return nil
}

// sendHidingWarning nudges drivers who have not confirmed they are
// hidden and sends administrators a summary.
func (l *Lifecycle) sendHidingWarning(gameID uint) error {
	game, err := l.games.ByID(gameID)
	if err != nil {
		return err
	}
	if game.Status != db.StatusHiding {
		return fmt.Errorf("%w: hiding_warning requires hiding, got %s", ErrWrongStatus, game.Status)
	}
	var unconfirmed []int64
	confirmed := 0
	for _, p := range game.Participants {
		if p.Role != db.RoleDriver {
			continue
		}
		if p.Hidden {
			confirmed++
		} else {
			unconfirmed = append(unconfirmed, p.ChatID)
		}
	}
	if len(unconfirmed) > 0 {
		l.send(unconfirmed, hidingWarningText(game, l.cfg.HidingWarningMinutes))
	}
	l.notifyAdmins(warningSummaryText(game, confirmed, confirmed+len(unconfirmed)))
	return nil
}

// endHiding moves hiding to searching and sends role-specific
// instructions.
func (l *Lifecycle) endHiding(gameID uint, origin Origin) error {
	game, err := l.games.Update(gameID, func(g *db.Game) error {
		if g.Status != db.StatusHiding {
			return fmt.Errorf("%w: hiding_end requires hiding, got %s", ErrWrongStatus, g.Status)
		}
		g.Status = db.StatusSearching
		return nil
	})
	if err != nil {
		return err
	}
	log.Printf("hiding ended game_id=%d origin=%s", game.ID, origin)
	l.notifyRole(game, db.RoleDriver, searchingDriverText(game, origin))
	l.notifyRole(game, db.RoleSeeker, searchingSeekerText(game, origin))
	return nil
}

// endSearching force-completes a game whose participants never reported
// completion themselves.
func (l *Lifecycle) endSearching(gameID uint, origin Origin) error {
	now := l.now()
	game, err := l.games.Update(gameID, func(g *db.Game) error {
		if g.Status != db.StatusSearching {
			return fmt.Errorf("%w: searching_end requires searching, got %s", ErrWrongStatus, g.Status)
		}
		g.Status = db.StatusCompleted
		g.EndedAt = &now
		return nil
	})
	if err != nil {
		return err
	}
	log.Printf("game force-completed game_id=%d origin=%s", game.ID, origin)
	l.notifyParticipants(game, timeUpText(game, origin))
	return nil
}

// cleanup is housekeeping with no status precondition.
func (l *Lifecycle) cleanup(gameID uint) error {
	game, err := l.games.ByID(gameID)
	if err != nil {
		return err
	}
	found := 0
	for _, p := range game.Participants {
		if p.Role == db.RoleDriver && p.Found {
			found++
		}
	}
	log.Printf("cleanup complete game_id=%d status=%s drivers_found=%d/%d",
		game.ID, game.Status, found, len(game.Drivers()))
	l.notifyAdmins(cleanupSummaryText(game, found, len(game.Drivers())))
	return nil
}
