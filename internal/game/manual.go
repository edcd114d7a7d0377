package game

import (
	"errors"
	"fmt"
	"log"

	"hideout/internal/db"
)

func (o Origin) String() string {
	switch o {
	case OriginManual:
		return "manual"
	case OriginEarly:
		return "early"
	default:
		return "auto"
	}
}

// Cancel aborts a game that has not started yet.
func (l *Lifecycle) Cancel(gameID uint) error {
	now := l.now()
	game, err := l.games.Update(gameID, func(g *db.Game) error {
		if g.Status != db.StatusRecruiting && g.Status != db.StatusUpcoming {
			return fmt.Errorf("%w: cancel requires recruiting or upcoming, got %s", ErrWrongStatus, g.Status)
		}
		g.Status = db.StatusCanceled
		g.EndedAt = &now
		return nil
	})
	if err != nil {
		return err
	}
	if err := l.scheduler.CancelGame(game.ID); err != nil {
		return err
	}
	log.Printf("game canceled game_id=%d origin=manual", game.ID)
	l.notifyParticipants(game, canceledText(game))
	return nil
}

// StartEarly begins the hiding phase now, bypassing the time guard and
// the minimum-participant check.
func (l *Lifecycle) StartEarly(gameID uint) error {
	return l.startGame(gameID, OriginEarly)
}

// AdvanceToSearching ends the hiding phase ahead of its timer. The old
// phase timers are retired and the searching window re-derived from
// now, so no stale automatic transition can fire afterwards.
func (l *Lifecycle) AdvanceToSearching(gameID uint) error {
	if err := l.endHiding(gameID, OriginManual); err != nil {
		return err
	}
	if err := l.scheduler.CancelGame(gameID); err != nil {
		return err
	}
	now := l.now()
	searchingEnd := now.Add(l.cfg.SearchingDuration())
	if _, err := l.scheduler.Schedule(gameID, db.KindSearchingEnd, searchingEnd, map[string]any{}); err != nil {
		return err
	}
	_, err := l.scheduler.Schedule(gameID, db.KindCleanup, searchingEnd.Add(cleanupDelay), map[string]any{})
	return err
}

// ForceEnd terminates a game from any active status. Games that never
// started are canceled, running ones completed.
func (l *Lifecycle) ForceEnd(gameID uint) error {
	now := l.now()
	game, err := l.games.Update(gameID, func(g *db.Game) error {
		switch g.Status {
		case db.StatusRecruiting, db.StatusUpcoming:
			g.Status = db.StatusCanceled
		case db.StatusHiding, db.StatusSearching:
			g.Status = db.StatusCompleted
		default:
			return fmt.Errorf("%w: force-end requires an active game, got %s", ErrWrongStatus, g.Status)
		}
		g.EndedAt = &now
		return nil
	})
	if err != nil {
		return err
	}
	if err := l.scheduler.CancelGame(game.ID); err != nil {
		return err
	}
	log.Printf("game force-ended game_id=%d status=%s", game.ID, game.Status)
	l.notifyParticipants(game, forceEndText(game))
	return nil
}

// MarkFound flips a participant's found flag. The completion guard runs
// in the same transaction: when every driver is found the game
// completes. Unmarking a found driver on a completed game re-opens it
// back to searching, never earlier.
func (l *Lifecycle) MarkFound(gameID, participantID uint, found bool) error {
	now := l.now()
	completed := false
	reopened := false
	game, err := l.games.Update(gameID, func(g *db.Game) error {
		p := g.Participant(participantID)
		if p == nil {
			return errors.New("participant not found")
		}
		switch g.Status {
		case db.StatusHiding, db.StatusSearching:
			p.Found = found
			if allDriversFound(g) {
				g.Status = db.StatusCompleted
				g.EndedAt = &now
				completed = true
			}
			return nil
		case db.StatusCompleted:
			if found || p.Role != db.RoleDriver {
				return fmt.Errorf("%w: only unmarking a driver can re-open a completed game", ErrWrongStatus)
			}
			p.Found = false
			g.Status = db.StatusSearching
			g.EndedAt = nil
			reopened = true
			return nil
		default:
			return fmt.Errorf("%w: found flag requires an in-play game, got %s", ErrWrongStatus, g.Status)
		}
	})
	if err != nil {
		return err
	}
	if completed {
		l.finishCompletion(game)
	}
	if reopened {
		// The completed game's timers were retired; give the re-opened
		// searching phase a fresh fallback window and cleanup.
		if err := l.scheduler.CancelGame(game.ID); err != nil {
			return err
		}
		searchingEnd := now.Add(l.cfg.SearchingDuration())
		if _, err := l.scheduler.Schedule(game.ID, db.KindSearchingEnd, searchingEnd, map[string]any{}); err != nil {
			return err
		}
		if _, err := l.scheduler.Schedule(game.ID, db.KindCleanup, searchingEnd.Add(cleanupDelay), map[string]any{}); err != nil {
			return err
		}
		log.Printf("game re-opened game_id=%d participant_id=%d", game.ID, participantID)
		l.notifyParticipants(game, reopenedText(game))
	}
	return nil
}

// finishCompletion is the notification and cancellation tail of the
// completion guard: retire outstanding timers and announce the result,
// then schedule cleanup relative to the actual end.
func (l *Lifecycle) finishCompletion(game *db.Game) {
	if err := l.scheduler.CancelGame(game.ID); err != nil {
		log.Printf("cancel events failed game_id=%d error=%v", game.ID, err)
	}
	if _, err := l.scheduler.Schedule(game.ID, db.KindCleanup, l.now().Add(cleanupDelay), map[string]any{}); err != nil {
		log.Printf("cleanup schedule failed game_id=%d error=%v", game.ID, err)
	}
	log.Printf("game completed game_id=%d", game.ID)
	l.notifyParticipants(game, completedText(game))
}

// ConfirmHidden records that a driver has parked and hidden. Feeds the
// hiding warning's unconfirmed list.
func (l *Lifecycle) ConfirmHidden(gameID, participantID uint) error {
	_, err := l.games.Update(gameID, func(g *db.Game) error {
		if g.Status != db.StatusHiding {
			return fmt.Errorf("%w: hidden confirmation requires hiding, got %s", ErrWrongStatus, g.Status)
		}
		p := g.Participant(participantID)
		if p == nil {
			return errors.New("participant not found")
		}
		if p.Role != db.RoleDriver {
			return errors.New("only drivers confirm hiding")
		}
		p.Hidden = true
		return nil
	})
	return err
}

// ReassignRole changes one participant's role before or during hiding,
// keeping the driver cap and the at-least-one-seeker rule intact.
func (l *Lifecycle) ReassignRole(gameID, participantID uint, role string) error {
	if role != db.RoleDriver && role != db.RoleSeeker {
		return fmt.Errorf("unknown role %q", role)
	}
	_, err := l.games.Update(gameID, func(g *db.Game) error {
		switch g.Status {
		case db.StatusRecruiting, db.StatusUpcoming, db.StatusHiding:
		default:
			return fmt.Errorf("%w: role changes end with the hiding phase, got %s", ErrWrongStatus, g.Status)
		}
		p := g.Participant(participantID)
		if p == nil {
			return errors.New("participant not found")
		}
		if role == db.RoleDriver {
			if len(g.Drivers()) >= g.MaxDrivers && p.Role != db.RoleDriver {
				return errors.New("driver limit reached")
			}
			if seekerCount(g) <= 1 && p.Role == db.RoleSeeker {
				return errors.New("at least one seeker is required")
			}
		}
		if role == db.RoleSeeker && p.Role == db.RoleDriver &&
			g.Status == db.StatusHiding && len(g.Drivers()) <= 1 {
			return errors.New("at least one driver is required")
		}
		p.Role = role
		return nil
	})
	return err
}

// AdminAddParticipant adds a latecomer, assigning a role immediately
// when roles are already out.
func (l *Lifecycle) AdminAddParticipant(gameID uint, chatID int64, name string) (*db.Participant, error) {
	game, err := l.games.ByID(gameID)
	if err != nil {
		return nil, err
	}
	switch game.Status {
	case db.StatusRecruiting, db.StatusUpcoming, db.StatusHiding:
	default:
		return nil, fmt.Errorf("%w: participants can join until hiding ends, got %s", ErrWrongStatus, game.Status)
	}
	for i := range game.Participants {
		if game.Participants[i].ChatID == chatID {
			return &game.Participants[i], nil
		}
	}
	if len(game.Participants) >= game.MaxParticipants {
		return nil, errors.New("game is full")
	}
	participant, err := l.games.AddParticipant(gameID, chatID, name)
	if err != nil {
		return nil, err
	}
	if game.Status == db.StatusHiding {
		_, err = l.games.Update(gameID, func(g *db.Game) error {
			rebalanceRoles(g)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return participant, nil
}

// AdminRemoveParticipant drops a participant and rebalances roles.
// Removal, rebalance, and the completion guard run in one transaction:
// removing the last unfound driver can complete the game, and no
// intermediate state without the participant but with stale roles is
// ever visible.
func (l *Lifecycle) AdminRemoveParticipant(gameID, participantID uint) error {
	game, err := l.games.ByID(gameID)
	if err != nil {
		return err
	}
	switch game.Status {
	case db.StatusRecruiting, db.StatusUpcoming:
		return l.games.RemoveParticipant(gameID, participantID)
	case db.StatusHiding:
	default:
		return fmt.Errorf("%w: participants can leave until hiding ends, got %s", ErrWrongStatus, game.Status)
	}
	now := l.now()
	completed := false
	game, err = l.games.Update(gameID, func(g *db.Game) error {
		if g.Participant(participantID) == nil {
			return errors.New("participant not found")
		}
		kept := g.Participants[:0]
		for _, p := range g.Participants {
			if p.ID != participantID {
				kept = append(kept, p)
			}
		}
		g.Participants = kept
		rebalanceRoles(g)
		if allDriversFound(g) {
			g.Status = db.StatusCompleted
			g.EndedAt = &now
			completed = true
		}
		return nil
	})
	if err != nil {
		return err
	}
	if completed {
		l.finishCompletion(game)
	}
	return nil
}
