package db

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgconn"
	"gorm.io/gorm"
)

// EventStore is the durable table of scheduled events. It holds no
// timing logic; every mutation is a single statement so each event row
// is updated atomically.
type EventStore struct {
	conn *gorm.DB
	now  func() time.Time
}

func NewEventStore(conn *gorm.DB) *EventStore {
	return &EventStore{conn: conn, now: func() time.Time { return time.Now().UTC() }}
}

// EventStats is the monitoring summary of the event table.
type EventStats struct {
	Total    int64 `json:"total"`
	Executed int64 `json:"executed"`
	Pending  int64 `json:"pending"`
	Overdue  int64 `json:"overdue"`
}

// Save persists a scheduled event. Saving the same
// (game_id, kind, scheduled_at) triple twice is idempotent: the
// pre-existing row is returned with a warning instead of an error.
func (s *EventStore) Save(gameID uint, kind EventKind, at time.Time, payload map[string]any) (*ScheduledEvent, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	record := ScheduledEvent{
		GameID:      gameID,
		Kind:        kind,
		ScheduledAt: at,
		Payload:     body,
	}
	if err := s.conn.Create(&record).Error; err != nil {
		if isUniqueViolation(err) {
			existing, lookupErr := s.findByTriple(gameID, kind, at)
			if lookupErr == nil && existing != nil {
				log.Printf("duplicate schedule ignored game_id=%d kind=%s scheduled_at=%s event_id=%d",
					gameID, kind, at.Format(time.RFC3339), existing.ID)
				return existing, nil
			}
		}
		return nil, err
	}
	return &record, nil
}

func (s *EventStore) findByTriple(gameID uint, kind EventKind, at time.Time) (*ScheduledEvent, error) {
	var event ScheduledEvent
	err := s.conn.Where("game_id = ? AND kind = ? AND scheduled_at = ?", gameID, kind, at).
		First(&event).Error
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (s *EventStore) ByID(id uint) (*ScheduledEvent, error) {
	var event ScheduledEvent
	if err := s.conn.First(&event, id).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

// Pending returns all non-executed events ordered by scheduled time.
func (s *EventStore) Pending() ([]ScheduledEvent, error) {
	var events []ScheduledEvent
	err := s.conn.Where("executed = false").Order("scheduled_at asc").Find(&events).Error
	return events, err
}

func (s *EventStore) PendingForGame(gameID uint) ([]ScheduledEvent, error) {
	var events []ScheduledEvent
	err := s.conn.Where("game_id = ? AND executed = false", gameID).
		Order("scheduled_at asc").Find(&events).Error
	return events, err
}

func (s *EventStore) ForGame(gameID uint, includeExecuted bool) ([]ScheduledEvent, error) {
	if !includeExecuted {
		return s.PendingForGame(gameID)
	}
	var events []ScheduledEvent
	err := s.conn.Where("game_id = ?", gameID).Order("scheduled_at asc").Find(&events).Error
	return events, err
}

// MarkExecuted flips the executed flag. Returns false when the event
// was already executed, which is the exactly-once boundary: firing a
// duplicate timer changes nothing, including executed_at.
func (s *EventStore) MarkExecuted(id uint) (bool, error) {
	now := s.now()
	result := s.conn.Model(&ScheduledEvent{}).
		Where("id = ? AND executed = false", id).
		Updates(map[string]any{"executed": true, "executed_at": now})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// CancelForGame retires every pending event for a game by marking it
// executed without running its handler.
func (s *EventStore) CancelForGame(gameID uint) (int64, error) {
	now := s.now()
	result := s.conn.Model(&ScheduledEvent{}).
		Where("game_id = ? AND executed = false", gameID).
		Updates(map[string]any{"executed": true, "executed_at": now})
	return result.RowsAffected, result.Error
}

// PurgeOlderThan deletes executed rows older than the retention age.
func (s *EventStore) PurgeOlderThan(age time.Duration) (int64, error) {
	cutoff := s.now().Add(-age)
	result := s.conn.Where("executed = true AND executed_at < ?", cutoff).
		Delete(&ScheduledEvent{})
	return result.RowsAffected, result.Error
}

// Statistics summarizes the event table for the operator console.
// Pending events older than the grace window count as overdue.
func (s *EventStore) Statistics(grace time.Duration) (EventStats, error) {
	var stats EventStats
	model := func() *gorm.DB { return s.conn.Model(&ScheduledEvent{}) }
	if err := model().Count(&stats.Total).Error; err != nil {
		return stats, err
	}
	if err := model().Where("executed = true").Count(&stats.Executed).Error; err != nil {
		return stats, err
	}
	if err := model().Where("executed = false").Count(&stats.Pending).Error; err != nil {
		return stats, err
	}
	cutoff := s.now().Add(-grace)
	if err := model().Where("executed = false AND scheduled_at < ?", cutoff).
		Count(&stats.Overdue).Error; err != nil {
		return stats, err
	}
	return stats, nil
}

// Overdue returns pending events whose scheduled time has passed by
// more than the grace window.
func (s *EventStore) Overdue(grace time.Duration) ([]ScheduledEvent, error) {
	cutoff := s.now().Add(-grace)
	var events []ScheduledEvent
	err := s.conn.Where("executed = false AND scheduled_at < ?", cutoff).
		Order("scheduled_at asc").Find(&events).Error
	return events, err
}

// ClearOverdue marks all overdue events executed without running their
// handlers. Used by operators to drain the backlog after an outage.
func (s *EventStore) ClearOverdue(grace time.Duration) (int64, error) {
	now := s.now()
	cutoff := now.Add(-grace)
	result := s.conn.Model(&ScheduledEvent{}).
		Where("executed = false AND scheduled_at < ?", cutoff).
		Updates(map[string]any{"executed": true, "executed_at": now})
	return result.RowsAffected, result.Error
}

// EventsByGame groups every stored event by its owning game.
func (s *EventStore) EventsByGame() (map[uint][]ScheduledEvent, error) {
	var events []ScheduledEvent
	if err := s.conn.Order("scheduled_at asc").Find(&events).Error; err != nil {
		return nil, err
	}
	grouped := make(map[uint][]ScheduledEvent)
	for _, event := range events {
		grouped[event.GameID] = append(grouped[event.GameID], event)
	}
	return grouped, nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
