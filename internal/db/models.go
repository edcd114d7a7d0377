package db

import (
	"time"

	"gorm.io/datatypes"
)

// Game statuses. Forward-only, except the re-open path from completed
// back to searching when an admin unmarks a found driver.
const (
	StatusRecruiting = "recruiting"
	StatusUpcoming   = "upcoming"
	StatusHiding     = "hiding"
	StatusSearching  = "searching"
	StatusCompleted  = "completed"
	StatusCanceled   = "canceled"
)

const (
	RoleDriver = "driver"
	RoleSeeker = "seeker"
)

// EventKind is the closed set of scheduled actions.
type EventKind string

const (
	KindReminder      EventKind = "reminder"
	KindPhaseStart    EventKind = "phase_start"
	KindHidingWarning EventKind = "hiding_warning"
	KindHidingEnd     EventKind = "hiding_end"
	KindSearchingEnd  EventKind = "searching_end"
	KindCleanup       EventKind = "cleanup"
)

type Game struct {
	ID              uint      `gorm:"primaryKey"`
	Code            string    `gorm:"size:36;uniqueIndex;not null"`
	Title           string    `gorm:"size:128;not null"`
	Status          string    `gorm:"size:16;not null;index"`
	ScheduledAt     *time.Time
	StartedAt       *time.Time
	EndedAt         *time.Time
	MaxParticipants int       `gorm:"not null"`
	MaxDrivers      int       `gorm:"not null"`
	CreatedAt       time.Time `gorm:"not null"`
	UpdatedAt       time.Time `gorm:"not null"`
	Participants    []Participant
}

// Active reports whether the game is still in play and may have
// pending scheduled events.
func (g *Game) Active() bool {
	switch g.Status {
	case StatusRecruiting, StatusUpcoming, StatusHiding, StatusSearching:
		return true
	}
	return false
}

func (g *Game) Participant(id uint) *Participant {
	for i := range g.Participants {
		if g.Participants[i].ID == id {
			return &g.Participants[i]
		}
	}
	return nil
}

func (g *Game) Drivers() []Participant {
	var drivers []Participant
	for _, p := range g.Participants {
		if p.Role == RoleDriver {
			drivers = append(drivers, p)
		}
	}
	return drivers
}

type Participant struct {
	ID        uint      `gorm:"primaryKey"`
	GameID    uint      `gorm:"index;not null;uniqueIndex:idx_participants_game_chat"`
	ChatID    int64     `gorm:"not null;uniqueIndex:idx_participants_game_chat"`
	Name      string    `gorm:"size:64;not null"`
	Role      string    `gorm:"size:16;not null;default:''"`
	Found     bool      `gorm:"not null;default:false"`
	Hidden    bool      `gorm:"not null;default:false"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// ScheduledEvent is one durable future action for a game. The triple
// (GameID, Kind, ScheduledAt) is unique so re-deriving a schedule never
// produces duplicate rows. Executed flips false to true exactly once.
type ScheduledEvent struct {
	ID          uint           `gorm:"primaryKey"`
	GameID      uint           `gorm:"index;not null;uniqueIndex:idx_events_game_kind_at"`
	Kind        EventKind      `gorm:"size:32;not null;uniqueIndex:idx_events_game_kind_at"`
	ScheduledAt time.Time      `gorm:"not null;index;uniqueIndex:idx_events_game_kind_at"`
	Payload     datatypes.JSON `gorm:"type:jsonb;not null"`
	Executed    bool           `gorm:"not null;default:false;index"`
	ExecutedAt  *time.Time
	CreatedAt   time.Time `gorm:"not null"`
}
