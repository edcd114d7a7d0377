package db

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrGameNotFound = errors.New("game not found")

// GameStore persists games and their participants.
type GameStore struct {
	conn *gorm.DB
}

func NewGameStore(conn *gorm.DB) *GameStore {
	return &GameStore{conn: conn}
}

func (s *GameStore) Create(game *Game) error {
	return s.conn.Create(game).Error
}

func (s *GameStore) ByID(id uint) (*Game, error) {
	var game Game
	err := s.conn.Preload("Participants").First(&game, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrGameNotFound
	}
	if err != nil {
		return nil, err
	}
	return &game, nil
}

func (s *GameStore) ByCode(code string) (*Game, error) {
	var game Game
	err := s.conn.Preload("Participants").Where("code = ?", code).First(&game).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrGameNotFound
	}
	if err != nil {
		return nil, err
	}
	return &game, nil
}

// Update loads the game with a row lock, applies fn, and saves the
// result in one transaction. Status guards run inside fn, so read,
// guard, and write are a single atomic step. Participants dropped from
// the slice by fn are deleted in the same transaction.
func (s *GameStore) Update(id uint, fn func(game *Game) error) (*Game, error) {
	var game Game
	err := s.conn.Transaction(func(tx *gorm.DB) error {
		query := tx
		// SQLite has no FOR UPDATE; its transactions are single-writer.
		if tx.Dialector.Name() != "sqlite" {
			query = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		err := query.Preload("Participants").First(&game, id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrGameNotFound
		}
		if err != nil {
			return err
		}
		loaded := make(map[uint]struct{}, len(game.Participants))
		for _, p := range game.Participants {
			loaded[p.ID] = struct{}{}
		}
		if err := fn(&game); err != nil {
			return err
		}
		if err := tx.Omit(clause.Associations).Save(&game).Error; err != nil {
			return err
		}
		for i := range game.Participants {
			delete(loaded, game.Participants[i].ID)
			if err := tx.Save(&game.Participants[i]).Error; err != nil {
				return err
			}
		}
		if len(loaded) > 0 {
			removed := make([]uint, 0, len(loaded))
			for participantID := range loaded {
				removed = append(removed, participantID)
			}
			if err := tx.Where("game_id = ? AND id IN ?", id, removed).
				Delete(&Participant{}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &game, nil
}

// AddParticipant inserts a participant. Joining twice with the same
// chat id returns the existing record.
func (s *GameStore) AddParticipant(gameID uint, chatID int64, name string) (*Participant, error) {
	record := Participant{
		GameID: gameID,
		ChatID: chatID,
		Name:   name,
	}
	if err := s.conn.Create(&record).Error; err != nil {
		if isUniqueViolation(err) {
			var existing Participant
			lookupErr := s.conn.Where("game_id = ? AND chat_id = ?", gameID, chatID).
				First(&existing).Error
			if lookupErr == nil {
				return &existing, nil
			}
		}
		return nil, err
	}
	return &record, nil
}

func (s *GameStore) RemoveParticipant(gameID, participantID uint) error {
	result := s.conn.Where("game_id = ? AND id = ?", gameID, participantID).
		Delete(&Participant{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errors.New("participant not found")
	}
	return nil
}
