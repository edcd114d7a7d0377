package game

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"hideout/internal/db"
)

var errTestDelivery = errors.New("delivery failed")

type fakeGames struct {
	mu                sync.Mutex
	nextGameID        uint
	nextParticipantID uint
	games             map[uint]*db.Game
	removeCalls       int
}

func newFakeGames() *fakeGames {
	return &fakeGames{nextGameID: 1, nextParticipantID: 1, games: make(map[uint]*db.Game)}
}

func (f *fakeGames) Create(game *db.Game) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	game.ID = f.nextGameID
	f.nextGameID++
	f.games[game.ID] = game
	return nil
}

func (f *fakeGames) ByID(id uint) (*db.Game, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	game, ok := f.games[id]
	if !ok {
		return nil, db.ErrGameNotFound
	}
	return game, nil
}

func (f *fakeGames) ByCode(code string) (*db.Game, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, game := range f.games {
		if game.Code == code {
			return game, nil
		}
	}
	return nil, db.ErrGameNotFound
}

func (f *fakeGames) Update(id uint, fn func(game *db.Game) error) (*db.Game, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	game, ok := f.games[id]
	if !ok {
		return nil, db.ErrGameNotFound
	}
	if err := fn(game); err != nil {
		return nil, err
	}
	return game, nil
}

func (f *fakeGames) AddParticipant(gameID uint, chatID int64, name string) (*db.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	game, ok := f.games[gameID]
	if !ok {
		return nil, db.ErrGameNotFound
	}
	for i := range game.Participants {
		if game.Participants[i].ChatID == chatID {
			return &game.Participants[i], nil
		}
	}
	participant := db.Participant{
		ID:     f.nextParticipantID,
		GameID: gameID,
		ChatID: chatID,
		Name:   name,
	}
	f.nextParticipantID++
	game.Participants = append(game.Participants, participant)
	return &game.Participants[len(game.Participants)-1], nil
}

func (f *fakeGames) RemoveParticipant(gameID, participantID uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removeCalls++
	game, ok := f.games[gameID]
	if !ok {
		return db.ErrGameNotFound
	}
	for i := range game.Participants {
		if game.Participants[i].ID == participantID {
			game.Participants = append(game.Participants[:i], game.Participants[i+1:]...)
			return nil
		}
	}
	return errors.New("participant not found")
}

type fakeScheduler struct {
	mu      sync.Mutex
	nextID  uint
	pending []db.ScheduledEvent
	calls   []string
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{nextID: 1}
}

func (f *fakeScheduler) Schedule(gameID uint, kind db.EventKind, at time.Time, payload map[string]any) (*db.ScheduledEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	event := db.ScheduledEvent{
		ID:          f.nextID,
		GameID:      gameID,
		Kind:        kind,
		ScheduledAt: at,
		Payload:     body,
	}
	f.nextID++
	f.pending = append(f.pending, event)
	f.calls = append(f.calls, fmt.Sprintf("schedule:%s", kind))
	return &event, nil
}

func (f *fakeScheduler) CancelGame(gameID uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var kept []db.ScheduledEvent
	for _, event := range f.pending {
		if event.GameID != gameID {
			kept = append(kept, event)
		}
	}
	f.pending = kept
	f.calls = append(f.calls, "cancel")
	return nil
}

func (f *fakeScheduler) pendingKinds(gameID uint) []db.EventKind {
	f.mu.Lock()
	defer f.mu.Unlock()
	var kinds []db.EventKind
	for _, event := range f.pending {
		if event.GameID == gameID {
			kinds = append(kinds, event.Kind)
		}
	}
	return kinds
}

func (f *fakeScheduler) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type notifyBatch struct {
	ChatIDs []int64
	Text    string
}

type fakeNotifier struct {
	mu      sync.Mutex
	batches []notifyBatch
	failing map[int64]error
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{}
}

func (f *fakeNotifier) Send(chatIDs []int64, text string) map[int64]error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, notifyBatch{ChatIDs: append([]int64(nil), chatIDs...), Text: text})
	var failures map[int64]error
	for _, chatID := range chatIDs {
		if err, ok := f.failing[chatID]; ok {
			if failures == nil {
				failures = make(map[int64]error)
			}
			failures[chatID] = err
		}
	}
	return failures
}

func (f *fakeNotifier) batchesContaining(substr string) []notifyBatch {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matched []notifyBatch
	for _, batch := range f.batches {
		if strings.Contains(batch.Text, substr) {
			matched = append(matched, batch)
		}
	}
	return matched
}
