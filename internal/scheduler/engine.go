package scheduler

import (
	"fmt"
	"log"
	"sync"
	"time"

	"hideout/internal/db"
)

// EventStore is the durable side of the engine. Satisfied by
// *db.EventStore; event status is never cached in memory, every check
// goes through the store.
type EventStore interface {
	Save(gameID uint, kind db.EventKind, at time.Time, payload map[string]any) (*db.ScheduledEvent, error)
	ByID(id uint) (*db.ScheduledEvent, error)
	Pending() ([]db.ScheduledEvent, error)
	CancelForGame(gameID uint) (int64, error)
	MarkExecuted(id uint) (bool, error)
}

// Handler executes the action for a fired event. A nil return means the
// event is done (including guard-violation no-ops); an error leaves the
// event pending so it surfaces as overdue instead of being lost.
type Handler interface {
	HandleEvent(event db.ScheduledEvent) error
}

type armedTimer struct {
	timer  *time.Timer
	gameID uint
}

// Engine owns the in-process timer set for all persisted events. One
// engine instance is shared by every caller that arms or cancels
// events; there is no ambient global.
type Engine struct {
	store   EventStore
	handler Handler
	grace   time.Duration
	now     func() time.Time

	// runMu serializes firings: a handler runs to completion before
	// the next fire is considered.
	runMu sync.Mutex

	timersMu sync.Mutex
	timers   map[string]*armedTimer
}

func New(store EventStore, grace time.Duration) *Engine {
	return &Engine{
		store:  store,
		grace:  grace,
		now:    func() time.Time { return time.Now().UTC() },
		timers: make(map[string]*armedTimer),
	}
}

// SetHandler wires the execution side. The engine and the lifecycle
// reference each other only through their narrow interfaces, so the
// handler is attached after both are constructed.
func (e *Engine) SetHandler(handler Handler) {
	e.handler = handler
}

func jobID(event db.ScheduledEvent) string {
	return fmt.Sprintf("%s-%d-%d", event.Kind, event.GameID, event.ID)
}

// Schedule persists an event and arms its timer.
func (e *Engine) Schedule(gameID uint, kind db.EventKind, at time.Time, payload map[string]any) (*db.ScheduledEvent, error) {
	event, err := e.store.Save(gameID, kind, at, payload)
	if err != nil {
		return nil, err
	}
	e.Arm(*event)
	return event, nil
}

// Arm registers a timer for the event. The timer key is deterministic,
// so re-arming the same event replaces the old timer instead of
// duplicating it. Events already past due fire immediately.
func (e *Engine) Arm(event db.ScheduledEvent) {
	key := jobID(event)
	delay := event.ScheduledAt.Sub(e.now())
	if delay < 0 {
		delay = 0
	}
	e.timersMu.Lock()
	if existing, ok := e.timers[key]; ok {
		existing.timer.Stop()
	}
	timer := time.AfterFunc(delay, func() {
		e.fire(key, event.ID)
	})
	e.timers[key] = &armedTimer{timer: timer, gameID: event.GameID}
	e.timersMu.Unlock()
}

// CancelGame retires every pending event for a game: the store rows are
// marked executed and any resident timers are stopped.
func (e *Engine) CancelGame(gameID uint) error {
	count, err := e.store.CancelForGame(gameID)
	if err != nil {
		return err
	}
	e.timersMu.Lock()
	for key, armed := range e.timers {
		if armed.gameID == gameID {
			armed.timer.Stop()
			delete(e.timers, key)
		}
	}
	e.timersMu.Unlock()
	if count > 0 {
		log.Printf("events canceled game_id=%d count=%d", gameID, count)
	}
	return nil
}

// RecoverPending re-arms all pending events after a restart. Events
// past due by more than the grace window are left for the operator
// console instead of firing a storm of stale actions.
func (e *Engine) RecoverPending() error {
	events, err := e.store.Pending()
	if err != nil {
		return err
	}
	armed, overdue := 0, 0
	now := e.now()
	for _, event := range events {
		if now.Sub(event.ScheduledAt) > e.grace {
			overdue++
			log.Printf("overdue event skipped event_id=%d game_id=%d kind=%s scheduled_at=%s",
				event.ID, event.GameID, event.Kind, event.ScheduledAt.Format(time.RFC3339))
			continue
		}
		e.Arm(event)
		armed++
	}
	log.Printf("event recovery complete armed=%d overdue=%d", armed, overdue)
	return nil
}

// ArmedCount reports how many timers are resident, for diagnostics.
func (e *Engine) ArmedCount() int {
	e.timersMu.Lock()
	defer e.timersMu.Unlock()
	return len(e.timers)
}

// Stop cancels all resident timers without touching the store.
func (e *Engine) Stop() {
	e.timersMu.Lock()
	defer e.timersMu.Unlock()
	for key, armed := range e.timers {
		armed.timer.Stop()
		delete(e.timers, key)
	}
}

func (e *Engine) fire(key string, eventID uint) {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	e.timersMu.Lock()
	delete(e.timers, key)
	e.timersMu.Unlock()

	event, err := e.store.ByID(eventID)
	if err != nil {
		log.Printf("event load failed event_id=%d error=%v", eventID, err)
		return
	}
	if event.Executed {
		log.Printf("event already executed, skipping event_id=%d kind=%s", event.ID, event.Kind)
		return
	}
	if err := e.dispatch(*event); err != nil {
		log.Printf("event handler failed event_id=%d game_id=%d kind=%s error=%v",
			event.ID, event.GameID, event.Kind, err)
		return
	}
	done, err := e.store.MarkExecuted(event.ID)
	if err != nil {
		log.Printf("mark executed failed event_id=%d error=%v", event.ID, err)
		return
	}
	if !done {
		log.Printf("event executed concurrently event_id=%d kind=%s", event.ID, event.Kind)
	}
}

// dispatch runs the handler behind a recover boundary so one broken
// game cannot stop the scheduler for all others.
func (e *Engine) dispatch(event db.ScheduledEvent) (err error) {
	if e.handler == nil {
		return fmt.Errorf("no handler attached")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return e.handler.HandleEvent(event)
}
