package game

import (
	"testing"
	"time"

	"hideout/internal/config"
	"hideout/internal/db"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.MinParticipants = 3
	cfg.ReminderMinutes = []int{60, 15}
	return cfg
}

func newTestLifecycle(t *testing.T, cfg config.Config) (*Lifecycle, *fakeGames, *fakeScheduler, *fakeNotifier) {
	t.Helper()
	games := newFakeGames()
	sched := newFakeScheduler()
	notifier := newFakeNotifier()
	return NewLifecycle(games, sched, notifier, cfg), games, sched, notifier
}

func createScheduledGame(t *testing.T, life *Lifecycle, start time.Time, maxParticipants, maxDrivers, joiners int) *db.Game {
	t.Helper()
	game, err := life.CreateGame("Friday Hunt", &start, maxParticipants, maxDrivers)
	if err != nil {
		t.Fatalf("create game failed: %v", err)
	}
	for i := 0; i < joiners; i++ {
		if _, _, err := life.Join(game.Code, int64(100+i), "player"); err != nil {
			t.Fatalf("join %d failed: %v", i, err)
		}
	}
	return game
}

func TestCreateGameValidatesDriverCap(t *testing.T) {
	life, _, _, _ := newTestLifecycle(t, testConfig())
	if _, err := life.CreateGame("bad", nil, 4, 4); err == nil {
		t.Fatal("expected error for max_drivers == max_participants")
	}
	if _, err := life.CreateGame("bad", nil, 4, 0); err == nil {
		t.Fatal("expected error for zero drivers")
	}
}

func TestScheduleDerivesFullEventSet(t *testing.T) {
	life, _, sched, _ := newTestLifecycle(t, testConfig())
	start := time.Now().UTC().Add(2 * time.Hour)
	game := createScheduledGame(t, life, start, 4, 1, 0)

	kinds := sched.pendingKinds(game.ID)
	want := map[db.EventKind]int{
		db.KindReminder:      2,
		db.KindPhaseStart:    1,
		db.KindHidingWarning: 1,
		db.KindHidingEnd:     1,
		db.KindSearchingEnd:  1,
		db.KindCleanup:       1,
	}
	got := make(map[db.EventKind]int)
	for _, kind := range kinds {
		got[kind]++
	}
	for kind, count := range want {
		if got[kind] != count {
			t.Fatalf("expected %d %s events, got %d (all: %v)", count, kind, got[kind], kinds)
		}
	}
}

func TestScheduleSkipsReminderAlreadyInPast(t *testing.T) {
	cfg := testConfig()
	cfg.ReminderMinutes = []int{1}
	life, _, sched, _ := newTestLifecycle(t, cfg)
	// The game is 30 seconds out, so the 1-minute reminder time has
	// already passed. phase_start must still be created.
	start := time.Now().UTC().Add(30 * time.Second)
	game := createScheduledGame(t, life, start, 4, 1, 0)

	hasPhaseStart := false
	for _, kind := range sched.pendingKinds(game.ID) {
		if kind == db.KindReminder {
			t.Fatal("reminder in the past must not be created")
		}
		if kind == db.KindPhaseStart {
			hasPhaseStart = true
		}
	}
	if !hasPhaseStart {
		t.Fatal("phase_start missing")
	}
}

func TestRescheduleCancelsBeforeRecreating(t *testing.T) {
	life, _, sched, _ := newTestLifecycle(t, testConfig())
	start := time.Now().UTC().Add(2 * time.Hour)
	game := createScheduledGame(t, life, start, 4, 1, 2)

	if _, err := life.Reschedule(game.ID, start.Add(24*time.Hour)); err != nil {
		t.Fatalf("reschedule failed: %v", err)
	}
	calls := sched.callLog()
	lastCancel := -1
	for i, call := range calls {
		if call == "cancel" {
			lastCancel = i
		}
	}
	if lastCancel < 0 {
		t.Fatal("reschedule never canceled the old schedule")
	}
	for _, call := range calls[lastCancel+1:] {
		if call == "cancel" {
			t.Fatal("unexpected trailing cancel")
		}
	}
	if len(calls[lastCancel+1:]) == 0 {
		t.Fatal("no events scheduled after cancel")
	}
}

func TestPhaseStartAssignsRoles(t *testing.T) {
	life, games, _, _ := newTestLifecycle(t, testConfig())
	start := time.Now().UTC().Add(time.Hour)
	game := createScheduledGame(t, life, start, 4, 1, 4)

	if err := life.HandleEvent(db.ScheduledEvent{GameID: game.ID, Kind: db.KindPhaseStart}); err != nil {
		t.Fatalf("phase_start failed: %v", err)
	}
	updated, _ := games.ByID(game.ID)
	if updated.Status != db.StatusHiding {
		t.Fatalf("expected hiding, got %s", updated.Status)
	}
	if updated.StartedAt == nil {
		t.Fatal("started_at not set")
	}
	if drivers := len(updated.Drivers()); drivers != 1 {
		t.Fatalf("expected 1 driver, got %d", drivers)
	}
	if seekers := seekerCount(updated); seekers != 3 {
		t.Fatalf("expected 3 seekers, got %d", seekers)
	}
}

func TestPhaseStartBelowMinimumCancels(t *testing.T) {
	life, games, sched, notifier := newTestLifecycle(t, testConfig())
	start := time.Now().UTC().Add(time.Hour)
	game := createScheduledGame(t, life, start, 4, 1, 2)

	if err := life.HandleEvent(db.ScheduledEvent{GameID: game.ID, Kind: db.KindPhaseStart}); err != nil {
		t.Fatalf("phase_start failed: %v", err)
	}
	updated, _ := games.ByID(game.ID)
	if updated.Status != db.StatusCanceled {
		t.Fatalf("expected canceled, got %s", updated.Status)
	}
	if kinds := sched.pendingKinds(game.ID); len(kinds) != 0 {
		t.Fatalf("expected no pending events, got %v", kinds)
	}
	if len(notifier.batchesContaining("canceled")) == 0 {
		t.Fatal("cancellation never announced")
	}
}

func TestStaleEventIsLoggedNoOp(t *testing.T) {
	life, games, _, _ := newTestLifecycle(t, testConfig())
	start := time.Now().UTC().Add(time.Hour)
	game := createScheduledGame(t, life, start, 4, 1, 4)
	if err := life.StartEarly(game.ID); err != nil {
		t.Fatalf("start early failed: %v", err)
	}

	// The original phase_start timer fires after the manual start; it
	// must consume cleanly without touching the game.
	if err := life.HandleEvent(db.ScheduledEvent{GameID: game.ID, Kind: db.KindPhaseStart}); err != nil {
		t.Fatalf("stale phase_start must be a no-op, got %v", err)
	}
	updated, _ := games.ByID(game.ID)
	if updated.Status != db.StatusHiding {
		t.Fatalf("stale event changed status to %s", updated.Status)
	}
}

func TestStartEarlyBypassesMinimumAndRederivesTimers(t *testing.T) {
	life, games, sched, _ := newTestLifecycle(t, testConfig())
	start := time.Now().UTC().Add(time.Hour)
	game := createScheduledGame(t, life, start, 4, 1, 2)

	if err := life.StartEarly(game.ID); err != nil {
		t.Fatalf("start early failed: %v", err)
	}
	updated, _ := games.ByID(game.ID)
	if updated.Status != db.StatusHiding {
		t.Fatalf("expected hiding, got %s", updated.Status)
	}
	kinds := sched.pendingKinds(game.ID)
	for _, kind := range kinds {
		if kind == db.KindPhaseStart || kind == db.KindReminder {
			t.Fatalf("pre-start event still pending after early start: %v", kinds)
		}
	}
	hasHidingEnd := false
	for _, kind := range kinds {
		if kind == db.KindHidingEnd {
			hasHidingEnd = true
		}
	}
	if !hasHidingEnd {
		t.Fatalf("hiding_end not re-derived: %v", kinds)
	}
}

func TestFullScenario(t *testing.T) {
	life, games, _, notifier := newTestLifecycle(t, testConfig())
	start := time.Now().UTC().Add(time.Hour)
	game := createScheduledGame(t, life, start, 4, 1, 4)

	if err := life.HandleEvent(db.ScheduledEvent{GameID: game.ID, Kind: db.KindPhaseStart}); err != nil {
		t.Fatalf("phase_start failed: %v", err)
	}
	if err := life.HandleEvent(db.ScheduledEvent{GameID: game.ID, Kind: db.KindHidingEnd}); err != nil {
		t.Fatalf("hiding_end failed: %v", err)
	}
	updated, _ := games.ByID(game.ID)
	if updated.Status != db.StatusSearching {
		t.Fatalf("expected searching, got %s", updated.Status)
	}

	drivers := updated.Drivers()
	if len(drivers) != 1 {
		t.Fatalf("expected 1 driver, got %d", len(drivers))
	}
	if err := life.MarkFound(game.ID, drivers[0].ID, true); err != nil {
		t.Fatalf("mark found failed: %v", err)
	}
	updated, _ = games.ByID(game.ID)
	if updated.Status != db.StatusCompleted {
		t.Fatalf("expected completed, got %s", updated.Status)
	}
	if updated.EndedAt == nil {
		t.Fatal("ended_at not set")
	}
	if got := len(notifier.batchesContaining("Game over")); got != 1 {
		t.Fatalf("expected exactly one completion batch, got %d", got)
	}
}

func TestCompletionRequiresAllDrivers(t *testing.T) {
	life, games, _, _ := newTestLifecycle(t, testConfig())
	start := time.Now().UTC().Add(time.Hour)
	game := createScheduledGame(t, life, start, 5, 2, 5)

	if err := life.HandleEvent(db.ScheduledEvent{GameID: game.ID, Kind: db.KindPhaseStart}); err != nil {
		t.Fatalf("phase_start failed: %v", err)
	}
	updated, _ := games.ByID(game.ID)
	drivers := updated.Drivers()
	if len(drivers) != 2 {
		t.Fatalf("expected 2 drivers, got %d", len(drivers))
	}
	if err := life.MarkFound(game.ID, drivers[0].ID, true); err != nil {
		t.Fatalf("mark found failed: %v", err)
	}
	updated, _ = games.ByID(game.ID)
	if updated.Status == db.StatusCompleted {
		t.Fatal("game completed with an unfound driver")
	}
	if err := life.MarkFound(game.ID, drivers[1].ID, true); err != nil {
		t.Fatalf("mark found failed: %v", err)
	}
	updated, _ = games.ByID(game.ID)
	if updated.Status != db.StatusCompleted {
		t.Fatalf("expected completed, got %s", updated.Status)
	}
}

func TestUnmarkDriverReopensToSearching(t *testing.T) {
	life, games, sched, _ := newTestLifecycle(t, testConfig())
	start := time.Now().UTC().Add(time.Hour)
	game := createScheduledGame(t, life, start, 4, 1, 4)

	if err := life.HandleEvent(db.ScheduledEvent{GameID: game.ID, Kind: db.KindPhaseStart}); err != nil {
		t.Fatalf("phase_start failed: %v", err)
	}
	if err := life.HandleEvent(db.ScheduledEvent{GameID: game.ID, Kind: db.KindHidingEnd}); err != nil {
		t.Fatalf("hiding_end failed: %v", err)
	}
	updated, _ := games.ByID(game.ID)
	driver := updated.Drivers()[0]
	if err := life.MarkFound(game.ID, driver.ID, true); err != nil {
		t.Fatalf("mark found failed: %v", err)
	}

	if err := life.MarkFound(game.ID, driver.ID, false); err != nil {
		t.Fatalf("unmark failed: %v", err)
	}
	updated, _ = games.ByID(game.ID)
	if updated.Status != db.StatusSearching {
		t.Fatalf("expected re-open to searching, got %s", updated.Status)
	}
	if updated.EndedAt != nil {
		t.Fatal("ended_at not cleared on re-open")
	}
	hasFallback := false
	for _, kind := range sched.pendingKinds(game.ID) {
		if kind == db.KindSearchingEnd {
			hasFallback = true
		}
	}
	if !hasFallback {
		t.Fatal("re-open must re-derive the searching_end fallback")
	}
}

func TestSearchingEndForceCompletes(t *testing.T) {
	life, games, _, _ := newTestLifecycle(t, testConfig())
	start := time.Now().UTC().Add(time.Hour)
	game := createScheduledGame(t, life, start, 4, 1, 4)

	if err := life.HandleEvent(db.ScheduledEvent{GameID: game.ID, Kind: db.KindPhaseStart}); err != nil {
		t.Fatalf("phase_start failed: %v", err)
	}
	if err := life.HandleEvent(db.ScheduledEvent{GameID: game.ID, Kind: db.KindHidingEnd}); err != nil {
		t.Fatalf("hiding_end failed: %v", err)
	}
	if err := life.HandleEvent(db.ScheduledEvent{GameID: game.ID, Kind: db.KindSearchingEnd}); err != nil {
		t.Fatalf("searching_end failed: %v", err)
	}
	updated, _ := games.ByID(game.ID)
	if updated.Status != db.StatusCompleted {
		t.Fatalf("expected completed, got %s", updated.Status)
	}
}

func TestForceEndRetiresPendingEvents(t *testing.T) {
	life, games, sched, _ := newTestLifecycle(t, testConfig())
	start := time.Now().UTC().Add(time.Hour)
	game := createScheduledGame(t, life, start, 4, 1, 4)

	if err := life.HandleEvent(db.ScheduledEvent{GameID: game.ID, Kind: db.KindPhaseStart}); err != nil {
		t.Fatalf("phase_start failed: %v", err)
	}
	if err := life.ForceEnd(game.ID); err != nil {
		t.Fatalf("force end failed: %v", err)
	}
	updated, _ := games.ByID(game.ID)
	if updated.Status != db.StatusCompleted {
		t.Fatalf("expected completed, got %s", updated.Status)
	}
	if kinds := sched.pendingKinds(game.ID); len(kinds) != 0 {
		t.Fatalf("expected no pending events after force end, got %v", kinds)
	}
}

func TestReminderSendsToAllParticipants(t *testing.T) {
	life, _, _, notifier := newTestLifecycle(t, testConfig())
	start := time.Now().UTC().Add(2 * time.Hour)
	game := createScheduledGame(t, life, start, 4, 1, 3)

	event := db.ScheduledEvent{
		GameID:  game.ID,
		Kind:    db.KindReminder,
		Payload: []byte(`{"minutes_before":60}`),
	}
	if err := life.HandleEvent(event); err != nil {
		t.Fatalf("reminder failed: %v", err)
	}
	batches := notifier.batchesContaining("60 minutes")
	if len(batches) != 1 {
		t.Fatalf("expected one reminder batch, got %d", len(batches))
	}
	if len(batches[0].ChatIDs) != 3 {
		t.Fatalf("expected 3 recipients, got %d", len(batches[0].ChatIDs))
	}
}

func TestNotificationFailureNeverAbortsTransition(t *testing.T) {
	life, games, _, notifier := newTestLifecycle(t, testConfig())
	notifier.failing = map[int64]error{100: errTestDelivery}
	start := time.Now().UTC().Add(time.Hour)
	game := createScheduledGame(t, life, start, 4, 1, 4)

	if err := life.HandleEvent(db.ScheduledEvent{GameID: game.ID, Kind: db.KindPhaseStart}); err != nil {
		t.Fatalf("phase_start must succeed despite delivery failures: %v", err)
	}
	updated, _ := games.ByID(game.ID)
	if updated.Status != db.StatusHiding {
		t.Fatalf("expected hiding, got %s", updated.Status)
	}
}
