package main

import (
	"log"
	"net/http"
	"os"
	"time"

	"hideout/internal/config"
	"hideout/internal/db"
	"hideout/internal/game"
	"hideout/internal/notify"
	"hideout/internal/scheduler"
	"hideout/internal/server"
)

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		log.Printf("failed to load .env: %v", err)
	}
	cfg := config.Load()

	conn, err := db.Open()
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	if err := db.Migrate(conn); err != nil {
		log.Fatalf("database migration failed: %v", err)
	}
	if err := db.ConfigurePool(conn, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns,
		cfg.DBConnMaxLifetimeSeconds, cfg.DBConnMaxIdleTimeSeconds); err != nil {
		log.Fatalf("database pool setup failed: %v", err)
	}

	events := db.NewEventStore(conn)
	games := db.NewGameStore(conn)

	var notifier notify.Notifier = notify.LogNotifier{}
	if cfg.TelegramToken != "" {
		notifier = notify.NewTelegramNotifier(cfg.TelegramToken)
	}

	engine := scheduler.New(events, cfg.OverdueGrace())
	life := game.NewLifecycle(games, engine, notifier, cfg)
	engine.SetHandler(life)

	if err := engine.RecoverPending(); err != nil {
		log.Fatalf("event recovery failed: %v", err)
	}
	go retentionLoop(events, cfg.RetentionAge())

	addr := ":8080"
	if env := os.Getenv("PORT"); env != "" {
		addr = ":" + env
	}
	srv := server.New(life, games, events, cfg)
	log.Printf("hideout server listening on %s timezone=%s", addr, cfg.Timezone)
	if err := http.ListenAndServe(addr, srv.Handler()); err != nil {
		log.Fatal(err)
	}
}

// retentionLoop purges old executed events once at startup and then
// daily.
func retentionLoop(events *db.EventStore, age time.Duration) {
	purge := func() {
		count, err := events.PurgeOlderThan(age)
		if err != nil {
			log.Printf("event purge failed error=%v", err)
			return
		}
		if count > 0 {
			log.Printf("executed events purged count=%d", count)
		}
	}
	purge()
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for range ticker.C {
		purge()
	}
}
