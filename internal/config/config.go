package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads environment variables from a .env file if present.
// Existing environment variables are not overwritten.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return godotenv.Load(path)
}

type Config struct {
	Timezone                 string
	HidingMinutes            int
	HidingWarningMinutes     int
	SearchingMinutes         int
	ReminderMinutes          []int
	MinParticipants          int
	RetentionDays            int
	OverdueGraceSeconds      int
	AdminChatIDs             []int64
	TelegramToken            string
	DBMaxOpenConns           int
	DBMaxIdleConns           int
	DBConnMaxLifetimeSeconds int
	DBConnMaxIdleTimeSeconds int

	location *time.Location
}

func Default() Config {
	return Config{
		Timezone:                 "UTC",
		HidingMinutes:            60,
		HidingWarningMinutes:     10,
		SearchingMinutes:         120,
		ReminderMinutes:          []int{60, 15},
		MinParticipants:          3,
		RetentionDays:            7,
		OverdueGraceSeconds:      300,
		DBMaxOpenConns:           10,
		DBMaxIdleConns:           10,
		DBConnMaxLifetimeSeconds: 300,
		DBConnMaxIdleTimeSeconds: 60,
		location:                 time.UTC,
	}
}

func Load() Config {
	cfg := Default()
	if raw := os.Getenv("TIMEZONE"); raw != "" {
		cfg.Timezone = raw
	}
	if raw := os.Getenv("HIDING_MINUTES"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.HidingMinutes = value
		}
	}
	if raw := os.Getenv("HIDING_WARNING_MINUTES"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value >= 0 {
			cfg.HidingWarningMinutes = value
		}
	}
	if raw := os.Getenv("SEARCHING_MINUTES"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.SearchingMinutes = value
		}
	}
	if raw, ok := os.LookupEnv("REMINDER_MINUTES"); ok {
		cfg.ReminderMinutes = parseMinutesList(raw)
	}
	if raw := os.Getenv("MIN_PARTICIPANTS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.MinParticipants = value
		}
	}
	if raw := os.Getenv("RETENTION_DAYS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.RetentionDays = value
		}
	}
	if raw := os.Getenv("OVERDUE_GRACE_SECONDS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value >= 0 {
			cfg.OverdueGraceSeconds = value
		}
	}
	if raw := os.Getenv("ADMIN_CHAT_IDS"); raw != "" {
		cfg.AdminChatIDs = parseChatIDList(raw)
	}
	if raw := os.Getenv("TELEGRAM_BOT_TOKEN"); raw != "" {
		cfg.TelegramToken = raw
	}
	if raw := os.Getenv("DB_MAX_OPEN_CONNS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.DBMaxOpenConns = value
		}
	}
	if raw := os.Getenv("DB_MAX_IDLE_CONNS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.DBMaxIdleConns = value
		}
	}
	if raw := os.Getenv("DB_CONN_MAX_LIFETIME_SECONDS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.DBConnMaxLifetimeSeconds = value
		}
	}
	if raw := os.Getenv("DB_CONN_MAX_IDLE_SECONDS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.DBConnMaxIdleTimeSeconds = value
		}
	}
	cfg.location = resolveLocation(cfg.Timezone)
	return cfg
}

// Location is the canonical time zone. All timestamps are normalized to
// this zone once on input and rendered from it once on output.
func (c Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

func (c Config) HidingDuration() time.Duration {
	return time.Duration(c.HidingMinutes) * time.Minute
}

func (c Config) HidingWarningLead() time.Duration {
	return time.Duration(c.HidingWarningMinutes) * time.Minute
}

func (c Config) SearchingDuration() time.Duration {
	return time.Duration(c.SearchingMinutes) * time.Minute
}

func (c Config) RetentionAge() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

func (c Config) OverdueGrace() time.Duration {
	return time.Duration(c.OverdueGraceSeconds) * time.Second
}

func resolveLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		log.Printf("unknown timezone %q, falling back to UTC: %v", name, err)
		return time.UTC
	}
	return loc
}

func parseMinutesList(raw string) []int {
	var minutes []int
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		value, err := strconv.Atoi(part)
		if err != nil || value <= 0 {
			log.Printf("ignoring invalid reminder lead time %q", part)
			continue
		}
		minutes = append(minutes, value)
	}
	return minutes
}

func parseChatIDList(raw string) []int64 {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		value, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			log.Printf("ignoring invalid admin chat id %q", part)
			continue
		}
		ids = append(ids, value)
	}
	return ids
}
