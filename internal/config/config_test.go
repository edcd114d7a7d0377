package config

import (
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.RetentionDays != 7 {
		t.Fatalf("expected 7-day retention default, got %d", cfg.RetentionDays)
	}
	if cfg.Location() != time.UTC {
		t.Fatalf("expected UTC default, got %v", cfg.Location())
	}
	if cfg.HidingDuration() != 60*time.Minute {
		t.Fatalf("unexpected hiding duration %v", cfg.HidingDuration())
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("TIMEZONE", "Europe/Berlin")
	t.Setenv("HIDING_MINUTES", "45")
	t.Setenv("REMINDER_MINUTES", "120, 30,5")
	t.Setenv("MIN_PARTICIPANTS", "4")
	t.Setenv("ADMIN_CHAT_IDS", "42,-1001234")

	cfg := Load()
	if cfg.Timezone != "Europe/Berlin" {
		t.Fatalf("timezone not applied: %s", cfg.Timezone)
	}
	if cfg.Location().String() != "Europe/Berlin" {
		t.Fatalf("location not resolved: %v", cfg.Location())
	}
	if cfg.HidingMinutes != 45 {
		t.Fatalf("hiding minutes not applied: %d", cfg.HidingMinutes)
	}
	if len(cfg.ReminderMinutes) != 3 || cfg.ReminderMinutes[0] != 120 || cfg.ReminderMinutes[2] != 5 {
		t.Fatalf("reminder list not parsed: %v", cfg.ReminderMinutes)
	}
	if cfg.MinParticipants != 4 {
		t.Fatalf("min participants not applied: %d", cfg.MinParticipants)
	}
	if len(cfg.AdminChatIDs) != 2 || cfg.AdminChatIDs[1] != -1001234 {
		t.Fatalf("admin chat ids not parsed: %v", cfg.AdminChatIDs)
	}
}

func TestLoadEmptyReminderListMeansNoReminders(t *testing.T) {
	t.Setenv("REMINDER_MINUTES", "")
	cfg := Load()
	if len(cfg.ReminderMinutes) != 0 {
		t.Fatalf("expected no reminders, got %v", cfg.ReminderMinutes)
	}
}

func TestLoadIgnoresJunkValues(t *testing.T) {
	t.Setenv("TIMEZONE", "Mars/Olympus")
	t.Setenv("HIDING_MINUTES", "-5")
	t.Setenv("REMINDER_MINUTES", "abc,15")

	cfg := Load()
	if cfg.Location() != time.UTC {
		t.Fatalf("bad timezone must fall back to UTC, got %v", cfg.Location())
	}
	if cfg.HidingMinutes != Default().HidingMinutes {
		t.Fatalf("negative duration accepted: %d", cfg.HidingMinutes)
	}
	if len(cfg.ReminderMinutes) != 1 || cfg.ReminderMinutes[0] != 15 {
		t.Fatalf("junk reminder entries not filtered: %v", cfg.ReminderMinutes)
	}
}
