package game

import (
	"fmt"
	"log"
	"time"

	"hideout/internal/db"
)

// Notification fan-out. Per-recipient failures are logged here and go
// no further; a transition never waits on delivery.

func (l *Lifecycle) send(chatIDs []int64, text string) {
	if len(chatIDs) == 0 {
		return
	}
	for chatID, err := range l.notifier.Send(chatIDs, text) {
		log.Printf("notification failed chat_id=%d error=%v", chatID, err)
	}
}

func (l *Lifecycle) notifyParticipants(game *db.Game, text string) {
	ids := make([]int64, 0, len(game.Participants))
	for _, p := range game.Participants {
		ids = append(ids, p.ChatID)
	}
	l.send(ids, text)
}

func (l *Lifecycle) notifyRole(game *db.Game, role, text string) {
	var ids []int64
	for _, p := range game.Participants {
		if p.Role == role {
			ids = append(ids, p.ChatID)
		}
	}
	l.send(ids, text)
}

func (l *Lifecycle) notifyAdmins(text string) {
	l.send(l.cfg.AdminChatIDs, text)
}

func reminderText(game *db.Game, minutesBefore int) string {
	if minutesBefore <= 0 {
		return fmt.Sprintf("Reminder: %q is starting soon.", game.Title)
	}
	return fmt.Sprintf("Reminder: %q starts in %d minutes.", game.Title, minutesBefore)
}

func rescheduledText(game *db.Game, loc *time.Location) string {
	when := "a new time"
	if game.ScheduledAt != nil {
		when = game.ScheduledAt.In(loc).Format("Mon 2 Jan 15:04")
	}
	return fmt.Sprintf("%q has been rescheduled to %s.", game.Title, when)
}

func tooFewParticipantsText(game *db.Game, min int) string {
	return fmt.Sprintf("%q was canceled: %d participants signed up, %d are needed.",
		game.Title, len(game.Participants), min)
}

func canceledText(game *db.Game) string {
	return fmt.Sprintf("%q was canceled by an organizer.", game.Title)
}

func hidingDriverText(game *db.Game, origin Origin, hidingMinutes int) string {
	lead := fmt.Sprintf("%q has begun!", game.Title)
	if origin == OriginEarly {
		lead = fmt.Sprintf("%q is starting early!", game.Title)
	}
	return fmt.Sprintf("%s You are a driver. You have %d minutes to hide your vehicle, then confirm you are hidden.",
		lead, hidingMinutes)
}

func hidingSeekerText(game *db.Game, origin Origin, hidingMinutes int) string {
	lead := fmt.Sprintf("%q has begun!", game.Title)
	if origin == OriginEarly {
		lead = fmt.Sprintf("%q is starting early!", game.Title)
	}
	return fmt.Sprintf("%s You are a seeker. The drivers have %d minutes to hide; sit tight until the search opens.",
		lead, hidingMinutes)
}

func hidingWarningText(game *db.Game, minutesLeft int) string {
	return fmt.Sprintf("%q: %d minutes of hiding time left and you have not confirmed you are hidden yet.",
		game.Title, minutesLeft)
}

func warningSummaryText(game *db.Game, confirmed, total int) string {
	return fmt.Sprintf("%q hiding warning: %d/%d drivers confirmed hidden.", game.Title, confirmed, total)
}

func searchingDriverText(game *db.Game, origin Origin) string {
	if origin == OriginManual {
		return fmt.Sprintf("An organizer opened the search in %q early. Stay put, the seekers are coming.", game.Title)
	}
	return fmt.Sprintf("Hiding time in %q is over. Stay put, the seekers are coming.", game.Title)
}

func searchingSeekerText(game *db.Game, origin Origin) string {
	if origin == OriginManual {
		return fmt.Sprintf("An organizer opened the search in %q early. Go find those vehicles!", game.Title)
	}
	return fmt.Sprintf("The search in %q is open. Go find those vehicles!", game.Title)
}

func timeUpText(game *db.Game, origin Origin) string {
	if origin == OriginManual {
		return fmt.Sprintf("An organizer ended %q.", game.Title)
	}
	return fmt.Sprintf("Time is up! %q is over.", game.Title)
}

func completedText(game *db.Game) string {
	return fmt.Sprintf("Every vehicle in %q has been found. Game over, well played!", game.Title)
}

func forceEndText(game *db.Game) string {
	return fmt.Sprintf("%q was ended by an organizer.", game.Title)
}

func reopenedText(game *db.Game) string {
	return fmt.Sprintf("%q has been re-opened: a vehicle is back in hiding. The search continues!", game.Title)
}

func cleanupSummaryText(game *db.Game, found, drivers int) string {
	return fmt.Sprintf("%q wrapped up with status %s: %d/%d vehicles found.", game.Title, game.Status, found, drivers)
}
