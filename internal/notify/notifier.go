package notify

import "log"

// Notifier delivers a message to a set of chats. Delivery failures are
// per-recipient: one failed send never aborts the rest of the batch,
// and callers never block a state transition on the result.
type Notifier interface {
	Send(chatIDs []int64, text string) map[int64]error
}

// LogNotifier writes messages to the process log. Used when no bot
// token is configured.
type LogNotifier struct{}

func (LogNotifier) Send(chatIDs []int64, text string) map[int64]error {
	for _, chatID := range chatIDs {
		log.Printf("notify chat_id=%d text=%q", chatID, text)
	}
	return nil
}
