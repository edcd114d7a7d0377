package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// TelegramNotifier sends messages through the Telegram Bot API.
type TelegramNotifier struct {
	httpClient *http.Client
	baseURL    string
}

func NewTelegramNotifier(token string) *TelegramNotifier {
	return &TelegramNotifier{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    fmt.Sprintf("https://api.telegram.org/bot%s", token),
	}
}

type sendMessageRequest struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Send delivers text to each chat independently. Failures are collected
// per recipient and returned; they are never fatal to the batch.
func (n *TelegramNotifier) Send(chatIDs []int64, text string) map[int64]error {
	var failures map[int64]error
	for _, chatID := range chatIDs {
		if err := n.sendMessage(chatID, text); err != nil {
			if failures == nil {
				failures = make(map[int64]error)
			}
			failures[chatID] = err
		}
	}
	return failures
}

func (n *TelegramNotifier) sendMessage(chatID int64, text string) error {
	body, err := json.Marshal(sendMessageRequest{ChatID: chatID, Text: text})
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	resp, err := n.httpClient.Post(n.baseURL+"/sendMessage", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("http: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}
	var apiResp apiResponse
	if err := json.Unmarshal(data, &apiResp); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if !apiResp.OK {
		return fmt.Errorf("telegram: %s", apiResp.Description)
	}
	return nil
}
