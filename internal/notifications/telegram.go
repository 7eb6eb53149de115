package notifications

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const telegramAPIBase = "https://api.telegram.org"

// TelegramNotifier pushes trade alerts to a Telegram chat through the Bot
// API. Alert levels map onto headers so a stop-out reads differently from a
// stage fill at a glance.
type TelegramNotifier struct {
	token   string
	chatID  string
	apiBase string
	client  *http.Client
}

func NewTelegramNotifier(token, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		token:   token,
		chatID:  chatID,
		apiBase: telegramAPIBase,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func alertHeader(level string) string {
	switch level {
	case "success":
		return "✅ <b>Trade Update</b>"
	case "warning":
		return "⚠️ <b>Trade Warning</b>"
	case "error":
		return "🚨 <b>Trade Alert</b>"
	default:
		return "ℹ️ <b>Ladderbot</b>"
	}
}

func (t *TelegramNotifier) SendAlert(level, message string) error {
	data := url.Values{}
	data.Set("chat_id", t.chatID)
	data.Set("text", fmt.Sprintf("%s\n%s", alertHeader(level), message))
	data.Set("parse_mode", "HTML")

	apiURL := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.token)
	resp, err := t.client.Post(apiURL, "application/x-www-form-urlencoded",
		strings.NewReader(data.Encode()))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("telegram response unreadable (status %d): %w", resp.StatusCode, err)
	}
	if !result.OK {
		return fmt.Errorf("telegram rejected alert (status %d): %s", resp.StatusCode, result.Description)
	}
	return nil
}
