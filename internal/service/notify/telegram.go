package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultTelegramBaseURL = "https://api.telegram.org"

	// Settings keys holding operator-managed credentials.
	settingBotToken = "telegram_bot_token"
	settingChatID   = "telegram_chat_id"
)

// SettingsReader reads operator-managed settings.
type SettingsReader interface {
	GetSetting(ctx context.Context, key string) (string, error)
}

// TelegramConfig holds credentials used when no setting overrides them.
type TelegramConfig struct {
	BaseURL  string
	BotToken string
	ChatID   string
	Timeout  time.Duration
}

// TelegramNotifier posts events to a Telegram chat via the Bot API.
// When no bot token or chat id is configured it falls back to the log.
type TelegramNotifier struct {
	client   *http.Client
	config   TelegramConfig
	settings SettingsReader
	fallback Notifier
}

// NewTelegramNotifier creates a notifier. settings may be nil.
func NewTelegramNotifier(cfg TelegramConfig, settings SettingsReader) *TelegramNotifier {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultTelegramBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &TelegramNotifier{
		client:   &http.Client{Timeout: cfg.Timeout},
		config:   cfg,
		settings: settings,
		fallback: LogNotifier{},
	}
}

func (n *TelegramNotifier) credentials(ctx context.Context) (token, chatID string) {
	token, chatID = n.config.BotToken, n.config.ChatID
	if n.settings == nil {
		return token, chatID
	}
	if v, err := n.settings.GetSetting(ctx, settingBotToken); err != nil {
		log.Printf("[TelegramNotifier] Failed to read bot token setting: %v", err)
	} else if v != "" {
		token = v
	}
	if v, err := n.settings.GetSetting(ctx, settingChatID); err != nil {
		log.Printf("[TelegramNotifier] Failed to read chat id setting: %v", err)
	} else if v != "" {
		chatID = v
	}
	return token, chatID
}

type sendMessageRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

// Notify sends ev as a chat message.
func (n *TelegramNotifier) Notify(ctx context.Context, ev Event) error {
	token, chatID := n.credentials(ctx)
	if token == "" || chatID == "" {
		return n.fallback.Notify(ctx, ev)
	}

	body, err := json.Marshal(sendMessageRequest{ChatID: chatID, Text: ev.Text})
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", n.config.BaseURL, token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return errors.New("failed to build telegram request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		// The request URL embeds the bot token.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return fmt.Errorf("telegram request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("telegram returned status %d", resp.StatusCode)
}

var _ Notifier = (*TelegramNotifier)(nil)
