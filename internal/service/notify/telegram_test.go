package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type settingsMap map[string]string

func (m settingsMap) GetSetting(ctx context.Context, key string) (string, error) {
	return m[key], nil
}

func TestTelegramNotifier_UsesSettingsOverConfig(t *testing.T) {
	var (
		gotPath string
		gotBody sendMessageRequest
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(`{"ok":true}`))
	}))
	defer ts.Close()

	n := NewTelegramNotifier(TelegramConfig{BaseURL: ts.URL, BotToken: "cfg-token", ChatID: "cfg-chat"},
		settingsMap{settingBotToken: "set-token", settingChatID: "42"})

	err := n.Notify(context.Background(), Event{Kind: KindPaymentRequest, Text: "new payment request: 100 USD"})
	require.NoError(t, err)

	assert.Equal(t, "/botset-token/sendMessage", gotPath)
	assert.Equal(t, "42", gotBody.ChatID)
	assert.Equal(t, "new payment request: 100 USD", gotBody.Text)
}

func TestTelegramNotifier_ConfigFallbackAndErrors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botcfg-token/sendMessage", r.URL.Path)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer ts.Close()

	n := NewTelegramNotifier(TelegramConfig{BaseURL: ts.URL + "/", BotToken: "cfg-token", ChatID: "1"}, settingsMap{})
	err := n.Notify(context.Background(), Event{Kind: KindPurchase, Text: "x"})
	assert.Error(t, err)
}

func TestTelegramNotifier_UnconfiguredLogsLocally(t *testing.T) {
	n := NewTelegramNotifier(TelegramConfig{BaseURL: "http://127.0.0.1:0"}, nil)
	assert.NoError(t, n.Notify(context.Background(), Event{Kind: KindRegistration, Text: "new user"}))
}

func TestTelegramNotifier_TransportErrorHidesToken(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	base := ts.URL
	ts.Close()

	const token = "123456:SECRET-BOT-TOKEN"
	n := NewTelegramNotifier(TelegramConfig{BaseURL: base, BotToken: token, ChatID: "1"}, settingsMap{})
	err := n.Notify(context.Background(), Event{Kind: KindPurchase, Text: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telegram request failed")
	assert.NotContains(t, err.Error(), "SECRET-BOT-TOKEN")
}
