package notifications

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testNotifier(apiBase string) *TelegramNotifier {
	n := NewTelegramNotifier("test-token", "12345")
	n.apiBase = apiBase
	return n
}

func TestSendAlertPostsToChat(t *testing.T) {
	var gotPath, gotChat, gotText, gotMode string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotPath = r.URL.Path
		gotChat = r.FormValue("chat_id")
		gotText = r.FormValue("text")
		gotMode = r.FormValue("parse_mode")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	err := testNotifier(srv.URL).SendAlert("success", "Closed BTCUSDT: AllTargetsHit, PnL $313.50 (3.17R)")
	require.NoError(t, err)

	assert.Equal(t, "/bottest-token/sendMessage", gotPath)
	assert.Equal(t, "12345", gotChat)
	assert.Contains(t, gotText, "Trade Update")
	assert.Contains(t, gotText, "AllTargetsHit")
	assert.Equal(t, "HTML", gotMode)
}

func TestSendAlertHeaderPerLevel(t *testing.T) {
	assert.Contains(t, alertHeader("error"), "🚨")
	assert.Contains(t, alertHeader("warning"), "⚠️")
	assert.Contains(t, alertHeader("success"), "✅")
	assert.Contains(t, alertHeader("anything else"), "Ladderbot")
}

func TestSendAlertSurfacesAPIRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"ok":false,"description":"chat not found"}`))
	}))
	defer srv.Close()

	err := testNotifier(srv.URL).SendAlert("info", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
}
