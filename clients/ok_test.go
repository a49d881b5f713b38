package clients

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreybb/chatshop/delivery"
	"github.com/coreybb/chatshop/events"
	"github.com/coreybb/chatshop/models"
)

type fakeMarker struct {
	mu     sync.Mutex
	sent   []int64
	failed []int64
}

func (m *fakeMarker) SetSent(_ context.Context, messageID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, messageID)
	return nil
}

func (m *fakeMarker) SetFailed(_ context.Context, messageID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed = append(m.failed, messageID)
	return nil
}

func (m *fakeMarker) sentIDs() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.sent...)
}

func (m *fakeMarker) failedIDs() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.failed...)
}

func newTestOkClient(t *testing.T, queue *delivery.Queue, marker MessageMarker, apiLink string) *OkClient {
	t.Helper()
	client, err := NewOkClient(queue, marker, 1, "test-token", apiLink, "217.20.144.0/20, 10.0.0.0/8")
	require.NoError(t, err)
	return client
}

func TestOkVerifyRequest(t *testing.T) {
	client := newTestOkClient(t, nil, nil, "")

	tests := []struct {
		name       string
		forwarded  string
		remoteAddr string
		want       bool
	}{
		{"allowed via forwarded header", "217.20.147.5", "192.0.2.1:443", true},
		{"allowed via remote addr", "", "10.1.2.3:58000", true},
		{"first forwarded entry wins", "217.20.147.5, 192.0.2.1", "192.0.2.1:443", true},
		{"outside the pool", "203.0.113.9", "203.0.113.9:443", false},
		{"garbage address", "not-an-ip", "10.1.2.3:58000", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("POST", "/webhooks/ok", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				r.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			assert.Equal(t, tt.want, client.VerifyRequest(r))
		})
	}
}

func TestOkRejectsBadCIDRPool(t *testing.T) {
	_, err := NewOkClient(nil, nil, 1, "token", "", "217.20.144.0/20, bogus")
	assert.Error(t, err)
}

func TestOkParseWebhook(t *testing.T) {
	client := newTestOkClient(t, nil, nil, "")

	body := `{
		"webhookType": "MESSAGE_CALLBACK",
		"sender": {"user_id": "u-100", "name": "Alex"},
		"recipient": {"chat_id": "chat-200"},
		"timestamp": 1700000000000,
		"mid": "mid-1",
		"payload": "{\"type\":\"category\",\"id\":3}"
	}`
	r := httptest.NewRequest("POST", "/webhooks/ok", strings.NewReader(body))

	event, err := client.ParseWebhook(r, []byte(body))
	require.NoError(t, err)
	assert.EqualValues(t, 1, event.BotID)
	assert.Equal(t, "chat-200", event.ChatIDInMessenger)
	assert.Equal(t, "u-100", event.UserIDInMessenger)
	assert.Equal(t, "Alex", event.UserNameInMessenger)
	assert.Equal(t, "mid-1", event.MessageIDInMessenger)
	assert.Equal(t, models.ContentTypeCommand, event.ContentType)
	assert.Equal(t, time.UnixMilli(1700000000000), event.Timestamp)

	cb, err := events.ParseCallback(event.Command)
	require.NoError(t, err)
	assert.Equal(t, events.CallbackCategory, cb.Type)
	assert.EqualValues(t, 3, cb.ID)
}

func TestOkParseWebhookFreeText(t *testing.T) {
	client := newTestOkClient(t, nil, nil, "")

	body := `{
		"webhookType": "MESSAGE_CREATED",
		"sender": {"user_id": "u-100"},
		"recipient": {"chat_id": "chat-200"},
		"timestamp": 1700000000000,
		"message": {"text": "hello there", "mid": "mid-2"}
	}`
	r := httptest.NewRequest("POST", "/webhooks/ok", strings.NewReader(body))

	event, err := client.ParseWebhook(r, []byte(body))
	require.NoError(t, err)
	assert.Equal(t, models.ContentTypeText, event.ContentType)
	assert.Equal(t, "hello there", event.Text)
	assert.Equal(t, "mid-2", event.MessageIDInMessenger)
	assert.Empty(t, event.Command)
}

func TestOkSendMessageDeliversAndMarksSent(t *testing.T) {
	var mu sync.Mutex
	var gotBody okOutgoingMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		assert.Contains(t, r.URL.RawQuery, "access_token=test-token")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	queue := delivery.NewQueue(10*time.Millisecond, time.Second)
	defer queue.Stop()
	marker := &fakeMarker{}
	client := newTestOkClient(t, queue, marker, server.URL+"/graph/me/messages/%s?access_token=%s")

	command := events.NewButtonMessage(1, "chat-200", "Pick one:", []events.InlineButton{
		events.NewCallbackButton("Books", events.CallbackCategory, 3),
	})
	command.MessageID = 42

	require.NoError(t, client.SendMessage(context.Background(), command))
	require.Eventually(t, func() bool {
		return len(marker.sentIDs()) == 1
	}, time.Second, 10*time.Millisecond)

	assert.Equal(t, []int64{42}, marker.sentIDs())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "chat-200", gotBody.Recipient.ChatID)
	assert.Equal(t, "Pick one:", gotBody.Message.Text)
	require.NotNil(t, gotBody.Message.Attachment)
	assert.Equal(t, "INLINE_KEYBOARD", gotBody.Message.Attachment.Type)
	require.Len(t, gotBody.Message.Attachment.Payload.Keyboard.Buttons, 1)
	button := gotBody.Message.Attachment.Payload.Keyboard.Buttons[0][0]
	assert.Equal(t, "CALLBACK", button.Type)
	assert.Equal(t, "Books", button.Text)
}

func TestOkInvocationErrorIsTerminal(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("invocation-error", "403")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	queue := delivery.NewQueue(10*time.Millisecond, time.Second)
	defer queue.Stop()
	marker := &fakeMarker{}
	client := newTestOkClient(t, queue, marker, server.URL+"/graph/me/messages/%s?access_token=%s")

	command := events.NewTextMessage(1, "chat-200", "hi")
	command.MessageID = 43

	require.NoError(t, client.SendMessage(context.Background(), command))
	require.Eventually(t, func() bool {
		return len(marker.failedIDs()) == 1
	}, time.Second, 10*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls), "an application error must not be retried")
	assert.Equal(t, []int64{43}, marker.failedIDs())
	assert.Empty(t, marker.sentIDs())
}
