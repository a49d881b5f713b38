package dialog

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreybb/chatshop/events"
	"github.com/coreybb/chatshop/models"
)

type fakeUserStore struct{}

func (fakeUserStore) GetOrCreateUser(_ context.Context, botID int64, messengerUserID, name string) (*models.BotUser, error) {
	return &models.BotUser{ID: 100, BotID: botID, MessengerUserID: messengerUserID, Name: name}, nil
}

type fakeChatStore struct {
	lastMessage string
}

func (f *fakeChatStore) GetOrCreateChat(_ context.Context, botID int64, idInMessenger string, chatType models.ChatType, botUserID int64) (*models.Chat, error) {
	return &models.Chat{ID: 50, BotID: botID, BotUserID: botUserID, IDInMessenger: idInMessenger, Type: chatType}, nil
}

func (f *fakeChatStore) TouchLastMessage(_ context.Context, _ int64, text string, _ time.Time) error {
	f.lastMessage = text
	return nil
}

type fakeMessageStore struct {
	saved []*models.Message
}

func (f *fakeMessageStore) CreateMessage(_ context.Context, message *models.Message) error {
	message.ID = int64(len(f.saved) + 1)
	f.saved = append(f.saved, message)
	return nil
}

type capturingClient struct {
	sent []events.EventToSend
}

func (c *capturingClient) Platform() models.BotType { return models.BotTypeOK }
func (c *capturingClient) ParseWebhook(*http.Request, []byte) (*events.EventReceived, error) {
	return nil, nil
}
func (c *capturingClient) VerifyRequest(*http.Request) bool { return true }
func (c *capturingClient) SendMessage(_ context.Context, command events.EventToSend) error {
	c.sent = append(c.sent, command)
	return nil
}

func TestHandleEventPersistsBothSidesAndSends(t *testing.T) {
	d, _, _, _ := newTestDialog()
	chats := &fakeChatStore{}
	messages := &fakeMessageStore{}
	service := NewService(d, fakeUserStore{}, chats, messages)
	client := &capturingClient{}

	event := receivedEvent("")
	event.Text = "hello"
	require.NoError(t, service.HandleEvent(context.Background(), client, event))

	require.Len(t, messages.saved, 2)
	inbound, outbound := messages.saved[0], messages.saved[1]

	assert.Equal(t, models.DirectionReceived, inbound.Direction)
	assert.Equal(t, "hello", inbound.Text)
	assert.Equal(t, models.MessageStatusDelivered, inbound.Status)
	assert.EqualValues(t, 50, inbound.ChatID)

	assert.Equal(t, models.DirectionSent, outbound.Direction)
	assert.Equal(t, models.MessageStatusNew, outbound.Status)

	require.Len(t, client.sent, 1)
	assert.Equal(t, outbound.ID, client.sent[0].MessageID, "the delivery job identity is the saved message id")
	assert.Equal(t, outbound.Text, chats.lastMessage)
}

func TestHandleEventSanitizesInboundText(t *testing.T) {
	d, _, _, _ := newTestDialog()
	messages := &fakeMessageStore{}
	service := NewService(d, fakeUserStore{}, &fakeChatStore{}, messages)
	client := &capturingClient{}

	event := receivedEvent("")
	event.Text = `<script>alert("x")</script>hi`
	require.NoError(t, service.HandleEvent(context.Background(), client, event))

	require.NotEmpty(t, messages.saved)
	assert.Equal(t, "hi", messages.saved[0].Text)
}

func TestHandleEventNoReplySendsNothing(t *testing.T) {
	d, _, _, _ := newTestDialog()
	messages := &fakeMessageStore{}
	service := NewService(d, fakeUserStore{}, &fakeChatStore{}, messages)
	client := &capturingClient{}

	// A callback type with no step produces no reply.
	event := receivedEvent(`{"type":"paypal_confirm","id":1}`)
	require.NoError(t, service.HandleEvent(context.Background(), client, event))

	require.Len(t, messages.saved, 1, "only the inbound message is stored")
	assert.Empty(t, client.sent)
}
