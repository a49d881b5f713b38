package dialog

import (
	"context"
	"fmt"
	"time"

	"log"

	"github.com/microcosm-cc/bluemonday"

	"github.com/coreybb/chatshop/clients"
	"github.com/coreybb/chatshop/events"
	"github.com/coreybb/chatshop/models"
)

type UserStore interface {
	GetOrCreateUser(ctx context.Context, botID int64, messengerUserID, name string) (*models.BotUser, error)
}

type ChatStore interface {
	GetOrCreateChat(ctx context.Context, botID int64, idInMessenger string, chatType models.ChatType, botUserID int64) (*models.Chat, error)
	TouchLastMessage(ctx context.Context, chatID int64, text string, at time.Time) error
}

type MessageStore interface {
	CreateMessage(ctx context.Context, message *models.Message) error
}

// Service persists inbound chat traffic, asks the Dialog for a reply and
// pushes the reply back out through the platform client.
type Service struct {
	dialog    *Dialog
	users     UserStore
	chats     ChatStore
	messages  MessageStore
	sanitizer *bluemonday.Policy
}

func NewService(dialog *Dialog, users UserStore, chats ChatStore, messages MessageStore) *Service {
	return &Service{
		dialog:    dialog,
		users:     users,
		chats:     chats,
		messages:  messages,
		sanitizer: bluemonday.StrictPolicy(),
	}
}

// HandleEvent processes one inbound event end to end: record the user, chat
// and message, compute the reply, record it, then hand it to the platform
// client for delivery.
func (s *Service) HandleEvent(ctx context.Context, client clients.PlatformClient, event *events.EventReceived) error {
	event.Text = s.sanitizer.Sanitize(event.Text)
	event.UserNameInMessenger = s.sanitizer.Sanitize(event.UserNameInMessenger)

	user, err := s.users.GetOrCreateUser(ctx, event.BotID, event.UserIDInMessenger, event.UserNameInMessenger)
	if err != nil {
		return fmt.Errorf("failed to resolve bot user: %w", err)
	}
	chat, err := s.chats.GetOrCreateChat(ctx, event.BotID, event.ChatIDInMessenger, event.ChatType, user.ID)
	if err != nil {
		return fmt.Errorf("failed to resolve chat: %w", err)
	}

	inbound := &models.Message{
		BotID:         event.BotID,
		BotUserID:     user.ID,
		ChatID:        chat.ID,
		Direction:     models.DirectionReceived,
		ContentType:   event.ContentType,
		IDInMessenger: event.MessageIDInMessenger,
		Text:          event.Text,
		Status:        models.MessageStatusDelivered,
	}
	if err := s.messages.CreateMessage(ctx, inbound); err != nil {
		return fmt.Errorf("failed to save inbound message: %w", err)
	}
	if err := s.chats.TouchLastMessage(ctx, chat.ID, event.Text, event.Timestamp); err != nil {
		log.Printf("WARN (DialogService): Failed to update chat %d last message: %v", chat.ID, err)
	}

	reply, err := s.dialog.Reply(ctx, event, chat)
	if err != nil {
		return fmt.Errorf("failed to form reply: %w", err)
	}
	if reply == nil {
		return nil
	}

	direction := models.DirectionSent
	if reply.ContentType == models.ContentTypeSystem {
		direction = models.DirectionSystem
	}
	outbound := &models.Message{
		BotID:       reply.BotID,
		BotUserID:   user.ID,
		ChatID:      chat.ID,
		Direction:   direction,
		ContentType: reply.ContentType,
		Text:        reply.Text,
		Status:      models.MessageStatusNew,
	}
	if err := s.messages.CreateMessage(ctx, outbound); err != nil {
		return fmt.Errorf("failed to save outbound message: %w", err)
	}
	reply.MessageID = outbound.ID

	if err := s.chats.TouchLastMessage(ctx, chat.ID, reply.Text, time.Now()); err != nil {
		log.Printf("WARN (DialogService): Failed to update chat %d last message: %v", chat.ID, err)
	}

	return client.SendMessage(ctx, *reply)
}
