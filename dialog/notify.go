package dialog

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/coreybb/chatshop/clients"
	"github.com/coreybb/chatshop/events"
	"github.com/coreybb/chatshop/models"
)

type ChatGetter interface {
	GetChatByID(ctx context.Context, chatID int64) (*models.Chat, error)
	TouchLastMessage(ctx context.Context, chatID int64, text string, at time.Time) error
}

type BotStore interface {
	GetBotByID(ctx context.Context, botID int64) (*models.Bot, error)
}

// Notifier tells a buyer that their payment went through. It satisfies
// billing's notifier contract without billing knowing about this package.
type Notifier struct {
	chats    ChatGetter
	bots     BotStore
	products ProductStore
	messages MessageStore
	registry *clients.Registry
}

func NewNotifier(chats ChatGetter, bots BotStore, products ProductStore, messages MessageStore, registry *clients.Registry) *Notifier {
	return &Notifier{
		chats:    chats,
		bots:     bots,
		products: products,
		messages: messages,
		registry: registry,
	}
}

// NotifyPaymentCompleted messages the order's chat that payment succeeded.
// Failures are logged, not returned: payment reconciliation must not fail
// because a courtesy message could not be sent.
func (n *Notifier) NotifyPaymentCompleted(ctx context.Context, order *models.Order) {
	if err := n.notify(ctx, order); err != nil {
		log.Printf("ERROR (Notifier): Failed to notify chat about paid order %d: %v", order.ID, err)
	}
}

func (n *Notifier) notify(ctx context.Context, order *models.Order) error {
	chat, err := n.chats.GetChatByID(ctx, order.ChatID)
	if err != nil {
		return fmt.Errorf("failed to load chat %d: %w", order.ChatID, err)
	}
	bot, err := n.bots.GetBotByID(ctx, chat.BotID)
	if err != nil {
		return fmt.Errorf("failed to load bot %d: %w", chat.BotID, err)
	}
	product, err := n.products.GetProductByID(ctx, order.ProductID)
	if err != nil {
		return fmt.Errorf("failed to load product %d: %w", order.ProductID, err)
	}

	text := fmt.Sprintf(phrasePaymentDone, product.Name)
	message := &models.Message{
		BotID:       bot.ID,
		BotUserID:   chat.BotUserID,
		ChatID:      chat.ID,
		Direction:   models.DirectionSent,
		ContentType: models.ContentTypeText,
		Text:        text,
		Status:      models.MessageStatusNew,
	}
	if err := n.messages.CreateMessage(ctx, message); err != nil {
		return fmt.Errorf("failed to save notification message: %w", err)
	}
	if err := n.chats.TouchLastMessage(ctx, chat.ID, text, time.Now()); err != nil {
		log.Printf("WARN (Notifier): Failed to update chat %d last message: %v", chat.ID, err)
	}

	client, err := n.registry.ForPlatform(bot.Type)
	if err != nil {
		return err
	}
	command := events.NewTextMessage(bot.ID, chat.IDInMessenger, text)
	command.MessageID = message.ID
	return client.SendMessage(ctx, command)
}
