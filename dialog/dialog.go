// Package dialog drives the shop conversation: a user walks from a greeting
// through category and product selection to an order and a payment link.
// Each inline button carries a callback that names the next step.
package dialog

import (
	"context"
	"fmt"
	"log"

	"github.com/coreybb/chatshop/billing"
	"github.com/coreybb/chatshop/events"
	"github.com/coreybb/chatshop/models"
)

// maxButtons caps keyboard size; the platforms reject larger keyboards.
const maxButtons = 10

// CategoryStore and friends are the datastore slices the dialog reads from.
type CategoryStore interface {
	GetTopCategories(ctx context.Context) ([]models.Category, error)
	GetCategoryByID(ctx context.Context, categoryID int64) (*models.Category, error)
}

type ProductStore interface {
	GetProductByID(ctx context.Context, productID int64) (*models.Product, error)
	GetProductsByCategory(ctx context.Context, categoryID int64) ([]models.Product, error)
}

type OrderStore interface {
	CreateOrder(ctx context.Context, order *models.Order) error
}

// Dialog decides the bot's reply to an incoming event. It is stateless:
// every step's context travels in the button callback.
type Dialog struct {
	categories CategoryStore
	products   ProductStore
	orders     OrderStore
	payments   *billing.PaymentRegistry

	steps map[events.CallbackType]func(ctx context.Context, event *events.EventReceived, chat *models.Chat, cb events.Callback) (*events.EventToSend, error)
}

func NewDialog(categories CategoryStore, products ProductStore, orders OrderStore, payments *billing.PaymentRegistry) *Dialog {
	d := &Dialog{
		categories: categories,
		products:   products,
		orders:     orders,
		payments:   payments,
	}
	d.steps = map[events.CallbackType]func(context.Context, *events.EventReceived, *models.Chat, events.Callback) (*events.EventToSend, error){
		events.CallbackGreeting: d.categoryList,
		events.CallbackCategory: d.productList,
		events.CallbackProduct:  d.productDetail,
		events.CallbackOrder:    d.orderConfirmation,
		events.CallbackPaypal:   d.makeOrder,
		events.CallbackStripe:   d.makeOrder,
		events.CallbackInvite:   d.inviteAgent,
	}
	return d
}

// Reply produces the bot's answer to an event, or nil when there is nothing
// to say. Free text and unparsable callbacks both fall back to the greeting.
func (d *Dialog) Reply(ctx context.Context, event *events.EventReceived, chat *models.Chat) (*events.EventToSend, error) {
	if event.Command == "" {
		return d.greeting(event), nil
	}

	cb, err := events.ParseCallback(event.Command)
	if err != nil {
		log.Printf("WARN (Dialog): Unparsable callback, replying with greeting: %v", err)
		return d.greeting(event), nil
	}

	step, ok := d.steps[cb.Type]
	if !ok {
		log.Printf("WARN (Dialog): No step for callback type %q", cb.Type)
		return nil, nil
	}
	return step(ctx, event, chat, cb)
}

func (d *Dialog) greeting(event *events.EventReceived) *events.EventToSend {
	alias := ""
	if event.UserNameInMessenger != "" {
		alias = ", " + event.UserNameInMessenger
	}
	msg := events.NewButtonMessage(event.BotID, event.ChatIDInMessenger,
		fmt.Sprintf(phraseGreeting, alias),
		[]events.InlineButton{events.NewCallbackButton(buttonStartSession, events.CallbackGreeting, 0)},
	)
	return &msg
}

func (d *Dialog) categoryList(ctx context.Context, event *events.EventReceived, _ *models.Chat, _ events.Callback) (*events.EventToSend, error) {
	categories, err := d.categories.GetTopCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load categories: %w", err)
	}

	buttons := make([]events.InlineButton, 0, maxButtons)
	for _, category := range categories {
		if len(buttons) == maxButtons {
			break
		}
		buttons = append(buttons, events.NewCallbackButton(category.Name, events.CallbackCategory, category.ID))
	}

	msg := events.NewButtonMessage(event.BotID, event.ChatIDInMessenger, phraseChooseCategory, buttons)
	return &msg, nil
}

func (d *Dialog) productList(ctx context.Context, event *events.EventReceived, _ *models.Chat, cb events.Callback) (*events.EventToSend, error) {
	category, err := d.categories.GetCategoryByID(ctx, cb.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load category %d: %w", cb.ID, err)
	}
	products, err := d.products.GetProductsByCategory(ctx, cb.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load products for category %d: %w", cb.ID, err)
	}

	buttons := make([]events.InlineButton, 0, maxButtons)
	for _, product := range products {
		if len(buttons) == maxButtons {
			break
		}
		buttons = append(buttons, events.NewCallbackButton(product.Name, events.CallbackProduct, product.ID))
	}

	msg := events.NewButtonMessage(event.BotID, event.ChatIDInMessenger,
		fmt.Sprintf(phraseChooseProduct, category.Name), buttons)
	return &msg, nil
}

func (d *Dialog) productDetail(ctx context.Context, event *events.EventReceived, _ *models.Chat, cb events.Callback) (*events.EventToSend, error) {
	product, err := d.products.GetProductByID(ctx, cb.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load product %d: %w", cb.ID, err)
	}

	description := product.Description
	if len(description) > 400 {
		description = description[:400]
	}
	text := fmt.Sprintf(phraseProductDetail, product.Name, description, formatPrice(product.Price), product.Currency)

	msg := events.NewButtonMessage(event.BotID, event.ChatIDInMessenger, text,
		[]events.InlineButton{events.NewCallbackButton(buttonOrderProduct, events.CallbackOrder, product.ID)},
	)
	return &msg, nil
}

func (d *Dialog) orderConfirmation(ctx context.Context, event *events.EventReceived, _ *models.Chat, cb events.Callback) (*events.EventToSend, error) {
	product, err := d.products.GetProductByID(ctx, cb.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load product %d: %w", cb.ID, err)
	}

	text := fmt.Sprintf(phraseOrderConfirm, product.Name, formatPrice(product.Price), product.Currency)
	msg := events.NewButtonMessage(event.BotID, event.ChatIDInMessenger, text,
		[]events.InlineButton{
			events.NewCallbackButton(buttonPayPaypal, events.CallbackPaypal, product.ID),
			events.NewCallbackButton(buttonPayStripe, events.CallbackStripe, product.ID),
		},
	)
	return &msg, nil
}

// makeOrder creates the order and asks the chosen payment system for a
// checkout link.
func (d *Dialog) makeOrder(ctx context.Context, event *events.EventReceived, chat *models.Chat, cb events.Callback) (*events.EventToSend, error) {
	product, err := d.products.GetProductByID(ctx, cb.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load product %d: %w", cb.ID, err)
	}

	order := &models.Order{
		ChatID:    chat.ID,
		ProductID: product.ID,
		Total:     product.Price,
	}
	if err := d.orders.CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	system := models.PaymentSystemPaypal
	if cb.Type == events.CallbackStripe {
		system = models.PaymentSystemStripe
	}
	client, err := d.payments.ForSystem(system)
	if err != nil {
		return nil, err
	}
	approveLink, err := client.CheckOut(ctx, order.ID, product.ID)
	if err != nil {
		return nil, fmt.Errorf("checkout with %s failed for order %d: %w", system, order.ID, err)
	}

	msg := events.NewTextMessage(event.BotID, event.ChatIDInMessenger, fmt.Sprintf(phrasePaymentLink, approveLink))
	return &msg, nil
}

// inviteAgent produces the system event that asks the platform to pull a
// human operator into the chat.
func (d *Dialog) inviteAgent(_ context.Context, event *events.EventReceived, _ *models.Chat, _ events.Callback) (*events.EventToSend, error) {
	msg := events.EventToSend{
		BotID:             event.BotID,
		ChatIDInMessenger: event.ChatIDInMessenger,
		ContentType:       models.ContentTypeSystem,
		Text:              phraseInviteAgent,
	}
	return &msg, nil
}

func formatPrice(minor int64) string {
	return fmt.Sprintf("%d.%02d", minor/100, minor%100)
}
