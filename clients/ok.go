package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/coreybb/chatshop/delivery"
	"github.com/coreybb/chatshop/events"
	"github.com/coreybb/chatshop/models"
)

const okDefaultAPILink = "https://api.ok.ru/graph/me/messages/%s?access_token=%s"

// OkClient is the adapter for the OK (Odnoklassniki) messaging platform.
type OkClient struct {
	queue       *delivery.Queue
	messages    MessageMarker
	botID       int64
	token       string
	apiLink     string // format: chat id, access token
	allowedNets []netip.Prefix
	httpClient  *http.Client
}

// NewOkClient builds the OK adapter. ipPool is the comma-separated CIDR
// allowlist published by OK for its webhook callers.
func NewOkClient(queue *delivery.Queue, messages MessageMarker, botID int64, token, apiLink, ipPool string) (*OkClient, error) {
	if apiLink == "" {
		apiLink = okDefaultAPILink
	}

	var nets []netip.Prefix
	for _, cidr := range strings.Split(ipPool, ",") {
		cidr = strings.TrimSpace(cidr)
		if cidr == "" {
			continue
		}
		prefix, err := netip.ParsePrefix(cidr)
		if err != nil {
			return nil, fmt.Errorf("invalid CIDR %q in OK IP pool: %w", cidr, err)
		}
		nets = append(nets, prefix)
	}

	return &OkClient{
		queue:       queue,
		messages:    messages,
		botID:       botID,
		token:       token,
		apiLink:     apiLink,
		allowedNets: nets,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (c *OkClient) Platform() models.BotType { return models.BotTypeOK }

// VerifyRequest checks that the caller's address falls inside OK's published
// CIDR allowlist. The address is taken from the first X-Forwarded-For entry
// when present, otherwise from the connection's remote address.
func (c *OkClient) VerifyRequest(r *http.Request) bool {
	addr := callerAddr(r)
	host, err := netip.ParseAddr(addr)
	if err != nil {
		log.Printf("WARN (OkClient): Unparsable caller address %q: %v", addr, err)
		return false
	}
	for _, network := range c.allowedNets {
		if network.Contains(host) {
			return true
		}
	}
	return false
}

func callerAddr(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host := r.RemoteAddr
	if i := strings.LastIndex(host, ":"); i > 0 {
		host = host[:i]
	}
	return host
}

// OK webhook and message wire types.

type okSender struct {
	UserID string `json:"user_id"`
	Name   string `json:"name,omitempty"`
}

type okRecipient struct {
	ChatID string `json:"chat_id"`
}

type okButton struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	Intent  string `json:"intent"`
	Payload string `json:"payload,omitempty"`
}

type okKeyboard struct {
	Buttons [][]okButton `json:"buttons"`
}

type okAttachmentPayload struct {
	Keyboard *okKeyboard `json:"keyboard,omitempty"`
}

type okAttachment struct {
	Type    string              `json:"type"`
	Payload okAttachmentPayload `json:"payload"`
}

type okMessage struct {
	Text       string        `json:"text,omitempty"`
	Mid        string        `json:"mid,omitempty"`
	ReplyTo    string        `json:"reply_to,omitempty"`
	Attachment *okAttachment `json:"attachment,omitempty"`
}

type okIncomingWebhook struct {
	WebhookType string       `json:"webhookType"`
	Sender      okSender     `json:"sender"`
	Recipient   okRecipient  `json:"recipient"`
	Timestamp   int64        `json:"timestamp"` // milliseconds
	Mid         string       `json:"mid,omitempty"`
	Payload     string       `json:"payload,omitempty"`
	Message     *okMessage   `json:"message,omitempty"`
}

type okOutgoingMessage struct {
	Recipient okRecipient `json:"recipient"`
	Message   okMessage   `json:"message"`
}

// ParseWebhook deserializes an OK webhook into the internal received-event
// shape. Button clicks arrive as MESSAGE_CALLBACK webhooks whose payload
// carries the callback we attached when sending the keyboard.
func (c *OkClient) ParseWebhook(r *http.Request, body []byte) (*events.EventReceived, error) {
	var wh okIncomingWebhook
	if err := json.Unmarshal(body, &wh); err != nil {
		return nil, fmt.Errorf("failed to parse OK webhook: %w", err)
	}
	if wh.Sender.UserID == "" || wh.Recipient.ChatID == "" {
		return nil, fmt.Errorf("OK webhook missing sender or recipient")
	}

	contentType := models.ContentTypeText
	if wh.Payload != "" {
		contentType = models.ContentTypeCommand
	}

	event := events.EventReceived{
		BotID:               c.botID,
		ChatIDInMessenger:   wh.Recipient.ChatID,
		ChatType:            models.ChatTypePrivate,
		ContentType:         contentType,
		Command:             wh.Payload,
		UserIDInMessenger:   wh.Sender.UserID,
		UserNameInMessenger: wh.Sender.Name,
		Timestamp:           time.UnixMilli(wh.Timestamp),
	}
	if wh.Message != nil {
		event.Text = wh.Message.Text
		event.ReplyIDInMessenger = wh.Message.ReplyTo
	}
	event.MessageIDInMessenger = wh.Mid
	if event.MessageIDInMessenger == "" && wh.Message != nil {
		event.MessageIDInMessenger = wh.Message.Mid
	}

	return &event, nil
}

// SendMessage builds the OK wire payload and schedules it on the delivery
// queue under job id "ok_<message id>".
func (c *OkClient) SendMessage(ctx context.Context, command events.EventToSend) error {
	msg := okOutgoingMessage{
		Recipient: okRecipient{ChatID: command.ChatIDInMessenger},
		Message:   okMessage{Text: command.Text},
	}
	if len(command.InlineButtons) > 0 {
		rows := make([][]okButton, 0, len(command.InlineButtons))
		for _, btn := range command.InlineButtons {
			rows = append(rows, []okButton{{
				Type:    "CALLBACK",
				Text:    btn.Text,
				Intent:  "POSITIVE",
				Payload: btn.Payload,
			}})
		}
		msg.Message.Attachment = &okAttachment{
			Type:    "INLINE_KEYBOARD",
			Payload: okAttachmentPayload{Keyboard: &okKeyboard{Buttons: rows}},
		}
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal OK message: %w", err)
	}

	sendLink := fmt.Sprintf(c.apiLink, command.ChatIDInMessenger, c.token)
	jobID := fmt.Sprintf("ok_%d", command.MessageID)
	messageID := command.MessageID

	c.queue.Schedule(jobID,
		func(ctx context.Context) error { return c.post(ctx, sendLink, data) },
		delivery.OnSuccess(func(ctx context.Context) {
			if err := c.messages.SetSent(ctx, messageID); err != nil {
				log.Printf("WARN (OkClient): Failed to mark message %d sent: %v", messageID, err)
			}
		}),
		delivery.OnFailure(func(ctx context.Context) {
			if err := c.messages.SetFailed(ctx, messageID); err != nil {
				log.Printf("WARN (OkClient): Failed to mark message %d failed: %v", messageID, err)
			}
		}),
	)
	return nil
}

// post performs one delivery attempt. OK reports application errors through
// an invocation-error response header on an otherwise successful response.
func (c *OkClient) post(ctx context.Context, sendLink string, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sendLink, bytes.NewReader(data))
	if err != nil {
		return delivery.Permanent(fmt.Errorf("failed to create OK request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json;charset=utf-8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("OK unreachable: %w", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)

	if code := resp.Header.Get("invocation-error"); code != "" {
		return delivery.Permanent(&PlatformError{
			Platform: models.BotTypeOK,
			Code:     code,
			Message:  string(respBody),
		})
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("OK returned status %d", resp.StatusCode)
	}
	if resp.StatusCode >= 300 {
		return delivery.Permanent(&PlatformError{
			Platform: models.BotTypeOK,
			Code:     fmt.Sprintf("%d", resp.StatusCode),
			Message:  string(respBody),
		})
	}
	return nil
}
