package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/coreybb/chatshop/delivery"
	"github.com/coreybb/chatshop/events"
	"github.com/coreybb/chatshop/models"
	"github.com/coreybb/chatshop/webutil"
)

const (
	jivoEventClientMessage = "CLIENT_MESSAGE"
	jivoEventBotMessage    = "BOT_MESSAGE"
	jivoEventInviteAgent   = "INVITE_AGENT"

	jivoMessageTypeText    = "TEXT"
	jivoMessageTypeButtons = "BUTTONS"

	// Label for the operator-handoff button appended to greeting keyboards.
	jivoInviteLabel = "Chat with an operator"
)

// JivoClient is the adapter for the JivoSite live-chat platform. JivoSite
// button callbacks carry only the clicked label, so the client keeps a
// per-chat label->payload cache to recover the command.
type JivoClient struct {
	queue      *delivery.Queue
	messages   MessageMarker
	commands   *CommandCache
	botID      int64
	token      string // shared secret expected in X-Jivo-Token
	apiLink    string // full endpoint URL including the provider key
	httpClient *http.Client
}

func NewJivoClient(queue *delivery.Queue, messages MessageMarker, commands *CommandCache, botID int64, token, apiLink string) *JivoClient {
	return &JivoClient{
		queue:      queue,
		messages:   messages,
		commands:   commands,
		botID:      botID,
		token:      token,
		apiLink:    apiLink,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *JivoClient) Platform() models.BotType { return models.BotTypeJivosite }

// VerifyRequest checks the shared-secret header in constant time.
func (c *JivoClient) VerifyRequest(r *http.Request) bool {
	return webutil.SecureCompare(r.Header.Get("X-Jivo-Token"), c.token)
}

// JivoSite wire types.

type jivoMessage struct {
	Type      string       `json:"type"`
	Text      string       `json:"text,omitempty"`
	Content   string       `json:"content,omitempty"`
	Title     string       `json:"title,omitempty"`
	Buttons   []jivoButton `json:"buttons,omitempty"`
	Timestamp int64        `json:"timestamp,omitempty"`
}

type jivoButton struct {
	Text string `json:"text"`
}

type jivoIncomingWebhook struct {
	Event    string       `json:"event"`
	ID       string       `json:"id"`
	ClientID string       `json:"client_id"`
	ChatID   string       `json:"chat_id"`
	Message  *jivoMessage `json:"message,omitempty"`
}

type jivoOutgoingEvent struct {
	Event    string       `json:"event"`
	ID       string       `json:"id"`
	ClientID string       `json:"client_id"`
	ChatID   string       `json:"chat_id,omitempty"`
	Message  *jivoMessage `json:"message,omitempty"`
}

type jivoErrorResponse struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ParseWebhook deserializes a JivoSite webhook. When the message text matches
// a cached button label, the stored callback payload is attached as the
// event's command.
func (c *JivoClient) ParseWebhook(r *http.Request, body []byte) (*events.EventReceived, error) {
	var wh jivoIncomingWebhook
	if err := json.Unmarshal(body, &wh); err != nil {
		return nil, fmt.Errorf("failed to parse JivoSite webhook: %w", err)
	}
	if wh.Event != jivoEventClientMessage {
		return nil, fmt.Errorf("unsupported JivoSite event %q", wh.Event)
	}
	if wh.ClientID == "" || wh.Message == nil {
		return nil, fmt.Errorf("JivoSite webhook missing client or message")
	}

	event := events.EventReceived{
		BotID:                c.botID,
		ChatIDInMessenger:    wh.ClientID,
		ChatType:             models.ChatTypePrivate,
		ContentType:          models.ContentTypeText,
		Text:                 wh.Message.Text,
		UserIDInMessenger:    wh.ClientID,
		MessageIDInMessenger: wh.ID,
		Timestamp:            time.Unix(wh.Message.Timestamp, 0),
	}
	if wh.Message.Timestamp == 0 {
		event.Timestamp = time.Now()
	}

	if payload, ok := c.commands.Resolve(r.Context(), wh.ClientID, wh.Message.Text); ok {
		event.ContentType = models.ContentTypeCommand
		event.Command = payload
	}

	return &event, nil
}

// SendMessage converts the command to a JivoSite bot event and schedules it
// on the delivery queue under job id "jivo_<message id>". System events
// become agent invitations instead of chat messages.
func (c *JivoClient) SendMessage(ctx context.Context, command events.EventToSend) error {
	out := jivoOutgoingEvent{
		ID:       uuid.NewString(),
		ClientID: command.ChatIDInMessenger,
	}

	switch {
	case command.ContentType == models.ContentTypeSystem:
		out.Event = jivoEventInviteAgent

	case len(command.InlineButtons) > 0:
		buttons := command.InlineButtons
		labels := make(map[string]string, len(buttons)+1)
		for _, btn := range buttons {
			labels[btn.Text] = btn.Payload
		}

		// A greeting keyboard also offers the operator handoff.
		if cb, err := events.ParseCallback(buttons[0].Payload); err == nil && cb.Type == events.CallbackGreeting {
			buttons = append(buttons, events.NewCallbackButton(jivoInviteLabel, events.CallbackInvite, 0))
			labels[jivoInviteLabel] = buttons[len(buttons)-1].Payload
		}
		if err := c.commands.Put(ctx, command.ChatIDInMessenger, labels); err != nil {
			log.Printf("WARN (JivoClient): Failed to cache button labels for chat %s: %v", command.ChatIDInMessenger, err)
		}

		wire := make([]jivoButton, 0, len(buttons))
		for _, btn := range buttons {
			wire = append(wire, jivoButton{Text: btn.Text})
		}
		out.Event = jivoEventBotMessage
		out.Message = &jivoMessage{
			Type:      jivoMessageTypeButtons,
			Title:     command.Text,
			Buttons:   wire,
			Timestamp: time.Now().Unix(),
		}

	default:
		out.Event = jivoEventBotMessage
		out.Message = &jivoMessage{
			Type:      jivoMessageTypeText,
			Content:   command.Text,
			Timestamp: time.Now().Unix(),
		}
	}

	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("failed to marshal JivoSite event: %w", err)
	}

	jobID := fmt.Sprintf("jivo_%d", command.MessageID)
	messageID := command.MessageID

	c.queue.Schedule(jobID,
		func(ctx context.Context) error { return c.post(ctx, data) },
		delivery.OnSuccess(func(ctx context.Context) {
			if err := c.messages.SetSent(ctx, messageID); err != nil {
				log.Printf("WARN (JivoClient): Failed to mark message %d sent: %v", messageID, err)
			}
		}),
		delivery.OnFailure(func(ctx context.Context) {
			if err := c.messages.SetFailed(ctx, messageID); err != nil {
				log.Printf("WARN (JivoClient): Failed to mark message %d failed: %v", messageID, err)
			}
		}),
	)
	return nil
}

// post performs one delivery attempt. JivoSite reports application errors
// through an "error" object in an otherwise successful response body.
func (c *JivoClient) post(ctx context.Context, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiLink, bytes.NewReader(data))
	if err != nil {
		return delivery.Permanent(fmt.Errorf("failed to create JivoSite request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("JivoSite unreachable: %w", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)

	var appErr jivoErrorResponse
	if err := json.Unmarshal(respBody, &appErr); err == nil && appErr.Error != nil {
		return delivery.Permanent(&PlatformError{
			Platform: models.BotTypeJivosite,
			Code:     appErr.Error.Code,
			Message:  appErr.Error.Message,
		})
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("JivoSite returned status %d", resp.StatusCode)
	}
	if resp.StatusCode >= 300 {
		return delivery.Permanent(&PlatformError{
			Platform: models.BotTypeJivosite,
			Code:     fmt.Sprintf("%d", resp.StatusCode),
			Message:  string(respBody),
		})
	}
	return nil
}
