// Package routehandlers contains the read-side HTTP handlers backing the
// operator API: chat history, orders and the product catalog.
package routehandlers

import (
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/coreybb/chatshop/datastore"
	"github.com/coreybb/chatshop/webutil"
)

type ChatHandler struct {
	Chats    *datastore.ChatRepository
	Messages *datastore.MessageRepository
}

func NewChatHandler(chats *datastore.ChatRepository, messages *datastore.MessageRepository) *ChatHandler {
	return &ChatHandler{Chats: chats, Messages: messages}
}

// HandleGetChats lists all chats, most recently active first.
func (h *ChatHandler) HandleGetChats(w http.ResponseWriter, r *http.Request) error {
	chats, err := h.Chats.GetAllChats(r.Context())
	if err != nil {
		log.Printf("ERROR: Failed to list chats: %v", err)
		return webutil.ErrInternalServerWrap("Failed to list chats", err)
	}
	webutil.RespondWithJSON(w, http.StatusOK, chats)
	return nil
}

// HandleGetChatMessages returns a chat's message history in order.
func (h *ChatHandler) HandleGetChatMessages(w http.ResponseWriter, r *http.Request) error {
	chatID, err := parseIDParam(r, "id")
	if err != nil {
		return webutil.ErrBadRequest("Invalid chat id")
	}

	// 404 for a chat that does not exist, empty list for one with no traffic.
	if _, err := h.Chats.GetChatByID(r.Context(), chatID); err != nil {
		return err
	}

	messages, err := h.Messages.GetChatMessages(r.Context(), chatID)
	if err != nil {
		log.Printf("ERROR: Failed to load messages for chat %d: %v", chatID, err)
		return webutil.ErrInternalServerWrap("Failed to load chat messages", err)
	}
	webutil.RespondWithJSON(w, http.StatusOK, messages)
	return nil
}

func parseIDParam(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}
