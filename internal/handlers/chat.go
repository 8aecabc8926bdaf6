package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/mchen/ripple/internal/inbox"
	"github.com/mchen/ripple/internal/registry"
	"github.com/mchen/ripple/internal/stream"
	"github.com/mchen/ripple/pkg/errors"
)

type ChatHandler struct {
	Registry *registry.Registry
	Stream   *stream.Stream
	Inbox    *inbox.Aggregator
}

func (h *ChatHandler) OpenConversation(w http.ResponseWriter, r *http.Request) {
	type OpenRequest struct {
		UserA string `json:"userA"`
		UserB string `json:"userB"`
	}

	var req OpenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conv, err := h.Registry.FindOrCreate(r.Context(), req.UserA, req.UserB)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (h *ChatHandler) GetInbox(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user")
	if userID == "" {
		http.Error(w, "user query parameter required", http.StatusBadRequest)
		return
	}

	entries, err := h.Inbox.List(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	type MessageRequest struct {
		SenderID string `json:"senderId"`
		Text     string `json:"text"`
		ImageURL string `json:"imageUrl"`
	}

	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	body := stream.Body{Text: req.Text, ImageURL: req.ImageURL}
	msg, err := h.Stream.Append(r.Context(), mux.Vars(r)["id"], req.SenderID, body)
	if err != nil && !errors.Is(err, errors.CodePartialWrite) {
		writeError(w, err)
		return
	}
	// A partial write still stored the message; the summary heals on the
	// next append.
	writeJSON(w, http.StatusCreated, msg)
}

func (h *ChatHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.Stream.Messages(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}
