// Package ws streams live snapshots to websocket clients: one endpoint
// per conversation's messages, one per user's inbox. Each connection owns
// exactly one subscription and cancels it when the socket closes.
package ws

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/mchen/ripple/internal/inbox"
	"github.com/mchen/ripple/internal/stream"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type Handler struct {
	Stream *stream.Stream
	Inbox  *inbox.Aggregator
	Logger *slog.Logger
}

// ServeConversation upgrades the connection and pushes every message
// snapshot for the conversation until the client goes away.
func (h *Handler) ServeConversation(w http.ResponseWriter, r *http.Request) {
	conversationID := mux.Vars(r)["id"]

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Logger.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sub, err := h.Stream.Subscribe(r.Context(), conversationID)
	if err != nil {
		h.Logger.Error("subscribe failed", "conversation", conversationID, "error", err)
		return
	}
	defer sub.Cancel()

	go h.readUntilClosed(conn, sub.Cancel)

	for msgs := range sub.Updates() {
		if err := conn.WriteJSON(msgs); err != nil {
			return
		}
	}
}

// ServeInbox pushes inbox snapshots for the user in the "user" query
// parameter.
func (h *Handler) ServeInbox(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user")
	if userID == "" {
		http.Error(w, "user query parameter required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Logger.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sub, err := h.Inbox.Subscribe(r.Context(), userID)
	if err != nil {
		h.Logger.Error("subscribe failed", "user", userID, "error", err)
		return
	}
	defer sub.Cancel()

	go h.readUntilClosed(conn, sub.Cancel)

	for entries := range sub.Updates() {
		if err := conn.WriteJSON(entries); err != nil {
			return
		}
	}
}

// readUntilClosed drains client frames so close frames are processed,
// then cancels the subscription. That unblocks the write loop: its
// updates channel closes once the subscription is gone.
func (h *Handler) readUntilClosed(conn *websocket.Conn, cancel func()) {
	defer cancel()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
