package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/mchen/ripple/internal/docstore/sqlitestore"
	"github.com/mchen/ripple/internal/inbox"
	"github.com/mchen/ripple/internal/models"
	"github.com/mchen/ripple/internal/presence"
	"github.com/mchen/ripple/internal/profile"
	"github.com/mchen/ripple/internal/registry"
	"github.com/mchen/ripple/internal/stream"
	"github.com/mchen/ripple/pkg/logging"
)

type chatTestEnv struct {
	handler  *ChatHandler
	profiles *profile.Service
}

func newChatHandler(t *testing.T) *chatTestEnv {
	store, err := sqlitestore.New(":memory:", nil)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	logger := logging.Discard()
	profiles := profile.New(store, logger)
	handler := &ChatHandler{
		Registry: registry.New(store, logger),
		Stream:   stream.New(store, logger),
		Inbox:    inbox.New(store, profiles, presence.Default(), logger),
	}
	return &chatTestEnv{handler: handler, profiles: profiles}
}

func TestOpenConversation(t *testing.T) {
	env := newChatHandler(t)
	ctx := context.Background()

	alice, _ := env.profiles.Create(ctx, "alice", "")
	bob, _ := env.profiles.Create(ctx, "bob", "")

	body, _ := json.Marshal(map[string]string{"userA": alice.ID, "userB": bob.ID})
	req, _ := http.NewRequest("POST", "/conversations", bytes.NewBuffer(body))
	rr := httptest.NewRecorder()
	http.HandlerFunc(env.handler.OpenConversation).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusOK)
	}
	var conv models.Conversation
	json.Unmarshal(rr.Body.Bytes(), &conv)
	if conv.ID == "" {
		t.Error("Expected a conversation id")
	}

	// The same pair, reversed, lands on the same conversation.
	body, _ = json.Marshal(map[string]string{"userA": bob.ID, "userB": alice.ID})
	req, _ = http.NewRequest("POST", "/conversations", bytes.NewBuffer(body))
	rr = httptest.NewRecorder()
	http.HandlerFunc(env.handler.OpenConversation).ServeHTTP(rr, req)

	var again models.Conversation
	json.Unmarshal(rr.Body.Bytes(), &again)
	if again.ID != conv.ID {
		t.Errorf("Expected same conversation %s, got %s", conv.ID, again.ID)
	}
}

func TestOpenConversationWithSelf(t *testing.T) {
	env := newChatHandler(t)
	alice, _ := env.profiles.Create(context.Background(), "alice", "")

	body, _ := json.Marshal(map[string]string{"userA": alice.ID, "userB": alice.ID})
	req, _ := http.NewRequest("POST", "/conversations", bytes.NewBuffer(body))
	rr := httptest.NewRecorder()
	http.HandlerFunc(env.handler.OpenConversation).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusBadRequest)
	}
}

func TestSendAndGetMessages(t *testing.T) {
	env := newChatHandler(t)
	ctx := context.Background()

	alice, _ := env.profiles.Create(ctx, "alice", "")
	bob, _ := env.profiles.Create(ctx, "bob", "")
	conv, err := env.handler.Registry.FindOrCreate(ctx, alice.ID, bob.ID)
	if err != nil {
		t.Fatalf("Failed to open conversation: %v", err)
	}

	body, _ := json.Marshal(map[string]string{"senderId": alice.ID, "text": "hello"})
	req, _ := http.NewRequest("POST", "/conversations/"+conv.ID+"/messages", bytes.NewBuffer(body))
	req = mux.SetURLVars(req, map[string]string{"id": conv.ID})
	rr := httptest.NewRecorder()
	http.HandlerFunc(env.handler.SendMessage).ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("SendMessage returned %v, want %v", rr.Code, http.StatusCreated)
	}

	req, _ = http.NewRequest("GET", "/conversations/"+conv.ID+"/messages", nil)
	req = mux.SetURLVars(req, map[string]string{"id": conv.ID})
	rr = httptest.NewRecorder()
	http.HandlerFunc(env.handler.GetMessages).ServeHTTP(rr, req)

	var msgs []models.Message
	json.Unmarshal(rr.Body.Bytes(), &msgs)
	if len(msgs) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(msgs))
	}
	if msgs[0].Text != "hello" {
		t.Errorf("Expected text 'hello', got '%s'", msgs[0].Text)
	}
}

func TestSendMessageEmptyBody(t *testing.T) {
	env := newChatHandler(t)
	ctx := context.Background()

	alice, _ := env.profiles.Create(ctx, "alice", "")
	bob, _ := env.profiles.Create(ctx, "bob", "")
	conv, _ := env.handler.Registry.FindOrCreate(ctx, alice.ID, bob.ID)

	body, _ := json.Marshal(map[string]string{"senderId": alice.ID})
	req, _ := http.NewRequest("POST", "/conversations/"+conv.ID+"/messages", bytes.NewBuffer(body))
	req = mux.SetURLVars(req, map[string]string{"id": conv.ID})
	rr := httptest.NewRecorder()
	http.HandlerFunc(env.handler.SendMessage).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusBadRequest)
	}
}

func TestGetInbox(t *testing.T) {
	env := newChatHandler(t)
	ctx := context.Background()

	alice, _ := env.profiles.Create(ctx, "alice", "")
	bob, _ := env.profiles.Create(ctx, "bob", "")
	conv, _ := env.handler.Registry.FindOrCreate(ctx, alice.ID, bob.ID)
	env.handler.Stream.Append(ctx, conv.ID, bob.ID, stream.TextBody("hey"))

	req, _ := http.NewRequest("GET", "/conversations?user="+alice.ID, nil)
	rr := httptest.NewRecorder()
	http.HandlerFunc(env.handler.GetInbox).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("GetInbox returned %v, want %v", rr.Code, http.StatusOK)
	}
	var entries []inbox.Entry
	json.Unmarshal(rr.Body.Bytes(), &entries)
	if len(entries) != 1 {
		t.Fatalf("Expected 1 inbox entry, got %d", len(entries))
	}
	if entries[0].Counterpart.DisplayName != "bob" {
		t.Errorf("Expected counterpart 'bob', got '%s'", entries[0].Counterpart.DisplayName)
	}
	if entries[0].LastMessage == nil || entries[0].LastMessage.Text != "hey" {
		t.Error("Expected lastMessage summary 'hey'")
	}
}

func TestGetInboxRequiresUser(t *testing.T) {
	env := newChatHandler(t)

	req, _ := http.NewRequest("GET", "/conversations", nil)
	rr := httptest.NewRecorder()
	http.HandlerFunc(env.handler.GetInbox).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusBadRequest)
	}
}
