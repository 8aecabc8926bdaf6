package stream

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mchen/ripple/internal/docstore"
	"github.com/mchen/ripple/internal/docstore/sqlitestore"
	"github.com/mchen/ripple/internal/models"
	"github.com/mchen/ripple/internal/registry"
	"github.com/mchen/ripple/pkg/errors"
	"github.com/mchen/ripple/pkg/logging"
)

func newTestStream(t *testing.T) (*Stream, docstore.Store, string) {
	store, err := sqlitestore.New(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	reg := registry.New(store, logging.Discard())
	conv, err := reg.FindOrCreate(context.Background(), "alice", "bob")
	require.NoError(t, err)

	return New(store, logging.Discard()), store, conv.ID
}

func TestAppendTextUpdatesSummary(t *testing.T) {
	s, store, convID := newTestStream(t)
	ctx := context.Background()

	msg, err := s.Append(ctx, convID, "alice", TextBody("hello"))
	require.NoError(t, err)
	assert.Equal(t, "hello", msg.Text)
	assert.Equal(t, "alice", msg.SenderID)
	assert.False(t, msg.Timestamp.IsZero(), "timestamp must be server-assigned")

	doc, err := store.Get(ctx, docstore.Chats, convID)
	require.NoError(t, err)
	var conv models.Conversation
	require.NoError(t, doc.Decode(&conv))
	require.NotNil(t, conv.LastMessage)
	assert.Equal(t, "hello", conv.LastMessage.Text)
}

func TestAppendImageSummaryIsPlaceholder(t *testing.T) {
	s, store, convID := newTestStream(t)
	ctx := context.Background()

	msg, err := s.Append(ctx, convID, "bob", ImageBody("https://cdn.example.com/cat.png"))
	require.NoError(t, err)
	assert.True(t, msg.IsImage())
	assert.Empty(t, msg.Text)

	doc, err := store.Get(ctx, docstore.Chats, convID)
	require.NoError(t, err)
	var conv models.Conversation
	require.NoError(t, doc.Decode(&conv))
	require.NotNil(t, conv.LastMessage)
	assert.Equal(t, ImageSummary, conv.LastMessage.Text)
}

func TestAppendRejectsInvalidBody(t *testing.T) {
	s, _, convID := newTestStream(t)
	ctx := context.Background()

	_, err := s.Append(ctx, convID, "alice", Body{})
	assert.True(t, errors.Is(err, errors.CodeInvalidArgument))

	_, err = s.Append(ctx, convID, "alice", Body{Text: "hi", ImageURL: "https://x/y.png"})
	assert.True(t, errors.Is(err, errors.CodeInvalidArgument))
}

func TestAppendUnknownConversation(t *testing.T) {
	s, _, _ := newTestStream(t)

	_, err := s.Append(context.Background(), "missing", "alice", TextBody("hi"))
	assert.True(t, errors.Is(err, errors.CodeNotFound))
}

func TestMessagesOrderedByServerTimestamp(t *testing.T) {
	s, _, convID := newTestStream(t)
	ctx := context.Background()

	for _, text := range []string{"one", "two", "three"} {
		_, err := s.Append(ctx, convID, "alice", TextBody(text))
		require.NoError(t, err)
	}

	msgs, err := s.Messages(ctx, convID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "one", msgs[0].Text)
	assert.Equal(t, "two", msgs[1].Text)
	assert.Equal(t, "three", msgs[2].Text)
	assert.True(t, msgs[0].Timestamp.Before(msgs[1].Timestamp))
	assert.True(t, msgs[1].Timestamp.Before(msgs[2].Timestamp))
}

func TestSubscribeDeliversAppends(t *testing.T) {
	s, _, convID := newTestStream(t)
	ctx := context.Background()

	sub, err := s.Subscribe(ctx, convID)
	require.NoError(t, err)
	defer sub.Cancel()

	msgs := waitForMessages(t, sub, 0)
	assert.Empty(t, msgs)

	_, err = s.Append(ctx, convID, "alice", TextBody("hello"))
	require.NoError(t, err)

	msgs = waitForMessages(t, sub, 1)
	assert.Equal(t, "hello", msgs[0].Text)
}

func TestCancelDiscardsPendingUpdate(t *testing.T) {
	s, _, convID := newTestStream(t)
	ctx := context.Background()

	sub, err := s.Subscribe(ctx, convID)
	require.NoError(t, err)
	waitForMessages(t, sub, 0)

	// Append without reading, so an update is buffered behind the
	// consumer, then cancel.
	_, err = s.Append(ctx, convID, "alice", TextBody("unread"))
	require.NoError(t, err)
	sub.Cancel()

	for msgs := range sub.Updates() {
		t.Fatalf("Received %d-message update after Cancel returned", len(msgs))
	}
}

func TestSubscribeCancelClosesUpdates(t *testing.T) {
	s, _, convID := newTestStream(t)

	sub, err := s.Subscribe(context.Background(), convID)
	require.NoError(t, err)
	waitForMessages(t, sub, 0)

	sub.Cancel()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-sub.Updates():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("Updates channel not closed after Cancel")
		}
	}
}

// fakeSubscription lets a test hand-craft snapshot delivery, including
// out-of-order document slices and stale sequence numbers no real backend
// would produce.
type fakeSubscription struct {
	ch chan docstore.Snapshot
}

func (f *fakeSubscription) Snapshots() <-chan docstore.Snapshot { return f.ch }

func (f *fakeSubscription) Cancel() { close(f.ch) }

type fakeStore struct {
	docstore.Store
	sub *fakeSubscription
}

func (f *fakeStore) Subscribe(ctx context.Context, collection string, q docstore.Query) (docstore.Subscription, error) {
	return f.sub, nil
}

func msgDoc(t *testing.T, id, sender, text, imageURL string, ts time.Time) docstore.Doc {
	t.Helper()
	body := map[string]any{
		"conversationId": "c1",
		"senderId":       sender,
		"timestamp":      ts.Format(time.RFC3339Nano),
	}
	if imageURL != "" {
		body["imageUrl"] = imageURL
	} else {
		body["text"] = text
	}
	data, err := json.Marshal(body)
	require.NoError(t, err)
	return docstore.Doc{ID: id, Collection: docstore.Messages, Timestamp: ts, Data: data}
}

func TestSubscribeResortsOutOfOrderDelivery(t *testing.T) {
	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	fake := &fakeStore{sub: &fakeSubscription{ch: make(chan docstore.Snapshot, 2)}}
	s := New(fake, logging.Discard())

	sub, err := s.Subscribe(context.Background(), "c1")
	require.NoError(t, err)
	defer sub.Cancel()

	// Alice's later text arrives in the snapshot before Bob's earlier
	// image; the subscriber must still see Bob first.
	fake.sub.ch <- docstore.Snapshot{Seq: 1, Docs: []docstore.Doc{
		msgDoc(t, "m-alice", "alice", "hello", "", base.Add(100*time.Millisecond)),
		msgDoc(t, "m-bob", "bob", "", "https://cdn.example.com/pic.png", base.Add(90*time.Millisecond)),
	}}

	msgs := waitForMessages(t, sub, 2)
	assert.Equal(t, "bob", msgs[0].SenderID)
	assert.True(t, msgs[0].IsImage())
	assert.Equal(t, "alice", msgs[1].SenderID)
	assert.Equal(t, "hello", msgs[1].Text)
}

func TestSubscribeDropsStaleSnapshots(t *testing.T) {
	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	fake := &fakeStore{sub: &fakeSubscription{ch: make(chan docstore.Snapshot, 3)}}
	s := New(fake, logging.Discard())

	sub, err := s.Subscribe(context.Background(), "c1")
	require.NoError(t, err)

	fake.sub.ch <- docstore.Snapshot{Seq: 2, Docs: []docstore.Doc{
		msgDoc(t, "m1", "alice", "first", "", base),
		msgDoc(t, "m2", "bob", "second", "", base.Add(time.Millisecond)),
	}}
	// A redelivery with a lower sequence must never roll the view back.
	fake.sub.ch <- docstore.Snapshot{Seq: 1, Docs: []docstore.Doc{
		msgDoc(t, "m1", "alice", "first", "", base),
	}}
	fake.sub.Cancel()

	var last []models.Message
	for msgs := range sub.Updates() {
		last = msgs
	}
	require.Len(t, last, 2)
	assert.Equal(t, "second", last[1].Text)
}

func waitForMessages(t *testing.T, sub *Subscription, n int) []models.Message {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case msgs, ok := <-sub.Updates():
			if !ok {
				t.Fatal("Updates channel closed while waiting")
			}
			if len(msgs) >= n {
				return msgs
			}
		case <-deadline:
			t.Fatalf("Timed out waiting for %d messages", n)
		}
	}
}
