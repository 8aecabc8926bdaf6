// Package stream maintains the per-conversation, append-only message
// sequence and its live subscription. Subscribers always observe messages
// in non-decreasing server-timestamp order: snapshots are re-sorted here
// even if the store delivered the underlying changes out of order.
package stream

import (
	"context"
	"log/slog"
	"sort"

	"github.com/mchen/ripple/internal/docstore"
	"github.com/mchen/ripple/internal/models"
	"github.com/mchen/ripple/pkg/errors"
)

// ImageSummary is the fixed inbox summary for image messages.
const ImageSummary = "📸 Image"

// Body is a message payload: exactly one of text or image reference.
type Body struct {
	Text     string
	ImageURL string
}

func TextBody(text string) Body { return Body{Text: text} }

func ImageBody(url string) Body { return Body{ImageURL: url} }

func (b Body) valid() bool { return (b.Text == "") != (b.ImageURL == "") }

// Summary is the conversation-list preview for this body.
func (b Body) Summary() string {
	if b.ImageURL != "" {
		return ImageSummary
	}
	return b.Text
}

type Stream struct {
	store  docstore.Store
	logger *slog.Logger
}

func New(store docstore.Store, logger *slog.Logger) *Stream {
	return &Stream{store: store, logger: logger}
}

// Append writes a message with a server-assigned timestamp, then updates
// the owning conversation's lastMessage summary. The two writes are not
// transactional: a summary failure after the message landed surfaces as
// PARTIAL_WRITE and heals on the next append.
func (s *Stream) Append(ctx context.Context, conversationID, senderID string, body Body) (models.Message, error) {
	if !body.valid() {
		return models.Message{}, errors.InvalidArg("message body must be exactly one of text or image")
	}
	if _, err := s.store.Get(ctx, docstore.Chats, conversationID); err != nil {
		return models.Message{}, err
	}

	fields := map[string]any{
		"conversationId": conversationID,
		"senderId":       senderID,
		"timestamp":      docstore.ServerTimestamp,
	}
	if body.ImageURL != "" {
		fields["imageUrl"] = body.ImageURL
	} else {
		fields["text"] = body.Text
	}

	doc, err := s.store.Create(ctx, docstore.Messages, fields)
	if err != nil {
		return models.Message{}, err
	}
	msg, err := decodeMessage(doc)
	if err != nil {
		return models.Message{}, err
	}

	err = s.store.Update(ctx, docstore.Chats, conversationID, map[string]any{
		"lastMessage": map[string]any{
			"text":      body.Summary(),
			"timestamp": docstore.ServerTimestamp,
		},
	})
	if err != nil {
		s.logger.Error("message stored but summary update failed",
			"conversation", conversationID, "message", msg.ID, "error", err)
		return msg, errors.PartialWrite("conversation summary not updated", err)
	}

	return msg, nil
}

// Messages returns the current ordered sequence without subscribing.
func (s *Stream) Messages(ctx context.Context, conversationID string) ([]models.Message, error) {
	docs, err := s.store.Query(ctx, docstore.Messages, docstore.Query{
		Where:   []docstore.Cond{{Field: "conversationId", Op: docstore.OpEq, Value: conversationID}},
		OrderBy: "timestamp",
	})
	if err != nil {
		return nil, err
	}
	return decodeMessages(docs)
}

// Subscription is a live, ordered view of one conversation's messages.
// The caller owns cancellation and must Cancel when the view goes away.
type Subscription struct {
	ch    chan []models.Message
	inner docstore.Subscription
}

func (s *Subscription) Updates() <-chan []models.Message { return s.ch }

// Cancel stops the subscription and discards anything still buffered;
// once it returns, Updates is closed and yields nothing further.
func (s *Subscription) Cancel() {
	s.inner.Cancel()
	for range s.ch {
	}
}

// Subscribe establishes a standing subscription delivering the full
// ordered snapshot on every change. Delivery is last-write-wins: a
// consumer that falls behind only sees the newest snapshot.
func (s *Stream) Subscribe(ctx context.Context, conversationID string) (*Subscription, error) {
	inner, err := s.store.Subscribe(ctx, docstore.Messages, docstore.Query{
		Where:   []docstore.Cond{{Field: "conversationId", Op: docstore.OpEq, Value: conversationID}},
		OrderBy: "timestamp",
	})
	if err != nil {
		return nil, err
	}

	sub := &Subscription{
		ch:    make(chan []models.Message, 1),
		inner: inner,
	}

	go func() {
		defer close(sub.ch)
		var lastSeq uint64
		for snap := range inner.Snapshots() {
			if snap.Seq <= lastSeq {
				continue // stale snapshot, never applied over a newer one
			}
			lastSeq = snap.Seq

			msgs, err := decodeMessages(snap.Docs)
			if err != nil {
				s.logger.Error("dropping undecodable snapshot",
					"conversation", conversationID, "error", err)
				continue
			}

			select {
			case sub.ch <- msgs:
			default:
				select {
				case <-sub.ch:
				default:
				}
				sub.ch <- msgs
			}
		}
	}()

	return sub, nil
}

func decodeMessage(doc docstore.Doc) (models.Message, error) {
	var msg models.Message
	if err := doc.Decode(&msg); err != nil {
		return models.Message{}, errors.StoreUnavailable("decode message", err)
	}
	msg.ID = doc.ID
	return msg, nil
}

// decodeMessages converts and re-sorts a snapshot. Sorting ascending by
// server timestamp with document-id tie-break keeps the sequence
// deterministic regardless of network delivery order.
func decodeMessages(docs []docstore.Doc) ([]models.Message, error) {
	msgs := make([]models.Message, 0, len(docs))
	for _, doc := range docs {
		msg, err := decodeMessage(doc)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	sort.Slice(msgs, func(i, j int) bool {
		if !msgs[i].Timestamp.Equal(msgs[j].Timestamp) {
			return msgs[i].Timestamp.Before(msgs[j].Timestamp)
		}
		return msgs[i].ID < msgs[j].ID
	})
	return msgs, nil
}
