// Package inbox composes the conversation registry, message summaries,
// and user profiles into a per-user conversation list, ordered by most
// recent activity and annotated with presence.
package inbox

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mchen/ripple/internal/docstore"
	"github.com/mchen/ripple/internal/models"
	"github.com/mchen/ripple/internal/presence"
	"github.com/mchen/ripple/internal/profile"
	"github.com/mchen/ripple/pkg/errors"
)

// Entry is one conversation in a user's inbox.
type Entry struct {
	ConversationID string              `json:"conversationId"`
	LastMessage    *models.LastMessage `json:"lastMessage"`
	CreatedAt      time.Time           `json:"createdAt"`
	Counterpart    Counterpart         `json:"counterpart"`
}

// Counterpart is the other participant, resolved fresh on every
// snapshot. No profile cache is kept between snapshots.
type Counterpart struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoURL"`
	Online      bool   `json:"online"`
}

type Aggregator struct {
	store    docstore.Store
	profiles *profile.Service
	presence presence.Evaluator
	logger   *slog.Logger
	now      func() time.Time
}

func New(store docstore.Store, profiles *profile.Service, eval presence.Evaluator, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		store:    store,
		profiles: profiles,
		presence: eval,
		logger:   logger,
		now:      time.Now,
	}
}

// SetNow overrides the presence clock. Tests use it for a fixed "now".
func (a *Aggregator) SetNow(now func() time.Time) { a.now = now }

// List returns the current inbox without subscribing: conversations
// containing the user, most recent message first, conversations without
// messages last.
func (a *Aggregator) List(ctx context.Context, userID string) ([]Entry, error) {
	docs, err := a.store.Query(ctx, docstore.Chats, docstore.Query{
		Where:   []docstore.Cond{{Field: "participants", Op: docstore.OpArrayContains, Value: userID}},
		OrderBy: "lastMessage.timestamp",
		Desc:    true,
	})
	if err != nil {
		return nil, err
	}
	return a.resolve(ctx, userID, docs)
}

// Subscription is a live inbox view.
type Subscription struct {
	ch    chan []Entry
	inner docstore.Subscription
}

func (s *Subscription) Updates() <-chan []Entry { return s.ch }

// Cancel stops the subscription and discards anything still buffered;
// once it returns, Updates is closed and yields nothing further.
func (s *Subscription) Cancel() {
	s.inner.Cancel()
	for range s.ch {
	}
}

// Subscribe establishes a live inbox. Every snapshot re-resolves every
// counterpart profile; a snapshot that cannot be resolved is dropped,
// leaving the consumer at its last good view.
func (a *Aggregator) Subscribe(ctx context.Context, userID string) (*Subscription, error) {
	inner, err := a.store.Subscribe(ctx, docstore.Chats, docstore.Query{
		Where:   []docstore.Cond{{Field: "participants", Op: docstore.OpArrayContains, Value: userID}},
		OrderBy: "lastMessage.timestamp",
		Desc:    true,
	})
	if err != nil {
		return nil, err
	}

	sub := &Subscription{
		ch:    make(chan []Entry, 1),
		inner: inner,
	}

	go func() {
		defer close(sub.ch)
		var lastSeq uint64
		for snap := range inner.Snapshots() {
			if snap.Seq <= lastSeq {
				continue
			}
			lastSeq = snap.Seq

			entries, err := a.resolve(ctx, userID, snap.Docs)
			if err != nil {
				a.logger.Error("inbox snapshot dropped", "user", userID, "error", err)
				continue
			}

			select {
			case sub.ch <- entries:
			default:
				select {
				case <-sub.ch:
				default:
				}
				sub.ch <- entries
			}
		}
	}()

	return sub, nil
}

// resolve turns conversation documents into inbox entries, fetching each
// counterpart profile concurrently. Conversations whose counterpart
// record is gone are skipped, matching the client's behavior.
func (a *Aggregator) resolve(ctx context.Context, userID string, docs []docstore.Doc) ([]Entry, error) {
	now := a.now()
	entries := make([]*Entry, len(docs))

	eg, egCtx := errgroup.WithContext(ctx)
	for i, doc := range docs {
		i, doc := i, doc
		eg.Go(func() error {
			var conv models.Conversation
			if err := doc.Decode(&conv); err != nil {
				return errors.StoreUnavailable("decode conversation", err)
			}
			conv.ID = doc.ID

			other := counterpartID(conv.Participants, userID)
			if other == "" {
				return nil
			}

			u, err := a.profiles.Get(egCtx, other)
			if errors.Is(err, errors.CodeNotFound) {
				return nil
			}
			if err != nil {
				return err
			}

			entry := &Entry{
				ConversationID: conv.ID,
				LastMessage:    conv.LastMessage,
				CreatedAt:      conv.CreatedAt,
				Counterpart: Counterpart{
					ID:          u.ID,
					DisplayName: u.DisplayName,
					PhotoURL:    u.PhotoURL,
					Online:      a.presence.IsOnline(u.LastActive, now),
				},
			}
			entries[i] = entry
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e != nil {
			out = append(out, *e)
		}
	}
	return out, nil
}

func counterpartID(participants []string, userID string) string {
	for _, p := range participants {
		if p != userID {
			return p
		}
	}
	return ""
}
