// Package registry guarantees at most one conversation per unordered
// pair of participants. The store has no uniqueness constraint on pairs,
// so the guarantee is find-before-create with canonical participant
// ordering: best effort, not linearizable across concurrent clients.
package registry

import (
	"context"
	"log/slog"
	"sort"

	"github.com/mchen/ripple/internal/docstore"
	"github.com/mchen/ripple/internal/models"
	"github.com/mchen/ripple/pkg/errors"
)

type Registry struct {
	store  docstore.Store
	logger *slog.Logger
}

func New(store docstore.Store, logger *slog.Logger) *Registry {
	return &Registry{store: store, logger: logger}
}

// CanonicalPair returns the two ids sorted lexicographically, so (a,b)
// and (b,a) always normalize to the same stored representation.
func CanonicalPair(a, b string) []string {
	pair := []string{a, b}
	sort.Strings(pair)
	return pair
}

// Find returns the conversation between the two users, or NOT_FOUND. The
// store only supports containment on a single field, so this queries for
// conversations containing a and filters for b client-side.
func (r *Registry) Find(ctx context.Context, a, b string) (models.Conversation, error) {
	docs, err := r.store.Query(ctx, docstore.Chats,
		docstore.Where("participants", docstore.OpArrayContains, a))
	if err != nil {
		return models.Conversation{}, err
	}

	for _, doc := range docs {
		conv, err := decodeConversation(doc)
		if err != nil {
			return models.Conversation{}, err
		}
		for _, p := range conv.Participants {
			if p == b {
				return conv, nil
			}
		}
	}
	return models.Conversation{}, errors.NotFound("conversation not found")
}

// FindOrCreate returns the existing conversation for the pair or creates
// one. On a create failure the caller must not retry blindly: re-running
// Find first avoids minting a duplicate.
func (r *Registry) FindOrCreate(ctx context.Context, a, b string) (models.Conversation, error) {
	if a == b {
		return models.Conversation{}, errors.InvalidTarget("cannot open a conversation with yourself")
	}

	conv, err := r.Find(ctx, a, b)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, errors.CodeNotFound) {
		return models.Conversation{}, err
	}

	doc, err := r.store.Create(ctx, docstore.Chats, map[string]any{
		"participants": CanonicalPair(a, b),
		"lastMessage":  nil,
		"createdAt":    docstore.ServerTimestamp,
	})
	if err != nil {
		return models.Conversation{}, err
	}
	r.logger.Info("conversation created", "id", doc.ID, "participants", CanonicalPair(a, b))

	return decodeConversation(doc)
}

func decodeConversation(doc docstore.Doc) (models.Conversation, error) {
	var conv models.Conversation
	if err := doc.Decode(&conv); err != nil {
		return models.Conversation{}, errors.StoreUnavailable("decode conversation", err)
	}
	conv.ID = doc.ID
	return conv, nil
}
