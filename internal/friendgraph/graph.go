// Package friendgraph drives the friend-request state machine: a request
// is pending until resolved, and resolution is terminal. Acceptance
// mutates both users' friend sets and opens their conversation. Those
// writes are not transactional; a failure partway through is logged and
// left to self-heal on the next related operation.
package friendgraph

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/mchen/ripple/internal/docstore"
	"github.com/mchen/ripple/internal/models"
	"github.com/mchen/ripple/internal/registry"
	"github.com/mchen/ripple/pkg/errors"
)

type Graph struct {
	store    docstore.Store
	registry *registry.Registry
	logger   *slog.Logger
}

func New(store docstore.Store, reg *registry.Registry, logger *slog.Logger) *Graph {
	return &Graph{store: store, registry: reg, logger: logger}
}

// SendRequest creates a pending request from one user to another.
// Nothing deduplicates against an existing pending or accepted
// relationship, so repeated sends mint repeated pendings.
func (g *Graph) SendRequest(ctx context.Context, from, to string) (models.FriendRequest, error) {
	if from == to {
		return models.FriendRequest{}, errors.InvalidTarget("cannot send a friend request to yourself")
	}
	if _, err := g.store.Get(ctx, docstore.Users, to); err != nil {
		return models.FriendRequest{}, err
	}

	doc, err := g.store.Create(ctx, docstore.FriendRequests, map[string]any{
		"from":      from,
		"to":        to,
		"status":    models.StatusPending,
		"createdAt": docstore.ServerTimestamp,
	})
	if err != nil {
		return models.FriendRequest{}, err
	}
	g.logger.Info("friend request sent", "id", doc.ID, "from", from, "to", to)

	return decodeRequest(doc)
}

// PendingFor returns the pending requests addressed to a user, oldest
// first.
func (g *Graph) PendingFor(ctx context.Context, userID string) ([]models.FriendRequest, error) {
	docs, err := g.store.Query(ctx, docstore.FriendRequests, docstore.Query{
		Where: []docstore.Cond{
			{Field: "to", Op: docstore.OpEq, Value: userID},
			{Field: "status", Op: docstore.OpEq, Value: models.StatusPending},
		},
		OrderBy: "createdAt",
	})
	if err != nil {
		return nil, err
	}

	reqs := make([]models.FriendRequest, 0, len(docs))
	for _, doc := range docs {
		req, err := decodeRequest(doc)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

// Resolve transitions a pending request to accepted or rejected, exactly
// once. Re-resolving is an error, not a no-op: the pending check happens
// before any mutation so a second call cannot touch friend sets again.
func (g *Graph) Resolve(ctx context.Context, requestID string, outcome models.RequestStatus) error {
	if outcome != models.StatusAccepted && outcome != models.StatusRejected {
		return errors.InvalidArg(fmt.Sprintf("outcome must be accepted or rejected, got %q", outcome))
	}

	doc, err := g.store.Get(ctx, docstore.FriendRequests, requestID)
	if err != nil {
		return err
	}
	req, err := decodeRequest(doc)
	if err != nil {
		return err
	}
	if req.Status != models.StatusPending {
		return errors.AlreadyResolved(fmt.Sprintf("request already %s", req.Status))
	}

	if err := g.store.Update(ctx, docstore.FriendRequests, requestID, map[string]any{
		"status": outcome,
	}); err != nil {
		return err
	}

	if outcome == models.StatusRejected {
		g.logger.Info("friend request rejected", "id", requestID)
		return nil
	}

	return g.befriend(ctx, requestID, req.From, req.To)
}

// befriend unions each user's friend set with the other and opens the
// pair's conversation. Adding an already-present friend is a no-op.
func (g *Graph) befriend(ctx context.Context, requestID, a, b string) error {
	var ua, ub models.User
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		ua, err = g.getUser(egCtx, a)
		return err
	})
	eg.Go(func() error {
		var err error
		ub, err = g.getUser(egCtx, b)
		return err
	})
	if err := eg.Wait(); err != nil {
		return err
	}

	if err := g.store.Update(ctx, docstore.Users, a, map[string]any{
		"friends": union(ua.Friends, b),
	}); err != nil {
		return err
	}
	if err := g.store.Update(ctx, docstore.Users, b, map[string]any{
		"friends": union(ub.Friends, a),
	}); err != nil {
		g.logger.Error("friend sets out of sync after accept",
			"request", requestID, "updated", a, "failed", b, "error", err)
		return errors.PartialWrite("second friend-set update failed", err)
	}

	if _, err := g.registry.FindOrCreate(ctx, a, b); err != nil {
		// Recoverable: the next direct-message attempt re-runs
		// FindOrCreate for the pair.
		g.logger.Error("friends without a conversation after accept",
			"request", requestID, "pair", registry.CanonicalPair(a, b), "error", err)
		return errors.PartialWrite("conversation not created after accept", err)
	}

	g.logger.Info("friend request accepted", "id", requestID, "pair", registry.CanonicalPair(a, b))
	return nil
}

func (g *Graph) getUser(ctx context.Context, id string) (models.User, error) {
	doc, err := g.store.Get(ctx, docstore.Users, id)
	if err != nil {
		return models.User{}, err
	}
	var u models.User
	if err := doc.Decode(&u); err != nil {
		return models.User{}, errors.StoreUnavailable("decode user", err)
	}
	u.ID = doc.ID
	return u, nil
}

func union(friends []string, id string) []string {
	for _, f := range friends {
		if f == id {
			return friends
		}
	}
	return append(friends, id)
}

func decodeRequest(doc docstore.Doc) (models.FriendRequest, error) {
	var req models.FriendRequest
	if err := doc.Decode(&req); err != nil {
		return models.FriendRequest{}, errors.StoreUnavailable("decode friend request", err)
	}
	req.ID = doc.ID
	return req, nil
}
