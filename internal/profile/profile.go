// Package profile manages user records: lookups, edits, the presence
// heartbeat, and display-name search.
package profile

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/mchen/ripple/internal/docstore"
	"github.com/mchen/ripple/internal/models"
	"github.com/mchen/ripple/pkg/errors"
)

type Service struct {
	store  docstore.Store
	logger *slog.Logger
}

func New(store docstore.Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// DefaultAvatarURL generates a placeholder avatar deterministically from
// a display name, for users without an uploaded photo.
func DefaultAvatarURL(name string) string {
	return fmt.Sprintf(
		"https://ui-avatars.com/api/?name=%s&background=random&color=fff&size=128",
		url.QueryEscape(name))
}

func (s *Service) Get(ctx context.Context, id string) (models.User, error) {
	doc, err := s.store.Get(ctx, docstore.Users, id)
	if err != nil {
		return models.User{}, err
	}
	return decodeUser(doc)
}

// Create registers a user profile. Identity provisioning itself is an
// external concern; this only stores the record the engine reads.
func (s *Service) Create(ctx context.Context, displayName, bio string) (models.User, error) {
	if strings.TrimSpace(displayName) == "" {
		return models.User{}, errors.InvalidArg("display name is required")
	}
	doc, err := s.store.Create(ctx, docstore.Users, map[string]any{
		"displayName": displayName,
		"bio":         bio,
		"friends":     []string{},
	})
	if err != nil {
		return models.User{}, err
	}
	s.logger.Info("user created", "id", doc.ID, "displayName", displayName)
	return decodeUser(doc)
}

// UpdateProfile applies a profile edit. Zero-valued fields are left
// untouched; friend sets and heartbeats are not editable here.
func (s *Service) UpdateProfile(ctx context.Context, id string, edit ProfileEdit) error {
	fields := map[string]any{}
	if edit.DisplayName != "" {
		fields["displayName"] = edit.DisplayName
	}
	if edit.Bio != "" {
		fields["bio"] = edit.Bio
	}
	if edit.PhotoURL != "" {
		fields["photoURL"] = edit.PhotoURL
	}
	if edit.CoverPhotoURL != "" {
		fields["coverPhotoURL"] = edit.CoverPhotoURL
	}
	if len(fields) == 0 {
		return nil
	}
	return s.store.Update(ctx, docstore.Users, id, fields)
}

type ProfileEdit struct {
	DisplayName   string `json:"displayName"`
	Bio           string `json:"bio"`
	PhotoURL      string `json:"photoURL"`
	CoverPhotoURL string `json:"coverPhotoURL"`
}

// Heartbeat records activity for the presence signal. The timestamp is
// server-assigned; client clocks never enter the presence calculation.
func (s *Service) Heartbeat(ctx context.Context, id string) error {
	return s.store.Update(ctx, docstore.Users, id, map[string]any{
		"lastActive": docstore.ServerTimestamp,
	})
}

// Search returns users whose display name starts with the query,
// case-insensitive, capped at 10.
func (s *Service) Search(ctx context.Context, query string) ([]models.User, error) {
	docs, err := s.store.Query(ctx, docstore.Users, docstore.Query{OrderBy: "displayName"})
	if err != nil {
		return nil, err
	}

	q := strings.ToLower(strings.TrimSpace(query))
	var users []models.User
	for _, doc := range docs {
		u, err := decodeUser(doc)
		if err != nil {
			return nil, err
		}
		if q == "" || strings.HasPrefix(strings.ToLower(u.DisplayName), q) {
			users = append(users, u)
			if len(users) == 10 {
				break
			}
		}
	}
	return users, nil
}

func decodeUser(doc docstore.Doc) (models.User, error) {
	var u models.User
	if err := doc.Decode(&u); err != nil {
		return models.User{}, errors.StoreUnavailable("decode user", err)
	}
	u.ID = doc.ID
	if u.PhotoURL == "" {
		u.PhotoURL = DefaultAvatarURL(u.DisplayName)
	}
	return u, nil
}
