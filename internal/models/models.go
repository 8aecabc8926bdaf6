package models

import "time"

type User struct {
	ID            string     `json:"id"`
	DisplayName   string     `json:"displayName"`
	Bio           string     `json:"bio,omitempty"`
	PhotoURL      string     `json:"photoURL,omitempty"`
	CoverPhotoURL string     `json:"coverPhotoURL,omitempty"`
	Friends       []string   `json:"friends,omitempty"`
	LastActive    *time.Time `json:"lastActive,omitempty"`
}

type Conversation struct {
	ID           string       `json:"id"`
	Participants []string     `json:"participants"`
	LastMessage  *LastMessage `json:"lastMessage"`
	CreatedAt    time.Time    `json:"createdAt"`
}

// LastMessage is the inbox summary kept on the conversation record.
type LastMessage struct {
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	Text           string    `json:"text,omitempty"`
	ImageURL       string    `json:"imageUrl,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// IsImage reports whether the message body is an image reference.
// A message is exactly one of text or image.
func (m Message) IsImage() bool { return m.ImageURL != "" }

type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusAccepted RequestStatus = "accepted"
	StatusRejected RequestStatus = "rejected"
)

type FriendRequest struct {
	ID        string        `json:"id"`
	From      string        `json:"from"`
	To        string        `json:"to"`
	Status    RequestStatus `json:"status"`
	CreatedAt time.Time     `json:"createdAt"`
}
