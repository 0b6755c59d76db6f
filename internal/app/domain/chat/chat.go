// Package chat defines the per-project two-party conversation entities.
package chat

import (
	"sort"
	"time"
)

// PreviewLimit caps the room's denormalized last-message preview.
const PreviewLimit = 100

// Room is a conversation scoped to one project and exactly two
// participants. Participant order is not part of the room's identity.
type Room struct {
	ID            string    `json:"id"`
	ProjectID     string    `json:"project_id"`
	ProjectTitle  string    `json:"project_title"`
	Participants  []string  `json:"participants"`
	LastMessage   string    `json:"last_message,omitempty"`
	LastMessageAt time.Time `json:"last_message_at,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// HasParticipant reports whether userID belongs to the room.
func (r Room) HasParticipant(userID string) bool {
	for _, p := range r.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// OtherParticipant returns the participant that is not userID, or "" when
// userID is not a member.
func (r Room) OtherParticipant(userID string) string {
	if !r.HasParticipant(userID) {
		return ""
	}
	for _, p := range r.Participants {
		if p != userID {
			return p
		}
	}
	return ""
}

// NormalizePair returns the two participant ids in canonical (sorted)
// order, the form used for room identity.
func NormalizePair(a, b string) []string {
	pair := []string{a, b}
	sort.Strings(pair)
	return pair
}

// Preview truncates content for the room's last-message field.
func Preview(content string) string {
	runes := []rune(content)
	if len(runes) <= PreviewLimit {
		return content
	}
	return string(runes[:PreviewLimit])
}

// Message is one immutable chat utterance. Ordering is by CreatedAt with
// ID as tiebreak.
type Message struct {
	ID         string    `json:"id"`
	RoomID     string    `json:"room_id"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
}
