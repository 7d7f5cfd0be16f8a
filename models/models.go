package models

import "time"

type User struct {
	ID        string    `json:"id"`
	Login     string    `json:"login"`
	Password  string    `json:"-"` // hashed
	CreatedAt time.Time `json:"created_at"`
}

type ConnectionStatus string

const (
	StatusSent     ConnectionStatus = "sent"
	StatusAccepted ConnectionStatus = "accepted"
)

// ConnectionRequest is a directional "like" from Sender to Receiver.
type ConnectionRequest struct {
	ID         string           `json:"id"`
	SenderID   string           `json:"sender_id"`
	ReceiverID string           `json:"receiver_id"`
	Status     ConnectionStatus `json:"status"`
	CreatedAt  time.Time        `json:"created_at"`
}

// Conversation is the single thread shared by two users. Which user is A and
// which is B only records who opened it first.
type Conversation struct {
	ID           string    `json:"id"`
	ParticipantA string    `json:"participant_a"`
	ParticipantB string    `json:"participant_b"`
	LastMessage  *string   `json:"last_message"`
	LastUpdated  time.Time `json:"last_updated"`
	CreatedAt    time.Time `json:"created_at"`
}

func (c Conversation) Pair() Pair {
	return NewPair(c.ParticipantA, c.ParticipantB)
}

func (c Conversation) HasParticipant(userID string) bool {
	return userID != "" && c.Pair().Contains(userID)
}

// Peer returns the participant that is not userID.
func (c Conversation) Peer(userID string) string {
	if c.ParticipantA == userID {
		return c.ParticipantB
	}
	return c.ParticipantA
}

type Message struct {
	ID             string    `json:"id"`
	Seq            int64     `json:"seq"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
	Read           bool      `json:"read"`
}

type NotificationType string

const (
	NotifyLike   NotificationType = "like"
	NotifyAccept NotificationType = "accept"
)

type Notification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"user_id"`
	SenderID  string           `json:"sender_id"`
	Type      NotificationType `json:"type"`
	Read      bool             `json:"read"`
	CreatedAt time.Time        `json:"created_at"`
}

// Pair is an unordered pair of user ids in canonical (Lo <= Hi) order.
type Pair struct {
	Lo string
	Hi string
}

func NewPair(a, b string) Pair {
	if b < a {
		a, b = b, a
	}
	return Pair{Lo: a, Hi: b}
}

func (p Pair) Contains(userID string) bool {
	return p.Lo == userID || p.Hi == userID
}

func (p Pair) Key() string {
	return p.Lo + ":" + p.Hi
}
