package notify

import "time"

// Message is a notification published to a user channel.
//
// Delivery is best-effort: publishers do not retry and callers never block
// a call state change on a failed publish.
type Message struct {
	ID   string      `json:"id"`
	Type MessageType `json:"type"`

	SessionID int64 `json:"sessionId"`
	// SenderID is the call creator; RecipientID the addressed party.
	SenderID    int64 `json:"senderId"`
	RecipientID int64 `json:"recipientId"`

	Title   string `json:"title,omitempty"`
	Content string `json:"content"`

	CreatedAt time.Time `json:"createdAt"`
}

type MessageType string

const (
	MessageIncomingCall  MessageType = "INCOMING_CALL"
	MessageCallMissed    MessageType = "CALL_MISSED"
	MessageCallCompleted MessageType = "CALL_COMPLETED"
)

func NotificationsChannel(userID int64) string { return "notifications." + itoa(userID) }
func PrivateChannel(userID int64) string       { return "private." + itoa(userID) }
