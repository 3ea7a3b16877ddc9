package models

import "time"

// Message request statuses.
const (
	MessageRequestPending  = "pending"
	MessageRequestAccepted = "accepted"
	MessageRequestRejected = "rejected"
	MessageRequestBlocked  = "blocked"
)

// MessageRequest asks a user for permission to start a private chat.
// Accepting one creates the chat with both users as members.
type MessageRequest struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	SenderID    uint       `gorm:"not null;uniqueIndex:idx_message_requests_sender_receiver" json:"sender_id"`
	ReceiverID  uint       `gorm:"not null;uniqueIndex:idx_message_requests_sender_receiver;index" json:"receiver_id"`
	Status      string     `gorm:"size:16;default:'pending'" json:"status"`
	RespondedAt *time.Time `json:"responded_at"`
	CreatedAt   time.Time  `json:"created_at"`
	Sender      User       `gorm:"foreignKey:SenderID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"sender"`
}
