package models

import "time"

// Message is a chat message with an optional reply reference.
type Message struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ChatID    uint      `gorm:"index;not null" json:"chat_id"`
	SenderID  uint      `gorm:"index;not null" json:"sender_id"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	ReplyTo   *uint     `gorm:"index" json:"reply_to"`
	CreatedAt time.Time `json:"created_at"`
	Sender    User      `gorm:"foreignKey:SenderID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"sender"`
}

// MessageRead is a per-user read receipt, upserted on conflict so repeated
// reads stay idempotent.
type MessageRead struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	MessageID uint      `gorm:"not null;uniqueIndex:idx_message_reads_message_user" json:"message_id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_message_reads_message_user;index" json:"user_id"`
	ReadAt    time.Time `json:"read_at"`
}
