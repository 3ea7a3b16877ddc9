package models

import "time"

// Chat participant roles.
const (
	ChatRoleOwner  = "owner"
	ChatRoleMember = "member"
)

// Chat is a private or group conversation.
type Chat struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Title     string    `gorm:"size:255" json:"title"`
	IsGroup   bool      `gorm:"not null;default:false" json:"is_group"`
	CreatedBy uint      `gorm:"index;not null" json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatParticipant links a user to a chat with a role.
type ChatParticipant struct {
	ID       uint      `gorm:"primaryKey" json:"id"`
	ChatID   uint      `gorm:"not null;uniqueIndex:idx_chat_participants_chat_user" json:"chat_id"`
	UserID   uint      `gorm:"not null;uniqueIndex:idx_chat_participants_chat_user;index" json:"user_id"`
	Role     string    `gorm:"size:16;default:'member'" json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}
