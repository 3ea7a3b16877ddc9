package models

import "time"

// IdeaLike is the like-event ledger for ideas. The composite unique index is
// what makes a like toggle safe against racing duplicates.
type IdeaLike struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	IdeaID    uint      `gorm:"not null;uniqueIndex:idx_idea_likes_idea_user" json:"idea_id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_idea_likes_idea_user;index" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}
