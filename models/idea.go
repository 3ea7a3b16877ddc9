package models

import "time"

// Idea categories accepted by the API.
var IdeaCategories = []string{"General", "Tech", "Health", "Education", "Finance"}

// Idea represents a user-authored post describing an innovation or concept.
// Like and comment counters are caches maintained in the same transaction as
// their ledgers (IdeaLike / Comment rows); the ledgers stay authoritative.
type Idea struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UserID       uint      `gorm:"index;not null" json:"user_id"`
	Title        string    `gorm:"size:255;not null" json:"title"`
	Summary      string    `gorm:"size:512" json:"summary"`
	Content      string    `gorm:"type:text;not null" json:"content"`
	Category     string    `gorm:"size:32;default:'General'" json:"category"`
	Tags         string    `gorm:"size:512" json:"tags"` // comma separated
	CoverURL     string    `gorm:"size:1024" json:"cover_url"`
	LikeCount    int64     `gorm:"not null;default:0" json:"like_count"`
	CommentCount int64     `gorm:"not null;default:0" json:"comment_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	User         User      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"author"`
	Comments     []Comment `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"comments,omitempty"`
}
