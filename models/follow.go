package models

import "time"

// Follow links a follower to the user they follow. Toggled by the follow
// endpoint; the unique pair index keeps the relation single-edged.
type Follow struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	FollowerID  uint      `gorm:"not null;uniqueIndex:idx_follows_follower_following;index" json:"follower_id"`
	FollowingID uint      `gorm:"not null;uniqueIndex:idx_follows_follower_following;index" json:"following_id"`
	CreatedAt   time.Time `json:"created_at"`
}
