package models

import "time"

// Challenge difficulty levels accepted by the API.
var ChallengeDifficulties = []string{"Beginner", "Intermediate", "Advanced"}

// Challenge is a sponsored task with a deadline, prize and participant cap.
type Challenge struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	CreatedBy       uint      `gorm:"index;not null" json:"created_by"`
	Company         string    `gorm:"size:128;not null" json:"company"`
	Title           string    `gorm:"size:255;not null" json:"title"`
	Difficulty      string    `gorm:"size:32;default:'Beginner'" json:"difficulty"`
	Description     string    `gorm:"type:text" json:"description"`
	Objectives      string    `gorm:"type:text" json:"objectives"`
	Requirements    string    `gorm:"type:text" json:"requirements"`
	JudgingCriteria string    `gorm:"type:text" json:"judging_criteria"`
	Prize           string    `gorm:"size:255" json:"prize"`
	Deadline        time.Time `gorm:"index;not null" json:"deadline"`
	MaxParticipants int       `gorm:"not null;default:0" json:"max_participants"`
	Tags            string    `gorm:"size:512" json:"tags"` // comma separated
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	Creator         User      `gorm:"foreignKey:CreatedBy;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"creator"`
}

// ChallengeParticipant records a user joining a challenge. The composite
// unique index turns a racing double-join into a duplicate-key error which
// the join endpoint reports as "already joined".
type ChallengeParticipant struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	ChallengeID uint      `gorm:"not null;uniqueIndex:idx_challenge_participants_challenge_user" json:"challenge_id"`
	UserID      uint      `gorm:"not null;uniqueIndex:idx_challenge_participants_challenge_user;index" json:"user_id"`
	JoinedAt    time.Time `gorm:"not null" json:"joined_at"`
	User        User      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"user"`
}

// ChallengeSubmission is a participant's single entry for a challenge.
type ChallengeSubmission struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	ChallengeID uint      `gorm:"not null;uniqueIndex:idx_challenge_submissions_challenge_user" json:"challenge_id"`
	UserID      uint      `gorm:"not null;uniqueIndex:idx_challenge_submissions_challenge_user;index" json:"user_id"`
	FileURL     string    `gorm:"size:1024;not null" json:"file_url"`
	Description string    `gorm:"type:text" json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}
