// Package achievements implements the unlock engine: metric readers over user
// activity, a threshold rule table keyed by stable codes, an idempotent
// grant-once coordinator and a trigger dispatcher that evaluates rules after
// qualifying actions.
package achievements

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/ideahub/ideahub/models"
)

// Store abstracts the persistence the engine needs. Handlers hand the engine a
// GormStore; tests may substitute their own implementation.
type Store interface {
	// AchievementByCode resolves a catalog entry by its stable code.
	AchievementByCode(ctx context.Context, code string) (*models.Achievement, error)

	// InsertUnlock records an unlock. Returns false with a nil error when the
	// (user, achievement) pair already exists.
	InsertUnlock(ctx context.Context, userID, achievementID uint, at time.Time) (bool, error)

	// Metric readers. Each counts a single dimension of a user's activity.
	IdeaCount(ctx context.Context, userID uint) (int64, error)
	CommentCount(ctx context.Context, userID uint) (int64, error)
	DistinctIdeasCommented(ctx context.Context, userID uint) (int64, error)
	TotalLikesReceived(ctx context.Context, userID uint) (int64, error)
	MaxLikesOnSingleIdea(ctx context.Context, userID uint) (int64, error)

	// CreateNotification records an unlock notification for the user.
	CreateNotification(ctx context.Context, n *models.Notification) error
}

// ErrUnknownAchievement is returned when a grant names a code that is not in
// the catalog.
var ErrUnknownAchievement = errors.New("unknown achievement code")

// GormStore is the production Store backed by the application database.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps a gorm handle.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) AchievementByCode(ctx context.Context, code string) (*models.Achievement, error) {
	var a models.Achievement
	err := s.db.WithContext(ctx).Where("code = ?", code).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUnknownAchievement
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *GormStore) InsertUnlock(ctx context.Context, userID, achievementID uint, at time.Time) (bool, error) {
	unlock := models.UserAchievement{
		UserID:        userID,
		AchievementID: achievementID,
		UnlockedAt:    at,
	}
	err := s.db.WithContext(ctx).Create(&unlock).Error
	if err == nil {
		return true, nil
	}
	// The composite unique index turns concurrent double-grants into a
	// duplicate-key error; both are "already granted", not failures.
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return false, nil
	}
	return false, err
}

func (s *GormStore) IdeaCount(ctx context.Context, userID uint) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Idea{}).
		Where("user_id = ?", userID).Count(&n).Error
	return n, err
}

func (s *GormStore) CommentCount(ctx context.Context, userID uint) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Comment{}).
		Where("user_id = ?", userID).Count(&n).Error
	return n, err
}

func (s *GormStore) DistinctIdeasCommented(ctx context.Context, userID uint) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Comment{}).
		Where("user_id = ?", userID).
		Distinct("idea_id").Count(&n).Error
	return n, err
}

// TotalLikesReceived sums likes across every idea the user authored. The like
// ledger is the source of truth, not the cached counters.
func (s *GormStore) TotalLikesReceived(ctx context.Context, userID uint) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.IdeaLike{}).
		Joins("JOIN ideas ON ideas.id = idea_likes.idea_id").
		Where("ideas.user_id = ?", userID).Count(&n).Error
	return n, err
}

func (s *GormStore) MaxLikesOnSingleIdea(ctx context.Context, userID uint) (int64, error) {
	type row struct{ N int64 }
	var r row
	err := s.db.WithContext(ctx).Model(&models.IdeaLike{}).
		Select("COUNT(*) AS n").
		Joins("JOIN ideas ON ideas.id = idea_likes.idea_id").
		Where("ideas.user_id = ?", userID).
		Group("idea_likes.idea_id").
		Order("n DESC").
		Limit(1).
		Scan(&r).Error
	if err != nil {
		return 0, err
	}
	return r.N, nil
}

func (s *GormStore) CreateNotification(ctx context.Context, n *models.Notification) error {
	return s.db.WithContext(ctx).Create(n).Error
}
