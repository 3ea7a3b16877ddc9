package achievements

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ideahub/ideahub/config"
	"github.com/ideahub/ideahub/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Idea{},
		&models.IdeaLike{},
		&models.Comment{},
		&models.Achievement{},
		&models.UserAchievement{},
		&models.Notification{},
	))
	require.NoError(t, config.SeedAchievements(db))
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		_ = sqlDB.Close()
	})
	return db
}

func createUser(t *testing.T, db *gorm.DB, name string) models.User {
	t.Helper()
	u := models.User{Username: name, Email: name + "@example.com", PasswordHash: "x"}
	require.NoError(t, db.Create(&u).Error)
	return u
}

func createIdea(t *testing.T, db *gorm.DB, userID uint, title string) models.Idea {
	t.Helper()
	idea := models.Idea{UserID: userID, Title: title, Content: "body"}
	require.NoError(t, db.Create(&idea).Error)
	return idea
}

func likeIdea(t *testing.T, db *gorm.DB, ideaID, userID uint) {
	t.Helper()
	require.NoError(t, db.Create(&models.IdeaLike{IdeaID: ideaID, UserID: userID}).Error)
}

func TestGrantOnceIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	user := createUser(t, db, "alice")
	store := NewGormStore(db)
	granter := NewGranter(store, nil)
	ctx := context.Background()

	fresh, err := granter.GrantOnce(ctx, user.ID, "first_post")
	require.NoError(t, err)
	require.True(t, fresh)

	fresh, err = granter.GrantOnce(ctx, user.ID, "first_post")
	require.NoError(t, err)
	require.False(t, fresh)

	var count int64
	require.NoError(t, db.Model(&models.UserAchievement{}).
		Where("user_id = ?", user.ID).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestGrantOnceUnknownCode(t *testing.T) {
	db := newTestDB(t)
	user := createUser(t, db, "bob")
	granter := NewGranter(NewGormStore(db), nil)

	fresh, err := granter.GrantOnce(context.Background(), user.ID, "no_such_code")
	require.ErrorIs(t, err, ErrUnknownAchievement)
	require.False(t, fresh)
}

func TestGrantOnceWritesNotification(t *testing.T) {
	db := newTestDB(t)
	user := createUser(t, db, "carol")
	granter := NewGranter(NewGormStore(db), nil)

	fresh, err := granter.GrantOnce(context.Background(), user.ID, "first_word")
	require.NoError(t, err)
	require.True(t, fresh)

	var n models.Notification
	require.NoError(t, db.Where("user_id = ? AND type = ?", user.ID, models.NotificationAchievement).
		First(&n).Error)
	require.Contains(t, n.Content, "First Word")

	// Repeat grant adds no second notification.
	_, err = granter.GrantOnce(context.Background(), user.ID, "first_word")
	require.NoError(t, err)
	var count int64
	require.NoError(t, db.Model(&models.Notification{}).
		Where("user_id = ? AND type = ?", user.ID, models.NotificationAchievement).
		Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestDispatchFirstPost(t *testing.T) {
	db := newTestDB(t)
	user := createUser(t, db, "dana")
	createIdea(t, db, user.ID, "one")
	d := NewDispatcher(NewGormStore(db), DefaultRules(), nil)

	unlocked := d.Dispatch(context.Background(), TriggerIdeaCreated, user.ID)
	require.Len(t, unlocked, 1)
	require.Equal(t, "first_post", unlocked[0].Code)
	require.Equal(t, 10, unlocked[0].Points)

	// Second idea does not re-grant.
	createIdea(t, db, user.ID, "two")
	unlocked = d.Dispatch(context.Background(), TriggerIdeaCreated, user.ID)
	require.Empty(t, unlocked)
}

func TestDispatchConversationalistCountsDistinctIdeas(t *testing.T) {
	db := newTestDB(t)
	author := createUser(t, db, "author")
	commenter := createUser(t, db, "commenter")
	d := NewDispatcher(NewGormStore(db), DefaultRules(), nil)
	ctx := context.Background()

	first := createIdea(t, db, author.ID, "idea-0")
	// Five comments on the same idea only count once.
	for i := 0; i < 5; i++ {
		require.NoError(t, db.Create(&models.Comment{
			IdeaID: first.ID, UserID: commenter.ID, Content: "again",
		}).Error)
	}
	unlocked := d.Dispatch(ctx, TriggerCommentCreated, commenter.ID)
	require.Len(t, unlocked, 1)
	require.Equal(t, "first_word", unlocked[0].Code)

	// Comments on four more distinct ideas reach the threshold of five.
	for i := 1; i < 5; i++ {
		idea := createIdea(t, db, author.ID, fmt.Sprintf("idea-%d", i))
		require.NoError(t, db.Create(&models.Comment{
			IdeaID: idea.ID, UserID: commenter.ID, Content: "hello",
		}).Error)
	}
	unlocked = d.Dispatch(ctx, TriggerCommentCreated, commenter.ID)
	require.Len(t, unlocked, 1)
	require.Equal(t, "conversationalist", unlocked[0].Code)
}

func TestDispatchCommunityFavoriteSingleIdeaThreshold(t *testing.T) {
	db := newTestDB(t)
	author := createUser(t, db, "maker")
	idea := createIdea(t, db, author.ID, "popular")
	other := createIdea(t, db, author.ID, "quiet")
	d := NewDispatcher(NewGormStore(db), DefaultRules(), nil)
	ctx := context.Background()

	// Nine likes on one idea plus one on another: total is ten but no single
	// idea reached ten, so nothing unlocks.
	for i := 0; i < 9; i++ {
		fan := createUser(t, db, fmt.Sprintf("fan-%d", i))
		likeIdea(t, db, idea.ID, fan.ID)
	}
	stray := createUser(t, db, "stray")
	likeIdea(t, db, other.ID, stray.ID)
	require.Empty(t, d.Dispatch(ctx, TriggerIdeaLiked, author.ID))

	// The tenth like on the popular idea crosses the inclusive threshold.
	tenth := createUser(t, db, "fan-9")
	likeIdea(t, db, idea.ID, tenth.ID)
	unlocked := d.Dispatch(ctx, TriggerIdeaLiked, author.ID)
	require.Len(t, unlocked, 1)
	require.Equal(t, "community_favorite", unlocked[0].Code)
}

func TestDispatchInfluencerAcrossIdeas(t *testing.T) {
	db := newTestDB(t)
	author := createUser(t, db, "spread")
	d := NewDispatcher(NewGormStore(db), DefaultRules(), nil)
	ctx := context.Background()

	// Twenty likes spread over four ideas, five each. No idea reaches ten,
	// so only influencer fires.
	for i := 0; i < 4; i++ {
		idea := createIdea(t, db, author.ID, fmt.Sprintf("spread-%d", i))
		for j := 0; j < 5; j++ {
			fan := createUser(t, db, fmt.Sprintf("f-%d-%d", i, j))
			likeIdea(t, db, idea.ID, fan.ID)
		}
	}
	unlocked := d.Dispatch(ctx, TriggerIdeaLiked, author.ID)
	require.Len(t, unlocked, 1)
	require.Equal(t, "influencer", unlocked[0].Code)
}

// failingStore returns an error from every metric reader.
type failingStore struct {
	Store
}

func (f failingStore) TotalLikesReceived(ctx context.Context, userID uint) (int64, error) {
	return 0, errors.New("metrics down")
}

func (f failingStore) MaxLikesOnSingleIdea(ctx context.Context, userID uint) (int64, error) {
	return 0, errors.New("metrics down")
}

func TestDispatchDegradesOnMetricFailure(t *testing.T) {
	db := newTestDB(t)
	user := createUser(t, db, "eve")
	d := NewDispatcher(failingStore{Store: NewGormStore(db)}, DefaultRules(), nil)

	// Metric failures must not panic or grant; the trigger is simply a no-op.
	unlocked := d.Dispatch(context.Background(), TriggerIdeaLiked, user.ID)
	require.Empty(t, unlocked)

	var count int64
	require.NoError(t, db.Model(&models.UserAchievement{}).Count(&count).Error)
	require.Equal(t, int64(0), count)
}

func TestInsertUnlockRace(t *testing.T) {
	db := newTestDB(t)
	user := createUser(t, db, "racer")
	store := NewGormStore(db)
	ctx := context.Background()

	var ach models.Achievement
	require.NoError(t, db.Where("code = ?", "influencer").First(&ach).Error)

	first, err := store.InsertUnlock(ctx, user.ID, ach.ID, time.Now())
	require.NoError(t, err)
	require.True(t, first)

	second, err := store.InsertUnlock(ctx, user.ID, ach.ID, time.Now())
	require.NoError(t, err)
	require.False(t, second)
}

func TestDispatchZeroActivityGrantsNothing(t *testing.T) {
	db := newTestDB(t)
	user := createUser(t, db, "lurker")
	d := NewDispatcher(NewGormStore(db), DefaultRules(), nil)
	ctx := context.Background()

	for _, trigger := range []Trigger{TriggerIdeaCreated, TriggerCommentCreated, TriggerIdeaLiked} {
		require.Empty(t, d.Dispatch(ctx, trigger, user.ID))
	}

	var count int64
	require.NoError(t, db.Model(&models.UserAchievement{}).Count(&count).Error)
	require.Equal(t, int64(0), count)
}

func TestMetricsAreZeroForEmptyUser(t *testing.T) {
	db := newTestDB(t)
	user := createUser(t, db, "fresh")
	store := NewGormStore(db)
	ctx := context.Background()

	for name, read := range map[string]func() (int64, error){
		"ideas":            func() (int64, error) { return store.IdeaCount(ctx, user.ID) },
		"comments":         func() (int64, error) { return store.CommentCount(ctx, user.ID) },
		"distinct_ideas":   func() (int64, error) { return store.DistinctIdeasCommented(ctx, user.ID) },
		"total_likes":      func() (int64, error) { return store.TotalLikesReceived(ctx, user.ID) },
		"max_single_likes": func() (int64, error) { return store.MaxLikesOnSingleIdea(ctx, user.ID) },
	} {
		value, err := read()
		require.NoError(t, err, name)
		require.Zero(t, value, name)
	}
}
