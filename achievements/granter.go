package achievements

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ideahub/ideahub/models"
)

// Granter performs idempotent unlocks. Calling GrantOnce any number of times
// for the same (user, code) pair unlocks at most one row.
type Granter struct {
	store Store
	log   *zap.SugaredLogger
}

// NewGranter builds a Granter. The logger may be nil.
func NewGranter(store Store, log *zap.SugaredLogger) *Granter {
	return &Granter{store: store, log: log}
}

// GrantOnce unlocks the coded achievement for the user. It returns true only
// when this call created the unlock; an existing unlock returns (false, nil).
// A fresh unlock also produces an achievement notification; notification
// failures are logged, never surfaced, so the unlock itself stands.
func (g *Granter) GrantOnce(ctx context.Context, userID uint, code string) (bool, error) {
	ach, err := g.store.AchievementByCode(ctx, code)
	if err != nil {
		return false, fmt.Errorf("resolve achievement %q: %w", code, err)
	}

	fresh, err := g.store.InsertUnlock(ctx, userID, ach.ID, time.Now())
	if err != nil {
		return false, fmt.Errorf("insert unlock %q for user %d: %w", code, userID, err)
	}
	if !fresh {
		return false, nil
	}

	n := &models.Notification{
		UserID:  userID,
		ActorID: userID,
		Type:    models.NotificationAchievement,
		Content: fmt.Sprintf("Achievement unlocked: %s", ach.Name),
	}
	if err := g.store.CreateNotification(ctx, n); err != nil && g.log != nil {
		g.log.Warnf("achievement notification failed user=%d code=%s err=%v", userID, code, err)
	}
	return true, nil
}
