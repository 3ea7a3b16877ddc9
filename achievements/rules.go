package achievements

import "context"

// Trigger identifies the platform action that just happened. The dispatcher
// only evaluates rules registered for the fired trigger.
type Trigger string

const (
	TriggerIdeaCreated    Trigger = "idea_created"
	TriggerCommentCreated Trigger = "comment_created"
	TriggerIdeaLiked      Trigger = "idea_liked"
)

// Metric reads one activity counter for a user.
type Metric func(ctx context.Context, s Store, userID uint) (int64, error)

// Rule binds an achievement code to a trigger, a metric and the threshold at
// which the achievement unlocks. Thresholds are inclusive.
type Rule struct {
	Code      string
	Trigger   Trigger
	Metric    Metric
	Threshold int64
}

// DefaultRules is the built-in rule table. Codes match the seeded catalog.
func DefaultRules() []Rule {
	return []Rule{
		{
			Code:      "first_post",
			Trigger:   TriggerIdeaCreated,
			Threshold: 1,
			Metric: func(ctx context.Context, s Store, userID uint) (int64, error) {
				return s.IdeaCount(ctx, userID)
			},
		},
		{
			Code:      "first_word",
			Trigger:   TriggerCommentCreated,
			Threshold: 1,
			Metric: func(ctx context.Context, s Store, userID uint) (int64, error) {
				return s.CommentCount(ctx, userID)
			},
		},
		{
			Code:      "conversationalist",
			Trigger:   TriggerCommentCreated,
			Threshold: 5,
			Metric: func(ctx context.Context, s Store, userID uint) (int64, error) {
				return s.DistinctIdeasCommented(ctx, userID)
			},
		},
		{
			Code:      "community_favorite",
			Trigger:   TriggerIdeaLiked,
			Threshold: 10,
			Metric: func(ctx context.Context, s Store, userID uint) (int64, error) {
				return s.MaxLikesOnSingleIdea(ctx, userID)
			},
		},
		{
			Code:      "influencer",
			Trigger:   TriggerIdeaLiked,
			Threshold: 20,
			Metric: func(ctx context.Context, s Store, userID uint) (int64, error) {
				return s.TotalLikesReceived(ctx, userID)
			},
		},
	}
}
