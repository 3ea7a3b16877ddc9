package achievements

import (
	"context"

	"go.uber.org/zap"
)

// Unlocked describes an achievement granted during a dispatch.
type Unlocked struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Points int    `json:"points"`
}

// Dispatcher evaluates the rule table after a qualifying platform action. It
// is the single entry point content handlers call; no handler grants
// achievements directly.
type Dispatcher struct {
	store   Store
	granter *Granter
	rules   map[Trigger][]Rule
	log     *zap.SugaredLogger
}

// NewDispatcher indexes the rules by trigger. The logger may be nil.
func NewDispatcher(store Store, rules []Rule, log *zap.SugaredLogger) *Dispatcher {
	byTrigger := make(map[Trigger][]Rule)
	for _, r := range rules {
		byTrigger[r.Trigger] = append(byTrigger[r.Trigger], r)
	}
	return &Dispatcher{
		store:   store,
		granter: NewGranter(store, log),
		rules:   byTrigger,
		log:     log,
	}
}

// Dispatch evaluates every rule registered for the trigger against the user's
// current metrics and grants whatever newly crossed its threshold. It never
// fails the caller's action: a metric read or grant error is logged and the
// rule simply does not fire this time; the next qualifying action re-evaluates
// against the full metric value, so missed unlocks self-heal.
func (d *Dispatcher) Dispatch(ctx context.Context, trigger Trigger, userID uint) []Unlocked {
	var unlocked []Unlocked
	for _, rule := range d.rules[trigger] {
		value, err := rule.Metric(ctx, d.store, userID)
		if err != nil {
			if d.log != nil {
				d.log.Warnf("metric read failed code=%s user=%d err=%v", rule.Code, userID, err)
			}
			continue
		}
		if value < rule.Threshold {
			continue
		}
		fresh, err := d.granter.GrantOnce(ctx, userID, rule.Code)
		if err != nil {
			if d.log != nil {
				d.log.Warnf("grant failed code=%s user=%d err=%v", rule.Code, userID, err)
			}
			continue
		}
		if !fresh {
			continue
		}
		ach, err := d.store.AchievementByCode(ctx, rule.Code)
		if err != nil {
			// Row vanished between grant and read; report the code alone.
			unlocked = append(unlocked, Unlocked{Code: rule.Code})
			continue
		}
		unlocked = append(unlocked, Unlocked{Code: ach.Code, Name: ach.Name, Points: ach.Points})
	}
	return unlocked
}

// Granter exposes the dispatcher's granter for manual admin grants.
func (d *Dispatcher) Granter() *Granter {
	return d.granter
}
