package engine

import (
	"slices"
	"time"

	"github.com/bluesky-social/guildmod/automod/policy"

	"github.com/puzpuzpuz/xsync/v3"
)

type cooldownEntry struct {
	At      time.Time
	Expires time.Time
}

// Last-opportunity timestamps per cooldown key. Safe for concurrent use: the check and the stamp for a key happen atomically.
type CooldownTracker struct {
	entries *xsync.MapOf[string, cooldownEntry]
}

func NewCooldownTracker() *CooldownTracker {
	return &CooldownTracker{
		entries: xsync.NewMapOf[string, cooldownEntry](),
	}
}

// Scope key for a rule's cooldown. Keys always include the rule ID.
func CooldownKey(rule *policy.Rule, c *Context) string {
	cd := rule.Cooldown
	switch {
	case cd.PerGuild && cd.PerUser:
		return rule.ID + ":" + c.GuildID + ":" + c.UserID
	case cd.PerGuild:
		return rule.ID + ":" + c.GuildID
	default:
		return rule.ID + ":" + c.UserID
	}
}

// Returns false if the key was stamped less than window ago. Otherwise stamps the key with now and returns true.
func (ct *CooldownTracker) Allow(key string, window time.Duration, now time.Time) bool {
	allowed := false
	ct.entries.Compute(key, func(prev cooldownEntry, loaded bool) (cooldownEntry, bool) {
		if loaded && now.Sub(prev.At) < window {
			return prev, false
		}
		allowed = true
		return cooldownEntry{At: now, Expires: now.Add(window)}, false
	})
	return allowed
}

// Drops expired keys. Returns the number of keys removed.
func (ct *CooldownTracker) Prune(now time.Time) int {
	removed := 0
	ct.entries.Range(func(key string, e cooldownEntry) bool {
		if !now.Before(e.Expires) {
			ct.entries.Compute(key, func(cur cooldownEntry, loaded bool) (cooldownEntry, bool) {
				del := loaded && !now.Before(cur.Expires)
				if del {
					removed++
				}
				return cur, del
			})
		}
		return true
	})
	return removed
}

func (ct *CooldownTracker) Len() int {
	return ct.entries.Size()
}

const (
	gateCooldown  = "cooldown"
	gateSchedule  = "schedule"
	gateException = "exception"
)

// Runs cooldown, schedule, and exception gates, in that order. On rejection, returns the name of the gate.
//
// The cooldown stamp is taken as soon as the cooldown gate passes, before later gates or the trigger run.
func (eng *Engine) checkGates(c *Context, rule *policy.Rule, now time.Time) (bool, string) {
	if rule.Cooldown.Enabled && rule.Cooldown.Duration > 0 && eng.Cooldowns != nil {
		if !eng.Cooldowns.Allow(CooldownKey(rule, c), rule.Cooldown.Duration.Std(), now) {
			return false, gateCooldown
		}
	}

	if rule.Schedule.Enabled {
		w, err := rule.Schedule.Window()
		if err != nil {
			c.Logger.Warn("invalid rule schedule", "rule", rule.ID, "err", err)
			return false, gateSchedule
		}
		if !w.Contains(now) {
			return false, gateSchedule
		}
	}

	ex := rule.Exceptions
	if slices.Contains(ex.Users, c.UserID) || slices.Contains(ex.Channels, c.ChannelID) || (len(ex.Roles) > 0 && c.hasRole(ex.Roles)) {
		return false, gateException
	}
	return true, ""
}
