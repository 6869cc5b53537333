package engine

import (
	"context"
	"time"

	"github.com/bluesky-social/guildmod/automod/policy"
)

const (
	conditionAccountAge    = "min_account_age"
	conditionMaxWarnings   = "max_warnings"
	conditionRequiredRoles = "required_roles"
)

// Applied after a trigger matched. Each configured condition can independently reject the match; returns the name of the failing condition.
//
// Account age is only checked when the event carries a join timestamp. A warning count lookup failure rejects the match.
func (eng *Engine) checkConditions(ctx context.Context, c *Context, rule *policy.Rule, now time.Time) (bool, string) {
	cond := rule.Conditions

	if cond.MinAccountAge > 0 && c.JoinTimestamp != nil {
		if now.Sub(*c.JoinTimestamp) < cond.MinAccountAge.Std() {
			return false, conditionAccountAge
		}
	}

	if cond.MaxWarnings != nil && eng.History != nil {
		n, err := eng.History.GetWarningCount(ctx, c.GuildID, c.UserID)
		if err != nil {
			c.Logger.Warn("failed to fetch warning count", "rule", rule.ID, "err", err)
			return false, conditionMaxWarnings
		}
		if n >= *cond.MaxWarnings {
			return false, conditionMaxWarnings
		}
	}

	if len(cond.RequiredRoles) > 0 && !c.hasRole(cond.RequiredRoles) {
		return false, conditionRequiredRoles
	}
	return true, ""
}
