package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bluesky-social/guildmod/automod/countstore"
	"github.com/bluesky-social/guildmod/automod/policy"
)

// Outcome of one executed action. Failures are recorded here, never returned as errors.
type ActionResult struct {
	Action  policy.ActionType `json:"action"`
	Success bool              `json:"success"`
	CaseID  string            `json:"caseId,omitempty"`
	Error   string            `json:"error,omitempty"`
	// eg, "escalation" for a mute caused by warning escalation
	Note string `json:"note,omitempty"`
}

var (
	errNoEnforcer   = errors.New("no enforcement backend configured")
	errNoPlatform   = errors.New("no platform backend configured")
	errGuildOwner   = errors.New("refusing to change roles of the guild owner")
	errNoMessage    = errors.New("event has no message")
	errNotDeletable = errors.New("message not deletable")
)

func (eng *Engine) actionRequest(c *Context, rule *policy.Rule, m Match) ActionRequest {
	reason := "AutoMod: " + rule.Name
	if m.Reason != "" {
		reason += " (" + m.Reason + ")"
	}
	req := ActionRequest{
		GuildID:   c.GuildID,
		UserID:    c.UserID,
		ActorID:   eng.BotID,
		ChannelID: c.ChannelID,
		Reason:    reason,
	}
	if c.Message != nil {
		req.MessageID = c.Message.ID
	}
	return req
}

// Runs every action in order. A failing action does not stop the ones after it.
func (eng *Engine) executeActions(ctx context.Context, c *Context, rule *policy.Rule, m Match) []ActionResult {
	req := eng.actionRequest(c, rule, m)
	results := make([]ActionResult, 0, len(rule.Actions))
	for _, a := range rule.Actions {
		results = append(results, eng.executeAction(ctx, c, a, req)...)
	}
	for _, res := range results {
		outcome := "success"
		if !res.Success {
			outcome = "failure"
		}
		actionCount.WithLabelValues(string(res.Action), outcome).Inc()
	}
	return results
}

func failed(t policy.ActionType, err error) ActionResult {
	return ActionResult{Action: t, Error: err.Error()}
}

func enforced(t policy.ActionType, r *EnforcementResult, err error) ActionResult {
	if err != nil {
		return failed(t, err)
	}
	res := ActionResult{Action: t, Success: true}
	if r != nil {
		res.CaseID = r.CaseID
	}
	return res
}

func (eng *Engine) executeAction(ctx context.Context, c *Context, a policy.Action, req ActionRequest) []ActionResult {
	logger := c.Logger.With("action", a.ActionType())
	switch v := a.(type) {
	case policy.WarnAction:
		if eng.Enforcer == nil {
			return []ActionResult{failed(policy.ActionWarn, errNoEnforcer)}
		}
		r, err := eng.Enforcer.Warn(ctx, req)
		res := enforced(policy.ActionWarn, r, err)
		out := []ActionResult{res}
		if res.Success && v.Escalate {
			if esc, ok := eng.escalate(ctx, c, req, logger); ok {
				out = append(out, esc)
			}
		}
		return out
	case policy.MuteAction:
		if eng.Enforcer == nil {
			return []ActionResult{failed(policy.ActionMute, errNoEnforcer)}
		}
		req.Duration = v.Duration.Std()
		r, err := eng.Enforcer.Mute(ctx, req)
		return []ActionResult{enforced(policy.ActionMute, r, err)}
	case policy.KickAction:
		if eng.Enforcer == nil {
			return []ActionResult{failed(policy.ActionKick, errNoEnforcer)}
		}
		if err := eng.circuitBreak(ctx, "kick", c.GuildID, QuotaKickDay); err != nil {
			return []ActionResult{failed(policy.ActionKick, err)}
		}
		r, err := eng.Enforcer.Kick(ctx, req)
		res := enforced(policy.ActionKick, r, err)
		if res.Success {
			eng.countQuota(ctx, "kick", c.GuildID)
		}
		return []ActionResult{res}
	case policy.BanAction:
		if eng.Enforcer == nil {
			return []ActionResult{failed(policy.ActionBan, errNoEnforcer)}
		}
		if err := eng.circuitBreak(ctx, "ban", c.GuildID, QuotaBanDay); err != nil {
			return []ActionResult{failed(policy.ActionBan, err)}
		}
		req.Duration = v.Duration.Std()
		r, err := eng.Enforcer.Ban(ctx, req)
		res := enforced(policy.ActionBan, r, err)
		if res.Success {
			eng.countQuota(ctx, "ban", c.GuildID)
		}
		return []ActionResult{res}
	case policy.TimeoutAction:
		if eng.Enforcer == nil {
			return []ActionResult{failed(policy.ActionTimeout, errNoEnforcer)}
		}
		req.Duration = v.Duration.Std()
		r, err := eng.Enforcer.Timeout(ctx, req)
		return []ActionResult{enforced(policy.ActionTimeout, r, err)}
	case policy.DeleteAction:
		return []ActionResult{eng.deleteMessage(ctx, c, req.Reason)}
	case policy.RoleAddAction:
		return []ActionResult{eng.changeRole(ctx, c, policy.ActionRoleAdd, v.RoleID, req.Reason)}
	case policy.RoleRemoveAction:
		return []ActionResult{eng.changeRole(ctx, c, policy.ActionRoleRemove, v.RoleID, req.Reason)}
	case policy.DMUserAction:
		if eng.Platform == nil {
			return []ActionResult{failed(policy.ActionDMUser, errNoPlatform)}
		}
		if err := eng.Platform.SendDM(ctx, c.UserID, v.Message); err != nil {
			// closed DMs are common, and not worth more than a debug line
			logger.Debug("could not DM user", "err", err)
			return []ActionResult{failed(policy.ActionDMUser, err)}
		}
		return []ActionResult{{Action: policy.ActionDMUser, Success: true}}
	default:
		return []ActionResult{{Action: a.ActionType(), Error: fmt.Sprintf("unhandled action type: %T", a)}}
	}
}

// Mutes the member when their warning count has reached EscalationWarnThreshold.
func (eng *Engine) escalate(ctx context.Context, c *Context, req ActionRequest, logger *slog.Logger) (ActionResult, bool) {
	if eng.History == nil {
		return ActionResult{}, false
	}
	n, err := eng.History.GetWarningCount(ctx, c.GuildID, c.UserID)
	if err != nil {
		logger.Warn("failed to fetch warning count for escalation", "err", err)
		return ActionResult{}, false
	}
	if n < EscalationWarnThreshold {
		return ActionResult{}, false
	}
	logger.Info("escalating warnings to mute", "warnings", n)
	req.Duration = EscalationMuteDuration
	req.Reason = fmt.Sprintf("AutoMod escalation: %d warnings", n)
	r, err := eng.Enforcer.Mute(ctx, req)
	res := enforced(policy.ActionMute, r, err)
	res.Note = "escalation"
	return res, true
}

func (eng *Engine) deleteMessage(ctx context.Context, c *Context, reason string) ActionResult {
	if c.Message == nil {
		return failed(policy.ActionDelete, errNoMessage)
	}
	if c.Message.Deleted {
		return ActionResult{Action: policy.ActionDelete, Success: true, Note: "already deleted"}
	}
	if !c.Message.Deletable {
		return failed(policy.ActionDelete, errNotDeletable)
	}
	if eng.Platform == nil {
		return failed(policy.ActionDelete, errNoPlatform)
	}
	channelID := c.Message.ChannelID
	if channelID == "" {
		channelID = c.ChannelID
	}
	if err := eng.Platform.DeleteMessage(ctx, c.GuildID, channelID, c.Message.ID, reason); err != nil {
		return failed(policy.ActionDelete, err)
	}
	c.Message.Deleted = true
	return ActionResult{Action: policy.ActionDelete, Success: true}
}

func (eng *Engine) changeRole(ctx context.Context, c *Context, t policy.ActionType, roleID, reason string) ActionResult {
	if eng.Platform == nil {
		return failed(t, errNoPlatform)
	}
	owner, err := eng.Platform.GuildOwnerID(ctx, c.GuildID)
	if err != nil {
		return failed(t, fmt.Errorf("looking up guild owner: %w", err))
	}
	if owner == c.UserID {
		return failed(t, errGuildOwner)
	}
	if t == policy.ActionRoleAdd {
		err = eng.Platform.AddRole(ctx, c.GuildID, c.UserID, roleID, reason)
	} else {
		err = eng.Platform.RemoveRole(ctx, c.GuildID, c.UserID, roleID, reason)
	}
	if err != nil {
		return failed(t, err)
	}
	return ActionResult{Action: t, Success: true}
}

// Returns an error if the guild already used up its daily quota for this kind of action.
func (eng *Engine) circuitBreak(ctx context.Context, kind, guildID string, quota int) error {
	if eng.Counters == nil || quota <= 0 {
		return nil
	}
	n, err := eng.Counters.GetCount(ctx, counterQuota, kind+"/"+guildID, countstore.PeriodDay)
	if err != nil {
		return fmt.Errorf("checking %s quota: %w", kind, err)
	}
	if n >= quota {
		eng.Logger.Warn("automod circuit breaker triggered", "kind", kind, "guild", guildID, "quota", quota)
		circuitBreakCount.WithLabelValues(kind).Inc()
		return fmt.Errorf("daily %s quota exceeded", kind)
	}
	return nil
}

func (eng *Engine) countQuota(ctx context.Context, kind, guildID string) {
	if eng.Counters == nil {
		return
	}
	if err := eng.Counters.Increment(ctx, counterQuota, kind+"/"+guildID); err != nil {
		eng.Logger.Warn("failed to count action quota", "kind", kind, "err", err)
	}
}
