package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/bluesky-social/guildmod/automod/classifier"
	"github.com/bluesky-social/guildmod/automod/countstore"
	"github.com/bluesky-social/guildmod/automod/keyword"
	"github.com/bluesky-social/guildmod/automod/policy"
	"github.com/bluesky-social/guildmod/automod/rulestore"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("automod")

var (
	// a Warn with escalation enabled mutes the member once they have this many warnings
	EscalationWarnThreshold = 5
	EscalationMuteDuration  = time.Hour

	// per guild, per day
	QuotaBanDay  = 50
	QuotaKickDay = 100

	NotifyTimeout = 10 * time.Second
)

// runtime for evaluating rules against guild events, and executing their actions.
//
// Rules is required. Every other collaborator is optional: a missing Enforcer or Platform turns the matching actions into failed results, a missing History skips warning conditions and escalation, and so on.
type Engine struct {
	Logger    *slog.Logger
	Rules     *rulestore.Store
	Enforcer  Enforcer
	Platform  Platform
	History   WarningHistory
	Joins     JoinTracker
	Rates     *RateTracker
	Cooldowns *CooldownTracker
	Patterns  *PatternCache
	Audit     AuditSink
	Notifiers []Notifier
	// optional AI screening of messages no rule matched
	Classifier classifier.Classifier
	// action quotas
	Counters countstore.CountStore
	// user ID of the bot account, recorded as the actor of enforcement actions
	BotID string
	Now   func() time.Time

	notifyWG sync.WaitGroup
}

// What happened to one rule which fully matched an event.
type RuleMatch struct {
	RuleID   string
	RuleName string
	Match    Match
	// true if actions were suppressed
	DryRun  bool
	Actions []ActionResult
}

type Result struct {
	Matches []RuleMatch
	// set if the message was screened by the AI classifier
	Verdict *classifier.Verdict
}

func (eng *Engine) now() time.Time {
	if eng.Now != nil {
		return eng.Now()
	}
	return time.Now()
}

func (eng *Engine) ProcessMessage(ctx context.Context, c *Context) (*Result, error) {
	c.Type = EventMessageCreate
	if eng.Rates != nil && c.GuildID != "" {
		eng.Rates.Record(c.GuildID, c.UserID, eng.now())
	}
	return eng.process(ctx, c)
}

// Only JoinPattern rules are evaluated for joins.
func (eng *Engine) ProcessMemberJoin(ctx context.Context, c *Context) (*Result, error) {
	c.Type = EventMemberJoin
	if eng.Joins != nil && c.GuildID != "" {
		if err := eng.Joins.RecordJoin(ctx, c.GuildID, c.UserID); err != nil {
			eng.Logger.Warn("failed to record member join", "guild", c.GuildID, "err", err)
		}
	}
	return eng.process(ctx, c)
}

func (eng *Engine) process(ctx context.Context, c *Context) (res *Result, err error) {
	eventType := string(c.Type)
	// similar to an HTTP server, we want to recover any panics from rule execution
	defer func() {
		if r := recover(); r != nil {
			eng.Logger.Error("automod event execution exception", "err", r, "guild", c.GuildID, "user", c.UserID, "type", eventType)
			eventErrorCount.WithLabelValues(eventType).Inc()
			err = fmt.Errorf("automod event execution exception: %v", r)
		}
	}()

	start := time.Now()
	defer func() {
		eventProcessDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
	}()
	eventProcessCount.WithLabelValues(eventType).Inc()

	ctx, span := tracer.Start(ctx, "automod.process", trace.WithAttributes(
		attribute.String("event", eventType),
		attribute.String("guild", c.GuildID),
	))
	defer span.End()

	if c.GuildID == "" {
		eventErrorCount.WithLabelValues(eventType).Inc()
		return nil, fmt.Errorf("event missing guild ID")
	}
	c.Logger = eng.Logger.With("guild", c.GuildID, "user", c.UserID, "channel", c.ChannelID, "event", eventType)

	res = &Result{}
	cfg := eng.Rules.GuildConfig(c.GuildID)
	if cfg.Disabled {
		c.Logger.Debug("automod disabled for guild")
		return res, nil
	}

	now := eng.now()
	// a snapshot, so concurrent rule edits don't affect this event
	rules := eng.Rules.ListEnabled(c.GuildID)
	for i := range rules {
		rule := &rules[i]
		if c.Type == EventMemberJoin && rule.TriggerType() != policy.TriggerJoinPattern {
			continue
		}
		rm, ok := eng.evaluateRule(ctx, c, rule, now)
		if !ok {
			continue
		}
		res.Matches = append(res.Matches, *rm)
		if !rule.ContinueAfterMatch {
			break
		}
	}
	span.SetAttributes(attribute.Int("matches", len(res.Matches)))

	if len(res.Matches) == 0 && c.Type == EventMessageCreate && cfg.ClassifierEnabled {
		res.Verdict = eng.screen(ctx, c, now)
	}
	return res, nil
}

// Runs the gates, trigger, and conditions of one rule, then records the match and executes actions. Panics are contained to the rule.
func (eng *Engine) evaluateRule(ctx context.Context, c *Context, rule *policy.Rule, now time.Time) (rm *RuleMatch, ok bool) {
	logger := c.Logger.With("rule", rule.ID)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("automod rule execution exception", "err", r)
			ruleErrorCount.WithLabelValues(string(rule.TriggerType())).Inc()
			rm, ok = nil, false
		}
	}()

	if pass, gate := eng.checkGates(c, rule, now); !pass {
		gateRejectCount.WithLabelValues(gate).Inc()
		logger.Debug("rule gated", "gate", gate)
		return nil, false
	}

	m, err := eng.evaluateTrigger(ctx, c, rule, now)
	if err != nil {
		ruleErrorCount.WithLabelValues(string(rule.TriggerType())).Inc()
		logger.Warn("rule trigger evaluation failed", "err", err)
		return nil, false
	}
	if !m.Matched {
		return nil, false
	}

	if pass, cond := eng.checkConditions(ctx, c, rule, now); !pass {
		conditionRejectCount.WithLabelValues(cond).Inc()
		logger.Debug("rule match rejected by condition", "condition", cond)
		return nil, false
	}

	execute := !rule.DryRun && !c.DryRunOnly
	eng.Rules.RecordMatch(ctx, rule.ID, execute, now)
	ruleMatchCount.WithLabelValues(string(rule.TriggerType()), strconv.FormatBool(execute)).Inc()

	rm = &RuleMatch{
		RuleID:   rule.ID,
		RuleName: rule.Name,
		Match:    m,
		DryRun:   !execute,
	}
	if execute {
		rm.Actions = eng.executeActions(ctx, c, rule, m)
		// second chance for deletion, eg after a transient failure
		if policy.HasAction(rule.Actions, policy.ActionDelete) && c.Message != nil && !c.Message.Deleted && c.Message.Deletable {
			rm.Actions = append(rm.Actions, eng.deleteMessage(ctx, c, eng.actionRequest(c, rule, m).Reason))
		}
	}

	// canonical log line
	logger.Info("automod rule matched",
		"ruleName", rule.Name,
		"trigger", rule.TriggerType(),
		"reason", m.Reason,
		"dryRun", !execute,
		"actions", len(rm.Actions),
	)

	eng.emitAudit(ctx, &AuditRecord{
		RuleID:        rule.ID,
		RuleName:      rule.Name,
		TriggerType:   string(rule.TriggerType()),
		UserID:        c.UserID,
		GuildID:       c.GuildID,
		ChannelID:     c.ChannelID,
		Reason:        m.Reason,
		TriggerData:   m.Data,
		ActionResults: rm.Actions,
		DryRun:        !execute,
		Timestamp:     now,
	})
	return rm, true
}

// Advisory AI screening. Violations are audited and notified; nothing is enforced.
func (eng *Engine) screen(ctx context.Context, c *Context, now time.Time) *classifier.Verdict {
	if eng.Classifier == nil {
		return nil
	}
	content := keyword.Sanitize(c.MessageContent)
	if content == "" {
		return nil
	}

	ctx, span := tracer.Start(ctx, "automod.classify")
	defer span.End()

	v, err := eng.Classifier.Analyze(ctx, content, classifier.Subject{
		GuildID:   c.GuildID,
		ChannelID: c.ChannelID,
		UserID:    c.UserID,
	})
	if err != nil {
		classifierVerdictCount.WithLabelValues("error").Inc()
		c.Logger.Warn("AI classifier failed", "err", err)
		return nil
	}
	if !v.IsViolation {
		classifierVerdictCount.WithLabelValues("clean").Inc()
		return v
	}
	classifierVerdictCount.WithLabelValues("violation").Inc()
	c.Logger.Info("AI classifier flagged message", "type", v.ViolationType, "confidence", v.Confidence, "severity", v.Severity)

	eng.emitAudit(ctx, &AuditRecord{
		RuleName:    "AI content screening",
		TriggerType: TriggerTypeAIClassifier,
		UserID:      c.UserID,
		GuildID:     c.GuildID,
		ChannelID:   c.ChannelID,
		Reason:      v.Reasoning,
		TriggerData: map[string]any{
			"violationType":   v.ViolationType,
			"confidence":      v.Confidence,
			"severity":        v.Severity,
			"suggestedAction": v.SuggestedAction,
		},
		ActionResults: []ActionResult{},
		Timestamp:     now,
	})
	return v
}

// Drops expired cooldown and rate tracking state. Meant to be called periodically.
func (eng *Engine) Sweep() {
	now := eng.now()
	var cooldowns, rates int
	if eng.Cooldowns != nil {
		cooldowns = eng.Cooldowns.Prune(now)
	}
	if eng.Rates != nil {
		rates = eng.Rates.Prune(now)
	}
	if cooldowns > 0 || rates > 0 {
		eng.Logger.Debug("swept automod state", "cooldowns", cooldowns, "rates", rates)
	}
}

// Blocks until in-flight notifications are done.
func (eng *Engine) Wait() {
	eng.notifyWG.Wait()
}
