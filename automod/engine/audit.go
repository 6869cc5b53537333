package engine

import (
	"context"
	"log/slog"
	"time"
)

// Trigger type recorded for advisory AI classifier verdicts.
const TriggerTypeAIClassifier = "ai-classifier"

// Structured record of a matched rule and what was done about it.
type AuditRecord struct {
	RuleID        string         `json:"ruleId,omitempty"`
	RuleName      string         `json:"ruleName"`
	TriggerType   string         `json:"triggerType"`
	UserID        string         `json:"userId"`
	GuildID       string         `json:"guildId"`
	ChannelID     string         `json:"channelId,omitempty"`
	Reason        string         `json:"reason,omitempty"`
	TriggerData   map[string]any `json:"triggerData,omitempty"`
	ActionResults []ActionResult `json:"actionResults"`
	DryRun        bool           `json:"dryRun,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
}

type AuditSink interface {
	Record(ctx context.Context, rec *AuditRecord) error
}

// Writes audit records as structured log lines.
type LogAuditSink struct {
	Logger *slog.Logger
}

func (s *LogAuditSink) Record(ctx context.Context, rec *AuditRecord) error {
	failures := 0
	for _, res := range rec.ActionResults {
		if !res.Success {
			failures++
		}
	}
	s.Logger.Info("automod audit",
		"rule", rec.RuleID,
		"ruleName", rec.RuleName,
		"trigger", rec.TriggerType,
		"guild", rec.GuildID,
		"user", rec.UserID,
		"channel", rec.ChannelID,
		"reason", rec.Reason,
		"data", rec.TriggerData,
		"actions", len(rec.ActionResults),
		"failedActions", failures,
		"dryRun", rec.DryRun,
	)
	return nil
}

// Hands the record to the audit sink, then (unless it is a dry run) to every notifier in the background.
func (eng *Engine) emitAudit(ctx context.Context, rec *AuditRecord) {
	if eng.Audit != nil {
		if err := eng.Audit.Record(ctx, rec); err != nil {
			eng.Logger.Warn("failed to record audit entry", "rule", rec.RuleID, "err", err)
		}
	}
	if rec.DryRun {
		return
	}
	for _, n := range eng.Notifiers {
		eng.notifyWG.Add(1)
		go eng.sendNotification(n, rec)
	}
}

func (eng *Engine) sendNotification(n Notifier, rec *AuditRecord) {
	defer eng.notifyWG.Done()
	defer func() {
		if r := recover(); r != nil {
			eng.Logger.Error("automod notifier exception", "err", r, "rule", rec.RuleID)
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), NotifyTimeout)
	defer cancel()
	if err := n.SendAudit(ctx, rec); err != nil {
		notifyErrorCount.Inc()
		eng.Logger.Warn("failed to send automod notification", "rule", rec.RuleID, "err", err)
	}
}
