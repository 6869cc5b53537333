package discord

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bluesky-social/guildmod/automod/engine"
	"github.com/bluesky-social/guildmod/automod/rulestore"

	"github.com/bwmarrin/discordgo"
)

const (
	colorExecuted = 0xED4245
	colorAdvisory = 0xFEE75C
)

// Posts an embed for every audit record to the guild's configured log channel. Guilds without a log channel are skipped.
type LogChannelNotifier struct {
	API   API
	Rules *rulestore.Store
}

var _ engine.Notifier = (*LogChannelNotifier)(nil)

func (n *LogChannelNotifier) SendAudit(ctx context.Context, rec *engine.AuditRecord) error {
	cfg := n.Rules.GuildConfig(rec.GuildID)
	if cfg.LogChannelID == "" {
		return nil
	}
	if _, err := n.API.ChannelMessageSendEmbed(cfg.LogChannelID, AuditEmbed(rec)); err != nil {
		return fmt.Errorf("posting to log channel: %w", err)
	}
	return nil
}

func AuditEmbed(rec *engine.AuditRecord) *discordgo.MessageEmbed {
	color := colorExecuted
	title := "AutoMod: " + rec.RuleName
	if rec.TriggerType == engine.TriggerTypeAIClassifier {
		color = colorAdvisory
		title = "AutoMod: flagged for review"
	}

	fields := []*discordgo.MessageEmbedField{
		{Name: "User", Value: fmt.Sprintf("<@%s> (`%s`)", rec.UserID, rec.UserID), Inline: true},
		{Name: "Trigger", Value: "`" + rec.TriggerType + "`", Inline: true},
	}
	if rec.ChannelID != "" {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Channel", Value: fmt.Sprintf("<#%s>", rec.ChannelID), Inline: true})
	}
	if len(rec.ActionResults) > 0 {
		lines := make([]string, 0, len(rec.ActionResults))
		for _, res := range rec.ActionResults {
			line := fmt.Sprintf("`%s` ok", res.Action)
			if !res.Success {
				line = fmt.Sprintf("`%s` failed: %s", res.Action, res.Error)
			}
			if res.Note != "" {
				line += " (" + res.Note + ")"
			}
			lines = append(lines, line)
		}
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Actions", Value: strings.Join(lines, "\n")})
	}

	return &discordgo.MessageEmbed{
		Title:       title,
		Description: rec.Reason,
		Color:       color,
		Fields:      fields,
		Timestamp:   rec.Timestamp.Format(time.RFC3339),
		Footer:      &discordgo.MessageEmbedFooter{Text: "rule " + rec.RuleID},
	}
}
