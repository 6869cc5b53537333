package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bluesky-social/guildmod/automod/helpers"
	"github.com/bluesky-social/guildmod/automod/keyword"
	"github.com/bluesky-social/guildmod/automod/policy"
	"github.com/bluesky-social/guildmod/automod/rulestore"
)

// Outcome of a trigger evaluator.
type Match struct {
	Matched bool
	Reason  string
	Data    map[string]any
}

var noMatch = Match{}

func (eng *Engine) evaluateTrigger(ctx context.Context, c *Context, rule *policy.Rule, now time.Time) (Match, error) {
	switch t := rule.Trigger.(type) {
	case policy.MessageContentTrigger:
		return matchMessageContent(c, t), nil
	case policy.JoinPatternTrigger:
		return eng.matchJoinPattern(ctx, c, t, now), nil
	case policy.MessageRateTrigger:
		return eng.matchMessageRate(c, t, now), nil
	case policy.KeywordMatchTrigger:
		return eng.matchKeyword(ctx, c, t), nil
	case policy.RegexMatchTrigger:
		return eng.matchRegex(c, t), nil
	case nil:
		return noMatch, fmt.Errorf("rule has no trigger")
	default:
		return noMatch, fmt.Errorf("unhandled trigger type: %T", t)
	}
}

func matchMessageContent(c *Context, t policy.MessageContentTrigger) Match {
	content := c.MessageContent
	if content == "" {
		return noMatch
	}
	if !t.CaseSensitive {
		content = keyword.Fold(content)
	}
	for _, p := range t.Patterns {
		if p == "" {
			continue
		}
		needle := p
		if !t.CaseSensitive {
			needle = keyword.Fold(p)
		}
		if strings.Contains(content, needle) {
			return Match{
				Matched: true,
				Reason:  "Message contains blocked content",
				Data:    map[string]any{"matchedPattern": p},
			}
		}
	}
	return noMatch
}

func (eng *Engine) matchJoinPattern(ctx context.Context, c *Context, t policy.JoinPatternTrigger, now time.Time) Match {
	if c.JoinTimestamp == nil {
		return noMatch
	}
	age := now.Sub(*c.JoinTimestamp)
	if t.MaxAccountAge > 0 && age > t.MaxAccountAge.Std() {
		return noMatch
	}
	if t.MinAccountAge > 0 && age < t.MinAccountAge.Std() {
		return Match{
			Matched: true,
			Reason:  "Account too new",
			Data: map[string]any{
				"accountAge":    age.Milliseconds(),
				"minAccountAge": t.MinAccountAge.Std().Milliseconds(),
			},
		}
	}
	if t.CheckJoinVelocity && t.JoinThreshold > 0 && eng.Joins != nil {
		n, err := eng.Joins.GetRecentJoinCount(ctx, c.GuildID)
		if err != nil {
			c.Logger.Warn("failed to fetch recent join count", "err", err)
			return noMatch
		}
		if n >= t.JoinThreshold {
			return Match{
				Matched: true,
				Reason:  "Join velocity exceeded",
				Data: map[string]any{
					"recentJoins":   n,
					"joinThreshold": t.JoinThreshold,
				},
			}
		}
	}
	return noMatch
}

func (eng *Engine) matchMessageRate(c *Context, t policy.MessageRateTrigger, now time.Time) Match {
	var count int
	switch {
	case c.MessageCount != nil:
		count = *c.MessageCount
	case eng.Rates != nil:
		count = eng.Rates.Count(c.GuildID, c.UserID, t.TimeWindow.Std(), now)
	default:
		return noMatch
	}
	if t.Threshold > 0 && count >= t.Threshold {
		return Match{
			Matched: true,
			Reason:  "Message rate exceeded",
			Data: map[string]any{
				"messageCount": count,
				"threshold":    t.Threshold,
				"timeWindow":   t.TimeWindow.Std().Milliseconds(),
			},
		}
	}
	return noMatch
}

// Rule keywords plus the global blacklist are fuzzy-matched against sanitized content, after whitelisted words are dropped.
func (eng *Engine) matchKeyword(ctx context.Context, c *Context, t policy.KeywordMatchTrigger) Match {
	content := keyword.Sanitize(c.MessageContent)
	if content == "" {
		return noMatch
	}

	keywords := t.Keywords
	if eng.Rules != nil {
		wl, err := eng.Rules.Keywords(ctx, rulestore.ListWhitelist)
		if err != nil {
			c.Logger.Warn("failed to read keyword whitelist", "err", err)
		}
		content = keyword.RemoveWords(content, wl)
		bl, err := eng.Rules.Keywords(ctx, rulestore.ListBlacklist)
		if err != nil {
			c.Logger.Warn("failed to read keyword blacklist", "err", err)
		}
		keywords = helpers.MergeStrings(keywords, bl)
	}
	if strings.TrimSpace(content) == "" {
		return noMatch
	}

	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if keyword.FuzzyMatch(content, kw, t.FuzzySensitivity) {
			return Match{
				Matched: true,
				Reason:  "Keyword match",
				Data:    map[string]any{"matchedKeyword": kw},
			}
		}
	}
	return noMatch
}

func (eng *Engine) matchRegex(c *Context, t policy.RegexMatchTrigger) Match {
	content := c.MessageContent
	if content == "" {
		return noMatch
	}
	for _, p := range t.Patterns {
		re, err := eng.Patterns.Get(p, t.RegexFlags)
		if err != nil {
			c.Logger.Warn("skipping invalid regex pattern", "pattern", p, "flags", t.RegexFlags, "err", err)
			continue
		}
		loc := re.FindStringIndex(content)
		if loc == nil {
			continue
		}
		return Match{
			Matched: true,
			Reason:  "Regex match",
			Data: map[string]any{
				"matchedPattern": p,
				"match":          content[loc[0]:loc[1]],
			},
		}
	}
	return noMatch
}
