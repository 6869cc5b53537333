package rulestore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bluesky-social/guildmod/automod/policy"
)

// Everything the store persists, as one unit. Repositories always load and save the complete snapshot.
type Snapshot struct {
	Rules        []policy.Rule          `json:"rules"`
	KeywordLists KeywordLists           `json:"keywordLists"`
	GuildConfigs map[string]GuildConfig `json:"guildConfigs"`
	Feedback     []Feedback             `json:"feedbackData"`

	// rules which failed to decode, and were left out of Rules
	skipped []string
}

// Rules which fail to decode (for example, an unknown trigger or action type) are dropped and reported by Skipped. The rest of the snapshot still loads.
func (s *Snapshot) UnmarshalJSON(b []byte) error {
	type plain Snapshot
	var aux struct {
		plain
		Rules []json.RawMessage `json:"rules"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*s = Snapshot(aux.plain)
	s.Rules, s.skipped = decodeRules(aux.Rules)
	return nil
}

// Descriptions of persisted rules which could not be decoded.
func (s *Snapshot) Skipped() []string {
	return s.skipped
}

func decodeRules(raws []json.RawMessage) ([]policy.Rule, []string) {
	rules := make([]policy.Rule, 0, len(raws))
	var errs []string
	for i, raw := range raws {
		var r policy.Rule
		if err := json.Unmarshal(raw, &r); err != nil {
			errs = append(errs, fmt.Sprintf("rule %d: %v", i, err))
			continue
		}
		rules = append(rules, r)
	}
	return rules, errs
}

type KeywordLists struct {
	Whitelist []string `json:"whitelist"`
	Blacklist []string `json:"blacklist"`
}

// Per-guild engine settings.
type GuildConfig struct {
	GuildID string `json:"guildId"`
	// skip all rule evaluation for this guild
	Disabled bool `json:"disabled,omitempty"`
	// channel which receives a message for every executed rule
	LogChannelID string `json:"logChannelId,omitempty"`
	// opt in to screening unmatched messages with the AI classifier
	ClassifierEnabled bool `json:"classifierEnabled,omitempty"`
}

// A false-positive report against a rule.
type Feedback struct {
	ID        string    `json:"id"`
	RuleID    string    `json:"ruleId"`
	GuildID   string    `json:"guildId"`
	UserID    string    `json:"userId,omitempty"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Load/save contract for store state. Durability is eventual: the store keeps serving from memory when Save fails.
//
// Load returns an empty snapshot, not an error, if nothing has been saved yet.
type Repository interface {
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, snap *Snapshot) error
}

func emptySnapshot() *Snapshot {
	return &Snapshot{
		GuildConfigs: make(map[string]GuildConfig),
	}
}

func (s *Snapshot) normalize() {
	if s.GuildConfigs == nil {
		s.GuildConfigs = make(map[string]GuildConfig)
	}
}
