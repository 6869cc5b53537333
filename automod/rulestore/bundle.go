package rulestore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bluesky-social/guildmod/automod/policy"

	"github.com/google/uuid"
)

var BundleVersion = 1

// Portable export of one guild's rules, plus the global keyword lists and guild config.
type Bundle struct {
	Version      int           `json:"version"`
	ExportedAt   time.Time     `json:"exportedAt"`
	Rules        []policy.Rule `json:"rules"`
	KeywordLists KeywordLists  `json:"keywordLists"`
	GuildConfigs []GuildConfig `json:"guildConfigs,omitempty"`

	// rules which could not be decoded by ParseBundle
	parseErrors []string
}

type ImportResult struct {
	ImportedCount int      `json:"importedCount"`
	Errors        []string `json:"errors,omitempty"`
}

// Decodes a bundle, tolerating individual rules which fail to decode (for example, unknown trigger types). Those are reported in the ImportResult when the bundle is imported.
func ParseBundle(data []byte) (*Bundle, error) {
	var aux struct {
		Version      int               `json:"version"`
		ExportedAt   time.Time         `json:"exportedAt"`
		Rules        []json.RawMessage `json:"rules"`
		KeywordLists KeywordLists      `json:"keywordLists"`
		GuildConfigs []GuildConfig     `json:"guildConfigs"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return nil, fmt.Errorf("parsing rule bundle: %w", err)
	}
	b := &Bundle{
		Version:      aux.Version,
		ExportedAt:   aux.ExportedAt,
		KeywordLists: aux.KeywordLists,
		GuildConfigs: aux.GuildConfigs,
	}
	b.Rules, b.parseErrors = decodeRules(aux.Rules)
	return b, nil
}

// Exports rules for guildID (all guilds if empty), highest priority first.
func (s *Store) ExportAll(ctx context.Context, guildID string) (*Bundle, error) {
	lists, err := s.KeywordLists(ctx)
	if err != nil {
		return nil, err
	}
	b := &Bundle{
		Version:      BundleVersion,
		ExportedAt:   s.now().UTC(),
		Rules:        s.ListAll(guildID),
		KeywordLists: lists,
	}
	s.mu.RLock()
	for id, cfg := range s.configs {
		if guildID == "" || id == guildID {
			b.GuildConfigs = append(b.GuildConfigs, cfg)
		}
	}
	s.mu.RUnlock()
	return b, nil
}

// Imports bundle rules into guildID, assigning fresh IDs and zeroed stats.
//
// With overwrite, all of the guild's existing rules are deleted first and the keyword lists and guild config are replaced. Without it, rules whose name already exists in the guild are skipped and reported, keywords are merged, and an existing guild config is kept.
func (s *Store) ImportAll(ctx context.Context, b *Bundle, guildID string, overwrite bool) ImportResult {
	var res ImportResult
	res.Errors = append(res.Errors, b.parseErrors...)
	if guildID == "" {
		res.Errors = append(res.Errors, "missing guild ID")
		return res
	}
	now := s.now()

	s.mu.Lock()
	names := make(map[string]bool)
	for id, r := range s.rules {
		if r.GuildID != guildID {
			continue
		}
		if overwrite {
			delete(s.rules, id)
		} else {
			names[r.Name] = true
		}
	}
	for _, in := range b.Rules {
		r := in.Clone()
		r.GuildID = guildID
		if err := r.Validate(); err != nil {
			res.Errors = append(res.Errors, err.Error())
			continue
		}
		if names[r.Name] {
			res.Errors = append(res.Errors, fmt.Sprintf("rule %q already exists in guild", r.Name))
			continue
		}
		names[r.Name] = true
		r.ID = uuid.NewString()
		r.Stats = policy.Stats{}
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
		r.UpdatedAt = now
		s.rules[r.ID] = &r
		res.ImportedCount++
	}
	if cfg, ok := pickGuildConfig(b.GuildConfigs, guildID); ok {
		if _, exists := s.configs[guildID]; overwrite || !exists {
			cfg.GuildID = guildID
			s.configs[guildID] = cfg
		}
	}
	s.mu.Unlock()

	if err := s.importKeywords(ctx, b.KeywordLists, overwrite); err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("keyword lists: %v", err))
	}

	s.persist(ctx)
	s.Logger.Info("imported rules", "guild", guildID, "imported", res.ImportedCount, "errors", len(res.Errors), "overwrite", overwrite)
	return res
}

// prefers the config which was exported for the same guild
func pickGuildConfig(cfgs []GuildConfig, guildID string) (GuildConfig, bool) {
	for _, cfg := range cfgs {
		if cfg.GuildID == guildID {
			return cfg, true
		}
	}
	if len(cfgs) > 0 {
		return cfgs[0], true
	}
	return GuildConfig{}, false
}
