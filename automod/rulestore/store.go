package rulestore

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/bluesky-social/guildmod/automod/policy"
	"github.com/bluesky-social/guildmod/automod/setstore"

	"github.com/google/uuid"
)

var (
	ErrNotFound          = errors.New("rule not found")
	ErrTriggerTypeChange = policy.ErrTriggerTypeChange
	ErrUnknownTemplate   = errors.New("unknown rule template")
	ErrInvalidRule       = errors.New("invalid rule")
)

// In-memory rule set, guild configs, keyword lists and feedback, with write-back to a Repository.
//
// In-memory state is authoritative. Every mutation schedules a save of the complete snapshot; failed saves are logged and retried on the next mutation or Flush. Rules handed out by the store are copies.
type Store struct {
	Logger *slog.Logger
	Repo   Repository
	Lists  setstore.SetStore
	// If zero, every mutation saves synchronously. Otherwise saves are debounced: the first mutation starts a timer, and one save covers every mutation until it fires.
	SaveDelay time.Duration
	Now       func() time.Time

	mu       sync.RWMutex
	rules    map[string]*policy.Rule
	configs  map[string]GuildConfig
	feedback []Feedback

	saveMu sync.Mutex
	timer  *time.Timer
	closed bool
}

func NewStore(logger *slog.Logger, repo Repository, lists setstore.SetStore) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if lists == nil {
		lists = setstore.NewMemSetStore()
	}
	return &Store{
		Logger:  logger.With("component", "rulestore"),
		Repo:    repo,
		Lists:   lists,
		Now:     time.Now,
		rules:   make(map[string]*policy.Rule),
		configs: make(map[string]GuildConfig),
	}
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Replaces in-memory state with the repository's current snapshot.
func (s *Store) Load(ctx context.Context) error {
	if s.Repo == nil {
		return nil
	}
	snap, err := s.Repo.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading rule snapshot: %w", err)
	}
	for _, msg := range snap.Skipped() {
		s.Logger.Warn("skipping persisted rule which failed to decode", "err", msg)
	}

	rules := make(map[string]*policy.Rule, len(snap.Rules))
	for i := range snap.Rules {
		r := snap.Rules[i]
		if r.ID == "" {
			s.Logger.Warn("skipping persisted rule without ID", "name", r.Name, "guild", r.GuildID)
			continue
		}
		rules[r.ID] = &r
	}
	configs := make(map[string]GuildConfig, len(snap.GuildConfigs))
	for id, cfg := range snap.GuildConfigs {
		cfg.GuildID = id
		configs[id] = cfg
	}

	if err := s.replaceList(ctx, ListWhitelist, snap.KeywordLists.Whitelist); err != nil {
		return err
	}
	if err := s.replaceList(ctx, ListBlacklist, snap.KeywordLists.Blacklist); err != nil {
		return err
	}

	s.mu.Lock()
	s.rules = rules
	s.configs = configs
	s.feedback = snap.Feedback
	s.mu.Unlock()

	s.Logger.Info("loaded rules", "rules", len(rules), "guilds", len(configs))
	return nil
}

func (s *Store) Create(ctx context.Context, r policy.Rule) (policy.Rule, error) {
	if err := r.Validate(); err != nil {
		return policy.Rule{}, fmt.Errorf("%w: %w", ErrInvalidRule, err)
	}
	now := s.now()
	r = r.Clone()
	r.ID = uuid.NewString()
	r.Stats = policy.Stats{}
	r.CreatedAt = now
	r.UpdatedAt = now

	s.mu.Lock()
	s.rules[r.ID] = &r
	out := r.Clone()
	s.mu.Unlock()

	s.persist(ctx)
	return out, nil
}

func (s *Store) Get(id string) (policy.Rule, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rules[id]
	if !ok {
		return policy.Rule{}, false
	}
	return r.Clone(), true
}

// Applies a partial update. Fails with ErrNotFound, ErrTriggerTypeChange, or ErrInvalidRule; on failure the stored rule is unchanged.
func (s *Store) Update(ctx context.Context, id string, patch policy.RulePatch) (policy.Rule, error) {
	s.mu.Lock()
	cur, ok := s.rules[id]
	if !ok {
		s.mu.Unlock()
		return policy.Rule{}, ErrNotFound
	}
	next := cur.Clone()
	if err := patch.Apply(&next); err != nil {
		s.mu.Unlock()
		return policy.Rule{}, err
	}
	if err := next.Validate(); err != nil {
		s.mu.Unlock()
		return policy.Rule{}, fmt.Errorf("%w: %w", ErrInvalidRule, err)
	}
	next.UpdatedAt = s.now()
	s.rules[id] = &next
	out := next.Clone()
	s.mu.Unlock()

	s.persist(ctx)
	return out, nil
}

func (s *Store) Toggle(ctx context.Context, id string, enabled bool) (policy.Rule, error) {
	return s.Update(ctx, id, policy.RulePatch{Enabled: &enabled})
}

// Returns false if there was no such rule.
func (s *Store) Delete(ctx context.Context, id string) bool {
	s.mu.Lock()
	_, ok := s.rules[id]
	delete(s.rules, id)
	s.mu.Unlock()

	if ok {
		s.persist(ctx)
	}
	return ok
}

// Rules for one guild (or all guilds, if guildID is empty), highest priority first. Ties keep creation order.
func (s *Store) ListAll(guildID string) []policy.Rule {
	return s.list(guildID, false)
}

// Like ListAll, but only enabled rules. The result is a snapshot, safe to iterate while rules change.
func (s *Store) ListEnabled(guildID string) []policy.Rule {
	return s.list(guildID, true)
}

func (s *Store) list(guildID string, enabledOnly bool) []policy.Rule {
	s.mu.RLock()
	out := make([]policy.Rule, 0, len(s.rules))
	for _, r := range s.rules {
		if guildID != "" && r.GuildID != guildID {
			continue
		}
		if enabledOnly && !r.Enabled {
			continue
		}
		out = append(out, r.Clone())
	}
	s.mu.RUnlock()
	sortRules(out)
	return out
}

func sortRules(rules []policy.Rule) {
	slices.SortFunc(rules, func(a, b policy.Rule) int {
		if c := cmp.Compare(b.Priority, a.Priority); c != 0 {
			return c
		}
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// Creates a rule for guildID from a built-in template, with overrides (if any) applied over the template defaults.
func (s *Store) InstantiateFromTemplate(ctx context.Context, name, guildID string, overrides *policy.RulePatch) (policy.Rule, error) {
	r, ok := policy.FromTemplate(name)
	if !ok {
		return policy.Rule{}, fmt.Errorf("%w: %s", ErrUnknownTemplate, name)
	}
	if overrides != nil {
		if err := overrides.Apply(&r); err != nil {
			return policy.Rule{}, err
		}
	}
	r.GuildID = guildID
	return s.Create(ctx, r)
}

// Updates match statistics after the engine matched a rule. If executed, the rule's actions ran (not a dry run).
func (s *Store) RecordMatch(ctx context.Context, id string, executed bool, at time.Time) {
	s.mu.Lock()
	r, ok := s.rules[id]
	if ok {
		r.Stats.Triggers++
		if executed {
			r.Stats.ActionsExecuted++
			t := at
			r.Stats.LastTriggered = &t
		}
	}
	s.mu.Unlock()

	if ok {
		s.persist(ctx)
	}
}

// Records a moderator report that a rule fired incorrectly.
func (s *Store) ReportFalsePositive(ctx context.Context, ruleID, userID, note string) (Feedback, error) {
	s.mu.Lock()
	r, ok := s.rules[ruleID]
	if !ok {
		s.mu.Unlock()
		return Feedback{}, ErrNotFound
	}
	r.Stats.FalsePositives++
	fb := Feedback{
		ID:        uuid.NewString(),
		RuleID:    ruleID,
		GuildID:   r.GuildID,
		UserID:    userID,
		Note:      note,
		CreatedAt: s.now(),
	}
	s.feedback = append(s.feedback, fb)
	s.mu.Unlock()

	s.persist(ctx)
	return fb, nil
}

// Feedback entries for one guild, or all guilds if guildID is empty.
func (s *Store) Feedback(guildID string) []Feedback {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Feedback
	for _, fb := range s.feedback {
		if guildID == "" || fb.GuildID == guildID {
			out = append(out, fb)
		}
	}
	return out
}

// Returns the guild's config, or a default (enabled, no log channel, no classifier) if none was set.
func (s *Store) GuildConfig(guildID string) GuildConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.configs[guildID]
	if !ok {
		return GuildConfig{GuildID: guildID}
	}
	return cfg
}

func (s *Store) SetGuildConfig(ctx context.Context, cfg GuildConfig) error {
	if cfg.GuildID == "" {
		return fmt.Errorf("guild config missing guild ID")
	}
	s.mu.Lock()
	s.configs[cfg.GuildID] = cfg
	s.mu.Unlock()

	s.persist(ctx)
	return nil
}

func (s *Store) snapshot(ctx context.Context) (*Snapshot, error) {
	lists, err := s.KeywordLists(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	snap := &Snapshot{
		Rules:        make([]policy.Rule, 0, len(s.rules)),
		KeywordLists: lists,
		GuildConfigs: make(map[string]GuildConfig, len(s.configs)),
		Feedback:     slices.Clone(s.feedback),
	}
	for _, r := range s.rules {
		snap.Rules = append(snap.Rules, r.Clone())
	}
	for id, cfg := range s.configs {
		snap.GuildConfigs[id] = cfg
	}
	s.mu.RUnlock()

	slices.SortFunc(snap.Rules, func(a, b policy.Rule) int {
		if c := cmp.Compare(a.GuildID, b.GuildID); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return snap, nil
}
