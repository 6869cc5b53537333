// Auto-moderation policy engine for chat guilds.
//
// Guild moderators configure rules (a trigger, optional gates and conditions, and an ordered list of actions). Every inbound message or member join is evaluated against the guild's enabled rules in priority order, and the actions of matching rules are executed through an enforcement backend. Rule statistics, cooldowns, join velocity and warning counts are tracked as events flow through.
//
// The sub-packages are:
//
//   - policy: rule, trigger and action types, JSON codec and built-in templates
//   - keyword: tokenization, content sanitization and fuzzy matching
//   - rulestore: rule CRUD, keyword lists, guild config, import/export and persistence
//   - engine: evaluation pipeline, action execution, audit and notifications
//   - classifier: optional AI content screening
//   - discord: discordgo adapters for events, enforcement and log channels
//
// See `cmd/guildmod` for a daemon and rule management CLI built on these packages.
package automod
