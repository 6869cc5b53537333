package automod

import (
	"github.com/bluesky-social/guildmod/automod/countstore"
	"github.com/bluesky-social/guildmod/automod/engine"
	"github.com/bluesky-social/guildmod/automod/policy"
	"github.com/bluesky-social/guildmod/automod/rulestore"
)

type Engine = engine.Engine
type Context = engine.Context
type Result = engine.Result
type RuleMatch = engine.RuleMatch
type ActionResult = engine.ActionResult
type AuditRecord = engine.AuditRecord

type Enforcer = engine.Enforcer
type Platform = engine.Platform
type Notifier = engine.Notifier
type SlackNotifier = engine.SlackNotifier

type Rule = policy.Rule
type RulePatch = policy.RulePatch
type Trigger = policy.Trigger
type Action = policy.Action

type RuleStore = rulestore.Store
type GuildConfig = rulestore.GuildConfig

var (
	EventMessageCreate = engine.EventMessageCreate
	EventMemberJoin    = engine.EventMemberJoin

	PeriodTotal  = countstore.PeriodTotal
	PeriodDay    = countstore.PeriodDay
	PeriodHour   = countstore.PeriodHour
	PeriodMinute = countstore.PeriodMinute
)
