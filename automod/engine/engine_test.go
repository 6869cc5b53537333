package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bluesky-social/guildmod/automod/classifier"
	"github.com/bluesky-social/guildmod/automod/policy"
	"github.com/bluesky-social/guildmod/automod/rulestore"

	"github.com/stretchr/testify/assert"
)

func createRule(t *testing.T, eng *Engine, r policy.Rule) policy.Rule {
	if r.GuildID == "" {
		r.GuildID = "g1"
	}
	if r.Name == "" {
		r.Name = "test rule"
	}
	out, err := eng.Rules.Create(context.Background(), r)
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func messageEvent(userID, content string) *Context {
	return &Context{
		GuildID:        "g1",
		ChannelID:      "c1",
		UserID:         userID,
		MessageContent: content,
		Message:        &Message{ID: "m1", ChannelID: "c1", Deletable: true},
	}
}

func intPtr(v int) *int {
	return &v
}

func TestEngineInviteLinkDeleteAndTimeout(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, backend := EngineTestFixture()

	rule := createRule(t, eng, policy.Rule{
		Name:    "invite links",
		Enabled: true,
		Trigger: policy.RegexMatchTrigger{Patterns: []string{`discord\.gg/\w+`}, RegexFlags: "i"},
		Actions: []policy.Action{policy.DeleteAction{}, policy.TimeoutAction{Duration: policy.Duration(5 * time.Minute)}},
	})

	evt := messageEvent("u1", "come join Discord.gg/abc123 now")
	res, err := eng.ProcessMessage(ctx, evt)
	assert.NoError(err)
	assert.Len(res.Matches, 1)

	m := res.Matches[0]
	assert.Equal(rule.ID, m.RuleID)
	assert.False(m.DryRun)
	assert.Equal("Discord.gg/abc123", m.Match.Data["match"])
	assert.Equal(`discord\.gg/\w+`, m.Match.Data["matchedPattern"])
	assert.Len(m.Actions, 2)
	for _, a := range m.Actions {
		assert.True(a.Success, a.Action)
	}
	assert.True(evt.Message.Deleted)
	assert.Equal([]policy.ActionType{policy.ActionDelete, policy.ActionTimeout}, backend.Actions())
	assert.Equal(5*time.Minute, backend.Calls[1].Request.Duration)
	assert.Equal("bot", backend.Calls[1].Request.ActorID)

	stored, ok := eng.Rules.Get(rule.ID)
	assert.True(ok)
	assert.Equal(int64(1), stored.Stats.Triggers)
	assert.Equal(int64(1), stored.Stats.ActionsExecuted)
	if assert.NotNil(stored.Stats.LastTriggered) {
		assert.True(FixtureTime.Equal(*stored.Stats.LastTriggered))
	}

	eng.Wait()
	audit := eng.Audit.(*MockAuditSink).All()
	assert.Len(audit, 1)
	assert.Equal(string(policy.TriggerRegexMatch), audit[0].TriggerType)
	assert.Equal("u1", audit[0].UserID)
	assert.Len(eng.Notifiers[0].(*MockNotifier).All(), 1)

	// no match
	res, err = eng.ProcessMessage(ctx, messageEvent("u1", "nothing to see here"))
	assert.NoError(err)
	assert.Empty(res.Matches)
}

func TestEngineDeleteRetry(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, backend := EngineTestFixture()

	createRule(t, eng, policy.Rule{
		Enabled: true,
		Trigger: policy.MessageContentTrigger{Patterns: []string{"spam"}},
		Actions: []policy.Action{policy.DeleteAction{}},
	})

	backend.Fail[policy.ActionDelete] = errors.New("transient")
	evt := messageEvent("u1", "SPAM")
	res, err := eng.ProcessMessage(ctx, evt)
	assert.NoError(err)
	assert.Len(res.Matches, 1)
	// first attempt plus one retry
	assert.Len(res.Matches[0].Actions, 2)
	assert.False(res.Matches[0].Actions[0].Success)
	assert.Equal("transient", res.Matches[0].Actions[0].Error)
	assert.False(evt.Message.Deleted)

	// message already gone
	delete(backend.Fail, policy.ActionDelete)
	evt = messageEvent("u2", "spam")
	evt.Message.Deleted = true
	res, err = eng.ProcessMessage(ctx, evt)
	assert.NoError(err)
	assert.Len(res.Matches[0].Actions, 1)
	assert.True(res.Matches[0].Actions[0].Success)
	assert.Equal("already deleted", res.Matches[0].Actions[0].Note)
	assert.Empty(backend.Actions())
}

func TestEngineDisabledRule(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, backend := EngineTestFixture()

	rule := createRule(t, eng, policy.Rule{
		Enabled: false,
		Trigger: policy.MessageContentTrigger{Patterns: []string{"spam"}},
		Actions: []policy.Action{policy.WarnAction{}},
	})

	res, err := eng.ProcessMessage(ctx, messageEvent("u1", "spam"))
	assert.NoError(err)
	assert.Empty(res.Matches)
	assert.Empty(backend.Actions())

	_, err = eng.Rules.Toggle(ctx, rule.ID, true)
	assert.NoError(err)
	res, err = eng.ProcessMessage(ctx, messageEvent("u1", "spam"))
	assert.NoError(err)
	assert.Len(res.Matches, 1)
	assert.Equal([]policy.ActionType{policy.ActionWarn}, backend.Actions())
}

func TestEngineGuildDisabled(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, backend := EngineTestFixture()

	createRule(t, eng, policy.Rule{
		Enabled: true,
		Trigger: policy.MessageContentTrigger{Patterns: []string{"spam"}},
		Actions: []policy.Action{policy.WarnAction{}},
	})
	assert.NoError(eng.Rules.SetGuildConfig(ctx, rulestore.GuildConfig{GuildID: "g1", Disabled: true}))

	res, err := eng.ProcessMessage(ctx, messageEvent("u1", "spam"))
	assert.NoError(err)
	assert.Empty(res.Matches)
	assert.Empty(backend.Actions())

	_, err = eng.ProcessMessage(ctx, &Context{UserID: "u1", MessageContent: "spam"})
	assert.Error(err)
}

func TestEngineCooldown(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, _ := EngineTestFixture()
	now := FixtureTime
	eng.Now = func() time.Time { return now }

	createRule(t, eng, policy.Rule{
		Enabled:  true,
		Trigger:  policy.MessageContentTrigger{Patterns: []string{"spam"}},
		Actions:  []policy.Action{policy.WarnAction{}},
		Cooldown: policy.Cooldown{Enabled: true, Duration: policy.Duration(time.Minute), PerUser: true},
	})

	res, err := eng.ProcessMessage(ctx, messageEvent("u1", "spam"))
	assert.NoError(err)
	assert.Len(res.Matches, 1)

	res, err = eng.ProcessMessage(ctx, messageEvent("u1", "spam"))
	assert.NoError(err)
	assert.Empty(res.Matches)

	// other users have their own cooldown
	res, err = eng.ProcessMessage(ctx, messageEvent("u2", "spam"))
	assert.NoError(err)
	assert.Len(res.Matches, 1)

	now = now.Add(2 * time.Minute)
	res, err = eng.ProcessMessage(ctx, messageEvent("u1", "spam"))
	assert.NoError(err)
	assert.Len(res.Matches, 1)

	now = now.Add(time.Hour)
	eng.Sweep()
	assert.Equal(0, eng.Cooldowns.Len())
}

func TestEngineKeywordFuzzy(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, _ := EngineTestFixture()

	createRule(t, eng, policy.Rule{
		Enabled: true,
		Trigger: policy.KeywordMatchTrigger{Keywords: []string{"spam"}, FuzzySensitivity: 0.8},
		Actions: []policy.Action{policy.WarnAction{}},
	})

	res, err := eng.ProcessMessage(ctx, messageEvent("u1", "spaam"))
	assert.NoError(err)
	assert.Len(res.Matches, 1)
	assert.Equal("spam", res.Matches[0].Match.Data["matchedKeyword"])

	res, err = eng.ProcessMessage(ctx, messageEvent("u1", "hello there friend"))
	assert.NoError(err)
	assert.Empty(res.Matches)

	// quoted text does not count
	res, err = eng.ProcessMessage(ctx, messageEvent("u1", "he said `spam`"))
	assert.NoError(err)
	assert.Empty(res.Matches)
}

func TestEngineKeywordLists(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, _ := EngineTestFixture()

	createRule(t, eng, policy.Rule{
		Enabled: true,
		Trigger: policy.KeywordMatchTrigger{Keywords: []string{"ass"}},
		Actions: []policy.Action{policy.WarnAction{}},
	})

	res, err := eng.ProcessMessage(ctx, messageEvent("u1", "class"))
	assert.NoError(err)
	assert.Len(res.Matches, 1)

	assert.NoError(eng.Rules.AddKeywords(ctx, rulestore.ListWhitelist, "class"))
	res, err = eng.ProcessMessage(ctx, messageEvent("u1", "class"))
	assert.NoError(err)
	assert.Empty(res.Matches)

	assert.NoError(eng.Rules.AddKeywords(ctx, rulestore.ListBlacklist, "phish"))
	res, err = eng.ProcessMessage(ctx, messageEvent("u1", "class phish link"))
	assert.NoError(err)
	assert.Len(res.Matches, 1)
	assert.Equal("phish", res.Matches[0].Match.Data["matchedKeyword"])
}

func TestEngineKeywordWhitelistKeepsPunctuation(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, _ := EngineTestFixture()

	createRule(t, eng, policy.Rule{
		Enabled: true,
		Trigger: policy.KeywordMatchTrigger{Keywords: []string{"discord.gg"}, FuzzySensitivity: 0.8},
		Actions: []policy.Action{policy.DeleteAction{}},
	})

	res, err := eng.ProcessMessage(ctx, messageEvent("u1", "join discord.gg/abc now"))
	assert.NoError(err)
	assert.Len(res.Matches, 1)

	// an unrelated whitelist entry must not change how other content is matched
	assert.NoError(eng.Rules.AddKeywords(ctx, rulestore.ListWhitelist, "hello"))
	res, err = eng.ProcessMessage(ctx, messageEvent("u2", "hello, join discord.gg/abc now"))
	assert.NoError(err)
	if assert.Len(res.Matches, 1) {
		assert.Equal("discord.gg", res.Matches[0].Match.Data["matchedKeyword"])
	}
}

func TestEnginePriorityOrder(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, backend := EngineTestFixture()

	low := createRule(t, eng, policy.Rule{
		Name:     "low",
		Enabled:  true,
		Priority: 5,
		Trigger:  policy.MessageContentTrigger{Patterns: []string{"bad"}},
		Actions:  []policy.Action{policy.DeleteAction{}},
	})
	high := createRule(t, eng, policy.Rule{
		Name:     "high",
		Enabled:  true,
		Priority: 10,
		Trigger:  policy.MessageContentTrigger{Patterns: []string{"bad"}},
		Actions:  []policy.Action{policy.WarnAction{}},
	})

	res, err := eng.ProcessMessage(ctx, messageEvent("u1", "bad words"))
	assert.NoError(err)
	assert.Len(res.Matches, 1)
	assert.Equal(high.ID, res.Matches[0].RuleID)
	assert.Equal([]policy.ActionType{policy.ActionWarn}, backend.Actions())

	stored, _ := eng.Rules.Get(low.ID)
	assert.Equal(int64(0), stored.Stats.Triggers)

	cont := true
	_, err = eng.Rules.Update(ctx, high.ID, policy.RulePatch{ContinueAfterMatch: &cont})
	assert.NoError(err)
	res, err = eng.ProcessMessage(ctx, messageEvent("u1", "bad words"))
	assert.NoError(err)
	assert.Len(res.Matches, 2)
	assert.Equal(high.ID, res.Matches[0].RuleID)
	assert.Equal(low.ID, res.Matches[1].RuleID)
}

func TestEngineJoinPattern(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, backend := EngineTestFixture()

	// would match anything if it were evaluated for joins
	createRule(t, eng, policy.Rule{
		Name:     "flood",
		Enabled:  true,
		Priority: 100,
		Trigger:  policy.MessageRateTrigger{Threshold: 1, TimeWindow: policy.Duration(time.Minute)},
		Actions:  []policy.Action{policy.DeleteAction{}},
	})
	join := createRule(t, eng, policy.Rule{
		Name:    "new accounts",
		Enabled: true,
		Trigger: policy.JoinPatternTrigger{MinAccountAge: policy.Duration(7 * 24 * time.Hour)},
		Actions: []policy.Action{policy.KickAction{}},
	})

	created := FixtureTime.Add(-24 * time.Hour)
	res, err := eng.ProcessMemberJoin(ctx, &Context{GuildID: "g1", UserID: "u1", JoinTimestamp: &created, MessageCount: intPtr(10)})
	assert.NoError(err)
	assert.Len(res.Matches, 1)
	assert.Equal(join.ID, res.Matches[0].RuleID)
	assert.Equal("Account too new", res.Matches[0].Match.Reason)
	assert.Equal([]policy.ActionType{policy.ActionKick}, backend.Actions())

	created = FixtureTime.Add(-30 * 24 * time.Hour)
	res, err = eng.ProcessMemberJoin(ctx, &Context{GuildID: "g1", UserID: "u2", JoinTimestamp: &created})
	assert.NoError(err)
	assert.Empty(res.Matches)

	// no timestamp, no match
	res, err = eng.ProcessMemberJoin(ctx, &Context{GuildID: "g1", UserID: "u3"})
	assert.NoError(err)
	assert.Empty(res.Matches)
}

func TestEngineJoinMaxAccountAge(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, _ := EngineTestFixture()

	createRule(t, eng, policy.Rule{
		Enabled: true,
		Trigger: policy.JoinPatternTrigger{
			MinAccountAge: policy.Duration(7 * 24 * time.Hour),
			MaxAccountAge: policy.Duration(time.Hour),
		},
		Actions: []policy.Action{policy.KickAction{}},
	})

	created := FixtureTime.Add(-24 * time.Hour)
	res, err := eng.ProcessMemberJoin(ctx, &Context{GuildID: "g1", UserID: "u1", JoinTimestamp: &created})
	assert.NoError(err)
	assert.Empty(res.Matches)

	created = FixtureTime.Add(-time.Minute)
	res, err = eng.ProcessMemberJoin(ctx, &Context{GuildID: "g1", UserID: "u1", JoinTimestamp: &created})
	assert.NoError(err)
	assert.Len(res.Matches, 1)
}

type staticJoins struct {
	n int
}

func (j *staticJoins) RecordJoin(ctx context.Context, guildID, userID string) error {
	return nil
}

func (j *staticJoins) GetRecentJoinCount(ctx context.Context, guildID string) (int, error) {
	return j.n, nil
}

func TestEngineJoinVelocity(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, _ := EngineTestFixture()
	joins := &staticJoins{n: 2}
	eng.Joins = joins

	createRule(t, eng, policy.Rule{
		Enabled: true,
		Trigger: policy.JoinPatternTrigger{CheckJoinVelocity: true, JoinThreshold: 3},
		Actions: []policy.Action{policy.WarnAction{}},
	})

	created := FixtureTime.Add(-365 * 24 * time.Hour)
	evt := func() *Context { return &Context{GuildID: "g1", UserID: "u1", JoinTimestamp: &created} }

	res, err := eng.ProcessMemberJoin(ctx, evt())
	assert.NoError(err)
	assert.Empty(res.Matches)

	joins.n = 3
	res, err = eng.ProcessMemberJoin(ctx, evt())
	assert.NoError(err)
	assert.Len(res.Matches, 1)
	assert.Equal("Join velocity exceeded", res.Matches[0].Match.Reason)
	assert.Equal(3, res.Matches[0].Match.Data["recentJoins"])
}

func TestEngineMessageRate(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, _ := EngineTestFixture()

	createRule(t, eng, policy.Rule{
		Enabled: true,
		Trigger: policy.MessageRateTrigger{Threshold: 3, TimeWindow: policy.Duration(10 * time.Second)},
		Actions: []policy.Action{policy.TimeoutAction{Duration: policy.Duration(time.Minute)}},
	})

	// caller-supplied count
	evt := messageEvent("u1", "hi")
	evt.MessageCount = intPtr(2)
	res, err := eng.ProcessMessage(ctx, evt)
	assert.NoError(err)
	assert.Empty(res.Matches)

	evt = messageEvent("u1", "hi")
	evt.MessageCount = intPtr(3)
	res, err = eng.ProcessMessage(ctx, evt)
	assert.NoError(err)
	assert.Len(res.Matches, 1)

	// tracked count, for a user with no prior messages
	for i := 0; i < 2; i++ {
		res, err = eng.ProcessMessage(ctx, messageEvent("u2", "hi"))
		assert.NoError(err)
		assert.Empty(res.Matches)
	}
	res, err = eng.ProcessMessage(ctx, messageEvent("u2", "hi"))
	assert.NoError(err)
	assert.Len(res.Matches, 1)
	assert.Equal(3, res.Matches[0].Match.Data["messageCount"])
}

func TestEngineDryRun(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, backend := EngineTestFixture()

	rule := createRule(t, eng, policy.Rule{
		Enabled: true,
		DryRun:  true,
		Trigger: policy.MessageContentTrigger{Patterns: []string{"spam"}},
		Actions: []policy.Action{policy.BanAction{}},
	})

	res, err := eng.ProcessMessage(ctx, messageEvent("u1", "spam"))
	assert.NoError(err)
	assert.Len(res.Matches, 1)
	assert.True(res.Matches[0].DryRun)
	assert.Empty(res.Matches[0].Actions)
	assert.Empty(backend.Actions())

	stored, _ := eng.Rules.Get(rule.ID)
	assert.Equal(int64(1), stored.Stats.Triggers)
	assert.Equal(int64(0), stored.Stats.ActionsExecuted)
	assert.Nil(stored.Stats.LastTriggered)

	eng.Wait()
	audit := eng.Audit.(*MockAuditSink).All()
	assert.Len(audit, 1)
	assert.True(audit[0].DryRun)
	assert.Empty(eng.Notifiers[0].(*MockNotifier).All())

	// per-event dry run, on a live rule
	dry := false
	_, err = eng.Rules.Update(ctx, rule.ID, policy.RulePatch{DryRun: &dry})
	assert.NoError(err)
	evt := messageEvent("u1", "spam")
	evt.DryRunOnly = true
	res, err = eng.ProcessMessage(ctx, evt)
	assert.NoError(err)
	assert.Len(res.Matches, 1)
	assert.True(res.Matches[0].DryRun)
	assert.Empty(backend.Actions())
}

func TestEngineSchedule(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, _ := EngineTestFixture()

	night := createRule(t, eng, policy.Rule{
		Name:               "night",
		Enabled:            true,
		ContinueAfterMatch: true,
		Trigger:            policy.MessageContentTrigger{Patterns: []string{"spam"}},
		Actions:            []policy.Action{policy.WarnAction{}},
		Schedule:           policy.Schedule{Enabled: true, StartTime: "22:00", EndTime: "06:00"},
	})
	workday := createRule(t, eng, policy.Rule{
		Name:               "workday",
		Enabled:            true,
		ContinueAfterMatch: true,
		Trigger:            policy.MessageContentTrigger{Patterns: []string{"spam"}},
		Actions:            []policy.Action{policy.WarnAction{}},
		// Monday
		Schedule: policy.Schedule{Enabled: true, StartTime: "09:00", EndTime: "17:00", DaysOfWeek: []int{1}},
	})

	res, err := eng.ProcessMessage(ctx, messageEvent("u1", "spam"))
	assert.NoError(err)
	assert.Len(res.Matches, 1)
	assert.Equal(workday.ID, res.Matches[0].RuleID)

	eng.Now = func() time.Time { return FixtureTime.Add(11 * time.Hour) }
	res, err = eng.ProcessMessage(ctx, messageEvent("u1", "spam"))
	assert.NoError(err)
	assert.Len(res.Matches, 1)
	assert.Equal(night.ID, res.Matches[0].RuleID)
}

func TestEngineExceptions(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, _ := EngineTestFixture()

	createRule(t, eng, policy.Rule{
		Enabled: true,
		Trigger: policy.MessageContentTrigger{Patterns: []string{"spam"}},
		Actions: []policy.Action{policy.WarnAction{}},
		Exceptions: policy.Exceptions{
			Users:    []string{"trusted"},
			Channels: []string{"c-memes"},
			Roles:    []string{"mod"},
		},
	})

	res, err := eng.ProcessMessage(ctx, messageEvent("trusted", "spam"))
	assert.NoError(err)
	assert.Empty(res.Matches)

	evt := messageEvent("u1", "spam")
	evt.ChannelID = "c-memes"
	res, err = eng.ProcessMessage(ctx, evt)
	assert.NoError(err)
	assert.Empty(res.Matches)

	evt = messageEvent("u1", "spam")
	evt.Member = &Member{UserID: "u1", RoleIDs: []string{"member", "mod"}}
	res, err = eng.ProcessMessage(ctx, evt)
	assert.NoError(err)
	assert.Empty(res.Matches)

	evt = messageEvent("u1", "spam")
	evt.Member = &Member{UserID: "u1", RoleIDs: []string{"member"}}
	res, err = eng.ProcessMessage(ctx, evt)
	assert.NoError(err)
	assert.Len(res.Matches, 1)
}

func TestEngineConditions(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, backend := EngineTestFixture()

	rule := createRule(t, eng, policy.Rule{
		Enabled: true,
		Trigger: policy.MessageContentTrigger{Patterns: []string{"spam"}},
		Actions: []policy.Action{policy.WarnAction{}},
		Conditions: policy.Conditions{
			MinAccountAge: policy.Duration(24 * time.Hour),
			MaxWarnings:   intPtr(2),
			RequiredRoles: []string{"member"},
		},
	})
	member := &Member{UserID: "u1", RoleIDs: []string{"member"}}

	res, err := eng.ProcessMessage(ctx, messageEvent("u1", "spam"))
	assert.NoError(err)
	assert.Empty(res.Matches, "missing required role")

	young := FixtureTime.Add(-time.Hour)
	evt := messageEvent("u1", "spam")
	evt.Member = member
	evt.JoinTimestamp = &young
	res, err = eng.ProcessMessage(ctx, evt)
	assert.NoError(err)
	assert.Empty(res.Matches, "account too young")

	backend.Warnings["g1:u1"] = 2
	evt = messageEvent("u1", "spam")
	evt.Member = member
	res, err = eng.ProcessMessage(ctx, evt)
	assert.NoError(err)
	assert.Empty(res.Matches, "too many warnings")

	backend.Warnings["g1:u1"] = 1
	res, err = eng.ProcessMessage(ctx, evt)
	assert.NoError(err)
	assert.Len(res.Matches, 1)

	// rejected matches don't count
	stored, _ := eng.Rules.Get(rule.ID)
	assert.Equal(int64(1), stored.Stats.Triggers)
}

func TestEngineWarnEscalation(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, backend := EngineTestFixture()

	createRule(t, eng, policy.Rule{
		Enabled: true,
		Trigger: policy.MessageContentTrigger{Patterns: []string{"spam"}},
		Actions: []policy.Action{policy.WarnAction{Escalate: true}},
	})

	backend.Warnings["g1:u1"] = 3
	res, err := eng.ProcessMessage(ctx, messageEvent("u1", "spam"))
	assert.NoError(err)
	assert.Len(res.Matches[0].Actions, 1)

	// fifth warning
	res, err = eng.ProcessMessage(ctx, messageEvent("u1", "spam"))
	assert.NoError(err)
	actions := res.Matches[0].Actions
	assert.Len(actions, 2)
	assert.Equal(policy.ActionMute, actions[1].Action)
	assert.True(actions[1].Success)
	assert.Equal("escalation", actions[1].Note)

	assert.Equal([]policy.ActionType{policy.ActionWarn, policy.ActionWarn, policy.ActionMute}, backend.Actions())
	assert.Equal(EscalationMuteDuration, backend.Calls[2].Request.Duration)
}

func TestEngineActionFailures(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, backend := EngineTestFixture()

	createRule(t, eng, policy.Rule{
		Enabled: true,
		Trigger: policy.MessageContentTrigger{Patterns: []string{"spam"}},
		Actions: []policy.Action{
			policy.DMUserAction{Message: "please stop"},
			policy.RoleAddAction{RoleID: "muted"},
			policy.DeleteAction{},
		},
	})

	backend.Fail[policy.ActionDMUser] = errors.New("cannot send messages to this user")
	backend.OwnerID = "u1"
	res, err := eng.ProcessMessage(ctx, messageEvent("u1", "spam"))
	assert.NoError(err)
	actions := res.Matches[0].Actions
	assert.Len(actions, 3)
	assert.False(actions[0].Success)
	assert.Equal("cannot send messages to this user", actions[0].Error)
	assert.False(actions[1].Success)
	assert.Equal(errGuildOwner.Error(), actions[1].Error)
	assert.True(actions[2].Success)
	assert.Equal([]policy.ActionType{policy.ActionDelete}, backend.Actions())

	eng.Wait()
	audit := eng.Audit.(*MockAuditSink).All()
	assert.Len(audit, 1)
	assert.Len(audit[0].ActionResults, 3)

	// non-owner gets the role
	res, err = eng.ProcessMessage(ctx, messageEvent("u2", "spam"))
	assert.NoError(err)
	assert.True(res.Matches[0].Actions[1].Success)
	assert.Equal("muted", backend.Calls[len(backend.Calls)-2].RoleID)
}

func TestEngineKickQuota(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, backend := EngineTestFixture()

	prev := QuotaKickDay
	QuotaKickDay = 1
	defer func() { QuotaKickDay = prev }()

	createRule(t, eng, policy.Rule{
		Enabled: true,
		Trigger: policy.MessageContentTrigger{Patterns: []string{"spam"}},
		Actions: []policy.Action{policy.KickAction{}},
	})

	res, err := eng.ProcessMessage(ctx, messageEvent("u1", "spam"))
	assert.NoError(err)
	assert.True(res.Matches[0].Actions[0].Success)

	res, err = eng.ProcessMessage(ctx, messageEvent("u2", "spam"))
	assert.NoError(err)
	assert.False(res.Matches[0].Actions[0].Success)
	assert.Equal("daily kick quota exceeded", res.Matches[0].Actions[0].Error)
	assert.Equal([]policy.ActionType{policy.ActionKick}, backend.Actions())
}

func TestEngineInvalidRegex(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, _ := EngineTestFixture()

	createRule(t, eng, policy.Rule{
		Enabled: true,
		Trigger: policy.RegexMatchTrigger{Patterns: []string{"([", `free\s+nitro`}},
		Actions: []policy.Action{policy.WarnAction{}},
	})

	res, err := eng.ProcessMessage(ctx, messageEvent("u1", "get FREE   nitro"))
	assert.NoError(err)
	assert.Len(res.Matches, 1)
	assert.Equal(`free\s+nitro`, res.Matches[0].Match.Data["matchedPattern"])
}

func TestEnginePanicRecovery(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, backend := EngineTestFixture()

	createRule(t, eng, policy.Rule{
		Name:     "explodes",
		Enabled:  true,
		Priority: 10,
		Trigger:  policy.MessageContentTrigger{Patterns: []string{"spam"}},
		Actions:  []policy.Action{policy.WarnAction{}},
	})
	fallback := createRule(t, eng, policy.Rule{
		Name:     "fallback",
		Enabled:  true,
		Priority: 1,
		Trigger:  policy.MessageContentTrigger{Patterns: []string{"spam"}},
		Actions:  []policy.Action{policy.DeleteAction{}},
	})

	backend.Panic[policy.ActionWarn] = true
	res, err := eng.ProcessMessage(ctx, messageEvent("u1", "spam"))
	assert.NoError(err)
	assert.Len(res.Matches, 1)
	assert.Equal(fallback.ID, res.Matches[0].RuleID)
	assert.Equal([]policy.ActionType{policy.ActionDelete}, backend.Actions())
}

type stubClassifier struct {
	verdict *classifier.Verdict
	calls   int
}

func (s *stubClassifier) Analyze(ctx context.Context, text string, subj classifier.Subject) (*classifier.Verdict, error) {
	s.calls++
	return s.verdict, nil
}

func TestEngineClassifierScreening(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, backend := EngineTestFixture()

	cls := &stubClassifier{verdict: &classifier.Verdict{
		IsViolation:     true,
		ViolationType:   "harassment",
		Confidence:      0.93,
		Severity:        "high",
		Reasoning:       "targeted insult",
		SuggestedAction: "timeout",
	}}
	eng.Classifier = cls

	createRule(t, eng, policy.Rule{
		Enabled: true,
		Trigger: policy.MessageContentTrigger{Patterns: []string{"spam"}},
		Actions: []policy.Action{policy.WarnAction{}},
	})

	// not opted in
	res, err := eng.ProcessMessage(ctx, messageEvent("u1", "you are awful"))
	assert.NoError(err)
	assert.Nil(res.Verdict)
	assert.Equal(0, cls.calls)

	assert.NoError(eng.Rules.SetGuildConfig(ctx, rulestore.GuildConfig{GuildID: "g1", ClassifierEnabled: true}))
	res, err = eng.ProcessMessage(ctx, messageEvent("u1", "you are awful"))
	assert.NoError(err)
	assert.Empty(res.Matches)
	if assert.NotNil(res.Verdict) {
		assert.Equal("harassment", res.Verdict.ViolationType)
	}
	assert.Equal(1, cls.calls)
	assert.Empty(backend.Actions())

	eng.Wait()
	audit := eng.Audit.(*MockAuditSink).All()
	assert.Len(audit, 1)
	assert.Equal(TriggerTypeAIClassifier, audit[0].TriggerType)
	assert.Equal("targeted insult", audit[0].Reason)
	assert.Empty(audit[0].ActionResults)

	// rule matches skip screening
	res, err = eng.ProcessMessage(ctx, messageEvent("u1", "spam"))
	assert.NoError(err)
	assert.Len(res.Matches, 1)
	assert.Nil(res.Verdict)
	assert.Equal(1, cls.calls)
}
