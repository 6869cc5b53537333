package rulestore

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/bluesky-social/guildmod/automod/policy"

	"github.com/stretchr/testify/assert"
)

func TestExportImportRoundTrip(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s, _ := testStore()

	for _, name := range policy.TemplateNames() {
		_, err := s.InstantiateFromTemplate(ctx, name, "g1", nil)
		assert.NoError(err)
	}
	assert.NoError(s.AddKeywords(ctx, ListBlacklist, "scam"))
	assert.NoError(s.SetGuildConfig(ctx, GuildConfig{GuildID: "g1", LogChannelID: "c1"}))
	before := s.ListAll("g1")

	exp, err := s.ExportAll(ctx, "g1")
	assert.NoError(err)
	assert.Len(exp.Rules, 5)
	assert.Equal([]string{"scam"}, exp.KeywordLists.Blacklist)
	assert.Len(exp.GuildConfigs, 1)

	// through JSON, as the CLI does
	raw, err := json.Marshal(exp)
	assert.NoError(err)
	b, err := ParseBundle(raw)
	assert.NoError(err)

	res := s.ImportAll(ctx, b, "g1", true)
	assert.Empty(res.Errors)
	assert.Equal(5, res.ImportedCount)

	after := s.ListAll("g1")
	assert.Len(after, len(before))
	for i := range before {
		assert.NotEqual(before[i].ID, after[i].ID)
		assert.Equal(before[i].Name, after[i].Name)
		assert.Equal(before[i].Priority, after[i].Priority)
		assert.Equal(before[i].Trigger, after[i].Trigger)
		assert.Equal(before[i].Actions, after[i].Actions)
		assert.Equal(before[i].Cooldown, after[i].Cooldown)
	}
	assert.Equal("c1", s.GuildConfig("g1").LogChannelID)
}

func TestImportIntoOtherGuild(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s, _ := testStore()

	_, err := s.InstantiateFromTemplate(ctx, policy.TemplateSpam, "g1", nil)
	assert.NoError(err)
	exp, err := s.ExportAll(ctx, "g1")
	assert.NoError(err)

	res := s.ImportAll(ctx, exp, "g2", false)
	assert.Equal(1, res.ImportedCount)
	l := s.ListAll("g2")
	assert.Len(l, 1)
	assert.Equal("g2", l[0].GuildID)
	assert.Equal(int64(0), l[0].Stats.Triggers)

	// second import without overwrite collides on name
	res = s.ImportAll(ctx, exp, "g2", false)
	assert.Equal(0, res.ImportedCount)
	assert.Len(res.Errors, 1)
	assert.Len(s.ListAll("g2"), 1)

	// source guild is untouched
	assert.Len(s.ListAll("g1"), 1)

	res = s.ImportAll(ctx, exp, "", true)
	assert.Equal(0, res.ImportedCount)
	assert.NotEmpty(res.Errors)
}

func TestParseBundleErrors(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s, _ := testStore()

	raw := []byte(`{
		"version": 1,
		"rules": [
			{"name": "ok", "enabled": true, "priority": 1, "trigger": {"type": "keyword_match", "keywords": ["spam"]}, "actions": [{"type": "delete"}]},
			{"name": "bad trigger", "trigger": {"type": "telepathy"}, "actions": []},
			{"name": "", "trigger": {"type": "keyword_match", "keywords": ["x"]}, "actions": []}
		],
		"keywordLists": {"whitelist": ["ok"], "blacklist": []}
	}`)
	b, err := ParseBundle(raw)
	assert.NoError(err)
	assert.Len(b.Rules, 2)

	res := s.ImportAll(ctx, b, "g1", false)
	assert.Equal(1, res.ImportedCount)
	// one decode failure, one validation failure
	assert.Len(res.Errors, 2)

	wl, _ := s.Keywords(ctx, ListWhitelist)
	assert.Equal([]string{"ok"}, wl)

	_, err = ParseBundle([]byte(`not json`))
	assert.Error(err)
}
