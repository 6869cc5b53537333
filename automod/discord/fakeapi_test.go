package discord

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
)

const discordEpochMillis = 1420070400000

// Snowflake ID with the given creation time.
func snowflakeAt(t time.Time) string {
	return strconv.FormatInt((t.UnixMilli()-discordEpochMillis)<<22, 10)
}

type fakeCall struct {
	Method string
	Args   []string
}

// Records REST calls instead of making them.
type fakeAPI struct {
	mu      sync.Mutex
	Calls   []fakeCall
	Fail    map[string]error
	OwnerID string
	Embeds  []*discordgo.MessageEmbed
}

var _ API = (*fakeAPI)(nil)

func newFakeAPI() *fakeAPI {
	return &fakeAPI{Fail: make(map[string]error)}
}

func (f *fakeAPI) call(method string, args ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.Fail[method]; err != nil {
		return err
	}
	f.Calls = append(f.Calls, fakeCall{Method: method, Args: args})
	return nil
}

func (f *fakeAPI) Methods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.Calls))
	for _, c := range f.Calls {
		out = append(out, c.Method)
	}
	return out
}

func (f *fakeAPI) GuildMemberTimeout(guildID, userID string, until *time.Time, options ...discordgo.RequestOption) error {
	return f.call("GuildMemberTimeout", guildID, userID, until.UTC().Format(time.RFC3339))
}

func (f *fakeAPI) GuildMemberDeleteWithReason(guildID, userID, reason string, options ...discordgo.RequestOption) error {
	return f.call("GuildMemberDeleteWithReason", guildID, userID, reason)
}

func (f *fakeAPI) GuildBanCreateWithReason(guildID, userID, reason string, days int, options ...discordgo.RequestOption) error {
	return f.call("GuildBanCreateWithReason", guildID, userID, reason)
}

func (f *fakeAPI) GuildBanDelete(guildID, userID string, options ...discordgo.RequestOption) error {
	return f.call("GuildBanDelete", guildID, userID)
}

func (f *fakeAPI) GuildMemberRoleAdd(guildID, userID, roleID string, options ...discordgo.RequestOption) error {
	return f.call("GuildMemberRoleAdd", guildID, userID, roleID)
}

func (f *fakeAPI) GuildMemberRoleRemove(guildID, userID, roleID string, options ...discordgo.RequestOption) error {
	return f.call("GuildMemberRoleRemove", guildID, userID, roleID)
}

func (f *fakeAPI) ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error {
	return f.call("ChannelMessageDelete", channelID, messageID)
}

func (f *fakeAPI) UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error) {
	if err := f.call("UserChannelCreate", recipientID); err != nil {
		return nil, err
	}
	return &discordgo.Channel{ID: "dm-" + recipientID}, nil
}

func (f *fakeAPI) ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	if err := f.call("ChannelMessageSend", channelID, content); err != nil {
		return nil, err
	}
	return &discordgo.Message{ChannelID: channelID, Content: content}, nil
}

func (f *fakeAPI) ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	if err := f.call("ChannelMessageSendEmbed", channelID); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.Embeds = append(f.Embeds, embed)
	f.mu.Unlock()
	return &discordgo.Message{ChannelID: channelID}, nil
}

func (f *fakeAPI) Guild(guildID string, options ...discordgo.RequestOption) (*discordgo.Guild, error) {
	if err := f.call("Guild", guildID); err != nil {
		return nil, err
	}
	if f.OwnerID == "" {
		return nil, errors.New("unknown guild")
	}
	return &discordgo.Guild{ID: guildID, OwnerID: f.OwnerID}, nil
}
