package discord

import (
	"context"
	"log/slog"
	"time"

	"github.com/bluesky-social/guildmod/automod/engine"

	"github.com/bwmarrin/discordgo"
)

var HandlerTimeout = 30 * time.Second

// Feeds gateway events to the engine.
type Handler struct {
	Engine *engine.Engine
	Logger *slog.Logger
}

func NewHandler(eng *engine.Engine, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{Engine: eng, Logger: logger.With("component", "discord-handler")}
}

// Registers the event handlers on a session.
func (h *Handler) Register(s *discordgo.Session) {
	s.AddHandler(h.OnMessageCreate)
	s.AddHandler(h.OnGuildMemberAdd)
}

func (h *Handler) OnMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Message == nil || m.GuildID == "" || m.Author == nil || m.Author.Bot {
		return
	}
	deletable := canManageMessages(s, m.ChannelID)

	ctx, cancel := context.WithTimeout(context.Background(), HandlerTimeout)
	defer cancel()
	if _, err := h.HandleMessage(ctx, m.Message, deletable); err != nil {
		h.Logger.Error("failed to process message", "guild", m.GuildID, "message", m.ID, "err", err)
	}
}

func (h *Handler) OnGuildMemberAdd(s *discordgo.Session, m *discordgo.GuildMemberAdd) {
	if m.Member == nil || m.User == nil || m.User.Bot {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), HandlerTimeout)
	defer cancel()
	if _, err := h.HandleMemberJoin(ctx, m.Member); err != nil {
		h.Logger.Error("failed to process member join", "guild", m.GuildID, "user", m.User.ID, "err", err)
	}
}

// Unknown permissions (eg, before the state cache is warm) count as deletable; the delete call itself is the final check.
func canManageMessages(s *discordgo.Session, channelID string) bool {
	if s == nil || s.State == nil || s.State.User == nil {
		return true
	}
	perms, err := s.State.UserChannelPermissions(s.State.User.ID, channelID)
	if err != nil {
		return true
	}
	return perms&discordgo.PermissionManageMessages != 0
}

func (h *Handler) HandleMessage(ctx context.Context, m *discordgo.Message, deletable bool) (*engine.Result, error) {
	return h.Engine.ProcessMessage(ctx, MessageContext(m, deletable))
}

func (h *Handler) HandleMemberJoin(ctx context.Context, m *discordgo.Member) (*engine.Result, error) {
	return h.Engine.ProcessMemberJoin(ctx, MemberJoinContext(m))
}

// Account creation time, from the user's snowflake ID. Nil if the ID can't be parsed.
func accountCreated(userID string) *time.Time {
	t, err := discordgo.SnowflakeTimestamp(userID)
	if err != nil || userID == "" {
		return nil
	}
	return &t
}

func MessageContext(m *discordgo.Message, deletable bool) *engine.Context {
	c := &engine.Context{
		GuildID:        m.GuildID,
		ChannelID:      m.ChannelID,
		MessageContent: m.Content,
		Message: &engine.Message{
			ID:        m.ID,
			ChannelID: m.ChannelID,
			Deletable: deletable,
		},
	}
	if m.Author != nil {
		c.UserID = m.Author.ID
		c.JoinTimestamp = accountCreated(m.Author.ID)
	}
	if m.Member != nil {
		c.Member = &engine.Member{UserID: c.UserID, RoleIDs: m.Member.Roles}
	}
	return c
}

func MemberJoinContext(m *discordgo.Member) *engine.Context {
	c := &engine.Context{
		GuildID: m.GuildID,
		Member:  &engine.Member{RoleIDs: m.Roles},
	}
	if m.User != nil {
		c.UserID = m.User.ID
		c.Member.UserID = m.User.ID
		c.JoinTimestamp = accountCreated(m.User.ID)
	}
	return c
}
