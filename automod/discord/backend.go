package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bluesky-social/guildmod/automod/engine"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
)

var (
	// longest timeout the platform accepts
	MaxTimeout = 28 * 24 * time.Hour
	// used for mutes and timeouts with no duration
	DefaultMuteDuration = time.Hour
)

// Enforcement backend and platform operations on top of the discordgo REST API.
//
// Mutes are implemented as member timeouts. Warnings are counted in History and delivered by DM. Temporary bans are lifted by a process-local timer, so a restart forgets pending unbans.
type Backend struct {
	API     API
	State   *discordgo.State
	History *engine.CountHistory
	Logger  *slog.Logger
	Now     func() time.Time

	mu     sync.Mutex
	unbans map[string]*time.Timer
	closed bool
}

var (
	_ engine.Enforcer = (*Backend)(nil)
	_ engine.Platform = (*Backend)(nil)
)

func NewBackend(api API, state *discordgo.State, history *engine.CountHistory, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		API:     api,
		State:   state,
		History: history,
		Logger:  logger.With("component", "discord"),
		Now:     time.Now,
		unbans:  make(map[string]*time.Timer),
	}
}

func (b *Backend) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now()
}

func newCase() *engine.EnforcementResult {
	return &engine.EnforcementResult{CaseID: uuid.NewString()}
}

func (b *Backend) Warn(ctx context.Context, req engine.ActionRequest) (*engine.EnforcementResult, error) {
	if b.History != nil {
		if err := b.History.RecordWarning(ctx, req.GuildID, req.UserID); err != nil {
			return nil, fmt.Errorf("recording warning: %w", err)
		}
	}
	msg := "You have received a warning from the moderation system."
	if req.Reason != "" {
		msg += "\nReason: " + req.Reason
	}
	if err := b.SendDM(ctx, req.UserID, msg); err != nil {
		// the warning still counts
		b.Logger.Debug("could not deliver warning DM", "user", req.UserID, "err", err)
	}
	return newCase(), nil
}

func (b *Backend) timeout(req engine.ActionRequest) error {
	d := req.Duration
	if d <= 0 {
		d = DefaultMuteDuration
	}
	if d > MaxTimeout {
		d = MaxTimeout
	}
	until := b.now().Add(d)
	return b.API.GuildMemberTimeout(req.GuildID, req.UserID, &until, discordgo.WithAuditLogReason(req.Reason))
}

func (b *Backend) Mute(ctx context.Context, req engine.ActionRequest) (*engine.EnforcementResult, error) {
	if err := b.timeout(req); err != nil {
		return nil, fmt.Errorf("muting member: %w", err)
	}
	return newCase(), nil
}

func (b *Backend) Timeout(ctx context.Context, req engine.ActionRequest) (*engine.EnforcementResult, error) {
	if err := b.timeout(req); err != nil {
		return nil, fmt.Errorf("timing out member: %w", err)
	}
	return newCase(), nil
}

func (b *Backend) Kick(ctx context.Context, req engine.ActionRequest) (*engine.EnforcementResult, error) {
	if err := b.API.GuildMemberDeleteWithReason(req.GuildID, req.UserID, req.Reason); err != nil {
		return nil, fmt.Errorf("kicking member: %w", err)
	}
	return newCase(), nil
}

// A positive Duration schedules an unban.
func (b *Backend) Ban(ctx context.Context, req engine.ActionRequest) (*engine.EnforcementResult, error) {
	if err := b.API.GuildBanCreateWithReason(req.GuildID, req.UserID, req.Reason, 0); err != nil {
		return nil, fmt.Errorf("banning member: %w", err)
	}
	if req.Duration > 0 {
		b.scheduleUnban(req.GuildID, req.UserID, req.Duration)
	}
	return newCase(), nil
}

func (b *Backend) scheduleUnban(guildID, userID string, after time.Duration) {
	key := guildID + ":" + userID
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	if prev, ok := b.unbans[key]; ok {
		prev.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(after, func() {
		b.mu.Lock()
		if b.unbans[key] != t {
			b.mu.Unlock()
			return
		}
		delete(b.unbans, key)
		b.mu.Unlock()

		if err := b.API.GuildBanDelete(guildID, userID, discordgo.WithAuditLogReason("AutoMod: temporary ban expired")); err != nil {
			b.Logger.Warn("failed to lift temporary ban", "guild", guildID, "user", userID, "err", err)
			return
		}
		b.Logger.Info("lifted temporary ban", "guild", guildID, "user", userID)
	})
	b.unbans[key] = t
}

// Number of temporary bans waiting to be lifted.
func (b *Backend) PendingUnbans() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.unbans)
}

// Stops all pending unban timers.
func (b *Backend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for key, t := range b.unbans {
		t.Stop()
		delete(b.unbans, key)
	}
	b.closed = true
}

func (b *Backend) DeleteMessage(ctx context.Context, guildID, channelID, messageID, reason string) error {
	return b.API.ChannelMessageDelete(channelID, messageID, discordgo.WithAuditLogReason(reason))
}

func (b *Backend) AddRole(ctx context.Context, guildID, userID, roleID, reason string) error {
	return b.API.GuildMemberRoleAdd(guildID, userID, roleID, discordgo.WithAuditLogReason(reason))
}

func (b *Backend) RemoveRole(ctx context.Context, guildID, userID, roleID, reason string) error {
	return b.API.GuildMemberRoleRemove(guildID, userID, roleID, discordgo.WithAuditLogReason(reason))
}

func (b *Backend) SendDM(ctx context.Context, userID, content string) error {
	ch, err := b.API.UserChannelCreate(userID)
	if err != nil {
		return fmt.Errorf("opening DM channel: %w", err)
	}
	if _, err := b.API.ChannelMessageSend(ch.ID, content); err != nil {
		return fmt.Errorf("sending DM: %w", err)
	}
	return nil
}

// Served from the gateway state cache when possible.
func (b *Backend) GuildOwnerID(ctx context.Context, guildID string) (string, error) {
	if b.State != nil {
		if g, err := b.State.Guild(guildID); err == nil && g.OwnerID != "" {
			return g.OwnerID, nil
		}
	}
	g, err := b.API.Guild(guildID)
	if err != nil {
		return "", err
	}
	return g.OwnerID, nil
}
