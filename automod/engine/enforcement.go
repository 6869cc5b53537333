package engine

import (
	"context"
	"time"
)

// Target and context for a single enforcement call.
type ActionRequest struct {
	GuildID string
	// member being acted on
	UserID string
	// bot account issuing the action
	ActorID   string
	ChannelID string
	MessageID string
	Reason    string
	// zero means permanent, where that applies (bans)
	Duration time.Duration
}

type EnforcementResult struct {
	// moderation case created by the backend, if any
	CaseID string
}

// Enforcement backend. Implementations do their own permission and role hierarchy checks, and return an error when they refuse.
type Enforcer interface {
	Warn(ctx context.Context, req ActionRequest) (*EnforcementResult, error)
	Mute(ctx context.Context, req ActionRequest) (*EnforcementResult, error)
	Kick(ctx context.Context, req ActionRequest) (*EnforcementResult, error)
	Ban(ctx context.Context, req ActionRequest) (*EnforcementResult, error)
	Timeout(ctx context.Context, req ActionRequest) (*EnforcementResult, error)
}

// Chat platform operations which are not moderation cases.
type Platform interface {
	DeleteMessage(ctx context.Context, guildID, channelID, messageID, reason string) error
	AddRole(ctx context.Context, guildID, userID, roleID, reason string) error
	RemoveRole(ctx context.Context, guildID, userID, roleID, reason string) error
	SendDM(ctx context.Context, userID, content string) error
	GuildOwnerID(ctx context.Context, guildID string) (string, error)
}
