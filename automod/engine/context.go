package engine

import (
	"log/slog"
	"time"
)

type EventType string

const (
	EventMessageCreate EventType = "message_create"
	EventMemberJoin    EventType = "member_join"
)

type Member struct {
	UserID  string
	RoleIDs []string
}

type Message struct {
	ID        string
	ChannelID string
	// the bot may delete this message
	Deletable bool
	// set once the message has been removed
	Deleted bool
}

// Evaluation input for a single inbound event. Not persisted.
type Context struct {
	Type      EventType
	GuildID   string
	ChannelID string
	UserID    string
	// nil when the event carries no member info
	Member *Member

	MessageContent string
	Message        *Message

	// Creation time of the user's account. Account age is measured from this.
	JoinTimestamp *time.Time
	// Number of messages the user sent in the rule's window. If nil, the engine's RateTracker is consulted.
	MessageCount *int

	// match and record stats, but never execute actions
	DryRunOnly bool

	Logger *slog.Logger
}

func (c *Context) hasRole(roles []string) bool {
	if c.Member == nil {
		return false
	}
	for _, have := range c.Member.RoleIDs {
		for _, want := range roles {
			if have == want {
				return true
			}
		}
	}
	return false
}
