package classifier

import (
	"context"
)

// Result of analyzing one piece of text.
type Verdict struct {
	IsViolation        bool    `json:"isViolation"`
	ViolationType      string  `json:"violationType,omitempty"`
	Confidence         float64 `json:"confidence"`
	Severity           string  `json:"severity,omitempty"`
	Reasoning          string  `json:"reasoning,omitempty"`
	SuggestedAction    string  `json:"suggestedAction,omitempty"`
	EducationalMessage string  `json:"educationalMessage,omitempty"`
	IsFalsePositive    bool    `json:"isFalsePositive,omitempty"`
}

// Where the analyzed text came from. Passed to the service as context; not part of the cache key.
type Subject struct {
	GuildID   string `json:"guildId,omitempty"`
	ChannelID string `json:"channelId,omitempty"`
	UserID    string `json:"userId,omitempty"`
}

type Classifier interface {
	Analyze(ctx context.Context, text string, subj Subject) (*Verdict, error)
}
