package policy

import (
	"slices"
	"time"
)

const (
	TemplateSpam            = "spam"
	TemplateHarassment      = "harassment"
	TemplateInviteLinks     = "invite-links"
	TemplateExplicitContent = "explicit-content"
	TemplateNewAccount      = "new-account"
)

// built-in rule templates. each call returns a fresh rule, so callers may mutate the result
var templates = map[string]func() Rule{
	TemplateSpam: func() Rule {
		return Rule{
			Name:        "Anti-Spam",
			Description: "Deletes and times out members sending messages too quickly",
			Priority:    10,
			Trigger: MessageRateTrigger{
				Threshold:  5,
				TimeWindow: Duration(5 * time.Second),
			},
			Actions: []Action{
				DeleteAction{},
				TimeoutAction{Duration: Duration(5 * time.Minute)},
			},
			Cooldown: Cooldown{Enabled: true, Duration: Duration(30 * time.Second), PerUser: true},
		}
	},
	TemplateHarassment: func() Rule {
		return Rule{
			Name:        "Harassment Filter",
			Description: "Removes messages containing harassing language and warns the author",
			Priority:    8,
			Trigger: KeywordMatchTrigger{
				Keywords:         []string{"kys", "kill yourself", "retard", "loser"},
				FuzzySensitivity: 0.8,
			},
			Actions: []Action{
				DeleteAction{},
				WarnAction{Escalate: true},
			},
		}
	},
	TemplateInviteLinks: func() Rule {
		return Rule{
			Name:        "Invite Link Blocker",
			Description: "Removes server invite links",
			Priority:    7,
			Trigger: RegexMatchTrigger{
				Patterns:   []string{`(?:discord\.gg|discord(?:app)?\.com/invite)/[\w-]+`},
				RegexFlags: "i",
			},
			Actions: []Action{
				DeleteAction{},
				WarnAction{},
			},
		}
	},
	TemplateExplicitContent: func() Rule {
		return Rule{
			Name:        "Explicit Content Filter",
			Description: "Removes explicit content and mutes the author",
			Priority:    9,
			Trigger: MessageContentTrigger{
				Patterns: []string{"nsfw", "porn", "xxx"},
			},
			Actions: []Action{
				DeleteAction{},
				MuteAction{Duration: Duration(10 * time.Minute)},
			},
		}
	},
	TemplateNewAccount: func() Rule {
		return Rule{
			Name:        "New Account Gate",
			Description: "Removes accounts younger than seven days on join",
			Priority:    5,
			Trigger: JoinPatternTrigger{
				MinAccountAge: Duration(7 * 24 * time.Hour),
			},
			Actions: []Action{
				DMUserAction{Message: "Your account is too new to join this server. Please try again later."},
				KickAction{},
			},
		}
	},
}

// Names of all built-in templates, sorted.
func TemplateNames() []string {
	names := make([]string, 0, len(templates))
	for name := range templates {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Returns a fresh, enabled rule built from the named template, without ID or guild.
func FromTemplate(name string) (Rule, bool) {
	f, ok := templates[name]
	if !ok {
		return Rule{}, false
	}
	r := f()
	r.Enabled = true
	return r, true
}
