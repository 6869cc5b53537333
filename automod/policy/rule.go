package policy

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// The unit of moderation policy: one trigger, optional conditions, and an ordered action list, scoped to a single guild.
//
// Trigger and Action values are treated as immutable once attached to a rule; updates replace them wholesale.
type Rule struct {
	ID          string `json:"id"`
	GuildID     string `json:"guildId"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Enabled     bool   `json:"enabled"`
	// higher evaluates first within a guild
	Priority int  `json:"priority"`
	DryRun   bool `json:"dryRun,omitempty"`

	Trigger    Trigger    `json:"-"`
	Conditions Conditions `json:"conditions"`
	Actions    []Action   `json:"-"`

	Cooldown   Cooldown   `json:"cooldown"`
	Schedule   Schedule   `json:"schedule"`
	Exceptions Exceptions `json:"exceptions"`
	Stats      Stats      `json:"stats"`

	// if false, a match stops evaluation of lower-priority rules for the same event
	ContinueAfterMatch bool `json:"continueAfterMatch,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Secondary filters, applied only after the trigger matched. Zero values disable each check.
type Conditions struct {
	MinAccountAge Duration `json:"minAccountAge,omitempty"`
	// rejects the match when the member already has at least this many warnings
	MaxWarnings   *int     `json:"maxWarnings,omitempty"`
	RequiredRoles []string `json:"requiredRoles,omitempty"`
}

// If neither PerUser nor PerGuild is set, cooldowns are scoped per user.
type Cooldown struct {
	Enabled  bool     `json:"enabled"`
	Duration Duration `json:"duration"`
	PerUser  bool     `json:"perUser,omitempty"`
	PerGuild bool     `json:"perGuild,omitempty"`
}

// Time-of-day window during which a rule is active. StartTime and EndTime are "HH:MM"; DaysOfWeek uses 0 for Sunday. A window whose start is after its end wraps past midnight.
type Schedule struct {
	Enabled    bool   `json:"enabled"`
	StartTime  string `json:"startTime,omitempty"`
	EndTime    string `json:"endTime,omitempty"`
	DaysOfWeek []int  `json:"daysOfWeek,omitempty"`
	// IANA zone name; empty means UTC
	Timezone string `json:"timezone,omitempty"`
}

type Exceptions struct {
	Channels []string `json:"channels,omitempty"`
	Roles    []string `json:"roles,omitempty"`
	Users    []string `json:"users,omitempty"`
}

type Stats struct {
	Triggers        int64      `json:"triggers"`
	ActionsExecuted int64      `json:"actionsExecuted"`
	FalsePositives  int64      `json:"falsePositives"`
	LastTriggered   *time.Time `json:"lastTriggered,omitempty"`
}

var ErrTriggerTypeChange = errors.New("trigger type can not be changed after creation")

func (r *Rule) TriggerType() TriggerType {
	if r.Trigger == nil {
		return ""
	}
	return r.Trigger.TriggerType()
}

// Returns a copy of the rule which shares no mutable state with the original.
func (r *Rule) Clone() Rule {
	out := *r
	out.Actions = append([]Action(nil), r.Actions...)
	out.Conditions.RequiredRoles = append([]string(nil), r.Conditions.RequiredRoles...)
	if r.Conditions.MaxWarnings != nil {
		mw := *r.Conditions.MaxWarnings
		out.Conditions.MaxWarnings = &mw
	}
	out.Schedule.DaysOfWeek = append([]int(nil), r.Schedule.DaysOfWeek...)
	out.Exceptions = Exceptions{
		Channels: append([]string(nil), r.Exceptions.Channels...),
		Roles:    append([]string(nil), r.Exceptions.Roles...),
		Users:    append([]string(nil), r.Exceptions.Users...),
	}
	if r.Stats.LastTriggered != nil {
		lt := *r.Stats.LastTriggered
		out.Stats.LastTriggered = &lt
	}
	return out
}

// Checks that the rule is complete and internally consistent. Does not compile regular expressions: invalid patterns are skipped at evaluation time.
func (r *Rule) Validate() error {
	if r.GuildID == "" {
		return fmt.Errorf("rule missing guild ID")
	}
	if r.Name == "" {
		return fmt.Errorf("rule missing name")
	}
	if r.Trigger == nil {
		return fmt.Errorf("rule %q missing trigger", r.Name)
	}
	switch t := r.Trigger.(type) {
	case KeywordMatchTrigger:
		if t.FuzzySensitivity < 0 || t.FuzzySensitivity > 1 {
			return fmt.Errorf("rule %q: fuzzy sensitivity out of range: %f", r.Name, t.FuzzySensitivity)
		}
	case MessageRateTrigger:
		if t.Threshold <= 0 {
			return fmt.Errorf("rule %q: message rate threshold must be positive", r.Name)
		}
	}
	for _, a := range r.Actions {
		switch v := a.(type) {
		case RoleAddAction:
			if v.RoleID == "" {
				return fmt.Errorf("rule %q: role_add action missing role ID", r.Name)
			}
		case RoleRemoveAction:
			if v.RoleID == "" {
				return fmt.Errorf("rule %q: role_remove action missing role ID", r.Name)
			}
		case DMUserAction:
			if v.Message == "" {
				return fmt.Errorf("rule %q: dm_user action missing message", r.Name)
			}
		case nil:
			return fmt.Errorf("rule %q: nil action", r.Name)
		}
	}
	if r.Cooldown.Enabled && r.Cooldown.Duration <= 0 {
		return fmt.Errorf("rule %q: cooldown enabled without duration", r.Name)
	}
	if r.Schedule.Enabled {
		if _, err := r.Schedule.Window(); err != nil {
			return fmt.Errorf("rule %q: %w", r.Name, err)
		}
	}
	return nil
}

func (r Rule) MarshalJSON() ([]byte, error) {
	type plain Rule
	trig, err := MarshalTrigger(r.Trigger)
	if err != nil {
		return nil, err
	}
	actions := make([]json.RawMessage, 0, len(r.Actions))
	for _, a := range r.Actions {
		raw, err := MarshalAction(a)
		if err != nil {
			return nil, err
		}
		actions = append(actions, raw)
	}
	return json.Marshal(struct {
		plain
		Trigger json.RawMessage   `json:"trigger"`
		Actions []json.RawMessage `json:"actions"`
	}{
		plain:   plain(r),
		Trigger: trig,
		Actions: actions,
	})
}

func (r *Rule) UnmarshalJSON(b []byte) error {
	type plain Rule
	var aux struct {
		plain
		Trigger json.RawMessage   `json:"trigger"`
		Actions []json.RawMessage `json:"actions"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*r = Rule(aux.plain)
	if len(aux.Trigger) > 0 {
		trig, err := UnmarshalTrigger(aux.Trigger)
		if err != nil {
			return err
		}
		r.Trigger = trig
	}
	r.Actions = make([]Action, 0, len(aux.Actions))
	for _, raw := range aux.Actions {
		a, err := UnmarshalAction(raw)
		if err != nil {
			return err
		}
		r.Actions = append(r.Actions, a)
	}
	return nil
}
