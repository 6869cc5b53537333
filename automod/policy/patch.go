package policy

// Partial update of a rule. Nil fields are left unchanged. ID, GuildID, Stats and timestamps are not patchable.
type RulePatch struct {
	Name               *string
	Description        *string
	Enabled            *bool
	Priority           *int
	DryRun             *bool
	Trigger            Trigger
	Conditions         *Conditions
	Actions            []Action
	Cooldown           *Cooldown
	Schedule           *Schedule
	Exceptions         *Exceptions
	ContinueAfterMatch *bool
}

// Applies the patch in place. Replacing the trigger with a different trigger type fails with ErrTriggerTypeChange and leaves the rule untouched.
func (p *RulePatch) Apply(r *Rule) error {
	if p.Trigger != nil && r.Trigger != nil && p.Trigger.TriggerType() != r.Trigger.TriggerType() {
		return ErrTriggerTypeChange
	}
	if p.Name != nil {
		r.Name = *p.Name
	}
	if p.Description != nil {
		r.Description = *p.Description
	}
	if p.Enabled != nil {
		r.Enabled = *p.Enabled
	}
	if p.Priority != nil {
		r.Priority = *p.Priority
	}
	if p.DryRun != nil {
		r.DryRun = *p.DryRun
	}
	if p.Trigger != nil {
		r.Trigger = p.Trigger
	}
	if p.Conditions != nil {
		r.Conditions = *p.Conditions
	}
	if p.Actions != nil {
		r.Actions = append([]Action(nil), p.Actions...)
	}
	if p.Cooldown != nil {
		r.Cooldown = *p.Cooldown
	}
	if p.Schedule != nil {
		r.Schedule = *p.Schedule
	}
	if p.Exceptions != nil {
		r.Exceptions = *p.Exceptions
	}
	if p.ContinueAfterMatch != nil {
		r.ContinueAfterMatch = *p.ContinueAfterMatch
	}
	return nil
}
