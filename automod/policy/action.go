package policy

import (
	"encoding/json"
	"fmt"
)

type ActionType string

const (
	ActionWarn       ActionType = "warn"
	ActionMute       ActionType = "mute"
	ActionKick       ActionType = "kick"
	ActionBan        ActionType = "ban"
	ActionDelete     ActionType = "delete"
	ActionTimeout    ActionType = "timeout"
	ActionRoleAdd    ActionType = "role_add"
	ActionRoleRemove ActionType = "role_remove"
	ActionDMUser     ActionType = "dm_user"
)

// A single enforcement or notification effect. Closed set: the only implementations are the *Action structs in this package.
type Action interface {
	ActionType() ActionType
	isAction()
}

// Escalate requests a follow-up mute once the member's cumulative warning count reaches the escalation threshold.
type WarnAction struct {
	Escalate bool `json:"escalate,omitempty"`
}

type MuteAction struct {
	Duration Duration `json:"duration,omitempty"`
}

type KickAction struct{}

// A zero Duration is a permanent ban.
type BanAction struct {
	Duration Duration `json:"duration,omitempty"`
}

// Deletes the triggering message.
type DeleteAction struct{}

type TimeoutAction struct {
	Duration Duration `json:"duration"`
}

type RoleAddAction struct {
	RoleID string `json:"roleId"`
}

type RoleRemoveAction struct {
	RoleID string `json:"roleId"`
}

type DMUserAction struct {
	Message string `json:"message"`
}

func (WarnAction) ActionType() ActionType       { return ActionWarn }
func (MuteAction) ActionType() ActionType       { return ActionMute }
func (KickAction) ActionType() ActionType       { return ActionKick }
func (BanAction) ActionType() ActionType        { return ActionBan }
func (DeleteAction) ActionType() ActionType     { return ActionDelete }
func (TimeoutAction) ActionType() ActionType    { return ActionTimeout }
func (RoleAddAction) ActionType() ActionType    { return ActionRoleAdd }
func (RoleRemoveAction) ActionType() ActionType { return ActionRoleRemove }
func (DMUserAction) ActionType() ActionType     { return ActionDMUser }

func (WarnAction) isAction()       {}
func (MuteAction) isAction()       {}
func (KickAction) isAction()       {}
func (BanAction) isAction()        {}
func (DeleteAction) isAction()     {}
func (TimeoutAction) isAction()    {}
func (RoleAddAction) isAction()    {}
func (RoleRemoveAction) isAction() {}
func (DMUserAction) isAction()     {}

func MarshalAction(a Action) ([]byte, error) {
	if a == nil {
		return nil, fmt.Errorf("nil action")
	}
	return marshalTagged(string(a.ActionType()), a)
}

func UnmarshalAction(b []byte) (Action, error) {
	tag, err := readTag(b)
	if err != nil {
		return nil, fmt.Errorf("decoding action: %w", err)
	}
	if tag == "" {
		return nil, fmt.Errorf("decoding action: null")
	}
	var a Action
	switch ActionType(tag) {
	case ActionWarn:
		var v WarnAction
		err = json.Unmarshal(b, &v)
		a = v
	case ActionMute:
		var v MuteAction
		err = json.Unmarshal(b, &v)
		a = v
	case ActionKick:
		a = KickAction{}
	case ActionBan:
		var v BanAction
		err = json.Unmarshal(b, &v)
		a = v
	case ActionDelete:
		a = DeleteAction{}
	case ActionTimeout:
		var v TimeoutAction
		err = json.Unmarshal(b, &v)
		a = v
	case ActionRoleAdd:
		var v RoleAddAction
		err = json.Unmarshal(b, &v)
		a = v
	case ActionRoleRemove:
		var v RoleRemoveAction
		err = json.Unmarshal(b, &v)
		a = v
	case ActionDMUser:
		var v DMUserAction
		err = json.Unmarshal(b, &v)
		a = v
	default:
		return nil, fmt.Errorf("unknown action type: %q", tag)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding %s action: %w", tag, err)
	}
	return a, nil
}

// Reports whether the action list contains an action of the given type.
func HasAction(actions []Action, t ActionType) bool {
	for _, a := range actions {
		if a.ActionType() == t {
			return true
		}
	}
	return false
}
