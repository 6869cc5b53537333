package policy

import (
	"encoding/json"
	"fmt"
)

type TriggerType string

const (
	TriggerMessageContent TriggerType = "message_content"
	TriggerJoinPattern    TriggerType = "join_pattern"
	TriggerMessageRate    TriggerType = "message_rate"
	TriggerKeywordMatch   TriggerType = "keyword_match"
	TriggerRegexMatch     TriggerType = "regex_match"
)

// Primary matching strategy of a rule. This is a closed set: the only implementations are the *Trigger structs in this package.
type Trigger interface {
	TriggerType() TriggerType
	isTrigger()
}

// Literal substring match against message content.
type MessageContentTrigger struct {
	Patterns      []string `json:"patterns"`
	CaseSensitive bool     `json:"caseSensitive,omitempty"`
}

// Account-age and join-burst detection for new members.
//
// MaxAccountAge, when non-zero, excludes accounts older than the bound from matching at all.
type JoinPatternTrigger struct {
	MinAccountAge     Duration `json:"minAccountAge,omitempty"`
	MaxAccountAge     Duration `json:"maxAccountAge,omitempty"`
	CheckJoinVelocity bool     `json:"checkJoinVelocity,omitempty"`
	JoinThreshold     int      `json:"joinThreshold,omitempty"`
}

// Flood detection. The message count for TimeWindow is supplied by the caller.
type MessageRateTrigger struct {
	Threshold  int      `json:"threshold"`
	TimeWindow Duration `json:"timeWindow"`
}

// Literal-or-fuzzy keyword detection. A zero FuzzySensitivity means the default (0.8).
type KeywordMatchTrigger struct {
	Keywords         []string `json:"keywords"`
	FuzzySensitivity float64  `json:"fuzzySensitivity,omitempty"`
}

// First-match regular expression detection. RegexFlags uses JS-style letters ("i", "m", "s"); empty means "i".
type RegexMatchTrigger struct {
	Patterns   []string `json:"patterns"`
	RegexFlags string   `json:"regexFlags,omitempty"`
}

func (MessageContentTrigger) TriggerType() TriggerType { return TriggerMessageContent }
func (JoinPatternTrigger) TriggerType() TriggerType    { return TriggerJoinPattern }
func (MessageRateTrigger) TriggerType() TriggerType    { return TriggerMessageRate }
func (KeywordMatchTrigger) TriggerType() TriggerType   { return TriggerKeywordMatch }
func (RegexMatchTrigger) TriggerType() TriggerType     { return TriggerRegexMatch }

func (MessageContentTrigger) isTrigger() {}
func (JoinPatternTrigger) isTrigger()    {}
func (MessageRateTrigger) isTrigger()    {}
func (KeywordMatchTrigger) isTrigger()   {}
func (RegexMatchTrigger) isTrigger()     {}

// Encodes a trigger as a JSON object with a "type" discriminator field.
func MarshalTrigger(t Trigger) ([]byte, error) {
	if t == nil {
		return []byte("null"), nil
	}
	return marshalTagged(string(t.TriggerType()), t)
}

// Decodes a trigger from a JSON object with a "type" discriminator field. Unknown types are an error.
func UnmarshalTrigger(b []byte) (Trigger, error) {
	tag, err := readTag(b)
	if err != nil {
		return nil, fmt.Errorf("decoding trigger: %w", err)
	}
	if tag == "" {
		return nil, nil
	}
	switch TriggerType(tag) {
	case TriggerMessageContent:
		var t MessageContentTrigger
		err = json.Unmarshal(b, &t)
		return t, err
	case TriggerJoinPattern:
		var t JoinPatternTrigger
		err = json.Unmarshal(b, &t)
		return t, err
	case TriggerMessageRate:
		var t MessageRateTrigger
		err = json.Unmarshal(b, &t)
		return t, err
	case TriggerKeywordMatch:
		var t KeywordMatchTrigger
		err = json.Unmarshal(b, &t)
		return t, err
	case TriggerRegexMatch:
		var t RegexMatchTrigger
		err = json.Unmarshal(b, &t)
		return t, err
	default:
		return nil, fmt.Errorf("unknown trigger type: %q", tag)
	}
}

func marshalTagged(tag string, v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	rawTag, err := json.Marshal(tag)
	if err != nil {
		return nil, err
	}
	fields["type"] = rawTag
	return json.Marshal(fields)
}

// returns empty string (and no error) for JSON null
func readTag(b []byte) (string, error) {
	if string(b) == "null" {
		return "", nil
	}
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(b, &env); err != nil {
		return "", err
	}
	if env.Type == "" {
		return "", fmt.Errorf("missing type field")
	}
	return env.Type, nil
}
