// Package fields derives the per-channel schema of collectible CV fields from a
// static question list.
package fields

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// InputKind is the UI input widget a field is collected with.
type InputKind string

const (
	InputText     InputKind = "text"
	InputTextarea InputKind = "textarea"
	InputNumber   InputKind = "number"
	InputDate     InputKind = "date"
	InputSelect   InputKind = "select"
)

// Valid reports whether k is one of the known input kinds.
func (k InputKind) Valid() bool {
	switch k {
	case InputText, InputTextarea, InputNumber, InputDate, InputSelect:
		return true
	default:
		return false
	}
}

// Semantic describes what kind of value a field holds, independent of its input kind.
type Semantic string

const (
	SemanticFullName Semantic = "fullName"
	SemanticPhone    Semantic = "phone"
	SemanticEmail    Semantic = "email"
	SemanticCity     Semantic = "city"
	SemanticCountry  Semantic = "country"
	SemanticRole     Semantic = "roleTitle"
	SemanticCompany  Semantic = "company"
	SemanticYears    Semantic = "years"
	SemanticDate     Semantic = "date"
	SemanticURL      Semantic = "url"
	SemanticFreeText Semantic = "freeText"
)

// Valid reports whether s is one of the known semantic categories.
func (s Semantic) Valid() bool {
	switch s {
	case SemanticFullName, SemanticPhone, SemanticEmail, SemanticCity, SemanticCountry,
		SemanticRole, SemanticCompany, SemanticYears, SemanticDate, SemanticURL, SemanticFreeText:
		return true
	default:
		return false
	}
}

// Channel is the conversation surface a schema is derived for.
type Channel string

const (
	ChannelChat  Channel = "chat"
	ChannelVoice Channel = "voice"
)

// ParseChannel maps free-form input to a channel, defaulting to chat.
func ParseChannel(s string) Channel {
	if strings.EqualFold(strings.TrimSpace(s), string(ChannelVoice)) {
		return ChannelVoice
	}
	return ChannelChat
}

// Validation holds the optional constraints of a field.
type Validation struct {
	Required  bool   `json:"required,omitempty" mapstructure:"required"`
	MinLength *int   `json:"minLength,omitempty" mapstructure:"minLength"`
	MaxLength *int   `json:"maxLength,omitempty" mapstructure:"maxLength"`
	Pattern   string `json:"pattern,omitempty" mapstructure:"pattern"`
}

// Empty reports whether no constraint is set.
func (v Validation) Empty() bool {
	return !v.Required && v.MinLength == nil && v.MaxLength == nil && v.Pattern == ""
}

// Check reports the first constraint value breaks. An invalid pattern is ignored.
func (v Validation) Check(value string) error {
	value = strings.TrimSpace(value)
	length := utf8.RuneCountInString(value)

	if value == "" {
		if v.Required {
			return errors.New("an answer is required")
		}
		return nil
	}
	if v.MinLength != nil && length < *v.MinLength {
		return fmt.Errorf("at least %d characters", *v.MinLength)
	}
	if v.MaxLength != nil && *v.MaxLength > 0 && length > *v.MaxLength {
		return fmt.Errorf("at most %d characters", *v.MaxLength)
	}
	if v.Pattern != "" {
		re, err := regexp.Compile(v.Pattern)
		if err == nil && !re.MatchString(value) {
			return fmt.Errorf("does not match %s", v.Pattern)
		}
	}
	return nil
}

// Rule describes how a single field is collected.
type Rule struct {
	Key           string      `json:"key"`
	Label         string      `json:"label,omitempty"`
	InputKind     InputKind   `json:"inputKind"`
	Examples      []string    `json:"examples"`
	Validation    *Validation `json:"validation,omitempty"`
	Semantic      Semantic    `json:"semanticCategory"`
	NormalizeHint string      `json:"normalizeHint,omitempty"`
}

// Schema is the immutable set of fields available in one channel.
type Schema struct {
	keys  []string
	rules map[string]Rule
	hints map[string]string
}

// AllowedKeys returns the field keys in question-list order.
func (s *Schema) AllowedKeys() []string {
	if s == nil {
		return nil
	}
	keys := make([]string, len(s.keys))
	copy(keys, s.keys)
	return keys
}

// Allows reports whether key belongs to the schema.
func (s *Schema) Allows(key string) bool {
	if s == nil {
		return false
	}
	_, ok := s.rules[key]
	return ok
}

// Rule returns the rule for key.
func (s *Schema) Rule(key string) (Rule, bool) {
	if s == nil {
		return Rule{}, false
	}
	rule, ok := s.rules[key]
	return rule, ok
}

// Rules returns every rule in allowed-key order.
func (s *Schema) Rules() []Rule {
	if s == nil {
		return nil
	}
	rules := make([]Rule, 0, len(s.keys))
	for _, key := range s.keys {
		rules = append(rules, s.rules[key])
	}
	return rules
}

// Hints returns a copy of the per-key hints.
func (s *Schema) Hints() map[string]string {
	hints := make(map[string]string)
	if s == nil {
		return hints
	}
	for key, hint := range s.hints {
		hints[key] = hint
	}
	return hints
}

// Len returns the number of fields.
func (s *Schema) Len() int {
	if s == nil {
		return 0
	}
	return len(s.keys)
}
