package wizard

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spigell/cv-wizard/internal/fields"
)

// DefaultHistoryLimit is the number of most recent turns sent to the generator.
const DefaultHistoryLimit = 40

//go:embed prompt.md
var promptTemplate string

var channelRules = map[fields.Channel]string{
	fields.ChannelChat: "Channel rules (chat): keep `displayText` short. Plain text or a short list is fine. " +
		"Offer `examples` for every question.",
	fields.ChannelVoice: "Channel rules (voice): `speakText` is read aloud. Use one or two short sentences, " +
		"no markup, no lists, no emoji. Spell out numbers the way a person says them.",
}

// Context is the payload sent to the generator on every turn.
type Context struct {
	SessionID   string                 `json:"sessionId"`
	Channel     fields.Channel         `json:"channel"`
	CV          map[string]any         `json:"cv"`
	FilledKeys  []string               `json:"filledKeys"`
	History     []Turn                 `json:"history"`
	AllowedKeys []string               `json:"allowedKeys"`
	KeyHints    map[string]string      `json:"keyHints"`
	FieldRules  map[string]fields.Rule `json:"fieldRules"`
}

// SystemInstruction renders the system prompt for channel.
func SystemInstruction(channel fields.Channel) string {
	rules, ok := channelRules[channel]
	if !ok {
		rules = channelRules[fields.ChannelChat]
	}
	return strings.NewReplacer(
		"{{CHANNEL}}", string(channel),
		"{{CHANNEL_RULES}}", rules,
	).Replace(promptTemplate)
}

// BuildContext assembles the outbound context for s with history as the
// conversation so far. Only the last limit turns are kept.
func BuildContext(s *Session, history []Turn, limit int) Context {
	schema := s.Schema()

	rules := make(map[string]fields.Rule, schema.Len())
	for _, rule := range schema.Rules() {
		rules[rule.Key] = rule
	}

	filled := make([]string, len(s.FilledKeys))
	copy(filled, s.FilledKeys)

	return Context{
		SessionID:   s.ID,
		Channel:     s.Channel,
		CV:          cloneCV(s.CV),
		FilledKeys:  filled,
		History:     lastTurns(history, limit),
		AllowedKeys: schema.AllowedKeys(),
		KeyHints:    schema.Hints(),
		FieldRules:  rules,
	}
}

// Encode returns the JSON form of c.
func (c Context) Encode() (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode turn context: %w", err)
	}
	return string(data), nil
}

// DecodeContext parses a payload produced by Context.Encode.
func DecodeContext(payload string) (Context, error) {
	var c Context
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		return Context{}, fmt.Errorf("decode turn context: %w", err)
	}
	return c, nil
}

func lastTurns(history []Turn, limit int) []Turn {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if len(history) > limit {
		history = history[len(history)-limit:]
	}
	out := make([]Turn, len(history))
	copy(out, history)
	return out
}
