package wizard

import (
	"slices"
	"strings"

	"github.com/spigell/cv-wizard/internal/fields"
	"github.com/spigell/cv-wizard/internal/reply"
)

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry of the conversation history.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Session is the state of one conversation. It is owned by a single caller at
// a time and is only mutated by Driver.AdvanceTurn.
type Session struct {
	ID         string         `json:"sessionId"`
	Channel    fields.Channel `json:"channel"`
	CV         map[string]any `json:"cv"`
	FilledKeys []string       `json:"filledKeys"`
	History    []Turn         `json:"history"`
	State      reply.Action   `json:"state"`
	Finished   bool           `json:"finished"`

	schema *fields.Schema
}

// NewSession starts a session bound to schema. The schema stays fixed for the
// lifetime of the session.
func NewSession(id string, channel fields.Channel, schema *fields.Schema) *Session {
	return &Session{
		ID:         id,
		Channel:    channel,
		CV:         make(map[string]any),
		FilledKeys: make([]string, 0),
		History:    make([]Turn, 0),
		State:      reply.ActionAsk,
		schema:     schema,
	}
}

// Schema returns the field schema the session was started with.
func (s *Session) Schema() *fields.Schema {
	if s == nil {
		return nil
	}
	return s.schema
}

// Filled reports whether key has already been saved.
func (s *Session) Filled(key string) bool {
	return slices.Contains(s.FilledKeys, key)
}

// Progress returns the number of filled keys and the schema size.
func (s *Session) Progress() (int, int) {
	return len(s.FilledKeys), s.schema.Len()
}

func (s *Session) commit(key string, value any) {
	if s.CV == nil {
		s.CV = make(map[string]any)
	}
	setPath(s.CV, key, value)
	if !s.Filled(key) {
		s.FilledKeys = append(s.FilledKeys, key)
	}
}

// setPath stores value under a dotted key, creating nested maps on the way.
// An intermediate value that is not a map is replaced.
func setPath(cv map[string]any, key string, value any) {
	parts := strings.Split(key, ".")
	node := cv
	for _, part := range parts[:len(parts)-1] {
		next, ok := node[part].(map[string]any)
		if !ok {
			next = make(map[string]any)
			node[part] = next
		}
		node = next
	}
	node[parts[len(parts)-1]] = value
}

// LookupPath returns the value stored under a dotted key.
func LookupPath(cv map[string]any, key string) (any, bool) {
	parts := strings.Split(key, ".")
	var node any = cv
	for _, part := range parts {
		m, ok := node.(map[string]any)
		if !ok {
			return nil, false
		}
		node, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return node, true
}

// cloneCV returns a deep copy of the nested maps of cv. Leaf values are shared.
func cloneCV(cv map[string]any) map[string]any {
	out := make(map[string]any, len(cv))
	for key, value := range cv {
		if nested, ok := value.(map[string]any); ok {
			out[key] = cloneCV(nested)
			continue
		}
		out[key] = value
	}
	return out
}
