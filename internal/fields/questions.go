package fields

import (
	"fmt"
	"os"
	"strings"

	_ "embed"

	"gopkg.in/yaml.v3"
)

//go:embed questions.yaml
var defaultQuestions []byte

// Question is one entry of the master list of collectible fields.
type Question struct {
	Key       string   `yaml:"key" json:"key"`
	Label     string   `yaml:"label" json:"label,omitempty"`
	Type      string   `yaml:"type" json:"type,omitempty"`
	Semantic  string   `yaml:"semantic" json:"semantic,omitempty"`
	Examples  []string `yaml:"examples" json:"examples,omitempty"`
	Required  bool     `yaml:"required" json:"required,omitempty"`
	MinLength *int     `yaml:"minLength" json:"minLength,omitempty"`
	MaxLength *int     `yaml:"maxLength" json:"maxLength,omitempty"`
	Pattern   string   `yaml:"pattern" json:"pattern,omitempty"`

	// Chat and Voice toggle the question per channel; nil means enabled.
	Chat  *bool `yaml:"chat" json:"chat,omitempty"`
	Voice *bool `yaml:"voice" json:"voice,omitempty"`
}

// EnabledFor reports whether the question is offered in channel.
func (q Question) EnabledFor(channel Channel) bool {
	flag := q.Chat
	if channel == ChannelVoice {
		flag = q.Voice
	}
	return flag == nil || *flag
}

type questionFile struct {
	Questions []Question `yaml:"questions"`
}

// ParseQuestions decodes a YAML question list. Both a top-level sequence and a
// document with a "questions" key are accepted.
func ParseQuestions(data []byte) ([]Question, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, nil
	}

	if strings.HasPrefix(trimmed, "-") {
		var questions []Question
		if err := yaml.Unmarshal(data, &questions); err != nil {
			return nil, fmt.Errorf("decode question list: %w", err)
		}
		return questions, nil
	}

	var file questionFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode question list: %w", err)
	}
	return file.Questions, nil
}

// LoadQuestions reads a question list from path.
func LoadQuestions(path string) ([]Question, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading question list %q: %w", path, err)
	}
	return ParseQuestions(data)
}

// DefaultQuestions returns the built-in CV question list.
func DefaultQuestions() ([]Question, error) {
	return ParseQuestions(defaultQuestions)
}
