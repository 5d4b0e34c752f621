// Package scripted provides an offline generator that walks the allowed keys in
// order. It speaks the same reply contract as the model-backed generators and
// is used for demos and end-to-end tests.
package scripted

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/cv-wizard/internal/fields"
	"github.com/spigell/cv-wizard/internal/wizard"
)

const modelName = "scripted-v1"

// stopWords end the conversation early when sent as the whole answer.
var stopWords = []string{"/done", "/stop", "stop", "done", "finish"}

type replyPayload struct {
	SpeakText   string          `json:"speakText"`
	DisplayText string          `json:"displayText"`
	AnswerKey   string          `json:"answerKey"`
	InputKind   string          `json:"inputKind"`
	Examples    []string        `json:"examples"`
	NextAction  string          `json:"nextAction"`
	Save        *savePayload    `json:"save,omitempty"`
	Progress    *progressRecord `json:"progress,omitempty"`
}

type savePayload struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type progressRecord struct {
	Step  int `json:"step"`
	Total int `json:"total"`
}

// Generator answers from the outbound context alone.
type Generator struct {
	logger *zap.Logger
}

func New(logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{logger: logger}
}

// GenerateContent decodes the wizard context in message and returns the next reply.
func (g *Generator) GenerateContent(ctx context.Context, _ string, message string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	turn, err := wizard.DecodeContext(message)
	if err != nil {
		return "", fmt.Errorf("scripted generator: %w", err)
	}

	out := next(turn)
	g.logger.Debug("scripted reply",
		zap.String("answer_key", out.AnswerKey),
		zap.String("next_action", out.NextAction),
	)

	data, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("encode scripted reply: %w", err)
	}
	return string(data), nil
}

// Model returns the fixed model name.
func (g *Generator) Model() string {
	return modelName
}

func next(turn wizard.Context) replyPayload {
	filled := slices.Clone(turn.FilledKeys)
	pending := firstUnfilled(turn.AllowedKeys, filled)
	answer, answered := lastUserAnswer(turn.History)

	if answered && slices.Contains(stopWords, strings.ToLower(answer)) {
		return finish()
	}
	if pending == "" {
		return finish()
	}
	if !answered {
		return ask(turn, pending, filled, "ASK")
	}

	filled = append(filled, pending)
	upcoming := firstUnfilled(turn.AllowedKeys, filled)
	if upcoming == "" {
		out := question(turn, pending, filled)
		out.NextAction = "SAVE_AND_NEXT"
		out.Save = &savePayload{Key: pending, Value: answer}
		out.SpeakText = "Thanks, that was the last question. Send anything to finish."
		out.DisplayText = out.SpeakText
		return out
	}

	out := ask(turn, upcoming, filled, "SAVE_AND_NEXT")
	out.Save = &savePayload{Key: pending, Value: answer}
	return out
}

func ask(turn wizard.Context, key string, filled []string, action string) replyPayload {
	out := question(turn, key, filled)
	out.NextAction = action
	return out
}

func question(turn wizard.Context, key string, filled []string) replyPayload {
	rule := turn.FieldRules[key]
	text := rule.Label
	if text == "" {
		text = fmt.Sprintf("What should go into %s?", key)
	}

	kind := rule.InputKind
	if !kind.Valid() {
		kind = fields.InputText
	}

	examples := rule.Examples
	if examples == nil {
		examples = []string{}
	}

	return replyPayload{
		SpeakText:   text,
		DisplayText: text,
		AnswerKey:   key,
		InputKind:   string(kind),
		Examples:    examples,
		Progress: &progressRecord{
			Step:  min(len(filled)+1, len(turn.AllowedKeys)),
			Total: len(turn.AllowedKeys),
		},
	}
}

func finish() replyPayload {
	text := "Thank you, your CV details are complete."
	return replyPayload{
		SpeakText:   text,
		DisplayText: text,
		InputKind:   string(fields.InputText),
		Examples:    []string{},
		NextAction:  "FINISH",
	}
}

func firstUnfilled(allowed, filled []string) string {
	for _, key := range allowed {
		if !slices.Contains(filled, key) {
			return key
		}
	}
	return ""
}

// lastUserAnswer returns the last turn when it was written by the user.
func lastUserAnswer(history []wizard.Turn) (string, bool) {
	if len(history) == 0 {
		return "", false
	}
	last := history[len(history)-1]
	if last.Role != wizard.RoleUser {
		return "", false
	}
	return strings.TrimSpace(last.Text), true
}
