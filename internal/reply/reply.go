// Package reply extracts and validates the structured replies produced by the
// generative service against a field schema.
package reply

import (
	"fmt"

	"github.com/spigell/cv-wizard/internal/fields"
)

// Action is the state-machine signal carried by a reply.
type Action string

const (
	ActionAsk         Action = "ASK"
	ActionClarify     Action = "CLARIFY"
	ActionSaveAndNext Action = "SAVE_AND_NEXT"
	ActionFinish      Action = "FINISH"
)

// Valid reports whether a is one of the known actions.
func (a Action) Valid() bool {
	switch a {
	case ActionAsk, ActionClarify, ActionSaveAndNext, ActionFinish:
		return true
	default:
		return false
	}
}

// Save carries the value to commit on SAVE_AND_NEXT.
type Save struct {
	Key   string `json:"key" mapstructure:"key"`
	Value any    `json:"value" mapstructure:"value"`
}

// Progress is the assistant's view of how far the conversation is.
type Progress struct {
	Step  int `json:"step"`
	Total int `json:"total"`
}

// NormalizationReview tells the UI that a saved answer was adjusted.
type NormalizationReview struct {
	Hint       string  `json:"hint,omitempty" mapstructure:"hint"`
	Original   string  `json:"original,omitempty" mapstructure:"original"`
	Value      string  `json:"normalizedValue" mapstructure:"normalizedValue"`
	Confidence float64 `json:"confidence" mapstructure:"confidence"`
	Warning    string  `json:"warning,omitempty" mapstructure:"warning"`
}

// Reply is a validated assistant reply.
type Reply struct {
	SpeakText           string               `json:"speakText"`
	DisplayText         string               `json:"displayText"`
	AnswerKey           string               `json:"answerKey"`
	InputKind           fields.InputKind     `json:"inputKind"`
	Examples            []string             `json:"examples"`
	Validation          *fields.Validation   `json:"validation,omitempty"`
	NormalizationReview *NormalizationReview `json:"normalizationReview,omitempty"`
	NextAction          Action               `json:"nextAction"`
	Save                *Save                `json:"save,omitempty"`
	Progress            *Progress            `json:"progress,omitempty"`
	DebugReason         map[string]any       `json:"debugReason,omitempty"`
}

// Reason is the machine-readable cause of a ContractViolation.
type Reason string

const (
	ReasonSpeakTextMissing    Reason = "speakText_missing"
	ReasonAnswerKeyMissing    Reason = "answerKey_missing"
	ReasonAnswerKeyNotAllowed Reason = "answerKey_not_allowed"
	ReasonSaveMissing         Reason = "save_missing"
	ReasonSaveKeyNotAllowed   Reason = "saveKey_not_allowed"
	ReasonInputTypeMismatch   Reason = "inputType_mismatch"
)

// ContractViolation reports a parseable reply that is unsafe to act on.
type ContractViolation struct {
	Reason Reason
	Detail string
}

func (v *ContractViolation) Error() string {
	if v.Detail == "" {
		return fmt.Sprintf("reply contract violation: %s", v.Reason)
	}
	return fmt.Sprintf("reply contract violation: %s: %s", v.Reason, v.Detail)
}

func violation(reason Reason, format string, args ...any) *ContractViolation {
	return &ContractViolation{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}
