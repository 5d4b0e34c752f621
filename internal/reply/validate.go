package reply

import (
	"math"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/spigell/cv-wizard/internal/fields"
)

const (
	maxExamples  = 12
	maxStep      = 999
	maxTotal     = 999
	minTotal     = 1
	defaultInput = fields.InputText
)

// Validate coerces obj into a Reply and checks it against schema. Cosmetic
// problems are repaired or dropped; an unknown key or a wrong input kind is
// reported as a *ContractViolation.
func Validate(obj map[string]any, schema *fields.Schema) (*Reply, error) {
	speak := stringField(obj["speakText"])
	if speak == "" {
		return nil, violation(ReasonSpeakTextMissing, "speakText is empty or absent")
	}

	r := &Reply{
		SpeakText:   speak,
		DisplayText: stringField(obj["displayText"]),
		AnswerKey:   stringField(obj["answerKey"]),
		InputKind:   inputKindField(obj["inputKind"]),
		Examples:    examplesField(obj["examples"]),
		NextAction:  actionField(obj["nextAction"]),
	}
	if r.DisplayText == "" {
		r.DisplayText = r.SpeakText
	}

	r.Validation = validationField(obj["validation"])
	r.NormalizationReview = reviewField(obj["normalizationReview"])
	r.Save = saveField(obj["save"])
	r.Progress = progressField(obj["progress"])
	if debug, ok := obj["debugReason"].(map[string]any); ok {
		r.DebugReason = debug
	}

	if err := checkReferences(r, schema); err != nil {
		return nil, err
	}

	return r, nil
}

func checkReferences(r *Reply, schema *fields.Schema) error {
	if r.NextAction == ActionFinish {
		return nil
	}

	if r.AnswerKey == "" {
		return violation(ReasonAnswerKeyMissing, "nextAction %s requires answerKey", r.NextAction)
	}
	if !schema.Allows(r.AnswerKey) {
		return violation(ReasonAnswerKeyNotAllowed, "answerKey %q is not in the schema", r.AnswerKey)
	}

	if r.NextAction == ActionSaveAndNext {
		if r.Save == nil || r.Save.Key == "" || r.Save.Value == nil {
			return violation(ReasonSaveMissing, "SAVE_AND_NEXT requires save.key and save.value")
		}
		if !schema.Allows(r.Save.Key) {
			return violation(ReasonSaveKeyNotAllowed, "save.key %q is not in the schema", r.Save.Key)
		}
	}

	if rule, ok := schema.Rule(r.AnswerKey); ok && rule.InputKind != "" && rule.InputKind != r.InputKind {
		return violation(ReasonInputTypeMismatch, "answerKey %q expects %s, reply says %s", r.AnswerKey, rule.InputKind, r.InputKind)
	}

	return nil
}

func stringField(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

func inputKindField(v any) fields.InputKind {
	kind := fields.InputKind(stringField(v))
	if !kind.Valid() {
		return defaultInput
	}
	return kind
}

func actionField(v any) Action {
	action := Action(stringField(v))
	if !action.Valid() {
		return ActionAsk
	}
	return action
}

func examplesField(v any) []string {
	examples := make([]string, 0)

	var items []any
	switch typed := v.(type) {
	case []any:
		items = typed
	case []string:
		for _, s := range typed {
			items = append(items, s)
		}
	default:
		return examples
	}

	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			continue
		}
		examples = append(examples, s)
		if len(examples) == maxExamples {
			break
		}
	}
	return examples
}

// decodeNested decodes a nested plain object into out. Type mismatches fail the
// whole object.
func decodeNested(v any, out any) bool {
	obj, ok := v.(map[string]any)
	if !ok {
		return false
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  out,
		TagName: "mapstructure",
	})
	if err != nil {
		return false
	}
	return decoder.Decode(obj) == nil
}

func validationField(v any) *fields.Validation {
	var out fields.Validation
	if !decodeNested(v, &out) {
		return nil
	}
	out.Pattern = strings.TrimSpace(out.Pattern)
	return &out
}

func reviewField(v any) *NormalizationReview {
	var out NormalizationReview
	if !decodeNested(v, &out) {
		return nil
	}
	return &out
}

func saveField(v any) *Save {
	var out Save
	if !decodeNested(v, &out) {
		return nil
	}
	out.Key = strings.TrimSpace(out.Key)
	return &out
}

func progressField(v any) *Progress {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil
	}

	step, ok := finiteNumber(obj["step"])
	if !ok {
		return nil
	}
	total, ok := finiteNumber(obj["total"])
	if !ok {
		return nil
	}

	return &Progress{
		Step:  int(clamp(step, 0, maxStep)),
		Total: int(clamp(total, minTotal, maxTotal)),
	}
}

func finiteNumber(v any) (float64, bool) {
	var f float64
	switch typed := v.(type) {
	case float64:
		f = typed
	case float32:
		f = float64(typed)
	case int:
		f = float64(typed)
	case int64:
		f = float64(typed)
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
