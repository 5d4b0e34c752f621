package fields

import (
	"reflect"
	"strings"
	"testing"
)

func boolPtr(v bool) *bool { return &v }

func intPtr(v int) *int { return &v }

func TestInferSemantic(t *testing.T) {
	t.Parallel()

	tests := []struct {
		key    string
		expect Semantic
	}{
		{key: "personal.phone", expect: SemanticPhone},
		{key: "personal.telefonNo", expect: SemanticPhone},
		{key: "contact.gsm", expect: SemanticPhone},
		{key: "personal.email", expect: SemanticEmail},
		{key: "personal.linkedinUrl", expect: SemanticURL},
		{key: "personal.birthDate", expect: SemanticDate},
		{key: "profile.totalYears", expect: SemanticYears},
		{key: "experience.1.duration", expect: SemanticYears},
		{key: "experience.0.companyName", expect: SemanticCompany},
		{key: "experience.0.title", expect: SemanticRole},
		{key: "personal.city", expect: SemanticCity},
		{key: "personal.country", expect: SemanticCountry},
		{key: "personal.fullName", expect: SemanticFullName},
		{key: "profile.summary", expect: SemanticFreeText},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Parallel()
			if got := InferSemantic(tt.key); got != tt.expect {
				t.Fatalf("expected %q, got %q", tt.expect, got)
			}
		})
	}
}

func TestDeriveSchemaFiltersAndDeduplicates(t *testing.T) {
	questions := []Question{
		{Key: "personal.fullName", Label: "Your name?"},
		{Key: "   ", Label: "no key"},
		{Key: "personal.birthDate", Label: "Birth date?", Voice: boolPtr(false)},
		{Key: "personal.fullName", Label: "Duplicate"},
		{Key: "profile.summary", Label: "About you", Type: "longtext", Chat: boolPtr(false)},
		{Key: "preferences.workMode", Type: "choice", Examples: []string{"remote", "hybrid"}},
	}

	chat := DeriveSchema(questions, ChannelChat)
	expectKeys := []string{"personal.fullName", "personal.birthDate", "preferences.workMode"}
	if got := chat.AllowedKeys(); !reflect.DeepEqual(got, expectKeys) {
		t.Fatalf("unexpected chat keys: %v", got)
	}

	rule, ok := chat.Rule("personal.fullName")
	if !ok {
		t.Fatalf("expected rule for personal.fullName")
	}
	if rule.Label != "Your name?" {
		t.Fatalf("expected first definition to win, got label %q", rule.Label)
	}

	voice := DeriveSchema(questions, ChannelVoice)
	expectKeys = []string{"personal.fullName", "profile.summary", "preferences.workMode"}
	if got := voice.AllowedKeys(); !reflect.DeepEqual(got, expectKeys) {
		t.Fatalf("unexpected voice keys: %v", got)
	}

	for _, key := range voice.AllowedKeys() {
		if _, ok := voice.Rule(key); !ok {
			t.Fatalf("allowed key %q has no rule", key)
		}
	}
	for key := range voice.Hints() {
		if !voice.Allows(key) {
			t.Fatalf("hint references unknown key %q", key)
		}
	}
}

func TestDeriveSchemaDeterministic(t *testing.T) {
	questions, err := DefaultQuestions()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	first := DeriveSchema(questions, ChannelChat)
	for i := 0; i < 5; i++ {
		again := DeriveSchema(questions, ChannelChat)
		if !reflect.DeepEqual(first.AllowedKeys(), again.AllowedKeys()) {
			t.Fatalf("allowed keys order changed between calls")
		}
		if !reflect.DeepEqual(first.Rules(), again.Rules()) {
			t.Fatalf("rules changed between calls")
		}
	}

	if first.Len() < 25 {
		t.Fatalf("expected at least 25 chat fields, got %d", first.Len())
	}
}

func TestDeriveSchemaEmpty(t *testing.T) {
	schema := DeriveSchema(nil, ChannelChat)
	if schema.Len() != 0 || len(schema.AllowedKeys()) != 0 {
		t.Fatalf("expected empty schema")
	}
	if schema.Allows("personal.email") {
		t.Fatalf("empty schema must not allow keys")
	}
}

func TestResolveInputKind(t *testing.T) {
	questions := []Question{
		{Key: "profile.summary", Type: "longtext"},
		{Key: "preferences.workMode", Type: "choice"},
		{Key: "profile.totalYears"},
		{Key: "experience.0.startDate"},
		{Key: "personal.city", Type: "number"},
		{Key: "profile.yearsNote", Type: "textarea"},
	}
	schema := DeriveSchema(questions, ChannelChat)

	expect := map[string]InputKind{
		"profile.summary":        InputTextarea,
		"preferences.workMode":   InputSelect,
		"profile.totalYears":     InputNumber,
		"experience.0.startDate": InputDate,
		"personal.city":          InputText,
		"profile.yearsNote":      InputTextarea,
	}
	for key, kind := range expect {
		rule, _ := schema.Rule(key)
		if rule.InputKind != kind {
			t.Fatalf("%s: expected %q, got %q", key, kind, rule.InputKind)
		}
	}
}

func TestExplicitSemanticWins(t *testing.T) {
	schema := DeriveSchema([]Question{
		{Key: "certifications.0.name", Semantic: "freeText"},
		{Key: "contact.value", Semantic: "phone"},
		{Key: "personal.fullName", Semantic: "bogus"},
	}, ChannelChat)

	rule, _ := schema.Rule("certifications.0.name")
	if rule.Semantic != SemanticFreeText {
		t.Fatalf("expected explicit freeText, got %q", rule.Semantic)
	}
	rule, _ = schema.Rule("contact.value")
	if rule.Semantic != SemanticPhone || rule.NormalizeHint != "digits and + only; no letters" {
		t.Fatalf("unexpected phone rule: %+v", rule)
	}
	rule, _ = schema.Rule("personal.fullName")
	if rule.Semantic != SemanticFullName {
		t.Fatalf("expected inferred fullName for unknown explicit value, got %q", rule.Semantic)
	}
}

func TestHints(t *testing.T) {
	schema := DeriveSchema([]Question{
		{Key: "personal.phone", Label: "Phone?", Examples: []string{"1", "2", "3", "4", "5"}},
		{Key: "profile.summary"},
		{Key: "profile.about", Examples: []string{"short"}},
	}, ChannelChat)

	hints := schema.Hints()
	expect := "Phone? | digits and + only; no letters | e.g. 1, 2, 3, 4"
	if hints["personal.phone"] != expect {
		t.Fatalf("unexpected phone hint: %q", hints["personal.phone"])
	}
	if _, ok := hints["profile.summary"]; ok {
		t.Fatalf("expected no hint when label, normalize hint and examples are empty")
	}
	if hints["profile.about"] != "e.g. short" {
		t.Fatalf("unexpected about hint: %q", hints["profile.about"])
	}
}

func TestRuleLimitsExamplesAndValidation(t *testing.T) {
	examples := make([]string, 0, 12)
	for i := 0; i < 12; i++ {
		examples = append(examples, strings.Repeat("x", i+1))
	}
	schema := DeriveSchema([]Question{
		{Key: "profile.summary", Examples: examples, Required: true, MaxLength: intPtr(100)},
		{Key: "profile.other"},
	}, ChannelChat)

	rule, _ := schema.Rule("profile.summary")
	if len(rule.Examples) != 8 {
		t.Fatalf("expected 8 examples, got %d", len(rule.Examples))
	}
	if rule.Validation == nil || !rule.Validation.Required || *rule.Validation.MaxLength != 100 {
		t.Fatalf("unexpected validation: %+v", rule.Validation)
	}

	rule, _ = schema.Rule("profile.other")
	if rule.Validation != nil {
		t.Fatalf("expected no validation block, got %+v", rule.Validation)
	}
}

func TestParseQuestionsSequence(t *testing.T) {
	data := []byte("- key: personal.email\n  label: Email?\n  voice: false\n- key: personal.phone\n")
	questions, err := ParseQuestions(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(questions) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(questions))
	}
	if questions[0].EnabledFor(ChannelVoice) {
		t.Fatalf("expected email to be disabled for voice")
	}
	if !questions[1].EnabledFor(ChannelVoice) || !questions[1].EnabledFor(ChannelChat) {
		t.Fatalf("expected phone to be enabled everywhere")
	}
}

func TestParseChannel(t *testing.T) {
	if ParseChannel(" Voice ") != ChannelVoice {
		t.Fatalf("expected voice channel")
	}
	if ParseChannel("unknown") != ChannelChat || ParseChannel("") != ChannelChat {
		t.Fatalf("expected chat as default channel")
	}
}

func TestValidationCheck(t *testing.T) {
	t.Parallel()

	v := Validation{Required: true, MinLength: intPtr(2), MaxLength: intPtr(5), Pattern: `^[a-z]+$`}
	tests := []struct {
		value string
		ok    bool
	}{
		{value: "abc", ok: true},
		{value: "  ", ok: false},
		{value: "a", ok: false},
		{value: "abcdef", ok: false},
		{value: "ab1", ok: false},
	}
	for _, tt := range tests {
		if err := v.Check(tt.value); (err == nil) != tt.ok {
			t.Fatalf("%q: unexpected result %v", tt.value, err)
		}
	}

	if err := (Validation{Pattern: "("}).Check("anything"); err != nil {
		t.Fatalf("expected invalid pattern to be ignored, got %v", err)
	}
	if err := (Validation{}).Check(""); err != nil {
		t.Fatalf("expected optional empty answer to pass, got %v", err)
	}
}
