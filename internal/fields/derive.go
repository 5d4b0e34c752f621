package fields

import (
	"strings"
)

const (
	maxRuleExamples = 8
	maxHintExamples = 4
	hintSeparator   = " | "
)

// semanticMatchers are tested in order; the more specific categories come first
// so that e.g. "company_name" resolves to company and not fullName.
var semanticMatchers = []struct {
	semantic Semantic
	needles  []string
}{
	{SemanticPhone, []string{"phone", "telefon", "gsm", "mobile"}},
	{SemanticEmail, []string{"mail"}},
	{SemanticURL, []string{"url", "website", "linkedin", "github", "portfolio"}},
	{SemanticDate, []string{"date", "birth", "dob"}},
	{SemanticYears, []string{"year", "duration"}},
	{SemanticCompany, []string{"company", "employer", "organization", "organisation"}},
	{SemanticRole, []string{"title", "position", "role", "occupation"}},
	{SemanticCity, []string{"city", "town"}},
	{SemanticCountry, []string{"country", "nationality"}},
	{SemanticFullName, []string{"name"}},
}

var normalizeHints = map[Semantic]string{
	SemanticPhone:    "digits and + only; no letters",
	SemanticEmail:    "lowercase, no spaces, looks like name@domain.tld",
	SemanticURL:      "full link, no spaces",
	SemanticDate:     "YYYY-MM-DD; a bare year is fine",
	SemanticYears:    "a single number of years",
	SemanticCompany:  "company name only",
	SemanticRole:     "job title only, without the company",
	SemanticCity:     "city name, no abbreviations",
	SemanticCountry:  "country name, no abbreviations",
	SemanticFullName: "first and last name",
}

// InferSemantic resolves the semantic category of key from its naming pattern.
func InferSemantic(key string) Semantic {
	lower := strings.ToLower(key)
	for _, matcher := range semanticMatchers {
		for _, needle := range matcher.needles {
			if strings.Contains(lower, needle) {
				return matcher.semantic
			}
		}
	}
	return SemanticFreeText
}

// NormalizeHint returns the short instruction tied to a semantic category.
func NormalizeHint(semantic Semantic) string {
	return normalizeHints[semantic]
}

// DeriveSchema builds the schema of fields enabled for channel. Questions without
// a key are skipped and the first definition of a duplicated key wins.
func DeriveSchema(questions []Question, channel Channel) *Schema {
	schema := &Schema{
		keys:  make([]string, 0, len(questions)),
		rules: make(map[string]Rule, len(questions)),
		hints: make(map[string]string, len(questions)),
	}

	for _, q := range questions {
		key := strings.TrimSpace(q.Key)
		if key == "" || !q.EnabledFor(channel) {
			continue
		}
		if _, seen := schema.rules[key]; seen {
			continue
		}

		rule := buildRule(key, q)
		schema.keys = append(schema.keys, key)
		schema.rules[key] = rule

		if hint := buildHint(rule); hint != "" {
			schema.hints[key] = hint
		}
	}

	return schema
}

func buildRule(key string, q Question) Rule {
	semantic := Semantic(strings.TrimSpace(q.Semantic))
	if !semantic.Valid() {
		semantic = InferSemantic(key)
	}

	examples := make([]string, 0, len(q.Examples))
	for _, example := range q.Examples {
		example = strings.TrimSpace(example)
		if example == "" {
			continue
		}
		examples = append(examples, example)
		if len(examples) == maxRuleExamples {
			break
		}
	}

	rule := Rule{
		Key:           key,
		Label:         strings.TrimSpace(q.Label),
		InputKind:     resolveInputKind(q.Type, semantic),
		Examples:      examples,
		Semantic:      semantic,
		NormalizeHint: NormalizeHint(semantic),
	}

	validation := Validation{
		Required:  q.Required,
		MinLength: q.MinLength,
		MaxLength: q.MaxLength,
		Pattern:   strings.TrimSpace(q.Pattern),
	}
	if !validation.Empty() {
		rule.Validation = &validation
	}

	return rule
}

func resolveInputKind(declared string, semantic Semantic) InputKind {
	switch strings.ToLower(strings.TrimSpace(declared)) {
	case "textarea", "longtext", "long_text":
		return InputTextarea
	case "select", "choice":
		return InputSelect
	}

	switch semantic {
	case SemanticYears:
		return InputNumber
	case SemanticDate:
		return InputDate
	default:
		return InputText
	}
}

func buildHint(rule Rule) string {
	parts := make([]string, 0, 3)
	if rule.Label != "" {
		parts = append(parts, rule.Label)
	}
	if rule.NormalizeHint != "" {
		parts = append(parts, rule.NormalizeHint)
	}
	if len(rule.Examples) > 0 {
		examples := rule.Examples
		if len(examples) > maxHintExamples {
			examples = examples[:maxHintExamples]
		}
		parts = append(parts, "e.g. "+strings.Join(examples, ", "))
	}
	return strings.Join(parts, hintSeparator)
}
