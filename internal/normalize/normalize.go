// Package normalize canonicalizes collected answers per semantic category.
//
// Normalization never fails: input that cannot be interpreted is returned
// unchanged, optionally with a warning, so it can never block a save.
package normalize

import (
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/spigell/cv-wizard/internal/fields"
)

// Result is the outcome of normalizing one value.
type Result struct {
	Value   string
	Changed bool
	Warning string
}

var (
	emailShape  = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	numberToken = regexp.MustCompile(`\d+(?:[.,]\d+)?`)
	bareYear    = regexp.MustCompile(`^\d{4}$`)
	monthYear   = regexp.MustCompile(`^(\d{4}[-/.]\d{1,2}|\d{1,2}[-/.]\d{4})$`)
)

// dateLayouts are tried in order; numeric forms are read day-first.
var dateLayouts = []string{
	"2006-01-02",
	"2006-1-2",
	"2006/01/02",
	"2006/1/2",
	"02.01.2006",
	"2.1.2006",
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"2-1-2006",
	"January 2, 2006",
	"January 2 2006",
	"2 January 2006",
	"Jan 2, 2006",
	"Jan 2 2006",
	"2 Jan 2006",
}

var openEndedDates = map[string]struct{}{
	"present": {},
	"current": {},
	"now":     {},
	"ongoing": {},
}

// Normalize returns the canonical form of raw for semantic.
func Normalize(semantic fields.Semantic, raw string) Result {
	switch semantic {
	case fields.SemanticPhone:
		return phone(raw)
	case fields.SemanticEmail:
		return email(raw)
	case fields.SemanticDate:
		return date(raw)
	case fields.SemanticYears:
		return years(raw)
	default:
		return result(raw, collapse(raw), "")
	}
}

func result(raw, value, warning string) Result {
	return Result{Value: value, Changed: value != raw, Warning: warning}
}

func unchanged(raw, warning string) Result {
	return Result{Value: raw, Warning: warning}
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func phone(raw string) Result {
	trimmed := strings.TrimSpace(raw)

	var b strings.Builder
	if strings.HasPrefix(trimmed, "+") {
		b.WriteByte('+')
	}
	digits := 0
	for _, r := range trimmed {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
			digits++
		}
	}

	if digits == 0 {
		return unchanged(raw, "phone number contains no digits")
	}
	return result(raw, b.String(), "")
}

func email(raw string) Result {
	value := strings.ToLower(strings.TrimSpace(raw))
	if !emailShape.MatchString(value) {
		return unchanged(raw, "email address does not look like name@domain.tld")
	}
	return result(raw, value, "")
}

func date(raw string) Result {
	value := collapse(raw)
	if value == "" {
		return unchanged(raw, "")
	}

	if bareYear.MatchString(value) || monthYear.MatchString(value) {
		return result(raw, value, "")
	}
	if _, ok := openEndedDates[strings.ToLower(value)]; ok {
		return result(raw, value, "")
	}

	for _, layout := range dateLayouts {
		parsed, err := time.Parse(layout, titleMonth(value))
		if err == nil {
			return result(raw, parsed.Format("2006-01-02"), "")
		}
	}

	return unchanged(raw, "could not read the date; expected YYYY-MM-DD")
}

// titleMonth upper-cases the first letter of every word so that month names
// typed in lower case still match the English layouts.
func titleMonth(s string) string {
	runes := []rune(s)
	start := true
	for i, r := range runes {
		if unicode.IsLetter(r) {
			if start {
				runes[i] = unicode.ToUpper(r)
			} else {
				runes[i] = unicode.ToLower(r)
			}
			start = false
			continue
		}
		start = true
	}
	return string(runes)
}

func years(raw string) Result {
	token := numberToken.FindString(raw)
	if token == "" {
		return unchanged(raw, "could not find a number of years")
	}
	return result(raw, strings.ReplaceAll(token, ",", "."), "")
}
