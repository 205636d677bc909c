// Package masking applies field-level masking rules to extracted records.
// All transforms are pure and deterministic so repeated runs of a report
// produce identical artifacts.
package masking

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/caseworks/report-engine/internal/domain/model"
)

// hiddenLiteral replaces values under the HIDDEN transform.
const hiddenLiteral = "***HIDDEN***"

// Apply projects a record through a rule set:
//   - fields whose rule carries HIDDEN_ACCESS are dropped from the output,
//   - other ruled fields are mapped through their masking type,
//   - fields without a rule and nil values pass through unchanged,
//   - disabled rules are ignored entirely.
func Apply(rec model.Record, rules model.RuleSet) model.Record {
	out := make(model.Record, len(rec))
	for field, value := range rec {
		rule, ok := rules.RuleFor(field)
		if !ok || !rule.Enabled {
			out[field] = value
			continue
		}
		if rule.AccessLevel == model.AccessHidden {
			continue
		}
		if value == nil {
			out[field] = nil
			continue
		}
		out[field] = maskValue(field, value, rule)
	}
	return out
}

// maskValue applies one rule to one non-nil value.
func maskValue(field string, value any, rule model.MaskingRule) any {
	switch rule.MaskingType {
	case model.MaskNone:
		return value
	case model.MaskHidden:
		return hiddenLiteral
	case model.MaskPartial:
		return partialMask(stringify(value), rule.MaskingPattern)
	case model.MaskHash:
		return fmt.Sprintf("HASH_%d", absHash(StringHash(stringify(value))))
	case model.MaskAnonymize:
		return anonymize(field, stringify(value))
	case model.MaskAggregate:
		return aggregate(field, value)
	default:
		return value
	}
}

// partialMask blanks the positions the pattern marks with 'X'. Without a
// pattern it retains the last four characters behind a "***" prefix.
func partialMask(value, pattern string) string {
	if pattern == "" {
		if len(value) <= 4 {
			return "***" + value
		}
		return "***" + value[len(value)-4:]
	}

	runes := []rune(value)
	patternRunes := []rune(pattern)
	var b strings.Builder
	b.Grow(len(runes))
	for i, r := range runes {
		if i < len(patternRunes) && patternRunes[i] == 'X' {
			b.WriteRune('*')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// anonymize replaces a value with a field-name-aware pseudonym. Email and
// name checks run before the id check because substrings like "provider"
// contain "id".
func anonymize(field, value string) string {
	h := absHash(StringHash(value))
	lower := strings.ToLower(field)
	switch {
	case strings.Contains(lower, "email"):
		return fmt.Sprintf("user%d@company.com", h%1000)
	case strings.Contains(lower, "name"):
		return fmt.Sprintf("User %d", h%1000)
	case strings.Contains(lower, "id"):
		return fmt.Sprintf("USER_%d", h%10000)
	default:
		return fmt.Sprintf("ANONYMIZED_%d", h%1000)
	}
}

// aggregate buckets numeric values by field-name prefix; anything else
// collapses to the opaque aggregate marker.
func aggregate(field string, value any) string {
	n, ok := asFloat(value)
	if !ok {
		return "AGGREGATED"
	}

	lower := strings.ToLower(field)
	switch {
	case strings.Contains(lower, "hour"):
		switch {
		case n < 20:
			return "0-20 hours"
		case n < 40:
			return "20-40 hours"
		default:
			return "40+ hours"
		}
	case strings.Contains(lower, "amount") || strings.Contains(lower, "pay"):
		switch {
		case n < 1000:
			return "$0-1000"
		case n < 5000:
			return "$1000-5000"
		default:
			return "$5000+"
		}
	default:
		return "AGGREGATED"
	}
}

// StringHash is the deterministic 31-based rolling hash shared by the hash
// and anonymize transforms. Overflow wraps in int32 so results are stable
// across platforms.
func StringHash(s string) int32 {
	var h int32
	for _, r := range s {
		h = 31*h + int32(r)
	}
	return h
}

// absHash widens to int64 before negating so MinInt32 stays representable.
func absHash(h int32) int64 {
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return v
}

// stringify renders a value the way the transforms hash and slice it.
// Floats drop trailing zeros so 12.0 and 12 mask identically.
func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// asFloat widens any numeric JSON or database scalar to float64.
func asFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
