package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// MaskingType selects the transform applied to a visible field.
type MaskingType string

// AccessLevel gates whether a field appears in the output at all.
type AccessLevel string

const (
	// MaskNone passes the value through unchanged.
	MaskNone MaskingType = "NONE"
	// MaskHidden replaces the value with a fixed redaction literal.
	MaskHidden MaskingType = "HIDDEN"
	// MaskPartial replaces pattern positions, or all but the last four characters.
	MaskPartial MaskingType = "PARTIAL_MASK"
	// MaskHash replaces the value with a deterministic hash token.
	MaskHash MaskingType = "HASH_MASK"
	// MaskAnonymize replaces the value with a field-name-aware pseudonym.
	MaskAnonymize MaskingType = "ANONYMIZE"
	// MaskAggregate replaces numeric values with a bucket label.
	MaskAggregate MaskingType = "AGGREGATE"

	// AccessFull exposes the field unmasked.
	AccessFull AccessLevel = "FULL_ACCESS"
	// AccessMasked exposes the field through its masking transform.
	AccessMasked AccessLevel = "MASKED_ACCESS"
	// AccessHidden drops the field from the output entirely.
	AccessHidden AccessLevel = "HIDDEN_ACCESS"
)

// Valid returns true if the MaskingType is known.
func (m MaskingType) Valid() bool {
	switch m {
	case MaskNone, MaskHidden, MaskPartial, MaskHash, MaskAnonymize, MaskAggregate:
		return true
	}
	return false
}

// Valid returns true if the AccessLevel is known.
func (a AccessLevel) Valid() bool {
	return a == AccessFull || a == AccessMasked || a == AccessHidden
}

// MaskingRule describes the treatment of a single field for a (role, reportType) pair.
type MaskingRule struct {
	FieldName      string      `json:"fieldName"`
	MaskingType    MaskingType `json:"maskingType"`
	AccessLevel    AccessLevel `json:"accessLevel"`
	MaskingPattern string      `json:"maskingPattern,omitempty"`
	Enabled        bool        `json:"enabled"`
}

// RuleSet is a compiled collection of masking rules keyed by field name,
// resolved for one (role, reportType) pair.
type RuleSet struct {
	Role       string                 `json:"role"`
	ReportType string                 `json:"reportType"`
	Rules      map[string]MaskingRule `json:"rules"`
}

// Empty reports whether the set carries no rules. An empty set is never a
// usable default; resolution treats it as a hard failure.
func (rs RuleSet) Empty() bool {
	return len(rs.Rules) == 0
}

// RuleFor returns the rule for a field, if any.
func (rs RuleSet) RuleFor(field string) (MaskingRule, bool) {
	r, ok := rs.Rules[field]
	return r, ok
}

// NewRuleSet indexes a rule list by field name. Later duplicates win.
func NewRuleSet(role, reportType string, rules []MaskingRule) RuleSet {
	indexed := make(map[string]MaskingRule, len(rules))
	for _, r := range rules {
		indexed[r.FieldName] = r
	}
	return RuleSet{Role: role, ReportType: reportType, Rules: indexed}
}

// ParseRuleStrings decodes the Protocol-Mapper wire shape: each entry is
// "<fieldName>:<maskingType>:<accessLevel>:<enabled>". Entries that do not
// decode to a known type and level are skipped rather than failing the batch;
// a missing enabled segment defaults to true.
func ParseRuleStrings(entries []string) []MaskingRule {
	rules := make([]MaskingRule, 0, len(entries))
	for _, entry := range entries {
		parts := strings.Split(entry, ":")
		if len(parts) < 3 {
			continue
		}
		rule := MaskingRule{
			FieldName:   strings.TrimSpace(parts[0]),
			MaskingType: MaskingType(strings.ToUpper(strings.TrimSpace(parts[1]))),
			AccessLevel: AccessLevel(strings.ToUpper(strings.TrimSpace(parts[2]))),
			Enabled:     true,
		}
		if len(parts) >= 4 {
			rule.Enabled = strings.EqualFold(strings.TrimSpace(parts[3]), "true")
		}
		if rule.FieldName == "" || !rule.MaskingType.Valid() || !rule.AccessLevel.Valid() {
			continue
		}
		rules = append(rules, rule)
	}
	return rules
}

// legacyRule is the object wire shape carried by older tokens.
type legacyRule struct {
	MaskingType    MaskingType `json:"maskingType"`
	AccessLevel    AccessLevel `json:"accessLevel"`
	MaskingPattern string      `json:"maskingPattern,omitempty"`
	Enabled        *bool       `json:"enabled,omitempty"`
}

// ParseRuleObject decodes the legacy wire shape: a JSON object mapping field
// name to rule attributes. Enabled defaults to true when omitted.
func ParseRuleObject(raw json.RawMessage) ([]MaskingRule, error) {
	var byField map[string]legacyRule
	if err := json.Unmarshal(raw, &byField); err != nil {
		return nil, fmt.Errorf("decode legacy masking rules: %w", err)
	}
	rules := make([]MaskingRule, 0, len(byField))
	for field, lr := range byField {
		rule := MaskingRule{
			FieldName:      field,
			MaskingType:    MaskingType(strings.ToUpper(string(lr.MaskingType))),
			AccessLevel:    AccessLevel(strings.ToUpper(string(lr.AccessLevel))),
			MaskingPattern: lr.MaskingPattern,
			Enabled:        lr.Enabled == nil || *lr.Enabled,
		}
		if rule.MaskingType == "" {
			rule.MaskingType = MaskNone
		}
		if rule.AccessLevel == "" {
			rule.AccessLevel = AccessFull
		}
		if !rule.MaskingType.Valid() || !rule.AccessLevel.Valid() {
			continue
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// EncodeRuleStrings renders rules back to the Protocol-Mapper wire shape, the
// representation the identity provider stores in role attributes.
func EncodeRuleStrings(rules []MaskingRule) []string {
	out := make([]string, 0, len(rules))
	for _, r := range rules {
		out = append(out, fmt.Sprintf("%s:%s:%s:%t", r.FieldName, r.MaskingType, r.AccessLevel, r.Enabled))
	}
	return out
}
