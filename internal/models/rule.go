// Package models provides the data structures used throughout the application.
package models

import "strings"

// MatchType selects the algorithm used to compare a rule's pattern
// against a transaction description.
type MatchType string

// Supported match types. Contains is the default and the fallback for
// unrecognized values in the rules file.
const (
	MatchContains   MatchType = "contains"
	MatchExact      MatchType = "exact"
	MatchStartsWith MatchType = "starts_with"
	MatchEndsWith   MatchType = "ends_with"
	MatchRegex      MatchType = "regex"
)

// ParseMatchType parses a match type string from the rules file or CLI.
// Unknown values fall back to MatchContains; the second return value
// reports whether the input was recognized so callers can log.
func ParseMatchType(s string) (MatchType, bool) {
	switch MatchType(strings.ToLower(strings.TrimSpace(s))) {
	case MatchContains:
		return MatchContains, true
	case MatchExact:
		return MatchExact, true
	case MatchStartsWith:
		return MatchStartsWith, true
	case MatchEndsWith:
		return MatchEndsWith, true
	case MatchRegex:
		return MatchRegex, true
	case "":
		// Absent means default, not unknown.
		return MatchContains, true
	default:
		return MatchContains, false
	}
}

// Rule is a single pattern-match specification with category/tag
// effects. Rules are treated as immutable value objects while the
// engine applies them.
type Rule struct {
	Pattern     string    `yaml:"pattern"`
	MatchType   MatchType `yaml:"match_type,omitempty"`
	Category    string    `yaml:"category,omitempty"`
	Tags        []string  `yaml:"tags,omitempty,flow"`
	RemoveTags  []string  `yaml:"remove_tags,omitempty,flow"`
	Description string    `yaml:"description,omitempty"`
	// Enabled is a pointer so that the default (true) can be omitted
	// from the serialized form while an explicit false round-trips.
	Enabled *bool `yaml:"enabled,omitempty"`
}

// IsEnabled reports whether the rule participates in matching.
// A nil Enabled field means enabled.
func (r Rule) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// EffectiveMatchType returns the rule's match type, defaulting to
// MatchContains when unset.
func (r Rule) EffectiveMatchType() MatchType {
	if r.MatchType == "" {
		return MatchContains
	}
	return r.MatchType
}

// Disabled returns a pointer suitable for Rule.Enabled when a rule
// should be switched off.
func Disabled() *bool {
	b := false
	return &b
}
