// Package rules implements the rule-based auto-categorization and
// tagging engine applied to synced transactions.
package rules

import (
	"regexp"
	"strings"

	"finagg/internal/logging"
	"finagg/internal/models"
)

// Matches reports whether a rule matches the given text. Disabled
// rules and empty text never match. Matching is case-insensitive for
// every match type; regex patterns are evaluated with the (?i) flag
// against the original pattern. An invalid regex never fails the
// caller: it evaluates to false and is logged as a warning.
func Matches(r models.Rule, text string) bool {
	return matches(r, text, logging.GetLogger())
}

func matches(r models.Rule, text string, logger logging.Logger) bool {
	if !r.IsEnabled() || text == "" {
		return false
	}

	pattern := strings.ToLower(r.Pattern)
	lowered := strings.ToLower(text)

	switch r.EffectiveMatchType() {
	case models.MatchExact:
		return lowered == pattern
	case models.MatchStartsWith:
		return strings.HasPrefix(lowered, pattern)
	case models.MatchEndsWith:
		return strings.HasSuffix(lowered, pattern)
	case models.MatchRegex:
		re, err := regexp.Compile("(?i)" + r.Pattern)
		if err != nil {
			logger.WithError(err).Warn("Invalid regex pattern in rule",
				logging.Field{Key: logging.FieldPattern, Value: r.Pattern})
			return false
		}
		return re.MatchString(text)
	default:
		return strings.Contains(lowered, pattern)
	}
}
