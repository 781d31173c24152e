// Package rulestore persists the ordered tagging-rule list as a
// human-editable YAML document.
package rulestore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"finagg/internal/logging"
	"finagg/internal/models"

	"gopkg.in/yaml.v3"
)

// header is written at the top of every saved rules file so the format
// stays self-documenting even after programmatic edits.
const header = `# finagg tagging rules
#
# Rules are evaluated in order against each transaction description.
# The category of the first matching rule that has one wins; tags and
# remove_tags are collected across all matching rules.
#
# Fields per rule:
#   pattern      (required) text to match against the description
#   match_type   contains | exact | starts_with | ends_with | regex
#                (default: contains, matching is case-insensitive)
#   category     category to assign when the rule matches
#   tags         tags to add when the rule matches
#   remove_tags  tags to remove when the rule matches
#   description  free-form note, no effect
#   enabled      set to false to switch the rule off (default: true)
`

// Store loads and saves the rule list at a fixed path. Concurrent
// writers are last-writer-wins; callers needing safe concurrent rule
// editing must serialize externally.
type Store struct {
	Path   string
	logger logging.Logger
}

// NewStore creates a rule store for the given file path.
func NewStore(path string, logger logging.Logger) *Store {
	if logger == nil {
		logger = logging.GetLogger()
	}
	return &Store{Path: path, logger: logger}
}

// document is the on-disk shape of the rules file.
type document struct {
	Rules []ruleEntry `yaml:"rules"`
}

// ruleEntry keeps match_type as a plain string so a single bad value
// degrades to the default instead of failing the whole document.
type ruleEntry struct {
	Pattern     string   `yaml:"pattern"`
	MatchType   string   `yaml:"match_type,omitempty"`
	Category    string   `yaml:"category,omitempty"`
	Tags        []string `yaml:"tags,omitempty,flow"`
	RemoveTags  []string `yaml:"remove_tags,omitempty,flow"`
	Description string   `yaml:"description,omitempty"`
	Enabled     *bool    `yaml:"enabled,omitempty"`
}

// Load reads the rule list. A missing file yields an empty list; an
// unparseable document degrades to an empty list with an error logged;
// individual invalid entries are skipped with a warning. Load never
// fails the caller.
func (s *Store) Load() []models.Rule {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.WithError(err).Error("Failed to read rules file")
		}
		return []models.Rule{}
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		s.logger.WithError(err).WithField(logging.FieldFile, s.Path).
			Error("Failed to parse rules file, treating as empty")
		return []models.Rule{}
	}

	rules := make([]models.Rule, 0, len(doc.Rules))
	for i, entry := range doc.Rules {
		if strings.TrimSpace(entry.Pattern) == "" {
			s.logger.Warn("Skipping rule without pattern",
				logging.Field{Key: "index", Value: i})
			continue
		}

		matchType, known := models.ParseMatchType(entry.MatchType)
		if !known {
			s.logger.Warn("Unknown match type, defaulting to contains",
				logging.Field{Key: logging.FieldMatchType, Value: entry.MatchType},
				logging.Field{Key: logging.FieldPattern, Value: entry.Pattern})
		}

		rules = append(rules, models.Rule{
			Pattern:     entry.Pattern,
			MatchType:   matchType,
			Category:    entry.Category,
			Tags:        entry.Tags,
			RemoveTags:  entry.RemoveTags,
			Description: entry.Description,
			Enabled:     normalizeEnabled(entry.Enabled),
		})
	}

	return rules
}

// Save serializes the rule list in order, omitting default-valued
// optional fields to keep the file terse.
func (s *Store) Save(rules []models.Rule) error {
	doc := document{Rules: make([]ruleEntry, 0, len(rules))}
	for _, r := range rules {
		entry := ruleEntry{
			Pattern:     r.Pattern,
			Category:    r.Category,
			Tags:        r.Tags,
			RemoveTags:  r.RemoveTags,
			Description: r.Description,
			Enabled:     normalizeEnabled(r.Enabled),
		}
		if mt := r.EffectiveMatchType(); mt != models.MatchContains {
			entry.MatchType = string(mt)
		}
		doc.Rules = append(doc.Rules, entry)
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("error marshaling rules: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.Path), 0750); err != nil {
		return fmt.Errorf("error creating rules directory: %w", err)
	}

	if err := os.WriteFile(s.Path, append([]byte(header), data...), 0600); err != nil {
		return fmt.Errorf("error writing rules file: %w", err)
	}

	s.logger.WithField(logging.FieldCount, len(rules)).Debug("Saved rules file")
	return nil
}

// CreateDefaultDocument writes a starter rules file with inline format
// documentation and an empty rule list. It returns (false, nil) when
// the file already exists; callers own overwrite confirmation.
func (s *Store) CreateDefaultDocument() (bool, error) {
	if _, err := os.Stat(s.Path); err == nil {
		s.logger.WithField(logging.FieldFile, s.Path).Warn("Rules file already exists")
		return false, nil
	}

	if err := s.Save([]models.Rule{}); err != nil {
		return false, err
	}
	return true, nil
}

// normalizeEnabled maps "enabled" (true or unset) to nil so the field
// is omitted on save and compares equal after a round trip.
func normalizeEnabled(b *bool) *bool {
	if b == nil || *b {
		return nil
	}
	return b
}
