// Package rules contains the rule-management commands.
package rules

import (
	"fmt"
	"strings"

	"finagg/cmd/root"
	"finagg/internal/logging"
	"finagg/internal/models"
	rulesvc "finagg/internal/rules"

	"github.com/spf13/cobra"
)

var (
	// add flags
	addCategory    string
	addTags        []string
	addRemoveTags  []string
	addMatchType   string
	addDescription string

	// test flags
	testMatchType string
)

// Cmd is the parent command for rule management.
var Cmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage and apply auto-tagging rules",
	Long: `Manage the YAML rules file that drives transaction auto-categorization
and tagging, and apply the rules to stored transactions.`,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the configured rules in order",
	RunE:  listFunc,
}

var addCmd = &cobra.Command{
	Use:   "add <pattern>",
	Short: "Add a rule and persist it immediately",
	Args:  cobra.ExactArgs(1),
	RunE:  addFunc,
}

var removeCmd = &cobra.Command{
	Use:   "remove <pattern>",
	Short: "Remove rules whose pattern matches exactly (case-insensitive)",
	Args:  cobra.ExactArgs(1),
	RunE:  removeFunc,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a starter rules file with inline documentation",
	RunE:  initFunc,
}

var testCmd = &cobra.Command{
	Use:   "test <pattern> <sample>...",
	Short: "Try a pattern against sample descriptions without saving it",
	Args:  cobra.MinimumNArgs(2),
	RunE:  testFunc,
}

func init() {
	addCmd.Flags().StringVarP(&addCategory, "category", "c", "", "Category to assign on match")
	addCmd.Flags().StringSliceVarP(&addTags, "tags", "t", nil, "Tags to add on match")
	addCmd.Flags().StringSliceVar(&addRemoveTags, "remove-tags", nil, "Tags to remove on match")
	addCmd.Flags().StringVarP(&addMatchType, "match", "m", "contains",
		"Match type: contains|exact|starts_with|ends_with|regex")
	addCmd.Flags().StringVarP(&addDescription, "description", "d", "", "Free-form note")

	testCmd.Flags().StringVarP(&testMatchType, "match", "m", "contains",
		"Match type: contains|exact|starts_with|ends_with|regex")

	Cmd.AddCommand(listCmd)
	Cmd.AddCommand(addCmd)
	Cmd.AddCommand(removeCmd)
	Cmd.AddCommand(applyCmd)
	Cmd.AddCommand(initCmd)
	Cmd.AddCommand(testCmd)
}

// newFileOnlyService builds a rule engine without transaction storage
// for commands that only touch the rules file.
func newFileOnlyService() *rulesvc.Service {
	return rulesvc.NewService(root.NewRuleStore(), nil, logging.GetLogger())
}

func listFunc(cmd *cobra.Command, args []string) error {
	svc := newFileOnlyService()
	ruleList := svc.Rules()
	if len(ruleList) == 0 {
		fmt.Println("No rules defined. Run 'finagg rules init' to create a rules file.")
		return nil
	}

	for i, r := range ruleList {
		fmt.Printf("%3d. %s", i, describeRule(r))
		fmt.Println()
	}
	return nil
}

func describeRule(r models.Rule) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%q (%s)", r.Pattern, r.EffectiveMatchType())
	if r.Category != "" {
		fmt.Fprintf(&b, " -> %s", r.Category)
	}
	if len(r.Tags) > 0 {
		fmt.Fprintf(&b, " +[%s]", strings.Join(r.Tags, ", "))
	}
	if len(r.RemoveTags) > 0 {
		fmt.Fprintf(&b, " -[%s]", strings.Join(r.RemoveTags, ", "))
	}
	if !r.IsEnabled() {
		b.WriteString(" (disabled)")
	}
	if r.Description != "" {
		fmt.Fprintf(&b, "  # %s", r.Description)
	}
	return b.String()
}

func addFunc(cmd *cobra.Command, args []string) error {
	if err := validateMatchType(addMatchType); err != nil {
		return err
	}

	svc := newFileOnlyService()
	rule, err := svc.AddRule(args[0], addCategory, addTags, addRemoveTags, addMatchType, addDescription)
	if err != nil {
		return err
	}

	root.Log.Infof("Added rule: %s", describeRule(rule))
	return nil
}

func removeFunc(cmd *cobra.Command, args []string) error {
	svc := newFileOnlyService()
	removed, err := svc.RemoveRule(args[0])
	if err != nil {
		return err
	}
	if !removed {
		root.Log.Warnf("No rule with pattern %q", args[0])
		return nil
	}
	root.Log.Infof("Removed rule %q", args[0])
	return nil
}

func initFunc(cmd *cobra.Command, args []string) error {
	svc := newFileOnlyService()
	created, err := svc.CreateDefaultDocument()
	if err != nil {
		return err
	}
	if !created {
		root.Log.Warnf("Rules file already exists at %s, not overwriting", root.EffectiveRulesFile())
		return nil
	}
	root.Log.Infof("Created rules file at %s", root.EffectiveRulesFile())
	return nil
}

func testFunc(cmd *cobra.Command, args []string) error {
	if err := validateMatchType(testMatchType); err != nil {
		return err
	}

	svc := newFileOnlyService()
	samples := args[1:]
	for i, matched := range svc.TestPattern(args[0], testMatchType, samples) {
		verdict := "no match"
		if matched {
			verdict = "MATCH"
		}
		fmt.Printf("%-8s %s\n", verdict, samples[i])
	}
	return nil
}

// validateMatchType rejects unknown --match values before they reach
// the engine, which would otherwise silently fall back to contains.
func validateMatchType(s string) error {
	if _, known := models.ParseMatchType(s); !known {
		return fmt.Errorf("unknown match type %q (use contains|exact|starts_with|ends_with|regex)", s)
	}
	return nil
}
