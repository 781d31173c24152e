package rules

import (
	"fmt"
	"strings"

	"finagg/cmd/root"
	"finagg/internal/logging"
	"finagg/internal/report"
	rulesvc "finagg/internal/rules"

	"github.com/spf13/cobra"
)

var (
	applyDryRun        bool
	applyUncategorized bool
	applyIDs           []int64
	applyRuleIndices   []int
	applyReportPath    string
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply the rules to stored transactions",
	Long: `Apply the configured rules to transactions in the database. With
--dry-run the computed changes are reported but nothing is persisted.`,
	RunE: applyFunc,
}

func init() {
	applyCmd.Flags().BoolVarP(&applyDryRun, "dry-run", "n", false, "Compute changes without persisting them")
	applyCmd.Flags().BoolVarP(&applyUncategorized, "uncategorized", "u", false, "Only process transactions without a user category")
	applyCmd.Flags().Int64SliceVar(&applyIDs, "id", nil, "Restrict to the given transaction ids (repeatable)")
	applyCmd.Flags().IntSliceVar(&applyRuleIndices, "rule", nil, "Restrict to the given rule positions from 'rules list' (repeatable)")
	applyCmd.Flags().StringVar(&applyReportPath, "report", "", "Write per-transaction change details to a CSV file")
}

func applyFunc(cmd *cobra.Command, args []string) error {
	env, err := root.NewEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	result, err := env.Rules.Apply(cmd.Context(), rulesvc.ApplyOptions{
		TransactionIDs:    applyIDs,
		OnlyUncategorized: applyUncategorized,
		DryRun:            applyDryRun,
		RuleIndices:       applyRuleIndices,
	})
	if err != nil {
		return err
	}

	fmt.Println(strings.TrimSuffix(report.Summary(result, applyDryRun), "\n"))

	if applyReportPath != "" {
		if err := report.WriteApplyCSV(result, applyReportPath, logging.GetLogger()); err != nil {
			return err
		}
		root.Log.Infof("Wrote change report to %s", applyReportPath)
	}
	return nil
}
