// Package transactions contains the transaction browsing and
// import/export commands.
package transactions

import (
	"fmt"
	"strings"

	"finagg/cmd/root"
	"finagg/internal/ingest"
	"finagg/internal/logging"
	"finagg/internal/models"
	"finagg/internal/report"
	rulesvc "finagg/internal/rules"

	"github.com/spf13/cobra"
)

var (
	listUncategorized bool
	listIDs           []int64

	exportFile string

	importFile       string
	importSource     string
	importApplyRules bool
)

// Cmd is the parent command for transaction operations.
var Cmd = &cobra.Command{
	Use:     "transactions",
	Aliases: []string{"tx"},
	Short:   "Browse, import and export transactions",
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored transactions",
	RunE:  listFunc,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export transactions to a CSV file",
	RunE:  exportFunc,
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import transactions from an institution CSV export",
	Long: `Import transactions from a CSV file with date, description, amount and
optional category columns. Rows duplicating an existing same-date
transaction are skipped. With --apply-rules the tagging rules run over
the database after a successful import.`,
	RunE: importFunc,
}

func init() {
	listCmd.Flags().BoolVarP(&listUncategorized, "uncategorized", "u", false, "Only transactions without a user category")
	listCmd.Flags().Int64SliceVar(&listIDs, "id", nil, "Restrict to the given transaction ids (repeatable)")

	exportCmd.Flags().StringVarP(&exportFile, "output", "o", "", "Output CSV file (required)")
	_ = exportCmd.MarkFlagRequired("output")

	importCmd.Flags().StringVarP(&importFile, "input", "i", "", "Input CSV file (required)")
	importCmd.Flags().StringVarP(&importSource, "source", "s", "", "Institution the file came from")
	importCmd.Flags().BoolVar(&importApplyRules, "apply-rules", false, "Apply tagging rules after importing")
	_ = importCmd.MarkFlagRequired("input")

	Cmd.AddCommand(listCmd)
	Cmd.AddCommand(exportCmd)
	Cmd.AddCommand(importCmd)
}

func listFunc(cmd *cobra.Command, args []string) error {
	env, err := root.NewEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	txs, err := env.Store.QueryTransactions(cmd.Context(), models.TransactionFilter{
		IDs:               listIDs,
		OnlyUncategorized: listUncategorized,
	})
	if err != nil {
		return err
	}

	if len(txs) == 0 {
		fmt.Println("No transactions found.")
		return nil
	}

	for _, t := range txs {
		category := t.Category
		if t.UserCategory != nil {
			category = *t.UserCategory
		}
		line := fmt.Sprintf("%5d  %s  %10s  %-40s  %s", t.ID, t.Date, t.Amount.StringFixed(2), t.Description, category)
		if len(t.Tags) > 0 {
			line += "  [" + strings.Join(t.Tags, ", ") + "]"
		}
		fmt.Println(line)
	}
	return nil
}

func exportFunc(cmd *cobra.Command, args []string) error {
	env, err := root.NewEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	txs, err := env.Store.QueryTransactions(cmd.Context(), models.TransactionFilter{})
	if err != nil {
		return err
	}

	if err := report.WriteTransactionsCSV(txs, exportFile, logging.GetLogger()); err != nil {
		return err
	}
	root.Log.Infof("Exported %d transactions to %s", len(txs), exportFile)
	return nil
}

func importFunc(cmd *cobra.Command, args []string) error {
	env, err := root.NewEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	importer := ingest.NewImporter(env.Store, root.Cfg.Import.DedupeThreshold, logging.GetLogger())
	if d := root.Cfg.CSV.Delimiter; d != "" {
		importer.Delimiter = []rune(d)[0]
	}
	summary, err := importer.Import(cmd.Context(), importFile, importSource)
	if err != nil {
		return err
	}
	root.Log.Infof("Imported %d transactions (%d duplicates, %d skipped)",
		summary.Imported, summary.Duplicates, summary.Skipped)

	if !importApplyRules {
		return nil
	}

	result, err := env.Rules.Apply(cmd.Context(), rulesvc.ApplyOptions{})
	if err != nil {
		return err
	}
	fmt.Println(strings.TrimSuffix(report.Summary(result, false), "\n"))
	return nil
}
