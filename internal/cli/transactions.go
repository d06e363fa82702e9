package cli

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/harun/finagent/pkg/tools"
	"github.com/harun/finagent/pkg/transactions"
)

var listCategory string

var transactionsCmd = &cobra.Command{
	Use:     "transactions",
	Aliases: []string{"tx"},
	Short:   "Inspect stored transactions",
}

var transactionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored transactions, newest first",
	RunE:  runTransactionsList,
}

func init() {
	transactionsListCmd.Flags().StringVar(&listCategory, "category", "", "only list this category")
	transactionsCmd.AddCommand(transactionsListCmd)
	rootCmd.AddCommand(transactionsCmd)
}

func runTransactionsList(cmd *cobra.Command, args []string) error {
	rt, err := setup()
	if err != nil {
		return err
	}
	defer rt.close()

	store := rt.service.Transactions()
	var txs []transactions.Transaction
	if listCategory != "" {
		txs, err = store.ListByCategory(cmd.Context(), listCategory)
	} else {
		txs, err = store.List(cmd.Context())
	}
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tNAME\tAMOUNT\tTYPE\tCATEGORY")
	for _, tx := range txs {
		category := tx.Category
		if tx.Subcategory != "" {
			category += " / " + tx.Subcategory
		}
		if category == "" {
			category = "-"
		}
		amount := strconv.FormatFloat(tx.Amount, 'f', -1, 64)
		if tx.Currency != "" {
			amount += " " + tx.Currency
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", tools.FormatHumanDate(tx.CreatedAt), tx.Name, amount, tx.TransactionType, category)
	}
	return w.Flush()
}
