package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/axstore/axstore/internal/domain"
)

func init() {
	rootCmd.AddCommand(customersCmd)
	rootCmd.AddCommand(summaryCmd)
	rootCmd.AddCommand(rekeyCmd)

	customersCmd.Flags().StringP("search", "s", "", "filter by display name substring")
}

// ─── axstore customers ──────────────────────────────────────────────────────

var customersCmd = &cobra.Command{
	Use:   "customers",
	Short: "List customers with their bon balances",
	RunE:  runCustomers,
}

func runCustomers(cmd *cobra.Command, args []string) error {
	ledger, _, store, _, err := openServices()
	if err != nil {
		return err
	}
	defer store.Close()

	query, _ := cmd.Flags().GetString("search")
	records, err := ledger.Search(context.Background(), query)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PHONE\tNAME\tOWES US\tWE OWE")
	for _, rec := range records {
		owes, owed := domain.Split(rec.Balance)
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", rec.Identity, rec.DisplayName, owes, owed)
	}
	return w.Flush()
}

// ─── axstore summary ────────────────────────────────────────────────────────

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show store-wide bon totals",
	RunE:  runSummary,
}

func runSummary(cmd *cobra.Command, args []string) error {
	ledger, _, store, _, err := openServices()
	if err != nil {
		return err
	}
	defer store.Close()

	totals, err := ledger.Summary(context.Background())
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "Customers:      %d\n", totals.Customers)
	fmt.Fprintf(os.Stdout, "Owed to store:  %d\n", totals.CustomerOwes)
	fmt.Fprintf(os.Stdout, "Store owes:     %d\n", totals.StoreOwes)
	return nil
}

// ─── axstore rekey ──────────────────────────────────────────────────────────

var rekeyCmd = &cobra.Command{
	Use:   "rekey OLD_PHONE NEW_PHONE",
	Short: "Move a customer's bon ledger to a new phone number",
	Long: `Move a customer's bon ledger to a new phone number. If a ledger
already exists at the new number the two are merged and the balance is
recomputed from the combined history.`,
	Args: cobra.ExactArgs(2),
	RunE: runRekey,
}

func runRekey(cmd *cobra.Command, args []string) error {
	ledger, _, store, _, err := openServices()
	if err != nil {
		return err
	}
	defer store.Close()

	rec, err := ledger.Rekey(context.Background(), args[0], args[1])
	if err != nil {
		return err
	}
	owes, owed := domain.Split(rec.Balance)
	fmt.Fprintf(os.Stdout, "Moved to %s (%s): owes us %d, we owe %d, %d transactions\n",
		rec.Identity, rec.DisplayName, owes, owed, len(rec.History))
	return nil
}
