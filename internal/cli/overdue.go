package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrlokans/campuslib/internal/config"
	"github.com/mrlokans/campuslib/internal/lending"
	"github.com/mrlokans/campuslib/internal/tasks"
)

func newOverdueCommand(loadConfig func() *config.Config) *cobra.Command {
	var notify bool

	cmd := &cobra.Command{
		Use:   "overdue",
		Short: "List overdue loans with the fines accrued so far",
		Long: `List overdue loans with the fines accrued so far.

With --notify the command also records overdue notices, the same way the
scheduled scan does. Loans noticed within the last 20 hours are skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(loadConfig)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx := cmd.Context()
			now := time.Now().UTC()
			if err := WriteOverdueReport(ctx, app.Ledger, now, cmd.OutOrStdout()); err != nil {
				return err
			}
			if !notify {
				return nil
			}

			result, err := tasks.NewOverdueScanner(app.Ledger, app.Auditor).Scan(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\nNotices recorded: %d (skipped %d)\n", result.Notified, result.Skipped)
			return nil
		},
	}
	cmd.Flags().BoolVar(&notify, "notify", false, "Record overdue notices for the listed loans")
	return cmd
}

// WriteOverdueReport prints one row per overdue loan as of now.
func WriteOverdueReport(ctx context.Context, ledger *lending.Ledger, now time.Time, out io.Writer) error {
	overdue, err := ledger.ListOverdue(ctx, now)
	if err != nil {
		return err
	}
	if len(overdue) == 0 {
		fmt.Fprintln(out, "No overdue loans")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TXN\tSTUDENT\tBOOK\tDUE\tDAYS\tFINE")
	for i := range overdue {
		txn := &overdue[i]
		title := fmt.Sprintf("#%d", txn.BookID)
		if txn.Book != nil {
			title = truncate(txn.Book.Title, 40)
		}
		fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%d\t%s\n",
			txn.ID, txn.StudentID, title,
			txn.DueDate.Format(time.DateOnly),
			lending.OverdueDays(txn.DueDate, now),
			ledger.AccruedFine(txn, now))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%d overdue loans\n", len(overdue))
	return nil
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
