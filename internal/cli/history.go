package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/yolodolo42/scwkeyring/internal/ui"
)

var (
	historyLimit   int
	historyAccount string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show submitted user operations and account events",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *App) error {
			return runHistory(ctx, app, cmd.OutOrStdout(), historyAccount, historyLimit)
		})
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum user operations to show")
	historyCmd.Flags().StringVar(&historyAccount, "account", "", "Show the event log of one account id instead")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(ctx context.Context, app *App, w io.Writer, accountID string, limit int) error {
	if app.Journal == nil {
		return fmt.Errorf("journal is disabled (journal.enabled=false)")
	}

	if accountID != "" {
		events, err := app.Journal.Events(ctx, accountID)
		if err != nil {
			return err
		}
		rows := make([][]string, 0, len(events))
		for _, e := range events {
			rows = append(rows, []string{e.CreatedAt.Format(time.DateTime), e.Event, e.Name, e.Address})
		}
		fmt.Fprintln(w, ui.Table([]string{"Time", "Event", "Name", "Address"}, rows))
		return nil
	}

	ops, err := app.Journal.Operations(ctx, limit)
	if err != nil {
		return err
	}
	if len(ops) == 0 {
		fmt.Fprintln(w, ui.DimStyle.Render("No user operations submitted yet."))
		return nil
	}
	rows := make([][]string, 0, len(ops))
	for _, op := range ops {
		rows = append(rows, []string{
			op.CreatedAt.Format(time.DateTime),
			fmt.Sprintf("%d", op.ChainID),
			op.Sender,
			op.Method,
			op.UserOpHash,
		})
	}
	fmt.Fprintln(w, ui.Table([]string{"Time", "Chain", "Sender", "Method", "UserOpHash"}, rows))
	return nil
}
