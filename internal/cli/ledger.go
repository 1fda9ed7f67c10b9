package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"tradepilot/internal/models"
	"tradepilot/internal/store"
	"tradepilot/internal/trading"
)

func newLedgerCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect the persisted trading ledger",
		Long:  "Print positions, fills, the equity curve, and logged decisions from the ledger.",
	}

	cmd.AddCommand(newLedgerPositionsCmd(app))
	cmd.AddCommand(newLedgerFillsCmd(app))
	cmd.AddCommand(newLedgerEquityCmd(app))
	cmd.AddCommand(newLedgerDecisionsCmd(app))
	return cmd
}

func newLedgerPositionsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "positions SYMBOL...",
		Short: "Show open positions reconstructed from fills",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			var positions []*models.Position
			for _, symbol := range args {
				fills, err := app.Store.Fills(cmd.Context(), symbol, time.Time{})
				if err != nil {
					return err
				}
				if pos := trading.ReplayFills(symbol, fills); pos != nil && !pos.IsFlat() {
					positions = append(positions, pos)
				}
			}

			if output.IsJSON() {
				return output.JSON(positions)
			}
			if len(positions) == 0 {
				output.Dim("No open positions")
				return nil
			}

			table := NewTable(output, "SYMBOL", "SIDE", "QTY", "AVG ENTRY", "LOTS", "OPENED")
			for _, p := range positions {
				table.AddRow(
					p.Symbol,
					string(p.Side),
					FormatQuantity(p.Quantity()),
					FormatMoney(p.AverageEntryPrice()),
					fmt.Sprintf("%d", len(p.Lots)),
					FormatTime(p.OpenedAt),
				)
			}
			table.Render()
			return nil
		},
	}
}

func newLedgerFillsCmd(app *App) *cobra.Command {
	var sinceFlag string

	cmd := &cobra.Command{
		Use:   "fills SYMBOL",
		Short: "Show the fill history for a symbol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			since, err := parseSince(sinceFlag)
			if err != nil {
				return err
			}

			fills, err := app.Store.Fills(cmd.Context(), args[0], since)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(fills)
			}
			if len(fills) == 0 {
				output.Dim("No fills")
				return nil
			}

			table := NewTable(output, "TIME", "SIDE", "QTY", "PRICE", "FEE", "REALIZED", "DECISION")
			for _, f := range fills {
				decisionID := f.DecisionID
				if decisionID == "" {
					decisionID = "manual"
				}
				table.AddRow(
					FormatTime(f.Timestamp),
					string(f.Side),
					FormatQuantity(f.Quantity),
					FormatMoney(f.Price),
					FormatMoney(f.Fee),
					output.FormatPnL(f.RealizedPnL),
					decisionID,
				)
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&sinceFlag, "since", "", "only fills on or after this date (YYYY-MM-DD)")
	return cmd
}

func newLedgerEquityCmd(app *App) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "equity SYMBOL",
		Short: "Show the daily equity curve for a symbol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			to := time.Now().UTC()
			from := to.AddDate(0, 0, -days)
			snaps, err := app.Store.Snapshots(cmd.Context(), args[0], from, to)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(snaps)
			}
			if len(snaps) == 0 {
				output.Dim("No equity snapshots")
				return nil
			}

			table := NewTable(output, "DAY", "EQUITY", "REALIZED", "UNREALIZED")
			for _, s := range snaps {
				table.AddRow(
					s.Day().Format("2006-01-02"),
					FormatMoney(s.Equity),
					output.FormatPnL(s.RealizedTodayPnL),
					output.FormatPnL(s.UnrealizedPnL),
				)
			}
			table.Render()

			first, last := snaps[0], snaps[len(snaps)-1]
			output.Println()
			output.Printf("Change over %d snapshot(s): %s\n", len(snaps), output.FormatPnL(last.Equity-first.Equity))
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 30, "number of days to show")
	return cmd
}

func newLedgerDecisionsCmd(app *App) *cobra.Command {
	var (
		timeframeFlag string
		sinceFlag     string
		limit         int
	)

	cmd := &cobra.Command{
		Use:   "decisions [SYMBOL]",
		Short: "Show the decision audit log",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			since, err := parseSince(sinceFlag)
			if err != nil {
				return err
			}

			filter := store.DecisionFilter{Since: since, Limit: limit}
			if len(args) > 0 {
				filter.Symbol = args[0]
			}
			if timeframeFlag != "" {
				filter.Timeframe = models.Timeframe(timeframeFlag)
			}

			decisions, err := app.Store.Decisions(cmd.Context(), filter)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(decisions)
			}
			if len(decisions) == 0 {
				output.Dim("No decisions")
				return nil
			}

			table := NewTable(output, "TIME", "SYMBOL", "TF", "ACTION", "CONF", "SOURCE")
			for _, d := range decisions {
				table.AddRow(
					FormatTime(d.Timestamp),
					d.Symbol,
					string(d.Timeframe),
					output.Direction(d.Action),
					FormatConfidence(d.Confidence),
					string(d.Source),
				)
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().StringVarP(&timeframeFlag, "timeframe", "t", "", "filter by timeframe")
	cmd.Flags().StringVar(&sinceFlag, "since", "", "only decisions on or after this date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows")
	return cmd
}

func parseSince(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --since date %q: %w", s, err)
	}
	return t.UTC(), nil
}
