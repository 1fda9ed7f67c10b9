package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"tradepilot/internal/models"
)

func newOrderCmd(app *App) *cobra.Command {
	var price float64

	cmd := &cobra.Command{
		Use:   "order SYMBOL BUY|SELL QUANTITY",
		Short: "Execute a manual simulated order",
		Long: `Executes an order against the simulated account at the given reference
price, applying configured slippage and fees. The fill and updated equity
snapshot are persisted before the command reports success.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			symbol := args[0]

			var side models.OrderSide
			switch strings.ToUpper(args[1]) {
			case "BUY":
				side = models.OrderSideBuy
			case "SELL":
				side = models.OrderSideSell
			default:
				return fmt.Errorf("side must be BUY or SELL, got %q", args[1])
			}

			quantity, err := strconv.ParseFloat(args[2], 64)
			if err != nil {
				return fmt.Errorf("invalid quantity %q: %w", args[2], err)
			}

			if err := app.Trader.Restore(cmd.Context(), []string{symbol}); err != nil {
				output.Warning("Ledger restore failed: %v", err)
			}
			app.Trader.UpdateMark(symbol, price)

			fill, err := app.Trader.Execute(cmd.Context(), models.OrderRequest{
				Symbol:         symbol,
				Side:           side,
				Quantity:       quantity,
				ReferencePrice: price,
			})
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(fill)
			}

			output.Success("Order filled")
			output.Printf("  Fill ID:   %s\n", fill.ID)
			output.Printf("  %s %s %s @ %s\n", fill.Symbol, fill.Side,
				FormatQuantity(fill.Quantity), FormatMoney(fill.Price))
			output.Printf("  Fee:       %s\n", FormatMoney(fill.Fee))
			if fill.RealizedPnL != 0 {
				output.Printf("  Realized:  %s\n", output.FormatPnL(fill.RealizedPnL))
			}

			snap := app.Trader.Snapshot(symbol)
			output.Printf("  Equity:    %s\n", FormatMoney(snap.Equity))
			return nil
		},
	}

	cmd.Flags().Float64VarP(&price, "price", "p", 0, "reference price")
	cmd.MarkFlagRequired("price")
	return cmd
}
