package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"tradepilot/internal/models"
)

func newRunCmd(app *App) *cobra.Command {
	var symbols []string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the decision engine loop",
		Long: `Restores positions and equity from the ledger, then evaluates every
configured symbol on each cycle, printing decisions and fills as they
stream. Orders execute only when auto_trade is enabled in config.
Stop with Ctrl-C.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			if len(symbols) == 0 {
				symbols = app.Config.Engine.Symbols
			}
			if len(symbols) == 0 {
				return fmt.Errorf("no symbols configured: set engine.symbols or pass --symbol")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := app.Trader.Restore(ctx, symbols); err != nil {
				output.Warning("Ledger restore failed, starting from configured equity: %v", err)
			}

			app.Hub.Start()
			defer app.Hub.Stop()

			pipeline := app.newPipeline(true)

			// Seed series from the candle cache so the first cycles have
			// history to evaluate before live data arrives.
			if app.Ledger != nil {
				for _, symbol := range symbols {
					for _, tf := range []models.Timeframe{models.Timeframe5m, models.Timeframe1h, models.Timeframe4h} {
						candles, err := app.Ledger.Candles(ctx, symbol, tf)
						if err == nil && len(candles) > 0 {
							pipeline.Ingest(symbol, tf, candles...)
						}
					}
				}
			}

			events := app.Hub.Subscribe("")

			output.Info("Engine running: %d symbol(s), cycle %s, auto_trade=%v",
				len(symbols), app.Config.Engine.CycleInterval, app.Config.Engine.AutoTrade)

			pipeline.Start(ctx, symbols)
			defer pipeline.Stop()

			for {
				select {
				case <-ctx.Done():
					output.Println()
					output.Info("Shutting down")
					return nil
				case event, ok := <-events:
					if !ok {
						return nil
					}
					switch {
					case event.Decision != nil:
						printDecisionLine(output, *event.Decision)
					case event.Equity != nil:
						printEquityLine(output, *event.Equity)
					}
				}
			}
		},
	}

	cmd.Flags().StringSliceVarP(&symbols, "symbol", "s", nil, "symbols to trade (default: config engine.symbols)")
	return cmd
}

// printDecisionLine renders one streamed decision compactly.
func printDecisionLine(output *Output, d models.FinalDecision) {
	output.Printf("%s  %-10s %-3s %s %s conf=%s\n",
		FormatTime(d.Timestamp), d.Symbol, d.Timeframe,
		output.Direction(d.Action), output.ColoredString(ColorDim, string(d.Source)),
		FormatConfidence(d.Confidence))
}

// printEquityLine renders one streamed equity update compactly.
func printEquityLine(output *Output, s models.EquitySnapshot) {
	output.Printf("%s  %-10s equity=%s today=%s unrealized=%s\n",
		FormatTime(s.Timestamp), s.Symbol,
		FormatMoney(s.Equity), output.FormatPnL(s.RealizedTodayPnL), output.FormatPnL(s.UnrealizedPnL))
}
