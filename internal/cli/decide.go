package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/spf13/cobra"

	"tradepilot/internal/errors"
	"tradepilot/internal/models"
)

// candleRow is the CSV layout for offline candle files:
// time (unix seconds), open, high, low, close, volume.
type candleRow struct {
	Time   int64   `csv:"time"`
	Open   float64 `csv:"open"`
	High   float64 `csv:"high"`
	Low    float64 `csv:"low"`
	Close  float64 `csv:"close"`
	Volume float64 `csv:"volume"`
}

// LoadCandlesCSV reads candles from a CSV file, oldest first.
func LoadCandlesCSV(path string) ([]models.Candle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open candle file: %w", err)
	}
	defer f.Close()

	var rows []*candleRow
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse candle file: %w", err)
	}

	candles := make([]models.Candle, 0, len(rows))
	for _, r := range rows {
		candles = append(candles, models.Candle{
			OpenTime: time.Unix(r.Time, 0).UTC(),
			Open:     r.Open,
			High:     r.High,
			Low:      r.Low,
			Close:    r.Close,
			Volume:   r.Volume,
		})
	}
	return candles, nil
}

func newDecideCmd(app *App) *cobra.Command {
	var (
		timeframeFlag string
		csvPath       string
		cacheCandles  bool
	)

	cmd := &cobra.Command{
		Use:   "decide SYMBOL",
		Short: "Run one evaluation cycle against offline candles",
		Long: `Evaluates the configured strategies against a CSV candle file (or candles
previously cached with --cache) and prints the resulting decision with the
full vote breakdown. Nothing is executed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			symbol := args[0]

			timeframe := models.Timeframe(timeframeFlag)
			if !timeframe.Valid() {
				return errors.Wrapf(errors.ErrConfigInvalid, "unknown timeframe %q", timeframeFlag)
			}

			var candles []models.Candle
			var err error
			switch {
			case csvPath != "":
				candles, err = LoadCandlesCSV(csvPath)
				if err != nil {
					return err
				}
				if cacheCandles && app.Ledger != nil {
					if err := app.Ledger.SaveCandles(cmd.Context(), symbol, timeframe, candles); err != nil {
						output.Warning("Failed to cache candles: %v", err)
					}
				}
			case app.Ledger != nil:
				candles, err = app.Ledger.Candles(cmd.Context(), symbol, timeframe)
				if err != nil {
					return err
				}
			}
			if len(candles) == 0 {
				return fmt.Errorf("no candles available for %s %s: provide --csv or cache candles first", symbol, timeframe)
			}

			pipeline := app.newPipeline(false)
			pipeline.Ingest(symbol, timeframe, candles...)

			decision, err := pipeline.Evaluate(cmd.Context(), symbol, timeframe)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(decision)
			}
			printDecision(output, decision, len(candles))
			return nil
		},
	}

	cmd.Flags().StringVarP(&timeframeFlag, "timeframe", "t", "5m", "timeframe (5m, 1h, 4h)")
	cmd.Flags().StringVar(&csvPath, "csv", "", "CSV candle file (time,open,high,low,close,volume)")
	cmd.Flags().BoolVar(&cacheCandles, "cache", false, "cache imported candles for later runs")
	return cmd
}

func printDecision(output *Output, decision models.FinalDecision, candleCount int) {
	output.Bold("Decision %s", decision.ID)
	output.Printf("  Symbol:      %s (%s, %d candles)\n", decision.Symbol, decision.Timeframe, candleCount)
	output.Printf("  Action:      %s\n", output.Direction(decision.Action))
	output.Printf("  Confidence:  %s\n", FormatConfidence(decision.Confidence))
	output.Printf("  Source:      %s\n", decision.Source)
	output.Printf("  Time:        %s\n", FormatTime(decision.Timestamp))
	output.Println()
	output.Printf("  %s\n", decision.Rationale)

	if len(decision.Components) > 0 {
		output.Println()
		table := NewTable(output, "COMPONENT", "VOTE", "CONF", "WEIGHT", "SCORE")
		for _, c := range decision.Components {
			table.AddRow(
				c.Source,
				output.Direction(c.Vote),
				FormatConfidence(c.Confidence),
				fmt.Sprintf("%.2f", c.Weight),
				fmt.Sprintf("%+.3f", c.Score),
			)
		}
		table.Render()
	}
}
