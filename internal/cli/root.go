// Package cli provides the command-line interface for the decision engine.
package cli

import (
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"tradepilot/internal/config"
	"tradepilot/internal/engine"
	"tradepilot/internal/ensemble"
	"tradepilot/internal/fusion"
	"tradepilot/internal/logging"
	"tradepilot/internal/market"
	"tradepilot/internal/router"
	"tradepilot/internal/store"
	"tradepilot/internal/strategy"
	"tradepilot/internal/stream"
	"tradepilot/internal/trading"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2025-06-01"
)

// App holds the application dependencies.
type App struct {
	Config    *config.Config
	ConfigDir string
	Settings  config.Repository
	Logger    zerolog.Logger
	Ledger    *store.SQLiteLedger
	Store     store.Ledger
	Book      *market.Book
	Registry  *strategy.Registry
	Router    *router.Router
	Fuser     *fusion.Fuser
	Trader    *trading.Engine
	Hub       *stream.Hub
}

// NewRootCmd creates the root command for the CLI. configDir is the
// directory the configuration was loaded from; the SQLite ledger lives next
// to the config file, so a --config override moves the database with it.
func NewRootCmd(cfg *config.Config, configDir string, logger zerolog.Logger) *cobra.Command {
	if configDir == "" {
		configDir = config.DefaultConfigDir()
	}
	app := &App{
		Config:    cfg,
		ConfigDir: configDir,
		Settings:  config.NewRepository(cfg),
		Logger:    logger,
		Book:      market.NewBook(cfg.Engine.MaxCandleHistory),
		Registry:  strategy.DefaultRegistry(),
		Fuser:     fusion.New(logger),
		Hub:       stream.NewHub(),
	}

	ens := ensemble.New(app.Registry, logger)
	predictor := router.NewStaticPredictor(10, 0.75)
	app.Router = router.New(ens, predictor, logger)

	dbPath := ledgerPath(configDir)
	ledger, err := store.NewSQLiteLedger(dbPath)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to open ledger, persistence unavailable")
	} else {
		app.Ledger = ledger
		logger.Debug().Str("path", dbPath).Msg("SQLite ledger opened")
	}

	if app.Ledger != nil {
		app.Store = app.Ledger
	} else {
		app.Store = store.NewMemoryLedger()
	}
	app.Trader = trading.NewEngine(app.Settings, app.Store, cfg.Execution.StartingEquity, logger)

	rootCmd := &cobra.Command{
		Use:   "tradepilot",
		Short: "Tradepilot - strategy ensemble decision and execution engine",
		Long: `Tradepilot evaluates trading strategies across timeframes, fuses their
votes into auditable decisions, and executes them against a simulated
account with fees, slippage, and a persisted equity ledger.

Use 'tradepilot help <command>' for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/tradepilot)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newRunCmd(app))
	rootCmd.AddCommand(newDecideCmd(app))
	rootCmd.AddCommand(newOrderCmd(app))
	rootCmd.AddCommand(newLedgerCmd(app))

	return rootCmd
}

// ledgerPath returns the SQLite database path inside a config directory,
// defaulting to the standard config location.
func ledgerPath(configDir string) string {
	if configDir == "" {
		configDir = config.DefaultConfigDir()
	}
	return filepath.Join(configDir, "tradepilot.db")
}

// newPipeline builds a pipeline over the app's collaborators. autoTrade is
// forced off for offline evaluation regardless of config.
func (app *App) newPipeline(autoTrade bool) *engine.Pipeline {
	return engine.NewPipeline(engine.PipelineConfig{
		CycleInterval: app.Config.Engine.CycleInterval,
		AutoTrade:     autoTrade && app.Config.Engine.AutoTrade,
		OrderQuantity: app.Config.Engine.OrderQuantity,
	}, app.Book, app.Settings, app.Router, app.Fuser, app.Trader, app.Store, app.Hub, app.Logger)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			} else {
				output.Printf("Tradepilot v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate engine configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"path": app.ConfigDir})
			} else {
				output.Println(app.ConfigDir)
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				output.JSON(map[string]bool{"valid": true})
			} else {
				output.Success("Configuration is valid")
			}
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("Engine")
	output.Printf("  Symbols:          %v\n", cfg.Engine.Symbols)
	output.Printf("  Cycle Interval:   %s\n", cfg.Engine.CycleInterval)
	output.Printf("  Model Timeout:    %s\n", cfg.Engine.ModelTimeout)
	output.Printf("  Buy Threshold:    %.2f\n", cfg.Engine.BuyThreshold)
	output.Printf("  Sell Threshold:   %.2f\n", cfg.Engine.SellThreshold)
	output.Printf("  Auto Trade:       %v\n", cfg.Engine.AutoTrade)
	output.Println()

	output.Bold("Execution")
	output.Printf("  Fee:              %.1f bps\n", cfg.Execution.FeeBps)
	output.Printf("  Slippage:         %.1f bps\n", cfg.Execution.SlippageBps)
	output.Printf("  Starting Equity:  %s\n", FormatMoney(cfg.Execution.StartingEquity))
	output.Println()

	output.Bold("Risk")
	output.Printf("  Max Position:     %s\n", FormatMoney(cfg.Risk.MaxPositionSize))
	output.Printf("  Max Daily Loss:   %s\n", FormatMoney(cfg.Risk.MaxDailyLoss))
	output.Println()

	output.Bold("Strategies")
	for _, s := range cfg.Strategies {
		state := "enabled"
		if !s.Enabled {
			state = "disabled"
		}
		output.Printf("  %-12s weight %.2f  %s\n", s.Name, s.Weight, state)
	}
}
