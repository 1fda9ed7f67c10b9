package config

import (
	"os"
	"path/filepath"
)

const configTemplate = `# tradepilot configuration

[engine]
symbols = ["BTCUSDT"]
cycle_interval = "1m"
model_timeout = "2s"
buy_threshold = 0.3
sell_threshold = 0.3
min_confidence = 0.55
max_confidence = 0.90
model_min_conf = 0.55
model_max_conf = 0.95
max_candle_history = 500
auto_trade = false
order_quantity = 0.01

[execution]
fee_bps = 10.0
slippage_bps = 5.0
starting_equity = 10000.0

[risk]
max_position_size = 50000.0
max_daily_loss = 500.0

[log]
level = "info"
console = true
file = true

[[strategies]]
name = "momentum"
enabled = true
weight = 1.0
[strategies.params]
period = 14.0
oversold = 30.0
overbought = 70.0

[[strategies]]
name = "trendcross"
enabled = true
weight = 1.0
[strategies.params]
fast = 9.0
slow = 21.0

[[strategies]]
name = "breakout"
enabled = true
weight = 1.0
[strategies.params]
period = 20.0

[[strategies]]
name = "meanrev"
enabled = true
weight = 1.0
[strategies.params]
period = 20.0
stddev = 2.0
`

// writeTemplate creates a default config.toml so a first run has something
// to edit.
func writeTemplate(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}
	path := filepath.Join(configDir, "config.toml")
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return os.WriteFile(path, []byte(configTemplate), 0644)
}
