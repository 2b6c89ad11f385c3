package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"candle-alerts/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "alertd",
	Short: "Candle indicator alerts for crypto markets",
	Long: `alertd watches candle feeds (Binance kline stream, MEXC REST polling),
computes RSI, EMA, session VWAP with deviation bands and liquidity sweeps on
every closed bar, and sends deduplicated alerts to Telegram or a webhook.

Configuration comes from defaults, a .env file, an optional YAML file
(--config or ALERTD_CONFIG) and the environment, in that order.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file (overrides ALERTD_CONFIG)")
}

// loadConfig resolves the layered configuration.
func loadConfig() (*config.Config, error) {
	if configPath != "" {
		if err := os.Setenv("ALERTD_CONFIG", configPath); err != nil {
			return nil, fmt.Errorf("set ALERTD_CONFIG: %w", err)
		}
	}
	return config.Load()
}
