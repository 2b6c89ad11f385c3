package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"candle-alerts/internal/feed"
	"candle-alerts/internal/notification"
	"candle-alerts/internal/ringbuf"
	"candle-alerts/internal/strategy"
)

var (
	scanInstruments []string
	scanLimit       int
	scanSend        bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Fetch recent bars once and print the current signal state",
	Long: `Fetch the latest bars from the MEXC REST API, evaluate the newest closed bar
for each instrument and print the notes. Nothing is sent unless --send is given.

Examples:
  alertd scan
  alertd scan -i BTCUSDT -i ETHUSDT --limit 300
  alertd scan --send`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringSliceVarP(&scanInstruments, "instrument", "i", nil, "instruments to scan (default: poll instruments from config)")
	scanCmd.Flags().IntVar(&scanLimit, "limit", 0, "bars to fetch per instrument (default: poll_limit)")
	scanCmd.Flags().BoolVar(&scanSend, "send", false, "dispatch intents through the configured notifier")
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	stratCfg, err := cfg.StrategyConfig()
	if err != nil {
		return fmt.Errorf("strategy config: %w", err)
	}

	instruments := scanInstruments
	if len(instruments) == 0 {
		instruments = cfg.PollInstruments
	}
	limit := scanLimit
	if limit <= 0 {
		limit = cfg.PollLimit
	}

	fetcher, err := feed.NewMEXCFetcher(cfg.PollURL, cfg.Interval)
	if err != nil {
		return err
	}
	eval := strategy.NewEvaluator("MEXC", stratCfg)

	var dispatcher *notification.Dispatcher
	if scanSend {
		dispatcher = notification.NewDispatcher(buildNotifierPlain(cfg), notification.NewMemoryCooldown(cfg.Cooldown()))
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()

	out := cmd.OutOrStdout()
	for _, inst := range instruments {
		inst = strings.ToUpper(inst)
		bars, err := fetcher.Fetch(ctx, inst, limit)
		if err != nil {
			fmt.Fprintf(out, "%-10s error: %v\n", inst, err)
			continue
		}

		ring := ringbuf.New(cfg.HistoryCapacity)
		for _, b := range bars {
			ring.Upsert(b)
		}
		history := ring.History()

		snap, ok := eval.Compute(history)
		if !ok {
			fmt.Fprintf(out, "%-10s insufficient history (%d closed bars, need %d)\n", inst, len(ring.Closed()), stratCfg.MinBars)
			continue
		}

		notes := strings.Join(eval.Notes(snap), ", ")
		trigger := eval.Decide(snap)
		if trigger == "" {
			fmt.Fprintf(out, "%-10s no signal  | %s\n", inst, notes)
			continue
		}
		fmt.Fprintf(out, "%-10s %-12s | %s\n", inst, trigger, notes)

		if dispatcher != nil {
			intent, _ := eval.Evaluate(inst, history)
			outcome := dispatcher.DispatchIntent(ctx, intent)
			fmt.Fprintf(out, "%-10s dispatch: %s\n", inst, outcome)
		}
	}
	return nil
}
