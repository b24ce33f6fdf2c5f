package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/raykavin/regimerun"
	"github.com/raykavin/regimerun/pkg/exchange/binance"
	"github.com/raykavin/regimerun/pkg/storage"
)

// Command line flags
var (
	configFile string
	database   string
	testnet    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "regimerun",
		Short:   "Regime-aware futures trading engine",
		Version: "1.0.0",
	}

	rootCmd.AddCommand(buildRunCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the trading engine",
		RunE:  runEngine,
	}

	runCmd.Flags().StringVarP(&configFile, "config", "c", "regimerun.yml", "Path to the YAML configuration file")
	runCmd.Flags().StringVarP(&database, "database", "d", "", "Path to the position database (in-memory when empty with testnet)")
	runCmd.Flags().BoolVarP(&testnet, "testnet", "t", false, "Use the Binance futures testnet")

	return runCmd
}

func runEngine(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	settings, err := loadSettings(configFile)
	if err != nil {
		return err
	}

	apiKey := os.Getenv("BINANCE_API_KEY")
	apiSecret := os.Getenv("BINANCE_API_SECRET")
	if apiKey == "" || apiSecret == "" {
		return fmt.Errorf("BINANCE_API_KEY and BINANCE_API_SECRET must be set")
	}

	options := []binance.FuturesOption{
		binance.WithCredentials(apiKey, apiSecret),
	}
	if testnet {
		options = append(options, binance.WithTestnet())
	}
	for _, symbol := range settings.Symbols {
		options = append(options, binance.WithLeverage(symbol, settings.Leverage,
			binance.MarginType(settings.MarginType)))
	}

	gateway, err := binance.NewFutures(ctx, options...)
	if err != nil {
		return fmt.Errorf("connect to binance futures: %w", err)
	}

	engineOptions := []regimerun.Option{}
	if database != "" {
		store, err := storage.FromFile(database)
		if err != nil {
			return fmt.Errorf("open position database: %w", err)
		}
		engineOptions = append(engineOptions, regimerun.WithStorage(store))
	}

	engine, err := regimerun.NewEngine(ctx, settings, gateway, engineOptions...)
	if err != nil {
		return err
	}

	if err := engine.Run(ctx); err != nil {
		return err
	}

	engine.Summary()
	return nil
}
