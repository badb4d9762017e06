// Package main is the entry point for the levkit CLI.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/curg-13/levkit/business/chain"
	chainDI "github.com/curg-13/levkit/business/chain/di"
	"github.com/curg-13/levkit/business/leverage"
	leverageApp "github.com/curg-13/levkit/business/leverage/app"
	leverageDI "github.com/curg-13/levkit/business/leverage/di"
	leverageDomain "github.com/curg-13/levkit/business/leverage/domain"
	"github.com/curg-13/levkit/business/pricing"
	"github.com/curg-13/levkit/internal/apm"
	"github.com/curg-13/levkit/internal/asset"
	"github.com/curg-13/levkit/internal/config"
	"github.com/curg-13/levkit/internal/health"
	"github.com/curg-13/levkit/internal/logger"
	"github.com/curg-13/levkit/internal/metrics"
	"github.com/curg-13/levkit/internal/monolith"
	"github.com/curg-13/levkit/internal/txplan"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

const usage = `usage: levkit [flags] <command> [command flags]

commands:
  preview     size a leverage entry without building a transaction
  leverage    compose an atomic leverage transaction unit
  deleverage  compose an atomic deleverage transaction unit
  position    show the user's position at the lending protocol

flags:
  -config string   path to configuration file
  -version         show version information
`

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	configPath := flag.String("config", "", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if *showVersion {
		fmt.Printf("levkit %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(os.Stderr, "received shutdown signal: %v\n", sig)
		cancel()
	}()

	if err := run(ctx, *configPath, args[0], args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath, command string, args []string) error {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Setup logger on stderr so command output stays clean on stdout
	logLevel := logger.LevelInfo
	switch cfg.App.LogLevel {
	case "debug":
		logLevel = logger.LevelDebug
	case "warn":
		logLevel = logger.LevelWarn
	case "error":
		logLevel = logger.LevelError
	}
	log := logger.New(os.Stderr, logLevel, cfg.App.Name, nil)

	// Initialize observability if enabled
	if cfg.Telemetry.Enabled {
		traceProvider := apm.ProviderConsole
		if cfg.Telemetry.OTLPEndpoint != "" {
			traceProvider = apm.ProviderOTLPGRPC
		}
		tp, err := apm.NewTraceProvider(ctx, apm.Options{
			ServiceName: cfg.Telemetry.ServiceName,
			Environment: cfg.App.Environment,
			Provider:    traceProvider,
			Endpoint:    cfg.Telemetry.OTLPEndpoint,
			Headers:     cfg.Telemetry.OTLPHeaders,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize tracing: %w", err)
		}
		defer tp.Stop()

		mp, err := metrics.NewMeterProvider(ctx, metrics.Options{
			ServiceName: cfg.Telemetry.ServiceName,
			Prometheus:  true,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize metrics: %w", err)
		}
		defer mp.Shutdown(context.Background())

		go metrics.Serve(ctx, cfg.Telemetry.PrometheusPort)
		log.Info(ctx, "telemetry initialized",
			"traces", string(traceProvider),
			"prometheus_port", cfg.Telemetry.PrometheusPort)

		healthServer := health.NewServer(cfg.Telemetry.HealthPort, version)
		if err := healthServer.Start(); err != nil {
			log.Warn(ctx, "failed to start health server", "error", err)
		} else {
			defer healthServer.Stop(context.Background())
		}
	}

	// Create monolith (application container)
	mono, err := monolith.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create monolith: %w", err)
	}
	defer mono.Close()

	// Define modules in dependency order
	modules := []monolith.Module{
		&chain.Module{},    // Provides heads and gas quoting
		&pricing.Module{},  // Price feed, used by leverage sizing
		&leverage.Module{}, // Depends on chain and pricing
	}

	if err := mono.RegisterModules(modules...); err != nil {
		return fmt.Errorf("failed to register modules: %w", err)
	}
	if err := mono.StartModules(ctx, modules...); err != nil {
		return fmt.Errorf("failed to start modules: %w", err)
	}

	composer := leverageDI.GetComposer(mono.Services())

	switch command {
	case "preview":
		return runPreview(ctx, composer, mono, args)
	case "leverage":
		return runLeverage(ctx, composer, mono, args)
	case "deleverage":
		return runDeleverage(ctx, composer, mono, args)
	case "position":
		return runPosition(ctx, composer, mono, args)
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command: %s", command)
	}
}

func runPreview(ctx context.Context, composer *leverageApp.Composer, mono monolith.Monolith, args []string) error {
	fs := flag.NewFlagSet("preview", flag.ExitOnError)
	user := fs.String("user", "", "User address (0x...)")
	depositStr := fs.String("deposit", "", "Deposit amount in human units, e.g. 1.5")
	symbol := fs.String("asset", mono.Config().Protocol.CollateralAsset, "Deposit asset symbol")
	multiplierStr := fs.String("multiplier", "2", "Target leverage multiplier")
	fs.Parse(args)

	params, err := leverageParams(mono, *user, *depositStr, *symbol, *multiplierStr)
	if err != nil {
		return err
	}

	sizing, err := composer.PreviewLeverage(ctx, params)
	if err != nil {
		return err
	}

	printLeverageSizing(mono, params, sizing)
	return nil
}

func runLeverage(ctx context.Context, composer *leverageApp.Composer, mono monolith.Monolith, args []string) error {
	fs := flag.NewFlagSet("leverage", flag.ExitOnError)
	user := fs.String("user", "", "User address (0x...)")
	depositStr := fs.String("deposit", "", "Deposit amount in human units, e.g. 1.5")
	symbol := fs.String("asset", mono.Config().Protocol.CollateralAsset, "Deposit asset symbol")
	multiplierStr := fs.String("multiplier", "2", "Target leverage multiplier")
	fs.Parse(args)

	params, err := leverageParams(mono, *user, *depositStr, *symbol, *multiplierStr)
	if err != nil {
		return err
	}

	plan, sizing, err := composer.BuildLeverage(ctx, params)
	if err != nil {
		return err
	}

	printLeverageSizing(mono, params, sizing)
	fmt.Println()
	fmt.Print(plan.Describe())
	printPlanCost(ctx, mono, plan)
	return nil
}

func runDeleverage(ctx context.Context, composer *leverageApp.Composer, mono monolith.Monolith, args []string) error {
	fs := flag.NewFlagSet("deleverage", flag.ExitOnError)
	user := fs.String("user", "", "User address (0x...)")
	fs.Parse(args)

	userAddr, err := parseAddress(*user)
	if err != nil {
		return err
	}

	plan, sizing, err := composer.BuildDeleverage(ctx, leverageApp.DeleverageParams{User: userAddr})
	if err != nil {
		return err
	}

	cfg := mono.Config()
	collateral := mustLookup(mono, cfg.Protocol.CollateralAsset)
	debt := mustLookup(mono, cfg.Protocol.DebtAsset)

	fmt.Println("deleverage sizing:")
	fmt.Printf("  flash loan:      %s\n", asset.NewAmount(debt, sizing.FlashLoanRaw))
	fmt.Printf("  flash loan fee:  %s\n", asset.NewAmount(debt, sizing.FlashLoanFeeRaw))
	fmt.Printf("  total repayment: %s\n", asset.NewAmount(debt, sizing.TotalRepaymentRaw))
	fmt.Printf("  withdraw:        %s\n", asset.NewAmount(collateral, sizing.WithdrawAmountRaw))
	fmt.Printf("  swap:            %s\n", asset.NewAmount(collateral, sizing.SwapAmountRaw))
	fmt.Printf("  keep:            %s\n", asset.NewAmount(collateral, sizing.KeepAmountRaw))
	fmt.Printf("  est. leftover:   %s\n", asset.NewAmount(debt, sizing.EstimatedProfitRaw))
	if sizing.Underwater {
		fmt.Println("  warning: position was underwater at estimate time")
	}

	fmt.Println()
	fmt.Print(plan.Describe())
	printPlanCost(ctx, mono, plan)
	return nil
}

func runPosition(ctx context.Context, composer *leverageApp.Composer, mono monolith.Monolith, args []string) error {
	fs := flag.NewFlagSet("position", flag.ExitOnError)
	user := fs.String("user", "", "User address (0x...)")
	fs.Parse(args)

	userAddr, err := parseAddress(*user)
	if err != nil {
		return err
	}

	pos, err := composer.Position(ctx, userAddr)
	if err != nil {
		return err
	}
	if pos == nil {
		fmt.Printf("no position at %s for %s\n", mono.Config().Protocol.Name, userAddr.Hex())
		return nil
	}

	fmt.Printf("position at %s for %s:\n", mono.Config().Protocol.Name, userAddr.Hex())
	fmt.Printf("  collateral: %s\n", pos.Collateral)
	fmt.Printf("  debt:       %s\n", pos.Debt)
	return nil
}

func leverageParams(mono monolith.Monolith, user, depositStr, symbol, multiplierStr string) (leverageApp.LeverageParams, error) {
	userAddr, err := parseAddress(user)
	if err != nil {
		return leverageApp.LeverageParams{}, err
	}

	depositAsset, ok := mono.AssetRegistry().GetBySymbolAndChain(symbol, mono.Config().Ethereum.ChainID)
	if !ok {
		return leverageApp.LeverageParams{}, fmt.Errorf("unknown asset symbol: %s", symbol)
	}

	deposit, err := asset.ParseString(depositAsset, depositStr)
	if err != nil {
		return leverageApp.LeverageParams{}, fmt.Errorf("invalid -deposit: %w", err)
	}

	multiplier, err := decimal.NewFromString(multiplierStr)
	if err != nil {
		return leverageApp.LeverageParams{}, fmt.Errorf("invalid -multiplier: %w", err)
	}

	return leverageApp.LeverageParams{
		User:          userAddr,
		DepositAmount: deposit,
		Multiplier:    multiplier,
	}, nil
}

func printLeverageSizing(mono monolith.Monolith, params leverageApp.LeverageParams, sizing *leverageDomain.LeveragePlan) {
	repay := mustLookup(mono, mono.Config().Leverage.RepaymentAsset)

	fmt.Printf("leverage sizing for %s x%s:\n", params.DepositAmount, params.Multiplier)
	fmt.Printf("  initial equity:    $%s\n", sizing.InitialEquityUSD.StringFixed(2))
	fmt.Printf("  total position:    $%s\n", sizing.TotalPositionUSD.StringFixed(2))
	fmt.Printf("  debt:              $%s\n", sizing.DebtUSD.StringFixed(2))
	fmt.Printf("  flash loan:        %s\n", asset.NewAmount(repay, sizing.FlashLoanRaw))
	fmt.Printf("  flash loan fee:    %s\n", asset.NewAmount(repay, sizing.FlashLoanFeeRaw))
	fmt.Printf("  LTV:               %s%%\n", sizing.LTVPercent.StringFixed(2))
	fmt.Printf("  liquidation price: $%s\n", sizing.LiquidationPriceUSD.StringFixed(2))
	fmt.Printf("  price drop buffer: %s%%\n", sizing.PriceDropBufferPercent.StringFixed(2))
}

func printPlanCost(ctx context.Context, mono monolith.Monolith, plan *txplan.Plan) {
	chainSvc := chainDI.GetChainService(mono.Services())
	cost, err := chainSvc.EstimatePlanCost(ctx, plan)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gas estimate unavailable: %v\n", err)
		return
	}
	fmt.Printf("estimated cost: %s ETH (%d gas at %s gwei)\n",
		cost.TotalEth().StringFixed(6), cost.GasLimit, cost.Price.Gwei().StringFixed(2))
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid or missing -user address: %q", s)
	}
	return common.HexToAddress(s), nil
}

func mustLookup(mono monolith.Monolith, symbol string) *asset.Asset {
	a, ok := mono.AssetRegistry().GetBySymbolAndChain(symbol, mono.Config().Ethereum.ChainID)
	if !ok {
		panic("unknown asset symbol: " + symbol)
	}
	return a
}
