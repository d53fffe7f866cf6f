package main

import (
	"context"
	"os"
	"strconv"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/rangelock/rvm/internal/adapter/rangepool"
	"github.com/rangelock/rvm/internal/agent"
	"github.com/rangelock/rvm/internal/amm"
	"github.com/rangelock/rvm/internal/bank"
	"github.com/rangelock/rvm/internal/catalog"
	"github.com/rangelock/rvm/internal/config"
	"github.com/rangelock/rvm/internal/factory"
	"github.com/rangelock/rvm/internal/fees"
	"github.com/rangelock/rvm/internal/gateway"
	"github.com/rangelock/rvm/internal/logger"
	"github.com/rangelock/rvm/internal/state"
	"github.com/rangelock/rvm/internal/types"
	"github.com/rangelock/rvm/internal/vault"
	"github.com/rangelock/rvm/internal/web"
)

const (
	poolAccount   = "rangepool-main"
	farmAccount   = "rangepool-farm"
	routerAccount = "router-main"
	feeAccount    = "protocol-fees"
)

// main is the entry point for the RVM daemon.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(os.Getenv("LOG_LEVEL"))
	log.Info().Msg("RVM custody daemon starting...")

	// Initialize Database Connection (event journal)
	dbCfg := state.DBConfig{
		Host: os.Getenv("DB_HOST"), Port: mustAtoi(os.Getenv("DB_PORT"), 5432),
		User: os.Getenv("DB_USER"), Password: os.Getenv("DB_PASSWORD"),
		DBName: os.Getenv("DB_NAME"), SSLMode: os.Getenv("DB_SSLMODE"),
	}
	if err := state.InitDB(dbCfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer state.CloseDB()
	if err := state.EnsureSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure database schema")
	}

	// --- 2. Custody substrate ---
	ledger := bank.NewLedger()

	denom0 := envOr("RVM_DENOM0", "uatom")
	denom1 := envOr("RVM_DENOM1", "uusdc")
	price, err := decimal.NewFromString(envOr("RVM_INITIAL_PRICE", "8.5"))
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid initial price")
	}

	pool, err := amm.NewPool(ledger, poolAccount, denom0, denom1, uint32(config.PoolFeeBps), price)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create pool")
	}
	seedPoolReserves(ledger, denom0, denom1)

	farm, err := rangepool.NewFarm(ledger, farmAccount, envOr("RVM_REWARD_DENOM", "urwd"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create staking farm")
	}

	poolAdapter, err := rangepool.New(ledger, pool, farm)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create position adapter")
	}

	feeLedger, err := fees.NewLedger(ledger, feeAccount, config.OwnerAddress)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create protocol fee ledger")
	}

	router, err := gateway.NewRouter(ledger, pool, routerAccount, uint32(config.RouterFeeBps), feeLedger)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create swap router")
	}

	// --- 3. Catalog, factory, vault ---
	strategyCatalog := catalog.New()
	strategy, err := strategyCatalog.Register(catalog.Strategy{
		Name:    config.StrategyName,
		Pair:    types.AssetPair{Denom0: denom0, Denom1: denom1},
		Adapter: poolAdapter,
		Router:  router,
		State:   []types.Snapshotter{pool, poolAdapter, farm, feeLedger},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to register strategy")
	}

	vaultFactory, err := factory.New(factory.Config{
		Bank:    ledger,
		Catalog: strategyCatalog,
		Events:  state.NewEventStore(),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create vault factory")
	}

	controller, err := vaultFactory.CreateVault(config.OwnerAddress, config.ExecutorAddress, strategy.ID, feeAccount)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to deploy vault")
	}

	bootstrapVault(ledger, controller, denom0, denom1)

	// --- 4. Web server ---
	webPort := os.Getenv("WEB_PORT")
	if webPort == "" {
		webPort = "8080"
	}
	webServer := web.NewWebServer(webPort, vaultFactory, strategyCatalog)
	go func() {
		log.Info().Str("port", webPort).Msg("Starting RVM state API")
		if err := webServer.Start(); err != nil {
			log.Error().Err(err).Msg("Web server failed to start")
		}
	}()

	// --- 5. Executor agent loop ---
	planner, err := agent.NewRangePlanner(pool, ledger, controller, mustAtoi(envOr("RVM_RANGE_WIDTH_TICKS", "100"), 100))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create planner")
	}

	executorAgent, err := agent.New(agent.Config{
		Controller: controller,
		Planner:    planner,
		Executor:   config.ExecutorAddress,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create executor agent")
	}

	interval := time.Duration(config.AgentIntervalSeconds) * time.Second
	log.Info().Str("interval", interval.String()).Msg("Starting executor agent loop")
	executorAgent.RunLoop(context.Background(), interval)
}

// bootstrapVault funds the vault account, applies the configured automation
// settings and opens the initial position when funded.
func bootstrapVault(ledger *bank.Ledger, controller *vault.Controller, denom0, denom1 string) {
	fund0 := envInt("RVM_FUNDING_AMOUNT0", 0)
	fund1 := envInt("RVM_FUNDING_AMOUNT1", 0)
	vaultAddr := controller.VaultAddress()

	if fund0 > 0 {
		if err := ledger.Mint(vaultAddr, denom0, sdkmath.NewInt(fund0)); err != nil {
			log.Fatal().Err(err).Msg("Failed to fund vault")
		}
	}
	if fund1 > 0 {
		if err := ledger.Mint(vaultAddr, denom1, sdkmath.NewInt(fund1)); err != nil {
			log.Fatal().Err(err).Msg("Failed to fund vault")
		}
	}

	owner := controller.Owner()
	if err := controller.SetAutomationConfig(owner, types.AutomationConfig{
		Cooldown:       time.Duration(config.CooldownSeconds) * time.Second,
		MaxSlippageBps: uint32(config.MaxSlippageBps),
		SwapAllowed:    config.SwapAllowed,
	}); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply automation config")
	}
	if err := controller.SetAutomationEnabled(owner, true); err != nil {
		log.Fatal().Err(err).Msg("Failed to enable automation")
	}

	if fund0 > 0 || fund1 > 0 {
		width := mustAtoi(envOr("RVM_RANGE_WIDTH_TICKS", "100"), 100)
		center := mustAtoi(envOr("RVM_INITIAL_CENTER_TICK", "850"), 850)
		if err := controller.OpenPosition(owner, center-width, center+width); err != nil {
			log.Fatal().Err(err).Msg("Failed to open initial position")
		}
	} else {
		log.Warn().Msg("Vault bootstrapped unfunded; waiting for deposits before opening a position")
	}
}

// seedPoolReserves mints the pool's counterparty reserves so swaps can pay out.
func seedPoolReserves(ledger *bank.Ledger, denom0, denom1 string) {
	reserve0 := envInt("RVM_POOL_RESERVE0", 1_000_000_000)
	reserve1 := envInt("RVM_POOL_RESERVE1", 1_000_000_000)
	if err := ledger.Mint(poolAccount, denom0, sdkmath.NewInt(reserve0)); err != nil {
		log.Fatal().Err(err).Msg("Failed to seed pool reserves")
	}
	if err := ledger.Mint(poolAccount, denom1, sdkmath.NewInt(reserve1)); err != nil {
		log.Fatal().Err(err).Msg("Failed to seed pool reserves")
	}
}

// Helper to convert string to int with a default value
func mustAtoi(s string, defaultValue int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return i
}

func envOr(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func envInt(key string, defaultValue int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}
