package config

import (
	"errors"
	"os"
	"strconv"

	"github.com/rs/zerolog/log"
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// OwnerAddress is the beneficiary identity holding full management rights.
	OwnerAddress string
	// ExecutorAddress is the automation identity restricted to automated rebalances.
	ExecutorAddress string

	// StrategyName selects the catalog strategy the daemon's vault is created from.
	StrategyName string

	// AgentIntervalSeconds is the executor agent's cycle interval.
	AgentIntervalSeconds uint64

	// CooldownSeconds is the initial automation cooldown applied at bootstrap.
	CooldownSeconds uint64
	// MaxSlippageBps is the advisory slippage ceiling handed to the agent.
	MaxSlippageBps uint64
	// SwapAllowed controls whether the automated path may carry a swap leg.
	SwapAllowed bool

	// PoolFeeBps and RouterFeeBps parameterize the simulated pool and router.
	PoolFeeBps   uint64
	RouterFeeBps uint64
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
// All environment variables are required and must be set.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	OwnerAddress, err = getEnv("RVM_OWNER_ADDRESS")
	if err != nil {
		return err
	}

	ExecutorAddress, err = getEnv("RVM_EXECUTOR_ADDRESS")
	if err != nil {
		return err
	}

	StrategyName, err = getEnv("RVM_STRATEGY_NAME")
	if err != nil {
		return err
	}

	AgentIntervalSeconds, err = getEnvAsUint64("RVM_AGENT_INTERVAL_SECONDS")
	if err != nil {
		return err
	}

	CooldownSeconds, err = getEnvAsUint64("RVM_COOLDOWN_SECONDS")
	if err != nil {
		return err
	}

	MaxSlippageBps, err = getEnvAsUint64("RVM_MAX_SLIPPAGE_BPS")
	if err != nil {
		return err
	}

	SwapAllowed, err = getEnvAsBool("RVM_SWAP_ALLOWED")
	if err != nil {
		return err
	}

	PoolFeeBps, err = getEnvAsUint64("RVM_POOL_FEE_BPS")
	if err != nil {
		return err
	}

	RouterFeeBps, err = getEnvAsUint64("RVM_ROUTER_FEE_BPS")
	if err != nil {
		return err
	}

	log.Debug().
		Str("Owner", OwnerAddress).
		Str("Executor", ExecutorAddress).
		Str("Strategy", StrategyName).
		Msg("Configuration loaded successfully.")

	return nil
}

// getEnv retrieves a string environment variable. Returns error if not set
// or empty.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvAsUint64 retrieves an environment variable as a uint64. Returns error if not set or invalid.
func getEnvAsUint64(key string) (uint64, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid uint64, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsBool retrieves an environment variable as a bool. Returns error if not set or invalid.
func getEnvAsBool(key string) (bool, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return false, err
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return false, errors.New("environment variable " + key + " must be a valid bool, got: " + valueStr)
	}
	return value, nil
}
