package vault

import (
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/rangelock/rvm/internal/types"
)

// ObservableState is the read-only view of a controller exposed to any
// caller, role or not.
type ObservableState struct {
	Vault             string                 `json:"vault"`
	Owner             string                 `json:"owner"`
	Executor          string                 `json:"executor"`
	Gateway           string                 `json:"gateway"`
	FeeSink           string                 `json:"fee_sink,omitempty"`
	StrategyID        string                 `json:"strategy_id"`
	Pair              types.AssetPair        `json:"pair"`
	Automation        types.AutomationConfig `json:"automation"`
	PositionHandle    types.PositionHandle   `json:"position_handle"`
	LastAutoRebalance time.Time              `json:"last_auto_rebalance"`
	IdleBalances      types.AssetAmounts     `json:"idle_balances"`
}

// Owner returns the owner identity.
func (c *Controller) Owner() string { return c.owner }

// Executor returns the automation identity.
func (c *Controller) Executor() string { return c.executor }

// VaultAddress returns the vault's custody account address.
func (c *Controller) VaultAddress() string { return c.vaultAddr }

// StrategyID returns the opaque strategy reference.
func (c *Controller) StrategyID() string { return c.strategyID }

// FeeSink returns the optional fee sink address, empty when absent.
func (c *Controller) FeeSink() string { return c.feeSink }

// GatewayAddress returns the fixed swap gateway binding.
func (c *Controller) GatewayAddress() string { return c.gateway.Address() }

// Pair returns the underlying asset pair, delegated from the adapter.
func (c *Controller) Pair() types.AssetPair {
	denom0, denom1 := c.adapter.Tokens()
	return types.AssetPair{Denom0: denom0, Denom1: denom1}
}

// AutomationConfig returns the current automation configuration.
func (c *Controller) AutomationConfig() types.AutomationConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.autoCfg
}

// PositionHandle returns the cached position handle and whether one is open.
func (c *Controller) PositionHandle() (types.PositionHandle, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.handle, !c.handle.IsNone()
}

// LastAutomatedRebalance returns the timestamp of the last successful
// automated rebalance, zero when none has happened.
func (c *Controller) LastAutomatedRebalance() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastAutoRebalance
}

// IdleBalances returns the vault account's undeployed balances of the pair.
func (c *Controller) IdleBalances() types.AssetAmounts {
	denom0, denom1 := c.adapter.Tokens()
	return types.AssetAmounts{
		Amount0: c.bank.BalanceOf(c.vaultAddr, denom0),
		Amount1: c.bank.BalanceOf(c.vaultAddr, denom1),
	}
}

// IdleValue returns the raw sum of both idle balances. Zero means nothing
// is deployable.
func (c *Controller) IdleValue() sdkmath.Int {
	bals := c.IdleBalances()
	return bals.Amount0.Add(bals.Amount1)
}

// Observe assembles the full read-only view.
func (c *Controller) Observe() ObservableState {
	c.mu.RLock()
	cfg := c.autoCfg
	handle := c.handle
	last := c.lastAutoRebalance
	c.mu.RUnlock()

	return ObservableState{
		Vault:             c.vaultAddr,
		Owner:             c.owner,
		Executor:          c.executor,
		Gateway:           c.gateway.Address(),
		FeeSink:           c.feeSink,
		StrategyID:        c.strategyID,
		Pair:              c.Pair(),
		Automation:        cfg,
		PositionHandle:    handle,
		LastAutoRebalance: last,
		IdleBalances:      c.IdleBalances(),
	}
}
