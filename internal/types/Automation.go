/*

This file contains the automation configuration and the request types for the
automated rebalance path.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/shopspring/decimal"
)

// AutomationConfig is the owner-controlled configuration for the automated
// rebalance path. It is replaced wholesale on update, never merged.
type AutomationConfig struct {
	Enabled        bool          `json:"enabled"`
	Cooldown       time.Duration `json:"cooldown"`
	MaxSlippageBps uint32        `json:"max_slippage_bps"` // advisory ceiling for the off-chain caller
	SwapAllowed    bool          `json:"swap_allowed"`
}

// RebalanceRequest carries the parameters for one automated rebalance,
// computed off-process by the executor agent. The controller validates and
// executes it; it never re-derives ranges or swap sizing.
type RebalanceRequest struct {
	LowerBound int `json:"lower_bound"`
	UpperBound int `json:"upper_bound"`

	// Swap leg. AmountIn of zero means no swap.
	TokenInDenom  string          `json:"token_in_denom"`
	TokenOutDenom string          `json:"token_out_denom"`
	AmountIn      sdkmath.Int     `json:"amount_in"`
	MinAmountOut  sdkmath.Int     `json:"min_amount_out"`
	PriceLimit    decimal.Decimal `json:"price_limit"` // zero = no limit
}

// HasSwap reports whether the request carries a nonzero swap leg.
func (r RebalanceRequest) HasSwap() bool {
	return !r.AmountIn.IsNil() && r.AmountIn.IsPositive()
}

// SwapOrder carries the parameters for a single exact-input swap through the
// vault's fixed gateway.
type SwapOrder struct {
	DenomIn      string          `json:"denom_in"`
	DenomOut     string          `json:"denom_out"`
	AmountIn     sdkmath.Int     `json:"amount_in"`
	MinAmountOut sdkmath.Int     `json:"min_amount_out"`
	PriceLimit   decimal.Decimal `json:"price_limit"` // zero = no limit
	Deadline     time.Time       `json:"deadline"`
}
