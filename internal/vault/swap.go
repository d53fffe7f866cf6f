package vault

import (
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/shopspring/decimal"

	"github.com/rangelock/rvm/internal/types"
)

// swapDeadlineGrace is the fixed window added to the current execution time
// when building the gateway deadline.
const swapDeadlineGrace = 60 * time.Second

// ManualSwap performs a single exact-input swap through the fixed gateway.
// Owner only; funds remain inside the vault. The caller's minimum-output
// and price-limit bounds are forwarded unmodified; the controller performs
// no independent slippage verification.
func (c *Controller) ManualSwap(caller, denomIn, denomOut string, amountIn, minAmountOut sdkmath.Int, priceLimit decimal.Decimal) (sdkmath.Int, error) {
	if err := c.requireOwner(caller); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if amountIn.IsNil() || !amountIn.IsPositive() {
		return sdkmath.ZeroInt(), ErrZeroSwapAmount
	}

	out := sdkmath.ZeroInt()
	err := c.run("manual_swap", func() error {
		var err error
		out, err = c.swapExactIn(types.SwapOrder{
			DenomIn:      denomIn,
			DenomOut:     denomOut,
			AmountIn:     amountIn,
			MinAmountOut: minAmountOut,
			PriceLimit:   priceLimit,
		})
		return err
	})
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return out, nil
}

// swapExactIn is the gateway interaction helper. It raises the gateway's
// allowance to exactly the amount needed, stamps a deadline of now plus a
// small grace window, and revokes any residual allowance after the call
// whether or not it succeeded.
func (c *Controller) swapExactIn(order types.SwapOrder) (sdkmath.Int, error) {
	spender := c.gateway.Address()

	current := c.bank.Allowance(c.vaultAddr, spender, order.DenomIn)
	if current.LT(order.AmountIn) {
		if err := c.bank.Approve(c.vaultAddr, spender, order.DenomIn, order.AmountIn); err != nil {
			return sdkmath.ZeroInt(), errors.Join(ErrSwapFailed, fmt.Errorf("failed to grant allowance: %w", err))
		}
	}
	order.Deadline = c.now().Add(swapDeadlineGrace)

	out, swapErr := c.gateway.SwapExactIn(c.vaultAddr, order)

	// Never leave a standing grant across unrelated calls.
	if residual := c.bank.Allowance(c.vaultAddr, spender, order.DenomIn); residual.IsPositive() {
		if err := c.bank.Approve(c.vaultAddr, spender, order.DenomIn, sdkmath.ZeroInt()); err != nil {
			c.log.Error().Err(err).Msg("Failed to revoke residual swap allowance")
		}
	}

	if swapErr != nil {
		return sdkmath.ZeroInt(), errors.Join(ErrSwapFailed, swapErr)
	}

	c.log.Info().
		Str("gateway", spender).
		Str("denomIn", order.DenomIn).
		Str("denomOut", order.DenomOut).
		Str("amountIn", order.AmountIn.String()).
		Str("amountOut", out.String()).
		Msg("Swap executed through gateway")
	c.emit(types.EventSwapExecuted, c.vaultAddr, map[string]string{
		"gateway":    spender,
		"denom_in":   order.DenomIn,
		"denom_out":  order.DenomOut,
		"amount_in":  order.AmountIn.String(),
		"amount_out": out.String(),
	})

	return out, nil
}
