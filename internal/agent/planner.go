package agent

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/shopspring/decimal"

	"github.com/rangelock/rvm/internal/amm"
	"github.com/rangelock/rvm/internal/bank"
	"github.com/rangelock/rvm/internal/types"
	"github.com/rangelock/rvm/internal/vault"
)

// Planner computes the parameters for the next automated rebalance. All
// range selection and swap sizing happens here, on the executor's side; the
// controller only validates and executes what it is given.
type Planner interface {
	Plan() (types.RebalanceRequest, error)
}

const bpsDenominator = 10_000

// ticksPerPriceUnit maps the pool's decimal spot price onto the integer
// range domain used for position bounds.
const ticksPerPriceUnit = 100

// RangePlanner recenters the position range around the current spot price
// and sizes an optional swap to move the vault's holdings toward an even
// split between the two assets.
type RangePlanner struct {
	pool       *amm.Pool
	ledger     *bank.Ledger
	controller *vault.Controller
	widthTicks int
}

// NewRangePlanner creates a planner for one vault.
func NewRangePlanner(pool *amm.Pool, ledger *bank.Ledger, controller *vault.Controller, widthTicks int) (*RangePlanner, error) {
	if pool == nil || ledger == nil || controller == nil {
		return nil, errors.New("pool, ledger and controller are required")
	}
	if widthTicks <= 0 {
		return nil, fmt.Errorf("width must be positive, got %d", widthTicks)
	}
	return &RangePlanner{
		pool:       pool,
		ledger:     ledger,
		controller: controller,
		widthTicks: widthTicks,
	}, nil
}

// Plan implements Planner.
func (p *RangePlanner) Plan() (types.RebalanceRequest, error) {
	denom0, denom1 := p.pool.Denoms()
	price := p.pool.SpotPrice()

	center := int(price.Mul(decimal.NewFromInt(ticksPerPriceUnit)).IntPart())
	req := types.RebalanceRequest{
		LowerBound:    center - p.widthTicks,
		UpperBound:    center + p.widthTicks,
		TokenInDenom:  denom0,
		TokenOutDenom: denom1,
		AmountIn:      sdkmath.ZeroInt(),
		MinAmountOut:  sdkmath.ZeroInt(),
	}

	cfg := p.controller.AutomationConfig()
	if !cfg.SwapAllowed {
		return req, nil
	}

	total0, total1, err := p.totalHoldings(denom0, denom1)
	if err != nil {
		return types.RebalanceRequest{}, err
	}

	// Value both sides in denom1 and swap half the excess across.
	v0 := decimal.NewFromBigInt(total0.BigInt(), 0).Mul(price)
	v1 := decimal.NewFromBigInt(total1.BigInt(), 0)

	var amountIn sdkmath.Int
	if v0.GreaterThan(v1) {
		excess := v0.Sub(v1).Div(decimal.NewFromInt(2))
		amountIn = sdkmath.NewIntFromBigInt(excess.Div(price).BigInt())
		req.TokenInDenom, req.TokenOutDenom = denom0, denom1
	} else {
		excess := v1.Sub(v0).Div(decimal.NewFromInt(2))
		amountIn = sdkmath.NewIntFromBigInt(excess.BigInt())
		req.TokenInDenom, req.TokenOutDenom = denom1, denom0
	}
	if !amountIn.IsPositive() {
		return req, nil
	}
	req.AmountIn = amountIn

	// Honor the vault's advisory slippage ceiling when setting the floor.
	quote, err := p.pool.QuoteExactIn(req.TokenInDenom, amountIn)
	if err != nil {
		return types.RebalanceRequest{}, fmt.Errorf("failed to quote planned swap: %w", err)
	}
	req.MinAmountOut = quote.MulRaw(bpsDenominator - int64(cfg.MaxSlippageBps)).QuoRaw(bpsDenominator)

	return req, nil
}

// totalHoldings sums idle balances with deployed position collateral.
func (p *RangePlanner) totalHoldings(denom0, denom1 string) (sdkmath.Int, sdkmath.Int, error) {
	vaultAddr := p.controller.VaultAddress()
	total0 := p.ledger.BalanceOf(vaultAddr, denom0)
	total1 := p.ledger.BalanceOf(vaultAddr, denom1)

	if handle, open := p.controller.PositionHandle(); open {
		deployed, err := p.pool.PositionAmounts(handle)
		if err != nil {
			return sdkmath.ZeroInt(), sdkmath.ZeroInt(), fmt.Errorf("failed to read position amounts: %w", err)
		}
		total0 = total0.Add(deployed.Amount0)
		total1 = total1.Add(deployed.Amount1)
	}
	return total0, total1, nil
}
