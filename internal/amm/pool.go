package amm

import (
	"errors"
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"
	"github.com/shopspring/decimal"

	"github.com/rangelock/rvm/internal/bank"
	"github.com/rangelock/rvm/internal/types"
)

// Error definitions for the simulated pool
var (
	ErrInvalidPoolConfig = errors.New("pool configuration is invalid")
	ErrUnknownDenom      = errors.New("denom is not part of the pool pair")
	ErrInvalidRange      = errors.New("range bounds are invalid")
	ErrUnknownPosition   = errors.New("position handle is unknown")
	ErrPriceLimitHit     = errors.New("execution price is past the price limit")
	ErrOutputBelowMin    = errors.New("swap output is below the minimum")
)

const bpsDenominator = 10_000

// Pool is a simulated two-asset concentrated-liquidity pool. It holds pool
// reserves and position collateral in its own ledger account and quotes
// exact-input swaps at a flat spot price minus the pool fee. It deliberately
// implements no tick math; it exists so adapters and the gateway have a real
// counterparty to move funds through.
type Pool struct {
	mu sync.RWMutex

	ledger  *bank.Ledger
	account string
	denom0  string
	denom1  string
	feeBps  uint32

	price decimal.Decimal // denom1 per denom0

	nextHandle uint64
	positions  map[types.PositionHandle]*position
}

// position is the pool-side record for one range position.
type position struct {
	owner  string
	lower  int
	upper  int
	amt0   sdkmath.Int
	amt1   sdkmath.Int
	yield0 sdkmath.Int
	yield1 sdkmath.Int
}

// NewPool creates a pool bound to a ledger account.
func NewPool(ledger *bank.Ledger, account, denom0, denom1 string, feeBps uint32, price decimal.Decimal) (*Pool, error) {
	if ledger == nil {
		return nil, errors.Join(ErrInvalidPoolConfig, errors.New("ledger is nil"))
	}
	if account == "" {
		return nil, errors.Join(ErrInvalidPoolConfig, errors.New("pool account is empty"))
	}
	if denom0 == "" || denom1 == "" || denom0 == denom1 {
		return nil, errors.Join(ErrInvalidPoolConfig, fmt.Errorf("invalid pair: %q/%q", denom0, denom1))
	}
	if feeBps >= bpsDenominator {
		return nil, errors.Join(ErrInvalidPoolConfig, fmt.Errorf("fee out of range: %d bps", feeBps))
	}
	if !price.IsPositive() {
		return nil, errors.Join(ErrInvalidPoolConfig, fmt.Errorf("spot price must be positive, got %s", price))
	}

	return &Pool{
		ledger:    ledger,
		account:   account,
		denom0:    denom0,
		denom1:    denom1,
		feeBps:    feeBps,
		price:     price,
		positions: make(map[types.PositionHandle]*position),
	}, nil
}

// Account returns the pool's ledger account address.
func (p *Pool) Account() string {
	return p.account
}

// Denoms returns the pool pair in canonical order.
func (p *Pool) Denoms() (string, string) {
	return p.denom0, p.denom1
}

// Pair returns the pool pair as an AssetPair.
func (p *Pool) Pair() types.AssetPair {
	return types.AssetPair{Denom0: p.denom0, Denom1: p.denom1}
}

// SpotPrice returns the current price of denom0 quoted in denom1.
func (p *Pool) SpotPrice() decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.price
}

// SetSpotPrice moves the pool price. Market movement is external to the
// custody core, so this is driven by fixtures and simulations only.
func (p *Pool) SetSpotPrice(price decimal.Decimal) error {
	if !price.IsPositive() {
		return errors.Join(ErrInvalidPoolConfig, fmt.Errorf("spot price must be positive, got %s", price))
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.price = price
	return nil
}

// OpenPosition pulls the given amounts from owner into the pool account and
// records a new range position. Returns the new handle.
func (p *Pool) OpenPosition(owner string, lower, upper int, amt0, amt1 sdkmath.Int) (types.PositionHandle, error) {
	if lower >= upper {
		return types.NoPosition, errors.Join(ErrInvalidRange, fmt.Errorf("lower %d >= upper %d", lower, upper))
	}
	if amt0.IsNil() || amt1.IsNil() || amt0.IsNegative() || amt1.IsNegative() {
		return types.NoPosition, errors.Join(bank.ErrInvalidAmount, errors.New("position amounts must be non-negative"))
	}

	if err := p.ledger.Transfer(owner, p.account, p.denom0, amt0); err != nil {
		return types.NoPosition, fmt.Errorf("failed to pull %s collateral: %w", p.denom0, err)
	}
	if err := p.ledger.Transfer(owner, p.account, p.denom1, amt1); err != nil {
		// Put the first leg back; the caller sees a clean failure.
		if rErr := p.ledger.Transfer(p.account, owner, p.denom0, amt0); rErr != nil {
			return types.NoPosition, errors.Join(err, rErr)
		}
		return types.NoPosition, fmt.Errorf("failed to pull %s collateral: %w", p.denom1, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.nextHandle++
	handle := types.PositionHandle(p.nextHandle)
	p.positions[handle] = &position{
		owner:  owner,
		lower:  lower,
		upper:  upper,
		amt0:   amt0,
		amt1:   amt1,
		yield0: sdkmath.ZeroInt(),
		yield1: sdkmath.ZeroInt(),
	}
	return handle, nil
}

// ClosePosition removes the position and pushes its collateral plus any
// accrued yield back to the position owner.
func (p *Pool) ClosePosition(handle types.PositionHandle) (types.AssetAmounts, error) {
	p.mu.Lock()
	pos, ok := p.positions[handle]
	if !ok {
		p.mu.Unlock()
		return types.ZeroAssetAmounts(), errors.Join(ErrUnknownPosition, fmt.Errorf("handle %d", handle))
	}
	delete(p.positions, handle)
	p.mu.Unlock()

	out := types.AssetAmounts{
		Amount0: pos.amt0.Add(pos.yield0),
		Amount1: pos.amt1.Add(pos.yield1),
	}
	if err := p.ledger.Transfer(p.account, pos.owner, p.denom0, out.Amount0); err != nil {
		return types.ZeroAssetAmounts(), fmt.Errorf("failed to return %s: %w", p.denom0, err)
	}
	if err := p.ledger.Transfer(p.account, pos.owner, p.denom1, out.Amount1); err != nil {
		return types.ZeroAssetAmounts(), fmt.Errorf("failed to return %s: %w", p.denom1, err)
	}
	return out, nil
}

// PositionAmounts returns the collateral currently recorded for a handle.
func (p *Pool) PositionAmounts(handle types.PositionHandle) (types.AssetAmounts, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	pos, ok := p.positions[handle]
	if !ok {
		return types.ZeroAssetAmounts(), errors.Join(ErrUnknownPosition, fmt.Errorf("handle %d", handle))
	}
	return types.AssetAmounts{Amount0: pos.amt0, Amount1: pos.amt1}, nil
}

// PositionRange returns the recorded bounds for a handle.
func (p *Pool) PositionRange(handle types.PositionHandle) (int, int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	pos, ok := p.positions[handle]
	if !ok {
		return 0, 0, errors.Join(ErrUnknownPosition, fmt.Errorf("handle %d", handle))
	}
	return pos.lower, pos.upper, nil
}

// AccrueYield mints trading-fee yield to the pool account and credits it to
// a position. Fixture-driven, like SetSpotPrice.
func (p *Pool) AccrueYield(handle types.PositionHandle, amt0, amt1 sdkmath.Int) error {
	p.mu.Lock()
	pos, ok := p.positions[handle]
	if !ok {
		p.mu.Unlock()
		return errors.Join(ErrUnknownPosition, fmt.Errorf("handle %d", handle))
	}
	pos.yield0 = pos.yield0.Add(amt0)
	pos.yield1 = pos.yield1.Add(amt1)
	p.mu.Unlock()

	if err := p.ledger.Mint(p.account, p.denom0, amt0); err != nil {
		return err
	}
	return p.ledger.Mint(p.account, p.denom1, amt1)
}

// CollectYield pushes a position's accrued yield to its owner and resets the
// accrual.
func (p *Pool) CollectYield(handle types.PositionHandle) (types.AssetAmounts, error) {
	p.mu.Lock()
	pos, ok := p.positions[handle]
	if !ok {
		p.mu.Unlock()
		return types.ZeroAssetAmounts(), errors.Join(ErrUnknownPosition, fmt.Errorf("handle %d", handle))
	}
	out := types.AssetAmounts{Amount0: pos.yield0, Amount1: pos.yield1}
	owner := pos.owner
	pos.yield0 = sdkmath.ZeroInt()
	pos.yield1 = sdkmath.ZeroInt()
	p.mu.Unlock()

	if err := p.ledger.Transfer(p.account, owner, p.denom0, out.Amount0); err != nil {
		return types.ZeroAssetAmounts(), err
	}
	if err := p.ledger.Transfer(p.account, owner, p.denom1, out.Amount1); err != nil {
		return types.ZeroAssetAmounts(), err
	}
	return out, nil
}

// QuoteExactIn returns the output for an exact-input swap at the current
// spot price, net of the pool fee.
func (p *Pool) QuoteExactIn(denomIn string, amountIn sdkmath.Int) (sdkmath.Int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.quoteLocked(denomIn, amountIn)
}

func (p *Pool) quoteLocked(denomIn string, amountIn sdkmath.Int) (sdkmath.Int, error) {
	if denomIn != p.denom0 && denomIn != p.denom1 {
		return sdkmath.ZeroInt(), errors.Join(ErrUnknownDenom, fmt.Errorf("denom %q", denomIn))
	}
	if amountIn.IsNil() || !amountIn.IsPositive() {
		return sdkmath.ZeroInt(), errors.Join(bank.ErrInvalidAmount, errors.New("amount in must be positive"))
	}

	in := decimal.NewFromBigInt(amountIn.BigInt(), 0)
	var gross decimal.Decimal
	if denomIn == p.denom0 {
		gross = in.Mul(p.price)
	} else {
		gross = in.Div(p.price)
	}
	feeFactor := decimal.NewFromInt(bpsDenominator - int64(p.feeBps)).Div(decimal.NewFromInt(bpsDenominator))
	net := gross.Mul(feeFactor)
	return sdkmath.NewIntFromBigInt(net.BigInt()), nil
}

// SwapExactIn executes an exact-input swap for trader against the pool
// reserves: input moves trader -> pool, output moves pool -> trader. The
// price limit is the worst acceptable execution price of the input denom
// quoted in the output denom; zero disables the check.
func (p *Pool) SwapExactIn(trader, denomIn string, amountIn, minAmountOut sdkmath.Int, priceLimit decimal.Decimal) (sdkmath.Int, error) {
	p.mu.Lock()
	out, err := p.quoteLocked(denomIn, amountIn)
	if err != nil {
		p.mu.Unlock()
		return sdkmath.ZeroInt(), err
	}

	execPrice := p.price
	denomOut := p.denom1
	if denomIn == p.denom1 {
		execPrice = decimal.NewFromInt(1).Div(p.price)
		denomOut = p.denom0
	}
	p.mu.Unlock()

	if !priceLimit.IsZero() && execPrice.LessThan(priceLimit) {
		return sdkmath.ZeroInt(), errors.Join(ErrPriceLimitHit,
			fmt.Errorf("execution price %s below limit %s", execPrice, priceLimit))
	}
	if !minAmountOut.IsNil() && out.LT(minAmountOut) {
		return sdkmath.ZeroInt(), errors.Join(ErrOutputBelowMin,
			fmt.Errorf("output %s below minimum %s", out, minAmountOut))
	}

	if err := p.ledger.Transfer(trader, p.account, denomIn, amountIn); err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("failed to pull swap input: %w", err)
	}
	if err := p.ledger.Transfer(p.account, trader, denomOut, out); err != nil {
		// Undo the input leg so a dry pool surfaces as a clean revert.
		if rErr := p.ledger.Transfer(p.account, trader, denomIn, amountIn); rErr != nil {
			return sdkmath.ZeroInt(), errors.Join(err, rErr)
		}
		return sdkmath.ZeroInt(), fmt.Errorf("failed to pay swap output: %w", err)
	}
	return out, nil
}

// poolSnapshot is a deep copy of the pool's mutable state. Ledger balances
// are snapshotted separately by the ledger itself.
type poolSnapshot struct {
	price      decimal.Decimal
	nextHandle uint64
	positions  map[types.PositionHandle]position
}

// Snapshot implements types.Snapshotter.
func (p *Pool) Snapshot() any {
	p.mu.RLock()
	defer p.mu.RUnlock()

	snap := poolSnapshot{
		price:      p.price,
		nextHandle: p.nextHandle,
		positions:  make(map[types.PositionHandle]position, len(p.positions)),
	}
	for h, pos := range p.positions {
		snap.positions[h] = *pos
	}
	return snap
}

// Restore implements types.Snapshotter.
func (p *Pool) Restore(snapshot any) {
	snap, ok := snapshot.(poolSnapshot)
	if !ok {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.price = snap.price
	p.nextHandle = snap.nextHandle
	p.positions = make(map[types.PositionHandle]*position, len(snap.positions))
	for h, pos := range snap.positions {
		cp := pos
		p.positions[h] = &cp
	}
}
