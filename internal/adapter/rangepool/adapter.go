package rangepool

import (
	"errors"
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/rangelock/rvm/internal/adapter"
	"github.com/rangelock/rvm/internal/amm"
	"github.com/rangelock/rvm/internal/bank"
	"github.com/rangelock/rvm/internal/logger"
	"github.com/rangelock/rvm/internal/types"
)

// Adapter implements adapter.PositionAdapter over a simulated rangepool.
// The pool holds deployed collateral; the adapter holds the handle per vault
// and, when a staking backend is configured, enforces that staked positions
// are not withdrawable.
type Adapter struct {
	mu sync.RWMutex

	log     zerolog.Logger
	ledger  *bank.Ledger
	pool    *amm.Pool
	staking StakingBackend // nil = protocol without staking

	handles map[string]types.PositionHandle
}

// New creates a rangepool adapter. staking may be nil.
func New(ledger *bank.Ledger, pool *amm.Pool, staking StakingBackend) (*Adapter, error) {
	if ledger == nil {
		return nil, errors.New("ledger is nil")
	}
	if pool == nil {
		return nil, errors.New("pool is nil")
	}
	return &Adapter{
		log:     logger.GetForComponent("rangepool_adapter"),
		ledger:  ledger,
		pool:    pool,
		staking: staking,
		handles: make(map[string]types.PositionHandle),
	}, nil
}

// Tokens returns the backing pool's pair.
func (a *Adapter) Tokens() (string, string) {
	return a.pool.Denoms()
}

// CurrentPositionHandle returns the vault's open handle, if any.
func (a *Adapter) CurrentPositionHandle(vault string) (types.PositionHandle, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	handle, ok := a.handles[vault]
	if !ok || handle.IsNone() {
		return types.NoPosition, false
	}
	return handle, true
}

// Open deploys the vault's full idle balance of both pool denoms over the
// given range.
func (a *Adapter) Open(vault string, lowerBound, upperBound int) (types.PositionHandle, sdkmath.Int, error) {
	if vault == "" {
		return types.NoPosition, sdkmath.ZeroInt(), errors.New("vault address is empty")
	}
	if _, open := a.CurrentPositionHandle(vault); open {
		return types.NoPosition, sdkmath.ZeroInt(), errors.Join(adapter.ErrPositionExists, fmt.Errorf("vault %s", vault))
	}

	denom0, denom1 := a.pool.Denoms()
	amt0 := a.ledger.BalanceOf(vault, denom0)
	amt1 := a.ledger.BalanceOf(vault, denom1)

	handle, err := a.pool.OpenPosition(vault, lowerBound, upperBound, amt0, amt1)
	if err != nil {
		return types.NoPosition, sdkmath.ZeroInt(), fmt.Errorf("pool open failed: %w", err)
	}

	a.mu.Lock()
	a.handles[vault] = handle
	a.mu.Unlock()

	size := a.positionSize(amt0, amt1)
	a.log.Info().
		Str("vault", vault).
		Uint64("handle", uint64(handle)).
		Int("lower", lowerBound).
		Int("upper", upperBound).
		Str("size", size.String()).
		Msg("Opened position")

	return handle, size, nil
}

// RebalanceWithCaps closes the open position and reopens it over the new
// range, pulling additional idle balance up to the per-asset caps. A zero
// cap means unlimited use of idle balance.
func (a *Adapter) RebalanceWithCaps(vault string, lowerBound, upperBound int, cap0, cap1 sdkmath.Int) (sdkmath.Int, error) {
	handle, open := a.CurrentPositionHandle(vault)
	if !open {
		return sdkmath.ZeroInt(), errors.Join(adapter.ErrNoPosition, fmt.Errorf("vault %s", vault))
	}
	if a.staking != nil && a.staking.IsStaked(handle) {
		return sdkmath.ZeroInt(), errors.Join(adapter.ErrPositionStaked, fmt.Errorf("handle %d", handle))
	}

	denom0, denom1 := a.pool.Denoms()
	idle0 := a.ledger.BalanceOf(vault, denom0)
	idle1 := a.ledger.BalanceOf(vault, denom1)

	returned, err := a.pool.ClosePosition(handle)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("pool close failed: %w", err)
	}

	deploy0 := returned.Amount0.Add(capAmount(idle0, cap0))
	deploy1 := returned.Amount1.Add(capAmount(idle1, cap1))

	newHandle, err := a.pool.OpenPosition(vault, lowerBound, upperBound, deploy0, deploy1)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("pool reopen failed: %w", err)
	}

	a.mu.Lock()
	a.handles[vault] = newHandle
	a.mu.Unlock()

	size := a.positionSize(deploy0, deploy1)
	a.log.Info().
		Str("vault", vault).
		Uint64("oldHandle", uint64(handle)).
		Uint64("newHandle", uint64(newHandle)).
		Str("size", size.String()).
		Msg("Rebalanced position")

	return size, nil
}

// capAmount limits idle usage by a cap, where zero means unlimited.
func capAmount(idle, cap sdkmath.Int) sdkmath.Int {
	if cap.IsNil() || cap.IsZero() {
		return idle
	}
	if idle.LT(cap) {
		return idle
	}
	return cap
}

// ExitToOwner closes any open position back to the vault account. No-op
// when nothing is open; fails while the position is staked.
func (a *Adapter) ExitToOwner(vault string) error {
	handle, open := a.CurrentPositionHandle(vault)
	if !open {
		a.log.Debug().Str("vault", vault).Msg("Exit requested with no open position")
		return nil
	}
	if a.staking != nil && a.staking.IsStaked(handle) {
		return errors.Join(adapter.ErrPositionStaked, fmt.Errorf("handle %d", handle))
	}

	returned, err := a.pool.ClosePosition(handle)
	if err != nil {
		return fmt.Errorf("pool close failed: %w", err)
	}

	a.mu.Lock()
	delete(a.handles, vault)
	a.mu.Unlock()

	a.log.Info().
		Str("vault", vault).
		Uint64("handle", uint64(handle)).
		Str("amount0", returned.Amount0.String()).
		Str("amount1", returned.Amount1.String()).
		Msg("Exited position to vault custody")

	return nil
}

// CollectToOwner pulls accrued yield into the vault account.
func (a *Adapter) CollectToOwner(vault string) (types.AssetAmounts, error) {
	handle, open := a.CurrentPositionHandle(vault)
	if !open {
		return types.ZeroAssetAmounts(), nil
	}

	collected, err := a.pool.CollectYield(handle)
	if err != nil {
		return types.ZeroAssetAmounts(), fmt.Errorf("pool collect failed: %w", err)
	}
	return collected, nil
}

// Stake stakes the open position. No-op without a staking backend.
func (a *Adapter) Stake(vault string) error {
	if a.staking == nil {
		return nil
	}
	handle, open := a.CurrentPositionHandle(vault)
	if !open {
		return errors.Join(adapter.ErrNoPosition, fmt.Errorf("vault %s", vault))
	}
	return a.staking.Stake(vault, handle)
}

// Unstake unstakes the open position. No-op without a staking backend.
func (a *Adapter) Unstake(vault string) error {
	if a.staking == nil {
		return nil
	}
	handle, open := a.CurrentPositionHandle(vault)
	if !open {
		return errors.Join(adapter.ErrNoPosition, fmt.Errorf("vault %s", vault))
	}
	return a.staking.Unstake(vault, handle)
}

// ClaimRewards pays accrued staking rewards to the vault account. No-op
// without a staking backend.
func (a *Adapter) ClaimRewards(vault string) error {
	if a.staking == nil {
		return nil
	}
	handle, open := a.CurrentPositionHandle(vault)
	if !open {
		return errors.Join(adapter.ErrNoPosition, fmt.Errorf("vault %s", vault))
	}
	amount, err := a.staking.Claim(vault, handle)
	if err != nil {
		return err
	}
	if amount.IsPositive() {
		a.log.Info().
			Str("vault", vault).
			Str("amount", amount.String()).
			Msg("Claimed staking rewards")
	}
	return nil
}

// positionSize values a position in denom1 units at the current spot price.
func (a *Adapter) positionSize(amt0, amt1 sdkmath.Int) sdkmath.Int {
	price := a.pool.SpotPrice()
	v0 := decimal.NewFromBigInt(amt0.BigInt(), 0).Mul(price)
	v1 := decimal.NewFromBigInt(amt1.BigInt(), 0)
	return sdkmath.NewIntFromBigInt(v0.Add(v1).BigInt())
}

// adapterSnapshot is a copy of the per-vault handle table.
type adapterSnapshot struct {
	handles map[string]types.PositionHandle
}

// Snapshot implements types.Snapshotter.
func (a *Adapter) Snapshot() any {
	a.mu.RLock()
	defer a.mu.RUnlock()

	snap := adapterSnapshot{handles: make(map[string]types.PositionHandle, len(a.handles))}
	for vault, handle := range a.handles {
		snap.handles[vault] = handle
	}
	return snap
}

// Restore implements types.Snapshotter.
func (a *Adapter) Restore(snapshot any) {
	snap, ok := snapshot.(adapterSnapshot)
	if !ok {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.handles = make(map[string]types.PositionHandle, len(snap.handles))
	for vault, handle := range snap.handles {
		a.handles[vault] = handle
	}
}
