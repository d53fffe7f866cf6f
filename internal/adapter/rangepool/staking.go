package rangepool

import (
	"errors"
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"

	"github.com/rangelock/rvm/internal/bank"
	"github.com/rangelock/rvm/internal/types"
)

// Error definitions for the farm backend
var (
	ErrAlreadyStaked = errors.New("position is already staked")
	ErrNotStaked     = errors.New("position is not staked")
)

// StakingBackend is the optional staking capability behind a rangepool
// adapter. A nil backend means the protocol has no staking and the adapter
// treats stake/unstake/claim as safe no-ops.
type StakingBackend interface {
	Stake(vault string, handle types.PositionHandle) error
	Unstake(vault string, handle types.PositionHandle) error
	IsStaked(handle types.PositionHandle) bool
	// Claim pays accrued rewards to the vault account and returns the amount.
	Claim(vault string, handle types.PositionHandle) (sdkmath.Int, error)
}

// Farm is an in-process staking backend: staked handles accrue a reward
// denom that Claim pays out from the farm account.
type Farm struct {
	mu sync.RWMutex

	ledger      *bank.Ledger
	account     string
	rewardDenom string

	staked  map[types.PositionHandle]bool
	rewards map[types.PositionHandle]sdkmath.Int
}

// NewFarm creates a farm backend bound to a ledger account.
func NewFarm(ledger *bank.Ledger, account, rewardDenom string) (*Farm, error) {
	if ledger == nil {
		return nil, errors.New("ledger is nil")
	}
	if account == "" || rewardDenom == "" {
		return nil, errors.New("farm account and reward denom are required")
	}
	return &Farm{
		ledger:      ledger,
		account:     account,
		rewardDenom: rewardDenom,
		staked:      make(map[types.PositionHandle]bool),
		rewards:     make(map[types.PositionHandle]sdkmath.Int),
	}, nil
}

// Stake marks the handle as staked.
func (f *Farm) Stake(vault string, handle types.PositionHandle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.staked[handle] {
		return errors.Join(ErrAlreadyStaked, fmt.Errorf("handle %d", handle))
	}
	f.staked[handle] = true
	return nil
}

// Unstake clears the staked mark.
func (f *Farm) Unstake(vault string, handle types.PositionHandle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.staked[handle] {
		return errors.Join(ErrNotStaked, fmt.Errorf("handle %d", handle))
	}
	delete(f.staked, handle)
	return nil
}

// IsStaked reports whether a handle is currently staked.
func (f *Farm) IsStaked(handle types.PositionHandle) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.staked[handle]
}

// AccrueReward mints rewards to the farm account and credits them to a
// staked handle. Fixture-driven.
func (f *Farm) AccrueReward(handle types.PositionHandle, amount sdkmath.Int) error {
	f.mu.Lock()
	cur, ok := f.rewards[handle]
	if !ok {
		cur = sdkmath.ZeroInt()
	}
	f.rewards[handle] = cur.Add(amount)
	f.mu.Unlock()

	return f.ledger.Mint(f.account, f.rewardDenom, amount)
}

// Claim pays the handle's accrued rewards to the vault account.
func (f *Farm) Claim(vault string, handle types.PositionHandle) (sdkmath.Int, error) {
	f.mu.Lock()
	amount, ok := f.rewards[handle]
	if !ok || amount.IsZero() {
		f.mu.Unlock()
		return sdkmath.ZeroInt(), nil
	}
	delete(f.rewards, handle)
	f.mu.Unlock()

	if err := f.ledger.Transfer(f.account, vault, f.rewardDenom, amount); err != nil {
		return sdkmath.ZeroInt(), err
	}
	return amount, nil
}

// farmSnapshot is a deep copy of the farm's mutable state.
type farmSnapshot struct {
	staked  map[types.PositionHandle]bool
	rewards map[types.PositionHandle]sdkmath.Int
}

// Snapshot implements types.Snapshotter.
func (f *Farm) Snapshot() any {
	f.mu.RLock()
	defer f.mu.RUnlock()

	snap := farmSnapshot{
		staked:  make(map[types.PositionHandle]bool, len(f.staked)),
		rewards: make(map[types.PositionHandle]sdkmath.Int, len(f.rewards)),
	}
	for h, s := range f.staked {
		snap.staked[h] = s
	}
	for h, r := range f.rewards {
		snap.rewards[h] = r
	}
	return snap
}

// Restore implements types.Snapshotter.
func (f *Farm) Restore(snapshot any) {
	snap, ok := snapshot.(farmSnapshot)
	if !ok {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.staked = make(map[types.PositionHandle]bool, len(snap.staked))
	for h, s := range snap.staked {
		f.staked[h] = s
	}
	f.rewards = make(map[types.PositionHandle]sdkmath.Int, len(snap.rewards))
	for h, r := range snap.rewards {
		f.rewards[h] = r
	}
}
