package adapter

import (
	"errors"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/rangelock/rvm/internal/types"
)

// Error definitions shared by all adapter implementations. Concrete adapters
// join these with protocol detail so callers can classify failures without
// knowing the backing protocol.
var (
	ErrNoPosition     = errors.New("no position is open for this vault")
	ErrPositionExists = errors.New("a position is already open for this vault")
	ErrPositionStaked = errors.New("position is staked and not withdrawable")
)

// PositionAdapter is the protocol-agnostic position-management capability the
// custody controller depends on. One implementation exists per backing AMM
// protocol; the instance is bound to a controller at construction and never
// switched.
//
// Contract: the adapter owns the position handle per calling vault, pulls
// assets from the vault account when opening or increasing, and pushes assets
// back to the vault account when exiting or collecting. Stake, Unstake and
// ClaimRewards must succeed as no-ops when the implementation has no staking
// backend. ExitToOwner and CollectToOwner must treat "nothing open" as a
// successful no-op, not a failure.
type PositionAdapter interface {
	// Tokens returns the adapter's configured asset pair in canonical order.
	Tokens() (string, string)

	// CurrentPositionHandle returns the open position handle for the vault,
	// or false when none is open.
	CurrentPositionHandle(vault string) (types.PositionHandle, bool)

	// Open deploys the vault's full idle balance of both assets over the
	// given range and returns the new handle and the position size.
	Open(vault string, lowerBound, upperBound int) (types.PositionHandle, sdkmath.Int, error)

	// RebalanceWithCaps moves the open position to a new range. It may pull
	// additional idle balance from the vault up to the per-asset caps; a
	// zero cap means unlimited use of idle balance. Returns the new size.
	RebalanceWithCaps(vault string, lowerBound, upperBound int, cap0, cap1 sdkmath.Int) (sdkmath.Int, error)

	// ExitToOwner closes any open position and returns all assets to the
	// vault account. No-op when nothing is open.
	ExitToOwner(vault string) error

	// CollectToOwner pulls accrued yield into the vault account and returns
	// the collected amounts. Zero amounts when nothing is open.
	CollectToOwner(vault string) (types.AssetAmounts, error)

	// Stake, Unstake and ClaimRewards delegate to the protocol's staking
	// backend when one exists.
	Stake(vault string) error
	Unstake(vault string) error
	ClaimRewards(vault string) error
}

// BestEffort runs a designated optional step and discards its failure after
// logging it. The controller uses this only for steps the operation table
// marks best-effort; mandatory steps are never routed through here.
func BestEffort(log zerolog.Logger, step string, fn func() error) {
	if err := fn(); err != nil {
		log.Warn().Err(err).Str("step", step).Msg("Best-effort step failed, continuing")
	}
}
