/*

This file contains the asset types shared by the custody controller, the
position adapters and the swap gateway.

*/

package types

import (
	sdkmath "cosmossdk.io/math"
)

// AssetPair identifies the two underlying denoms of a vault's strategy.
type AssetPair struct {
	Denom0 string `json:"denom0"`
	Denom1 string `json:"denom1"`
}

// Matches reports whether the given denoms are this pair, in either order.
func (p AssetPair) Matches(a, b string) bool {
	if a == p.Denom0 && b == p.Denom1 {
		return true
	}
	return a == p.Denom1 && b == p.Denom0
}

// Contains reports whether the denom is one of the pair.
func (p AssetPair) Contains(denom string) bool {
	return denom == p.Denom0 || denom == p.Denom1
}

// AssetAmounts carries an amount of each underlying asset, in pair order.
type AssetAmounts struct {
	Amount0 sdkmath.Int `json:"amount0"`
	Amount1 sdkmath.Int `json:"amount1"`
}

// ZeroAssetAmounts returns a zero-valued pair of amounts.
func ZeroAssetAmounts() AssetAmounts {
	return AssetAmounts{Amount0: sdkmath.ZeroInt(), Amount1: sdkmath.ZeroInt()}
}

// IsZero reports whether both amounts are zero.
func (a AssetAmounts) IsZero() bool {
	return a.Amount0.IsZero() && a.Amount1.IsZero()
}

// PositionHandle is an opaque identifier for a concentrated-liquidity
// position held through an adapter. Zero means no position.
type PositionHandle uint64

// NoPosition is the zero handle.
const NoPosition PositionHandle = 0

// IsNone reports whether the handle refers to no open position.
func (h PositionHandle) IsNone() bool {
	return h == NoPosition
}
