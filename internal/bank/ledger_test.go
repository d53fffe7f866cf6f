package bank

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"
)

func TestMintAndBalance(t *testing.T) {
	l := NewLedger()

	require.NoError(t, l.Mint("alice", "uatom", sdkmath.NewInt(1000)))
	require.Equal(t, sdkmath.NewInt(1000), l.BalanceOf("alice", "uatom"))

	// Unknown accounts and denoms read as zero.
	require.True(t, l.BalanceOf("bob", "uatom").IsZero())
	require.True(t, l.BalanceOf("alice", "uusdc").IsZero())
}

func TestTransfer(t *testing.T) {
	l := NewLedger()
	require.NoError(t, l.Mint("alice", "uatom", sdkmath.NewInt(500)))

	require.NoError(t, l.Transfer("alice", "bob", "uatom", sdkmath.NewInt(200)))
	require.Equal(t, sdkmath.NewInt(300), l.BalanceOf("alice", "uatom"))
	require.Equal(t, sdkmath.NewInt(200), l.BalanceOf("bob", "uatom"))
}

func TestTransferInsufficientBalance(t *testing.T) {
	l := NewLedger()
	require.NoError(t, l.Mint("alice", "uatom", sdkmath.NewInt(100)))

	err := l.Transfer("alice", "bob", "uatom", sdkmath.NewInt(101))
	require.ErrorIs(t, err, ErrInsufficientBalance)
	require.Equal(t, sdkmath.NewInt(100), l.BalanceOf("alice", "uatom"))
	require.True(t, l.BalanceOf("bob", "uatom").IsZero())
}

func TestTransferValidation(t *testing.T) {
	l := NewLedger()

	require.ErrorIs(t, l.Transfer("", "bob", "uatom", sdkmath.NewInt(1)), ErrInvalidAddress)
	require.ErrorIs(t, l.Transfer("alice", "", "uatom", sdkmath.NewInt(1)), ErrInvalidAddress)
	require.ErrorIs(t, l.Transfer("alice", "bob", "", sdkmath.NewInt(1)), ErrInvalidAmount)
	require.ErrorIs(t, l.Transfer("alice", "bob", "uatom", sdkmath.Int{}), ErrInvalidAmount)
	require.ErrorIs(t, l.Transfer("alice", "bob", "uatom", sdkmath.NewInt(-1)), ErrInvalidAmount)

	// Zero-amount transfers are accepted and move nothing.
	require.NoError(t, l.Transfer("alice", "bob", "uatom", sdkmath.ZeroInt()))
}

func TestApproveReplacesGrant(t *testing.T) {
	l := NewLedger()

	require.NoError(t, l.Approve("alice", "router", "uatom", sdkmath.NewInt(100)))
	require.Equal(t, sdkmath.NewInt(100), l.Allowance("alice", "router", "uatom"))

	require.NoError(t, l.Approve("alice", "router", "uatom", sdkmath.NewInt(40)))
	require.Equal(t, sdkmath.NewInt(40), l.Allowance("alice", "router", "uatom"))

	require.NoError(t, l.Approve("alice", "router", "uatom", sdkmath.ZeroInt()))
	require.True(t, l.Allowance("alice", "router", "uatom").IsZero())
}

func TestTransferFromConsumesAllowance(t *testing.T) {
	l := NewLedger()
	require.NoError(t, l.Mint("alice", "uatom", sdkmath.NewInt(1000)))
	require.NoError(t, l.Approve("alice", "router", "uatom", sdkmath.NewInt(300)))

	require.NoError(t, l.TransferFrom("router", "alice", "router", "uatom", sdkmath.NewInt(200)))
	require.Equal(t, sdkmath.NewInt(800), l.BalanceOf("alice", "uatom"))
	require.Equal(t, sdkmath.NewInt(200), l.BalanceOf("router", "uatom"))
	require.Equal(t, sdkmath.NewInt(100), l.Allowance("alice", "router", "uatom"))
}

func TestTransferFromRejectsOverGrant(t *testing.T) {
	l := NewLedger()
	require.NoError(t, l.Mint("alice", "uatom", sdkmath.NewInt(1000)))
	require.NoError(t, l.Approve("alice", "router", "uatom", sdkmath.NewInt(50)))

	err := l.TransferFrom("router", "alice", "router", "uatom", sdkmath.NewInt(51))
	require.ErrorIs(t, err, ErrInsufficientAllowance)
	require.Equal(t, sdkmath.NewInt(1000), l.BalanceOf("alice", "uatom"))
	require.Equal(t, sdkmath.NewInt(50), l.Allowance("alice", "router", "uatom"))
}

func TestTransferFromWithoutGrant(t *testing.T) {
	l := NewLedger()
	require.NoError(t, l.Mint("alice", "uatom", sdkmath.NewInt(1000)))

	err := l.TransferFrom("router", "alice", "router", "uatom", sdkmath.NewInt(1))
	require.ErrorIs(t, err, ErrInsufficientAllowance)
}

func TestTotalSupplyConservedByTransfers(t *testing.T) {
	l := NewLedger()
	require.NoError(t, l.Mint("alice", "uatom", sdkmath.NewInt(700)))
	require.NoError(t, l.Mint("bob", "uatom", sdkmath.NewInt(300)))

	require.NoError(t, l.Transfer("alice", "carol", "uatom", sdkmath.NewInt(250)))
	require.NoError(t, l.Transfer("bob", "alice", "uatom", sdkmath.NewInt(300)))

	require.Equal(t, sdkmath.NewInt(1000), l.TotalSupply("uatom"))
}

func TestSnapshotRestore(t *testing.T) {
	l := NewLedger()
	require.NoError(t, l.Mint("alice", "uatom", sdkmath.NewInt(100)))
	require.NoError(t, l.Approve("alice", "router", "uatom", sdkmath.NewInt(30)))

	snap := l.Snapshot()

	require.NoError(t, l.Transfer("alice", "bob", "uatom", sdkmath.NewInt(60)))
	require.NoError(t, l.Approve("alice", "router", "uatom", sdkmath.ZeroInt()))

	l.Restore(snap)

	require.Equal(t, sdkmath.NewInt(100), l.BalanceOf("alice", "uatom"))
	require.True(t, l.BalanceOf("bob", "uatom").IsZero())
	require.Equal(t, sdkmath.NewInt(30), l.Allowance("alice", "router", "uatom"))
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	l := NewLedger()
	require.NoError(t, l.Mint("alice", "uatom", sdkmath.NewInt(100)))

	snap := l.Snapshot()
	require.NoError(t, l.Mint("alice", "uatom", sdkmath.NewInt(900)))

	l.Restore(snap)
	require.Equal(t, sdkmath.NewInt(100), l.BalanceOf("alice", "uatom"))
}
