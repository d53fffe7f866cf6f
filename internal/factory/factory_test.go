package factory

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/rangelock/rvm/internal/adapter/rangepool"
	"github.com/rangelock/rvm/internal/amm"
	"github.com/rangelock/rvm/internal/bank"
	"github.com/rangelock/rvm/internal/catalog"
	"github.com/rangelock/rvm/internal/fees"
	"github.com/rangelock/rvm/internal/gateway"
	"github.com/rangelock/rvm/internal/types"
)

func newTestFactory(t *testing.T) (*bank.Ledger, *Factory, catalog.Strategy) {
	t.Helper()

	ledger := bank.NewLedger()
	pool, err := amm.NewPool(ledger, "pool-test", "uatom", "uusdc", 0, decimal.NewFromInt(2))
	require.NoError(t, err)

	adp, err := rangepool.New(ledger, pool, nil)
	require.NoError(t, err)

	protocol, err := fees.NewLedger(ledger, "fees-test", "admin")
	require.NoError(t, err)

	router, err := gateway.NewRouter(ledger, pool, "router-test", 0, protocol)
	require.NoError(t, err)

	c := catalog.New()
	strategy, err := c.Register(catalog.Strategy{
		Name:    "atom-usdc-ranged",
		Pair:    types.AssetPair{Denom0: "uatom", Denom1: "uusdc"},
		Adapter: adp,
		Router:  router,
		State:   []types.Snapshotter{pool, adp, protocol},
	})
	require.NoError(t, err)

	f, err := New(Config{Bank: ledger, Catalog: c})
	require.NoError(t, err)
	return ledger, f, strategy
}

func TestNewFactoryValidation(t *testing.T) {
	_, err := New(Config{})
	require.ErrorIs(t, err, ErrInvalidFactoryConfig)

	_, err = New(Config{Bank: bank.NewLedger()})
	require.ErrorIs(t, err, ErrInvalidFactoryConfig)
}

func TestCreateVault(t *testing.T) {
	ledger, f, strategy := newTestFactory(t)

	controller, err := f.CreateVault("owner-addr", "executor-addr", strategy.ID, "fees-test")
	require.NoError(t, err)

	require.Equal(t, "owner-addr", controller.Owner())
	require.Equal(t, "executor-addr", controller.Executor())
	require.Equal(t, strategy.ID, controller.StrategyID())
	require.Equal(t, "router-test", controller.GatewayAddress())
	require.NotEmpty(t, controller.VaultAddress())

	// The assigned vault account works as a custody address immediately.
	require.NoError(t, ledger.Mint(controller.VaultAddress(), "uatom", sdkmath.NewInt(100)))
	require.Equal(t, sdkmath.NewInt(100), controller.IdleBalances().Amount0)

	got, err := f.Vault(controller.VaultAddress())
	require.NoError(t, err)
	require.Same(t, controller, got)
}

func TestCreateVaultUnknownStrategy(t *testing.T) {
	_, f, _ := newTestFactory(t)

	_, err := f.CreateVault("owner-addr", "executor-addr", "no-such-strategy", "")
	require.ErrorIs(t, err, catalog.ErrUnknownStrategy)
}

func TestCreateVaultRejectsSharedIdentity(t *testing.T) {
	_, f, strategy := newTestFactory(t)

	_, err := f.CreateVault("same-addr", "same-addr", strategy.ID, "")
	require.Error(t, err)
}

func TestVaultIndexes(t *testing.T) {
	_, f, strategy := newTestFactory(t)

	v1, err := f.CreateVault("owner-a", "executor-addr", strategy.ID, "")
	require.NoError(t, err)
	v2, err := f.CreateVault("owner-a", "executor-addr", strategy.ID, "")
	require.NoError(t, err)
	_, err = f.CreateVault("owner-b", "executor-addr", strategy.ID, "")
	require.NoError(t, err)

	require.NotEqual(t, v1.VaultAddress(), v2.VaultAddress())

	require.Len(t, f.VaultsByOwner("owner-a"), 2)
	require.Len(t, f.VaultsByOwner("owner-b"), 1)
	require.Empty(t, f.VaultsByOwner("owner-c"))
	require.Len(t, f.VaultsByStrategy(strategy.ID), 3)
	require.Len(t, f.All(), 3)

	_, err = f.Vault("rvault-unknown")
	require.ErrorIs(t, err, ErrUnknownVault)
}
