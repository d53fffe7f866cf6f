package vault

import (
	"errors"
	"sync"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/rangelock/rvm/internal/adapter"
	"github.com/rangelock/rvm/internal/adapter/rangepool"
	"github.com/rangelock/rvm/internal/amm"
	"github.com/rangelock/rvm/internal/bank"
	"github.com/rangelock/rvm/internal/fees"
	"github.com/rangelock/rvm/internal/gateway"
	"github.com/rangelock/rvm/internal/types"
)

const (
	fxOwner    = "owner-addr"
	fxExecutor = "executor-addr"
	fxVault    = "rvault-test"
	fxDenom0   = "uatom"
	fxDenom1   = "uusdc"
)

// testClock is a settable clock shared by the controller and the router.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Unix(1_000, 0).UTC()}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingSink captures emitted events in order.
type recordingSink struct {
	mu     sync.Mutex
	events []types.Event
}

func (s *recordingSink) Record(e types.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *recordingSink) kinds() []types.EventKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.EventKind, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Kind)
	}
	return out
}

type fixture struct {
	ledger     *bank.Ledger
	pool       *amm.Pool
	farm       *rangepool.Farm
	adapter    *rangepool.Adapter
	feeLedger  *fees.Ledger
	router     *gateway.Router
	clock      *testClock
	sink       *recordingSink
	controller *Controller
}

// newFixture assembles the full custody stack over one in-memory ledger.
// The pool is seeded with deep reserves so swap legs always have a
// counterparty. positionAdapter may override the real adapter.
func newFixture(t *testing.T, positionAdapter adapter.PositionAdapter) *fixture {
	t.Helper()

	ledger := bank.NewLedger()
	pool, err := amm.NewPool(ledger, "pool-test", fxDenom0, fxDenom1, 0, decimal.NewFromInt(2))
	require.NoError(t, err)
	require.NoError(t, ledger.Mint("pool-test", fxDenom0, sdkmath.NewInt(1_000_000)))
	require.NoError(t, ledger.Mint("pool-test", fxDenom1, sdkmath.NewInt(1_000_000)))

	farm, err := rangepool.NewFarm(ledger, "farm-test", "urwd")
	require.NoError(t, err)

	adp, err := rangepool.New(ledger, pool, farm)
	require.NoError(t, err)

	feeLedger, err := fees.NewLedger(ledger, "fees-test", fxOwner)
	require.NoError(t, err)

	router, err := gateway.NewRouter(ledger, pool, "router-test", 0, feeLedger)
	require.NoError(t, err)

	clock := newTestClock()
	router.SetClock(clock.Now)

	var bound adapter.PositionAdapter = adp
	if positionAdapter != nil {
		bound = positionAdapter
	}

	sink := &recordingSink{}
	controller, err := NewController(Config{
		Owner:        fxOwner,
		Executor:     fxExecutor,
		VaultAddress: fxVault,
		StrategyID:   "strategy-test",
		FeeSink:      "fees-test",
		Adapter:      bound,
		Gateway:      router,
		Bank:         ledger,
		Journal:      []types.Snapshotter{ledger, pool, adp, farm, feeLedger},
		Events:       sink,
		Clock:        clock.Now,
	})
	require.NoError(t, err)

	return &fixture{
		ledger:     ledger,
		pool:       pool,
		farm:       farm,
		adapter:    adp,
		feeLedger:  feeLedger,
		router:     router,
		clock:      clock,
		sink:       sink,
		controller: controller,
	}
}

func (f *fixture) fund(t *testing.T, amt0, amt1 int64) {
	t.Helper()
	require.NoError(t, f.ledger.Mint(fxVault, fxDenom0, sdkmath.NewInt(amt0)))
	require.NoError(t, f.ledger.Mint(fxVault, fxDenom1, sdkmath.NewInt(amt1)))
}

func (f *fixture) enableAutomation(t *testing.T, cooldown time.Duration, swapAllowed bool) {
	t.Helper()
	require.NoError(t, f.controller.SetAutomationConfig(fxOwner, types.AutomationConfig{
		Cooldown:       cooldown,
		MaxSlippageBps: 100,
		SwapAllowed:    swapAllowed,
	}))
	require.NoError(t, f.controller.SetAutomationEnabled(fxOwner, true))
}

func baseRequest() types.RebalanceRequest {
	return types.RebalanceRequest{
		LowerBound:    -150,
		UpperBound:    150,
		TokenInDenom:  fxDenom0,
		TokenOutDenom: fxDenom1,
		AmountIn:      sdkmath.ZeroInt(),
		MinAmountOut:  sdkmath.ZeroInt(),
	}
}

func TestNewControllerValidation(t *testing.T) {
	f := newFixture(t, nil)
	base := Config{
		Owner:        fxOwner,
		Executor:     fxExecutor,
		VaultAddress: "rvault-other",
		Adapter:      f.adapter,
		Gateway:      f.router,
		Bank:         f.ledger,
	}

	_, err := NewController(base)
	require.NoError(t, err)

	for name, mutate := range map[string]func(*Config){
		"missing owner":      func(c *Config) { c.Owner = "" },
		"missing executor":   func(c *Config) { c.Executor = "" },
		"owner is executor":  func(c *Config) { c.Executor = c.Owner },
		"missing vault addr": func(c *Config) { c.VaultAddress = "" },
		"missing adapter":    func(c *Config) { c.Adapter = nil },
		"missing gateway":    func(c *Config) { c.Gateway = nil },
		"missing bank":       func(c *Config) { c.Bank = nil },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := base
			mutate(&cfg)
			_, err := NewController(cfg)
			require.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestRoleExclusivity(t *testing.T) {
	f := newFixture(t, nil)
	f.fund(t, 100, 100)

	// The executor reaches nothing but AutomatedRebalance.
	require.ErrorIs(t, f.controller.OpenPosition(fxExecutor, -100, 100), ErrUnauthorized)
	require.ErrorIs(t, f.controller.SetAutomationEnabled(fxExecutor, true), ErrUnauthorized)
	require.ErrorIs(t, f.controller.SetAutomationConfig(fxExecutor, types.AutomationConfig{}), ErrUnauthorized)
	require.ErrorIs(t, f.controller.ExitToCustody(fxExecutor), ErrUnauthorized)
	require.ErrorIs(t, f.controller.ExitAndWithdrawAll(fxExecutor, "somewhere"), ErrUnauthorized)
	require.ErrorIs(t, f.controller.ManualRebalance(fxExecutor, -100, 100, sdkmath.ZeroInt(), sdkmath.ZeroInt()), ErrUnauthorized)
	require.ErrorIs(t, f.controller.Stake(fxExecutor), ErrUnauthorized)
	require.ErrorIs(t, f.controller.Unstake(fxExecutor), ErrUnauthorized)
	require.ErrorIs(t, f.controller.ClaimRewards(fxExecutor), ErrUnauthorized)
	_, err := f.controller.CollectYield(fxExecutor)
	require.ErrorIs(t, err, ErrUnauthorized)

	// The owner cannot drive the automated path, and neither can a stranger.
	require.ErrorIs(t, f.controller.AutomatedRebalance(fxOwner, baseRequest()), ErrUnauthorized)
	require.ErrorIs(t, f.controller.AutomatedRebalance("stranger", baseRequest()), ErrUnauthorized)
}

func TestOpenPosition(t *testing.T) {
	f := newFixture(t, nil)
	f.fund(t, 500, 500)

	require.NoError(t, f.controller.OpenPosition(fxOwner, -100, 100))

	handle, open := f.controller.PositionHandle()
	require.True(t, open)

	amounts, err := f.pool.PositionAmounts(handle)
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(500), amounts.Amount0)
	require.Equal(t, sdkmath.NewInt(500), amounts.Amount1)
	require.True(t, f.controller.IdleBalances().IsZero())

	// Opening auto-stakes best-effort.
	require.True(t, f.farm.IsStaked(handle))
}

func TestOpenPositionRejections(t *testing.T) {
	f := newFixture(t, nil)

	// Nothing idle yet.
	f.fund(t, 0, 0)
	require.ErrorIs(t, f.controller.OpenPosition(fxOwner, -100, 100), ErrNoIdleFunds)

	f.fund(t, 500, 500)
	require.ErrorIs(t, f.controller.OpenPosition(fxOwner, 100, 100), ErrInvalidRange)
	require.ErrorIs(t, f.controller.OpenPosition(fxOwner, 200, -200), ErrInvalidRange)

	require.NoError(t, f.controller.OpenPosition(fxOwner, -100, 100))
	require.ErrorIs(t, f.controller.OpenPosition(fxOwner, -50, 50), ErrPositionOpen)
}

func TestManualRebalanceWithCaps(t *testing.T) {
	f := newFixture(t, nil)
	f.fund(t, 500, 500)
	require.NoError(t, f.controller.OpenPosition(fxOwner, -100, 100))
	require.NoError(t, f.controller.Unstake(fxOwner))

	// New idle funds arrive after the open.
	f.fund(t, 300, 300)

	require.NoError(t, f.controller.ManualRebalance(fxOwner, -200, 200, sdkmath.NewInt(100), sdkmath.NewInt(50)))

	handle, open := f.controller.PositionHandle()
	require.True(t, open)

	amounts, err := f.pool.PositionAmounts(handle)
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(600), amounts.Amount0)
	require.Equal(t, sdkmath.NewInt(550), amounts.Amount1)

	lower, upper, err := f.pool.PositionRange(handle)
	require.NoError(t, err)
	require.Equal(t, -200, lower)
	require.Equal(t, 200, upper)

	idle := f.controller.IdleBalances()
	require.Equal(t, sdkmath.NewInt(200), idle.Amount0)
	require.Equal(t, sdkmath.NewInt(250), idle.Amount1)
}

func TestManualRebalanceWhileStakedRollsBack(t *testing.T) {
	f := newFixture(t, nil)
	f.fund(t, 500, 500)
	require.NoError(t, f.controller.OpenPosition(fxOwner, -100, 100))

	before, _ := f.controller.PositionHandle()

	// The open auto-staked the position and manual rebalance does not
	// unstake on its own.
	err := f.controller.ManualRebalance(fxOwner, -200, 200, sdkmath.ZeroInt(), sdkmath.ZeroInt())
	require.ErrorIs(t, err, ErrAdapterFailure)
	require.ErrorIs(t, err, adapter.ErrPositionStaked)

	after, open := f.controller.PositionHandle()
	require.True(t, open)
	require.Equal(t, before, after)
}

func TestExitToCustody(t *testing.T) {
	f := newFixture(t, nil)
	f.fund(t, 400, 600)
	require.NoError(t, f.controller.OpenPosition(fxOwner, -100, 100))
	require.NoError(t, f.controller.Unstake(fxOwner))

	require.NoError(t, f.controller.ExitToCustody(fxOwner))

	_, open := f.controller.PositionHandle()
	require.False(t, open)

	idle := f.controller.IdleBalances()
	require.Equal(t, sdkmath.NewInt(400), idle.Amount0)
	require.Equal(t, sdkmath.NewInt(600), idle.Amount1)

	// Exiting with nothing open is a no-op and leaves no audit mark.
	recorded := len(f.sink.kinds())
	require.NoError(t, f.controller.ExitToCustody(fxOwner))
	require.Len(t, f.sink.kinds(), recorded)
}

func TestExitAndWithdrawAll(t *testing.T) {
	f := newFixture(t, nil)
	f.fund(t, 400, 600)
	require.NoError(t, f.controller.OpenPosition(fxOwner, -100, 100))
	require.NoError(t, f.controller.Unstake(fxOwner))

	require.ErrorIs(t, f.controller.ExitAndWithdrawAll(fxOwner, ""), ErrNullRecipient)

	require.NoError(t, f.controller.ExitAndWithdrawAll(fxOwner, "owner-cold-wallet"))

	require.True(t, f.controller.IdleBalances().IsZero())
	require.Equal(t, sdkmath.NewInt(400), f.ledger.BalanceOf("owner-cold-wallet", fxDenom0))
	require.Equal(t, sdkmath.NewInt(600), f.ledger.BalanceOf("owner-cold-wallet", fxDenom1))

	_, open := f.controller.PositionHandle()
	require.False(t, open)
}

func TestCollectYield(t *testing.T) {
	f := newFixture(t, nil)
	f.fund(t, 100, 100)
	require.NoError(t, f.controller.OpenPosition(fxOwner, -100, 100))

	handle, _ := f.controller.PositionHandle()
	require.NoError(t, f.pool.AccrueYield(handle, sdkmath.NewInt(11), sdkmath.NewInt(6)))

	collected, err := f.controller.CollectYield(fxOwner)
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(11), collected.Amount0)
	require.Equal(t, sdkmath.NewInt(6), collected.Amount1)

	idle := f.controller.IdleBalances()
	require.Equal(t, sdkmath.NewInt(11), idle.Amount0)
	require.Equal(t, sdkmath.NewInt(6), idle.Amount1)
}

func TestStakingLifecycle(t *testing.T) {
	f := newFixture(t, nil)
	f.fund(t, 100, 100)
	require.NoError(t, f.controller.OpenPosition(fxOwner, -100, 100))

	handle, _ := f.controller.PositionHandle()
	require.True(t, f.farm.IsStaked(handle))

	// Already staked by the open; a second stake surfaces the backend error.
	err := f.controller.Stake(fxOwner)
	require.ErrorIs(t, err, ErrAdapterFailure)
	require.ErrorIs(t, err, rangepool.ErrAlreadyStaked)

	require.NoError(t, f.farm.AccrueReward(handle, sdkmath.NewInt(50)))
	require.NoError(t, f.controller.ClaimRewards(fxOwner))
	require.Equal(t, sdkmath.NewInt(50), f.ledger.BalanceOf(fxVault, "urwd"))

	require.NoError(t, f.controller.Unstake(fxOwner))
	require.False(t, f.farm.IsStaked(handle))
	require.NoError(t, f.controller.Stake(fxOwner))
	require.True(t, f.farm.IsStaked(handle))
}

func TestSetAutomationConfigPreservesEnableFlag(t *testing.T) {
	f := newFixture(t, nil)

	require.NoError(t, f.controller.SetAutomationEnabled(fxOwner, true))
	require.NoError(t, f.controller.SetAutomationConfig(fxOwner, types.AutomationConfig{
		Cooldown:       time.Minute,
		MaxSlippageBps: 250,
		SwapAllowed:    true,
		// A stale Enabled in the incoming config must not leak through.
		Enabled: false,
	}))

	cfg := f.controller.AutomationConfig()
	require.True(t, cfg.Enabled)
	require.Equal(t, time.Minute, cfg.Cooldown)
	require.Equal(t, uint32(250), cfg.MaxSlippageBps)
	require.True(t, cfg.SwapAllowed)

	// And the flip side: toggling touches nothing else.
	require.NoError(t, f.controller.SetAutomationEnabled(fxOwner, false))
	cfg = f.controller.AutomationConfig()
	require.False(t, cfg.Enabled)
	require.Equal(t, time.Minute, cfg.Cooldown)

	require.ErrorIs(t, f.controller.SetAutomationConfig(fxOwner, types.AutomationConfig{
		Cooldown: -time.Second,
	}), ErrInvalidConfig)
}

func TestAutomatedRebalanceWithoutSwap(t *testing.T) {
	f := newFixture(t, nil)
	f.fund(t, 500, 500)
	require.NoError(t, f.controller.OpenPosition(fxOwner, -100, 100))
	f.enableAutomation(t, time.Minute, false)

	require.NoError(t, f.controller.AutomatedRebalance(fxExecutor, baseRequest()))

	handle, open := f.controller.PositionHandle()
	require.True(t, open)

	lower, upper, err := f.pool.PositionRange(handle)
	require.NoError(t, err)
	require.Equal(t, -150, lower)
	require.Equal(t, 150, upper)

	// All funds are redeployed and the position is restaked.
	require.True(t, f.controller.IdleBalances().IsZero())
	require.True(t, f.farm.IsStaked(handle))
	require.Equal(t, f.clock.Now(), f.controller.LastAutomatedRebalance())
}

func TestAutomatedRebalanceRequiresEnableFlag(t *testing.T) {
	f := newFixture(t, nil)
	f.fund(t, 500, 500)

	require.ErrorIs(t, f.controller.AutomatedRebalance(fxExecutor, baseRequest()), ErrAutomationDisabled)
}

func TestAutomatedRebalanceCooldown(t *testing.T) {
	f := newFixture(t, nil)
	f.fund(t, 500, 500)
	require.NoError(t, f.controller.OpenPosition(fxOwner, -100, 100))
	f.enableAutomation(t, time.Minute, false)

	f.clock.Set(time.Unix(1_000, 0).UTC())
	require.NoError(t, f.controller.AutomatedRebalance(fxExecutor, baseRequest()))
	require.Equal(t, time.Unix(1_000, 0).UTC(), f.controller.LastAutomatedRebalance())

	// 40s later the window is still closed.
	f.clock.Set(time.Unix(1_040, 0).UTC())
	require.ErrorIs(t, f.controller.AutomatedRebalance(fxExecutor, baseRequest()), ErrCooldownActive)
	// The rejected attempt does not move the cooldown anchor.
	require.Equal(t, time.Unix(1_000, 0).UTC(), f.controller.LastAutomatedRebalance())

	// 61s after the success the window has reopened.
	f.clock.Set(time.Unix(1_061, 0).UTC())
	require.NoError(t, f.controller.AutomatedRebalance(fxExecutor, baseRequest()))
	require.Equal(t, time.Unix(1_061, 0).UTC(), f.controller.LastAutomatedRebalance())
}

func TestAutomatedRebalanceFailureDoesNotAnchorCooldown(t *testing.T) {
	f := newFixture(t, nil)
	f.fund(t, 500, 500)
	require.NoError(t, f.controller.OpenPosition(fxOwner, -100, 100))
	f.enableAutomation(t, time.Minute, false)

	// A gate rejection leaves the anchor untouched, so the very next valid
	// request goes through.
	bad := baseRequest()
	bad.UpperBound = bad.LowerBound
	require.ErrorIs(t, f.controller.AutomatedRebalance(fxExecutor, bad), ErrInvalidRange)
	require.True(t, f.controller.LastAutomatedRebalance().IsZero())

	require.NoError(t, f.controller.AutomatedRebalance(fxExecutor, baseRequest()))
}

func TestAutomatedRebalancePairGate(t *testing.T) {
	f := newFixture(t, nil)
	f.fund(t, 500, 500)
	f.enableAutomation(t, 0, true)

	req := baseRequest()
	req.TokenInDenom = "ueth"
	require.ErrorIs(t, f.controller.AutomatedRebalance(fxExecutor, req), ErrPairMismatch)

	// Either orientation of the vault's own pair is accepted.
	req = baseRequest()
	req.TokenInDenom, req.TokenOutDenom = fxDenom1, fxDenom0
	require.NoError(t, f.controller.AutomatedRebalance(fxExecutor, req))
}

func TestAutomatedRebalanceSwapGate(t *testing.T) {
	f := newFixture(t, nil)
	f.fund(t, 500, 500)
	require.NoError(t, f.controller.OpenPosition(fxOwner, -100, 100))
	f.enableAutomation(t, 0, false)

	before := f.controller.Observe()
	supply0 := f.ledger.TotalSupply(fxDenom0)

	req := baseRequest()
	req.AmountIn = sdkmath.NewInt(100)
	require.ErrorIs(t, f.controller.AutomatedRebalance(fxExecutor, req), ErrSwapNotAllowed)

	// The rejection happens before any step runs, so nothing observable
	// changed.
	require.Equal(t, before, f.controller.Observe())
	require.Equal(t, supply0, f.ledger.TotalSupply(fxDenom0))

	handle, _ := f.controller.PositionHandle()
	require.True(t, f.farm.IsStaked(handle))
}

func TestAutomatedRebalanceConservesAssets(t *testing.T) {
	f := newFixture(t, nil)
	f.fund(t, 500, 500)
	require.NoError(t, f.controller.OpenPosition(fxOwner, -100, 100))
	f.enableAutomation(t, 0, true)

	supply0 := f.ledger.TotalSupply(fxDenom0)
	supply1 := f.ledger.TotalSupply(fxDenom1)

	req := baseRequest()
	req.AmountIn = sdkmath.NewInt(200)
	require.NoError(t, f.controller.AutomatedRebalance(fxExecutor, req))

	// A rebalance with a swap leg changes the mix, never the totals.
	require.Equal(t, supply0, f.ledger.TotalSupply(fxDenom0))
	require.Equal(t, supply1, f.ledger.TotalSupply(fxDenom1))
}

// failOpenAdapter makes the mandatory reopen step fail on demand.
type failOpenAdapter struct {
	adapter.PositionAdapter
	failOpen bool
}

func (a *failOpenAdapter) Open(vault string, lowerBound, upperBound int) (types.PositionHandle, sdkmath.Int, error) {
	if a.failOpen {
		return types.NoPosition, sdkmath.ZeroInt(), errors.New("liquidity deployment rejected")
	}
	return a.PositionAdapter.Open(vault, lowerBound, upperBound)
}

func TestAutomatedRebalanceRollsBackOnReopenFailure(t *testing.T) {
	wrapper := &failOpenAdapter{}
	f := newFixture(t, wrapper)
	wrapper.PositionAdapter = f.adapter

	f.fund(t, 500, 500)
	require.NoError(t, f.controller.OpenPosition(fxOwner, -100, 100))
	f.enableAutomation(t, time.Minute, false)

	before, _ := f.controller.PositionHandle()
	beforeAmounts, err := f.pool.PositionAmounts(before)
	require.NoError(t, err)

	// The exit step will succeed, then the reopen fails; the whole
	// operation must unwind to the pre-call state.
	wrapper.failOpen = true
	err = f.controller.AutomatedRebalance(fxExecutor, baseRequest())
	require.ErrorIs(t, err, ErrAdapterFailure)

	after, open := f.controller.PositionHandle()
	require.True(t, open)
	require.Equal(t, before, after)

	afterAmounts, err := f.pool.PositionAmounts(after)
	require.NoError(t, err)
	require.Equal(t, beforeAmounts, afterAmounts)
	require.True(t, f.controller.IdleBalances().IsZero())
	require.True(t, f.farm.IsStaked(after))
	require.True(t, f.controller.LastAutomatedRebalance().IsZero())

	// The same request succeeds once the fault clears.
	wrapper.failOpen = false
	require.NoError(t, f.controller.AutomatedRebalance(fxExecutor, baseRequest()))
}

func TestRolledBackRebalanceLeavesNoEvents(t *testing.T) {
	wrapper := &failOpenAdapter{}
	f := newFixture(t, wrapper)
	wrapper.PositionAdapter = f.adapter

	f.fund(t, 1_000, 0)
	require.NoError(t, f.controller.OpenPosition(fxOwner, -100, 100))
	f.enableAutomation(t, 0, true)

	recorded := len(f.sink.kinds())

	// The exit and the swap leg both succeed before the reopen fails; the
	// sink must see nothing from an operation that never happened.
	wrapper.failOpen = true
	req := baseRequest()
	req.AmountIn = sdkmath.NewInt(400)
	req.MinAmountOut = sdkmath.NewInt(800)
	err := f.controller.AutomatedRebalance(fxExecutor, req)
	require.ErrorIs(t, err, ErrAdapterFailure)
	require.True(t, f.controller.LastAutomatedRebalance().IsZero())

	kinds := f.sink.kinds()
	require.Len(t, kinds, recorded)
	require.NotContains(t, kinds, types.EventSwapExecuted)
	require.NotContains(t, kinds, types.EventExitToCustody)
}

// reentrantAdapter calls back into the controller from inside an operation.
type reentrantAdapter struct {
	adapter.PositionAdapter
	controller *Controller
	nestedErr  error
	fired      bool
}

func (a *reentrantAdapter) ExitToOwner(vault string) error {
	if !a.fired {
		a.fired = true
		a.nestedErr = a.controller.ExitToCustody(fxOwner)
	}
	return a.PositionAdapter.ExitToOwner(vault)
}

func TestReentrantCallRejected(t *testing.T) {
	wrapper := &reentrantAdapter{}
	f := newFixture(t, wrapper)
	wrapper.PositionAdapter = f.adapter
	wrapper.controller = f.controller

	f.fund(t, 100, 100)
	require.NoError(t, f.controller.OpenPosition(fxOwner, -100, 100))
	require.NoError(t, f.controller.Unstake(fxOwner))

	// The outer exit proceeds; the nested call it triggers is rejected.
	require.NoError(t, f.controller.ExitToCustody(fxOwner))
	require.True(t, wrapper.fired)
	require.ErrorIs(t, wrapper.nestedErr, ErrReentrantCall)
}

func TestEventsEmittedInOrder(t *testing.T) {
	f := newFixture(t, nil)
	f.fund(t, 100, 100)

	require.NoError(t, f.controller.OpenPosition(fxOwner, -100, 100))
	require.NoError(t, f.controller.Unstake(fxOwner))
	require.NoError(t, f.controller.ExitToCustody(fxOwner))

	require.Equal(t, []types.EventKind{
		types.EventVaultCreated,
		types.EventPositionOpened,
		types.EventUnstaked,
		types.EventExitToCustody,
	}, f.sink.kinds())
}

func TestObserve(t *testing.T) {
	f := newFixture(t, nil)
	f.fund(t, 70, 30)

	state := f.controller.Observe()
	require.Equal(t, fxVault, state.Vault)
	require.Equal(t, fxOwner, state.Owner)
	require.Equal(t, fxExecutor, state.Executor)
	require.Equal(t, "router-test", state.Gateway)
	require.Equal(t, "strategy-test", state.StrategyID)
	require.Equal(t, types.AssetPair{Denom0: fxDenom0, Denom1: fxDenom1}, state.Pair)
	require.True(t, state.PositionHandle.IsNone())
	require.True(t, state.LastAutoRebalance.IsZero())
	require.Equal(t, sdkmath.NewInt(70), state.IdleBalances.Amount0)
	require.Equal(t, sdkmath.NewInt(30), state.IdleBalances.Amount1)
	require.Equal(t, sdkmath.NewInt(100), f.controller.IdleValue())
}
