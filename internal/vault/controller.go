package vault

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rangelock/rvm/internal/adapter"
	"github.com/rangelock/rvm/internal/gateway"
	"github.com/rangelock/rvm/internal/logger"
	"github.com/rangelock/rvm/internal/types"
)

// Bank is the custody substrate surface the controller needs. *bank.Ledger
// satisfies it; tests substitute their own.
type Bank interface {
	BalanceOf(addr, denom string) sdkmath.Int
	Transfer(from, to, denom string, amount sdkmath.Int) error
	Approve(owner, spender, denom string, amount sdkmath.Int) error
	Allowance(owner, spender, denom string) sdkmath.Int
}

// Config holds the construction-time wiring of a controller. Every identity
// and collaborator binding here is immutable for the controller's lifetime;
// there are no setters.
type Config struct {
	Owner        string
	Executor     string
	VaultAddress string
	StrategyID   string
	FeeSink      string // optional, no outbound flow wired in this version

	Adapter adapter.PositionAdapter
	Gateway gateway.SwapGateway
	Bank    Bank

	// Journal lists the stateful collaborators restored when a mandatory
	// step fails mid-operation.
	Journal []types.Snapshotter

	Events types.EventSink  // optional
	Clock  func() time.Time // optional, defaults to time.Now
}

// Controller is the vault custody controller: it owns the vault account's
// idle balances, the automation configuration and the cached position
// state, and it is the only path through which funds may leave custody.
type Controller struct {
	log zerolog.Logger

	// Immutable wiring
	owner      string
	executor   string
	vaultAddr  string
	strategyID string
	feeSink    string
	adapter    adapter.PositionAdapter
	gateway    gateway.SwapGateway
	bank       Bank
	journal    []types.Snapshotter
	events     types.EventSink
	now        func() time.Time

	// Reentrancy guard: set on entry and cleared on exit of every
	// state-changing operation, including failure paths.
	inFlight atomic.Bool

	// Mutable state, guarded by mu for concurrent readers.
	mu                sync.RWMutex
	autoCfg           types.AutomationConfig
	handle            types.PositionHandle
	lastAutoRebalance time.Time

	// Notifications raised inside the current operation scope; handed to
	// the sink only when the operation commits.
	pending []types.Event
}

// NewController validates the wiring and creates a controller.
func NewController(cfg Config) (*Controller, error) {
	if err := validateControllerConfig(cfg); err != nil {
		return nil, errors.Join(ErrInvalidConfig, err)
	}

	now := cfg.Clock
	if now == nil {
		now = time.Now
	}

	c := &Controller{
		log:        logger.GetForComponent("vault_controller").With().Str("vault", cfg.VaultAddress).Logger(),
		owner:      cfg.Owner,
		executor:   cfg.Executor,
		vaultAddr:  cfg.VaultAddress,
		strategyID: cfg.StrategyID,
		feeSink:    cfg.FeeSink,
		adapter:    cfg.Adapter,
		gateway:    cfg.Gateway,
		bank:       cfg.Bank,
		journal:    cfg.Journal,
		events:     cfg.Events,
		now:        now,
		handle:     types.NoPosition,
	}

	c.log.Info().
		Str("owner", c.owner).
		Str("executor", c.executor).
		Str("strategy", c.strategyID).
		Str("gateway", c.gateway.Address()).
		Msg("Vault controller created")
	c.emit(types.EventVaultCreated, c.owner, map[string]string{
		"owner":    c.owner,
		"executor": c.executor,
		"strategy": c.strategyID,
	})

	return c, nil
}

func validateControllerConfig(cfg Config) error {
	if cfg.Owner == "" {
		return errors.New("owner address is required")
	}
	if cfg.Executor == "" {
		return errors.New("executor address is required")
	}
	if cfg.Owner == cfg.Executor {
		return errors.New("owner and executor must be distinct identities")
	}
	if cfg.VaultAddress == "" {
		return errors.New("vault address is required")
	}
	if cfg.Adapter == nil {
		return errors.New("position adapter is required")
	}
	if cfg.Gateway == nil {
		return errors.New("swap gateway is required")
	}
	if cfg.Bank == nil {
		return errors.New("bank is required")
	}
	return nil
}

// run executes a state-changing operation atomically: nested re-entry is
// rejected, and on failure every journal participant plus the controller's
// own cached state is restored.
func (c *Controller) run(op string, fn func() error) error {
	if !c.inFlight.CompareAndSwap(false, true) {
		c.log.Warn().Str("operation", op).Msg("Rejected reentrant call")
		return errors.Join(ErrReentrantCall, fmt.Errorf("operation %s", op))
	}
	defer c.inFlight.Store(false)

	snaps := make([]any, len(c.journal))
	for i, s := range c.journal {
		snaps[i] = s.Snapshot()
	}
	c.mu.RLock()
	prevCfg, prevHandle, prevLast := c.autoCfg, c.handle, c.lastAutoRebalance
	c.mu.RUnlock()

	if err := fn(); err != nil {
		for i, s := range c.journal {
			s.Restore(snaps[i])
		}
		c.mu.Lock()
		c.autoCfg, c.handle, c.lastAutoRebalance = prevCfg, prevHandle, prevLast
		c.pending = nil
		c.mu.Unlock()
		c.log.Debug().Err(err).Str("operation", op).Msg("Operation rolled back")
		return err
	}
	c.flushEvents()
	return nil
}

// flushEvents hands the buffered notifications of a committed operation to
// the sink, in emission order.
func (c *Controller) flushEvents() {
	if c.events == nil {
		return
	}
	c.mu.Lock()
	buffered := c.pending
	c.pending = nil
	c.mu.Unlock()
	for _, ev := range buffered {
		c.events.Record(ev)
	}
}

func (c *Controller) requireOwner(caller string) error {
	if caller != c.owner {
		return errors.Join(ErrUnauthorized, fmt.Errorf("caller %s is not the owner", caller))
	}
	return nil
}

func (c *Controller) requireExecutor(caller string) error {
	if caller != c.executor {
		return errors.Join(ErrUnauthorized, fmt.Errorf("caller %s is not the executor", caller))
	}
	return nil
}

// SetAutomationEnabled flips the automation gate. Owner only; touches no
// other state.
func (c *Controller) SetAutomationEnabled(caller string, enabled bool) error {
	if err := c.requireOwner(caller); err != nil {
		return err
	}
	return c.run("set_automation_enabled", func() error {
		c.mu.Lock()
		c.autoCfg.Enabled = enabled
		c.mu.Unlock()

		c.log.Info().Bool("enabled", enabled).Msg("Automation flag updated")
		c.emit(types.EventAutomationToggled, caller, map[string]string{
			"enabled": fmt.Sprintf("%t", enabled),
		})
		return nil
	})
}

// SetAutomationConfig replaces cooldown, slippage bound and swap permission
// wholesale as one unit. The enable flag is governed by
// SetAutomationEnabled and is preserved.
func (c *Controller) SetAutomationConfig(caller string, cfg types.AutomationConfig) error {
	if err := c.requireOwner(caller); err != nil {
		return err
	}
	if cfg.Cooldown < 0 {
		return errors.Join(ErrInvalidConfig, fmt.Errorf("negative cooldown %s", cfg.Cooldown))
	}
	return c.run("set_automation_config", func() error {
		c.mu.Lock()
		cfg.Enabled = c.autoCfg.Enabled
		c.autoCfg = cfg
		c.mu.Unlock()

		c.log.Info().
			Dur("cooldown", cfg.Cooldown).
			Uint32("maxSlippageBps", cfg.MaxSlippageBps).
			Bool("swapAllowed", cfg.SwapAllowed).
			Msg("Automation config replaced")
		c.emit(types.EventAutomationConfigSet, caller, map[string]string{
			"cooldown":         cfg.Cooldown.String(),
			"max_slippage_bps": fmt.Sprintf("%d", cfg.MaxSlippageBps),
			"swap_allowed":     fmt.Sprintf("%t", cfg.SwapAllowed),
		})
		return nil
	})
}

// OpenPosition deploys the vault's idle balances into a new position over
// the given range. Owner only. Staking is attempted best-effort.
func (c *Controller) OpenPosition(caller string, lowerBound, upperBound int) error {
	if err := c.requireOwner(caller); err != nil {
		return err
	}
	return c.run("open_position", func() error {
		if lowerBound >= upperBound {
			return errors.Join(ErrInvalidRange, fmt.Errorf("[%d, %d]", lowerBound, upperBound))
		}
		c.mu.RLock()
		open := !c.handle.IsNone()
		c.mu.RUnlock()
		if open {
			return ErrPositionOpen
		}

		denom0, denom1 := c.adapter.Tokens()
		idle0 := c.bank.BalanceOf(c.vaultAddr, denom0)
		idle1 := c.bank.BalanceOf(c.vaultAddr, denom1)
		if !idle0.IsPositive() && !idle1.IsPositive() {
			return ErrNoIdleFunds
		}

		handle, size, err := c.adapter.Open(c.vaultAddr, lowerBound, upperBound)
		if err != nil {
			return errors.Join(ErrAdapterFailure, err)
		}

		adapter.BestEffort(c.log, "stake", func() error {
			return c.adapter.Stake(c.vaultAddr)
		})

		c.mu.Lock()
		c.handle = handle
		c.mu.Unlock()

		c.log.Info().
			Uint64("handle", uint64(handle)).
			Int("lower", lowerBound).
			Int("upper", upperBound).
			Str("size", size.String()).
			Msg("Initial position opened")
		c.emit(types.EventPositionOpened, caller, map[string]string{
			"handle": fmt.Sprintf("%d", handle),
			"size":   size.String(),
		})
		return nil
	})
}

// ManualRebalance delegates fully to the adapter's capped rebalance and
// refreshes the cached handle from the adapter. Owner only.
func (c *Controller) ManualRebalance(caller string, lowerBound, upperBound int, cap0, cap1 sdkmath.Int) error {
	if err := c.requireOwner(caller); err != nil {
		return err
	}
	return c.run("manual_rebalance", func() error {
		if lowerBound >= upperBound {
			return errors.Join(ErrInvalidRange, fmt.Errorf("[%d, %d]", lowerBound, upperBound))
		}

		size, err := c.adapter.RebalanceWithCaps(c.vaultAddr, lowerBound, upperBound, cap0, cap1)
		if err != nil {
			return errors.Join(ErrAdapterFailure, err)
		}

		handle, _ := c.adapter.CurrentPositionHandle(c.vaultAddr)
		c.mu.Lock()
		c.handle = handle
		c.mu.Unlock()

		c.log.Info().
			Uint64("handle", uint64(handle)).
			Str("size", size.String()).
			Msg("Manual rebalance complete")
		c.emit(types.EventManualRebalance, caller, map[string]string{
			"handle": fmt.Sprintf("%d", handle),
			"size":   size.String(),
		})
		return nil
	})
}

// ExitToCustody closes any open position back into the vault's idle
// balance. Idempotent when nothing is open. Owner only.
func (c *Controller) ExitToCustody(caller string) error {
	if err := c.requireOwner(caller); err != nil {
		return err
	}
	return c.run("exit_to_custody", func() error {
		return c.exitToCustody(caller)
	})
}

// exitToCustody is the shared mandatory exit step. Callers hold the guard.
// The notification is raised only when a position was actually closed, so
// the idempotent no-op leaves no mark on the audit trail.
func (c *Controller) exitToCustody(actor string) error {
	c.mu.RLock()
	hadPosition := !c.handle.IsNone()
	c.mu.RUnlock()

	if err := c.adapter.ExitToOwner(c.vaultAddr); err != nil {
		return errors.Join(ErrAdapterFailure, err)
	}
	if !hadPosition {
		return nil
	}

	c.mu.Lock()
	c.handle = types.NoPosition
	c.mu.Unlock()

	c.log.Info().Msg("Position exited to vault custody")
	c.emit(types.EventExitToCustody, actor, nil)
	return nil
}

// ExitAndWithdrawAll exits to custody and transfers the full balance of
// both underlying assets to the recipient in the same atomic operation.
// Owner only; the recipient is the only owner-chosen destination funds can
// ever leave through.
func (c *Controller) ExitAndWithdrawAll(caller, recipient string) error {
	if err := c.requireOwner(caller); err != nil {
		return err
	}
	if recipient == "" {
		return ErrNullRecipient
	}
	return c.run("exit_withdraw_all", func() error {
		if err := c.exitToCustody(caller); err != nil {
			return err
		}

		denom0, denom1 := c.adapter.Tokens()
		amt0 := c.bank.BalanceOf(c.vaultAddr, denom0)
		amt1 := c.bank.BalanceOf(c.vaultAddr, denom1)
		if err := c.bank.Transfer(c.vaultAddr, recipient, denom0, amt0); err != nil {
			return fmt.Errorf("failed to withdraw %s: %w", denom0, err)
		}
		if err := c.bank.Transfer(c.vaultAddr, recipient, denom1, amt1); err != nil {
			return fmt.Errorf("failed to withdraw %s: %w", denom1, err)
		}

		c.log.Info().
			Str("recipient", recipient).
			Str("amount0", amt0.String()).
			Str("amount1", amt1.String()).
			Msg("Full balance withdrawn")
		c.emit(types.EventExitWithdraw, caller, map[string]string{
			"recipient": recipient,
			"amount0":   amt0.String(),
			"amount1":   amt1.String(),
		})
		return nil
	})
}

// CollectYield pulls accrued yield from the adapter into the vault's idle
// balance. Owner only.
func (c *Controller) CollectYield(caller string) (types.AssetAmounts, error) {
	if err := c.requireOwner(caller); err != nil {
		return types.ZeroAssetAmounts(), err
	}
	var collected types.AssetAmounts
	err := c.run("collect_yield", func() error {
		var err error
		collected, err = c.adapter.CollectToOwner(c.vaultAddr)
		if err != nil {
			return errors.Join(ErrAdapterFailure, err)
		}
		c.emit(types.EventYieldCollected, caller, map[string]string{
			"amount0": collected.Amount0.String(),
			"amount1": collected.Amount1.String(),
		})
		return nil
	})
	if err != nil {
		return types.ZeroAssetAmounts(), err
	}
	return collected, nil
}

// Stake delegates to the adapter's staking backend. Adapters without one
// treat this as a no-op. Owner only.
func (c *Controller) Stake(caller string) error {
	if err := c.requireOwner(caller); err != nil {
		return err
	}
	return c.run("stake", func() error {
		if err := c.adapter.Stake(c.vaultAddr); err != nil {
			return errors.Join(ErrAdapterFailure, err)
		}
		c.emit(types.EventStaked, caller, nil)
		return nil
	})
}

// Unstake delegates to the adapter's staking backend. Owner only.
func (c *Controller) Unstake(caller string) error {
	if err := c.requireOwner(caller); err != nil {
		return err
	}
	return c.run("unstake", func() error {
		if err := c.adapter.Unstake(c.vaultAddr); err != nil {
			return errors.Join(ErrAdapterFailure, err)
		}
		c.emit(types.EventUnstaked, caller, nil)
		return nil
	})
}

// ClaimRewards delegates to the adapter's staking backend. Owner only.
func (c *Controller) ClaimRewards(caller string) error {
	if err := c.requireOwner(caller); err != nil {
		return err
	}
	return c.run("claim_rewards", func() error {
		if err := c.adapter.ClaimRewards(c.vaultAddr); err != nil {
			return errors.Join(ErrAdapterFailure, err)
		}
		c.emit(types.EventRewardsClaimed, caller, nil)
		return nil
	})
}

// AutomatedRebalance is the single entry point reachable by the executor
// identity. Gates are checked before any external call; the sequence is
// best-effort unstake, mandatory exit, optional swap, mandatory reopen,
// best-effort restake, all inside one atomic scope.
func (c *Controller) AutomatedRebalance(caller string, req types.RebalanceRequest) error {
	if err := c.requireExecutor(caller); err != nil {
		return err
	}
	return c.run("automated_rebalance", func() error {
		c.mu.RLock()
		cfg := c.autoCfg
		last := c.lastAutoRebalance
		c.mu.RUnlock()

		if !cfg.Enabled {
			return ErrAutomationDisabled
		}
		now := c.now()
		if cfg.Cooldown > 0 && !last.IsZero() && now.Before(last.Add(cfg.Cooldown)) {
			return errors.Join(ErrCooldownActive,
				fmt.Errorf("last success %s, cooldown %s", last.Format(time.RFC3339), cfg.Cooldown))
		}
		if req.LowerBound >= req.UpperBound {
			return errors.Join(ErrInvalidRange, fmt.Errorf("[%d, %d]", req.LowerBound, req.UpperBound))
		}
		denom0, denom1 := c.adapter.Tokens()
		pair := types.AssetPair{Denom0: denom0, Denom1: denom1}
		if !pair.Matches(req.TokenInDenom, req.TokenOutDenom) {
			return errors.Join(ErrPairMismatch,
				fmt.Errorf("requested %s/%s, adapter holds %s/%s", req.TokenInDenom, req.TokenOutDenom, denom0, denom1))
		}
		if req.HasSwap() && !cfg.SwapAllowed {
			return ErrSwapNotAllowed
		}

		// (1) best-effort unstake
		adapter.BestEffort(c.log, "unstake", func() error {
			return c.adapter.Unstake(c.vaultAddr)
		})

		// (2) mandatory exit to custody
		if err := c.adapter.ExitToOwner(c.vaultAddr); err != nil {
			return errors.Join(ErrAdapterFailure, fmt.Errorf("exit step failed: %w", err))
		}

		// (3) optional swap
		swapIn := sdkmath.ZeroInt()
		swapOut := sdkmath.ZeroInt()
		if req.HasSwap() {
			swapIn = req.AmountIn
			out, err := c.swapExactIn(types.SwapOrder{
				DenomIn:      req.TokenInDenom,
				DenomOut:     req.TokenOutDenom,
				AmountIn:     req.AmountIn,
				MinAmountOut: req.MinAmountOut,
				PriceLimit:   req.PriceLimit,
			})
			if err != nil {
				return err
			}
			swapOut = out
		}

		// (4) mandatory reopen over the requested range with all idle balance
		handle, size, err := c.adapter.Open(c.vaultAddr, req.LowerBound, req.UpperBound)
		if err != nil {
			return errors.Join(ErrAdapterFailure, fmt.Errorf("reopen step failed: %w", err))
		}

		// (5) best-effort restake
		adapter.BestEffort(c.log, "restake", func() error {
			return c.adapter.Stake(c.vaultAddr)
		})

		c.mu.Lock()
		c.handle = handle
		c.lastAutoRebalance = now
		c.mu.Unlock()

		c.log.Info().
			Uint64("handle", uint64(handle)).
			Int("lower", req.LowerBound).
			Int("upper", req.UpperBound).
			Str("swapIn", swapIn.String()).
			Str("swapOut", swapOut.String()).
			Str("size", size.String()).
			Msg("Automated rebalance complete")
		c.emit(types.EventAutomatedRebalance, caller, map[string]string{
			"handle":   fmt.Sprintf("%d", handle),
			"lower":    fmt.Sprintf("%d", req.LowerBound),
			"upper":    fmt.Sprintf("%d", req.UpperBound),
			"swap_in":  swapIn.String(),
			"swap_out": swapOut.String(),
			"size":     size.String(),
		})
		return nil
	})
}

// emit raises a notification. Inside an operation scope it is buffered
// until the operation commits; a rolled-back operation leaves no trace in
// the sink.
func (c *Controller) emit(kind types.EventKind, actor string, attrs map[string]string) {
	if c.events == nil {
		return
	}
	ev := types.Event{
		ID:         uuid.NewString(),
		Vault:      c.vaultAddr,
		Actor:      actor,
		Kind:       kind,
		Timestamp:  c.now(),
		Attributes: attrs,
	}
	if c.inFlight.Load() {
		c.mu.Lock()
		c.pending = append(c.pending, ev)
		c.mu.Unlock()
		return
	}
	c.events.Record(ev)
}
