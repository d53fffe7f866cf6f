package gateway

import (
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/rangelock/rvm/internal/amm"
	"github.com/rangelock/rvm/internal/bank"
	"github.com/rangelock/rvm/internal/fees"
	"github.com/rangelock/rvm/internal/logger"
	"github.com/rangelock/rvm/internal/types"
)

// Error definitions for the swap gateway
var (
	ErrInvalidRouterConfig = errors.New("router configuration is invalid")
	ErrDeadlineExceeded    = errors.New("swap deadline exceeded")
	ErrUnsupportedPair     = errors.New("swap pair is not routed by this gateway")
	ErrZeroAmountIn        = errors.New("swap amount in must be positive")
)

const routerFeeBpsDenominator = 10_000

// SwapGateway is the single-hop exact-input swap capability a vault is bound
// to at construction. The gateway must always deliver output to the calling
// vault's own account, never to a third party.
type SwapGateway interface {
	// Address returns the gateway's ledger account, which is also the
	// spender the vault grants allowances to.
	Address() string

	// SwapExactIn pulls order.AmountIn from the vault via allowance, swaps
	// it through the routed pool and credits the output to the vault.
	SwapExactIn(vault string, order types.SwapOrder) (sdkmath.Int, error)
}

// Router routes exact-input swaps through exactly one pool. A router fee in
// basis points is carved from the output and accumulated in the protocol
// fee ledger when one is wired.
type Router struct {
	log      zerolog.Logger
	ledger   *bank.Ledger
	pool     *amm.Pool
	account  string
	feeBps   uint32
	protocol *fees.Ledger // optional

	now func() time.Time
}

// NewRouter creates a router bound to one pool. protocol may be nil.
func NewRouter(ledger *bank.Ledger, pool *amm.Pool, account string, feeBps uint32, protocol *fees.Ledger) (*Router, error) {
	if ledger == nil {
		return nil, errors.Join(ErrInvalidRouterConfig, errors.New("ledger is nil"))
	}
	if pool == nil {
		return nil, errors.Join(ErrInvalidRouterConfig, errors.New("pool is nil"))
	}
	if account == "" {
		return nil, errors.Join(ErrInvalidRouterConfig, errors.New("router account is empty"))
	}
	if feeBps >= routerFeeBpsDenominator {
		return nil, errors.Join(ErrInvalidRouterConfig, fmt.Errorf("router fee out of range: %d bps", feeBps))
	}
	return &Router{
		log:      logger.GetForComponent("swap_router"),
		ledger:   ledger,
		pool:     pool,
		account:  account,
		feeBps:   feeBps,
		protocol: protocol,
		now:      time.Now,
	}, nil
}

// Address returns the router's ledger account.
func (r *Router) Address() string {
	return r.account
}

// SetClock overrides the router's clock. Tests only.
func (r *Router) SetClock(now func() time.Time) {
	if now != nil {
		r.now = now
	}
}

// SwapExactIn implements SwapGateway.
func (r *Router) SwapExactIn(vault string, order types.SwapOrder) (sdkmath.Int, error) {
	if vault == "" {
		return sdkmath.ZeroInt(), errors.Join(bank.ErrInvalidAddress, errors.New("vault address is empty"))
	}
	if order.AmountIn.IsNil() || !order.AmountIn.IsPositive() {
		return sdkmath.ZeroInt(), ErrZeroAmountIn
	}
	pair := r.pool.Pair()
	if !pair.Matches(order.DenomIn, order.DenomOut) {
		return sdkmath.ZeroInt(), errors.Join(ErrUnsupportedPair,
			fmt.Errorf("%s -> %s not routed", order.DenomIn, order.DenomOut))
	}
	if !order.Deadline.IsZero() && r.now().After(order.Deadline) {
		return sdkmath.ZeroInt(), errors.Join(ErrDeadlineExceeded, fmt.Errorf("deadline %s", order.Deadline))
	}

	// Quote first: the caller's minimum applies to what the vault actually
	// receives, net of the router fee, and must reject before any leg runs.
	quoted, err := r.pool.QuoteExactIn(order.DenomIn, order.AmountIn)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("pool quote failed: %w", err)
	}
	routerFee := quoted.MulRaw(int64(r.feeBps)).QuoRaw(routerFeeBpsDenominator)
	net := quoted.Sub(routerFee)
	if !order.MinAmountOut.IsNil() && net.LT(order.MinAmountOut) {
		return sdkmath.ZeroInt(), errors.Join(amm.ErrOutputBelowMin,
			fmt.Errorf("net output %s below minimum %s", net, order.MinAmountOut))
	}

	// Pull the input from the vault under its allowance.
	if err := r.ledger.TransferFrom(r.account, vault, r.account, order.DenomIn, order.AmountIn); err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("failed to pull swap input from vault: %w", err)
	}

	out, err := r.pool.SwapExactIn(r.account, order.DenomIn, order.AmountIn, sdkmath.ZeroInt(), order.PriceLimit)
	if err != nil {
		// Return the pulled input so the vault sees a clean failure.
		if rErr := r.ledger.Transfer(r.account, vault, order.DenomIn, order.AmountIn); rErr != nil {
			return sdkmath.ZeroInt(), errors.Join(err, rErr)
		}
		return sdkmath.ZeroInt(), fmt.Errorf("pool swap failed: %w", err)
	}
	// A flat-price pool quotes deterministically; trust but verify.
	if out.LT(quoted) {
		quoted = out
		routerFee = quoted.MulRaw(int64(r.feeBps)).QuoRaw(routerFeeBpsDenominator)
		net = quoted.Sub(routerFee)
	}

	if routerFee.IsPositive() && r.protocol != nil {
		if err := r.ledger.Transfer(r.account, r.protocol.Account(), order.DenomOut, routerFee); err != nil {
			return sdkmath.ZeroInt(), fmt.Errorf("failed to remit router fee: %w", err)
		}
		r.protocol.Accumulate(order.DenomOut, routerFee)
	}

	// Output always lands in the vault's own account.
	if err := r.ledger.Transfer(r.account, vault, order.DenomOut, net); err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("failed to deliver swap output: %w", err)
	}

	r.log.Info().
		Str("vault", vault).
		Str("denomIn", order.DenomIn).
		Str("denomOut", order.DenomOut).
		Str("amountIn", order.AmountIn.String()).
		Str("amountOut", net.String()).
		Str("routerFee", routerFee.String()).
		Msg("Executed exact-input swap")

	return net, nil
}
