package fees

import (
	"errors"
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/rangelock/rvm/internal/bank"
	"github.com/rangelock/rvm/internal/logger"
)

// Error definitions for the protocol fee ledger
var (
	ErrUnauthorizedWithdraw = errors.New("caller is not the fee admin")
	ErrNothingAccrued       = errors.New("nothing accrued for denom")
)

// Ledger is the passive protocol revenue ledger. Payers transfer fees into
// the ledger's bank account and report the accrual; the admin withdraws.
// Nothing in the custody controller pushes funds here in this version; the
// swap gateway is the only wired payer.
type Ledger struct {
	mu sync.RWMutex

	log     zerolog.Logger
	ledger  *bank.Ledger
	account string
	admin   string

	accrued map[string]sdkmath.Int
}

// NewLedger creates a fee ledger over the given bank account.
func NewLedger(ledger *bank.Ledger, account, admin string) (*Ledger, error) {
	if ledger == nil {
		return nil, errors.New("bank ledger is nil")
	}
	if account == "" || admin == "" {
		return nil, errors.New("fee account and admin are required")
	}
	return &Ledger{
		log:     logger.GetForComponent("fee_ledger"),
		ledger:  ledger,
		account: account,
		admin:   admin,
		accrued: make(map[string]sdkmath.Int),
	}, nil
}

// Account returns the ledger's bank account address.
func (l *Ledger) Account() string {
	return l.account
}

// Accumulate records protocol revenue that the payer has already moved into
// the fee account.
func (l *Ledger) Accumulate(denom string, amount sdkmath.Int) {
	if amount.IsNil() || !amount.IsPositive() {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	cur, ok := l.accrued[denom]
	if !ok {
		cur = sdkmath.ZeroInt()
	}
	l.accrued[denom] = cur.Add(amount)
}

// Accrued returns the amount recorded for a denom.
func (l *Ledger) Accrued(denom string) sdkmath.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if amt, ok := l.accrued[denom]; ok {
		return amt
	}
	return sdkmath.ZeroInt()
}

// Withdraw pays the full accrual of a denom to the recipient. Admin only.
func (l *Ledger) Withdraw(caller, denom, recipient string) (sdkmath.Int, error) {
	if caller != l.admin {
		return sdkmath.ZeroInt(), errors.Join(ErrUnauthorizedWithdraw, fmt.Errorf("caller %s", caller))
	}
	if recipient == "" {
		return sdkmath.ZeroInt(), errors.New("recipient address is empty")
	}

	l.mu.Lock()
	amount, ok := l.accrued[denom]
	if !ok || amount.IsZero() {
		l.mu.Unlock()
		return sdkmath.ZeroInt(), errors.Join(ErrNothingAccrued, fmt.Errorf("denom %s", denom))
	}
	delete(l.accrued, denom)
	l.mu.Unlock()

	if err := l.ledger.Transfer(l.account, recipient, denom, amount); err != nil {
		// Re-record so the accrual is not lost on a failed payout.
		l.Accumulate(denom, amount)
		return sdkmath.ZeroInt(), fmt.Errorf("fee withdrawal transfer failed: %w", err)
	}

	l.log.Info().
		Str("denom", denom).
		Str("amount", amount.String()).
		Str("recipient", recipient).
		Msg("Protocol fees withdrawn")

	return amount, nil
}

// feeSnapshot is a copy of the accrual table.
type feeSnapshot struct {
	accrued map[string]sdkmath.Int
}

// Snapshot implements types.Snapshotter.
func (l *Ledger) Snapshot() any {
	l.mu.RLock()
	defer l.mu.RUnlock()

	snap := feeSnapshot{accrued: make(map[string]sdkmath.Int, len(l.accrued))}
	for denom, amt := range l.accrued {
		snap.accrued[denom] = amt
	}
	return snap
}

// Restore implements types.Snapshotter.
func (l *Ledger) Restore(snapshot any) {
	snap, ok := snapshot.(feeSnapshot)
	if !ok {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.accrued = make(map[string]sdkmath.Int, len(snap.accrued))
	for denom, amt := range snap.accrued {
		l.accrued[denom] = amt
	}
}
