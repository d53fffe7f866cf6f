package bank

import (
	"errors"
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"
)

// Error definitions for zero-tolerance custody accounting
var (
	ErrInvalidAddress        = errors.New("account address is invalid")
	ErrInvalidAmount         = errors.New("amount is invalid")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
)

// Ledger is an in-process multi-account token ledger. It is the single
// custody substrate of the system: every party (owner, vault, adapter pool,
// gateway, fee sink) is an account, so asset conservation can be checked by
// summing balances across accounts.
type Ledger struct {
	mu sync.RWMutex

	// account -> denom -> amount
	balances map[string]map[string]sdkmath.Int
	// owner -> spender -> denom -> amount
	allowances map[string]map[string]map[string]sdkmath.Int
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		balances:   make(map[string]map[string]sdkmath.Int),
		allowances: make(map[string]map[string]map[string]sdkmath.Int),
	}
}

func validateTransferInputs(from, to, denom string, amount sdkmath.Int) error {
	if from == "" || to == "" {
		return errors.Join(ErrInvalidAddress, errors.New("transfer endpoint address is empty"))
	}
	if denom == "" {
		return errors.Join(ErrInvalidAmount, errors.New("denom is empty"))
	}
	if amount.IsNil() {
		return errors.Join(ErrInvalidAmount, errors.New("amount is nil"))
	}
	if amount.IsNegative() {
		return errors.Join(ErrInvalidAmount, fmt.Errorf("amount is negative: %s", amount))
	}
	return nil
}

// Mint credits newly issued units to an account. It exists for bootstrap
// funding and fixtures; nothing in the operation surface reaches it.
func (l *Ledger) Mint(addr, denom string, amount sdkmath.Int) error {
	if err := validateTransferInputs(addr, addr, denom, amount); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.credit(addr, denom, amount)
	return nil
}

// BalanceOf returns the balance of denom held by addr. Unknown accounts and
// denoms read as zero.
func (l *Ledger) BalanceOf(addr, denom string) sdkmath.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if acct, ok := l.balances[addr]; ok {
		if bal, ok := acct[denom]; ok {
			return bal
		}
	}
	return sdkmath.ZeroInt()
}

// Transfer moves amount of denom from one account to another.
func (l *Ledger) Transfer(from, to, denom string, amount sdkmath.Int) error {
	if err := validateTransferInputs(from, to, denom, amount); err != nil {
		return err
	}
	if amount.IsZero() {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.debit(from, denom, amount); err != nil {
		return err
	}
	l.credit(to, denom, amount)
	return nil
}

// Approve sets the allowance of spender over owner's denom balance to
// exactly amount, replacing any previous grant.
func (l *Ledger) Approve(owner, spender, denom string, amount sdkmath.Int) error {
	if err := validateTransferInputs(owner, spender, denom, amount); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	spenders, ok := l.allowances[owner]
	if !ok {
		spenders = make(map[string]map[string]sdkmath.Int)
		l.allowances[owner] = spenders
	}
	grants, ok := spenders[spender]
	if !ok {
		grants = make(map[string]sdkmath.Int)
		spenders[spender] = grants
	}
	if amount.IsZero() {
		delete(grants, denom)
		return nil
	}
	grants[denom] = amount
	return nil
}

// Allowance returns the current grant of spender over owner's denom balance.
func (l *Ledger) Allowance(owner, spender, denom string) sdkmath.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if spenders, ok := l.allowances[owner]; ok {
		if grants, ok := spenders[spender]; ok {
			if amt, ok := grants[denom]; ok {
				return amt
			}
		}
	}
	return sdkmath.ZeroInt()
}

// TransferFrom moves amount of denom from the owner account to the
// destination, consuming the spender's allowance.
func (l *Ledger) TransferFrom(spender, from, to, denom string, amount sdkmath.Int) error {
	if err := validateTransferInputs(from, to, denom, amount); err != nil {
		return err
	}
	if spender == "" {
		return errors.Join(ErrInvalidAddress, errors.New("spender address is empty"))
	}
	if amount.IsZero() {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	grant := sdkmath.ZeroInt()
	if spenders, ok := l.allowances[from]; ok {
		if grants, ok := spenders[spender]; ok {
			if amt, ok := grants[denom]; ok {
				grant = amt
			}
		}
	}
	if grant.LT(amount) {
		return errors.Join(ErrInsufficientAllowance,
			fmt.Errorf("spender %s holds %s of %s, needs %s", spender, grant, denom, amount))
	}

	if err := l.debit(from, denom, amount); err != nil {
		return err
	}
	l.credit(to, denom, amount)
	l.allowances[from][spender][denom] = grant.Sub(amount)
	return nil
}

// credit adds amount to addr. Callers hold the lock.
func (l *Ledger) credit(addr, denom string, amount sdkmath.Int) {
	acct, ok := l.balances[addr]
	if !ok {
		acct = make(map[string]sdkmath.Int)
		l.balances[addr] = acct
	}
	bal, ok := acct[denom]
	if !ok {
		bal = sdkmath.ZeroInt()
	}
	acct[denom] = bal.Add(amount)
}

// debit removes amount from addr. Callers hold the lock.
func (l *Ledger) debit(addr, denom string, amount sdkmath.Int) error {
	bal := sdkmath.ZeroInt()
	if acct, ok := l.balances[addr]; ok {
		if b, ok := acct[denom]; ok {
			bal = b
		}
	}
	if bal.LT(amount) {
		return errors.Join(ErrInsufficientBalance,
			fmt.Errorf("account %s holds %s of %s, needs %s", addr, bal, denom, amount))
	}
	l.balances[addr][denom] = bal.Sub(amount)
	return nil
}

// TotalSupply sums a denom across all accounts. Conservation checks and the
// dashboard use it; no operation path depends on it.
func (l *Ledger) TotalSupply(denom string) sdkmath.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	total := sdkmath.ZeroInt()
	for _, acct := range l.balances {
		if bal, ok := acct[denom]; ok {
			total = total.Add(bal)
		}
	}
	return total
}

// ledgerSnapshot is a deep copy of the ledger's mutable state.
type ledgerSnapshot struct {
	balances   map[string]map[string]sdkmath.Int
	allowances map[string]map[string]map[string]sdkmath.Int
}

// Snapshot returns a deep copy of balances and allowances for the
// controller's atomic scope.
func (l *Ledger) Snapshot() any {
	l.mu.RLock()
	defer l.mu.RUnlock()

	snap := ledgerSnapshot{
		balances:   make(map[string]map[string]sdkmath.Int, len(l.balances)),
		allowances: make(map[string]map[string]map[string]sdkmath.Int, len(l.allowances)),
	}
	for addr, acct := range l.balances {
		cp := make(map[string]sdkmath.Int, len(acct))
		for denom, bal := range acct {
			cp[denom] = bal
		}
		snap.balances[addr] = cp
	}
	for owner, spenders := range l.allowances {
		scp := make(map[string]map[string]sdkmath.Int, len(spenders))
		for spender, grants := range spenders {
			gcp := make(map[string]sdkmath.Int, len(grants))
			for denom, amt := range grants {
				gcp[denom] = amt
			}
			scp[spender] = gcp
		}
		snap.allowances[owner] = scp
	}
	return snap
}

// Restore reinstates a snapshot previously taken with Snapshot.
func (l *Ledger) Restore(snapshot any) {
	snap, ok := snapshot.(ledgerSnapshot)
	if !ok {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.balances = make(map[string]map[string]sdkmath.Int, len(snap.balances))
	for addr, acct := range snap.balances {
		cp := make(map[string]sdkmath.Int, len(acct))
		for denom, bal := range acct {
			cp[denom] = bal
		}
		l.balances[addr] = cp
	}
	l.allowances = make(map[string]map[string]map[string]sdkmath.Int, len(snap.allowances))
	for owner, spenders := range snap.allowances {
		scp := make(map[string]map[string]sdkmath.Int, len(spenders))
		for spender, grants := range spenders {
			gcp := make(map[string]sdkmath.Int, len(grants))
			for denom, amt := range grants {
				gcp[denom] = amt
			}
			scp[spender] = gcp
		}
		l.allowances[owner] = scp
	}
}
