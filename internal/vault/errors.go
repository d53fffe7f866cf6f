package vault

import "errors"

// Error definitions for the custody controller. The taxonomy groups into
// authorization, precondition, automation-gate and collaborator failures;
// every one of them fails the whole operation with no state change except
// where a step is explicitly best-effort.
var (
	// authorization
	ErrUnauthorized  = errors.New("caller does not hold the required role")
	ErrReentrantCall = errors.New("operation is already in flight for this vault")

	// preconditions
	ErrInvalidConfig  = errors.New("controller configuration is invalid")
	ErrNoIdleFunds    = errors.New("no idle funds held by the vault")
	ErrPositionOpen   = errors.New("a position is already open")
	ErrNullRecipient  = errors.New("recipient address is empty")
	ErrZeroSwapAmount = errors.New("swap amount must be positive")

	// automation gates
	ErrAutomationDisabled = errors.New("automation is disabled")
	ErrCooldownActive     = errors.New("rebalance cooldown has not elapsed")
	ErrPairMismatch       = errors.New("requested pair does not match the adapter's tokens")
	ErrSwapNotAllowed     = errors.New("swap requested while swaps are disallowed")
	ErrInvalidRange       = errors.New("range lower bound must be below upper bound")

	// collaborators
	ErrAdapterFailure = errors.New("position adapter call failed")
	ErrSwapFailed     = errors.New("swap gateway call failed")
)
