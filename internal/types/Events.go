/*

This file contains the notification types emitted by the custody controller.
Events are logged and, when an EventSink is wired, persisted for the
dashboard and audit queries.

*/

package types

import (
	"time"
)

// EventKind identifies a controller notification.
type EventKind string

const (
	EventVaultCreated        EventKind = "vault_created"
	EventAutomationToggled   EventKind = "automation_toggled"
	EventAutomationConfigSet EventKind = "automation_config_set"
	EventPositionOpened      EventKind = "position_opened"
	EventManualRebalance     EventKind = "manual_rebalance"
	EventAutomatedRebalance  EventKind = "automated_rebalance"
	EventExitToCustody       EventKind = "exit_to_custody"
	EventExitWithdraw        EventKind = "exit_withdraw"
	EventYieldCollected      EventKind = "yield_collected"
	EventStaked              EventKind = "staked"
	EventUnstaked            EventKind = "unstaked"
	EventRewardsClaimed      EventKind = "rewards_claimed"
	EventSwapExecuted        EventKind = "swap_executed"
)

// Event is a single controller notification.
type Event struct {
	ID         string            `json:"id"`
	Vault      string            `json:"vault"`
	Actor      string            `json:"actor"`
	Kind       EventKind         `json:"kind"`
	Timestamp  time.Time         `json:"timestamp"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// EventSink receives controller notifications. Implementations must not
// fail the emitting operation; persistence errors are their own concern.
type EventSink interface {
	Record(event Event)
}

// Snapshotter is implemented by stateful collaborators that participate in
// the controller's atomic scope. Snapshot returns an opaque copy of the
// component's mutable state; Restore reinstates a previously taken copy.
type Snapshotter interface {
	Snapshot() any
	Restore(snapshot any)
}
