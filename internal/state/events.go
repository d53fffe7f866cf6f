package state

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/rangelock/rvm/internal/logger"
	"github.com/rangelock/rvm/internal/types"
)

// SaveEvent persists a single controller notification.
func SaveEvent(event types.Event) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	var attrs []byte
	if event.Attributes != nil {
		var err error
		attrs, err = json.Marshal(event.Attributes)
		if err != nil {
			return fmt.Errorf("failed to marshal event attributes: %w", err)
		}
	}

	query := `
		INSERT INTO vault_events (event_id, vault_address, actor, kind, attributes, event_timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := DB.Exec(query, event.ID, event.Vault, event.Actor, string(event.Kind), attrs, event.Timestamp); err != nil {
		return fmt.Errorf("failed to insert vault event: %w", err)
	}
	return nil
}

// RecentEvents retrieves the most recent notifications across all vaults.
func RecentEvents(limit int) ([]types.Event, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	query := `
		SELECT event_id, vault_address, actor, kind, attributes, event_timestamp
		FROM vault_events
		ORDER BY event_timestamp DESC
		LIMIT $1
	`
	return queryEvents(query, limit)
}

// EventsByVault retrieves the most recent notifications for one vault.
func EventsByVault(vaultAddr string, limit int) ([]types.Event, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	query := `
		SELECT event_id, vault_address, actor, kind, attributes, event_timestamp
		FROM vault_events
		WHERE vault_address = $1
		ORDER BY event_timestamp DESC
		LIMIT $2
	`
	return queryEvents(query, vaultAddr, limit)
}

func queryEvents(query string, args ...any) ([]types.Event, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	rows, err := DB.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query vault events: %w", err)
	}
	defer rows.Close()

	events := make([]types.Event, 0)
	for rows.Next() {
		var (
			event types.Event
			kind  string
			attrs sql.NullString
		)
		if err := rows.Scan(&event.ID, &event.Vault, &event.Actor, &kind, &attrs, &event.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan vault event: %w", err)
		}
		event.Kind = types.EventKind(kind)
		if attrs.Valid && attrs.String != "" {
			if err := json.Unmarshal([]byte(attrs.String), &event.Attributes); err != nil {
				return nil, fmt.Errorf("failed to unmarshal event attributes: %w", err)
			}
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// EventStore is the persistence-backed EventSink handed to controllers.
// Persistence errors are logged and swallowed; a sink must never fail the
// emitting operation.
type EventStore struct {
	log zerolog.Logger
}

// NewEventStore creates the sink.
func NewEventStore() *EventStore {
	return &EventStore{log: logger.GetForComponent("event_store")}
}

// Record implements types.EventSink.
func (s *EventStore) Record(event types.Event) {
	if err := SaveEvent(event); err != nil {
		s.log.Error().Err(err).
			Str("vault", event.Vault).
			Str("kind", string(event.Kind)).
			Msg("Failed to persist vault event")
	}
}
