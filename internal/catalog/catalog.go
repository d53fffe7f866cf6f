package catalog

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rangelock/rvm/internal/adapter"
	"github.com/rangelock/rvm/internal/gateway"
	"github.com/rangelock/rvm/internal/logger"
	"github.com/rangelock/rvm/internal/types"
)

// Error definitions for the strategy catalog
var (
	ErrInvalidStrategy = errors.New("strategy definition is invalid")
	ErrUnknownStrategy = errors.New("strategy is not registered")
	ErrDuplicateName   = errors.New("strategy name is already registered")
	ErrPairMismatch    = errors.New("declared pair does not match the adapter's tokens")
)

// Strategy is a validated adapter/router binding the factory instantiates
// vaults from. ID is assigned on registration and is the opaque strategy
// reference carried by each vault.
type Strategy struct {
	ID      string
	Name    string
	Pair    types.AssetPair
	Adapter adapter.PositionAdapter
	Router  gateway.SwapGateway

	// State lists the strategy's stateful collaborators for the
	// controller's atomic scope.
	State []types.Snapshotter
}

// Catalog is the registry of strategies available to the factory.
type Catalog struct {
	mu sync.RWMutex

	log        zerolog.Logger
	strategies map[string]Strategy
	byName     map[string]string
}

// New creates an empty catalog.
func New() *Catalog {
	return &Catalog{
		log:        logger.GetForComponent("strategy_catalog"),
		strategies: make(map[string]Strategy),
		byName:     make(map[string]string),
	}
}

// Register validates a strategy and assigns its ID.
func (c *Catalog) Register(s Strategy) (Strategy, error) {
	if err := validateStrategy(s); err != nil {
		return Strategy{}, errors.Join(ErrInvalidStrategy, err)
	}

	denom0, denom1 := s.Adapter.Tokens()
	if s.Pair.Denom0 != denom0 || s.Pair.Denom1 != denom1 {
		return Strategy{}, errors.Join(ErrPairMismatch,
			fmt.Errorf("declared %s/%s, adapter holds %s/%s", s.Pair.Denom0, s.Pair.Denom1, denom0, denom1))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.byName[s.Name]; exists {
		return Strategy{}, errors.Join(ErrDuplicateName, fmt.Errorf("name %q", s.Name))
	}

	s.ID = uuid.NewString()
	c.strategies[s.ID] = s
	c.byName[s.Name] = s.ID

	c.log.Info().
		Str("id", s.ID).
		Str("name", s.Name).
		Str("pair", s.Pair.Denom0+"/"+s.Pair.Denom1).
		Msg("Strategy registered")

	return s, nil
}

func validateStrategy(s Strategy) error {
	if s.Name == "" {
		return errors.New("strategy name is required")
	}
	if s.Adapter == nil {
		return errors.New("strategy adapter is required")
	}
	if s.Router == nil {
		return errors.New("strategy router is required")
	}
	if s.Pair.Denom0 == "" || s.Pair.Denom1 == "" {
		return errors.New("strategy pair is required")
	}
	if s.Pair.Denom0 == s.Pair.Denom1 {
		return fmt.Errorf("pair denoms must differ, got %q twice", s.Pair.Denom0)
	}
	return nil
}

// Get returns a strategy by ID.
func (c *Catalog) Get(id string) (Strategy, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s, ok := c.strategies[id]
	if !ok {
		return Strategy{}, errors.Join(ErrUnknownStrategy, fmt.Errorf("id %q", id))
	}
	return s, nil
}

// GetByName returns a strategy by its registered name.
func (c *Catalog) GetByName(name string) (Strategy, error) {
	c.mu.RLock()
	id, ok := c.byName[name]
	c.mu.RUnlock()
	if !ok {
		return Strategy{}, errors.Join(ErrUnknownStrategy, fmt.Errorf("name %q", name))
	}
	return c.Get(id)
}

// List returns all registered strategies.
func (c *Catalog) List() []Strategy {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Strategy, 0, len(c.strategies))
	for _, s := range c.strategies {
		out = append(out, s)
	}
	return out
}
