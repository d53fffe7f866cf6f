package factory

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rangelock/rvm/internal/bank"
	"github.com/rangelock/rvm/internal/catalog"
	"github.com/rangelock/rvm/internal/logger"
	"github.com/rangelock/rvm/internal/types"
	"github.com/rangelock/rvm/internal/vault"
)

// Error definitions for the vault factory
var (
	ErrInvalidFactoryConfig = errors.New("factory configuration is invalid")
	ErrUnknownVault         = errors.New("vault is not registered")
)

// Config holds the factory's dependencies.
type Config struct {
	Bank    *bank.Ledger
	Catalog *catalog.Catalog
	Events  types.EventSink // optional, handed to every controller
}

// Factory deploys vault controllers from catalog strategies and indexes
// them by owner and by strategy.
type Factory struct {
	mu sync.RWMutex

	log     zerolog.Logger
	bank    *bank.Ledger
	catalog *catalog.Catalog
	events  types.EventSink

	vaults     map[string]*vault.Controller
	byOwner    map[string][]string
	byStrategy map[string][]string
}

// New creates a factory.
func New(cfg Config) (*Factory, error) {
	if cfg.Bank == nil {
		return nil, errors.Join(ErrInvalidFactoryConfig, errors.New("bank ledger is required"))
	}
	if cfg.Catalog == nil {
		return nil, errors.Join(ErrInvalidFactoryConfig, errors.New("catalog is required"))
	}
	return &Factory{
		log:        logger.GetForComponent("vault_factory"),
		bank:       cfg.Bank,
		catalog:    cfg.Catalog,
		events:     cfg.Events,
		vaults:     make(map[string]*vault.Controller),
		byOwner:    make(map[string][]string),
		byStrategy: make(map[string][]string),
	}, nil
}

// CreateVault instantiates a controller for the owner from a registered
// strategy. The vault account address is assigned here and the atomic-scope
// journal is assembled from the bank plus the strategy's stateful
// collaborators.
func (f *Factory) CreateVault(owner, executor, strategyID, feeSink string) (*vault.Controller, error) {
	strategy, err := f.catalog.Get(strategyID)
	if err != nil {
		return nil, err
	}

	vaultAddr := "rvault-" + uuid.NewString()

	journal := make([]types.Snapshotter, 0, len(strategy.State)+1)
	journal = append(journal, f.bank)
	journal = append(journal, strategy.State...)

	controller, err := vault.NewController(vault.Config{
		Owner:        owner,
		Executor:     executor,
		VaultAddress: vaultAddr,
		StrategyID:   strategy.ID,
		FeeSink:      feeSink,
		Adapter:      strategy.Adapter,
		Gateway:      strategy.Router,
		Bank:         f.bank,
		Journal:      journal,
		Events:       f.events,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create controller: %w", err)
	}

	f.mu.Lock()
	f.vaults[vaultAddr] = controller
	f.byOwner[owner] = append(f.byOwner[owner], vaultAddr)
	f.byStrategy[strategy.ID] = append(f.byStrategy[strategy.ID], vaultAddr)
	f.mu.Unlock()

	f.log.Info().
		Str("vault", vaultAddr).
		Str("owner", owner).
		Str("strategy", strategy.Name).
		Msg("Vault deployed")

	return controller, nil
}

// Vault returns a deployed controller by address.
func (f *Factory) Vault(addr string) (*vault.Controller, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	c, ok := f.vaults[addr]
	if !ok {
		return nil, errors.Join(ErrUnknownVault, fmt.Errorf("address %q", addr))
	}
	return c, nil
}

// VaultsByOwner returns the controllers deployed for an owner.
func (f *Factory) VaultsByOwner(owner string) []*vault.Controller {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.collect(f.byOwner[owner])
}

// VaultsByStrategy returns the controllers deployed from a strategy.
func (f *Factory) VaultsByStrategy(strategyID string) []*vault.Controller {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.collect(f.byStrategy[strategyID])
}

// All returns every deployed controller.
func (f *Factory) All() []*vault.Controller {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]*vault.Controller, 0, len(f.vaults))
	for _, c := range f.vaults {
		out = append(out, c)
	}
	return out
}

// collect resolves addresses to controllers. Callers hold the lock.
func (f *Factory) collect(addrs []string) []*vault.Controller {
	out := make([]*vault.Controller, 0, len(addrs))
	for _, addr := range addrs {
		if c, ok := f.vaults[addr]; ok {
			out = append(out, c)
		}
	}
	return out
}
