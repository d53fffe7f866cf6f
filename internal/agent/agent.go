package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rangelock/rvm/internal/logger"
	"github.com/rangelock/rvm/internal/types"
	"github.com/rangelock/rvm/internal/vault"
)

// Rebalancer is the controller surface the agent drives. It is the executor
// identity's entire reach into the vault.
type Rebalancer interface {
	AutomatedRebalance(caller string, req types.RebalanceRequest) error
	AutomationConfig() types.AutomationConfig
	VaultAddress() string
}

// Config holds the configuration for creating a new Agent instance
type Config struct {
	Controller Rebalancer
	Planner    Planner
	Executor   string
}

// Agent is the off-process automation loop acting through the executor
// identity. It plans with the Planner and submits; it never retries inside
// a cycle, a failed submission is just re-planned next interval.
type Agent struct {
	log        zerolog.Logger
	controller Rebalancer
	planner    Planner
	executor   string

	cycleCount int
}

// New creates an agent with dependency injection.
func New(cfg Config) (*Agent, error) {
	if cfg.Controller == nil {
		return nil, errors.New("controller cannot be nil")
	}
	if cfg.Planner == nil {
		return nil, errors.New("planner cannot be nil")
	}
	if cfg.Executor == "" {
		return nil, errors.New("executor address cannot be empty")
	}
	return &Agent{
		log:        logger.GetForComponent("executor_agent"),
		controller: cfg.Controller,
		planner:    cfg.Planner,
		executor:   cfg.Executor,
	}, nil
}

// RunLoop runs rebalance cycles until the context is cancelled.
func (a *Agent) RunLoop(ctx context.Context, interval time.Duration) {
	a.log.Info().
		Str("vault", a.controller.VaultAddress()).
		Str("interval", interval.String()).
		Msg("Starting executor agent loop")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.log.Info().Msg("Executor agent loop stopped")
			return
		case <-ticker.C:
			a.RunCycle()
		}
	}
}

// RunCycle plans and submits one automated rebalance.
func (a *Agent) RunCycle() {
	a.cycleCount++
	cycleLogger := a.log.With().
		Int("cycle", a.cycleCount).
		Str("cycleId", uuid.NewString()).
		Logger()

	cfg := a.controller.AutomationConfig()
	if !cfg.Enabled {
		cycleLogger.Debug().Msg("Automation disabled, skipping cycle")
		return
	}

	req, err := a.planner.Plan()
	if err != nil {
		cycleLogger.Error().Err(err).Msg("Planning failed, skipping cycle")
		return
	}

	if err := a.submit(req); err != nil {
		switch {
		case errors.Is(err, vault.ErrCooldownActive):
			cycleLogger.Debug().Msg("Cooldown active, skipping cycle")
		case errors.Is(err, vault.ErrAutomationDisabled):
			cycleLogger.Debug().Msg("Automation disabled mid-cycle, skipping")
		default:
			cycleLogger.Error().Err(err).Msg("Automated rebalance rejected")
		}
		return
	}

	cycleLogger.Info().
		Int("lower", req.LowerBound).
		Int("upper", req.UpperBound).
		Str("swapIn", req.AmountIn.String()).
		Msg("Automated rebalance submitted successfully")
}

func (a *Agent) submit(req types.RebalanceRequest) error {
	if err := a.controller.AutomatedRebalance(a.executor, req); err != nil {
		return fmt.Errorf("controller rejected rebalance: %w", err)
	}
	return nil
}
