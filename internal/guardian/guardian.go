// Package guardian implements the position-safety guardian: it owns the
// threshold policy and the oracle/executor bindings, exposes the margin
// computation as a pure read, and gates the single state-changing operation
// that converts collateral when the policy is breached.
package guardian

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"marginguard/internal/domain"
)

// SwapExecutor is the actuator the guardian delegates to when the policy is
// breached. It is typically implemented by the swap package.
type SwapExecutor interface {
	Execute(ctx context.Context, acct domain.Account, amountIn, minOut *big.Int) (*big.Int, error)
}

// Guardian enforces the owner-configured threshold policy over a position's
// safety margin. It has exactly one operating state: fully configured. All
// required bindings are constructor arguments and are kept non-nil for the
// guardian's whole lifetime.
type Guardian struct {
	mu sync.Mutex

	owner        common.Address
	thresholdBps int64
	oracle       domain.LedgerOracle
	executor     SwapExecutor

	audit      domain.AuditStore
	rebalances domain.RebalanceStore
	bus        domain.SignalBus
	logger     *slog.Logger
}

// Config holds the guardian's construction-time policy.
type Config struct {
	Owner        common.Address
	ThresholdBps int64
}

// New constructs a fully configured Guardian. It rejects a zero owner, a nil
// oracle or executor, and an out-of-range threshold; there is no partially
// initialized instance to repair afterwards.
//
// The audit store, rebalance store, and signal bus may be nil in read-only
// deployments; emission is skipped, enforcement is unaffected.
func New(
	cfg Config,
	oracle domain.LedgerOracle,
	executor SwapExecutor,
	audit domain.AuditStore,
	rebalances domain.RebalanceStore,
	bus domain.SignalBus,
	logger *slog.Logger,
) (*Guardian, error) {
	if cfg.Owner == (common.Address{}) {
		return nil, fmt.Errorf("guardian: owner: %w", domain.ErrInvalidReference)
	}
	if oracle == nil {
		return nil, fmt.Errorf("guardian: oracle: %w", domain.ErrInvalidReference)
	}
	if executor == nil {
		return nil, fmt.Errorf("guardian: executor: %w", domain.ErrInvalidReference)
	}
	if !domain.ValidThresholdBps(cfg.ThresholdBps) {
		return nil, fmt.Errorf("guardian: threshold %d bps: %w", cfg.ThresholdBps, domain.ErrInvalidThreshold)
	}
	return &Guardian{
		owner:        cfg.Owner,
		thresholdBps: cfg.ThresholdBps,
		oracle:       oracle,
		executor:     executor,
		audit:        audit,
		rebalances:   rebalances,
		bus:          bus,
		logger:       logger.With(slog.String("component", "guardian")),
	}, nil
}

// Margin is the result of a ComputeMargin read: the derived margin plus the
// raw position values it was derived from.
type Margin struct {
	MarginBps *big.Int
	Supply    *big.Int
	Borrow    *big.Int
}

// ComputeMargin re-reads the ledger oracle and derives the position's safety
// margin in basis points. It is a pure read: no mutation, no events. A
// position with zero borrow has no meaningful margin and the call fails with
// ErrNoBorrowValue; callers must branch on that explicitly.
func (g *Guardian) ComputeMargin(ctx context.Context, acct domain.Account) (Margin, error) {
	g.mu.Lock()
	oracle := g.oracle
	g.mu.Unlock()

	vals, err := oracle.GetAccountValues(ctx, acct)
	if err != nil {
		return Margin{}, fmt.Errorf("guardian: read account values for %s: %w", acct, err)
	}
	bps, err := domain.MarginBps(vals)
	if err != nil {
		return Margin{}, fmt.Errorf("guardian: %s: %w", acct, err)
	}
	return Margin{MarginBps: bps, Supply: vals.Supply, Borrow: vals.Borrow}, nil
}

// ThresholdBps returns the current policy threshold.
func (g *Guardian) ThresholdBps() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.thresholdBps
}

// Owner returns the current policy owner.
func (g *Guardian) Owner() common.Address {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.owner
}

// TriggerIfBreached recomputes the margin from live oracle state and, only
// if it has fallen to or below the policy threshold, delegates to the swap
// executor with the exact caller-supplied amounts and appends a rebalance
// record. It is deliberately not owner-gated: anyone may protect the
// position once it is breached, and the call has no effect otherwise.
//
// The whole call runs under the guardian's mutex, so a concurrent trigger is
// sequenced after this one, re-reads fresh state, and discovers the policy
// is no longer breached instead of double-executing.
func (g *Guardian) TriggerIfBreached(ctx context.Context, caller common.Address, acct domain.Account, amountIn, minOut *big.Int) (domain.RebalanceRecord, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	vals, err := g.oracle.GetAccountValues(ctx, acct)
	if err != nil {
		return domain.RebalanceRecord{}, fmt.Errorf("guardian: read account values for %s: %w", acct, err)
	}
	// A zero-borrow position is neither safe nor breached; fail closed.
	bps, err := domain.MarginBps(vals)
	if err != nil {
		return domain.RebalanceRecord{}, fmt.Errorf("guardian: %s: %w", acct, err)
	}

	if bps.Cmp(big.NewInt(g.thresholdBps)) > 0 {
		return domain.RebalanceRecord{}, &domain.PolicyNotBreachedError{
			MarginBps:    bps,
			ThresholdBps: g.thresholdBps,
		}
	}

	received, err := g.executor.Execute(ctx, acct, amountIn, minOut)
	if err != nil {
		return domain.RebalanceRecord{}, fmt.Errorf("guardian: execute swap for %s: %w", acct, err)
	}

	rec := domain.RebalanceRecord{
		ID:             uuid.New().String(),
		AccountOwner:   acct.Owner.Hex(),
		AccountNumber:  acct.Number.String(),
		MarginBps:      bps.Int64(),
		ThresholdBps:   g.thresholdBps,
		AmountIn:       amountIn,
		MinOut:         minOut,
		AmountReceived: received,
		Caller:         caller.Hex(),
		CreatedAt:      time.Now().UTC(),
	}
	if g.rebalances != nil {
		if err := g.rebalances.Create(ctx, rec); err != nil {
			g.logger.WarnContext(ctx, "rebalance record write failed",
				slog.String("account", acct.String()),
				slog.String("error", err.Error()),
			)
		}
	}
	g.emit(ctx, domain.EventPositionAdjusted, acct, map[string]any{
		"margin_bps":      rec.MarginBps,
		"threshold_bps":   rec.ThresholdBps,
		"amount_in":       amountIn.String(),
		"min_out":         minOut.String(),
		"amount_received": received.String(),
		"caller":          caller.Hex(),
	})

	g.logger.InfoContext(ctx, "position adjusted",
		slog.String("account", acct.String()),
		slog.Int64("margin_bps", rec.MarginBps),
		slog.Int64("threshold_bps", rec.ThresholdBps),
		slog.String("amount_received", received.String()),
	)
	return rec, nil
}

// SetThreshold updates the policy threshold. Owner-only.
func (g *Guardian) SetThreshold(ctx context.Context, caller common.Address, newThresholdBps int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.requireOwner(caller); err != nil {
		return err
	}
	if !domain.ValidThresholdBps(newThresholdBps) {
		return fmt.Errorf("guardian: threshold %d bps: %w", newThresholdBps, domain.ErrInvalidThreshold)
	}
	old := g.thresholdBps
	g.thresholdBps = newThresholdBps

	g.emit(ctx, domain.EventThresholdUpdated, domain.Account{}, map[string]any{
		"old_threshold_bps": old,
		"new_threshold_bps": newThresholdBps,
	})
	return nil
}

// SetOracle rebinds the ledger oracle. Owner-only; a nil oracle is rejected
// so the binding invariant holds for the guardian's whole lifetime.
func (g *Guardian) SetOracle(ctx context.Context, caller common.Address, oracle domain.LedgerOracle) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.requireOwner(caller); err != nil {
		return err
	}
	if oracle == nil {
		return fmt.Errorf("guardian: oracle: %w", domain.ErrInvalidReference)
	}
	old := fmt.Sprintf("%T", g.oracle)
	g.oracle = oracle

	g.emit(ctx, domain.EventOracleRebound, domain.Account{}, map[string]any{
		"old_oracle": old,
		"new_oracle": fmt.Sprintf("%T", oracle),
	})
	return nil
}

// SetExecutor rebinds the swap executor. Owner-only; nil is rejected.
func (g *Guardian) SetExecutor(ctx context.Context, caller common.Address, executor SwapExecutor) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.requireOwner(caller); err != nil {
		return err
	}
	if executor == nil {
		return fmt.Errorf("guardian: executor: %w", domain.ErrInvalidReference)
	}
	old := fmt.Sprintf("%T", g.executor)
	g.executor = executor

	g.emit(ctx, domain.EventExecutorRebound, domain.Account{}, map[string]any{
		"old_executor": old,
		"new_executor": fmt.Sprintf("%T", executor),
	})
	return nil
}

// TransferOwnership reassigns the policy owner. Owner-only; the zero address
// is rejected so the guardian can never become ownerless.
func (g *Guardian) TransferOwnership(ctx context.Context, caller, newOwner common.Address) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.requireOwner(caller); err != nil {
		return err
	}
	if newOwner == (common.Address{}) {
		return fmt.Errorf("guardian: new owner: %w", domain.ErrInvalidReference)
	}
	old := g.owner
	g.owner = newOwner

	g.emit(ctx, domain.EventOwnershipTransferred, domain.Account{}, map[string]any{
		"old_owner": old.Hex(),
		"new_owner": newOwner.Hex(),
	})
	return nil
}

// requireOwner is the single capability check guarding every mutating
// operation. Callers must hold g.mu.
func (g *Guardian) requireOwner(caller common.Address) error {
	if caller != g.owner {
		return fmt.Errorf("guardian: caller %s: %w", caller.Hex(), domain.ErrNotOwner)
	}
	return nil
}

// emit appends the event to the audit store and publishes it on the signal
// bus. Emission failures are logged, never propagated: the state change or
// corrective action has already happened and must not be rolled back because
// an observer is down.
func (g *Guardian) emit(ctx context.Context, event string, acct domain.Account, detail map[string]any) {
	if g.audit != nil {
		if err := g.audit.Log(ctx, event, acct, detail); err != nil {
			g.logger.WarnContext(ctx, "audit write failed",
				slog.String("event", event),
				slog.String("error", err.Error()),
			)
		}
	}
	if g.bus != nil {
		payload, err := json.Marshal(map[string]any{"event": event, "detail": detail})
		if err == nil {
			if err := g.bus.Publish(ctx, domain.ChannelEvents, payload); err != nil {
				g.logger.DebugContext(ctx, "event publish failed",
					slog.String("event", event),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
