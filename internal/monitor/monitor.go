// Package monitor implements the operator-facing mirror of the guardian: a
// refresh loop that re-reads live position state, recomputes the same margin
// the guardian enforces, and a submission path for manually triggering the
// corrective swap. The monitor is never a source of truth; the guardian
// recomputes everything from chain state when a trigger lands.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"marginguard/internal/domain"
	"marginguard/internal/guardian"
)

// Operator-distinct statuses. Each demands a different response, so they are
// surfaced as distinct strings rather than one opaque failure.
const (
	StatusOK              = "ok"
	StatusBreached        = "margin breached"
	StatusMarginFine      = "margin currently fine"
	StatusNoBorrow        = "no outstanding borrow"
	StatusNotAuthorized   = "not authorized"
	StatusNetworkMismatch = "network mismatch"
	StatusReverted        = "transaction reverted"
)

// Guardian is the surface of the safety guardian the monitor uses. Declared
// here so tests can substitute a deterministic implementation.
type Guardian interface {
	ComputeMargin(ctx context.Context, acct domain.Account) (guardian.Margin, error)
	TriggerIfBreached(ctx context.Context, caller common.Address, acct domain.Account, amountIn, minOut *big.Int) (domain.RebalanceRecord, error)
	ThresholdBps() int64
}

// Config holds the monitor's deployment parameters.
type Config struct {
	Account         domain.Account
	Caller          common.Address // principal submitting corrective transactions
	ExpectedChainID int64
	RefreshInterval time.Duration
	InputDecimals   uint8 // fractional digits of the asset sold on rebalance
	OutputDecimals  uint8 // fractional digits of the asset received
	AutoTrigger     bool
	AutoAmountIn    string // human units, scaled at submission time
	AutoMinOut      string
}

// Snapshot is one refresh of the position as shown to the operator. The
// margin is computed with the guardian's own formula, so the displayed
// number is always the number that will be enforced.
type Snapshot struct {
	MarginBps    int64     `json:"margin_bps"`
	ThresholdBps int64     `json:"threshold_bps"`
	Supply       string    `json:"supply_value"`
	Borrow       string    `json:"borrow_value"`
	Breached     bool      `json:"breached"`
	Status       string    `json:"status"`
	At           time.Time `json:"at"`
}

// Monitor periodically mirrors the guardian's margin view and can submit the
// same corrective transaction a human operator would.
type Monitor struct {
	cfg      Config
	guardian Guardian
	network  domain.NetworkIdentity
	locks    domain.LockManager
	bus      domain.SignalBus
	logger   *slog.Logger
}

// New constructs a Monitor. The network identity is mandatory: submitting
// against the wrong deployment is the failure mode this component exists to
// prevent. Locks and bus may be nil.
func New(cfg Config, g Guardian, network domain.NetworkIdentity, locks domain.LockManager, bus domain.SignalBus, logger *slog.Logger) (*Monitor, error) {
	if g == nil {
		return nil, fmt.Errorf("monitor: guardian: %w", domain.ErrInvalidReference)
	}
	if network == nil {
		return nil, fmt.Errorf("monitor: network identity: %w", domain.ErrInvalidReference)
	}
	if cfg.ExpectedChainID <= 0 {
		return nil, fmt.Errorf("monitor: expected chain id %d: %w", cfg.ExpectedChainID, domain.ErrInvalidReference)
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 15 * time.Second
	}
	return &Monitor{
		cfg:      cfg,
		guardian: g,
		network:  network,
		locks:    locks,
		bus:      bus,
		logger:   logger.With(slog.String("component", "monitor")),
	}, nil
}

// Refresh re-reads live state and returns a fresh snapshot. Nothing is
// cached between refreshes; the position can change between any two reads.
func (m *Monitor) Refresh(ctx context.Context) (Snapshot, error) {
	threshold := m.guardian.ThresholdBps()
	margin, err := m.guardian.ComputeMargin(ctx, m.cfg.Account)
	if err != nil {
		return Snapshot{
			ThresholdBps: threshold,
			Status:       ClassifyError(err),
			At:           time.Now().UTC(),
		}, err
	}

	snap := Snapshot{
		MarginBps:    margin.MarginBps.Int64(),
		ThresholdBps: threshold,
		Supply:       margin.Supply.String(),
		Borrow:       margin.Borrow.String(),
		Breached:     margin.MarginBps.Cmp(big.NewInt(threshold)) <= 0,
		At:           time.Now().UTC(),
	}
	if snap.Breached {
		snap.Status = StatusBreached
	} else {
		snap.Status = StatusOK
	}
	return snap, nil
}

// VerifyNetwork confirms the connected endpoint serves the configured
// deployment. Called before every submission, not once at startup, because
// the endpoint behind a load balancer can change.
func (m *Monitor) VerifyNetwork(ctx context.Context) error {
	id, err := m.network.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("monitor: read chain id: %w", err)
	}
	if id.Cmp(big.NewInt(m.cfg.ExpectedChainID)) != 0 {
		return fmt.Errorf("monitor: connected to chain %s, expected %d: %w",
			id.String(), m.cfg.ExpectedChainID, domain.ErrChainMismatch)
	}
	return nil
}

// SubmitTrigger validates and submits a corrective transaction with
// human-readable amounts. Validation happens in the order an operator would
// want to hear about problems: network identity, target address, then
// amount scaling. The two assets use different fractional granularities
// and each amount is scaled with its own asset's decimals.
func (m *Monitor) SubmitTrigger(ctx context.Context, amountIn, minOut string) (domain.RebalanceRecord, error) {
	if err := m.VerifyNetwork(ctx); err != nil {
		return domain.RebalanceRecord{}, err
	}
	if m.cfg.Account.Owner == (common.Address{}) {
		return domain.RebalanceRecord{}, fmt.Errorf("monitor: account owner: %w", domain.ErrInvalidReference)
	}

	in, err := domain.ParseUnits(amountIn, m.cfg.InputDecimals)
	if err != nil {
		return domain.RebalanceRecord{}, fmt.Errorf("monitor: amountIn: %w", err)
	}
	out, err := domain.ParseUnits(minOut, m.cfg.OutputDecimals)
	if err != nil {
		return domain.RebalanceRecord{}, fmt.Errorf("monitor: minOut: %w", err)
	}

	// Serialize submissions for this account across monitor replicas. The
	// guardian re-checks the policy regardless; the lock only avoids
	// burning gas on a race that is already lost.
	if m.locks != nil {
		unlock, err := m.locks.Acquire(ctx, "trigger:"+m.cfg.Account.String(), 30*time.Second)
		if err != nil {
			return domain.RebalanceRecord{}, fmt.Errorf("monitor: trigger lock: %w", err)
		}
		defer unlock()
	}

	return m.guardian.TriggerIfBreached(ctx, m.cfg.Caller, m.cfg.Account, in, out)
}

// Run drives the refresh loop until the context is cancelled. Every
// snapshot is published on the signal bus; when auto-trigger is enabled a
// breached snapshot also submits the configured corrective transaction.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("monitor started",
		slog.String("account", m.cfg.Account.String()),
		slog.Duration("refresh", m.cfg.RefreshInterval),
		slog.Bool("auto_trigger", m.cfg.AutoTrigger),
	)
	defer m.logger.Info("monitor stopped")

	ticker := time.NewTicker(m.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *Monitor) tick(ctx context.Context) {
	snap, err := m.Refresh(ctx)
	if err != nil {
		m.logger.WarnContext(ctx, "refresh failed",
			slog.String("status", snap.Status),
			slog.String("error", err.Error()),
		)
		return
	}

	m.publish(ctx, snap)

	m.logger.DebugContext(ctx, "margin refreshed",
		slog.Int64("margin_bps", snap.MarginBps),
		slog.Int64("threshold_bps", snap.ThresholdBps),
		slog.Bool("breached", snap.Breached),
	)

	if snap.Breached && m.cfg.AutoTrigger {
		rec, err := m.SubmitTrigger(ctx, m.cfg.AutoAmountIn, m.cfg.AutoMinOut)
		if err != nil {
			// A concurrent trigger winning the race surfaces here as
			// "margin currently fine"; that is a clean outcome.
			m.logger.InfoContext(ctx, "auto trigger not executed",
				slog.String("status", ClassifyError(err)),
				slog.String("error", err.Error()),
			)
			return
		}
		m.logger.InfoContext(ctx, "auto trigger executed",
			slog.String("record_id", rec.ID),
			slog.Int64("margin_bps", rec.MarginBps),
			slog.String("amount_received", rec.AmountReceived.String()),
		)
	}
}

func (m *Monitor) publish(ctx context.Context, snap Snapshot) {
	if m.bus == nil {
		return
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return
	}
	if err := m.bus.Publish(ctx, domain.ChannelMargin, payload); err != nil {
		m.logger.DebugContext(ctx, "snapshot publish failed", slog.String("error", err.Error()))
	}
}

// ClassifyError maps a failure to the operator-facing status string. The
// distinctions matter: a network mismatch means reconfigure, not-owner
// means use the right principal, margin-fine means do nothing.
func ClassifyError(err error) string {
	switch {
	case err == nil:
		return StatusOK
	case domain.IsPolicyNotBreached(err):
		return StatusMarginFine
	}
	switch {
	case errors.Is(err, domain.ErrChainMismatch):
		return StatusNetworkMismatch
	case errors.Is(err, domain.ErrNotOwner):
		return StatusNotAuthorized
	case errors.Is(err, domain.ErrNoBorrowValue):
		return StatusNoBorrow
	default:
		return StatusReverted
	}
}
