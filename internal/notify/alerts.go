package notify

import (
	"context"
	"fmt"
	"math/big"

	"marginguard/internal/domain"
)

// BreachAlert notifies operators that a position's margin dropped to or
// below the policy threshold.
func (n *Notifier) BreachAlert(ctx context.Context, acct domain.Account, marginBps *big.Int, thresholdBps int64) error {
	title := "Margin breach"
	msg := fmt.Sprintf(
		"Account %s is at %s bps, threshold %d bps. A corrective rebalance can now be triggered.",
		acct.String(), marginBps.String(), thresholdBps,
	)
	return n.Notify(ctx, domain.EventBreachDetected, title, msg)
}

// RebalanceAlert notifies operators that a corrective swap executed.
func (n *Notifier) RebalanceAlert(ctx context.Context, rec domain.RebalanceRecord) error {
	title := "Rebalance executed"
	msg := fmt.Sprintf(
		"Account %s/%s rebalanced at %d bps (threshold %d bps): in %s, received %s (floor %s). Triggered by %s.",
		rec.AccountOwner, rec.AccountNumber,
		rec.MarginBps, rec.ThresholdBps,
		rec.AmountIn, rec.AmountReceived, rec.MinOut,
		rec.Caller,
	)
	return n.Notify(ctx, domain.EventPositionAdjusted, title, msg)
}

// ThresholdAlert notifies operators that the safety policy changed.
func (n *Notifier) ThresholdAlert(ctx context.Context, oldBps, newBps int64) error {
	title := "Threshold updated"
	msg := fmt.Sprintf("Rebalance threshold changed from %d bps to %d bps.", oldBps, newBps)
	return n.Notify(ctx, domain.EventThresholdUpdated, title, msg)
}

// ErrorAlert notifies operators about a failure that needs attention, such
// as a reverted corrective transaction.
func (n *Notifier) ErrorAlert(ctx context.Context, scope string, err error) error {
	title := "Guardian error"
	msg := fmt.Sprintf("%s: %v", scope, err)
	return n.Notify(ctx, "error", title, msg)
}
