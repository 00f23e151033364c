// Package swap implements the rebalancing actuator: it pulls a fixed input
// amount from a caller-authorized balance, converts it through a single
// liquidity venue with a hard minimum-output floor, and delivers the
// proceeds directly to the position owner. The whole call behaves as one
// atomic unit; a compensating transfer returns the input if any step after
// the pull fails.
package swap

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"marginguard/internal/domain"
)

// Executor converts the position's input asset into the output asset through
// a single venue. It is stateless between calls and never retains proceeds.
type Executor struct {
	input   domain.AssetToken
	output  domain.AssetToken
	venue   domain.SwapVenue
	custody common.Address // executor's own holding address during a swap
	feeTier uint32

	audit  domain.AuditStore
	bus    domain.SignalBus
	logger *slog.Logger
}

// Config carries the executor's deployment-time constants.
type Config struct {
	Custody common.Address
	FeeTier uint32
}

// New constructs an Executor. Input and output assets and the venue are
// mandatory bindings; the audit store and signal bus may be nil.
func New(
	cfg Config,
	input, output domain.AssetToken,
	venue domain.SwapVenue,
	audit domain.AuditStore,
	bus domain.SignalBus,
	logger *slog.Logger,
) (*Executor, error) {
	if input == nil || output == nil {
		return nil, fmt.Errorf("swap: asset binding: %w", domain.ErrInvalidReference)
	}
	if venue == nil {
		return nil, fmt.Errorf("swap: venue binding: %w", domain.ErrInvalidReference)
	}
	if cfg.Custody == (common.Address{}) {
		return nil, fmt.Errorf("swap: custody address: %w", domain.ErrInvalidReference)
	}
	return &Executor{
		input:   input,
		output:  output,
		venue:   venue,
		custody: cfg.Custody,
		feeTier: cfg.FeeTier,
		audit:   audit,
		bus:     bus,
		logger:  logger.With(slog.String("component", "swap_executor")),
	}, nil
}

// Execute pulls amountIn of the input asset from the account owner's
// pre-authorized balance, swaps it through the venue with minOut as a hard
// floor, and delivers the output directly to the owner. On any failure after
// the pull the input is returned to the owner, so no partial consumption is
// observable.
func (e *Executor) Execute(ctx context.Context, acct domain.Account, amountIn, minOut *big.Int) (*big.Int, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, fmt.Errorf("swap: amountIn: %w", domain.ErrZeroAmount)
	}
	if minOut == nil {
		minOut = big.NewInt(0)
	}

	// Pull the input into executor custody.
	if err := e.input.TransferFrom(ctx, acct.Owner, e.custody, amountIn); err != nil {
		return nil, fmt.Errorf("swap: pull %s %s from %s: %w",
			amountIn.String(), e.input.Symbol(), acct.Owner.Hex(), err)
	}

	received, err := e.swapAndDeliver(ctx, acct, amountIn, minOut)
	if err != nil {
		e.unwind(ctx, acct.Owner, amountIn)
		return nil, err
	}

	e.emitTrade(ctx, acct, amountIn, minOut, received)
	return received, nil
}

// swapAndDeliver runs the approve + exact-input steps after the input has
// been pulled. Splitting it out keeps the compensation path in Execute
// covering every later failure.
func (e *Executor) swapAndDeliver(ctx context.Context, acct domain.Account, amountIn, minOut *big.Int) (*big.Int, error) {
	if err := e.input.Approve(ctx, e.venue.Address(), amountIn); err != nil {
		return nil, fmt.Errorf("swap: approve venue %s: %w", e.venue.Address().Hex(), err)
	}

	received, err := e.venue.ExactInputSingle(ctx, domain.SwapParams{
		TokenIn:          e.input.Address(),
		TokenOut:         e.output.Address(),
		Fee:              e.feeTier,
		Recipient:        acct.Owner, // proceeds never touch the executor
		AmountIn:         amountIn,
		AmountOutMinimum: minOut,
	})
	if err != nil {
		return nil, fmt.Errorf("swap: venue conversion: %w", err)
	}
	return received, nil
}

// unwind is the compensating action: return the pulled input to the owner.
// Failure here is logged loudly, not swallowed into the original error,
// because it means funds are stranded in custody and need operator action.
func (e *Executor) unwind(ctx context.Context, owner common.Address, amountIn *big.Int) {
	if err := e.input.Transfer(ctx, owner, amountIn); err != nil {
		e.logger.ErrorContext(ctx, "compensating transfer failed, input stranded in custody",
			slog.String("owner", owner.Hex()),
			slog.String("amount", amountIn.String()),
			slog.String("asset", e.input.Symbol()),
			slog.String("error", err.Error()),
		)
	}
}

// emitTrade records the executed conversion. Requested vs received is the
// only place slippage is observable.
func (e *Executor) emitTrade(ctx context.Context, acct domain.Account, amountIn, minOut, received *big.Int) {
	rec := domain.TradeRecord{
		ID:            uuid.New().String(),
		AccountOwner:  acct.Owner.Hex(),
		AccountNumber: acct.Number.String(),
		AmountIn:      amountIn,
		MinOut:        minOut,
		Received:      received,
		TokenIn:       e.input.Symbol(),
		TokenOut:      e.output.Symbol(),
		FeeTier:       e.feeTier,
		CreatedAt:     time.Now().UTC(),
	}
	detail := map[string]any{
		"trade_id": rec.ID,
		"amount_in": amountIn.String(),
		"min_out":   minOut.String(),
		"received":  received.String(),
		"token_in":  rec.TokenIn,
		"token_out": rec.TokenOut,
		"fee_tier":  e.feeTier,
	}
	if e.audit != nil {
		if err := e.audit.Log(ctx, domain.EventTradeExecuted, acct, detail); err != nil {
			e.logger.WarnContext(ctx, "trade audit write failed", slog.String("error", err.Error()))
		}
	}
	if e.bus != nil {
		if payload, err := json.Marshal(detail); err == nil {
			_ = e.bus.Publish(ctx, domain.ChannelEvents, payload)
		}
	}
	e.logger.InfoContext(ctx, "trade executed",
		slog.String("account", acct.String()),
		slog.String("amount_in", amountIn.String()),
		slog.String("min_out", minOut.String()),
		slog.String("received", received.String()),
	)
}
