// Package venue implements the chain-facing side of the rebalancer: ERC-20
// custody operations and the single-hop exact-input swap against the
// liquidity venue's router contract.
package venue

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"marginguard/internal/crypto"
)

// Backend is the subset of the eth client this package needs. It is
// satisfied by *ethclient.Client.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

const (
	// txGasLimit is generous for an approve or single-hop swap.
	txGasLimit = 400_000

	receiptPollInterval = 500 * time.Millisecond
)

// submit signs and sends a contract call, then waits for it to be mined.
// A reverted receipt is an error: the caller treats the whole operation as
// failed and compensates.
func submit(ctx context.Context, b Backend, s *crypto.TxSigner, to common.Address, data []byte) (*types.Receipt, error) {
	nonce, err := b.PendingNonceAt(ctx, s.Address())
	if err != nil {
		return nil, fmt.Errorf("venue: nonce for %s: %w", s.Address().Hex(), err)
	}
	gasPrice, err := b.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("venue: gas price: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Gas:      txGasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := s.Sign(tx)
	if err != nil {
		return nil, fmt.Errorf("venue: sign tx to %s: %w", to.Hex(), err)
	}
	if err := b.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("venue: send tx to %s: %w", to.Hex(), err)
	}

	receipt, err := waitMined(ctx, b, signed.Hash())
	if err != nil {
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("venue: tx %s reverted", signed.Hash().Hex())
	}
	return receipt, nil
}

// waitMined polls for the transaction receipt until the context expires.
func waitMined(ctx context.Context, b Backend, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := b.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("venue: waiting for tx %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}
