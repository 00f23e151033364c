package venue

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"marginguard/internal/crypto"
	"marginguard/internal/domain"
)

// routerABI is the exactInputSingle entry of a Uniswap-V3-compatible swap
// router.
const routerABI = `[{
	"name": "exactInputSingle",
	"type": "function",
	"stateMutability": "payable",
	"inputs": [{
		"name": "params",
		"type": "tuple",
		"components": [
			{"name": "tokenIn", "type": "address"},
			{"name": "tokenOut", "type": "address"},
			{"name": "fee", "type": "uint24"},
			{"name": "recipient", "type": "address"},
			{"name": "deadline", "type": "uint256"},
			{"name": "amountIn", "type": "uint256"},
			{"name": "amountOutMinimum", "type": "uint256"},
			{"name": "sqrtPriceLimitX96", "type": "uint160"}
		]
	}],
	"outputs": [{"name": "amountOut", "type": "uint256"}]
}]`

// swapDeadline bounds how long a submitted swap stays valid in the mempool.
const swapDeadline = 5 * time.Minute

// routerParams mirrors the router's ExactInputSingleParams tuple for ABI
// encoding.
type routerParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	Fee               *big.Int
	Recipient         common.Address
	Deadline          *big.Int
	AmountIn          *big.Int
	AmountOutMinimum  *big.Int
	SqrtPriceLimitX96 *big.Int
}

// UniswapVenue implements domain.SwapVenue against a V3-style router. The
// router enforces amountOutMinimum on-chain, so a shortfall reverts the
// whole transaction and nothing is delivered.
type UniswapVenue struct {
	backend Backend
	signer  *crypto.TxSigner
	router  common.Address
	out     domain.AssetToken // output asset, for measuring delivery
	abi     abi.ABI
}

// NewUniswapVenue binds the venue to the router contract.
func NewUniswapVenue(backend Backend, signer *crypto.TxSigner, router common.Address, out domain.AssetToken) (*UniswapVenue, error) {
	if backend == nil || signer == nil || out == nil {
		return nil, fmt.Errorf("venue: router bindings: %w", domain.ErrInvalidReference)
	}
	if router == (common.Address{}) {
		return nil, fmt.Errorf("venue: router address: %w", domain.ErrInvalidReference)
	}
	parsed, err := abi.JSON(strings.NewReader(routerABI))
	if err != nil {
		return nil, fmt.Errorf("venue: parse router ABI: %w", err)
	}
	return &UniswapVenue{backend: backend, signer: signer, router: router, out: out, abi: parsed}, nil
}

// Address returns the router contract address.
func (v *UniswapVenue) Address() common.Address { return v.router }

// ExactInputSingle submits the swap and reports the amount actually
// delivered to the recipient, measured as the recipient's output-asset
// balance delta across the transaction. Return data of a state-changing
// call is not available off-chain, so the delta is the ground truth for the
// audit record.
func (v *UniswapVenue) ExactInputSingle(ctx context.Context, p domain.SwapParams) (*big.Int, error) {
	before, err := v.out.BalanceOf(ctx, p.Recipient)
	if err != nil {
		return nil, fmt.Errorf("venue: pre-swap balance of %s: %w", p.Recipient.Hex(), err)
	}

	deadline := big.NewInt(time.Now().Add(swapDeadline).Unix())
	data, err := v.abi.Pack("exactInputSingle", routerParams{
		TokenIn:           p.TokenIn,
		TokenOut:          p.TokenOut,
		Fee:               big.NewInt(int64(p.Fee)),
		Recipient:         p.Recipient,
		Deadline:          deadline,
		AmountIn:          p.AmountIn,
		AmountOutMinimum:  p.AmountOutMinimum,
		SqrtPriceLimitX96: big.NewInt(0),
	})
	if err != nil {
		return nil, fmt.Errorf("venue: pack exactInputSingle: %w", err)
	}

	if _, err := submit(ctx, v.backend, v.signer, v.router, data); err != nil {
		return nil, fmt.Errorf("venue: exactInputSingle: %w", err)
	}

	after, err := v.out.BalanceOf(ctx, p.Recipient)
	if err != nil {
		return nil, fmt.Errorf("venue: post-swap balance of %s: %w", p.Recipient.Hex(), err)
	}
	received := new(big.Int).Sub(after, before)
	if received.Cmp(p.AmountOutMinimum) < 0 {
		// The router should have reverted; treat a silent shortfall as a
		// hard failure rather than report a bad number.
		return nil, fmt.Errorf("venue: delivered %s below minimum %s", received, p.AmountOutMinimum)
	}
	return received, nil
}

var _ domain.SwapVenue = (*UniswapVenue)(nil)
