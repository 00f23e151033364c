package swap

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marginguard/internal/domain"
)

var (
	ownerAddr   = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	custodyAddr = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	venueAddr   = common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc")
	tokenInAddr  = common.HexToAddress("0xdddddddddddddddddddddddddddddddddddddddd")
	tokenOutAddr = common.HexToAddress("0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee")
)

// memToken is an in-memory asset ledger tracking balances and the transfers
// made against it.
type memToken struct {
	addr      common.Address
	symbol    string
	decimals  uint8
	balances  map[common.Address]*big.Int
	approvals map[common.Address]*big.Int
	transfers int
}

func newMemToken(addr common.Address, symbol string, decimals uint8) *memToken {
	return &memToken{
		addr:      addr,
		symbol:    symbol,
		decimals:  decimals,
		balances:  map[common.Address]*big.Int{},
		approvals: map[common.Address]*big.Int{},
	}
}

func (m *memToken) Address() common.Address { return m.addr }
func (m *memToken) Symbol() string          { return m.symbol }
func (m *memToken) Decimals() uint8         { return m.decimals }

func (m *memToken) bal(a common.Address) *big.Int {
	if b, ok := m.balances[a]; ok {
		return b
	}
	return big.NewInt(0)
}

func (m *memToken) BalanceOf(ctx context.Context, holder common.Address) (*big.Int, error) {
	return new(big.Int).Set(m.bal(holder)), nil
}

func (m *memToken) mint(a common.Address, amount int64) {
	m.balances[a] = new(big.Int).Add(m.bal(a), big.NewInt(amount))
}

func (m *memToken) move(from, to common.Address, amount *big.Int) error {
	if m.bal(from).Cmp(amount) < 0 {
		return fmt.Errorf("%s: insufficient balance", m.symbol)
	}
	m.balances[from] = new(big.Int).Sub(m.bal(from), amount)
	m.balances[to] = new(big.Int).Add(m.bal(to), amount)
	m.transfers++
	return nil
}

func (m *memToken) Transfer(ctx context.Context, to common.Address, amount *big.Int) error {
	return m.move(custodyAddr, to, amount)
}

func (m *memToken) TransferFrom(ctx context.Context, from, to common.Address, amount *big.Int) error {
	return m.move(from, to, amount)
}

func (m *memToken) Approve(ctx context.Context, spender common.Address, amount *big.Int) error {
	m.approvals[spender] = new(big.Int).Set(amount)
	return nil
}

// memVenue simulates the liquidity venue: it consumes the input from
// executor custody and credits the output directly to the recipient, or
// fails without moving anything when the quote cannot meet the floor.
type memVenue struct {
	in, out *memToken
	quote   *big.Int // output delivered for any input
	calls   int
	last    domain.SwapParams
}

func (v *memVenue) Address() common.Address { return venueAddr }

func (v *memVenue) ExactInputSingle(ctx context.Context, p domain.SwapParams) (*big.Int, error) {
	v.calls++
	v.last = p
	if v.quote.Cmp(p.AmountOutMinimum) < 0 {
		return nil, fmt.Errorf("venue: output %s below minimum %s", v.quote, p.AmountOutMinimum)
	}
	if err := v.in.move(custodyAddr, venueAddr, p.AmountIn); err != nil {
		return nil, err
	}
	v.out.mint(p.Recipient, v.quote.Int64())
	return new(big.Int).Set(v.quote), nil
}

type recordingAudit struct {
	domain.AuditStore
	events []string
}

func (r *recordingAudit) Log(ctx context.Context, event string, acct domain.Account, detail map[string]any) error {
	r.events = append(r.events, event)
	return nil
}

func setup(t *testing.T, quote int64) (*Executor, *memToken, *memToken, *memVenue, *recordingAudit) {
	t.Helper()
	in := newMemToken(tokenInAddr, "USDC", 6)
	out := newMemToken(tokenOutAddr, "WETH", 18)
	in.mint(ownerAddr, 1_000_000)
	venue := &memVenue{in: in, out: out, quote: big.NewInt(quote)}
	audit := &recordingAudit{}

	exec, err := New(Config{Custody: custodyAddr, FeeTier: 3000}, in, out, venue, audit, nil, slog.Default())
	require.NoError(t, err)
	return exec, in, out, venue, audit
}

func acct() domain.Account {
	return domain.Account{Owner: ownerAddr, Number: big.NewInt(0)}
}

func TestNewRejectsMissingBindings(t *testing.T) {
	in := newMemToken(tokenInAddr, "USDC", 6)
	out := newMemToken(tokenOutAddr, "WETH", 18)
	venue := &memVenue{in: in, out: out, quote: big.NewInt(1)}

	_, err := New(Config{Custody: custodyAddr}, nil, out, venue, nil, nil, slog.Default())
	assert.ErrorIs(t, err, domain.ErrInvalidReference)
	_, err = New(Config{Custody: custodyAddr}, in, out, nil, nil, nil, slog.Default())
	assert.ErrorIs(t, err, domain.ErrInvalidReference)
	_, err = New(Config{}, in, out, venue, nil, nil, slog.Default())
	assert.ErrorIs(t, err, domain.ErrInvalidReference)
}

func TestExecuteZeroAmount(t *testing.T) {
	exec, in, _, venue, _ := setup(t, 100)

	for _, amt := range []*big.Int{nil, big.NewInt(0), big.NewInt(-5)} {
		_, err := exec.Execute(context.Background(), acct(), amt, big.NewInt(1))
		assert.ErrorIs(t, err, domain.ErrZeroAmount)
	}
	assert.Zero(t, in.transfers, "no transfer may happen before validation")
	assert.Zero(t, venue.calls)
}

func TestExecuteDeliversToOwner(t *testing.T) {
	exec, in, out, venue, audit := setup(t, 950)

	received, err := exec.Execute(context.Background(), acct(), big.NewInt(1000), big.NewInt(900))
	require.NoError(t, err)
	assert.Equal(t, int64(950), received.Int64())

	// Input consumed, output delivered directly to the owner, nothing
	// retained in custody.
	assert.Equal(t, int64(999_000), in.bal(ownerAddr).Int64())
	assert.Equal(t, int64(0), in.bal(custodyAddr).Int64())
	assert.Equal(t, int64(950), out.bal(ownerAddr).Int64())
	assert.Equal(t, int64(0), out.bal(custodyAddr).Int64())

	// Venue saw the exact request.
	assert.Equal(t, uint32(3000), venue.last.Fee)
	assert.Equal(t, ownerAddr, venue.last.Recipient)
	assert.Equal(t, "1000", venue.last.AmountIn.String())
	assert.Equal(t, "900", venue.last.AmountOutMinimum.String())

	// Venue allowance matches the pulled amount.
	assert.Equal(t, "1000", in.approvals[venueAddr].String())

	assert.Contains(t, audit.events, domain.EventTradeExecuted)
}

func TestExecuteShortfallRestoresBalance(t *testing.T) {
	// Venue can only produce 800 against a floor of 900.
	exec, in, out, venue, audit := setup(t, 800)

	_, err := exec.Execute(context.Background(), acct(), big.NewInt(1000), big.NewInt(900))
	require.Error(t, err)
	assert.Equal(t, 1, venue.calls)

	// The caller's input balance is exactly what it was before the call and
	// no output appeared anywhere.
	assert.Equal(t, int64(1_000_000), in.bal(ownerAddr).Int64())
	assert.Equal(t, int64(0), in.bal(custodyAddr).Int64())
	assert.Equal(t, int64(0), out.bal(ownerAddr).Int64())
	assert.Empty(t, audit.events)
}

func TestExecutePullFailure(t *testing.T) {
	exec, in, _, venue, _ := setup(t, 950)

	// More than the owner holds: the pull itself fails, nothing to unwind.
	_, err := exec.Execute(context.Background(), acct(), big.NewInt(2_000_000), big.NewInt(1))
	require.Error(t, err)
	assert.Zero(t, venue.calls)
	assert.Equal(t, int64(1_000_000), in.bal(ownerAddr).Int64())
}

func TestExecuteNilMinOutMeansNoFloor(t *testing.T) {
	exec, _, _, venue, _ := setup(t, 1)

	received, err := exec.Execute(context.Background(), acct(), big.NewInt(1000), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), received.Int64())
	assert.Equal(t, "0", venue.last.AmountOutMinimum.String())
}
