package monitor

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marginguard/internal/domain"
	"marginguard/internal/guardian"
)

var (
	acctOwner  = common.HexToAddress("0x3333333333333333333333333333333333333333")
	callerAddr = common.HexToAddress("0x4444444444444444444444444444444444444444")
)

type fakeGuardian struct {
	supply    *big.Int
	borrow    *big.Int
	threshold int64
	marginErr error

	triggerErr  error
	triggered   int
	gotAmountIn *big.Int
	gotMinOut   *big.Int
}

func (f *fakeGuardian) ComputeMargin(ctx context.Context, acct domain.Account) (guardian.Margin, error) {
	if f.marginErr != nil {
		return guardian.Margin{}, f.marginErr
	}
	bps, err := domain.MarginBps(domain.PositionValues{Supply: f.supply, Borrow: f.borrow})
	if err != nil {
		return guardian.Margin{}, err
	}
	return guardian.Margin{MarginBps: bps, Supply: f.supply, Borrow: f.borrow}, nil
}

func (f *fakeGuardian) TriggerIfBreached(ctx context.Context, caller common.Address, acct domain.Account, amountIn, minOut *big.Int) (domain.RebalanceRecord, error) {
	f.triggered++
	f.gotAmountIn = amountIn
	f.gotMinOut = minOut
	if f.triggerErr != nil {
		return domain.RebalanceRecord{}, f.triggerErr
	}
	return domain.RebalanceRecord{ID: "rec-1", AmountReceived: big.NewInt(1)}, nil
}

func (f *fakeGuardian) ThresholdBps() int64 { return f.threshold }

type fakeNetwork struct {
	id  *big.Int
	err error
}

func (f *fakeNetwork) ChainID(ctx context.Context) (*big.Int, error) {
	return f.id, f.err
}

func newMonitor(t *testing.T, g *fakeGuardian, chainID int64) *Monitor {
	t.Helper()
	m, err := New(Config{
		Account:         domain.Account{Owner: acctOwner, Number: big.NewInt(0)},
		Caller:          callerAddr,
		ExpectedChainID: 137,
		RefreshInterval: time.Second,
		InputDecimals:   6,  // USDC-style
		OutputDecimals:  18, // WETH-style
	}, g, &fakeNetwork{id: big.NewInt(chainID)}, nil, nil, slog.Default())
	require.NoError(t, err)
	return m
}

func TestRefreshMatchesGuardianFormula(t *testing.T) {
	g := &fakeGuardian{supply: big.NewInt(10500), borrow: big.NewInt(10000), threshold: 1000}
	m := newMonitor(t, g, 137)

	snap, err := m.Refresh(context.Background())
	require.NoError(t, err)

	// The displayed margin must be exactly what domain.MarginBps produces,
	// floor division included.
	want, err := domain.MarginBps(domain.PositionValues{Supply: g.supply, Borrow: g.borrow})
	require.NoError(t, err)
	assert.Equal(t, want.Int64(), snap.MarginBps)
	assert.True(t, snap.Breached)
	assert.Equal(t, StatusBreached, snap.Status)
}

func TestRefreshHealthy(t *testing.T) {
	g := &fakeGuardian{supply: big.NewInt(15000), borrow: big.NewInt(10000), threshold: 1000}
	m := newMonitor(t, g, 137)

	snap, err := m.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(5000), snap.MarginBps)
	assert.False(t, snap.Breached)
	assert.Equal(t, StatusOK, snap.Status)
}

func TestRefreshZeroBorrow(t *testing.T) {
	g := &fakeGuardian{supply: big.NewInt(15000), borrow: big.NewInt(0), threshold: 1000}
	m := newMonitor(t, g, 137)

	snap, err := m.Refresh(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNoBorrowValue)
	assert.Equal(t, StatusNoBorrow, snap.Status)
}

func TestSubmitTriggerScalesPerAssetDecimals(t *testing.T) {
	g := &fakeGuardian{supply: big.NewInt(10500), borrow: big.NewInt(10000), threshold: 1000}
	m := newMonitor(t, g, 137)

	_, err := m.SubmitTrigger(context.Background(), "1000.5", "0.25")
	require.NoError(t, err)
	require.Equal(t, 1, g.triggered)

	// amountIn at 6 decimals, minOut at 18: the boundary where a scaling
	// bug would be most expensive.
	assert.Equal(t, "1000500000", g.gotAmountIn.String())
	assert.Equal(t, "250000000000000000", g.gotMinOut.String())
}

func TestSubmitTriggerNetworkMismatch(t *testing.T) {
	g := &fakeGuardian{supply: big.NewInt(10500), borrow: big.NewInt(10000), threshold: 1000}
	m := newMonitor(t, g, 1) // mainnet instead of the expected 137

	_, err := m.SubmitTrigger(context.Background(), "1", "0.1")
	assert.ErrorIs(t, err, domain.ErrChainMismatch)
	assert.Zero(t, g.triggered, "nothing may be submitted against the wrong chain")
}

func TestSubmitTriggerMalformedAmounts(t *testing.T) {
	g := &fakeGuardian{supply: big.NewInt(10500), borrow: big.NewInt(10000), threshold: 1000}
	m := newMonitor(t, g, 137)

	for _, tc := range [][2]string{
		{"", "0.1"},
		{"1.1234567", "0.1"}, // 7 fractional digits on a 6-decimal asset
		{"abc", "0.1"},
		{"1", "oops"},
	} {
		_, err := m.SubmitTrigger(context.Background(), tc[0], tc[1])
		assert.Error(t, err, "amountIn=%q minOut=%q", tc[0], tc[1])
	}
	assert.Zero(t, g.triggered)
}

func TestClassifyError(t *testing.T) {
	wrap := func(err error) error { return errors.Join(errors.New("ctx"), err) }

	assert.Equal(t, StatusOK, ClassifyError(nil))
	assert.Equal(t, StatusMarginFine, ClassifyError(&domain.PolicyNotBreachedError{
		MarginBps: big.NewInt(5000), ThresholdBps: 1000,
	}))
	assert.Equal(t, StatusNetworkMismatch, ClassifyError(wrap(domain.ErrChainMismatch)))
	assert.Equal(t, StatusNotAuthorized, ClassifyError(wrap(domain.ErrNotOwner)))
	assert.Equal(t, StatusNoBorrow, ClassifyError(wrap(domain.ErrNoBorrowValue)))
	assert.Equal(t, StatusReverted, ClassifyError(errors.New("execution reverted")))
}

func TestNewValidatesBindings(t *testing.T) {
	g := &fakeGuardian{}
	net := &fakeNetwork{id: big.NewInt(137)}

	_, err := New(Config{ExpectedChainID: 137}, nil, net, nil, nil, slog.Default())
	assert.ErrorIs(t, err, domain.ErrInvalidReference)

	_, err = New(Config{ExpectedChainID: 137}, g, nil, nil, nil, slog.Default())
	assert.ErrorIs(t, err, domain.ErrInvalidReference)

	_, err = New(Config{}, g, net, nil, nil, slog.Default())
	assert.ErrorIs(t, err, domain.ErrInvalidReference)
}
