package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marginguard/internal/domain"
	"marginguard/internal/monitor"
)

var (
	ownerAddr    = common.HexToAddress("0x1111111111111111111111111111111111111111")
	strangerAddr = common.HexToAddress("0x9999999999999999999999999999999999999999")
)

func discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

type fakePolicy struct {
	owner        common.Address
	thresholdBps int64
	lastCaller   common.Address
}

func (f *fakePolicy) Owner() common.Address { return f.owner }
func (f *fakePolicy) ThresholdBps() int64   { return f.thresholdBps }

func (f *fakePolicy) SetThreshold(_ context.Context, caller common.Address, bps int64) error {
	f.lastCaller = caller
	if caller != f.owner {
		return domain.ErrNotOwner
	}
	if !domain.ValidThresholdBps(bps) {
		return domain.ErrInvalidThreshold
	}
	f.thresholdBps = bps
	return nil
}

func (f *fakePolicy) TransferOwnership(_ context.Context, caller, newOwner common.Address) error {
	if caller != f.owner {
		return domain.ErrNotOwner
	}
	if newOwner == (common.Address{}) {
		return domain.ErrInvalidReference
	}
	f.owner = newOwner
	return nil
}

func TestGetPolicy(t *testing.T) {
	h := NewPolicyHandler(&fakePolicy{owner: ownerAddr, thresholdBps: 1500}, ownerAddr, discard())

	rec := httptest.NewRecorder()
	h.GetPolicy(rec, httptest.NewRequest(http.MethodGet, "/api/policy", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, ownerAddr.Hex(), body["owner"])
	assert.Equal(t, float64(1500), body["threshold_bps"])
}

func TestUpdateThresholdByOwnerOperator(t *testing.T) {
	p := &fakePolicy{owner: ownerAddr, thresholdBps: 1500}
	h := NewPolicyHandler(p, ownerAddr, discard())

	rec := httptest.NewRecorder()
	h.UpdateThreshold(rec, httptest.NewRequest(http.MethodPut, "/api/policy/threshold",
		strings.NewReader(`{"threshold_bps":2500}`)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(2500), p.thresholdBps)
	assert.Equal(t, ownerAddr, p.lastCaller)
}

func TestUpdateThresholdByNonOwnerOperatorIsForbidden(t *testing.T) {
	p := &fakePolicy{owner: ownerAddr, thresholdBps: 1500}
	h := NewPolicyHandler(p, strangerAddr, discard())

	rec := httptest.NewRecorder()
	h.UpdateThreshold(rec, httptest.NewRequest(http.MethodPut, "/api/policy/threshold",
		strings.NewReader(`{"threshold_bps":2500}`)))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	// Policy unchanged.
	assert.Equal(t, int64(1500), p.thresholdBps)
}

func TestUpdateThresholdWithoutOperatorIsForbidden(t *testing.T) {
	p := &fakePolicy{owner: ownerAddr, thresholdBps: 1500}
	h := NewPolicyHandler(p, common.Address{}, discard())

	rec := httptest.NewRecorder()
	h.UpdateThreshold(rec, httptest.NewRequest(http.MethodPut, "/api/policy/threshold",
		strings.NewReader(`{"threshold_bps":2500}`)))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, common.Address{}, p.lastCaller, "service must not be called")
	assert.Equal(t, int64(1500), p.thresholdBps)
}

func TestUpdateThresholdIgnoresCallerInBody(t *testing.T) {
	// A request body claiming to be the owner must not override the
	// configured operator identity.
	p := &fakePolicy{owner: ownerAddr, thresholdBps: 1500}
	h := NewPolicyHandler(p, strangerAddr, discard())

	body := `{"caller":"` + ownerAddr.Hex() + `","threshold_bps":2500}`
	rec := httptest.NewRecorder()
	h.UpdateThreshold(rec, httptest.NewRequest(http.MethodPut, "/api/policy/threshold", strings.NewReader(body)))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, strangerAddr, p.lastCaller)
	assert.Equal(t, int64(1500), p.thresholdBps)
}

func TestUpdateThresholdOutOfRange(t *testing.T) {
	p := &fakePolicy{owner: ownerAddr, thresholdBps: 1500}
	h := NewPolicyHandler(p, ownerAddr, discard())

	rec := httptest.NewRecorder()
	h.UpdateThreshold(rec, httptest.NewRequest(http.MethodPut, "/api/policy/threshold",
		strings.NewReader(`{"threshold_bps":10001}`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, int64(1500), p.thresholdBps)
}

func TestTransferOwnership(t *testing.T) {
	p := &fakePolicy{owner: ownerAddr}
	h := NewPolicyHandler(p, ownerAddr, discard())

	body := `{"new_owner":"` + strangerAddr.Hex() + `"}`
	rec := httptest.NewRecorder()
	h.TransferOwnership(rec, httptest.NewRequest(http.MethodPost, "/api/policy/transfer", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, strangerAddr, p.owner)
}

func TestTransferOwnershipByNonOwnerOperatorIsForbidden(t *testing.T) {
	p := &fakePolicy{owner: ownerAddr}
	h := NewPolicyHandler(p, strangerAddr, discard())

	body := `{"new_owner":"` + strangerAddr.Hex() + `"}`
	rec := httptest.NewRecorder()
	h.TransferOwnership(rec, httptest.NewRequest(http.MethodPost, "/api/policy/transfer", strings.NewReader(body)))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, ownerAddr, p.owner)
}

type fakeTriggers struct {
	rec domain.RebalanceRecord
	err error
}

func (f *fakeTriggers) SubmitTrigger(context.Context, string, string) (domain.RebalanceRecord, error) {
	return f.rec, f.err
}

func TestTriggerExecutes(t *testing.T) {
	rec := domain.RebalanceRecord{
		ID:             "r-1",
		AccountOwner:   ownerAddr.Hex(),
		AccountNumber:  "0",
		MarginBps:      500,
		ThresholdBps:   1500,
		AmountIn:       big.NewInt(1_000_000_000),
		MinOut:         big.NewInt(1),
		AmountReceived: big.NewInt(2),
		CreatedAt:      time.Now().UTC(),
	}
	h := NewRebalanceHandler(&fakeTriggers{rec: rec}, nil, discard())

	body := `{"amount_in":"1000","min_out":"0.25"}`
	w := httptest.NewRecorder()
	h.Trigger(w, httptest.NewRequest(http.MethodPost, "/api/rebalance", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, w.Code)
	var resp triggerResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "r-1", resp.Record.ID)
}

func TestTriggerHealthyMarginIsConflict(t *testing.T) {
	err := &domain.PolicyNotBreachedError{MarginBps: big.NewInt(5000), ThresholdBps: 1500}
	h := NewRebalanceHandler(&fakeTriggers{err: err}, nil, discard())

	body := `{"amount_in":"1000","min_out":"0.25"}`
	w := httptest.NewRecorder()
	h.Trigger(w, httptest.NewRequest(http.MethodPost, "/api/rebalance", strings.NewReader(body)))

	require.Equal(t, http.StatusConflict, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "5000", resp["margin_bps"])
	assert.Equal(t, float64(1500), resp["threshold_bps"])
}

func TestTriggerChainMismatchIsBadGateway(t *testing.T) {
	h := NewRebalanceHandler(&fakeTriggers{err: domain.ErrChainMismatch}, nil, discard())

	body := `{"amount_in":"1000","min_out":"0.25"}`
	w := httptest.NewRecorder()
	h.Trigger(w, httptest.NewRequest(http.MethodPost, "/api/rebalance", strings.NewReader(body)))

	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestTriggerRequiresAmounts(t *testing.T) {
	h := NewRebalanceHandler(&fakeTriggers{}, nil, discard())

	w := httptest.NewRecorder()
	h.Trigger(w, httptest.NewRequest(http.MethodPost, "/api/rebalance", strings.NewReader(`{"amount_in":"1000"}`)))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

type fakeMargins struct {
	snap monitor.Snapshot
	err  error
}

func (f *fakeMargins) Refresh(context.Context) (monitor.Snapshot, error) {
	return f.snap, f.err
}

func TestGetMargin(t *testing.T) {
	acct, err := domain.NewAccount(ownerAddr.Hex(), 0)
	require.NoError(t, err)

	snap := monitor.Snapshot{
		MarginBps:    500,
		ThresholdBps: 1500,
		Supply:       "10500",
		Borrow:       "10000",
		Breached:     true,
		Status:       monitor.StatusBreached,
		At:           time.Now().UTC(),
	}
	h := NewMarginHandler(&fakeMargins{snap: snap}, nil, acct, discard())

	w := httptest.NewRecorder()
	h.GetMargin(w, httptest.NewRequest(http.MethodGet, "/api/margin", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var got monitor.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, int64(500), got.MarginBps)
	assert.True(t, got.Breached)
}

func TestGetMarginNoBorrowStillAnswers(t *testing.T) {
	acct, err := domain.NewAccount(ownerAddr.Hex(), 0)
	require.NoError(t, err)

	snap := monitor.Snapshot{
		ThresholdBps: 1500,
		Status:       monitor.StatusNoBorrow,
		At:           time.Now().UTC(),
	}
	h := NewMarginHandler(&fakeMargins{snap: snap, err: domain.ErrNoBorrowValue}, nil, acct, discard())

	w := httptest.NewRecorder()
	h.GetMargin(w, httptest.NewRequest(http.MethodGet, "/api/margin", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var got monitor.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, monitor.StatusNoBorrow, got.Status)
}

type fakeArchiver struct {
	before     time.Time
	rebalances int64
	audit      int64
}

func (f *fakeArchiver) ArchiveRebalances(_ context.Context, before time.Time) (int64, error) {
	f.before = before
	return f.rebalances, nil
}

func (f *fakeArchiver) ArchiveAuditLog(_ context.Context, before time.Time) (int64, error) {
	f.before = before
	return f.audit, nil
}

func TestArchiveDefaultsToRetentionWindow(t *testing.T) {
	arch := &fakeArchiver{rebalances: 4, audit: 9}
	h := NewAuditHandler(nil, arch, 90, discard())

	rec := httptest.NewRecorder()
	h.Archive(rec, httptest.NewRequest(http.MethodPost, "/api/archive", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	want := time.Now().UTC().AddDate(0, 0, -90)
	assert.WithinDuration(t, want, arch.before, time.Minute)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "archived", body["status"])
	assert.Equal(t, float64(4), body["rebalances"])
	assert.Equal(t, float64(9), body["audit"])
}

func TestArchiveExplicitCutoffWinsOverRetention(t *testing.T) {
	arch := &fakeArchiver{}
	h := NewAuditHandler(nil, arch, 90, discard())

	cutoff := time.Now().UTC().AddDate(0, 0, -7).Truncate(time.Second)
	body := `{"before":"` + cutoff.Format(time.RFC3339) + `"}`
	rec := httptest.NewRecorder()
	h.Archive(rec, httptest.NewRequest(http.MethodPost, "/api/archive", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, arch.before.Equal(cutoff))
}

func TestArchiveWithoutCutoffOrRetentionFails(t *testing.T) {
	arch := &fakeArchiver{}
	h := NewAuditHandler(nil, arch, 0, discard())

	rec := httptest.NewRecorder()
	h.Archive(rec, httptest.NewRequest(http.MethodPost, "/api/archive", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.True(t, arch.before.IsZero(), "archiver must not be called")
}
