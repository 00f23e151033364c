package notify

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marginguard/internal/domain"
)

type memSender struct {
	name   string
	titles []string
	bodies []string
	err    error
}

func (m *memSender) Send(_ context.Context, title, message string) error {
	if m.err != nil {
		return m.err
	}
	m.titles = append(m.titles, title)
	m.bodies = append(m.bodies, message)
	return nil
}

func (m *memSender) Name() string { return m.name }

func discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestNotifyFiltersByEvent(t *testing.T) {
	s := &memSender{name: "mem"}
	n := NewNotifier([]Sender{s}, []string{"breach_detected"}, discard())

	require.NoError(t, n.Notify(context.Background(), "threshold_updated", "t", "m"))
	assert.Empty(t, s.titles)

	require.NoError(t, n.Notify(context.Background(), "breach_detected", "t", "m"))
	assert.Equal(t, []string{"t"}, s.titles)
}

func TestNotifyEmptyFilterAllowsEverything(t *testing.T) {
	s := &memSender{name: "mem"}
	n := NewNotifier([]Sender{s}, nil, discard())

	require.NoError(t, n.Notify(context.Background(), "anything", "t", "m"))
	assert.Len(t, s.titles, 1)
}

func TestDispatchContinuesPastFailingSender(t *testing.T) {
	bad := &memSender{name: "bad", err: errors.New("boom")}
	good := &memSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, discard())

	err := n.NotifyAll(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
	// The healthy sender still got the alert.
	assert.Len(t, good.titles, 1)
}

func TestBreachAlertContent(t *testing.T) {
	s := &memSender{name: "mem"}
	n := NewNotifier([]Sender{s}, nil, discard())

	acct, err := domain.NewAccount("0x1111111111111111111111111111111111111111", 3)
	require.NoError(t, err)

	require.NoError(t, n.BreachAlert(context.Background(), acct, big.NewInt(420), 1500))
	require.Len(t, s.bodies, 1)
	assert.Contains(t, s.bodies[0], "420 bps")
	assert.Contains(t, s.bodies[0], "1500 bps")
	assert.Contains(t, s.bodies[0], acct.String())
}
