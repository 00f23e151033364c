package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"marginguard/internal/config"
	"marginguard/internal/domain"
	"marginguard/internal/monitor"
	"marginguard/internal/notify"
)

// fakeBus is an in-process SignalBus: one buffered channel per topic,
// created on first use from either side so publish/subscribe ordering does
// not matter in tests.
type fakeBus struct {
	mu    sync.Mutex
	chans map[string]chan []byte
}

func newFakeBus() *fakeBus {
	return &fakeBus{chans: make(map[string]chan []byte)}
}

func (b *fakeBus) topic(channel string) chan []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.chans[channel]
	if !ok {
		ch = make(chan []byte, 16)
		b.chans[channel] = ch
	}
	return ch
}

func (b *fakeBus) Publish(ctx context.Context, channel string, payload []byte) error {
	b.topic(channel) <- payload
	return nil
}

func (b *fakeBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	return b.topic(channel), nil
}

func (b *fakeBus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	return nil
}

func (b *fakeBus) StreamRead(ctx context.Context, stream, lastID string, count int) ([]domain.StreamMessage, error) {
	return nil, nil
}

type memSender struct {
	mu   sync.Mutex
	msgs []string
}

func (s *memSender) Send(ctx context.Context, title, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, title+": "+message)
	return nil
}

func (s *memSender) Name() string { return "mem" }

func (s *memSender) all() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.msgs...)
}

func TestBreachedSnapshotReachesSender(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	bus := newFakeBus()
	sender := &memSender{}

	acct := domain.Account{
		Owner:  common.HexToAddress("0x3333333333333333333333333333333333333333"),
		Number: big.NewInt(0),
	}
	deps := &Dependencies{
		SignalBus: bus,
		Notifier:  notify.NewNotifier([]notify.Sender{sender}, []string{domain.EventBreachDetected}, logger),
		Account:   acct,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	a := New(&config.Config{Mode: "monitor"}, logger)
	a.startAlertForwarder(gctx, g, deps)

	publish := func(snap monitor.Snapshot) {
		payload, err := json.Marshal(snap)
		require.NoError(t, err)
		require.NoError(t, bus.Publish(gctx, domain.ChannelMargin, payload))
	}

	// One excursion below the threshold is one alert, however many
	// refreshes observe it; recovery re-arms the watcher.
	publish(monitor.Snapshot{MarginBps: 500, ThresholdBps: 1500, Breached: true})
	publish(monitor.Snapshot{MarginBps: 480, ThresholdBps: 1500, Breached: true})
	publish(monitor.Snapshot{MarginBps: 5000, ThresholdBps: 1500, Breached: false})
	publish(monitor.Snapshot{MarginBps: 900, ThresholdBps: 1500, Breached: true})

	require.Eventually(t, func() bool {
		return len(sender.all()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	msgs := sender.all()
	assert.Contains(t, msgs[0], "Margin breach")
	assert.Contains(t, msgs[0], "500 bps")
	assert.Contains(t, msgs[0], acct.String())
	assert.Contains(t, msgs[1], "900 bps")

	cancel()
	_ = g.Wait()
}
