package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"marginguard/internal/domain"
	"marginguard/internal/monitor"
	"marginguard/internal/server"
	"marginguard/internal/server/handler"
	"marginguard/internal/server/ws"
)

// MonitorMode runs the read-only refresh loop. Margin snapshots are
// published on the signal bus but no corrective transaction is ever
// submitted.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode",
		slog.String("account", deps.Account.String()),
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.Monitor.Run(ctx)
	})
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps)
	}
	a.startAlertForwarder(ctx, g, deps)

	return g.Wait()
}

// GuardMode runs the refresh loop with auto-trigger armed: a breached
// snapshot submits the configured corrective swap through the guardian.
func (a *App) GuardMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting guard mode",
		slog.String("account", deps.Account.String()),
		slog.Int64("threshold_bps", deps.Guardian.ThresholdBps()),
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.Monitor.Run(ctx)
	})
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps)
	}
	a.startAlertForwarder(ctx, g, deps)

	return g.Wait()
}

// ServerMode runs the HTTP API and WebSocket hub only. Margin reads happen
// on demand per request; no refresh loop publishes in the background.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode",
		slog.Int("port", a.cfg.Server.Port),
	)

	g, ctx := errgroup.WithContext(ctx)

	a.startHTTPServer(ctx, g, deps)
	a.startAlertForwarder(ctx, g, deps)

	return g.Wait()
}

// FullMode runs everything: the guarded refresh loop, the HTTP API, the
// WebSocket hub, and alert forwarding.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode",
		slog.String("account", deps.Account.String()),
		slog.Int("port", a.cfg.Server.Port),
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.Monitor.Run(ctx)
	})
	a.startHTTPServer(ctx, g, deps)
	a.startAlertForwarder(ctx, g, deps)

	return g.Wait()
}

// startHTTPServer adds the HTTP server and WebSocket hub goroutines to the
// given errgroup. The server is shut down gracefully when the context is
// cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		Account:   deps.Account.String(),
		StartedAt: time.Now().UTC(),
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(a.logger),
		Margin:    handler.NewMarginHandler(deps.Monitor, deps.MarginCache, deps.Account, a.logger),
		Policy:    handler.NewPolicyHandler(deps.Guardian, common.HexToAddress(a.cfg.Server.OperatorAddress), a.logger),
		Rebalance: handler.NewRebalanceHandler(deps.Monitor, deps.RebalanceStore, a.logger),
		Audit:     handler.NewAuditHandler(deps.AuditStore, deps.Archiver, a.cfg.S3.RetentionDays, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:         a.cfg.Server.Port,
		CORSOrigins:  a.cfg.Server.CORSOrigins,
		APIKey:       a.cfg.Server.APIKey,
		TriggerLimit: a.cfg.Server.TriggerRateLimit,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// busEvent mirrors the payload the guardian publishes on the events channel.
type busEvent struct {
	Event  string         `json:"event"`
	Detail map[string]any `json:"detail"`
}

// startAlertForwarder relays guardian events and margin breaches from the
// signal bus to the configured notification channels. The notifier's event
// filter decides which events actually go out.
func (a *App) startAlertForwarder(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Notifier == nil {
		return
	}
	g.Go(func() error {
		return a.forwardEvents(ctx, deps)
	})
	g.Go(func() error {
		return a.watchBreaches(ctx, deps)
	})
}

// forwardEvents relays guardian event envelopes as-is.
func (a *App) forwardEvents(ctx context.Context, deps *Dependencies) error {
	ch, err := deps.SignalBus.Subscribe(ctx, domain.ChannelEvents)
	if err != nil {
		a.logger.WarnContext(ctx, "alert forwarder: subscribe failed, notifications disabled",
			slog.String("error", err.Error()),
		)
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-ch:
			if !ok {
				return nil
			}
			var evt busEvent
			if err := json.Unmarshal(payload, &evt); err != nil || evt.Event == "" {
				continue
			}
			detail, _ := json.Marshal(evt.Detail)
			if err := deps.Notifier.Notify(ctx, evt.Event, "marginguard: "+evt.Event, string(detail)); err != nil {
				a.logger.DebugContext(ctx, "alert delivery failed",
					slog.String("event", evt.Event),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// watchBreaches turns breached margin snapshots into operator alerts.
// Edge-triggered: one alert per excursion below the threshold, re-armed
// once a snapshot shows the margin recovered.
func (a *App) watchBreaches(ctx context.Context, deps *Dependencies) error {
	ch, err := deps.SignalBus.Subscribe(ctx, domain.ChannelMargin)
	if err != nil {
		a.logger.WarnContext(ctx, "breach watcher: subscribe failed, breach alerts disabled",
			slog.String("error", err.Error()),
		)
		return nil
	}
	breached := false
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-ch:
			if !ok {
				return nil
			}
			var snap monitor.Snapshot
			if err := json.Unmarshal(payload, &snap); err != nil {
				continue
			}
			if snap.Breached && !breached {
				if err := deps.Notifier.BreachAlert(ctx, deps.Account, big.NewInt(snap.MarginBps), snap.ThresholdBps); err != nil {
					a.logger.WarnContext(ctx, "breach alert delivery failed",
						slog.String("error", err.Error()),
					)
				}
			}
			breached = snap.Breached
		}
	}
}
