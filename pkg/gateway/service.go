/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package gateway assembles the poll, enrich, derive, escalate and
// broadcast stages into one service.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mfreeman451/lineradar/pkg/api"
	"github.com/mfreeman451/lineradar/pkg/broadcast"
	"github.com/mfreeman451/lineradar/pkg/config"
	"github.com/mfreeman451/lineradar/pkg/db"
	"github.com/mfreeman451/lineradar/pkg/derive"
	"github.com/mfreeman451/lineradar/pkg/escalation"
	"github.com/mfreeman451/lineradar/pkg/logger"
	"github.com/mfreeman451/lineradar/pkg/metrics"
	"github.com/mfreeman451/lineradar/pkg/notifications"
	"github.com/mfreeman451/lineradar/pkg/pipeline"
	"github.com/mfreeman451/lineradar/pkg/poller"
	"github.com/mfreeman451/lineradar/pkg/prodctx"
	"github.com/mfreeman451/lineradar/pkg/snapshot"
	"github.com/mfreeman451/lineradar/pkg/tagcache"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	cleanerInterval     = time.Hour
	staleDeviceInterval = 5 * time.Minute
	staleDeviceAge      = 24 * time.Hour
)

var errAlreadyStarted = errors.New("gateway already started")

type Gateway struct {
	cfg    *config.Config
	logger *zap.Logger

	recorder  *metrics.Recorder
	samples   *metrics.Manager
	db        *db.DB
	cache     *snapshot.Cache
	contexts  *prodctx.Store
	refresher *prodctx.Refresher
	bcast     *broadcast.Manager
	alerts    *escalation.Engine
	notifier  *notifications.Service
	deriver   *derive.Engine
	pipeline  *pipeline.Pipeline
	pollers   *poller.Manager
	api       *api.APIServer

	closers []func() error

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	group   *errgroup.Group
	apiErr  chan error
}

type options struct {
	factory  poller.ReaderFactory
	serveAPI bool
}

type Option func(*options)

// WithReaderFactory replaces the driver-based reader factory.
func WithReaderFactory(f poller.ReaderFactory) Option {
	return func(o *options) { o.factory = f }
}

// WithoutAPI skips the HTTP listener. Events still reach Broadcast().
func WithoutAPI() Option {
	return func(o *options) { o.serveAPI = false }
}

// New connects the stores and senders named by cfg and wires every stage.
// cfg must have been validated.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger, opts ...Option) (*Gateway, error) {
	o := options{factory: poller.NewReader, serveAPI: true}
	for _, opt := range opts {
		opt(&o)
	}

	if log == nil {
		log = zap.NewNop()
	}

	g := &Gateway{
		cfg:      cfg,
		logger:   log,
		recorder: metrics.NewRecorder(),
		samples:  metrics.NewManager(cfg.Metrics, logger.Component(log, "metrics")),
	}

	if err := g.build(ctx, &o); err != nil {
		g.close()
		return nil, err
	}

	return g, nil
}

func (g *Gateway) build(ctx context.Context, o *options) error {
	cfg := g.cfg

	store, err := db.Open(ctx, cfg.Database, logger.Component(g.logger, "db"))
	if err != nil {
		return err
	}

	g.db = store
	g.closers = append(g.closers, store.Close)

	if cfg.Redis != nil {
		cache, err := snapshot.Connect(ctx, cfg.Redis, logger.Component(g.logger, "snapshot"))
		if err != nil {
			return err
		}

		g.cache = cache
		g.closers = append(g.closers, cache.Close)
	}

	g.bcast = broadcast.NewManager(cfg.Broadcast,
		broadcast.WithRecorder(g.recorder),
		broadcast.WithLogger(logger.Component(g.logger, "broadcast")))

	lines := make(map[string]string, len(cfg.Equipment))
	codes := make([]string, 0, len(cfg.Equipment))

	for i := range cfg.Equipment {
		lines[cfg.Equipment[i].Code] = cfg.Equipment[i].LineID
		codes = append(codes, cfg.Equipment[i].Code)
	}

	ctxCfg := prodctx.Config{
		Repo:         store,
		Publisher:    g.bcast,
		Lines:        lines,
		HistoryLimit: cfg.Pipeline.HistoryLimit,
		Logger:       logger.Component(g.logger, "prodctx"),
	}

	if g.cache != nil {
		ctxCfg.Mirror = g.cache
	}

	g.contexts = prodctx.NewStore(ctxCfg)

	if pa := cfg.ProductionAPI; pa != nil {
		g.refresher = prodctx.NewRefresher(pa.BaseURL, pa.Token,
			time.Duration(pa.Timeout), time.Duration(pa.RefreshInterval),
			g.contexts, codes, logger.Component(g.logger, "refresher"))
	}

	senders, err := g.senders()
	if err != nil {
		return err
	}

	g.notifier = notifications.NewService(&cfg.Notifications,
		logger.Component(g.logger, "notifications"), g.recorder, senders...)

	rules, err := escalation.NewRuleSet(cfg.Escalation.Rules)
	if err != nil {
		return err
	}

	g.alerts = escalation.New(rules,
		escalation.WithStore(store),
		escalation.WithNotifier(g.notifier),
		escalation.WithPublisher(g.bcast),
		escalation.WithRecorder(g.recorder),
		escalation.WithSweepInterval(time.Duration(cfg.Escalation.SweepInterval)),
		escalation.WithLogger(logger.Component(g.logger, "escalation")))

	deriveOpts := []derive.Option{
		derive.WithAlerter(g.alerts),
		derive.WithContextWriter(g.contexts),
		derive.WithDowntimeStore(store),
		derive.WithPublisher(g.bcast),
		derive.WithRecorder(g.recorder),
		derive.WithOEEInterval(time.Duration(cfg.Pipeline.OEEInterval)),
		derive.WithLogger(logger.Component(g.logger, "derive")),
	}

	pipeOpts := []pipeline.Option{
		pipeline.WithPublisher(g.bcast),
		pipeline.WithRecorder(g.recorder),
		pipeline.WithLogger(logger.Component(g.logger, "pipeline")),
	}

	if g.cache != nil {
		deriveOpts = append(deriveOpts, derive.WithOEESink(g.cache))
		pipeOpts = append(pipeOpts, pipeline.WithHealthSink(g.cache))
	}

	g.deriver = derive.New(cfg.Equipment, cfg.FaultPriorities, deriveOpts...)
	g.pipeline = pipeline.New(cfg.Pipeline, cfg.Equipment, g.contexts, g.deriver, pipeOpts...)

	g.pollers, err = poller.NewManager(cfg.Devices, o.factory, tagcache.New(), g.pipeline,
		logger.Component(g.logger, "poller"),
		poller.WithRecorder(g.recorder),
		poller.WithSamples(g.samples))
	if err != nil {
		return err
	}

	if o.serveAPI {
		g.api = g.newAPI()
	}

	return nil
}

// senders builds the configured notification senders. Senders holding a
// connection are closed with the gateway.
func (g *Gateway) senders() ([]notifications.Sender, error) {
	n := g.cfg.Notifications

	var out []notifications.Sender

	for _, wh := range n.Webhooks {
		if !wh.Enabled {
			continue
		}

		s, err := notifications.NewWebhookSender(wh, logger.Component(g.logger, "webhook"))
		if err != nil {
			return nil, err
		}

		out = append(out, s)
	}

	if n.MQTT != nil {
		s, err := notifications.NewMQTTSender(n.MQTT)
		if err != nil {
			return nil, err
		}

		out = append(out, s)
		g.closers = append(g.closers, func() error { s.Close(); return nil })
	}

	if n.Kafka != nil {
		s, err := notifications.NewKafkaSender(n.Kafka)
		if err != nil {
			return nil, err
		}

		out = append(out, s)
		g.closers = append(g.closers, s.Close)
	}

	return out, nil
}

func (g *Gateway) newAPI() *api.APIServer {
	ws := broadcast.NewWebSocketHandler(g.bcast, g.cfg.AllowedOrigins,
		time.Duration(g.cfg.Broadcast.WriteTimeout), logger.Component(g.logger, "websocket"))

	opts := []api.Option{
		api.WithContexts(g.contexts),
		api.WithAndons(g.alerts),
		api.WithDevices(g.pollers),
		api.WithLatency(g.samples),
		api.WithBroadcast(ws, g.bcast),
		api.WithMetricsHandler(g.recorder.Handler()),
		api.WithAllowedOrigins(g.cfg.AllowedOrigins),
		api.WithLogger(logger.Component(g.logger, "api")),
	}

	if g.cache != nil {
		opts = append(opts, api.WithSnapshots(g.cache))
	}

	return api.NewAPIServer(opts...)
}

// Broadcast exposes the event fan-out for in-process subscribers.
func (g *Gateway) Broadcast() *broadcast.Manager {
	return g.bcast
}

// Contexts exposes the production context store.
func (g *Gateway) Contexts() *prodctx.Store {
	return g.contexts
}

// Andons exposes the escalation engine.
func (g *Gateway) Andons() *escalation.Engine {
	return g.alerts
}

// Start recovers persisted state and launches every stage. Polling starts
// last so the first cycle sees recovered downtime and andons.
func (g *Gateway) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.started {
		return errAlreadyStarted
	}

	if err := g.contexts.Load(ctx); err != nil {
		return fmt.Errorf("failed to load production contexts: %w", err)
	}

	if err := g.deriver.Recover(ctx); err != nil {
		return fmt.Errorf("failed to recover downtime: %w", err)
	}

	if _, err := g.alerts.Recover(ctx); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	group, runCtx := errgroup.WithContext(runCtx)

	g.cancel = cancel
	g.group = group
	g.started = true

	g.notifier.Start(runCtx)

	group.Go(func() error { g.alerts.Run(runCtx); return nil })
	group.Go(func() error { g.bcast.Run(runCtx); return nil })
	group.Go(func() error { g.deriver.Run(runCtx); return nil })
	group.Go(func() error { g.cleanDevices(runCtx); return nil })

	if g.refresher != nil {
		group.Go(func() error { g.refresher.Run(runCtx); return nil })
	}

	if retention := time.Duration(g.cfg.Database.Retention); retention > 0 {
		group.Go(func() error { g.db.RunCleaner(runCtx, retention, cleanerInterval); return nil })
	}

	g.pipeline.Start(runCtx)
	g.pollers.Start(runCtx)

	if g.api != nil {
		g.apiErr = make(chan error, 1)

		go func() {
			g.logger.Info("api listening", zap.String("addr", g.cfg.ListenAddr))
			g.apiErr <- g.api.Start(g.cfg.ListenAddr)
		}()
	}

	g.logger.Info("gateway started",
		zap.Int("devices", len(g.cfg.Devices)),
		zap.Int("equipment", len(g.cfg.Equipment)),
		zap.Strings("senders", g.notifier.Senders()))

	return nil
}

func (g *Gateway) cleanDevices(ctx context.Context) {
	ticker := time.NewTicker(staleDeviceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.samples.CleanupStaleDevices(staleDeviceAge)
		}
	}
}

// Stop drains the stages front to back: pollers, then queued cycles, then
// pending notifications. Stores are closed last.
func (g *Gateway) Stop(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.started {
		g.close()
		return nil
	}

	g.started = false

	var errs []error

	if err := g.pollers.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("pollers: %w", err))
	}

	if err := g.pipeline.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("pipeline: %w", err))
	}

	if err := g.notifier.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("notifications: %w", err))
	}

	if g.api != nil {
		if err := g.api.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("api: %w", err))
		}

		if err := <-g.apiErr; err != nil {
			errs = append(errs, fmt.Errorf("api: %w", err))
		}
	}

	g.cancel()
	_ = g.group.Wait()

	g.bcast.Close()
	g.close()

	g.logger.Info("gateway stopped")

	return errors.Join(errs...)
}

func (g *Gateway) close() {
	for i := len(g.closers) - 1; i >= 0; i-- {
		if err := g.closers[i](); err != nil {
			g.logger.Warn("close failed", zap.Error(err))
		}
	}

	g.closers = nil
}
