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

// Package pipeline joins device polls with production context and hands
// the enriched metrics to the derivation engine on a bounded worker pool.
package pipeline

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mfreeman451/lineradar/pkg/config"
	"github.com/mfreeman451/lineradar/pkg/metrics"
	"github.com/mfreeman451/lineradar/pkg/models"
	"github.com/mfreeman451/lineradar/pkg/tagcache"
	"github.com/mfreeman451/lineradar/pkg/transform"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultWorkers   = 8
	defaultQueueSize = 256
)

type job struct {
	eq   *config.EquipmentConfig
	snap tagcache.Snapshot
}

// Pipeline implements poller.Listener. Cycles of one equipment always go
// to the same worker, so they are derived in poll order.
type Pipeline struct {
	byDevice map[string][]*config.EquipmentConfig
	queues   []chan job

	contexts  ContextSource
	deriver   Deriver
	publisher Publisher
	health    HealthSink
	recorder  *metrics.Recorder
	logger    *zap.Logger

	mu      sync.RWMutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	group   *errgroup.Group

	processed atomic.Uint64
	dropped   atomic.Uint64
}

type Option func(*Pipeline)

func WithPublisher(p Publisher) Option { return func(pl *Pipeline) { pl.publisher = p } }

func WithHealthSink(h HealthSink) Option { return func(pl *Pipeline) { pl.health = h } }

func WithRecorder(r *metrics.Recorder) Option { return func(pl *Pipeline) { pl.recorder = r } }

func WithLogger(l *zap.Logger) Option { return func(pl *Pipeline) { pl.logger = l } }

func New(cfg config.PipelineConfig, equipment []config.EquipmentConfig, contexts ContextSource, deriver Deriver,
	opts ...Option) *Pipeline {
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}

	size := cfg.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}

	p := &Pipeline{
		byDevice: make(map[string][]*config.EquipmentConfig),
		queues:   make([]chan job, workers),
		contexts: contexts,
		deriver:  deriver,
		logger:   zap.NewNop(),
	}

	for i := range p.queues {
		p.queues[i] = make(chan job, size)
	}

	for i := range equipment {
		eq := &equipment[i]
		p.byDevice[eq.DeviceID] = append(p.byDevice[eq.DeviceID], eq)
	}

	for _, o := range opts {
		o(p)
	}

	return p
}

func (p *Pipeline) worker(code string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(code))

	return int(h.Sum32() % uint32(len(p.queues)))
}

// OnCycle queues one job per equipment on the device. It never blocks:
// a full worker queue drops the cycle.
func (p *Pipeline) OnCycle(deviceID string, snap tagcache.Snapshot) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		return
	}

	for _, eq := range p.byDevice[deviceID] {
		select {
		case p.queues[p.worker(eq.Code)] <- job{eq: eq, snap: snap}:
		default:
			p.dropped.Add(1)
			p.recorder.CycleDropped()

			p.logger.Warn("derivation queue full, cycle dropped",
				zap.String("equipment", eq.Code),
				zap.String("device_id", deviceID),
				zap.Uint64("sequence", snap.Sequence))
		}
	}
}

// OnHealth forwards device health changes to the cache and to
// subscribers, once per equipment on the device so equipment and line
// scopes see it.
func (p *Pipeline) OnHealth(h models.DeviceHealth) {
	if p.publisher != nil {
		eqs := p.byDevice[h.DeviceID]
		if len(eqs) == 0 {
			p.publisher.Publish(models.Event{
				Type:      models.EventDeviceHealth,
				Payload:   h,
				Timestamp: h.Timestamp,
			})
		}

		for _, eq := range eqs {
			p.publisher.Publish(models.Event{
				Type:      models.EventDeviceHealth,
				Equipment: eq.Code,
				Line:      eq.LineID,
				Payload:   h,
				Timestamp: h.Timestamp,
			})
		}
	}

	if p.health != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		if err := p.health.PutHealth(ctx, h); err != nil {
			p.logger.Warn("failed to cache device health", zap.String("device_id", h.DeviceID), zap.Error(err))
		}
	}
}

// Start launches the workers.
func (p *Pipeline) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started || p.stopped {
		return
	}

	p.started = true

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.group = &errgroup.Group{}

	for i := range p.queues {
		q := p.queues[i]

		p.group.Go(func() error {
			p.run(runCtx, q)
			return nil
		})
	}

	p.logger.Info("pipeline started", zap.Int("workers", len(p.queues)))
}

func (p *Pipeline) run(ctx context.Context, q <-chan job) {
	for j := range q {
		if ctx.Err() != nil {
			continue
		}

		p.process(ctx, j)
	}
}

func (p *Pipeline) process(ctx context.Context, j job) {
	pc := p.contexts.Get(j.eq.Code)
	m := transform.Transform(j.eq, &j.snap, &pc)

	if err := p.deriver.Process(ctx, &m); err != nil {
		p.logger.Warn("derivation failed",
			zap.String("equipment", j.eq.Code),
			zap.Uint64("sequence", m.Sequence),
			zap.Error(err))
	}

	p.processed.Add(1)
}

// Stop finishes the queued cycles. When ctx expires first the remaining
// cycles are discarded and ctx.Err() is returned.
func (p *Pipeline) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}

	p.stopped = true

	for _, q := range p.queues {
		close(q)
	}

	started, cancel, group := p.started, p.cancel, p.group
	p.mu.Unlock()

	if !started {
		return nil
	}

	done := make(chan struct{})

	go func() {
		_ = group.Wait()
		close(done)
	}()

	select {
	case <-done:
		cancel()
		return nil
	case <-ctx.Done():
		cancel()
		<-done

		p.logger.Warn("pipeline shutdown deadline exceeded, queued cycles discarded")

		return ctx.Err()
	}
}

// Processed is the number of derived cycles.
func (p *Pipeline) Processed() uint64 { return p.processed.Load() }

// Dropped is the number of cycles discarded on a full queue.
func (p *Pipeline) Dropped() uint64 { return p.dropped.Load() }
