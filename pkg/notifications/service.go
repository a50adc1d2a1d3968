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

package notifications

import (
	"context"
	"fmt"
	"sync"

	"github.com/mfreeman451/lineradar/pkg/config"
	"github.com/mfreeman451/lineradar/pkg/metrics"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Service is an asynchronous, rate limited dispatcher. Every request is
// offered to every registered sender; one failing sender does not stop
// the others.
type Service struct {
	queue    chan *Request
	limiter  *rate.Limiter
	senders  []Sender
	logger   *zap.Logger
	recorder *metrics.Recorder

	mu      sync.RWMutex
	stopped bool

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewService creates a dispatcher. cfg must have been validated.
func NewService(cfg *config.NotificationsConfig, logger *zap.Logger, recorder *metrics.Recorder, senders ...Sender) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		queue:    make(chan *Request, cfg.QueueSize),
		limiter:  rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		senders:  senders,
		logger:   logger,
		recorder: recorder,
		done:     make(chan struct{}),
	}
}

// Senders returns the names of the registered senders.
func (s *Service) Senders() []string {
	names := make([]string, 0, len(s.senders))
	for _, snd := range s.senders {
		names = append(names, snd.Name())
	}

	return names
}

// Enqueue queues a request without blocking.
func (s *Service) Enqueue(req *Request) error {
	if len(req.Recipients) == 0 || !req.Channel.Valid() {
		return fmt.Errorf("%w: escalation %s", ErrInvalidRequest, req.EscalationID)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.stopped {
		return ErrServiceStopped
	}

	select {
	case s.queue <- req:
		return nil
	default:
		s.recorder.Notification("queue", ErrQueueFull)
		return ErrQueueFull
	}
}

// Start launches the dispatch loop.
func (s *Service) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		runCtx, cancel := context.WithCancel(ctx)
		s.cancel = cancel

		go s.run(runCtx)

		s.logger.Info("notification service started", zap.Strings("senders", s.Senders()))
	})
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	for req := range s.queue {
		if err := s.limiter.Wait(ctx); err != nil {
			s.logger.Warn("notification dropped on shutdown", zap.String("escalation_id", req.EscalationID))
			return
		}

		s.dispatch(ctx, req)
	}
}

func (s *Service) dispatch(ctx context.Context, req *Request) {
	for _, snd := range s.senders {
		err := snd.Send(ctx, req)
		s.recorder.Notification(snd.Name(), err)

		if err != nil {
			s.logger.Warn("notification send failed",
				zap.String("sender", snd.Name()),
				zap.String("escalation_id", req.EscalationID),
				zap.String("channel", string(req.Channel)),
				zap.Error(err))

			continue
		}

		s.logger.Debug("notification sent",
			zap.String("sender", snd.Name()),
			zap.String("escalation_id", req.EscalationID),
			zap.Int("recipients", len(req.Recipients)))
	}
}

// Stop drains the queue. When ctx expires first, in-flight sends are
// cancelled and ctx.Err() is returned.
func (s *Service) Stop(ctx context.Context) error {
	var err error

	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		close(s.queue)
		s.mu.Unlock()

		if s.cancel == nil {
			return
		}

		select {
		case <-s.done:
		case <-ctx.Done():
			s.cancel()
			<-s.done

			err = ctx.Err()
		}

		s.cancel()
	})

	return err
}
