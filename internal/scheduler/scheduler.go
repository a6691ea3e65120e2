// Package scheduler drives the tick loop that decides, each cadence, which
// agent instances are due for a cognitive cycle and dispatches them through a
// bounded worker pool.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/agentrunner/internal/agent"
	"github.com/alanyoungcy/agentrunner/internal/config"
	"github.com/alanyoungcy/agentrunner/internal/cycle"
	"github.com/alanyoungcy/agentrunner/internal/domain"
	"github.com/alanyoungcy/agentrunner/internal/executor"
	"github.com/alanyoungcy/agentrunner/internal/notify"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// fatalBackoff is the fixed sleep applied after maxRetries consecutive
// tick-wide failures.
const fatalBackoff = 60 * time.Second

// submitDedupTTL bounds how long a (tokenId, actionHash) pair is remembered
// to guard against the tick loop and the trigger loop racing onto the same
// already-decided action for a token within the same window.
const submitDedupTTL = 30 * time.Second

// Scheduler owns the tick loop and the per-token pipeline (runSingleToken).
// blockedCounts is process-local; the autopilot lease is what actually
// serialises a token's cycle across processes.
type Scheduler struct {
	store    domain.Store
	chain    domain.ChainClient
	agents   *agent.Manager
	cycle    *cycle.Orchestrator
	triggers domain.TriggerBus
	locks    domain.LockManager
	notifier *notify.Notifier
	log      *slog.Logger

	cfg               config.SchedulerConfig
	chainID           int64
	chainTypeAgentMap map[int64]string

	sem   *semaphore.Weighted
	dedup *executor.Dedup

	blockedMu     sync.Mutex
	blockedCounts map[domain.TokenId]int

	consecutiveErrors int
	lastLoopAt        time.Time
}

// New builds a Scheduler. triggers, locks and notifier may be nil: a nil
// triggers bus disables the immediate-trigger listener, a nil locks manager
// disables the Redis lease mirror (the SQL lease alone still arbitrates
// correctly), and a nil notifier silently drops autopause/disable/fatal-backoff
// alerts.
func New(
	store domain.Store,
	chain domain.ChainClient,
	agents *agent.Manager,
	cyc *cycle.Orchestrator,
	triggers domain.TriggerBus,
	locks domain.LockManager,
	notifier *notify.Notifier,
	cfg config.SchedulerConfig,
	chainID int64,
	chainTypeAgentMap map[int64]string,
	log *slog.Logger,
) *Scheduler {
	return &Scheduler{
		store:             store,
		chain:             chain,
		agents:            agents,
		cycle:             cyc,
		triggers:          triggers,
		locks:             locks,
		notifier:          notifier,
		cfg:               cfg,
		chainID:           chainID,
		chainTypeAgentMap: chainTypeAgentMap,
		log:               log.With(slog.String("component", "scheduler")),
		sem:               semaphore.NewWeighted(int64(cfg.Concurrency)),
		dedup:             executor.NewDedup(submitDedupTTL),
		blockedCounts:     make(map[domain.TokenId]int),
	}
}

// Run blocks until ctx is cancelled, running the tick loop and, if a
// TriggerBus was supplied, the immediate-trigger listener alongside it.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.InfoContext(ctx, "scheduler starting", slog.Int("concurrency", s.cfg.Concurrency))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.tickLoop(gctx)
	})

	if s.triggers != nil {
		g.Go(func() error {
			return s.triggerLoop(gctx)
		})
	}

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	s.log.InfoContext(ctx, "scheduler stopped")
	return nil
}

// LastLoopAt reports when the tick loop last started a pass, for health
// checks.
func (s *Scheduler) LastLoopAt() time.Time {
	return s.lastLoopAt
}

func (s *Scheduler) tickLoop(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		s.lastLoopAt = time.Now()
		if err := s.tick(ctx); err != nil {
			s.consecutiveErrors++
			s.log.ErrorContext(ctx, "tick failed",
				slog.Int("consecutiveErrors", s.consecutiveErrors),
				slog.String("error", err.Error()))

			if s.consecutiveErrors >= s.cfg.MaxRetries {
				s.notify(ctx, "fatal_backoff", "scheduler fatal backoff",
					fmt.Sprintf("%d consecutive tick failures, backing off %s", s.consecutiveErrors, fatalBackoff))
				s.consecutiveErrors = 0
				if !s.sleepCtx(ctx, fatalBackoff) {
					return ctx.Err()
				}
				continue
			}
		} else {
			s.consecutiveErrors = 0
		}

		if !s.sleepCtx(ctx, s.adaptiveSleep(ctx)) {
			return ctx.Err()
		}
	}
}

// tick fetches the schedulable token ids and dispatches each through the
// bounded semaphore, joining on all of them ("all-settled") before
// returning so one token's failure never aborts the batch.
func (s *Scheduler) tick(ctx context.Context) error {
	ids, err := s.store.ListSchedulableTokenIds(ctx)
	if err != nil {
		return fmt.Errorf("scheduler: list schedulable token ids: %w", err)
	}

	var wg sync.WaitGroup
	for _, tokenId := range ids {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(id domain.TokenId) {
			defer s.sem.Release(1)
			defer wg.Done()
			defer s.recoverPanic(id)
			s.runSingleToken(ctx, id, false)
		}(tokenId)
	}
	wg.Wait()
	return nil
}

// triggerLoop dispatches an immediate, cadence-bypassing cycle for every
// token id published on the TriggerBus.
func (s *Scheduler) triggerLoop(ctx context.Context) error {
	ch, err := s.triggers.SubscribeTriggers(ctx)
	if err != nil {
		return fmt.Errorf("scheduler: subscribe triggers: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case tokenId, ok := <-ch:
			if !ok {
				return nil
			}
			if err := s.sem.Acquire(ctx, 1); err != nil {
				return ctx.Err()
			}
			go func(id domain.TokenId) {
				defer s.sem.Release(1)
				defer s.recoverPanic(id)
				s.runSingleToken(ctx, id, true)
			}(tokenId)
		}
	}
}

func (s *Scheduler) recoverPanic(tokenId domain.TokenId) {
	if r := recover(); r != nil {
		s.log.Error("panic in runSingleToken",
			slog.Int64("tokenId", int64(tokenId)),
			slog.Any("panic", r))
	}
}

// adaptiveSleep computes min(pollInterval, max(loopFloor, earliestNextCheckAt-now)),
// falling back to pollInterval when no token has a scheduled next check.
func (s *Scheduler) adaptiveSleep(ctx context.Context) time.Duration {
	poll := s.cfg.PollInterval.Duration
	floor := time.Duration(s.cfg.LoopFloorMs) * time.Millisecond

	earliest, err := s.store.GetEarliestNextCheckAt(ctx)
	if err != nil {
		s.log.WarnContext(ctx, "failed to read earliest next check, using poll interval", slog.String("error", err.Error()))
		return poll
	}
	if earliest == nil {
		return poll
	}

	d := time.Until(*earliest)
	if d < floor {
		d = floor
	}
	if d > poll {
		d = poll
	}
	return d
}

func (s *Scheduler) sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (s *Scheduler) notify(ctx context.Context, event, title, message string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, event, title, message); err != nil {
		s.log.WarnContext(ctx, "notify failed", slog.String("event", event), slog.String("error", err.Error()))
	}
}

func (s *Scheduler) incrementBlocked(tokenId domain.TokenId) int {
	s.blockedMu.Lock()
	defer s.blockedMu.Unlock()
	s.blockedCounts[tokenId]++
	return s.blockedCounts[tokenId]
}

func (s *Scheduler) resetBlocked(tokenId domain.TokenId) {
	s.blockedMu.Lock()
	defer s.blockedMu.Unlock()
	delete(s.blockedCounts, tokenId)
}
