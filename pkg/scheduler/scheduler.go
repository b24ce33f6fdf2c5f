package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/StudioSol/set"
	"github.com/raykavin/regimerun/pkg/core"
	"github.com/raykavin/regimerun/pkg/logger"
)

// SymbolFunc is one unit of work for a single symbol. The context
// carries the per-call deadline.
type SymbolFunc func(ctx context.Context, symbol string) error

// Scheduler drives the two periodic loops: the slower scan loop that
// looks for new entries and the faster manage loop that supervises
// open positions. A symbol is never worked on by both loops at once;
// when a tick fires while the symbol is still busy, that symbol is
// skipped for the tick rather than queued.
type Scheduler struct {
	settings *core.Settings
	log      logger.Logger
	scan     SymbolFunc
	manage   SymbolFunc

	mu   sync.Mutex
	busy *set.LinkedHashSetString
	wg   sync.WaitGroup
}

func New(settings *core.Settings, log logger.Logger, scan, manage SymbolFunc) *Scheduler {
	return &Scheduler{
		settings: settings,
		log:      log,
		scan:     scan,
		manage:   manage,
		busy:     set.NewLinkedHashSetString(),
	}
}

// Start runs both loops until the context is cancelled, then waits for
// every in-flight symbol call to drain before returning
func (s *Scheduler) Start(ctx context.Context) {
	scanTicker := time.NewTicker(s.settings.ScanInterval)
	manageTicker := time.NewTicker(s.settings.ManageInterval)
	defer scanTicker.Stop()
	defer manageTicker.Stop()

	s.log.Infof("scheduler started: scan every %s, manage every %s",
		s.settings.ScanInterval, s.settings.ManageInterval)

	s.runTick(ctx, "scan", s.scan)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopping, draining in-flight work")
			s.wg.Wait()
			s.log.Info("scheduler stopped")
			return
		case <-scanTicker.C:
			s.runTick(ctx, "scan", s.scan)
		case <-manageTicker.C:
			s.runTick(ctx, "manage", s.manage)
		}
	}
}

// runTick dispatches one symbol call per configured symbol, skipping
// symbols that are still busy from a previous tick
func (s *Scheduler) runTick(ctx context.Context, name string, fn SymbolFunc) {
	if ctx.Err() != nil {
		return
	}

	for _, symbol := range s.settings.Symbols {
		if !s.acquire(symbol) {
			s.log.WithField("symbol", symbol).Debugf("%s tick skipped, symbol busy", name)
			continue
		}

		s.wg.Add(1)
		go func(symbol string) {
			defer s.wg.Done()
			defer s.release(symbol)

			callCtx, cancel := context.WithTimeout(ctx, s.settings.CallTimeout)
			defer cancel()

			if err := fn(callCtx, symbol); err != nil {
				s.log.WithError(err).Errorf("%s failed for %s", name, symbol)
			}
		}(symbol)
	}
}

func (s *Scheduler) acquire(symbol string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.busy.InArray(symbol) {
		return false
	}
	s.busy.Add(symbol)
	return true
}

func (s *Scheduler) release(symbol string) {
	s.mu.Lock()
	s.busy.Remove(symbol)
	s.mu.Unlock()
}
