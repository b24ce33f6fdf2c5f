package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/raykavin/regimerun/pkg/core"
	"github.com/raykavin/regimerun/pkg/logger"
	zlog "github.com/raykavin/regimerun/pkg/logger/zerolog"
	"github.com/stretchr/testify/require"
)

func testLogger(t *testing.T) logger.Logger {
	t.Helper()
	log, err := zlog.New("error", "2006-01-02 15:04:05", false, false)
	require.NoError(t, err)
	return zlog.NewAdapter(log)
}

func schedulerSettings(symbols ...string) *core.Settings {
	settings := core.DefaultSettings()
	settings.Symbols = symbols
	settings.ScanInterval = 10 * time.Millisecond
	settings.ManageInterval = 5 * time.Millisecond
	settings.CallTimeout = time.Second
	return &settings
}

func noWork(context.Context, string) error { return nil }

func TestRunTick_SkipsBusySymbol(t *testing.T) {
	settings := schedulerSettings("BTCUSDT")

	gate := make(chan struct{})
	var calls int32
	blocking := func(ctx context.Context, symbol string) error {
		atomic.AddInt32(&calls, 1)
		<-gate
		return nil
	}

	s := New(settings, testLogger(t), blocking, noWork)
	ctx := context.Background()

	s.runTick(ctx, "scan", blocking)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) == 1
	}, time.Second, time.Millisecond)

	// the symbol is still in flight: a second tick must not stack a call
	s.runTick(ctx, "scan", blocking)
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))

	close(gate)
	s.wg.Wait()

	// released: the next tick picks the symbol up again
	s.runTick(ctx, "scan", blocking)
	s.wg.Wait()
	require.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestRunTick_OneSlowSymbolDoesNotBlockOthers(t *testing.T) {
	settings := schedulerSettings("BTCUSDT", "ETHUSDT")

	gate := make(chan struct{})
	var mu sync.Mutex
	counts := map[string]int{}

	fn := func(ctx context.Context, symbol string) error {
		mu.Lock()
		counts[symbol]++
		mu.Unlock()
		if symbol == "BTCUSDT" {
			<-gate
		}
		return nil
	}

	s := New(settings, testLogger(t), fn, noWork)
	ctx := context.Background()

	s.runTick(ctx, "scan", fn)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return counts["ETHUSDT"] == 1 && counts["BTCUSDT"] == 1
	}, time.Second, time.Millisecond)

	s.runTick(ctx, "scan", fn)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return counts["ETHUSDT"] == 2
	}, time.Second, time.Millisecond)

	mu.Lock()
	require.Equal(t, 1, counts["BTCUSDT"])
	mu.Unlock()

	close(gate)
	s.wg.Wait()
}

func TestRunTick_AppliesCallTimeout(t *testing.T) {
	settings := schedulerSettings("BTCUSDT")
	settings.CallTimeout = 20 * time.Millisecond

	errs := make(chan error, 1)
	fn := func(ctx context.Context, symbol string) error {
		<-ctx.Done()
		errs <- ctx.Err()
		return ctx.Err()
	}

	s := New(settings, testLogger(t), fn, noWork)
	s.runTick(context.Background(), "scan", fn)
	s.wg.Wait()

	select {
	case err := <-errs:
		require.ErrorIs(t, err, context.DeadlineExceeded)
	default:
		t.Fatal("symbol call never observed its deadline")
	}
}

func TestRunTick_NoDispatchAfterCancel(t *testing.T) {
	settings := schedulerSettings("BTCUSDT")

	var calls int32
	fn := func(ctx context.Context, symbol string) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}

	s := New(settings, testLogger(t), fn, noWork)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s.runTick(ctx, "scan", fn)
	s.wg.Wait()
	require.Zero(t, atomic.LoadInt32(&calls))
}

func TestStart_RunsImmediateScanAndStopsOnCancel(t *testing.T) {
	settings := schedulerSettings("BTCUSDT")

	var scans, manages int32
	scan := func(ctx context.Context, symbol string) error {
		atomic.AddInt32(&scans, 1)
		return nil
	}
	manage := func(ctx context.Context, symbol string) error {
		atomic.AddInt32(&manages, 1)
		return nil
	}

	s := New(settings, testLogger(t), scan, manage)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&scans) >= 1 && atomic.LoadInt32(&manages) >= 1
	}, time.Second, time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
}
