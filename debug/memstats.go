package debug

// Memory/RSS periodic logger enabled when config.Debug is true.
// Logs resident set size along with Go heap stats to correlate native vs heap
// growth (frame buffers from capture drivers live outside the Go heap).

import (
	"context"
	"log/slog"
	"runtime"
	"time"
)

type memSample struct {
	goroutines int
	rss        uint64
	rssErr     error
	ms         runtime.MemStats
}

func readMemSample() memSample {
	var s memSample
	runtime.ReadMemStats(&s.ms)
	s.goroutines = runtime.NumGoroutine()
	s.rss, s.rssErr = processRSS()
	return s
}

// StartMemLogger launches a goroutine that logs memory stats every interval
// until ctx is done. It is best-effort; failures to query RSS are logged once
// and suppressed.
func StartMemLogger(ctx context.Context, interval time.Duration, logger *slog.Logger) {
	if logger == nil {
		return
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		var rssErrLogged bool
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			s := readMemSample()
			if s.rssErr != nil && !rssErrLogged {
				logger.Warn("memlog: process memory query failed", slog.String("err", s.rssErr.Error()))
				rssErrLogged = true
			}
			logger.Info("debug.memstats",
				slog.Int("goroutines", s.goroutines),
				slog.Uint64("heap_alloc", s.ms.HeapAlloc),
				slog.Uint64("heap_inuse", s.ms.HeapInuse),
				slog.Uint64("heap_idle", s.ms.HeapIdle),
				slog.Uint64("heap_sys", s.ms.HeapSys),
				slog.Uint64("next_gc", s.ms.NextGC),
				slog.Uint64("rss", s.rss),
				slog.Uint64("num_gc", uint64(s.ms.NumGC)),
			)
		}
	}()
}
