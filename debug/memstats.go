package debug

// Memory/RSS periodic logger enabled when config.Debug is true.
// Logs resident set size along with Go heap stats to correlate native vs heap
// growth, which matters on the Windows capture path where frames come from GDI.

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v3/process"
)

// rssFunc reports the resident set size of the current process.
type rssFunc func(ctx context.Context) (uint64, error)

func processRSS() rssFunc {
	var proc *process.Process
	return func(ctx context.Context) (uint64, error) {
		if proc == nil {
			p, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
			if err != nil {
				return 0, err
			}
			proc = p
		}
		mi, err := proc.MemoryInfoWithContext(ctx)
		if err != nil {
			return 0, err
		}
		return mi.RSS, nil
	}
}

// StartMemLogger launches a goroutine that logs memory stats every interval
// until ctx is done. It is best-effort; failures to query RSS are logged once
// and suppressed.
func StartMemLogger(ctx context.Context, interval time.Duration, logger *slog.Logger) <-chan struct{} {
	return startMemLogger(ctx, interval, logger, processRSS())
}

func startMemLogger(ctx context.Context, interval time.Duration, logger *slog.Logger, rssOf rssFunc) <-chan struct{} {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		var rssErrLogged bool
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			var ms runtime.MemStats
			runtime.ReadMemStats(&ms)
			rss, err := rssOf(ctx)
			if err != nil && !rssErrLogged {
				logger.Warn("memlog: rss query failed", slog.String("err", err.Error()))
				rssErrLogged = true
			}
			logger.Info("memstats",
				slog.Int("goroutines", runtime.NumGoroutine()),
				slog.Uint64("heap_alloc", ms.HeapAlloc),
				slog.Uint64("heap_inuse", ms.HeapInuse),
				slog.Uint64("heap_idle", ms.HeapIdle),
				slog.Uint64("heap_sys", ms.HeapSys),
				slog.Uint64("next_gc", ms.NextGC),
				slog.Uint64("rss", rss),
				slog.String("rss_human", humanize.IBytes(rss)),
				slog.Uint64("num_gc", uint64(ms.NumGC)),
			)
		}
	}()
	return done
}
