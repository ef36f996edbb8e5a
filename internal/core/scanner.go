package core

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/git-pkgs/taxonomy/internal/metrics"
)

// ScanResult is delivered once per background scan.
type ScanResult struct {
	Stale    NameSet
	Checked  int
	Skipped  int
	Started  time.Time
	Duration time.Duration
}

// Scanner runs staleness checks in the background.
type Scanner struct {
	prober      Prober
	concurrency int
	logger      *zap.Logger
}

// ScannerOption configures a Scanner.
type ScannerOption func(*Scanner)

// WithScanConcurrency limits how many sources are probed at once.
func WithScanConcurrency(n int) ScannerOption {
	return func(s *Scanner) {
		s.concurrency = n
	}
}

// WithScanLogger sets the logger used for scan progress.
func WithScanLogger(l *zap.Logger) ScannerOption {
	return func(s *Scanner) {
		s.logger = l
	}
}

// NewScanner creates a scanner probing sources with prober.
func NewScanner(prober Prober, opts ...ScannerOption) *Scanner {
	s := &Scanner{
		prober:      prober,
		concurrency: defaultConcurrency,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start snapshots entries and checks them in a new goroutine. It returns
// immediately; the result is sent once on the returned channel, which is
// then closed. A cancelled ctx still yields a result covering whatever was
// probed before cancellation.
func (s *Scanner) Start(ctx context.Context, entries []PackageInfo) <-chan ScanResult {
	snapshots := Snapshots(entries)
	out := make(chan ScanResult, 1)
	go func() {
		defer close(out)
		started := time.Now()
		s.logger.Info("checking for package updates", zap.Int("packages", len(snapshots)))

		report := CheckStalenessWithConcurrency(ctx, snapshots, s.prober, s.concurrency)
		result := ScanResult{
			Stale:    report.Stale,
			Checked:  report.Checked,
			Skipped:  report.Skipped,
			Started:  started,
			Duration: time.Since(started),
		}
		metrics.RecordScan(len(result.Stale), result.Duration)

		if len(result.Stale) > 0 {
			s.logger.Info("updates are available",
				zap.Strings("packages", result.Stale.Sorted()),
				zap.Int("skipped", result.Skipped))
		} else {
			s.logger.Info("no updates found for packages", zap.Int("skipped", result.Skipped))
		}
		out <- result
	}()
	return out
}
