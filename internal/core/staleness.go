package core

import (
	"context"
	"sync"
)

const defaultConcurrency = 8

// Snapshot is the subset of an entry a staleness check needs.
type Snapshot struct {
	Name     string
	Version  string
	URL      string
	FileDate string
}

// Snapshots captures the scan-relevant fields of entries.
func Snapshots(entries []PackageInfo) []Snapshot {
	out := make([]Snapshot, 0, len(entries))
	for _, e := range entries {
		out = append(out, Snapshot{Name: e.Name, Version: e.Version, URL: e.URL, FileDate: e.FileDate})
	}
	return out
}

// StalenessReport is the outcome of a staleness check.
type StalenessReport struct {
	Stale   NameSet
	Checked int
	Skipped int
}

// CheckStaleness returns the names of packages whose source is strictly
// newer than the recorded file date. Unreachable sources and unparseable
// dates are skipped rather than reported as errors.
func CheckStaleness(ctx context.Context, snapshots []Snapshot, prober Prober) StalenessReport {
	return CheckStalenessWithConcurrency(ctx, snapshots, prober, defaultConcurrency)
}

// CheckStalenessWithConcurrency checks staleness with a custom concurrency limit.
func CheckStalenessWithConcurrency(ctx context.Context, snapshots []Snapshot, prober Prober, concurrency int) StalenessReport {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	report := StalenessReport{Stale: NameSet{}}
	var mu sync.Mutex
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for _, snap := range snapshots {
		wg.Add(1)
		go func(s Snapshot) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				mu.Lock()
				report.Skipped++
				mu.Unlock()
				return
			}

			stale, ok := isStale(ctx, s, prober)
			mu.Lock()
			defer mu.Unlock()
			if !ok {
				report.Skipped++
				return
			}
			report.Checked++
			if stale {
				report.Stale[s.Name] = struct{}{}
			}
		}(snap)
	}
	wg.Wait()
	return report
}

// isStale compares the stored and current dates. ok is false when the
// comparison could not be made.
func isStale(ctx context.Context, s Snapshot, prober Prober) (stale, ok bool) {
	if s.URL == "" {
		return false, false
	}
	stored, err := ParseFileDate(s.FileDate)
	if err != nil {
		return false, false
	}
	current, err := prober.ModTime(ctx, s.URL)
	if err != nil || current.IsZero() {
		return false, false
	}
	return NormalizeTime(current).After(stored), true
}
