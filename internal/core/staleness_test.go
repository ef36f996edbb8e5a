package core

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type fakeProber struct {
	times map[string]time.Time
	errs  map[string]error
	calls atomic.Int32
}

func (f *fakeProber) ModTime(ctx context.Context, source string) (time.Time, error) {
	f.calls.Add(1)
	if err := f.errs[source]; err != nil {
		return time.Time{}, err
	}
	t, ok := f.times[source]
	if !ok {
		return time.Time{}, errors.New("no such source")
	}
	return t, nil
}

func TestCheckStaleness(t *testing.T) {
	stored := "2024-01-01T00:00:00 UTC"
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	prober := &fakeProber{
		times: map[string]time.Time{
			"/pkgs/newer.zip":    base.Add(time.Hour),
			"/pkgs/same.zip":     base,
			"/pkgs/older.zip":    base.Add(-time.Hour),
			"/pkgs/subsec.zip":   base.Add(500 * time.Millisecond),
			"http://x/zoned.zip": base.Add(2 * time.Hour).In(time.FixedZone("CET", 3600)),
			"/pkgs/baddate.zip":  base.Add(time.Hour),
		},
		errs: map[string]error{
			"http://down/pkg.zip": errors.New("connection refused"),
		},
	}
	snapshots := []Snapshot{
		{Name: "newer", URL: "/pkgs/newer.zip", FileDate: stored},
		{Name: "same", URL: "/pkgs/same.zip", FileDate: stored},
		{Name: "older", URL: "/pkgs/older.zip", FileDate: stored},
		{Name: "subsec", URL: "/pkgs/subsec.zip", FileDate: stored},
		{Name: "zoned", URL: "http://x/zoned.zip", FileDate: "Mon, 01 Jan 2024 01:00:00 GMT"},
		{Name: "unreachable", URL: "http://down/pkg.zip", FileDate: stored},
		{Name: "missing", URL: "/pkgs/missing.zip", FileDate: stored},
		{Name: "baddate", URL: "/pkgs/baddate.zip", FileDate: "not a date"},
		{Name: "nourl", FileDate: stored},
	}

	report := CheckStaleness(context.Background(), snapshots, prober)

	want := []string{"newer", "zoned"}
	got := report.Stale.Sorted()
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("Stale = %v, want %v", got, want)
	}
	if report.Checked != 5 {
		t.Errorf("Checked = %d, want 5", report.Checked)
	}
	if report.Skipped != 4 {
		t.Errorf("Skipped = %d, want 4", report.Skipped)
	}
}

func TestCheckStalenessEmpty(t *testing.T) {
	report := CheckStaleness(context.Background(), nil, &fakeProber{})
	if len(report.Stale) != 0 || report.Checked != 0 || report.Skipped != 0 {
		t.Errorf("report = %+v, want empty", report)
	}
}

func TestCheckStalenessCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	prober := &fakeProber{times: map[string]time.Time{}}
	var snapshots []Snapshot
	for i := 0; i < 50; i++ {
		snapshots = append(snapshots, Snapshot{Name: "p", URL: "/x", FileDate: "2024-01-01T00:00:00 UTC"})
	}

	report := CheckStalenessWithConcurrency(ctx, snapshots, prober, 1)
	if report.Checked+report.Skipped != len(snapshots) {
		t.Errorf("Checked+Skipped = %d, want %d", report.Checked+report.Skipped, len(snapshots))
	}
	if len(report.Stale) != 0 {
		t.Errorf("Stale = %v, want none", report.Stale)
	}
}

func TestSnapshots(t *testing.T) {
	entries := []PackageInfo{pkg("a", StatusEnabled, map[string]string{"p": "x"})}
	got := Snapshots(entries)
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	want := Snapshot{Name: "a", Version: "1", URL: "/packages/a.zip", FileDate: "2024-01-01T00:00:00 UTC"}
	if got[0] != want {
		t.Errorf("Snapshots()[0] = %+v, want %+v", got[0], want)
	}
}
