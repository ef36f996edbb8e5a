package taxonomy_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"go.uber.org/zap"

	"github.com/git-pkgs/taxonomy"
)

const manifest = `<?xml version="1.0" encoding="UTF-8"?>
<taxonomyPackage xmlns="http://xbrl.org/2016/taxonomy-package">
  <identifier>http://example.com/taxonomy/%s</identifier>
  <name>%s</name>
  <version>%s</version>
</taxonomyPackage>
`

const catalog = `<?xml version="1.0" encoding="UTF-8"?>
<catalog xmlns="urn:oasis:names:tc:entity:xmlns:xml:catalog">
  <rewriteURI uriStartString="http://example.com/taxonomy/" rewritePrefix="../taxonomy/"/>
</catalog>
`

func writePackage(t *testing.T, dir, name, version string) string {
	t.Helper()
	p := filepath.Join(dir, name+"-"+version+".zip")
	f, err := os.Create(p)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	for entry, body := range map[string]string{
		name + "/META-INF/taxonomyPackage.xml": fmt.Sprintf(manifest, name, name, version),
		name + "/META-INF/catalog.xml":         catalog,
	} {
		w, err := zw.Create(entry)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return p
}

func testConfig(t *testing.T) *taxonomy.Config {
	t.Helper()
	cfg := taxonomy.DefaultConfig()
	dir := t.TempDir()
	cfg.Store.Path = filepath.Join(dir, "taxonomyPackages.json")
	cfg.Fetch.CacheDir = filepath.Join(dir, "cache")
	return cfg
}

func TestOpenAddCommitReopen(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	pkgDir := t.TempDir()
	first := writePackage(t, pkgDir, "base", "2023")
	second := writePackage(t, pkgDir, "extension", "2024")

	var notified int
	reg, _, err := taxonomy.Open(ctx, cfg, zap.NewNop(), taxonomy.WithOnChange(func(map[string]string) { notified++ }))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if reg.Len() != 0 {
		t.Fatalf("Len = %d, want 0 for a fresh store", reg.Len())
	}

	for _, src := range []string{first, second} {
		if _, err := reg.AddSource(ctx, src); err != nil {
			t.Fatalf("AddSource(%s): %v", src, err)
		}
	}
	if notified != 2 {
		t.Errorf("onChange called %d times, want 2", notified)
	}

	target := reg.Remappings()["http://example.com/taxonomy/"]
	want := filepath.ToSlash(second) + "/extension/taxonomy/"
	if target != want {
		t.Errorf("later package should win: got %q, want %q", target, want)
	}

	if err := reg.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	reopened, _, err := taxonomy.Open(ctx, cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.Len() != 2 {
		t.Fatalf("reopened Len = %d, want 2", reopened.Len())
	}
	if got := reopened.Remappings()["http://example.com/taxonomy/"]; got != want {
		t.Errorf("reopened remapping = %q, want %q", got, want)
	}
	if reopened.Dirty() {
		t.Error("freshly opened registry should not be dirty")
	}
}

func TestAddSourceNotAPackage(t *testing.T) {
	ctx := context.Background()
	reg, _, err := taxonomy.Open(ctx, testConfig(t), zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	notes := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(notes, []byte("not a package"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err = reg.AddSource(ctx, notes)
	if !errors.Is(err, taxonomy.ErrNotAPackage) {
		t.Errorf("AddSource error = %v, want ErrNotAPackage", err)
	}
	var reloadErr *taxonomy.ReloadError
	if !errors.As(err, &reloadErr) || reloadErr.URL != notes {
		t.Errorf("expected ReloadError for %s, got %v", notes, err)
	}
	if reg.Len() != 0 || reg.Dirty() {
		t.Error("failed add must leave the registry unchanged")
	}
}

func TestScanAfterSourceChanges(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	pkgDir := t.TempDir()
	src := writePackage(t, pkgDir, "base", "2023")
	old := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := os.Chtimes(src, old, old); err != nil {
		t.Fatal(err)
	}

	reg, insp, err := taxonomy.Open(ctx, cfg, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := reg.AddSource(ctx, src); err != nil {
		t.Fatal(err)
	}

	scanner := taxonomy.NewScanner(insp, taxonomy.WithScanConcurrency(2))
	result := <-scanner.Start(ctx, reg.List())
	if len(result.Stale) != 0 {
		t.Fatalf("unchanged source reported stale: %v", result.Stale.Sorted())
	}

	newer := old.Add(48 * time.Hour)
	if err := os.Chtimes(src, newer, newer); err != nil {
		t.Fatal(err)
	}
	result = <-scanner.Start(ctx, reg.List())
	reg.ApplyScan(result.Stale)
	if !reg.UpdateAvailable("base") {
		t.Error("expected update available after source changed")
	}

	if _, err := reg.Reload(ctx, 0); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if reg.UpdateAvailable("base") {
		t.Error("reload should clear the update flag")
	}
	if got := reg.List()[0].FileDate; got != "2023-01-03T00:00:00 UTC" {
		t.Errorf("FileDate after reload = %q", got)
	}
}

func TestParsePURL(t *testing.T) {
	p, err := taxonomy.ParsePURL("pkg:generic/ifrs@2023?download_url=https://example.com/ifrs-2023.zip")
	if err != nil {
		t.Fatalf("ParsePURL: %v", err)
	}
	if p == nil {
		t.Fatal("ParsePURL returned nil")
	}
	if _, err := taxonomy.ParsePURL("not a purl"); err == nil {
		t.Error("expected error for malformed package URL")
	}
}

func TestResolveFacade(t *testing.T) {
	got := taxonomy.Resolve([]taxonomy.PackageInfo{
		{Name: "a", Status: taxonomy.StatusEnabled, Remappings: map[string]string{"p/": "a/"}},
		{Name: "b", Status: taxonomy.StatusDisabled, Remappings: map[string]string{"p/": "b/"}},
	})
	if got["p/"] != "a/" {
		t.Errorf("Resolve = %v", got)
	}
}
