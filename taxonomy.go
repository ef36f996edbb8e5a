// Package taxonomy keeps a registry of XBRL taxonomy packages and resolves
// the URL prefix remappings they contribute.
//
// Packages are kept in precedence order: when two enabled packages remap the
// same prefix, the one later in the list wins. Disabled packages stay
// registered but contribute nothing.
//
// Basic usage:
//
//	cfg := taxonomy.DefaultConfig()
//	reg, _, err := taxonomy.Open(ctx, cfg, zap.NewNop())
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	if _, err := reg.AddSource(ctx, "https://xbrl.ifrs.org/taxonomy/2023-03-23/IFRSAT-2023-03-23.zip"); err != nil {
//		log.Fatal(err)
//	}
//	if err := reg.Commit(ctx); err != nil {
//		log.Fatal(err)
//	}
//
//	for _, m := range reg.SortedRemappings() {
//		fmt.Println(m.Prefix, "->", m.Target)
//	}
package taxonomy

import (
	"context"

	"github.com/git-pkgs/purl"
	"go.uber.org/zap"

	"github.com/git-pkgs/taxonomy/fetch"
	"github.com/git-pkgs/taxonomy/inspect"
	"github.com/git-pkgs/taxonomy/internal/config"
	"github.com/git-pkgs/taxonomy/internal/core"
	"github.com/git-pkgs/taxonomy/store"
)

// Re-export types from internal/core
type (
	// Registry is the ordered collection of taxonomy packages.
	Registry = core.Registry

	// PackageInfo describes one registered package.
	PackageInfo = core.PackageInfo

	// Status is enabled or disabled.
	Status = core.Status

	// State is the persisted shape of a registry.
	State = core.State

	// Remapping is one entry of the resolved prefix table.
	Remapping = core.Remapping

	// Row is a display projection of a registry entry.
	Row = core.Row

	// NameSet is a set of package names.
	NameSet = core.NameSet

	// Inspector reads package metadata from a source.
	Inspector = core.Inspector

	// Prober reports the current modification date of a source.
	Prober = core.Prober

	// ConfigStore persists registry state.
	ConfigStore = core.ConfigStore

	// Scanner checks registered sources for newer versions in the background.
	Scanner = core.Scanner

	// ScanResult is delivered once a scan finishes.
	ScanResult = core.ScanResult

	// Option configures a Registry.
	Option = core.Option

	// ScannerOption configures a Scanner.
	ScannerOption = core.ScannerOption

	// Config is the environment-driven application configuration.
	Config = config.Config
)

// Re-export constants
const (
	StatusEnabled  = core.StatusEnabled
	StatusDisabled = core.StatusDisabled

	FileDateLayout = core.FileDateLayout
)

// Re-export errors
var (
	ErrNotAPackage       = core.ErrNotAPackage
	ErrSourceUnreachable = core.ErrSourceUnreachable
)

// Error types
type (
	IndexOutOfRangeError = core.IndexOutOfRangeError
	ReloadError          = core.ReloadError
)

// Registry and scanner options.
var (
	WithLogger          = core.WithLogger
	WithOnChange        = core.WithOnChange
	WithScanConcurrency = core.WithScanConcurrency
	WithScanLogger      = core.WithScanLogger
)

// NewRegistry creates a registry backed by store. Either argument may be nil:
// without a store the registry cannot be committed, and without an inspector
// packages can only be added from already known metadata.
func NewRegistry(ctx context.Context, store ConfigStore, inspector Inspector, opts ...Option) (*Registry, error) {
	return core.NewRegistry(ctx, store, inspector, opts...)
}

// NewScanner creates an update scanner that probes sources through prober.
func NewScanner(prober Prober, opts ...ScannerOption) *Scanner {
	return core.NewScanner(prober, opts...)
}

// Resolve computes the remapping table for entries in precedence order.
func Resolve(entries []PackageInfo) map[string]string {
	return core.Resolve(entries)
}

// NewNameSet builds a NameSet.
func NewNameSet(names ...string) NameSet {
	return core.NewNameSet(names...)
}

// LoadConfig reads configuration from TAXPKG_* environment variables.
func LoadConfig() (*Config, error) {
	return config.Load()
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() *Config {
	return config.Default()
}

// NewInspector builds the file and web inspector described by cfg.
func NewInspector(cfg *Config, logger *zap.Logger) *inspect.Inspector {
	f := fetch.NewFetcher(
		fetch.WithTimeout(cfg.Fetch.Timeout),
		fetch.WithMaxRetries(cfg.Fetch.MaxRetries),
		fetch.WithUserAgent(cfg.Fetch.UserAgent),
		fetch.WithFetchLogger(logger),
	)
	return inspect.New(
		inspect.WithFetcher(fetch.NewCircuitBreakerFetcher(f, fetch.WithBreakerLogger(logger))),
		inspect.WithCacheDir(cfg.Fetch.CacheDir),
		inspect.WithLogger(logger),
	)
}

// Open builds a registry from cfg: a file store at cfg.Store.Path and an
// inspector that downloads into cfg.Fetch.CacheDir.
func Open(ctx context.Context, cfg *Config, logger *zap.Logger, opts ...Option) (*Registry, *inspect.Inspector, error) {
	st, err := store.NewFile(cfg.Store.Path)
	if err != nil {
		return nil, nil, err
	}
	insp := NewInspector(cfg, logger)
	opts = append([]Option{WithLogger(logger)}, opts...)
	reg, err := core.NewRegistry(ctx, st, insp, opts...)
	if err != nil {
		return nil, nil, err
	}
	return reg, insp, nil
}

// PURL represents a parsed Package URL.
type PURL = purl.PURL

// ParsePURL parses a Package URL such as
// pkg:generic/ifrs@2023?download_url=https://example.com/ifrs.zip.
// Such URLs are accepted anywhere a package source is.
func ParsePURL(purlStr string) (*PURL, error) {
	return purl.Parse(purlStr)
}
