// Package inspect reads taxonomy package metadata from zip archives,
// extracted manifests and web-hosted packages.
package inspect

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/git-pkgs/taxonomy/fetch"
	"github.com/git-pkgs/taxonomy/internal/core"
)

// ErrNoLastModified is returned by ModTime when a server reports no modification date.
var ErrNoLastModified = errors.New("source reports no modification date")

// Inspector implements core.Inspector and core.Prober for local and web sources.
type Inspector struct {
	fetcher  fetch.FetcherInterface
	cacheDir string
	logger   *zap.Logger
}

// Option configures an Inspector.
type Option func(*Inspector)

// WithFetcher sets the fetcher used for web sources.
func WithFetcher(f fetch.FetcherInterface) Option {
	return func(i *Inspector) {
		i.fetcher = f
	}
}

// WithCacheDir sets where downloaded packages are kept.
func WithCacheDir(dir string) Option {
	return func(i *Inspector) {
		i.cacheDir = dir
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(i *Inspector) {
		i.logger = l
	}
}

// New creates an Inspector. Without a fetcher, web sources use a
// circuit-breaking fetcher with default settings.
func New(opts ...Option) *Inspector {
	i := &Inspector{
		cacheDir: filepath.Join(os.TempDir(), "taxpkg-cache"),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.fetcher == nil {
		i.fetcher = fetch.NewCircuitBreakerFetcher(
			fetch.NewFetcher(fetch.WithFetchLogger(i.logger)),
			fetch.WithBreakerLogger(i.logger))
	}
	return i
}

// Inspect returns the package described by source, or nil, nil when the
// source is readable but holds no taxonomy package. Web sources are
// downloaded into the cache; forceReload bypasses a cached copy.
func (i *Inspector) Inspect(ctx context.Context, source string, forceReload bool) (*core.PackageInfo, error) {
	loc, err := fetch.Resolve(source)
	if err != nil {
		return nil, err
	}

	localPath := loc.Path
	if loc.Kind == fetch.Remote {
		localPath, err = i.download(ctx, loc.URL, forceReload)
		if err != nil {
			return nil, err
		}
	}

	info, err := i.inspectPath(localPath)
	if err != nil || info == nil {
		return nil, err
	}
	info.URL = source
	if info.Name == "" {
		info.Name = strings.TrimSuffix(loc.Filename(), filepath.Ext(loc.Filename()))
	}
	i.logger.Debug("inspected package",
		zap.String("source", source),
		zap.String("name", info.Name),
		zap.String("version", info.Version),
		zap.Int("remappings", len(info.Remappings)))
	return info, nil
}

// ModTime returns the current modification date of source: the file's
// mtime for local paths and the Last-Modified header for web URLs. An
// extracted package directory is dated by its manifest, as in Inspect.
func (i *Inspector) ModTime(ctx context.Context, source string) (time.Time, error) {
	loc, err := fetch.Resolve(source)
	if err != nil {
		return time.Time{}, err
	}
	if loc.Kind == fetch.Local {
		fi, err := os.Stat(loc.Path)
		if err != nil {
			return time.Time{}, err
		}
		if fi.IsDir() {
			if fi, err = os.Stat(dirManifest(loc.Path)); err != nil {
				return time.Time{}, err
			}
		}
		return core.NormalizeTime(fi.ModTime()), nil
	}

	meta, err := i.fetcher.Head(ctx, loc.URL)
	if err != nil {
		return time.Time{}, err
	}
	if meta.LastModified.IsZero() {
		return time.Time{}, fmt.Errorf("%s: %w", loc.URL, ErrNoLastModified)
	}
	return core.NormalizeTime(meta.LastModified), nil
}

func dirManifest(dir string) string {
	return filepath.Join(dir, metaInfDir, manifestName)
}

// inspectPath dispatches on the kind of local file.
func (i *Inspector) inspectPath(p string) (*core.PackageInfo, error) {
	fi, err := os.Stat(p)
	if err != nil {
		return nil, err
	}
	if fi.IsDir() {
		manifest := dirManifest(p)
		if _, err := os.Stat(manifest); err != nil {
			return nil, nil
		}
		return inspectManifestFile(manifest)
	}

	mtype, err := mimetype.DetectFile(p)
	if err != nil {
		return nil, err
	}
	switch {
	case isZip(mtype):
		return inspectArchive(p)
	case isXML(mtype) || strings.EqualFold(filepath.Ext(p), ".xml"):
		return inspectManifestFile(p)
	default:
		i.logger.Debug("source is neither an archive nor a manifest",
			zap.String("path", p),
			zap.String("mime", mtype.String()))
		return nil, nil
	}
}

func isZip(m *mimetype.MIME) bool {
	for ; m != nil; m = m.Parent() {
		if m.Is("application/zip") {
			return true
		}
	}
	return false
}

func isXML(m *mimetype.MIME) bool {
	for ; m != nil; m = m.Parent() {
		if m.Is("text/xml") || m.Is("application/xml") {
			return true
		}
	}
	return false
}
