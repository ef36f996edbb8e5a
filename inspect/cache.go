package inspect

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/git-pkgs/taxonomy/internal/metrics"
)

// cachePath maps a web URL to <cacheDir>/<host>/<path>.
func (i *Inspector) cachePath(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parsing %s: %w", rawURL, err)
	}
	p := path.Clean("/" + u.Path)
	if p == "/" {
		p = "/index"
	}
	host := strings.ReplaceAll(u.Host, ":", "_")
	return filepath.Join(i.cacheDir, host, filepath.FromSlash(strings.TrimPrefix(p, "/"))), nil
}

// download copies rawURL into the cache and returns the local path. A cached
// copy is reused unless forceReload is set. The file's mtime is set to the
// server's Last-Modified so the fileDate reflects the published package.
func (i *Inspector) download(ctx context.Context, rawURL string, forceReload bool) (string, error) {
	dest, err := i.cachePath(rawURL)
	if err != nil {
		return "", err
	}
	if !forceReload {
		if fi, err := os.Stat(dest); err == nil && fi.Mode().IsRegular() {
			metrics.RecordDownload("cached")
			return dest, nil
		}
	}

	artifact, err := i.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		metrics.RecordDownload("error")
		return "", err
	}
	defer func() { _ = artifact.Body.Close() }()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return "", err
	}
	tmpName := tmp.Name()
	n, err := io.Copy(tmp, artifact.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmpName)
		metrics.RecordDownload("error")
		return "", fmt.Errorf("downloading %s: %w", rawURL, err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		_ = os.Remove(tmpName)
		return "", err
	}
	if !artifact.LastModified.IsZero() {
		if err := os.Chtimes(dest, artifact.LastModified, artifact.LastModified); err != nil {
			i.logger.Warn("setting cached file date", zap.String("path", dest), zap.Error(err))
		}
	}

	metrics.RecordDownload("fetched")
	i.logger.Info("downloaded package",
		zap.String("url", rawURL),
		zap.String("path", dest),
		zap.Int64("bytes", n))
	return dest, nil
}
