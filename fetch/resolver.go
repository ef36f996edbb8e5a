package fetch

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/git-pkgs/taxonomy/internal/core"
)

var (
	ErrEmptySource       = errors.New("empty package source")
	ErrUnsupportedScheme = errors.New("unsupported source scheme")
)

// Kind tells whether a source is read from disk or from the web.
type Kind int

const (
	Local Kind = iota
	Remote
)

func (k Kind) String() string {
	if k == Remote {
		return "remote"
	}
	return "local"
}

// Location is a resolved package source.
type Location struct {
	Source string // as given by the caller
	Kind   Kind
	Path   string // set for Local
	URL    string // set for Remote
}

// Filename returns the last element of the location.
func (l *Location) Filename() string {
	if l.Kind == Remote {
		return filenameFromURL(l.URL)
	}
	return filepath.Base(l.Path)
}

// Resolve classifies a source string as a local path or a web URL.
// Package URLs (pkg:...) are followed through their download_url qualifier,
// and file:// URLs become local paths.
func Resolve(source string) (*Location, error) {
	loc, err := resolve(source, true)
	if err != nil {
		return nil, err
	}
	loc.Source = source
	return loc, nil
}

func resolve(source string, followPURL bool) (*Location, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, ErrEmptySource
	}

	if core.IsPURL(source) {
		if !followPURL {
			return nil, fmt.Errorf("%w: nested package URL %s", ErrUnsupportedScheme, source)
		}
		p, err := core.ParsePURL(source)
		if err != nil {
			return nil, fmt.Errorf("parsing package URL: %w", err)
		}
		target, err := p.DownloadURL()
		if err != nil {
			return nil, err
		}
		return resolve(target, false)
	}

	u, err := url.Parse(source)
	// Single-letter schemes are Windows drive letters.
	if err != nil || len(u.Scheme) <= 1 {
		return &Location{Kind: Local, Path: filepath.Clean(source)}, nil
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return &Location{Kind: Remote, URL: source}, nil
	case "file":
		return &Location{Kind: Local, Path: filepath.Clean(filepath.FromSlash(u.Path))}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, u.Scheme)
	}
}

func filenameFromURL(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil {
		rawURL = u.Path
	}
	if idx := strings.LastIndex(rawURL, "/"); idx >= 0 {
		return rawURL[idx+1:]
	}
	return rawURL
}
