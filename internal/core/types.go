// Package core provides the package registry, remapping resolution and staleness detection.
package core

import (
	"maps"
	"slices"
	"sort"
)

// Status governs whether a package's remappings participate in resolution.
type Status string

const (
	StatusEnabled  Status = "enabled"
	StatusDisabled Status = "disabled"
)

// PackageInfo describes one registered taxonomy package.
type PackageInfo struct {
	Name        string            `json:"name" toml:"name" yaml:"name"`
	Version     string            `json:"version" toml:"version" yaml:"version"`
	Description string            `json:"description" toml:"description" yaml:"description"`
	Status      Status            `json:"status" toml:"status" yaml:"status"`
	// URL is the local path or web URL the package was loaded from.
	URL         string            `json:"URL" toml:"URL" yaml:"URL"`
	// FileDate is the source modification date at last load, in FileDateLayout.
	FileDate    string            `json:"fileDate" toml:"fileDate" yaml:"fileDate"`
	Remappings  map[string]string `json:"remappings" toml:"remappings" yaml:"remappings"`
}

// Key identifies a package by name and version.
type Key struct {
	Name    string
	Version string
}

// Key returns the (name, version) identity of the package.
func (p PackageInfo) Key() Key {
	return Key{Name: p.Name, Version: p.Version}
}

// Enabled reports whether the package contributes to resolution.
func (p PackageInfo) Enabled() bool {
	return p.Status == StatusEnabled
}

// Prefixes returns the remapped prefixes in sorted order.
func (p PackageInfo) Prefixes() []string {
	return slices.Sorted(maps.Keys(p.Remappings))
}

// Clone returns a deep copy so callers never share the remappings map.
func (p PackageInfo) Clone() PackageInfo {
	c := p
	if p.Remappings != nil {
		c.Remappings = maps.Clone(p.Remappings)
	}
	return c
}

// Equal reports whether two package descriptions are identical.
func (p PackageInfo) Equal(o PackageInfo) bool {
	return p.Name == o.Name &&
		p.Version == o.Version &&
		p.Description == o.Description &&
		p.Status == o.Status &&
		p.URL == o.URL &&
		p.FileDate == o.FileDate &&
		maps.Equal(p.Remappings, o.Remappings)
}

// State is the persisted shape of the registry.
// Remappings is the last resolved table and is treated as a cache on load.
type State struct {
	Packages   []PackageInfo     `json:"packages" toml:"packages" yaml:"packages"`
	Remappings map[string]string `json:"remappings" toml:"remappings" yaml:"remappings"`
}

// Remapping is one prefix to target pair of the resolved table.
type Remapping struct {
	Prefix string
	Target string
}

// Row is a read-only projection of one registry entry for display.
type Row struct {
	Index           int
	Name            string
	Version         string
	Status          Status
	FileDate        string
	UpdateAvailable bool
	Description     string
	URL             string
	Prefixes        []string
}

// NameSet is a set of package names.
type NameSet map[string]struct{}

// NewNameSet builds a set from names.
func NewNameSet(names ...string) NameSet {
	s := make(NameSet, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

// Has reports whether name is in the set.
func (s NameSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Sorted returns the names in lexical order.
func (s NameSet) Sorted() []string {
	names := make([]string, 0, len(s))
	for n := range s {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
