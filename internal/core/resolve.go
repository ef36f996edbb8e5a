package core

import (
	"maps"
	"slices"
)

// Resolve builds the prefix to target table from the enabled entries.
// Entries are applied in list order, so when two enabled packages declare
// the same prefix the later one wins.
func Resolve(entries []PackageInfo) map[string]string {
	resolved := make(map[string]string)
	for _, e := range entries {
		if !e.Enabled() {
			continue
		}
		for prefix, target := range e.Remappings {
			resolved[prefix] = target
		}
	}
	return resolved
}

// SortRemappings returns the table as prefix-ordered pairs.
func SortRemappings(table map[string]string) []Remapping {
	out := make([]Remapping, 0, len(table))
	for _, prefix := range slices.Sorted(maps.Keys(table)) {
		out = append(out, Remapping{Prefix: prefix, Target: table[prefix]})
	}
	return out
}
