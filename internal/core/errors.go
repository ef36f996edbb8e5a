package core

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAPackage is returned when a source exists but holds no taxonomy package.
	ErrNotAPackage = errors.New("not a taxonomy package")

	// ErrSourceUnreachable is returned when a package source cannot be read.
	ErrSourceUnreachable = errors.New("package source unreachable")
)

// IndexOutOfRangeError is returned by index-based operations given an invalid entry index.
type IndexOutOfRangeError struct {
	Index int
	Len   int
}

func (e *IndexOutOfRangeError) Error() string {
	return fmt.Sprintf("index %d out of range [0,%d)", e.Index, e.Len)
}

// ReloadError describes a failed reload or add of a package source.
type ReloadError struct {
	Name    string
	Version string
	URL     string
	Err     error
}

func (e *ReloadError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("package %s %s cannot be reloaded from %s: %v", e.Name, e.Version, e.URL, e.Err)
	}
	return fmt.Sprintf("package cannot be loaded from %s: %v", e.URL, e.Err)
}

func (e *ReloadError) Unwrap() error {
	return e.Err
}
