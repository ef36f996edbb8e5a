package core

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// FileDateLayout is the layout used for PackageInfo.FileDate.
const FileDateLayout = "2006-01-02T15:04:05 UTC"

// Layouts accepted by ParseFileDate besides FileDateLayout and the HTTP date formats.
var fileDateLayouts = []string{
	FileDateLayout,
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// FormatFileDate renders t in FileDateLayout.
func FormatFileDate(t time.Time) string {
	return NormalizeTime(t).Format(FileDateLayout)
}

// NormalizeTime converts t to UTC at second resolution, the precision
// FileDate values are stored with.
func NormalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// ParseFileDate parses a stored or remote date into a normalized timestamp.
// It accepts FileDateLayout, RFC 3339 and the HTTP Last-Modified formats.
func ParseFileDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty file date")
	}
	for _, layout := range fileDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return NormalizeTime(t), nil
		}
	}
	if t, err := http.ParseTime(s); err == nil {
		return NormalizeTime(t), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized file date %q", s)
}
