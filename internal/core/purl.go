package core

import (
	"fmt"
	"strings"

	packageurl "github.com/package-url/packageurl-go"
)

// PURL wraps packageurl.PackageURL with registry-specific helpers.
type PURL struct {
	packageurl.PackageURL
}

// ParsePURL parses a Package URL string into its components.
func ParsePURL(purl string) (*PURL, error) {
	p, err := packageurl.FromString(purl)
	if err != nil {
		return nil, err
	}
	return &PURL{p}, nil
}

// IsPURL reports whether source is written as a Package URL.
func IsPURL(source string) bool {
	return strings.HasPrefix(source, "pkg:")
}

// DownloadURL returns the location a PURL source points at, taken from its
// download_url qualifier.
func (p PURL) DownloadURL() (string, error) {
	u := p.Qualifiers.Map()["download_url"]
	if u == "" {
		return "", fmt.Errorf("PURL has no download_url qualifier: %s", p.ToString())
	}
	return u, nil
}

// PURL renders the package identity as a generic Package URL carrying the
// source location in its download_url qualifier.
func (p PackageInfo) PURL() string {
	var qualifiers packageurl.Qualifiers
	if p.URL != "" {
		qualifiers = packageurl.QualifiersFromMap(map[string]string{"download_url": p.URL})
	}
	return packageurl.NewPackageURL(packageurl.TypeGeneric, "", p.Name, p.Version, qualifiers, "").ToString()
}
