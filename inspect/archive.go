package inspect

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/git-pkgs/taxonomy/internal/core"
)

// maxManifestSize bounds how much of a manifest or catalog is read.
const maxManifestSize = 16 << 20

// inspectArchive reads the manifest and catalog of a zipped package.
// Packages normally wrap META-INF in a single top-level directory; the
// shallowest META-INF entries win.
func inspectArchive(archivePath string) (*core.PackageInfo, error) {
	rc, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	defer func() { _ = rc.Close() }()

	manifestEntry := findEntry(rc.File, manifestName)
	catalogEntry := findEntry(rc.File, catalogName)
	if manifestEntry == nil && catalogEntry == nil {
		return nil, nil
	}

	info := &core.PackageInfo{Status: core.StatusEnabled, Remappings: map[string]string{}}
	if err := stampFileDate(info, archivePath); err != nil {
		return nil, err
	}

	if manifestEntry != nil {
		data, err := readEntry(manifestEntry)
		if err != nil {
			return nil, err
		}
		tp, err := parseManifest(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		applyManifest(info, tp)
	}

	if catalogEntry != nil {
		data, err := readEntry(catalogEntry)
		if err != nil {
			return nil, err
		}
		cat, err := parseCatalog(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		base := filepath.ToSlash(archivePath) + "/" + path.Dir(catalogEntry.Name)
		info.Remappings = cat.remappings(base)
	}
	return info, nil
}

// inspectManifestFile reads an extracted package from its taxonomyPackage.xml
// or catalog.xml; the other file is looked up next to it.
func inspectManifestFile(p string) (*core.PackageInfo, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	root, err := rootElement(io.LimitReader(f, maxManifestSize))
	_ = f.Close()
	if err != nil {
		return nil, nil
	}

	dir := filepath.Dir(p)
	var manifestPath, catalogPath string
	switch root {
	case "taxonomyPackage":
		manifestPath = p
		catalogPath = filepath.Join(dir, catalogName)
	case "catalog":
		catalogPath = p
		manifestPath = filepath.Join(dir, manifestName)
	default:
		return nil, nil
	}

	info := &core.PackageInfo{Status: core.StatusEnabled, Remappings: map[string]string{}}
	if err := stampFileDate(info, p); err != nil {
		return nil, err
	}

	if data, err := readFile(manifestPath); err == nil {
		tp, err := parseManifest(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		applyManifest(info, tp)
	} else if manifestPath == p {
		return nil, err
	}

	if data, err := readFile(catalogPath); err == nil {
		cat, err := parseCatalog(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		info.Remappings = cat.remappings(filepath.ToSlash(dir))
	} else if catalogPath == p {
		return nil, err
	}
	return info, nil
}

func applyManifest(info *core.PackageInfo, tp *taxonomyPackage) {
	info.Name = preferred(tp.Names)
	if info.Name == "" {
		info.Name = strings.TrimSpace(tp.Identifier)
	}
	info.Version = strings.TrimSpace(tp.Version)
	info.Description = preferred(tp.Descriptions)
}

func stampFileDate(info *core.PackageInfo, p string) error {
	fi, err := os.Stat(p)
	if err != nil {
		return err
	}
	info.FileDate = core.FormatFileDate(fi.ModTime())
	return nil
}

// findEntry returns the shallowest META-INF/<name> entry.
func findEntry(files []*zip.File, name string) *zip.File {
	var best *zip.File
	bestDepth := -1
	suffix := metaInfDir + "/" + name
	for _, f := range files {
		entry := strings.TrimPrefix(f.Name, "/")
		if entry != suffix && !strings.HasSuffix(entry, "/"+suffix) {
			continue
		}
		depth := strings.Count(entry, "/")
		if best == nil || depth < bestDepth {
			best, bestDepth = f, depth
		}
	}
	return best
}

func readEntry(f *zip.File) ([]byte, error) {
	r, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", f.Name, err)
	}
	defer func() { _ = r.Close() }()
	return io.ReadAll(io.LimitReader(r, maxManifestSize))
}

func readFile(p string) ([]byte, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return io.ReadAll(io.LimitReader(f, maxManifestSize))
}
