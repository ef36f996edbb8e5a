package inspect

import (
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"strings"
)

const (
	manifestName = "taxonomyPackage.xml"
	catalogName  = "catalog.xml"
	metaInfDir   = "META-INF"
)

// langString is an element that may repeat once per xml:lang.
type langString struct {
	Lang  string `xml:"http://www.w3.org/XML/1998/namespace lang,attr"`
	Value string `xml:",chardata"`
}

// taxonomyPackage holds the manifest fields the registry records.
// Element names are matched without regard to the namespace, which
// differs between the 2013 and 2016 package schemas.
type taxonomyPackage struct {
	XMLName         xml.Name
	Identifier      string       `xml:"identifier"`
	Names           []langString `xml:"name"`
	Descriptions    []langString `xml:"description"`
	Version         string       `xml:"version"`
	PublicationDate string       `xml:"publicationDate"`
}

type rewrite struct {
	SystemIDStart string `xml:"systemIdStartString,attr"`
	URIStart      string `xml:"uriStartString,attr"`
	RewritePrefix string `xml:"rewritePrefix,attr"`
}

func (r rewrite) prefix() string {
	if r.SystemIDStart != "" {
		return r.SystemIDStart
	}
	return r.URIStart
}

type catalogGroup struct {
	RewriteSystem []rewrite `xml:"rewriteSystem"`
	RewriteURI    []rewrite `xml:"rewriteURI"`
}

type catalog struct {
	XMLName xml.Name
	catalogGroup
	Groups []catalogGroup `xml:"group"`
}

func (c *catalog) rewrites() []rewrite {
	var out []rewrite
	for _, g := range append([]catalogGroup{c.catalogGroup}, c.Groups...) {
		out = append(out, g.RewriteSystem...)
		out = append(out, g.RewriteURI...)
	}
	return out
}

// rootElement returns the local name of the document element.
func rootElement(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", err
		}
		if se, ok := tok.(xml.StartElement); ok {
			return se.Name.Local, nil
		}
	}
}

func parseManifest(r io.Reader) (*taxonomyPackage, error) {
	var tp taxonomyPackage
	if err := xml.NewDecoder(r).Decode(&tp); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", manifestName, err)
	}
	if tp.XMLName.Local != "taxonomyPackage" {
		return nil, fmt.Errorf("parsing %s: unexpected root element %q", manifestName, tp.XMLName.Local)
	}
	return &tp, nil
}

func parseCatalog(r io.Reader) (*catalog, error) {
	var c catalog
	if err := xml.NewDecoder(r).Decode(&c); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", catalogName, err)
	}
	if c.XMLName.Local != "catalog" {
		return nil, fmt.Errorf("parsing %s: unexpected root element %q", catalogName, c.XMLName.Local)
	}
	return &c, nil
}

// preferred picks the English or untagged value, else the first non-empty one.
func preferred(values []langString) string {
	var first string
	for _, v := range values {
		text := strings.TrimSpace(v.Value)
		if text == "" {
			continue
		}
		if v.Lang == "" || strings.HasPrefix(strings.ToLower(v.Lang), "en") {
			return text
		}
		if first == "" {
			first = text
		}
	}
	return first
}

// remappings resolves catalog rewrites against base, the slash-separated
// location of the directory holding catalog.xml.
func (c *catalog) remappings(base string) map[string]string {
	out := make(map[string]string)
	for _, rw := range c.rewrites() {
		prefix := strings.TrimSpace(rw.prefix())
		if prefix == "" {
			continue
		}
		out[prefix] = rewriteTarget(base, strings.TrimSpace(rw.RewritePrefix))
	}
	return out
}

func rewriteTarget(base, prefix string) string {
	if isAbsolute(prefix) {
		return prefix
	}
	target := path.Join(base, prefix)
	if strings.HasSuffix(prefix, "/") || prefix == "" {
		target += "/"
	}
	return target
}

func isAbsolute(ref string) bool {
	if strings.HasPrefix(ref, "/") {
		return true
	}
	if i := strings.Index(ref, "://"); i > 1 {
		return true
	}
	return false
}
