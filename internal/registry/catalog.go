package registry

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"modelhost/pkg/types"
)

// Catalog is the set of remote models that can be pulled by name.
type Catalog struct {
	entries []types.RemoteModel
}

// NewCatalog validates entries and rejects duplicate names.
func NewCatalog(entries []types.RemoteModel) (*Catalog, error) {
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("catalog entry %q: %w", e.Name, err)
		}
		k := strings.ToLower(e.Name)
		if seen[k] {
			return nil, fmt.Errorf("catalog entry %q: duplicate name", e.Name)
		}
		seen[k] = true
	}
	return &Catalog{entries: append([]types.RemoteModel(nil), entries...)}, nil
}

// Entries returns a copy of the catalog.
func (c *Catalog) Entries() []types.RemoteModel {
	if c == nil {
		return nil
	}
	return append([]types.RemoteModel(nil), c.entries...)
}

// Lookup finds an entry by name, case-insensitively.
func (c *Catalog) Lookup(name string) (types.RemoteModel, bool) {
	if c == nil {
		return types.RemoteModel{}, false
	}
	for _, e := range c.entries {
		if strings.EqualFold(e.Name, name) {
			return e, true
		}
	}
	return types.RemoteModel{}, false
}

// Resolve turns a catalog name or a direct http(s) URL into a remote model.
// Direct URLs get their name from the last path segment.
func (c *Catalog) Resolve(source string) (types.RemoteModel, error) {
	if e, ok := c.Lookup(source); ok {
		return e, nil
	}
	u, err := url.Parse(source)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return types.RemoteModel{}, fmt.Errorf("unknown model %q: not in catalog and not an http(s) URL", source)
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return types.RemoteModel{}, fmt.Errorf("cannot derive a file name from %q", source)
	}
	return types.RemoteModel{Name: strings.TrimSuffix(name, path.Ext(name)), URL: source}, nil
}

// FileName returns the on-disk file name for a remote model.
func FileName(m types.RemoteModel) string {
	if u, err := url.Parse(m.URL); err == nil {
		if base := path.Base(u.Path); strings.EqualFold(path.Ext(base), ".onnx") {
			return base
		}
	}
	return m.Name + ".onnx"
}
