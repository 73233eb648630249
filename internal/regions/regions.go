// Package regions holds the catalog of matchmaking regions and the
// networks each one serves from.
package regions

import (
	"net/netip"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/gajzzs/dropship/internal/errors"
	"github.com/gajzzs/dropship/internal/firewall"
)

// Region is one selectable matchmaking region.
type Region struct {
	Key      string
	Name     string
	Code     string
	Ping     netip.Addr
	Prefixes firewall.BlockSet
}

// Catalog is an immutable set of regions keyed by Region.Key.
type Catalog struct {
	regions []Region
	byKey   map[string]int
}

// File is the on-disk catalog format.
type File struct {
	Regions []FileRegion `yaml:"regions"`
}

type FileRegion struct {
	Key      string   `yaml:"key"`
	Name     string   `yaml:"name"`
	Code     string   `yaml:"code"`
	Ping     string   `yaml:"ping,omitempty"`
	Prefixes []string `yaml:"prefixes"`
}

// NewCatalog validates regions and builds a catalog ordered by name. Keys
// must be unique and non-empty.
func NewCatalog(regions []Region) (*Catalog, error) {
	c := &Catalog{
		regions: make([]Region, 0, len(regions)),
		byKey:   make(map[string]int, len(regions)),
	}
	for _, r := range regions {
		if r.Key == "" {
			return nil, errors.Errorf(errors.KindValidation, "region %q has no key", r.Name)
		}
		if _, dup := c.byKey[r.Key]; dup {
			return nil, errors.Errorf(errors.KindValidation, "duplicate region key %q", r.Key)
		}
		r.Prefixes = append(firewall.BlockSet(nil), r.Prefixes...)
		c.byKey[r.Key] = len(c.regions)
		c.regions = append(c.regions, r)
	}

	sort.SliceStable(c.regions, func(i, j int) bool {
		return c.regions[i].Name < c.regions[j].Name
	})
	for i, r := range c.regions {
		c.byKey[r.Key] = i
	}
	return c, nil
}

// Default builds the built-in catalog.
func Default() *Catalog {
	f := File{Regions: make([]FileRegion, 0, len(builtin))}
	for _, b := range builtin {
		f.Regions = append(f.Regions, FileRegion{
			Key:      b.key,
			Name:     b.name,
			Code:     b.code,
			Ping:     b.ping,
			Prefixes: strings.Split(b.prefixes, ","),
		})
	}
	c, err := f.Catalog()
	if err != nil {
		panic("regions: invalid built-in catalog: " + err.Error())
	}
	return c
}

// Load reads a YAML catalog. An empty path selects the built-in one.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(err, errors.KindNotFound, "region catalog %s not found", path)
		}
		return nil, errors.Wrapf(err, errors.KindInternal, "failed to read region catalog %s", path)
	}
	return Parse(data)
}

// Parse decodes a YAML catalog.
func Parse(data []byte) (*Catalog, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, errors.KindValidation, "invalid region catalog")
	}
	return f.Catalog()
}

// Catalog converts the file form, parsing every address.
func (f File) Catalog() (*Catalog, error) {
	regions := make([]Region, 0, len(f.Regions))
	for _, fr := range f.Regions {
		r := Region{Key: fr.Key, Name: fr.Name, Code: fr.Code}
		if fr.Ping != "" {
			addr, err := netip.ParseAddr(strings.TrimSpace(fr.Ping))
			if err != nil {
				return nil, errors.Wrapf(err, errors.KindValidation, "region %s: invalid ping address", fr.Key)
			}
			r.Ping = addr
		}
		blocks, err := firewall.ParseBlocks(fr.Prefixes)
		if err != nil {
			return nil, errors.Wrapf(err, errors.KindValidation, "region %s", fr.Key)
		}
		r.Prefixes = blocks
		regions = append(regions, r)
	}
	return NewCatalog(regions)
}

// File returns the catalog in its on-disk form.
func (c *Catalog) File() File {
	f := File{Regions: make([]FileRegion, 0, len(c.regions))}
	for _, r := range c.regions {
		fr := FileRegion{Key: r.Key, Name: r.Name, Code: r.Code, Prefixes: r.Prefixes.Strings()}
		if r.Ping.IsValid() {
			fr.Ping = r.Ping.String()
		}
		f.Regions = append(f.Regions, fr)
	}
	return f
}

// Regions returns every region ordered by name.
func (c *Catalog) Regions() []Region {
	out := make([]Region, len(c.regions))
	copy(out, c.regions)
	return out
}

// Get looks a region up by key.
func (c *Catalog) Get(key string) (Region, bool) {
	i, ok := c.byKey[key]
	if !ok {
		return Region{}, false
	}
	return c.regions[i], true
}

// Keys returns every key in catalog order.
func (c *Catalog) Keys() []string {
	keys := make([]string, len(c.regions))
	for i, r := range c.regions {
		keys[i] = r.Key
	}
	return keys
}

// Blocks returns the networks of the selected regions in selection order.
// A key listed twice contributes once; unknown keys are rejected.
func (c *Catalog) Blocks(keys []string) (firewall.BlockSet, error) {
	var unknown []string
	seen := make(map[string]bool, len(keys))
	var blocks firewall.BlockSet
	for _, key := range keys {
		if seen[key] {
			continue
		}
		seen[key] = true
		r, ok := c.Get(key)
		if !ok {
			unknown = append(unknown, key)
			continue
		}
		blocks = append(blocks, r.Prefixes...)
	}
	if len(unknown) > 0 {
		return nil, errors.Errorf(errors.KindValidation, "unknown region(s): %s", strings.Join(unknown, ", "))
	}
	return blocks, nil
}

// PingTargets maps each region key to its ping address.
func (c *Catalog) PingTargets() map[string]netip.Addr {
	out := make(map[string]netip.Addr, len(c.regions))
	for _, r := range c.regions {
		out[r.Key] = r.Ping
	}
	return out
}
