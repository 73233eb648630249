package regions

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/gajzzs/dropship/internal/errors"
	"github.com/gajzzs/dropship/internal/ping"
)

func TestDefaultCatalog(t *testing.T) {
	c := Default()

	assert.Len(t, c.Regions(), 11)

	tpe, ok := c.Get("blizzard/tpe1")
	require.True(t, ok)
	assert.Equal(t, "Taiwan", tpe.Name)
	assert.Equal(t, "TPE1", tpe.Code)
	assert.Equal(t, "34.80.0.0", tpe.Ping.String())
	assert.Equal(t, []string{"5.42.160.0/22", "5.42.164.0/22"}, tpe.Prefixes.Strings())

	fin, ok := c.Get("google/europe-north1")
	require.True(t, ok)
	assert.Len(t, fin.Prefixes.IPv6(), 1)

	regions := c.Regions()
	for i := 1; i < len(regions); i++ {
		assert.LessOrEqual(t, regions[i-1].Name, regions[i].Name)
	}
}

func TestDefaultIsFreshEveryCall(t *testing.T) {
	a := Default()
	regions := a.Regions()
	regions[0].Name = "changed"

	b := Default()
	assert.NotEqual(t, "changed", b.Regions()[0].Name)
	assert.NotEqual(t, "changed", a.Regions()[0].Name)
}

func TestBlocks(t *testing.T) {
	c := Default()

	blocks, err := c.Blocks([]string{"blizzard/syd2", "blizzard/ams1", "blizzard/syd2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"158.115.196.0/23", "64.224.26.0/23"}, blocks.Strings())

	blocks, err = c.Blocks(nil)
	require.NoError(t, err)
	assert.Empty(t, blocks)
}

func TestBlocksRejectsUnknownKeys(t *testing.T) {
	_, err := Default().Blocks([]string{"blizzard/ord1", "blizzard/nowhere", "mars/olympus"})
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindValidation))
	assert.Contains(t, err.Error(), "blizzard/nowhere, mars/olympus")
}

const testCatalog = `
regions:
  - key: test
    name: Test Net
    code: TST1
    ping: 203.0.113.1
    prefixes:
      - 203.0.113.0/24
  - key: other
    name: Another
    code: OTH1
    prefixes: ["198.51.100.0/24", "2001:db8::/32"]
`

func TestParse(t *testing.T) {
	c, err := Parse([]byte(testCatalog))
	require.NoError(t, err)

	assert.Equal(t, []string{"other", "test"}, c.Keys())

	blocks, err := c.Blocks([]string{"test"})
	require.NoError(t, err)
	assert.Equal(t, []string{"203.0.113.0/24"}, blocks.Strings())

	other, _ := c.Get("other")
	assert.False(t, other.Ping.IsValid())
	assert.Equal(t, "2001:db8::/32", other.Prefixes.IPv6()[0].String())
}

func TestParseRejectsInvalidCatalogs(t *testing.T) {
	tests := map[string]string{
		"bad yaml":      "regions: [",
		"bad prefix":    "regions:\n  - key: a\n    prefixes: [300.0.0.0/8]\n",
		"bad ping":      "regions:\n  - key: a\n    ping: nope\n",
		"missing key":   "regions:\n  - name: A\n",
		"duplicate key": "regions:\n  - key: a\n  - key: a\n",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(data))
			require.Error(t, err)
			assert.True(t, errors.IsKind(err, errors.KindValidation))
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "regions.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testCatalog), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, c.Regions(), 2)

	c, err = Load("")
	require.NoError(t, err)
	assert.Len(t, c.Regions(), 11)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errors.IsKind(err, errors.KindNotFound))
}

func TestFileRoundTripsDefault(t *testing.T) {
	data, err := yaml.Marshal(Default().File())
	require.NoError(t, err)

	c, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, Default().Keys(), c.Keys())
}

func TestSort(t *testing.T) {
	c, err := Parse([]byte(testCatalog))
	require.NoError(t, err)
	test, _ := c.Get("test")
	other, _ := c.Get("other")

	entries := []Entry{
		{Region: test, Ping: ping.Status{State: ping.Reachable, RTT: 80 * time.Millisecond}},
		{Region: other, Ping: ping.Status{State: ping.Unreachable}},
	}

	Sort(entries, SortByName, true)
	assert.Equal(t, "other", entries[0].Region.Key)

	Sort(entries, SortByName, false)
	assert.Equal(t, "test", entries[0].Region.Key)

	Sort(entries, SortByPing, true)
	assert.Equal(t, "test", entries[0].Region.Key, "unreachable sorts as 1000ms")

	Sort(entries, SortByPing, false)
	assert.Equal(t, "other", entries[0].Region.Key)
}

func TestParseSortBy(t *testing.T) {
	by, err := ParseSortBy("Ping")
	require.NoError(t, err)
	assert.Equal(t, SortByPing, by)

	by, err = ParseSortBy("")
	require.NoError(t, err)
	assert.Equal(t, SortByName, by)

	_, err = ParseSortBy("latency")
	assert.True(t, errors.IsKind(err, errors.KindValidation))
}
