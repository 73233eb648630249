package app

import (
	"bytes"
	"fmt"
	"net/netip"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gajzzs/dropship/internal/config"
	"github.com/gajzzs/dropship/internal/errors"
	"github.com/gajzzs/dropship/internal/firewall"
	"github.com/gajzzs/dropship/internal/ping"
	"github.com/gajzzs/dropship/internal/regions"
)

func TestResolveSelectionFallsBackToPreferences(t *testing.T) {
	cfg := &config.Config{GamePath: "/games/app", Selected: []string{"blizzard/ams1"}}

	sel, err := resolveSelection(cfg, "", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "/games/app", sel.GamePath)
	assert.Equal(t, []string{"blizzard/ams1"}, sel.Keys)
}

func TestResolveSelectionArgumentsOverride(t *testing.T) {
	cfg := &config.Config{GamePath: "/games/app", Selected: []string{"blizzard/ams1"}}

	sel, err := resolveSelection(cfg, "/other/game", "", []string{"blizzard/ord1", "blizzard/las1"})
	require.NoError(t, err)
	assert.Equal(t, "/other/game", sel.GamePath)
	assert.Equal(t, []string{"blizzard/ord1", "blizzard/las1"}, sel.Keys)
}

func TestResolveSelectionErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  *config.Config
		args []string
		want string
	}{
		{"no game", &config.Config{Selected: []string{"blizzard/ams1"}}, nil, "no game selected"},
		{"no regions", &config.Config{GamePath: "/games/app"}, nil, "no regions selected"},
		{"unknown region", &config.Config{GamePath: "/games/app"}, []string{"mars/base1"}, "mars/base1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := resolveSelection(tt.cfg, "", "", tt.args)
			require.Error(t, err)
			assert.True(t, errors.IsKind(err, errors.KindValidation))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestResolveSelectionMissingCatalog(t *testing.T) {
	cfg := &config.Config{GamePath: "/games/app", Selected: []string{"x"}}
	_, err := resolveSelection(cfg, "", filepath.Join(t.TempDir(), "none.yaml"), nil)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindNotFound))
}

func TestRenderRegions(t *testing.T) {
	catalog := regions.Default()
	ams, _ := catalog.Get("blizzard/ams1")
	ord, _ := catalog.Get("blizzard/ord1")

	entries := []regions.Entry{
		{Region: ams, Ping: ping.Status{State: ping.Reachable, RTT: 17 * time.Millisecond}},
		{Region: ord, Ping: ping.Status{State: ping.Unreachable}},
	}

	var buf bytes.Buffer
	require.NoError(t, renderRegions(&buf, entries, map[string]bool{"blizzard/ord1": true}, true))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "PING")
	assert.Contains(t, lines[1], "Netherlands")
	assert.Contains(t, lines[1], "17ms")
	assert.False(t, strings.HasPrefix(lines[1], "*"))
	assert.True(t, strings.HasPrefix(lines[2], "*"))
	assert.Contains(t, lines[2], "unreachable")

	buf.Reset()
	require.NoError(t, renderRegions(&buf, entries, nil, false))
	assert.NotContains(t, buf.String(), "PING")
}

func TestPrintStatus(t *testing.T) {
	cfg := &config.Config{GamePath: "/games/app", Selected: []string{"blizzard/ams1"}}
	blocks := firewall.BlockSet{netip.MustParsePrefix("64.224.26.0/23")}

	var buf bytes.Buffer
	printStatus(&buf, cfg, true, &ruleReport{Blocks: blocks})
	out := buf.String()
	assert.Contains(t, out, "Status: Running")
	assert.Contains(t, out, "Game: /games/app")
	assert.Contains(t, out, "Regions: blizzard/ams1")
	assert.Contains(t, out, "Installed rules: 1 prefixes")
	assert.Contains(t, out, "64.224.26.0/23")

	buf.Reset()
	printStatus(&buf, &config.Config{}, false, nil)
	out = buf.String()
	assert.Contains(t, out, "Status: Stopped")
	assert.Contains(t, out, "Regions: none selected")
	assert.NotContains(t, out, "Installed rules")

	buf.Reset()
	printStatus(&buf, &config.Config{}, false, &ruleReport{Err: fmt.Errorf("operation not permitted")})
	assert.Contains(t, buf.String(), "unavailable (operation not permitted)")
}
