package regions

import (
	"sort"
	"strings"

	"github.com/gajzzs/dropship/internal/errors"
	"github.com/gajzzs/dropship/internal/ping"
)

// UnknownPingMillis is the latency assumed for regions that have not
// answered, so that they sort after every responsive one.
const UnknownPingMillis = 1000

type SortBy int

const (
	SortByName SortBy = iota
	SortByPing
)

func (s SortBy) String() string {
	if s == SortByPing {
		return "ping"
	}
	return "name"
}

// ParseSortBy accepts "name" or "ping".
func ParseSortBy(s string) (SortBy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "name":
		return SortByName, nil
	case "ping":
		return SortByPing, nil
	}
	return SortByName, errors.Errorf(errors.KindValidation, "unknown sort property %q (valid: name, ping)", s)
}

// Entry pairs a region with its latest probe result.
type Entry struct {
	Region Region
	Ping   ping.Status
}

// Sort orders entries in place by the given property.
func Sort(entries []Entry, by SortBy, ascending bool) {
	less := func(a, b Entry) bool {
		if by == SortByPing {
			return a.Ping.MillisOr(UnknownPingMillis) < b.Ping.MillisOr(UnknownPingMillis)
		}
		return a.Region.Name < b.Region.Name
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if ascending {
			return less(entries[i], entries[j])
		}
		return less(entries[j], entries[i])
	})
}
