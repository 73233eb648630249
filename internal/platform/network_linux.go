//go:build linux

package platform

import (
	"net"
	"net/netip"

	"github.com/vishvananda/netlink"

	"github.com/gajzzs/dropship/internal/errors"
)

type linuxConnectionFlusher struct{}

func newConnectionFlusher() ConnectionFlusher {
	return &linuxConnectionFlusher{}
}

// FlushConnections deletes conntrack entries whose original destination
// lies in one of blocks and returns how many were removed.
func (f *linuxConnectionFlusher) FlushConnections(blocks []netip.Prefix) (uint, error) {
	v4, v6, err := conntrackFilters(blocks)
	if err != nil {
		return 0, err
	}

	var total uint
	for _, fam := range []struct {
		family  netlink.InetFamily
		filters []netlink.CustomConntrackFilter
	}{
		{netlink.FAMILY_V4, v4},
		{netlink.FAMILY_V6, v6},
	} {
		if len(fam.filters) == 0 {
			continue
		}
		n, err := netlink.ConntrackDeleteFilters(netlink.ConntrackTable, fam.family, fam.filters...)
		total += n
		if err != nil {
			return total, errors.Wrap(err, errors.KindInternal, "failed to flush conntrack entries")
		}
	}
	return total, nil
}

func conntrackFilters(blocks []netip.Prefix) (v4, v6 []netlink.CustomConntrackFilter, err error) {
	for _, block := range blocks {
		block = block.Masked()
		ipNet := &net.IPNet{
			IP:   block.Addr().AsSlice(),
			Mask: net.CIDRMask(block.Bits(), block.Addr().BitLen()),
		}

		filter := &netlink.ConntrackFilter{}
		if err := filter.AddIPNet(netlink.ConntrackOrigDstIP, ipNet); err != nil {
			return nil, nil, errors.Wrapf(err, errors.KindValidation, "invalid conntrack filter %s", block)
		}

		if block.Addr().Is4() {
			v4 = append(v4, filter)
		} else {
			v6 = append(v6, filter)
		}
	}
	return v4, v6, nil
}
