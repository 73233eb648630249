// Package firewall installs and removes the outbound drop rules for the
// blocked region prefixes. Each platform provides one implementation of
// Firewall, selected at build time.
package firewall

import (
	"net/netip"
	"strings"

	"github.com/gajzzs/dropship/internal/errors"
	"github.com/gajzzs/dropship/internal/logging"
)

const (
	// ReservedName names the nftables table (both families) and the
	// Windows Firewall rule. Nothing else may use it.
	ReservedName = "dropship"

	// ChainName is the output-hook chain inside the reserved table.
	ChainName = "output"

	// ChainPriority places the chain after the default filter hooks.
	ChainPriority = 500

	// BatchSize bounds the number of blocks submitted in one transaction.
	BatchSize = 50
)

// Firewall is the platform rule compiler. Install always replaces whatever
// a previous Install left behind; Teardown is idempotent.
type Firewall interface {
	Install(blocks BlockSet) error
	Teardown() error
}

// Options configures a platform Firewall.
type Options struct {
	// AppPath is the game executable. Only the Windows rule is scoped to
	// it; on Linux scoping happens through the cgroup classifier.
	AppPath string

	// Name overrides ReservedName. Tests use it to stay out of the way of
	// a real installation.
	Name string

	Logger *logging.Logger
}

func (o Options) name() string {
	if o.Name != "" {
		return o.Name
	}
	return ReservedName
}

func (o Options) logger() *logging.Logger {
	if o.Logger != nil {
		return o.Logger.WithComponent("firewall")
	}
	return logging.WithComponent("firewall")
}

// BlockSet is an ordered list of destination networks to drop.
type BlockSet []netip.Prefix

// ParseBlocks parses CIDR strings. IPv4-mapped IPv6 addresses are unmapped
// so that they land in the IPv4 table.
func ParseBlocks(cidrs []string) (BlockSet, error) {
	blocks := make(BlockSet, 0, len(cidrs))
	for _, s := range cidrs {
		p, err := netip.ParsePrefix(strings.TrimSpace(s))
		if err != nil {
			return nil, errors.Wrapf(err, errors.KindValidation, "invalid prefix %q", s)
		}
		if p.Addr().Is4In6() {
			bits := p.Bits() - 96
			if bits < 0 {
				return nil, errors.Errorf(errors.KindValidation, "invalid prefix %q: mapped prefix shorter than /96", s)
			}
			p = netip.PrefixFrom(p.Addr().Unmap(), bits)
		}
		blocks = append(blocks, p)
	}
	return blocks, nil
}

// Chunks splits the set into consecutive batches of at most size blocks.
// An empty set yields a single empty batch so that the table and chain are
// still created.
func (b BlockSet) Chunks(size int) []BlockSet {
	if size <= 0 {
		size = BatchSize
	}
	if len(b) == 0 {
		return []BlockSet{{}}
	}
	chunks := make([]BlockSet, 0, (len(b)+size-1)/size)
	for start := 0; start < len(b); start += size {
		end := min(start+size, len(b))
		chunks = append(chunks, b[start:end])
	}
	return chunks
}

// IPv4 returns the IPv4 members in order.
func (b BlockSet) IPv4() BlockSet {
	return b.filter(func(p netip.Prefix) bool { return p.Addr().Is4() })
}

// IPv6 returns the IPv6 members in order.
func (b BlockSet) IPv6() BlockSet {
	return b.filter(func(p netip.Prefix) bool { return p.Addr().Is6() })
}

func (b BlockSet) filter(keep func(netip.Prefix) bool) BlockSet {
	var out BlockSet
	for _, p := range b {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out
}

// RemoteAddresses renders the set as the comma-joined "ip/bits" list used
// by the Windows Firewall rule.
func (b BlockSet) RemoteAddresses() string {
	parts := make([]string, len(b))
	for i, p := range b {
		parts[i] = p.String()
	}
	return strings.Join(parts, ",")
}

// Strings returns the canonical string form of every block.
func (b BlockSet) Strings() []string {
	out := make([]string, len(b))
	for i, p := range b {
		out[i] = p.String()
	}
	return out
}
