//go:build linux

package firewall

import (
	"net"
	"net/netip"

	"github.com/google/nftables"
	"github.com/google/nftables/binaryutil"
	"github.com/google/nftables/expr"
	"golang.org/x/sys/unix"

	"github.com/gajzzs/dropship/internal/cgroup"
	"github.com/gajzzs/dropship/internal/errors"
	"github.com/gajzzs/dropship/internal/logging"
)

const (
	ipv4DstOffset = 16
	ipv4AddrLen   = 4
	ipv6DstOffset = 24
	ipv6AddrLen   = 16
)

// family describes one address family's table and header layout.
type family struct {
	name      string
	table     nftables.TableFamily
	nfproto   byte
	dstOffset uint32
	addrLen   uint32
	members   func(BlockSet) BlockSet
}

var families = []family{
	{"ip", nftables.TableFamilyIPv4, unix.NFPROTO_IPV4, ipv4DstOffset, ipv4AddrLen, BlockSet.IPv4},
	{"ip6", nftables.TableFamilyIPv6, unix.NFPROTO_IPV6, ipv6DstOffset, ipv6AddrLen, BlockSet.IPv6},
}

// NFTablesConn is the subset of *nftables.Conn the compiler needs. Every
// Flush submits the queued messages as one batch and processes the
// kernel's acknowledgements.
type NFTablesConn interface {
	AddTable(t *nftables.Table) *nftables.Table
	DelTable(t *nftables.Table)
	ListTablesOfFamily(family nftables.TableFamily) ([]*nftables.Table, error)
	AddChain(c *nftables.Chain) *nftables.Chain
	AddRule(r *nftables.Rule) *nftables.Rule
	GetRules(t *nftables.Table, c *nftables.Chain) ([]*nftables.Rule, error)
	Flush() error
}

// NFTables compiles block sets into the reserved nftables tables.
type NFTables struct {
	conn    NFTablesConn
	name    string
	classID uint32
	log     *logging.Logger
}

// New opens a netlink connection to nf_tables.
func New(opts Options) (Firewall, error) {
	conn, err := nftables.New()
	if err != nil {
		return nil, errors.Wrap(err, errors.KindFirewall, "failed to open nftables connection")
	}
	return NewNFTables(conn, opts), nil
}

// NewNFTables builds the compiler on top of an existing connection.
func NewNFTables(conn NFTablesConn, opts Options) *NFTables {
	return &NFTables{
		conn:    conn,
		name:    opts.name(),
		classID: cgroup.ClassID,
		log:     opts.logger(),
	}
}

// Install replaces the reserved tables with drop rules for blocks. Each
// chunk of at most BatchSize blocks is committed as one batch per family.
// A failed batch removes the tables again.
func (n *NFTables) Install(blocks BlockSet) error {
	if err := n.Teardown(); err != nil {
		return err
	}

	for i, chunk := range blocks.Chunks(BatchSize) {
		for _, fam := range families {
			table := &nftables.Table{Name: n.name, Family: fam.table}
			if i == 0 {
				n.conn.AddTable(table)
			}
			chain := n.conn.AddChain(outputChain(table))

			for _, block := range fam.members(chunk) {
				n.conn.AddRule(n.dropRule(table, chain, fam, block))
			}

			if err := n.conn.Flush(); err != nil {
				// earlier batches are live; drop them with the tables
				_ = n.Teardown()
				return errors.Wrapf(err, errors.KindFirewall, "failed to commit %s batch %d", fam.name, i)
			}
		}
	}

	n.log.Info("installed drop rules", "table", n.name, "blocks", len(blocks))
	return nil
}

// Teardown deletes the reserved table in both families. A missing table is
// not an error.
func (n *NFTables) Teardown() error {
	for _, fam := range families {
		n.conn.DelTable(&nftables.Table{Name: n.name, Family: fam.table})
		if err := n.conn.Flush(); err != nil {
			n.log.Debug("table not removed", "table", n.name, "family", fam.name, "error", err)
		}
	}
	return nil
}

// Rules returns the destination networks currently dropped by the
// reserved tables, IPv4 first.
func (n *NFTables) Rules() (BlockSet, error) {
	var out BlockSet
	for _, fam := range families {
		tables, err := n.conn.ListTablesOfFamily(fam.table)
		if err != nil {
			return nil, errors.Wrap(err, errors.KindFirewall, "failed to list tables")
		}
		var table *nftables.Table
		for _, t := range tables {
			if t.Name == n.name {
				table = t
				break
			}
		}
		if table == nil {
			continue
		}

		rules, err := n.conn.GetRules(table, &nftables.Chain{Name: ChainName, Table: table})
		if err != nil {
			return nil, errors.Wrapf(err, errors.KindFirewall, "failed to list %s rules", fam.name)
		}
		for _, r := range rules {
			if p, ok := decodeDropRule(r); ok {
				out = append(out, p)
			}
		}
	}
	return out, nil
}

func outputChain(table *nftables.Table) *nftables.Chain {
	accept := nftables.ChainPolicyAccept
	return &nftables.Chain{
		Name:     ChainName,
		Table:    table,
		Type:     nftables.ChainTypeFilter,
		Hooknum:  nftables.ChainHookOutput,
		Priority: nftables.ChainPriorityRef(ChainPriority),
		Policy:   &accept,
	}
}

// dropRule matches classid, protocol family and masked destination:
//
//	meta cgroup == classid
//	meta nfproto == family
//	payload daddr & mask == network
//	drop
func (n *NFTables) dropRule(table *nftables.Table, chain *nftables.Chain, fam family, block netip.Prefix) *nftables.Rule {
	network := block.Masked().Addr().AsSlice()
	mask := net.CIDRMask(block.Bits(), block.Addr().BitLen())

	return &nftables.Rule{
		Table: table,
		Chain: chain,
		Exprs: []expr.Any{
			&expr.Meta{Key: expr.MetaKeyCGROUP, Register: 1},
			&expr.Cmp{
				Op:       expr.CmpOpEq,
				Register: 1,
				Data:     binaryutil.NativeEndian.PutUint32(n.classID),
			},
			&expr.Meta{Key: expr.MetaKeyNFPROTO, Register: 1},
			&expr.Cmp{
				Op:       expr.CmpOpEq,
				Register: 1,
				Data:     []byte{fam.nfproto},
			},
			&expr.Payload{
				DestRegister: 1,
				Base:         expr.PayloadBaseNetworkHeader,
				Offset:       fam.dstOffset,
				Len:          fam.addrLen,
			},
			&expr.Bitwise{
				SourceRegister: 1,
				DestRegister:   1,
				Len:            fam.addrLen,
				Mask:           mask,
				Xor:            make([]byte, fam.addrLen),
			},
			&expr.Cmp{
				Op:       expr.CmpOpEq,
				Register: 1,
				Data:     network,
			},
			&expr.Verdict{Kind: expr.VerdictDrop},
		},
	}
}

// decodeDropRule recovers the destination network from a rule built by
// dropRule.
func decodeDropRule(r *nftables.Rule) (netip.Prefix, bool) {
	var (
		mask    []byte
		network []byte
		drop    bool
	)
	for i, e := range r.Exprs {
		switch v := e.(type) {
		case *expr.Bitwise:
			mask = v.Mask
			if i+1 < len(r.Exprs) {
				if cmp, ok := r.Exprs[i+1].(*expr.Cmp); ok {
					network = cmp.Data
				}
			}
		case *expr.Verdict:
			drop = v.Kind == expr.VerdictDrop
		}
	}
	if !drop || mask == nil || len(mask) != len(network) {
		return netip.Prefix{}, false
	}
	addr, ok := netip.AddrFromSlice(network)
	if !ok {
		return netip.Prefix{}, false
	}
	ones, _ := net.IPMask(mask).Size()
	return netip.PrefixFrom(addr, ones), true
}
