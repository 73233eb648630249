//go:build linux

package firewall

import (
	"fmt"
	"sync"

	"github.com/google/nftables"
	"github.com/stretchr/testify/mock"
	"golang.org/x/sys/unix"
)

// MockNFTablesConn queues messages like *nftables.Conn and applies them
// atomically to an in-memory ruleset on Flush. Flush results can be
// overridden through testify expectations.
type MockNFTablesConn struct {
	mock.Mock
	mu sync.Mutex

	pending []func(state map[tableKey]*mockTable) error
	state   map[tableKey]*mockTable

	// Batches records the operation count of every successful Flush.
	Batches []int
	ops     int
}

type tableKey struct {
	name   string
	family nftables.TableFamily
}

type mockTable struct {
	table  *nftables.Table
	chains map[string]*nftables.Chain
	rules  map[string][]*nftables.Rule
}

func NewMockNFTablesConn() *MockNFTablesConn {
	return &MockNFTablesConn{state: make(map[tableKey]*mockTable)}
}

func keyOf(t *nftables.Table) tableKey {
	return tableKey{name: t.Name, family: t.Family}
}

func (m *MockNFTablesConn) queue(op func(state map[tableKey]*mockTable) error) {
	m.pending = append(m.pending, op)
	m.ops++
}

func (m *MockNFTablesConn) AddTable(t *nftables.Table) *nftables.Table {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue(func(state map[tableKey]*mockTable) error {
		if _, ok := state[keyOf(t)]; !ok {
			state[keyOf(t)] = &mockTable{
				table:  t,
				chains: make(map[string]*nftables.Chain),
				rules:  make(map[string][]*nftables.Rule),
			}
		}
		return nil
	})
	return t
}

func (m *MockNFTablesConn) DelTable(t *nftables.Table) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue(func(state map[tableKey]*mockTable) error {
		if _, ok := state[keyOf(t)]; !ok {
			return fmt.Errorf("delete table %s: %w", t.Name, unix.ENOENT)
		}
		delete(state, keyOf(t))
		return nil
	})
}

func (m *MockNFTablesConn) ListTablesOfFamily(family nftables.TableFamily) ([]*nftables.Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*nftables.Table
	for k, t := range m.state {
		if k.family == family {
			out = append(out, t.table)
		}
	}
	return out, nil
}

func (m *MockNFTablesConn) AddChain(c *nftables.Chain) *nftables.Chain {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue(func(state map[tableKey]*mockTable) error {
		t, ok := state[keyOf(c.Table)]
		if !ok {
			return fmt.Errorf("add chain %s: table %s: %w", c.Name, c.Table.Name, unix.ENOENT)
		}
		t.chains[c.Name] = c
		return nil
	})
	return c
}

func (m *MockNFTablesConn) AddRule(r *nftables.Rule) *nftables.Rule {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue(func(state map[tableKey]*mockTable) error {
		t, ok := state[keyOf(r.Table)]
		if !ok {
			return fmt.Errorf("add rule: table %s: %w", r.Table.Name, unix.ENOENT)
		}
		if _, ok := t.chains[r.Chain.Name]; !ok {
			return fmt.Errorf("add rule: chain %s: %w", r.Chain.Name, unix.ENOENT)
		}
		t.rules[r.Chain.Name] = append(t.rules[r.Chain.Name], r)
		return nil
	})
	return r
}

func (m *MockNFTablesConn) GetRules(t *nftables.Table, c *nftables.Chain) ([]*nftables.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.state[keyOf(t)]
	if !ok {
		return nil, unix.ENOENT
	}
	return st.rules[c.Name], nil
}

func (m *MockNFTablesConn) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	pending, ops := m.pending, m.ops
	m.pending, m.ops = nil, 0

	if err := m.Called().Error(0); err != nil {
		return err
	}

	next := m.cloneState()
	for _, op := range pending {
		if err := op(next); err != nil {
			return err
		}
	}
	m.state = next
	m.Batches = append(m.Batches, ops)
	return nil
}

func (m *MockNFTablesConn) cloneState() map[tableKey]*mockTable {
	next := make(map[tableKey]*mockTable, len(m.state))
	for k, t := range m.state {
		cp := &mockTable{
			table:  t.table,
			chains: make(map[string]*nftables.Chain, len(t.chains)),
			rules:  make(map[string][]*nftables.Rule, len(t.rules)),
		}
		for name, c := range t.chains {
			cp.chains[name] = c
		}
		for name, rs := range t.rules {
			cp.rules[name] = append([]*nftables.Rule(nil), rs...)
		}
		next[k] = cp
	}
	return next
}

// TableCount returns the number of committed tables named name.
func (m *MockNFTablesConn) TableCount(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for k := range m.state {
		if k.name == name {
			count++
		}
	}
	return count
}

// Chain returns the committed chain, if any.
func (m *MockNFTablesConn) Chain(name string, family nftables.TableFamily, chain string) *nftables.Chain {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.state[tableKey{name: name, family: family}]
	if !ok {
		return nil
	}
	return t.chains[chain]
}
