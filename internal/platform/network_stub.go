//go:build !linux

package platform

import (
	"net/netip"

	"github.com/gajzzs/dropship/internal/errors"
)

type stubConnectionFlusher struct{}

func newConnectionFlusher() ConnectionFlusher {
	return &stubConnectionFlusher{}
}

func (f *stubConnectionFlusher) FlushConnections([]netip.Prefix) (uint, error) {
	return 0, errors.New(errors.KindUnavailable, "connection tracking flush is not supported on this platform")
}
