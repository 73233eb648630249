package platform

import "net/netip"

// ConnectionFlusher removes tracked connections towards blocked networks
// so that flows opened before the rules were installed do not linger.
type ConnectionFlusher interface {
	FlushConnections(blocks []netip.Prefix) (uint, error)
}

// NewConnectionFlusher creates a platform-specific connection flusher.
func NewConnectionFlusher() ConnectionFlusher {
	return newConnectionFlusher()
}
