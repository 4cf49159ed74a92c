// Package source resolves the true (ip,port) of each inbound datagram,
// peeling an optional PROXY protocol v1 header before a packet reaches the
// codec.
package source

import (
	"bytes"
	"net"
	"strconv"
	"strings"
	"sync"

	libatm "github.com/nabbar/ottd-masterserver/atomic"
)

// Endpoint is the minimal view component C exposes to a Source: enough to
// let a handler reply without this package importing endpoint (which in
// turn depends on source for every Source it hands out).
type Endpoint interface {
	Send(addr *net.UDPAddr, payload []byte) error
	IsIPv6() bool
}

// Source is a datagram's logical origin: the owning Endpoint, the socket
// address the bytes physically arrived from, and the effective address
// after PROXY unwrap. Immutable for the life of one datagram.
type Source struct {
	Endpoint     Endpoint
	SocketAddr   *net.UDPAddr
	EffectiveIP  net.IP
	EffectivePort uint16
}

var proxyMarker = []byte("PROXY")

// Demux is the per-endpoint PROXY-protocol demultiplexer: it owns the
// socket_addr -> Source mapping established from a prior PROXY-headed
// datagram, since front-ends may emit the header only on the first
// datagram of a logical UDP flow.
type Demux struct {
	enabled bool
	ep      Endpoint
	mapping libatm.MapTyped[string, Source]
	mu      sync.Mutex // guards the only read-modify-write: the miss path
}

// NewDemux returns a Demux for one endpoint. When enabled is false, every
// datagram's effective source is simply its socket address.
func NewDemux(ep Endpoint, enabled bool) *Demux {
	return &Demux{
		enabled: enabled,
		ep:      ep,
		mapping: libatm.NewMapTyped[string, Source](),
	}
}

// Resolve demuxes one datagram: returns the effective Source and the
// remaining game-packet bytes (payload with any PROXY line stripped).
func (d *Demux) Resolve(socketAddr *net.UDPAddr, data []byte) (Source, []byte, error) {
	if !d.enabled {
		return Source{Endpoint: d.ep, SocketAddr: socketAddr, EffectiveIP: socketAddr.IP, EffectivePort: uint16(socketAddr.Port)}, data, nil
	}

	if !bytes.HasPrefix(data, proxyMarker) {
		if s, ok := d.mapping.Load(socketAddr.String()); ok {
			return s, data, nil
		}
		return Source{}, nil, CodeNoProxyProtocol.Error()
	}

	line, rest, err := splitProxyLine(data)
	if err != nil {
		return Source{}, nil, err
	}

	ip, port, err := parseProxyLine(line)
	if err != nil {
		return Source{}, nil, err
	}

	s := Source{Endpoint: d.ep, SocketAddr: socketAddr, EffectiveIP: ip, EffectivePort: port}

	d.mu.Lock()
	d.mapping.Store(socketAddr.String(), s)
	d.mu.Unlock()

	return s, rest, nil
}

func splitProxyLine(data []byte) (line []byte, rest []byte, err error) {
	idx := bytes.Index(data, []byte("\r\n"))
	if idx < 0 {
		return nil, nil, CodeMalformedHeader.Error()
	}
	return data[:idx], data[idx+2:], nil
}

// parseProxyLine parses "PROXY <UDP4|UDP6> <client_ip> <proxy_ip>
// <client_port> <proxy_port>", taking the third field as the real client
// IP and the fifth as the real client port.
func parseProxyLine(line []byte) (net.IP, uint16, error) {
	fields := strings.Fields(string(line))
	if len(fields) != 6 || fields[0] != "PROXY" {
		return nil, 0, CodeMalformedHeader.Error()
	}

	ip := net.ParseIP(fields[2])
	if ip == nil {
		return nil, 0, CodeMalformedHeader.Error()
	}

	port, err := strconv.ParseUint(fields[4], 10, 16)
	if err != nil {
		return nil, 0, CodeMalformedHeader.Error()
	}

	return ip, uint16(port), nil
}
