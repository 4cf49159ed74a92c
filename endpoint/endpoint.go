// Package endpoint is the UDP socket layer (component C): it binds one
// datagram socket per configured bind address, demuxes and decodes each
// inbound packet, and dispatches it to the registration handler. It also
// exposes send(), optionally routed through a SOCKS5 relay for probes.
package endpoint

import (
	"context"
	"net"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/ipv6"

	"github.com/nabbar/ottd-masterserver/metrics"
	"github.com/nabbar/ottd-masterserver/protocol"
	"github.com/nabbar/ottd-masterserver/source"
)

// Dispatcher handles one decoded inbound message on its effective Source.
// Implemented by the registration handler (component E); kept as a narrow
// interface here to avoid endpoint <-> handler import cycles.
type Dispatcher interface {
	Dispatch(s source.Source, msg *protocol.Message)
}

// Endpoint owns one bound UDP socket.
type Endpoint struct {
	conn  *net.UDPConn
	pc6   *ipv6.PacketConn // non-nil only when conn is bound to an IPv6 address
	isV6  bool
	demux *source.Demux
	disp  Dispatcher
	log   *logrus.Entry
	met   *metrics.Recorder
}

// Bind opens a UDP socket at addr (host:port) and wires its PROXY demux.
// proxyProtocol toggles whether Serve expects a PROXY v1 header. met
// may be nil; every Recorder method is a no-op on a nil receiver.
func Bind(addr string, proxyProtocol bool, disp Dispatcher, log *logrus.Entry, met *metrics.Recorder) (*Endpoint, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, CodeBindFailed.Error(err)
	}

	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, CodeBindFailed.Error(err)
	}

	ep := &Endpoint{conn: conn, disp: disp, log: log, met: met}
	ep.isV6 = udpAddr.IP == nil || udpAddr.IP.To4() == nil
	if ep.isV6 {
		ep.pc6 = ipv6.NewPacketConn(conn)
		// FlagDst lets Serve tell whether an inbound datagram arrived via
		// a v4-mapped ("::ffff:a.b.c.d") destination.
		_ = ep.pc6.SetControlMessage(ipv6.FlagDst, true)
	}
	ep.demux = source.NewDemux(ep, proxyProtocol)

	return ep, nil
}

// IsIPv6 satisfies source.Endpoint.
func (e *Endpoint) IsIPv6() bool { return e.isV6 }

// LocalAddr returns the bound socket address.
func (e *Endpoint) LocalAddr() net.Addr { return e.conn.LocalAddr() }

// Close releases the underlying socket.
func (e *Endpoint) Close() error { return e.conn.Close() }

// Serve reads datagrams until ctx is cancelled or the socket errors. Every
// decode or dispatch failure is logged and dropped; it never propagates to
// the caller, which never sees a per-datagram error.
func (e *Endpoint) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = e.conn.Close()
	}()

	buf := make([]byte, protocol.SafeMTU)
	for {
		n, addr, err := e.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}

		e.handleDatagram(addr, append([]byte(nil), buf[:n]...))
	}
}

func (e *Endpoint) handleDatagram(addr *net.UDPAddr, data []byte) {
	src, payload, err := e.demux.Resolve(addr, data)
	if err != nil {
		e.log.WithError(err).Debug("dropping datagram: PROXY demux failed")
		e.met.DecodeError("proxy_demux")
		return
	}

	msg, err := protocol.Decode(payload)
	if err != nil {
		e.log.WithError(err).Debug("dropping datagram: decode failed")
		e.met.DecodeError("protocol_decode")
		return
	}

	e.met.PacketDecoded(msg.Type)
	e.disp.Dispatch(src, msg)
}

// Send writes payload to addr. When the local socket is IPv6 and addr is
// an IPv4 destination, the address is rewritten as ::ffff:a.b.c.d before
// the write.
func (e *Endpoint) Send(addr *net.UDPAddr, payload []byte) error {
	if !e.isV6 {
		_, err := e.conn.WriteToUDP(payload, addr)
		if err != nil {
			return CodeSendFailed.Error(err)
		}
		return nil
	}

	mapped := *addr
	if v4 := addr.IP.To4(); v4 != nil {
		mapped.IP = v4.To16()
	}

	_, err := e.pc6.WriteTo(payload, nil, &mapped)
	if err != nil {
		return CodeSendFailed.Error(err)
	}
	return nil
}
