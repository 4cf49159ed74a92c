package endpoint

import (
	"errors"
	"io"
	"net"
	"net/url"
	"time"

	"github.com/nabbar/ottd-masterserver/protocol"
)

// Relay opens probes through a SOCKS5 server's UDP ASSOCIATE facility
// (RFC 1928 §7), for deployments where outbound UDP from the master
// server process itself is firewalled off and probes must be relayed.
type Relay struct {
	proxyAddr string
	username  string
	password  string
}

// NewRelay parses a "socks5://[user:pass@]host:port" URL into a Relay.
func NewRelay(socksURL string) (*Relay, error) {
	u, err := url.Parse(socksURL)
	if err != nil {
		return nil, CodeRelayFailed.Error(err)
	}

	r := &Relay{proxyAddr: u.Host}
	if u.User != nil {
		r.username = u.User.Username()
		r.password, _ = u.User.Password()
	}
	return r, nil
}

// relaySession is one ephemeral SOCKS5 UDP ASSOCIATE binding: a TCP
// control connection (which must stay open for the UDP association to
// remain valid) plus the UDP socket used to exchange relayed datagrams.
type relaySession struct {
	ctrl    net.Conn
	udp     *net.UDPConn
	relayTo *net.UDPAddr
}

// open performs the TCP connect, SOCKS5 greeting, and UDP ASSOCIATE
// handshake, returning a session whose udp/relayTo are ready for relayed
// traffic to dst.
func (r *Relay) open(dst *net.UDPAddr, timeout time.Duration) (*relaySession, error) {
	ctrl, err := net.DialTimeout("tcp", r.proxyAddr, timeout)
	if err != nil {
		return nil, CodeRelayFailed.Error(err)
	}
	_ = ctrl.SetDeadline(time.Now().Add(timeout))

	if err := r.greet(ctrl); err != nil {
		ctrl.Close()
		return nil, err
	}

	bindAddr, err := r.associate(ctrl)
	if err != nil {
		ctrl.Close()
		return nil, err
	}

	udpConn, err := net.DialUDP("udp", nil, bindAddr)
	if err != nil {
		ctrl.Close()
		return nil, CodeRelayFailed.Error(err)
	}

	return &relaySession{ctrl: ctrl, udp: udpConn, relayTo: bindAddr}, nil
}

func (s *relaySession) Close() {
	s.udp.Close()
	s.ctrl.Close()
}

// greet negotiates "no auth", falling back to username/password (RFC
// 1929) when the relay requires it.
func (r *Relay) greet(conn net.Conn) error {
	methods := []byte{0x00}
	if r.username != "" {
		methods = append(methods, 0x02)
	}

	buf := append([]byte{0x05, byte(len(methods))}, methods...)
	if _, err := conn.Write(buf); err != nil {
		return CodeRelayFailed.Error(err)
	}

	var sel [2]byte
	if _, err := io.ReadFull(conn, sel[:]); err != nil {
		return CodeRelayFailed.Error(err)
	}
	if sel[0] != 0x05 {
		return CodeRelayFailed.Error(errors.New("unexpected SOCKS version in method selection"))
	}

	switch sel[1] {
	case 0x00:
		return nil
	case 0x02:
		return r.userPassAuth(conn)
	default:
		return CodeRelayFailed.Error(errors.New("SOCKS relay rejected offered auth methods"))
	}
}

func (r *Relay) userPassAuth(conn net.Conn) error {
	req := []byte{0x01, byte(len(r.username))}
	req = append(req, r.username...)
	req = append(req, byte(len(r.password)))
	req = append(req, r.password...)
	if _, err := conn.Write(req); err != nil {
		return CodeRelayFailed.Error(err)
	}

	var rep [2]byte
	if _, err := io.ReadFull(conn, rep[:]); err != nil {
		return CodeRelayFailed.Error(err)
	}
	if rep[1] != 0x00 {
		return CodeRelayFailed.Error(errors.New("SOCKS relay authentication failed"))
	}
	return nil
}

// associate issues UDP ASSOCIATE and returns the relay's bound UDP
// address for subsequent datagrams.
func (r *Relay) associate(conn net.Conn) (*net.UDPAddr, error) {
	req := []byte{0x05, 0x03, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}
	if _, err := conn.Write(req); err != nil {
		return nil, CodeRelayFailed.Error(err)
	}

	var hdr [4]byte
	if _, err := io.ReadFull(conn, hdr[:]); err != nil {
		return nil, CodeRelayFailed.Error(err)
	}
	if hdr[0] != 0x05 || hdr[1] != 0x00 {
		return nil, CodeRelayFailed.Error(errors.New("SOCKS relay UDP ASSOCIATE rejected"))
	}

	ip, port, err := readBindAddr(conn, hdr[3])
	if err != nil {
		return nil, err
	}
	return &net.UDPAddr{IP: ip, Port: port}, nil
}

func readBindAddr(r io.Reader, atyp byte) (net.IP, int, error) {
	switch atyp {
	case 0x01:
		var b [4 + 2]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return nil, 0, CodeRelayFailed.Error(err)
		}
		return net.IP(b[:4]), int(b[4])<<8 | int(b[5]), nil
	case 0x04:
		var b [16 + 2]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return nil, 0, CodeRelayFailed.Error(err)
		}
		return net.IP(b[:16]), int(b[16])<<8 | int(b[17]), nil
	default:
		return nil, 0, CodeRelayFailed.Error(errors.New("unsupported SOCKS bind address type"))
	}
}

// encapsulate wraps a game-packet payload in the SOCKS5 UDP request
// header (RSV(2) + FRAG(1) + ATYP + DST.ADDR + DST.PORT), per RFC 1928 §7.
func encapsulate(dst *net.UDPAddr, payload []byte) []byte {
	var out []byte
	if v4 := dst.IP.To4(); v4 != nil {
		out = append([]byte{0x00, 0x00, 0x00, 0x01}, v4...)
	} else {
		out = append([]byte{0x00, 0x00, 0x00, 0x04}, dst.IP.To16()...)
	}
	out = append(out, byte(dst.Port>>8), byte(dst.Port))
	return append(out, payload...)
}

// decapsulate strips the SOCKS5 UDP response header, returning the
// enclosed game-packet payload.
func decapsulate(data []byte) ([]byte, error) {
	if len(data) < 4 {
		return nil, CodeRelayFailed.Error(errors.New("short SOCKS relay UDP frame"))
	}
	switch data[3] {
	case 0x01:
		if len(data) < 4+4+2 {
			return nil, CodeRelayFailed.Error(errors.New("short SOCKS relay IPv4 UDP frame"))
		}
		return data[4+4+2:], nil
	case 0x04:
		if len(data) < 4+16+2 {
			return nil, CodeRelayFailed.Error(errors.New("short SOCKS relay IPv6 UDP frame"))
		}
		return data[4+16+2:], nil
	default:
		return nil, CodeRelayFailed.Error(errors.New("unsupported SOCKS relay UDP address type"))
	}
}

// Probe sends one CLIENT_FIND_SERVER to dst through the relay and waits
// up to timeout for a reply. Each retry opens an ephemeral relay socket,
// sends via it, and races its reply against timeout; the ephemeral
// socket is closed on both paths.
func (r *Relay) Probe(dst *net.UDPAddr, timeout time.Duration) ([]byte, error) {
	sess, err := r.open(dst, timeout)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	payload, err := protocol.EncodeFindServer()
	if err != nil {
		return nil, err
	}

	if _, err := sess.udp.Write(encapsulate(dst, payload)); err != nil {
		return nil, CodeRelayFailed.Error(err)
	}

	_ = sess.udp.SetReadDeadline(time.Now().Add(timeout))
	buf := make([]byte, protocol.SafeMTU+32)
	n, err := sess.udp.Read(buf)
	if err != nil {
		return nil, CodeRelayFailed.Error(err)
	}

	return decapsulate(buf[:n])
}
