// Package handler is the registration state machine (component E): it
// consumes decoded messages from the UDP endpoint, consults the session-
// key manager and query tracker, and commits accepted servers to the
// registry.
package handler

import (
	"context"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	libcache "github.com/nabbar/ottd-masterserver/cache"
	"github.com/nabbar/ottd-masterserver/metrics"
	"github.com/nabbar/ottd-masterserver/protocol"
	"github.com/nabbar/ottd-masterserver/query"
	"github.com/nabbar/ottd-masterserver/registry"
	"github.com/nabbar/ottd-masterserver/session"
	"github.com/nabbar/ottd-masterserver/source"
)

// listCacheTTL is the GET_LIST handler-local cache window.
const listCacheTTL = 30 * time.Second

// pendingProbe is the user_data threaded through a Query: the session key
// the RESPONSE will be committed under, and the socket address the ACK
// must be sent to (the server's REGISTER-time ephemeral port, not
// necessarily where RESPONSE arrives from).
type pendingProbe struct {
	sessionKey session.Key
	replyAddr  *net.UDPAddr
}

// Handler implements endpoint.Dispatcher.
type Handler struct {
	reg       registry.Registry
	sessions  *session.Manager
	tracker   *query.Tracker
	listCache libcache.Cache[protocol.SLT, []registry.Endpoint]
	log       *logrus.Entry
	met       *metrics.Recorder

	probeTimeout  time.Duration
	sweepInterval time.Duration
}

// New wires a Handler around reg, using send to transmit probes (directly
// or via a SOCKS relay — see endpoint.Endpoint.Send / endpoint.Relay). met
// may be nil; every Recorder method is a no-op on a nil receiver.
func New(ctx context.Context, reg registry.Registry, send query.Sender, log *logrus.Entry, met *metrics.Recorder) *Handler {
	h := &Handler{
		reg:           reg,
		sessions:      session.NewManager(),
		log:           log,
		met:           met,
		probeTimeout:  query.DefaultTimeout,
		sweepInterval: defaultSweepInterval,
	}
	h.tracker = query.New(send, h.onProbeExhausted).WithMetrics(met)
	h.listCache = libcache.New[protocol.SLT, []registry.Endpoint](ctx, listCacheTTL)
	return h
}

// WithTiming overrides the probe timeout and sweep interval the defaults
// (query.DefaultTimeout, 5 minutes) would otherwise use. Either argument
// may be zero to leave that timing at its default.
func (h *Handler) WithTiming(probeTimeout, sweepInterval time.Duration) *Handler {
	if probeTimeout > 0 {
		h.probeTimeout = probeTimeout
	}
	if sweepInterval > 0 {
		h.sweepInterval = sweepInterval
	}
	return h
}

// onProbeExhausted is the query tracker's retry_reached callback: a
// REGISTER whose probes all went unanswered marks (ip, port) offline.
func (h *Handler) onProbeExhausted(ip net.IP, port uint16) {
	h.log.WithField("ip", ip).WithField("port", port).Debug("probe exhausted without a RESPONSE")
	if err := h.reg.ServerOffline(context.Background(), ip, port); err != nil {
		h.log.WithError(err).Warn("server_offline failed")
		return
	}
	h.met.ServerOffline()
}

// Dispatch routes one decoded message to its handler.
func (h *Handler) Dispatch(s source.Source, msg *protocol.Message) {
	switch msg.Type {
	case protocol.PacketServerRegister:
		h.handleRegister(s, msg.Register)
	case protocol.PacketServerUnregister:
		h.handleUnregister(s, msg.Register)
	case protocol.PacketServerResponse:
		h.handleResponse(s, msg.Response)
	case protocol.PacketClientGetList:
		h.handleGetList(s, msg.GetList)
	default:
		// CLIENT_FIND_SERVER and any other inbound type carry nothing a
		// master server acts on; silently dropped.
	}
}

func (h *Handler) handleRegister(s source.Source, p *protocol.RegisterPayload) {
	ctx := context.Background()
	ip, announcedPort := s.EffectiveIP, p.Port

	var sk session.Key
	switch {
	case !p.HasKey:
		// v1: no session key at all.
		sk = session.Legacy(ip, announcedPort)

	case p.SessionKey == 0:
		// v2 initial: issue a fresh managed key and wait for the re-REGISTER.
		h.issueNewKey(s)
		return

	default:
		stored, token := session.Split(session.Key(p.SessionKey))
		ok, err := h.reg.CheckSessionKeyToken(ctx, stored, token)
		if err != nil {
			h.log.WithError(err).Warn("check_session_key_token failed")
			return
		}
		if !ok {
			h.issueNewKey(s)
			return
		}
		sk = stored
	}

	h.tracker.StartQueryWith(ip, announcedPort, pendingProbe{sessionKey: sk, replyAddr: s.SocketAddr}, h.probeTimeout, query.DefaultRetry)
}

func (h *Handler) issueNewKey(s source.Source) {
	withToken, stored, token := h.sessions.Allocate(time.Now())

	if err := h.reg.StoreSessionKeyToken(context.Background(), stored, token); err != nil {
		h.log.WithError(err).Warn("store_session_key_token failed")
		return
	}

	payload, err := protocol.EncodeSessionKey(withToken)
	if err != nil {
		h.log.WithError(err).Warn("failed to encode MASTER_SESSION_KEY")
		return
	}
	if err := s.Endpoint.Send(s.SocketAddr, payload); err != nil {
		h.log.WithError(err).Warn("failed to send MASTER_SESSION_KEY")
	}
}

func (h *Handler) handleResponse(s source.Source, info *protocol.GameInfo) {
	userData, ok := h.tracker.OnResponse(s.EffectiveIP, s.EffectivePort)
	if !ok {
		// unsolicited RESPONSE; log and drop.
		h.log.WithField("ip", s.EffectiveIP).Debug("unsolicited RESPONSE")
		return
	}

	if !info.Valid() {
		return
	}

	pending := userData.(pendingProbe)

	ok2, err := h.reg.ServerOnline(context.Background(), pending.sessionKey, s.EffectiveIP, s.EffectivePort, info)
	if err != nil {
		h.log.WithError(err).Warn("server_online failed")
		return
	}
	if !ok2 {
		return
	}
	h.met.ServerOnline()

	ack, err := protocol.EncodeAckRegister()
	if err != nil {
		h.log.WithError(err).Warn("failed to encode MASTER_ACK_REGISTER")
		return
	}
	if err := s.Endpoint.Send(pending.replyAddr, ack); err != nil {
		h.log.WithError(err).Warn("failed to send MASTER_ACK_REGISTER")
	}
}

func (h *Handler) handleUnregister(s source.Source, p *protocol.RegisterPayload) {
	if err := h.reg.ServerOffline(context.Background(), s.EffectiveIP, p.Port); err != nil {
		h.log.WithError(err).Warn("server_offline failed")
		return
	}
	h.met.ServerOffline()
}

func (h *Handler) handleGetList(s source.Source, p *protocol.GetListPayload) {
	slt := p.SLT
	if slt == protocol.SLTAutodetect {
		if isIPv6(s.EffectiveIP) {
			slt = protocol.SLTIPv6
		} else {
			slt = protocol.SLTIPv4
		}
	}

	entries, _, found := h.listCache.Load(slt)
	if !found {
		eps, err := h.reg.GetServerListForClient(context.Background(), slt == protocol.SLTIPv6)
		if err != nil {
			h.log.WithError(err).Warn("get_server_list_for_client failed")
			return
		}
		h.listCache.Store(slt, eps)
		entries = eps
	}

	records := make([]protocol.ServerListEntry, 0, len(entries))
	for _, e := range entries {
		records = append(records, protocol.ServerListEntry{IP: packAddr(e.IP, slt), Port: e.Port})
	}

	chunkSize := protocol.MaxListCount(slt)
	for i := 0; i < len(records); i += chunkSize {
		end := i + chunkSize
		if end > len(records) {
			end = len(records)
		}

		pkt, err := protocol.EncodeResponseList(slt, records[i:end])
		if err != nil {
			h.log.WithError(err).Warn("failed to encode MASTER_RESPONSE_LIST")
			return
		}
		if err := s.Endpoint.Send(s.SocketAddr, pkt); err != nil {
			h.log.WithError(err).Warn("failed to send MASTER_RESPONSE_LIST")
			return
		}
	}
}

// isIPv6 treats a v4-mapped address (::ffff:a.b.c.d) as IPv4, matching
// CLIENT_GET_LIST's autodetect rule.
func isIPv6(ip net.IP) bool {
	return ip.To4() == nil
}

func packAddr(ip net.IP, slt protocol.SLT) []byte {
	if slt == protocol.SLTIPv6 {
		return ip.To16()
	}
	return ip.To4()
}
