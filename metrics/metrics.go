// Package metrics is the optional prometheus-backed telemetry surface:
// inbound packets by type, decode errors by kind, registry online/offline
// transitions, and query retries/timeouts. Telemetry sits outside the
// protocol core, so every caller takes a *Recorder and every method on
// *Recorder is nil-safe: a nil Recorder is a legal "metrics disabled"
// configuration.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nabbar/ottd-masterserver/protocol"
)

// Recorder is the narrow telemetry surface consumed by endpoint, handler
// and query. A nil *Recorder is valid and every method is a no-op on it.
type Recorder struct {
	packetsTotal   *prometheus.CounterVec
	decodeErrors   *prometheus.CounterVec
	registryEvents *prometheus.CounterVec
	queryEvents    *prometheus.CounterVec
}

// New registers the counters against reg and returns a ready Recorder. Pass
// prometheus.NewRegistry() (or prometheus.DefaultRegisterer) for reg.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		packetsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ottd_masterserver",
			Name:      "packets_total",
			Help:      "Inbound datagrams successfully decoded, by packet type.",
		}, []string{"type"}),
		decodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ottd_masterserver",
			Name:      "decode_errors_total",
			Help:      "Inbound datagrams dropped during decode, by error code.",
		}, []string{"code"}),
		registryEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ottd_masterserver",
			Name:      "registry_events_total",
			Help:      "Registry online/offline transitions.",
		}, []string{"event"}),
		queryEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ottd_masterserver",
			Name:      "query_events_total",
			Help:      "Query tracker retries and exhaustions.",
		}, []string{"event"}),
	}

	reg.MustRegister(r.packetsTotal, r.decodeErrors, r.registryEvents, r.queryEvents)
	return r
}

// PacketDecoded records one successfully decoded inbound packet.
func (r *Recorder) PacketDecoded(t protocol.PacketType) {
	if r == nil {
		return
	}
	r.packetsTotal.WithLabelValues(packetTypeLabel(t)).Inc()
}

// DecodeError records one dropped, undecodable datagram.
func (r *Recorder) DecodeError(code string) {
	if r == nil {
		return
	}
	r.decodeErrors.WithLabelValues(code).Inc()
}

// ServerOnline records a registry commit transitioning a server online.
func (r *Recorder) ServerOnline() {
	if r == nil {
		return
	}
	r.registryEvents.WithLabelValues("online").Inc()
}

// ServerOffline records a registry commit transitioning a server offline.
func (r *Recorder) ServerOffline() {
	if r == nil {
		return
	}
	r.registryEvents.WithLabelValues("offline").Inc()
}

// QueryRetry records one probe retransmit.
func (r *Recorder) QueryRetry() {
	if r == nil {
		return
	}
	r.queryEvents.WithLabelValues("retry").Inc()
}

// QueryExhausted records a probe whose retries were exhausted without a
// RESPONSE.
func (r *Recorder) QueryExhausted() {
	if r == nil {
		return
	}
	r.queryEvents.WithLabelValues("exhausted").Inc()
}

func packetTypeLabel(t protocol.PacketType) string {
	switch t {
	case protocol.PacketClientFindServer:
		return "client_find_server"
	case protocol.PacketServerResponse:
		return "server_response"
	case protocol.PacketServerRegister:
		return "server_register"
	case protocol.PacketServerUnregister:
		return "server_unregister"
	case protocol.PacketClientGetList:
		return "client_get_list"
	case protocol.PacketMasterResponseList:
		return "master_response_list"
	case protocol.PacketMasterSessionKey:
		return "master_session_key"
	case protocol.PacketMasterAckRegister:
		return "master_ack_register"
	default:
		return "unknown"
	}
}
