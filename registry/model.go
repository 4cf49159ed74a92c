package registry

import (
	"net"
	"time"

	"github.com/nabbar/ottd-masterserver/protocol"
	"github.com/nabbar/ottd-masterserver/session"
)

// Endpoint is one (ip,port) a ServerEntry is reachable on.
type Endpoint struct {
	IP   net.IP
	Port uint16
}

// ServerEntry is addressed by SessionKey. At least one of {IPv4,IPv6}
// must be present while Online is true.
type ServerEntry struct {
	SessionKey session.Key
	IPv4       *Endpoint
	IPv6       *Endpoint
	Online     bool
	Info       *protocol.GameInfo
	FirstSeen  time.Time
	LastSeen   time.Time
}

// TTLDeadline is LastSeen plus the stale-sweep TTL:
// ttl_deadline = last_seen + TTL.
func (e *ServerEntry) TTLDeadline() time.Time {
	return e.LastSeen.Add(StaleTTL)
}

// StaleTTL is the window after which sweep_stale marks an entry offline:
// no later than last_seen + 20min.
const StaleTTL = 20 * time.Minute

// ServerID is the 32-lowercase-hex MD5 of the canonical "ip:port" (v4) or
// "[ip]:port" (v6) string — the stable surrogate key used by the web path
// and by IpPortBinding.
type ServerID string

// ComputeServerID derives the ServerId for an endpoint:
// MD5 of "ip:port" for v4 or "[ip]:port" for v6.
func ComputeServerID(ip net.IP, port uint16) ServerID {
	return computeServerID(ip, port)
}

// ServerDetail is the web-facing projection of a ServerEntry: the JSON
// shape served by GET /server and GET /server/{id}.
type ServerDetail struct {
	ServerID       ServerID  `json:"server_id"`
	SessionKey     string    `json:"session_key"`
	IPv4           string    `json:"ipv4,omitempty"`
	IPv6           string    `json:"ipv6,omitempty"`
	Online         bool      `json:"online"`
	Info           *GameInfo `json:"info,omitempty"`
	FirstSeen      time.Time `json:"first_seen"`
	LastSeen       time.Time `json:"last_seen"`
}

// GameInfo mirrors protocol.GameInfo with JSON tags suited to the web API;
// kept distinct from the wire type so the codec stays free of encoding/json
// concerns.
type GameInfo struct {
	Name           string `json:"name"`
	OpenTTDVersion string `json:"openttd_version"`
	ClientsMax     uint16 `json:"clients_max"`
	ClientsOn      uint16 `json:"clients_on"`
	SpectatorsOn   uint16 `json:"spectators_on"`
	CompaniesMax   uint8  `json:"companies_max"`
	CompaniesOn    uint8  `json:"companies_on"`
	SpectatorsMax  uint8  `json:"spectators_max"`
	MapWidth       uint16 `json:"map_width"`
	MapHeight      uint16 `json:"map_height"`
}

// ToWebGameInfo projects a wire GameInfo into its JSON-tagged web shape;
// exported so production backends (registry/dynamodb, registry/redis) can
// serialize the same shape they deserialize for GetServerInfoForWeb.
func ToWebGameInfo(g *protocol.GameInfo) *GameInfo {
	return toWebGameInfo(g)
}

func toWebGameInfo(g *protocol.GameInfo) *GameInfo {
	if g == nil {
		return nil
	}
	return &GameInfo{
		Name:           g.Name,
		OpenTTDVersion: g.OpenTTDVersion,
		ClientsMax:     g.ClientsMax,
		ClientsOn:      g.ClientsOn,
		SpectatorsOn:   g.SpectatorsOn,
		CompaniesMax:   g.CompaniesMax,
		CompaniesOn:    g.CompaniesOn,
		SpectatorsMax:  g.SpectatorsMax,
		MapWidth:       g.MapWidth,
		MapHeight:      g.MapHeight,
	}
}

// ToDetail projects a ServerEntry into its web-facing ServerDetail.
func ToDetail(id ServerID, e *ServerEntry) ServerDetail {
	d := ServerDetail{
		ServerID:   id,
		SessionKey: formatSessionKey(e.SessionKey),
		Online:     e.Online,
		Info:       toWebGameInfo(e.Info),
		FirstSeen:  e.FirstSeen,
		LastSeen:   e.LastSeen,
	}
	if e.IPv4 != nil {
		d.IPv4 = e.IPv4.IP.String()
	}
	if e.IPv6 != nil {
		d.IPv6 = e.IPv6.IP.String()
	}
	return d
}
