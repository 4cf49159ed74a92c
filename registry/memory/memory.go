// Package memory is the reference in-memory Registry implementation: two
// maps (session key -> ServerEntry, (ip,port) -> session key) and a
// session-key -> token map. Each map is concurrent-safe on its own; a
// mutex additionally serializes ServerOnline, ServerOffline and SweepStale
// so the multi-map updates stay consistent under parallel dispatch.
package memory

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	libatm "github.com/nabbar/ottd-masterserver/atomic"
	"github.com/nabbar/ottd-masterserver/protocol"
	"github.com/nabbar/ottd-masterserver/registry"
	"github.com/nabbar/ottd-masterserver/session"
)

type binding struct {
	sessionKey session.Key
	endpoint   registry.Endpoint
	ipv6       bool
}

// Registry is the in-memory reference implementation of registry.Registry.
type Registry struct {
	entries  libatm.MapTyped[session.Key, *registry.ServerEntry]
	bindings libatm.MapTyped[string, binding]
	tokens   libatm.MapTyped[session.Key, uint8]
	mu       sync.Mutex // guards multi-map invariant updates (ServerOnline's repair rule)
	now      func() time.Time
}

// New returns an empty in-memory Registry.
func New() *Registry {
	return &Registry{
		entries:  libatm.NewMapTyped[session.Key, *registry.ServerEntry](),
		bindings: libatm.NewMapTyped[string, binding](),
		tokens:   libatm.NewMapTyped[session.Key, uint8](),
		now:      time.Now,
	}
}

func bindKey(ip net.IP, port uint16) string {
	return ip.String() + "/" + strconv.FormatUint(uint64(port), 10)
}

func (r *Registry) StoreSessionKeyToken(_ context.Context, stored session.Key, token uint8) error {
	r.tokens.Store(stored, token)
	return nil
}

func (r *Registry) CheckSessionKeyToken(_ context.Context, stored session.Key, token uint8) (bool, error) {
	if token == 0 {
		// legacy servers carry no token; this resolves as always-pass.
		return true, nil
	}

	want, ok := r.tokens.Load(stored)
	if !ok {
		return false, nil
	}
	return want == token, nil
}

func (r *Registry) ServerOnline(_ context.Context, sk session.Key, ip net.IP, port uint16, info *protocol.GameInfo) (bool, error) {
	if info == nil || !info.Valid() {
		return false, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := bindKey(ip, port)
	isV6 := ip.To4() == nil

	if prior, ok := r.bindings.Load(key); ok && prior.sessionKey != sk {
		if entry, ok := r.entries.Load(prior.sessionKey); ok {
			entry.Online = false
		}
	}

	now := r.now()
	entry, ok := r.entries.Load(sk)
	if !ok {
		entry = &registry.ServerEntry{SessionKey: sk, FirstSeen: now}
	}

	ep := &registry.Endpoint{IP: ip, Port: port}
	if isV6 {
		entry.IPv6 = ep
	} else {
		entry.IPv4 = ep
	}
	entry.Online = true
	entry.Info = info
	entry.LastSeen = now

	r.entries.Store(sk, entry)
	r.bindings.Store(key, binding{sessionKey: sk, endpoint: *ep, ipv6: isV6})

	return true, nil
}

func (r *Registry) ServerOffline(_ context.Context, ip net.IP, port uint16) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := bindKey(ip, port)

	b, ok := r.bindings.Load(key)
	if !ok {
		return nil
	}

	if entry, ok := r.entries.Load(b.sessionKey); ok {
		entry.Online = false
	}
	return nil
}

func (r *Registry) GetServerListForClient(_ context.Context, ipv6 bool) ([]registry.Endpoint, error) {
	var out []registry.Endpoint

	r.entries.Range(func(_ session.Key, e *registry.ServerEntry) bool {
		if !e.Online {
			return true
		}
		if ipv6 && e.IPv6 != nil {
			out = append(out, *e.IPv6)
		} else if !ipv6 && e.IPv4 != nil {
			out = append(out, *e.IPv4)
		}
		return true
	})

	return out, nil
}

func (r *Registry) GetServerInfoForWeb(_ context.Context, id registry.ServerID) (registry.ServerDetail, bool, error) {
	var found registry.ServerDetail
	var ok bool

	r.entries.Range(func(sk session.Key, e *registry.ServerEntry) bool {
		if candidateID(e) == id {
			found = registry.ToDetail(id, e)
			ok = true
			return false
		}
		return true
	})

	return found, ok, nil
}

func (r *Registry) GetServerListForWeb(_ context.Context) ([]registry.ServerDetail, error) {
	var out []registry.ServerDetail

	r.entries.Range(func(_ session.Key, e *registry.ServerEntry) bool {
		out = append(out, registry.ToDetail(candidateID(e), e))
		return true
	})

	return out, nil
}

func (r *Registry) SweepStale(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	deadline := r.now().Add(-registry.StaleTTL)

	r.entries.Range(func(_ session.Key, e *registry.ServerEntry) bool {
		if e.Online && e.LastSeen.Before(deadline) {
			e.Online = false
		}
		return true
	})

	return nil
}

// candidateID derives a ServerEntry's web ServerID from whichever endpoint
// it currently advertises, preferring IPv4 (matching the client-list
// family preference used elsewhere).
func candidateID(e *registry.ServerEntry) registry.ServerID {
	if e.IPv4 != nil {
		return registry.ComputeServerID(e.IPv4.IP, e.IPv4.Port)
	}
	if e.IPv6 != nil {
		return registry.ComputeServerID(e.IPv6.IP, e.IPv6.Port)
	}
	return ""
}
