package registry

import (
	"context"
	"net"

	"github.com/nabbar/ottd-masterserver/protocol"
	"github.com/nabbar/ottd-masterserver/session"
)

// Registry is the durable server map. All operations may block on
// I/O; the in-memory reference implementation is synchronous. Every
// production backend (DynamoDB, Redis) must be internally linearizable
// per key.
type Registry interface {
	// StoreSessionKeyToken persists the token bound to a freshly-issued
	// or re-bound stored session key.
	StoreSessionKeyToken(ctx context.Context, stored session.Key, token uint8) error

	// CheckSessionKeyToken reports whether token is the one on record for
	// stored. A legacy key (token==0, never issued by StoreSessionKeyToken)
	// always passes.
	CheckSessionKeyToken(ctx context.Context, stored session.Key, token uint8) (bool, error)

	// ServerOnline records (or refreshes) an online ServerEntry for sk at
	// (ip,port) with info. Returns false only for a nil/invalid info; a
	// session key with no token stored by StoreSessionKeyToken is accepted
	// and gets a new entry. If (ip,port) was bound under a
	// different session key, that prior ServerEntry is marked offline
	// first.
	ServerOnline(ctx context.Context, sk session.Key, ip net.IP, port uint16, info *protocol.GameInfo) (bool, error)

	// ServerOffline marks the entry bound to (ip,port) offline. Idempotent:
	// a repeat call for an already-offline/unknown address is a no-op.
	ServerOffline(ctx context.Context, ip net.IP, port uint16) error

	// GetServerListForClient returns the {ip,port} pairs of every online
	// entry reachable over the requested family.
	GetServerListForClient(ctx context.Context, ipv6 bool) ([]Endpoint, error)

	// GetServerInfoForWeb returns the ServerDetail for id, or
	// (ServerDetail{}, false) if no such entry exists.
	GetServerInfoForWeb(ctx context.Context, id ServerID) (ServerDetail, bool, error)

	// GetServerListForWeb returns every ServerDetail (online and offline).
	GetServerListForWeb(ctx context.Context) ([]ServerDetail, error)

	// SweepStale marks offline every entry whose LastSeen predates
	// now-StaleTTL. The background sweeper calls this every 5 minutes.
	SweepStale(ctx context.Context) error
}
