// Package redis is a production Registry backend: a hash per session key,
// a secondary index key per ip:port (plain SET, overwritten on rebind after
// the prior entry is marked offline), and a sorted set keyed
// by last-seen unix time driving the stale sweep.
package redis

import (
	"context"
	"encoding/json"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	libpool "github.com/nabbar/ottd-masterserver/errors/pool"
	"github.com/nabbar/ottd-masterserver/protocol"
	"github.com/nabbar/ottd-masterserver/registry"
	"github.com/nabbar/ottd-masterserver/session"
)

const (
	prefixEntry   = "ottd:entry:"   // hash, one per session key
	prefixBinding = "ottd:bind:"    // string, one per "ip/port" -> session key
	keyLastSeen   = "ottd:lastseen" // zset: session key -> last_seen unix time
	prefixToken   = "ottd:token:"   // string, one per session key
)

// Registry is a Redis-backed registry.Registry.
type Registry struct {
	client *redis.Client
	now    func() time.Time
}

// New returns a Redis Registry bound to an existing client.
func New(client *redis.Client) *Registry {
	return &Registry{client: client, now: time.Now}
}

func entryKey(sk session.Key) string {
	return prefixEntry + strconv.FormatUint(uint64(sk), 10)
}

func bindingKey(ip net.IP, port uint16) string {
	return prefixBinding + ip.String() + "/" + strconv.FormatUint(uint64(port), 10)
}

func tokenKey(sk session.Key) string {
	return prefixToken + strconv.FormatUint(uint64(sk), 10)
}

func (r *Registry) StoreSessionKeyToken(ctx context.Context, stored session.Key, token uint8) error {
	err := r.client.Set(ctx, tokenKey(stored), token, registry.StaleTTL*2).Err()
	if err != nil {
		return registry.CodeBackend.Error(err)
	}
	return nil
}

func (r *Registry) CheckSessionKeyToken(ctx context.Context, stored session.Key, token uint8) (bool, error) {
	if token == 0 {
		return true, nil
	}

	v, err := r.client.Get(ctx, tokenKey(stored)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, registry.CodeBackend.Error(err)
	}

	want, err := strconv.ParseUint(v, 10, 8)
	if err != nil {
		return false, registry.CodeBackend.Error(err)
	}
	return uint8(want) == token, nil
}

func (r *Registry) ServerOnline(ctx context.Context, sk session.Key, ip net.IP, port uint16, info *protocol.GameInfo) (bool, error) {
	if info == nil || !info.Valid() {
		return false, nil
	}

	bkey := bindingKey(ip, port)
	if prior, err := r.client.Get(ctx, bkey).Result(); err == nil && prior != "" {
		if priorSK, perr := strconv.ParseUint(prior, 10, 64); perr == nil && priorSK != uint64(sk) {
			if err := r.ServerOffline(ctx, ip, port); err != nil {
				return false, err
			}
		}
	} else if err != nil && err != redis.Nil {
		return false, registry.CodeBackend.Error(err)
	}

	ek := entryKey(sk)
	isV6 := ip.To4() == nil
	now := r.now()

	infoJSON, err := json.Marshal(registry.ToWebGameInfo(info))
	if err != nil {
		return false, registry.CodeBackend.Error(err)
	}

	fields := map[string]interface{}{
		"session_key": uint64(sk),
		"online":      1,
		"info_json":   string(infoJSON),
		"last_seen":   now.Unix(),
	}
	if isV6 {
		fields["ipv6"] = ip.String()
		fields["ipv6_port"] = port
	} else {
		fields["ipv4"] = ip.String()
		fields["ipv4_port"] = port
	}

	pipe := r.client.TxPipeline()
	pipe.HSetNX(ctx, ek, "first_seen", now.Unix())
	pipe.HSet(ctx, ek, fields)
	pipe.Expire(ctx, ek, registry.StaleTTL*2)
	pipe.Set(ctx, bkey, uint64(sk), registry.StaleTTL*2)
	pipe.ZAdd(ctx, keyLastSeen, redis.Z{Score: float64(now.Unix()), Member: uint64(sk)})

	if _, err := pipe.Exec(ctx); err != nil {
		return false, registry.CodeBackend.Error(err)
	}
	return true, nil
}

func (r *Registry) ServerOffline(ctx context.Context, ip net.IP, port uint16) error {
	bkey := bindingKey(ip, port)

	v, err := r.client.Get(ctx, bkey).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return registry.CodeBackend.Error(err)
	}

	sk, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return registry.CodeBackend.Error(err)
	}

	ek := entryKey(session.Key(sk))
	if err := r.client.HSet(ctx, ek, "online", 0).Err(); err != nil {
		return registry.CodeBackend.Error(err)
	}
	return nil
}

func (r *Registry) GetServerListForClient(ctx context.Context, ipv6 bool) ([]registry.Endpoint, error) {
	entries, err := r.scanEntries(ctx)
	if err != nil {
		return nil, err
	}

	var out []registry.Endpoint
	for _, h := range entries {
		if h["online"] != "1" {
			continue
		}
		if ipv6 && h["ipv6"] != "" {
			out = append(out, registry.Endpoint{IP: net.ParseIP(h["ipv6"]), Port: parsePort(h["ipv6_port"])})
		} else if !ipv6 && h["ipv4"] != "" {
			out = append(out, registry.Endpoint{IP: net.ParseIP(h["ipv4"]), Port: parsePort(h["ipv4_port"])})
		}
	}
	return out, nil
}

func (r *Registry) GetServerInfoForWeb(ctx context.Context, id registry.ServerID) (registry.ServerDetail, bool, error) {
	entries, err := r.scanEntries(ctx)
	if err != nil {
		return registry.ServerDetail{}, false, err
	}

	for _, h := range entries {
		d := hashToDetail(h)
		if d.ServerID == id {
			return d, true, nil
		}
	}
	return registry.ServerDetail{}, false, nil
}

func (r *Registry) GetServerListForWeb(ctx context.Context) ([]registry.ServerDetail, error) {
	entries, err := r.scanEntries(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]registry.ServerDetail, 0, len(entries))
	for _, h := range entries {
		out = append(out, hashToDetail(h))
	}
	return out, nil
}

func (r *Registry) SweepStale(ctx context.Context) error {
	deadline := r.now().Add(-registry.StaleTTL).Unix()

	stale, err := r.client.ZRangeByScore(ctx, keyLastSeen, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(deadline, 10),
	}).Result()
	if err != nil {
		return registry.CodeBackend.Error(err)
	}

	// Errors from individual entries are pooled rather than returned on the
	// first failure, so one unreachable key doesn't stop the rest of this
	// sweep cycle's entries from going offline on schedule.
	errs := libpool.New()
	for _, skStr := range stale {
		sk, err := strconv.ParseUint(skStr, 10, 64)
		if err != nil {
			continue
		}
		if err := r.client.HSet(ctx, entryKey(session.Key(sk)), "online", 0).Err(); err != nil {
			errs.Add(err)
		}
	}
	if errs.Len() > 0 {
		return registry.CodeBackend.Error(errs.Error())
	}
	return nil
}

// scanEntries walks ottd:entry:* via SCAN (never KEYS, to stay production-
// safe against a large, live keyspace) and reads each hash back.
func (r *Registry) scanEntries(ctx context.Context) ([]map[string]string, error) {
	var (
		cursor uint64
		keys   []string
	)

	for {
		batch, next, err := r.client.Scan(ctx, cursor, prefixEntry+"*", 100).Result()
		if err != nil {
			return nil, registry.CodeBackend.Error(err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}

	out := make([]map[string]string, 0, len(keys))
	for _, k := range keys {
		h, err := r.client.HGetAll(ctx, k).Result()
		if err != nil {
			return nil, registry.CodeBackend.Error(err)
		}
		out = append(out, h)
	}
	return out, nil
}

func hashToDetail(h map[string]string) registry.ServerDetail {
	d := registry.ServerDetail{
		SessionKey: hexFromDecimal(h["session_key"]),
		Online:     h["online"] == "1",
		IPv4:       h["ipv4"],
		IPv6:       h["ipv6"],
	}

	if d.IPv4 != "" {
		d.ServerID = registry.ComputeServerID(net.ParseIP(d.IPv4), parsePort(h["ipv4_port"]))
	} else if d.IPv6 != "" {
		d.ServerID = registry.ComputeServerID(net.ParseIP(d.IPv6), parsePort(h["ipv6_port"]))
	}

	if fs, err := strconv.ParseInt(h["first_seen"], 10, 64); err == nil {
		d.FirstSeen = time.Unix(fs, 0).UTC()
	}
	if ls, err := strconv.ParseInt(h["last_seen"], 10, 64); err == nil {
		d.LastSeen = time.Unix(ls, 0).UTC()
	}

	if raw := h["info_json"]; raw != "" {
		var g registry.GameInfo
		if err := json.Unmarshal([]byte(raw), &g); err == nil {
			d.Info = &g
		}
	}
	return d
}

func parsePort(s string) uint16 {
	v, _ := strconv.ParseUint(s, 10, 16)
	return uint16(v)
}

func hexFromDecimal(s string) string {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return ""
	}
	return strconv.FormatUint(v, 16)
}
