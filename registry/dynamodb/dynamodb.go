// Package dynamodb is a production Registry backend keyed by session_key,
// with a secondary lookup table item for (ip,port) -> session_key and an
// expire_at TTL attribute (twice the stale TTL) that lets DynamoDB delete
// long-dead rows; SweepStale itself marks entries offline from last_seen.
package dynamodb

import (
	"context"
	"encoding/json"
	"net"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	libpool "github.com/nabbar/ottd-masterserver/errors/pool"
	"github.com/nabbar/ottd-masterserver/protocol"
	"github.com/nabbar/ottd-masterserver/registry"
	"github.com/nabbar/ottd-masterserver/session"
)

// pkEntry / pkBinding prefix the two item kinds sharing one table, keeping
// the schema to a single hash key ("pk") and avoiding a second table.
const (
	pkEntry   = "ENTRY#"
	pkBinding = "BIND#"
)

// item is the DynamoDB row shape for both entry and binding rows; unused
// fields are simply omitted by attributevalue on marshal.
type item struct {
	PK         string `dynamodbav:"pk"`
	SessionKey uint64 `dynamodbav:"session_key,omitempty"`
	Token      uint8  `dynamodbav:"token,omitempty"`
	IPv4       string `dynamodbav:"ipv4,omitempty"`
	IPv4Port   uint16 `dynamodbav:"ipv4_port,omitempty"`
	IPv6       string `dynamodbav:"ipv6,omitempty"`
	IPv6Port   uint16 `dynamodbav:"ipv6_port,omitempty"`
	Online     bool   `dynamodbav:"online"`
	InfoJSON   string `dynamodbav:"info_json,omitempty"`
	FirstSeen  int64  `dynamodbav:"first_seen"`
	LastSeen   int64  `dynamodbav:"last_seen"`
	ExpireAt   int64  `dynamodbav:"expire_at"` // TTL attribute
}

// Registry is a DynamoDB-backed registry.Registry.
type Registry struct {
	client *dynamodb.Client
	table  string
	now    func() time.Time
}

// New returns a DynamoDB Registry bound to an existing table (see
// cmd/masterserver's --dynamodb-table flag). The table must declare "pk"
// as its partition key and "expire_at" as its TTL attribute.
func New(client *dynamodb.Client, table string) *Registry {
	return &Registry{client: client, table: table, now: time.Now}
}

func entryKey(sk session.Key) string {
	return pkEntry + formatKey(sk)
}

func bindingKey(ip net.IP, port uint16) string {
	return pkBinding + ip.String() + "/" + formatPort(port)
}

func (r *Registry) getItem(ctx context.Context, pk string) (*item, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.table),
		Key:       map[string]types.AttributeValue{"pk": &types.AttributeValueMemberS{Value: pk}},
	})
	if err != nil {
		return nil, registry.CodeBackend.Error(err)
	}
	if out.Item == nil {
		return nil, nil
	}

	var it item
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return nil, registry.CodeBackend.Error(err)
	}
	return &it, nil
}

func (r *Registry) putItem(ctx context.Context, it item) error {
	av, err := attributevalue.MarshalMap(it)
	if err != nil {
		return registry.CodeBackend.Error(err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.table),
		Item:      av,
	})
	if err != nil {
		return registry.CodeBackend.Error(err)
	}
	return nil
}

func (r *Registry) StoreSessionKeyToken(ctx context.Context, stored session.Key, token uint8) error {
	it, err := r.getItem(ctx, entryKey(stored))
	if err != nil {
		return err
	}
	if it == nil {
		it = &item{PK: entryKey(stored), SessionKey: uint64(stored), FirstSeen: r.now().Unix()}
	}
	it.Token = token
	it.ExpireAt = r.now().Add(registry.StaleTTL * 2).Unix()
	return r.putItem(ctx, *it)
}

func (r *Registry) CheckSessionKeyToken(ctx context.Context, stored session.Key, token uint8) (bool, error) {
	if token == 0 {
		return true, nil
	}

	it, err := r.getItem(ctx, entryKey(stored))
	if err != nil {
		return false, err
	}
	if it == nil {
		return false, nil
	}
	return it.Token == token, nil
}

func (r *Registry) ServerOnline(ctx context.Context, sk session.Key, ip net.IP, port uint16, info *protocol.GameInfo) (bool, error) {
	if info == nil || !info.Valid() {
		return false, nil
	}

	bkey := bindingKey(ip, port)
	if prior, err := r.getItem(ctx, bkey); err != nil {
		return false, err
	} else if prior != nil && prior.SessionKey != uint64(sk) {
		if err := r.ServerOffline(ctx, ip, port); err != nil {
			return false, err
		}
	}

	it, err := r.getItem(ctx, entryKey(sk))
	if err != nil {
		return false, err
	}
	if it == nil {
		it = &item{PK: entryKey(sk), SessionKey: uint64(sk), FirstSeen: r.now().Unix()}
	}

	infoJSON, err := json.Marshal(registry.ToWebGameInfo(info))
	if err != nil {
		return false, registry.CodeBackend.Error(err)
	}

	now := r.now()
	if v4 := ip.To4(); v4 != nil {
		it.IPv4, it.IPv4Port = v4.String(), port
	} else {
		it.IPv6, it.IPv6Port = ip.String(), port
	}
	it.Online = true
	it.InfoJSON = string(infoJSON)
	it.LastSeen = now.Unix()
	it.ExpireAt = now.Add(registry.StaleTTL * 2).Unix()

	if err := r.putItem(ctx, *it); err != nil {
		return false, err
	}

	bind := item{PK: bkey, SessionKey: uint64(sk), LastSeen: now.Unix(), ExpireAt: it.ExpireAt}
	if err := r.putItem(ctx, bind); err != nil {
		return false, err
	}

	return true, nil
}

func (r *Registry) ServerOffline(ctx context.Context, ip net.IP, port uint16) error {
	b, err := r.getItem(ctx, bindingKey(ip, port))
	if err != nil {
		return err
	}
	if b == nil {
		return nil
	}

	it, err := r.getItem(ctx, entryKey(session.Key(b.SessionKey)))
	if err != nil {
		return err
	}
	if it == nil {
		return nil
	}

	it.Online = false
	return r.putItem(ctx, *it)
}

func (r *Registry) GetServerListForClient(ctx context.Context, ipv6 bool) ([]registry.Endpoint, error) {
	items, err := r.scanEntries(ctx)
	if err != nil {
		return nil, err
	}

	var out []registry.Endpoint
	for _, it := range items {
		if !it.Online {
			continue
		}
		if ipv6 && it.IPv6 != "" {
			out = append(out, registry.Endpoint{IP: net.ParseIP(it.IPv6), Port: it.IPv6Port})
		} else if !ipv6 && it.IPv4 != "" {
			out = append(out, registry.Endpoint{IP: net.ParseIP(it.IPv4), Port: it.IPv4Port})
		}
	}
	return out, nil
}

func (r *Registry) GetServerInfoForWeb(ctx context.Context, id registry.ServerID) (registry.ServerDetail, bool, error) {
	items, err := r.scanEntries(ctx)
	if err != nil {
		return registry.ServerDetail{}, false, err
	}

	for _, it := range items {
		if detailID(it) == id {
			return itemToDetail(it), true, nil
		}
	}
	return registry.ServerDetail{}, false, nil
}

func (r *Registry) GetServerListForWeb(ctx context.Context) ([]registry.ServerDetail, error) {
	items, err := r.scanEntries(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]registry.ServerDetail, 0, len(items))
	for _, it := range items {
		out = append(out, itemToDetail(it))
	}
	return out, nil
}

func (r *Registry) SweepStale(ctx context.Context) error {
	items, err := r.scanEntries(ctx)
	if err != nil {
		return err
	}

	// Errors from individual entries are pooled rather than returned on the
	// first failure, so one unreachable item doesn't stop the rest of this
	// sweep cycle's entries from going offline on schedule.
	errs := libpool.New()
	deadline := r.now().Add(-registry.StaleTTL).Unix()
	for _, it := range items {
		if it.Online && it.LastSeen < deadline {
			it.Online = false
			if err := r.putItem(ctx, it); err != nil {
				errs.Add(err)
			}
		}
	}
	if errs.Len() > 0 {
		return registry.CodeBackend.Error(errs.Error())
	}
	return nil
}

// scanEntries reads every ENTRY# row. A production deployment with a large
// server population should replace this with a GSI on "online"; the scan
// keeps this reference backend to one table and no secondary index.
func (r *Registry) scanEntries(ctx context.Context) ([]item, error) {
	out, err := r.client.Scan(ctx, &dynamodb.ScanInput{TableName: aws.String(r.table)})
	if err != nil {
		return nil, registry.CodeBackend.Error(err)
	}

	items := make([]item, 0, len(out.Items))
	for _, av := range out.Items {
		var it item
		if err := attributevalue.UnmarshalMap(av, &it); err != nil {
			return nil, registry.CodeBackend.Error(err)
		}
		if len(it.PK) < len(pkEntry) || it.PK[:len(pkEntry)] != pkEntry {
			continue
		}
		items = append(items, it)
	}
	return items, nil
}

func detailID(it item) registry.ServerID {
	if it.IPv4 != "" {
		return registry.ComputeServerID(net.ParseIP(it.IPv4), it.IPv4Port)
	}
	if it.IPv6 != "" {
		return registry.ComputeServerID(net.ParseIP(it.IPv6), it.IPv6Port)
	}
	return ""
}

func itemToDetail(it item) registry.ServerDetail {
	d := registry.ServerDetail{
		ServerID:   detailID(it),
		SessionKey: strconv.FormatUint(it.SessionKey, 16),
		Online:     it.Online,
		FirstSeen:  time.Unix(it.FirstSeen, 0).UTC(),
		LastSeen:   time.Unix(it.LastSeen, 0).UTC(),
		IPv4:       it.IPv4,
		IPv6:       it.IPv6,
	}
	if it.InfoJSON != "" {
		var g registry.GameInfo
		if err := json.Unmarshal([]byte(it.InfoJSON), &g); err == nil {
			d.Info = &g
		}
	}
	return d
}

func formatKey(k session.Key) string {
	return formatUint(uint64(k))
}

func formatPort(p uint16) string {
	return formatUint(uint64(p))
}

func formatUint(v uint64) string {
	if v == 0 {
		return "0"
	}
	const digits = "0123456789"
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = digits[v%10]
		v /= 10
	}
	return string(buf[i:])
}
