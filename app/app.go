// Package app wires the CORE components (endpoint, handler, web, registry)
// together from a config.Config and supervises their goroutines. It is the
// one place that knows about every component at once; cmd/masterserver
// only calls app.Run.
package app

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/nabbar/ottd-masterserver/config"
	"github.com/nabbar/ottd-masterserver/endpoint"
	"github.com/nabbar/ottd-masterserver/handler"
	"github.com/nabbar/ottd-masterserver/metrics"
	"github.com/nabbar/ottd-masterserver/protocol"
	"github.com/nabbar/ottd-masterserver/query"
	"github.com/nabbar/ottd-masterserver/registry"
	"github.com/nabbar/ottd-masterserver/registry/dynamodb"
	"github.com/nabbar/ottd-masterserver/registry/memory"
	"github.com/nabbar/ottd-masterserver/registry/redis"
	"github.com/nabbar/ottd-masterserver/source"
	"github.com/nabbar/ottd-masterserver/web"

	awscfg "github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	dynamodbsvc "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	goredis "github.com/redis/go-redis/v9"
)

// Run builds every component from cfg and blocks until ctx is cancelled or
// any supervised goroutine returns an error, at which point the rest are
// cancelled too (errgroup semantics).
func Run(ctx context.Context, cfg *config.Config, log *logrus.Entry) error {
	reg, err := buildRegistry(ctx, cfg)
	if err != nil {
		return err
	}

	var met *metrics.Recorder
	var promReg *prometheus.Registry
	if cfg.MetricsEnabled {
		promReg = prometheus.NewRegistry()
		met = metrics.New(promReg)
	}

	relay, err := buildRelay(cfg)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	// h and primary are forward-referenced by the Sender closures below:
	// the Sender has to exist before handler.New returns h, and a direct
	// (non-relay) Sender has to exist before the first endpoint.Bind
	// returns primary. Neither closure is invoked until a REGISTER has
	// been processed, which cannot happen before both are assigned.
	var h *handler.Handler
	var primary *endpoint.Endpoint

	dispatch := func(s source.Source, msg *protocol.Message) { h.Dispatch(s, msg) }
	direct := func(ip net.IP, port uint16) error {
		pkt, err := protocol.EncodeFindServer()
		if err != nil {
			return err
		}
		return primary.Send(&net.UDPAddr{IP: ip, Port: int(port)}, pkt)
	}

	probeTimeout := cfg.ProbeTimeout.Time()
	if probeTimeout <= 0 {
		probeTimeout = query.DefaultTimeout
	}

	send := buildSender(relay, probeTimeout, dispatch, direct, func() source.Endpoint { return primary })
	h = handler.New(gctx, reg, send, log.WithField("component", "handler"), met).
		WithTiming(probeTimeout, cfg.SweepInterval.Time())

	eps := make([]*endpoint.Endpoint, 0, len(cfg.BindAddresses))
	for i, addr := range cfg.BindAddresses {
		ep, bindErr := endpoint.Bind(addr, cfg.ProxyProtocol, h, log.WithField("component", "endpoint").WithField("addr", addr), met)
		if bindErr != nil {
			return bindErr
		}
		if i == 0 {
			primary = ep
		}
		eps = append(eps, ep)

		g.Go(func() error { return ep.Serve(gctx) })
	}

	g.Go(func() error { return h.RunSweeper(gctx) })
	g.Go(func() error { return serveWeb(gctx, cfg, reg, log, promReg) })

	go func() {
		<-gctx.Done()
		for _, ep := range eps {
			_ = ep.Close()
		}
	}()

	return g.Wait()
}

// buildSender returns the query.Sender that transmits a probe. With no
// relay configured it sends directly through the bound endpoint; with a
// relay, it opens an ephemeral SOCKS5 UDP association per probe and
// synthesizes the reply back into dispatch, the same path a directly
// received RESPONSE datagram takes.
func buildSender(relay *endpoint.Relay, timeout time.Duration, dispatch func(source.Source, *protocol.Message), direct query.Sender, primary func() source.Endpoint) query.Sender {
	if relay == nil {
		return direct
	}

	return func(ip net.IP, port uint16) error {
		dst := &net.UDPAddr{IP: ip, Port: int(port)}

		go func() {
			data, err := relay.Probe(dst, timeout)
			if err != nil {
				return
			}
			msg, err := protocol.Decode(data)
			if err != nil {
				return
			}
			// RESPONSE arrived over the relay, but any reply this produces
			// (MASTER_ACK_REGISTER) still goes out over the directly bound
			// socket the server REGISTERed through, not back through the
			// relay: only outbound probes are relayed.
			dispatch(source.Source{Endpoint: primary(), SocketAddr: dst, EffectiveIP: ip, EffectivePort: port}, msg)
		}()

		return nil
	}
}

func buildRelay(cfg *config.Config) (*endpoint.Relay, error) {
	if cfg.SocksURL == "" {
		return nil, nil
	}
	return endpoint.NewRelay(cfg.SocksURL)
}

func buildRegistry(ctx context.Context, cfg *config.Config) (registry.Registry, error) {
	switch cfg.RegistryBackend {
	case config.BackendDynamoDB:
		opts := []func(*awscfg.LoadOptions) error{}
		if cfg.DynamoDBAccessKey != "" && cfg.DynamoDBSecretKey != "" {
			opts = append(opts, awscfg.WithCredentialsProvider(
				awscreds.NewStaticCredentialsProvider(cfg.DynamoDBAccessKey, cfg.DynamoDBSecretKey, ""),
			))
		}
		awsCfg, err := awscfg.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, err
		}
		client := dynamodbsvc.NewFromConfig(awsCfg, func(o *dynamodbsvc.Options) {
			if cfg.DynamoDBEndpoint != "" {
				o.BaseEndpoint = &cfg.DynamoDBEndpoint
			}
		})
		return dynamodb.New(client, cfg.DynamoDBTable), nil

	case config.BackendRedis:
		client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		return redis.New(client), nil

	default:
		return memory.New(), nil
	}
}

func serveWeb(ctx context.Context, cfg *config.Config, reg registry.Registry, log *logrus.Entry, promReg *prometheus.Registry) error {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	web.New(reg, log.WithField("component", "web")).Register(engine)
	if promReg != nil {
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(promReg, promhttp.HandlerOpts{})))
	}

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: engine}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
