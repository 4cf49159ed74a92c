// Command masterserver is the launcher: it parses flags, builds a
// config.Config, and calls app.Run. It holds no protocol or registry
// logic of its own.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nabbar/ottd-masterserver/app"
	"github.com/nabbar/ottd-masterserver/config"
	"github.com/nabbar/ottd-masterserver/internal/log"
)

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	v := viper.New()
	config.SetDefaults(v)

	cmd := &cobra.Command{
		Use:   "masterserver",
		Short: "OpenTTD master server: UDP registration + HTTP read path",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), v)
		},
	}

	flags := cmd.Flags()
	flags.StringSlice("bind", nil, "UDP bind address (host:port); may be repeated for dual-stack")
	flags.String("http-addr", "", "HTTP bind address (host:port) for the JSON read path")
	flags.Bool("proxy-protocol", false, "expect a PROXY protocol v1 header on inbound UDP datagrams")
	flags.String("socks-url", "", "socks5://[user:pass@]host:port to relay outbound probes through")
	flags.String("registry-backend", "", "memory | dynamodb | redis")
	flags.String("dynamodb-table", "", "DynamoDB table name (registry-backend=dynamodb)")
	flags.String("dynamodb-endpoint", "", "DynamoDB endpoint override, for local development")
	flags.String("dynamodb-access-key", "", "static access key for DynamoDB, for use with dynamodb-endpoint")
	flags.String("dynamodb-secret-key", "", "static secret key for DynamoDB, for use with dynamodb-endpoint")
	flags.String("redis-addr", "", "Redis host:port (registry-backend=redis)")
	flags.Int("redis-db", 0, "Redis logical database index")
	flags.String("log-level", "", "debug | info | warn | error")
	flags.String("log-format", "", "text | json")
	flags.Bool("metrics", true, "expose prometheus metrics on /metrics")
	flags.String("probe-timeout", "", "per-attempt wait for a CLIENT_FIND_SERVER probe reply, e.g. 5s")
	flags.String("sweep-interval", "", "how often the registry's stale-entry sweep runs, e.g. 5m")

	bind := map[string]string{
		"bind":              "bind_addresses",
		"http-addr":         "http_addr",
		"proxy-protocol":    "proxy_protocol",
		"socks-url":         "socks_url",
		"registry-backend":  "registry_backend",
		"dynamodb-table":    "dynamodb_table",
		"dynamodb-endpoint":   "dynamodb_endpoint",
		"dynamodb-access-key": "dynamodb_access_key",
		"dynamodb-secret-key": "dynamodb_secret_key",
		"redis-addr":          "redis_addr",
		"redis-db":            "redis_db",
		"log-level":           "log_level",
		"log-format":          "log_format",
		"metrics":             "metrics_enabled",
		"probe-timeout":       "probe_timeout",
		"sweep-interval":      "sweep_interval",
	}
	for flag, key := range bind {
		_ = v.BindPFlag(key, flags.Lookup(flag))
	}

	v.SetEnvPrefix("OTTD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return cmd
}

func run(ctx context.Context, v *viper.Viper) error {
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	logger := log.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.WithField("udp", cfg.BindAddresses).
		WithField("http", cfg.HTTPAddr).
		WithField("registry_backend", cfg.RegistryBackend).
		Info("starting master server")

	return app.Run(ctx, cfg, logger)
}
