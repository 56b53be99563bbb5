package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hanpama/rosterql/internal/config"
	"github.com/hanpama/rosterql/internal/eventbus"
	"github.com/hanpama/rosterql/internal/graph"
	"github.com/hanpama/rosterql/internal/logging"
	"github.com/hanpama/rosterql/internal/metrics"
	"github.com/hanpama/rosterql/internal/otel"
	"github.com/hanpama/rosterql/internal/roster"
	"github.com/hanpama/rosterql/internal/server"
	"github.com/hanpama/rosterql/internal/store"
	"github.com/hanpama/rosterql/internal/workerpool"
)

const rootUsage = `rosterql: GraphQL gateway over a team roster database

USAGE:
  rosterql <command> [flags]

COMMANDS:
  serve            Run the HTTP GraphQL gateway
  migrate          Apply database migrations
  print-schema     Print the GraphQL schema as SDL
  help             Show help for any command

Settings are read from the environment and an optional .env file
(DATABASE_URL, LOG_LEVEL, LOG_FORMAT, ROSTERQL_*). Flags override them.
`

const serveUsage = `serve FLAGS:
  -env <file>                         dotenv file to load (default: .env if present)
  -db.url <url>                       postgres://… or sqlite://path (env DATABASE_URL)
  -db.max-conns N                     Max open database connections (default: 10)
  -db.conn-max-lifetime <duration>    Recycle connections older than this (default: 30m, 0 keeps them)
  -db.migrate                         Apply migrations before serving
  -graphql.introspection <bool>       Enable GraphQL introspection (default: true)
  -server.addr <addr>                 HTTP listen address (default: localhost:8080)
  -server.public-url <url>            External base URL used by GraphiQL
  -server.pretty                      Pretty-print JSON responses
  -server.exec-timeout <duration>     Max wait for an accepted execution (default: 0, none)
  -server.shutdown-timeout <duration> Grace period for in-flight requests (default: 10s)
  -server.max-body-bytes N            Request body limit (default: 1048576)
  -server.cors-origin <origin>        Allowed CORS origin. Repeatable
  -server.rate-limit <rps>            Requests per second admitted to /graphql (default: 0, off)
  -server.rate-burst N                Rate limit burst
  -pool.workers N                     Concurrent executions (default: 4 x GOMAXPROCS)
  -pool.queue-depth N                 Requests allowed to wait for a worker (default: 64)
  -otel.endpoint <addr>               OTLP collector endpoint
  -otel.service <name>                OpenTelemetry service name (default: rosterql)
`

const migrateUsage = `migrate FLAGS:
  -env <file>      dotenv file to load (default: .env if present)
  -db.url <url>    postgres://… or sqlite://path (env DATABASE_URL)
  -seed            Insert the demo roster when the database is empty
`

const printSchemaUsage = `print-schema FLAGS:
  -out <file>      Write SDL to file (default: stdout)
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func run(args []string) error {
	global := flag.NewFlagSet("rosterql", flag.ContinueOnError)
	global.SetOutput(new(bytes.Buffer)) // silence automatic output
	if err := global.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, rootUsage)
		return err
	}
	remaining := global.Args()
	if len(remaining) == 0 {
		fmt.Fprint(os.Stderr, rootUsage)
		return fmt.Errorf("missing command")
	}

	cmd := remaining[0]
	cmdArgs := remaining[1:]
	switch cmd {
	case "serve":
		return cmdServe(cmdArgs)
	case "migrate":
		return cmdMigrate(cmdArgs)
	case "print-schema":
		return cmdPrintSchema(cmdArgs)
	case "help":
		return cmdHelp(cmdArgs)
	default:
		fmt.Fprint(os.Stderr, rootUsage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func cmdHelp(args []string) error {
	if len(args) == 0 {
		fmt.Print(rootUsage)
		return nil
	}
	switch args[0] {
	case "serve":
		fmt.Print(serveUsage)
	case "migrate":
		fmt.Print(migrateUsage)
	case "print-schema":
		fmt.Print(printSchemaUsage)
	default:
		return fmt.Errorf("unknown help topic %q", args[0])
	}
	return nil
}

type stringListFlag []string

func (s *stringListFlag) String() string { return strings.Join(*s, ",") }

func (s *stringListFlag) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// envFileArg finds -env before the real flag set is parsed, so that loaded
// values can serve as flag defaults.
func envFileArg(args []string) string {
	for i, a := range args {
		name, value, hasValue := strings.Cut(strings.TrimLeft(a, "-"), "=")
		if name != "env" || !strings.HasPrefix(a, "-") {
			continue
		}
		if hasValue {
			return value
		}
		if i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func loadConfig(args []string) (*config.Config, error) {
	cfg, err := config.Load(envFileArg(args))
	if err != nil {
		return nil, err
	}
	if _, err := logging.Setup(os.Stderr, cfg.Log.Level, cfg.Log.Format); err != nil {
		return nil, err
	}
	return cfg, nil
}

func cmdServe(args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	var envFile string
	cors := stringListFlag(cfg.Server.CORSOrigins)
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.StringVar(&envFile, "env", "", "dotenv file to load")
	fs.StringVar(&cfg.DB.URL, "db.url", cfg.DB.URL, "Database URL")
	fs.IntVar(&cfg.DB.MaxConns, "db.max-conns", cfg.DB.MaxConns, "Max open database connections")
	fs.DurationVar(&cfg.DB.ConnMaxLifetime, "db.conn-max-lifetime", cfg.DB.ConnMaxLifetime, "Recycle connections older than this")
	fs.BoolVar(&cfg.DB.Migrate, "db.migrate", cfg.DB.Migrate, "Apply migrations before serving")
	fs.BoolVar(&cfg.GraphQL.Introspection, "graphql.introspection", cfg.GraphQL.Introspection, "Enable GraphQL introspection")
	fs.StringVar(&cfg.Server.Addr, "server.addr", cfg.Server.Addr, "HTTP listen address")
	fs.StringVar(&cfg.Server.PublicURL, "server.public-url", cfg.Server.PublicURL, "External base URL")
	fs.BoolVar(&cfg.Server.Pretty, "server.pretty", cfg.Server.Pretty, "Pretty-print JSON responses")
	fs.DurationVar(&cfg.Server.ExecTimeout, "server.exec-timeout", cfg.Server.ExecTimeout, "Max wait for an accepted execution")
	fs.DurationVar(&cfg.Server.ShutdownTimeout, "server.shutdown-timeout", cfg.Server.ShutdownTimeout, "Grace period for in-flight requests")
	fs.Int64Var(&cfg.Server.MaxBodyBytes, "server.max-body-bytes", cfg.Server.MaxBodyBytes, "Request body limit")
	fs.Var(&cors, "server.cors-origin", "Allowed CORS origin")
	fs.Float64Var(&cfg.Server.RateLimit, "server.rate-limit", cfg.Server.RateLimit, "Requests per second")
	fs.IntVar(&cfg.Server.RateBurst, "server.rate-burst", cfg.Server.RateBurst, "Rate limit burst")
	fs.IntVar(&cfg.Pool.Workers, "pool.workers", cfg.Pool.Workers, "Concurrent executions")
	fs.IntVar(&cfg.Pool.QueueDepth, "pool.queue-depth", cfg.Pool.QueueDepth, "Requests allowed to wait for a worker")
	fs.StringVar(&cfg.Otel.Endpoint, "otel.endpoint", cfg.Otel.Endpoint, "OTLP collector endpoint")
	fs.StringVar(&cfg.Otel.Service, "otel.service", cfg.Otel.Service, "OpenTelemetry service name")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, serveUsage)
		return err
	}
	cfg.Server.CORSOrigins = cors
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.DB.URL == "" {
		fmt.Fprint(os.Stderr, serveUsage)
		return fmt.Errorf("-db.url or %s is required", config.EnvName("db.url"))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eventbus.Use(eventbus.New())
	logging.Subscribe(slog.Default())
	shutdown, err := otel.Setup(ctx, cfg.Otel.Endpoint, cfg.Otel.Service)
	if err != nil {
		return fmt.Errorf("otel setup: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	st, err := store.Open(ctx, store.Config{URL: cfg.DB.URL, MaxConns: cfg.DB.MaxConns, ConnMaxLifetime: cfg.DB.ConnMaxLifetime})
	if err != nil {
		return err
	}
	defer st.Close()
	if cfg.DB.Migrate {
		if err := st.Migrate(ctx); err != nil {
			return err
		}
	}

	sch, err := roster.NewSchema(graph.WithIntrospection(cfg.GraphQL.Introspection))
	if err != nil {
		return err
	}

	pool, err := workerpool.New(workerpool.Config{Workers: cfg.Pool.Workers, QueueDepth: cfg.Pool.QueueDepth})
	if err != nil {
		return err
	}
	defer func() {
		if err := pool.Release(cfg.Server.ShutdownTimeout); err != nil {
			slog.Warn("worker pool release", "error", err)
		}
	}()

	m := metrics.New(pool)
	m.Subscribe()

	sopts := []server.Option{
		server.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
		server.WithExecTimeout(cfg.Server.ExecTimeout),
	}
	if cfg.Server.Pretty {
		sopts = append(sopts, server.WithPretty())
	}
	if len(cfg.Server.CORSOrigins) > 0 {
		sopts = append(sopts, server.WithCORS(cfg.Server.CORSOrigins...))
	}
	if cfg.Server.RateLimit > 0 {
		sopts = append(sopts, server.WithRateLimit(cfg.Server.RateLimit, cfg.Server.RateBurst))
	}
	h, err := server.New(sch, graph.Context{Store: st}, pool, sopts...)
	if err != nil {
		return fmt.Errorf("server init: %w", err)
	}
	mux, err := server.NewMux(server.Routes{
		GraphQL:  h,
		Endpoint: cfg.Server.EndpointURL(),
		Metrics:  m.Handler(),
	})
	if err != nil {
		return fmt.Errorf("server init: %w", err)
	}

	slog.Info("starting",
		"store", st.Driver(),
		"workers", pool.Cap(),
		"queue_depth", cfg.Pool.QueueDepth,
		"graphiql", strings.TrimSuffix(cfg.Server.EndpointURL(), "/graphql")+"/graphiql",
	)
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return server.ListenAndServe(ctx, srv, cfg.Server.ShutdownTimeout)
}

func cmdMigrate(args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	var envFile string
	seed := false
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.StringVar(&envFile, "env", "", "dotenv file to load")
	fs.StringVar(&cfg.DB.URL, "db.url", cfg.DB.URL, "Database URL")
	fs.BoolVar(&seed, "seed", seed, "Insert the demo roster when empty")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, migrateUsage)
		return err
	}
	if cfg.DB.URL == "" {
		fmt.Fprint(os.Stderr, migrateUsage)
		return fmt.Errorf("-db.url or %s is required", config.EnvName("db.url"))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, store.Config{URL: cfg.DB.URL, MaxConns: 2, ConnMaxLifetime: cfg.DB.ConnMaxLifetime})
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		return err
	}
	version, dirty, err := st.MigrationVersion()
	if err != nil {
		return err
	}
	slog.Info("migrated", "version", version, "dirty", dirty)

	if seed {
		inserted, err := st.Seed(ctx)
		if err != nil {
			return err
		}
		slog.Info("seed", "inserted", inserted)
	}
	return nil
}

func cmdPrintSchema(args []string) error {
	outFile := ""
	fs := flag.NewFlagSet("print-schema", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.StringVar(&outFile, "out", outFile, "Write SDL to file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, printSchemaUsage)
		return err
	}

	sch, err := roster.NewSchema()
	if err != nil {
		return err
	}
	sdl := sch.SDL()
	if outFile == "" {
		fmt.Print(sdl)
		return nil
	}
	if err := os.WriteFile(outFile, []byte(sdl), 0644); err != nil {
		return fmt.Errorf("write schema: %w", err)
	}
	return nil
}
