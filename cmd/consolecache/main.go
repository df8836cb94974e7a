// Command consolecache drives the console's resource cache from a terminal:
// it watches a resource list as the cache sees it, or runs one mutation with
// its optimistic patch and tag invalidation.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/unkn0wn-root/tagcache"
	"github.com/unkn0wn-root/tagcache/codec"
	"github.com/unkn0wn-root/tagcache/config"
	asynchook "github.com/unkn0wn-root/tagcache/hooks/async"
	promhooks "github.com/unkn0wn-root/tagcache/hooks/prom"
	logruslog "github.com/unkn0wn-root/tagcache/log/logrus"
	sloglog "github.com/unkn0wn-root/tagcache/log/slog"
	zaplog "github.com/unkn0wn-root/tagcache/log/zap"
	"github.com/unkn0wn-root/tagcache/resource"
	"github.com/unkn0wn-root/tagcache/sloghooks"
	"github.com/unkn0wn-root/tagcache/transport"
)

var version = "dev"

const usage = `usage: consolecache [flags] <command> [args]

commands:
  watch <resource> [name=value ...]    print the list every time it changes
  mutate <resource> <operation> [name=value ...]
                                       run one write; -data sets the JSON body
  routes                               print the route table
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("consolecache", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	configPath := fs.String("config", "", "Path to configuration file (environment only when empty)")
	validateOnly := fs.Bool("validate", false, "Validate configuration and exit")
	showVersion := fs.Bool("version", false, "Show version information")
	once := fs.Bool("once", false, "watch: exit after the first settled snapshot")
	data := fs.String("data", "", "mutate: JSON request body")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *showVersion {
		fmt.Fprintf(stdout, "consolecache %s\n", version)
		return 0
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load configuration: %v\n", err)
		return 1
	}
	if *validateOnly {
		fmt.Fprintln(stdout, "Configuration is valid")
		return 0
	}

	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return 2
	}
	if rest[0] == "routes" {
		printRoutes(stdout, cfg.Transport(nil, nil).Routes)
		return 0
	}

	app, err := open(ctx, cfg, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to start: %v\n", err)
		return 1
	}
	defer app.close()

	switch rest[0] {
	case "watch":
		if len(rest) < 2 {
			fs.Usage()
			return 2
		}
		err = watch(ctx, app.store, rest[1], parseArgs(rest[2:]), *once, stdout)
	case "mutate":
		if len(rest) < 3 {
			fs.Usage()
			return 2
		}
		err = mutate(ctx, app.store, rest[1], rest[2], parseArgs(rest[3:]), *data, stdout)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", rest[0])
		fs.Usage()
		return 2
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		app.log.Error("command failed", tagcache.Fields{"command": rest[0], "err": err})
		fmt.Fprintf(stderr, "%s: %v\n", rest[0], err)
		return 1
	}
	return 0
}

type app struct {
	store   *tagcache.Store
	log     tagcache.Logger
	closers []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func open(ctx context.Context, cfg *config.Config, stderr io.Writer) (*app, error) {
	a := &app{}
	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	logger, flush, err := newLogger(cfg.Log, stderr)
	if err != nil {
		return nil, err
	}
	a.log = logger
	a.closers = append(a.closers, flush)

	var hooks []tagcache.Hooks
	if cfg.Log.HookSampling > 0 {
		opts := sloghooks.Options{FetchEvery: cfg.Log.HookSampling, DiscardEvery: cfg.Log.HookSampling}
		if cfg.Log.RedactKeys {
			opts.Redact = sloghooks.Hash
		}
		async := asynchook.New(sloghooks.New(sloglog.New(stderr, cfg.Log.Level), opts), 1, 1024)
		a.closers = append(a.closers, async.Close)
		hooks = append(hooks, async)
	}
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		ph, err := promhooks.New(reg, cfg.Metrics.Namespace)
		if err != nil {
			return nil, fmt.Errorf("metrics: %w", err)
		}
		hooks = append(hooks, ph)
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server stopped", tagcache.Fields{"addr": cfg.Metrics.Addr, "err": err})
			}
		}()
		a.closers = append(a.closers, func() { _ = srv.Close() })
	}

	tokens, release, err := cfg.Tokens(ctx)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = release() })

	reg := resource.Default(cfg.API.MaxPayloadBytes)
	client, err := transport.New(cfg.Transport(reg, tokens))
	if err != nil {
		return nil, err
	}
	store, err := tagcache.New(cfg.Store(client, reg, logger, tagcache.MultiHooks(hooks...)))
	if err != nil {
		return nil, err
	}
	a.store = store
	a.closers = append(a.closers, func() {
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Close(cctx); err != nil {
			logger.Warn("store close", tagcache.Fields{"err": err})
		}
	})

	logger.Info("console cache ready", tagcache.Fields{"version": version, "base_url": cfg.API.BaseURL, "resources": len(reg.Names())})
	ok = true
	return a, nil
}

func newLogger(cfg config.Log, stderr io.Writer) (tagcache.Logger, func(), error) {
	switch cfg.Backend {
	case "logrus":
		e := logruslog.New(cfg.Level)
		e.Logger.SetOutput(stderr)
		return logruslog.Logger{E: e}, func() {}, nil
	case "slog":
		return sloglog.Logger{L: sloglog.New(stderr, cfg.Level)}, func() {}, nil
	default:
		zl, err := zaplog.New(cfg.Level)
		if err != nil {
			return nil, nil, fmt.Errorf("logger: %w", err)
		}
		return zaplog.Logger{L: zl}, func() { _ = zl.Sync() }, nil
	}
}

func watch(ctx context.Context, store *tagcache.Store, res string, args tagcache.Args, once bool, out io.Writer) error {
	snap, sub, err := store.Subscribe(res, args)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	enc := codec.JSON[map[string]any]{}
	last := tagcache.Status(255)
	for {
		if snap.Status != last || !snap.Status.Fetching() {
			line := map[string]any{"key": snap.Key, "status": snap.Status.String(), "data": snap.Data}
			if snap.Err != nil {
				line["error"] = snap.Err.Error()
			}
			b, err := enc.Encode(line)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(b))
			last = snap.Status
		}
		if once && !snap.Status.Fetching() {
			return snap.Err
		}
		select {
		case <-sub.Changed():
			snap = sub.Snapshot()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func mutate(ctx context.Context, store *tagcache.Store, res, op string, params tagcache.Args, body string, out io.Writer) error {
	req := tagcache.MutationRequest{
		Resource:    res,
		Operation:   op,
		Params:      params,
		Invalidates: []tagcache.Tag{tagcache.ListTag(res)},
	}
	if id, ok := params["id"]; ok {
		req.Invalidates = append(req.Invalidates, tagcache.IDTag(res, id))
	}
	if body != "" {
		payload, err := codec.JSON[map[string]any]{}.Decode([]byte(body))
		if err != nil {
			return fmt.Errorf("-data: %w", err)
		}
		req.Payload = payload
	} else if op != resource.OpCreate {
		req.Payload = map[string]any{}
	}

	result, err := store.Mutate(ctx, req)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%d %s\n", result.StatusCode, result.Message)
	return nil
}

// parseArgs turns name=value pairs into Args; integer values stay integers.
func parseArgs(pairs []string) tagcache.Args {
	if len(pairs) == 0 {
		return nil
	}
	args := make(tagcache.Args, len(pairs))
	for _, p := range pairs {
		name, value, _ := strings.Cut(p, "=")
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			args[name] = n
			continue
		}
		args[name] = value
	}
	return args
}

func printRoutes(out io.Writer, routes transport.Routes) {
	names := make([]string, 0, len(routes))
	for res := range routes {
		names = append(names, res)
	}
	sort.Strings(names)
	for _, res := range names {
		ops := make([]string, 0, len(routes[res]))
		for op := range routes[res] {
			ops = append(ops, op)
		}
		sort.Strings(ops)
		for _, op := range ops {
			rt, err := routes.Lookup(res, op)
			if err != nil {
				continue
			}
			fmt.Fprintf(out, "%-14s %-8s %-6s /%s\n", res, op, rt.Method, rt.Path)
		}
	}
}
