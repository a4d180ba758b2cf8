package serve

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"net/http/pprof"
	"syscall"
	"time"

	"github.com/brimdata/docpipe/cli"
	"github.com/brimdata/docpipe/cli/logflags"
	"github.com/brimdata/docpipe/cmd/docpipe/internal/node"
	"github.com/brimdata/docpipe/cmd/docpipe/root"
	"github.com/brimdata/docpipe/config"
	"github.com/brimdata/docpipe/pkg/charm"
	"github.com/brimdata/docpipe/service"
	"github.com/brimdata/docpipe/service/logger"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

var Cmd = &charm.Spec{
	Name:  "serve",
	Usage: "serve [options]",
	Short: "serve aggregate commands over HTTP",
	Long: `
The serve command runs a cluster of in-process partitions configured by
the YAML file given with -c and serves the aggregate, getMore,
killCursors and explain commands at POST /aggregate, /getMore,
/killCursors and /explain.  Each request body is an extended JSON
command document and each response is an extended JSON document.
GET /status describes the cluster and GET /metrics serves Prometheus
metrics.

Collections listed in the configuration are loaded, and sharded when a
shard key is given, before the server starts listening.

The -l option overrides the configured listen address and the -log
options override the configured log settings.`,
	HiddenFlags: "pprof",
	New:         New,
}

type Command struct {
	*root.Command
	logFlags   logflags.Flags
	configPath string
	listenAddr string
	origins    []string
	pprof      bool
	flags      *flag.FlagSet
}

func New(parent charm.Command, f *flag.FlagSet) (charm.Command, error) {
	c := &Command{Command: parent.(*root.Command), flags: f}
	c.logFlags.SetFlags(f)
	f.StringVar(&c.configPath, "c", "", "path of the YAML configuration file")
	f.StringVar(&c.listenAddr, "l", "", "[addr]:port to listen on (default from configuration)")
	f.Func("cors.origin", "CORS allowed origin (may be repeated)", func(s string) error {
		c.origins = append(c.origins, s)
		return nil
	})
	f.BoolVar(&c.pprof, "pprof", false, "add pprof routes under /debug/pprof/")
	return c, nil
}

func (c *Command) Run(args []string) error {
	if len(args) != 0 {
		return errors.New("serve takes no arguments")
	}
	// SIGPIPE is left out so that a write to a closed connection does
	// not stop the server.
	ctx, cleanup, err := c.InitWithSignals(nil, syscall.SIGINT, syscall.SIGTERM)
	if err != nil {
		return err
	}
	defer cleanup()
	conf, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	c.logFlags.Apply(c.flags, &conf.Log)
	if c.listenAddr != "" {
		conf.Listen = c.listenAddr
	}
	zlog, err := logger.New(conf.Log)
	if err != nil {
		return err
	}
	defer zlog.Sync()
	n, err := node.Open(ctx, conf, zlog)
	if err != nil {
		return err
	}
	defer n.Close()
	n.Registry.MustRegister(prometheus.NewGoCollector())
	n.Registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	core := service.NewCore(service.Config{
		Engine:      n.Engine,
		Registry:    n.Registry,
		Logger:      zlog,
		CORSOrigins: c.origins,
		Version:     cli.Version(),
	})
	var h http.Handler = core
	if c.pprof {
		h = pprofHandlers(h)
	}
	ln, err := net.Listen("tcp", conf.Listen)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	zlog.Info("Listening", zap.Stringer("addr", ln.Addr()), zap.Int("collections", len(conf.Collections)))
	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		n.Engine.Run(gctx)
		return nil
	})
	group.Go(func() error {
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-gctx.Done()
		zlog.Info("Shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(sctx)
		core.Shutdown()
		return err
	})
	err = group.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func pprofHandlers(h http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/", h)
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return mux
}
