package service

import (
	"net/http"

	"github.com/brimdata/docpipe/driver"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

// DefaultMaxBodyBytes bounds a command document.
const DefaultMaxBodyBytes = 16 << 20

type Config struct {
	Engine *driver.Engine
	// Registry gathers the metrics served at /metrics.  The cluster
	// behind Engine should register with it.
	Registry *prometheus.Registry
	Logger   *zap.Logger
	// CORSOrigins lists the origins allowed to make cross-origin
	// requests.  Empty allows any origin.
	CORSOrigins  []string
	MaxBodyBytes int64
	Version      string
}

type Core struct {
	conf      Config
	engine    *driver.Engine
	logger    *zap.Logger
	handler   http.Handler
	routerAPI *mux.Router
	routerAux *mux.Router
}

func NewCore(conf Config) *Core {
	if conf.Logger == nil {
		conf.Logger = zap.NewNop()
	}
	if conf.Registry == nil {
		conf.Registry = prometheus.NewRegistry()
	}
	if conf.MaxBodyBytes <= 0 {
		conf.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if conf.Version == "" {
		conf.Version = "unknown"
	}
	c := &Core{
		conf:   conf,
		engine: conf.Engine,
		logger: conf.Logger.Named("core"),
	}

	c.routerAux = mux.NewRouter()
	c.routerAux.Handle("/metrics", promhttp.HandlerFor(conf.Registry, promhttp.HandlerOpts{})).Methods("GET")
	c.routerAux.HandleFunc("/status", c.handleStatus).Methods("GET")

	c.routerAPI = mux.NewRouter()
	c.routerAPI.Use(requestIDMiddleware())
	c.routerAPI.Use(accessLogMiddleware(conf.Logger))
	c.routerAPI.Use(panicCatchMiddleware(conf.Logger))
	c.handle("/aggregate", handleAggregate).Methods("POST")
	c.handle("/getMore", handleGetMore).Methods("POST")
	c.handle("/killCursors", handleKillCursors).Methods("POST")
	c.handle("/explain", handleExplain).Methods("POST")

	opts := cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type", RequestIDHeader},
		ExposedHeaders: []string{RequestIDHeader},
	}
	if len(conf.CORSOrigins) > 0 {
		opts.AllowedOrigins = conf.CORSOrigins
	}
	c.handler = cors.New(opts).Handler(http.HandlerFunc(c.route))
	c.logger.Info("Started", zap.Strings("shards", conf.Engine.Cluster().ShardIDs()), zap.String("version", conf.Version))
	return c
}

func (c *Core) handle(path string, f func(*Core, *ResponseWriter, *Request)) *mux.Route {
	return c.routerAPI.Handle(path, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res, req := newRequest(w, r, c)
		f(c, res, req)
	}))
}

func (c *Core) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.handler.ServeHTTP(w, r)
}

func (c *Core) route(w http.ResponseWriter, r *http.Request) {
	var rm mux.RouteMatch
	if c.routerAux.Match(r, &rm) {
		rm.Handler.ServeHTTP(w, r)
		return
	}
	c.routerAPI.ServeHTTP(w, r)
}

func (c *Core) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := c.engine.Status()
	res := &ResponseWriter{ResponseWriter: w, Logger: c.logger}
	res.Respond(http.StatusOK, status)
}

func (c *Core) Shutdown() {
	if err := c.engine.Close(); err != nil {
		c.logger.Warn("Closing cursors", zap.Error(err))
	}
	c.logger.Info("Shutdown")
}
