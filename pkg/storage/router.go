package storage

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// Router dispatches each call to the engine for the URI's scheme.  Engines
// are created the first time their scheme is used.
type Router struct {
	mu      sync.Mutex
	enabled map[Scheme]struct{}
	engines map[Scheme]Engine
}

var _ Engine = (*Router)(nil)

func NewRouter() *Router {
	return &Router{
		enabled: make(map[Scheme]struct{}),
		engines: make(map[Scheme]Engine),
	}
}

func (r *Router) Enable(scheme Scheme) {
	r.mu.Lock()
	r.enabled[scheme] = struct{}{}
	r.mu.Unlock()
}

// Register installs engine for scheme, e.g., an S3 engine with a custom
// client.
func (r *Router) Register(scheme Scheme, engine Engine) {
	r.mu.Lock()
	r.enabled[scheme] = struct{}{}
	r.engines[scheme] = engine
	r.mu.Unlock()
}

func (r *Router) lookup(u *URI) (Engine, error) {
	scheme := Scheme(u.Scheme)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.enabled[scheme]; !ok {
		return nil, fmt.Errorf("storage scheme %q not enabled", scheme)
	}
	if engine, ok := r.engines[scheme]; ok {
		return engine, nil
	}
	var engine Engine
	switch scheme {
	case FileScheme:
		engine = NewFileSystem()
	case S3Scheme:
		engine = NewS3()
	default:
		return nil, fmt.Errorf("unknown storage scheme %q", scheme)
	}
	r.engines[scheme] = engine
	return engine, nil
}

func (r *Router) Get(ctx context.Context, u *URI) (io.ReadCloser, error) {
	engine, err := r.lookup(u)
	if err != nil {
		return nil, err
	}
	return engine.Get(ctx, u)
}

func (r *Router) Put(ctx context.Context, u *URI) (io.WriteCloser, error) {
	engine, err := r.lookup(u)
	if err != nil {
		return nil, err
	}
	return engine.Put(ctx, u)
}

func (r *Router) Delete(ctx context.Context, u *URI) error {
	engine, err := r.lookup(u)
	if err != nil {
		return err
	}
	return engine.Delete(ctx, u)
}

func (r *Router) Exists(ctx context.Context, u *URI) (bool, error) {
	engine, err := r.lookup(u)
	if err != nil {
		return false, err
	}
	return engine.Exists(ctx, u)
}

func (r *Router) List(ctx context.Context, u *URI) ([]Info, error) {
	engine, err := r.lookup(u)
	if err != nil {
		return nil, err
	}
	return engine.List(ctx, u)
}
