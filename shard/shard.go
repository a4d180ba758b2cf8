// Package shard defines the partition interface the coordinator fans a
// pipeline out to and implements it over an in-process catalog.
package shard

//go:generate mockgen -destination=./mock/mock_shard.go -package=mock github.com/brimdata/docpipe/shard Shard,Cursor

import (
	"context"
	"time"

	"github.com/brimdata/docpipe"
	"github.com/brimdata/docpipe/compiler/dag"
	"github.com/brimdata/docpipe/compiler/kernel"
	"github.com/brimdata/docpipe/expr"
	"github.com/brimdata/docpipe/field"
	"github.com/brimdata/docpipe/routing"
	"github.com/brimdata/docpipe/zbuf"
)

// Request asks a partition to run the shard half of a split pipeline over
// its documents of Collection.
type Request struct {
	Collection string
	// Version is the routing version the coordinator targeted with.  The
	// partition rejects the request when its own version differs, unless
	// AnyVersion is set.
	Version    routing.Version
	AnyVersion bool
	Pipeline   *dag.Sequential
	Expr       *expr.Context
	// MaxTime bounds the request on the partition.  Zero means no bound.
	MaxTime     time.Duration
	Explain     bool
	MemMaxBytes int
}

// Shard is one partition of the cluster.
type Shard interface {
	ID() string
	Open(ctx context.Context, req *Request) (Cursor, error)
	Find(ctx context.Context, coll string, on field.List, key []docpipe.Value) (*docpipe.Document, bool, error)
	Replace(ctx context.Context, coll string, on field.List, key []docpipe.Value, doc *docpipe.Document) error
	Insert(ctx context.Context, coll string, docs ...*docpipe.Document) error
	ReplaceAll(ctx context.Context, coll string, docs []*docpipe.Document) error
	Drop(ctx context.Context, coll string) error
	Has(ctx context.Context, coll string) (bool, error)
	// SetVersion installs the routing version of coll that requests must
	// carry from now on.
	SetVersion(ctx context.Context, coll string, v routing.Version) error
}

// Cursor streams the result of a Request.  Close releases it and must be
// called even after the stream ends.
type Cursor interface {
	zbuf.Puller
	Stats() []kernel.StageStats
	Close() error
}
