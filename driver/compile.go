package driver

import (
	"strings"
	"sync"

	"github.com/brimdata/docpipe"
	"github.com/brimdata/docpipe/compiler/dag"
	"github.com/brimdata/docpipe/compiler/optimizer"
	"github.com/brimdata/docpipe/compiler/parser"
	"github.com/brimdata/docpipe/dperr"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// compiled is a parsed and optimized pipeline.  Compiled pipelines are
// shared between queries and never modified.
type compiled struct {
	seq      *dag.Sequential
	rewrites []optimizer.Rewrite
}

type compileCache struct {
	config optimizer.Config
	lru    *lru.Cache[string, *compiled]
}

func newCompileCache(config optimizer.Config, size int) (*compileCache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c, err := lru.New[string, *compiled](size)
	if err != nil {
		return nil, err
	}
	return &compileCache{config: config, lru: c}, nil
}

// cacheKey is the canonical text of everything compile depends on.
func cacheKey(req *AggregateRequest) string {
	var b strings.Builder
	b.WriteString(req.Collection)
	b.WriteByte(0)
	b.WriteString(req.Pipeline.String())
	b.WriteByte(0)
	if req.Let != nil {
		for _, f := range req.Let.Fields() {
			b.WriteString(f.Name)
			b.WriteByte(',')
		}
	}
	if req.Collation != "" {
		b.WriteString("\x00collated")
	}
	return b.String()
}

func (c *compileCache) compile(req *AggregateRequest) (*compiled, error) {
	key := cacheKey(req)
	if p, ok := c.lru.Get(key); ok {
		return p, nil
	}
	var let []string
	if req.Let != nil {
		for _, f := range req.Let.Fields() {
			let = append(let, f.Name)
		}
	}
	seq, err := parser.ParsePipeline(req.Pipeline, &parser.Options{Let: let})
	if err != nil {
		return nil, err
	}
	if len(seq.Ops) == 0 || !isDocuments(seq.Ops[0]) {
		if req.Collection == "" {
			return nil, dperr.E(dperr.InvalidArgument, dperr.Code(73), "{aggregate: 1} is not valid for '%s'; a collection is required.", firstStage(seq))
		}
		seq = dag.NewSequential(append([]dag.Op{&dag.Scan{Kind: "Scan", Collection: req.Collection}}, seq.Ops...)...)
	}
	o := optimizer.New(c.config, req.Collation != "")
	seq, err = o.Optimize(seq)
	if err != nil {
		return nil, err
	}
	p := &compiled{seq: seq, rewrites: o.Rewrites()}
	c.lru.Add(key, p)
	return p, nil
}

func isDocuments(op dag.Op) bool {
	_, ok := op.(*dag.Documents)
	return ok
}

func firstStage(seq *dag.Sequential) string {
	if len(seq.Ops) == 0 {
		return "an empty pipeline"
	}
	return dag.StageName(seq.Ops[0])
}

// lockedCollator serializes a collate.Collator, which keeps scratch
// buffers, for use by concurrent partitions.
type lockedCollator struct {
	mu sync.Mutex
	c  *collate.Collator
}

func newCollator(locale string) (docpipe.Collator, error) {
	tag, err := language.Parse(locale)
	if err != nil {
		return nil, dperr.E(dperr.InvalidArgument, dperr.BadValue, "Field 'locale' is invalid in: { locale: \"%s\" }", locale)
	}
	return &lockedCollator{c: collate.New(tag)}, nil
}

func (l *lockedCollator) CompareString(a, b string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.c.CompareString(a, b)
}
