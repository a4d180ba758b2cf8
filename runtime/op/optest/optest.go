// Package optest has helpers for operator tests.
package optest

import (
	"testing"

	"github.com/brimdata/docpipe"
	"github.com/brimdata/docpipe/compiler/dag"
	"github.com/brimdata/docpipe/compiler/parser"
	"github.com/brimdata/docpipe/zbuf"
	"github.com/stretchr/testify/require"
)

// Docs parses each of ss as an extended JSON document.
func Docs(ss ...string) []*docpipe.Document {
	out := make([]*docpipe.Document, 0, len(ss))
	for _, s := range ss {
		out = append(out, docpipe.MustParseDocument(s))
	}
	return out
}

// Strings renders docs in compact extended JSON.
func Strings(docs []*docpipe.Document) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.String())
	}
	return out
}

// Canonical renders each of ss the way Strings renders documents.
func Canonical(ss ...string) []string {
	return Strings(Docs(ss...))
}

// Stage parses a one-stage pipeline.
func Stage(t testing.TB, s string) dag.Op {
	t.Helper()
	seq, err := parser.ParsePipeline(docpipe.MustParse("["+s+"]"), nil)
	require.NoError(t, err)
	require.Len(t, seq.Ops, 1)
	return seq.Ops[0]
}

// Recorder wraps a Puller and records how it was pulled.
type Recorder struct {
	zbuf.Puller
	Pulls int
	Done  bool
}

func NewRecorder(docs ...*docpipe.Document) *Recorder {
	return &Recorder{Puller: zbuf.NewPuller(zbuf.NewArray(docs), 2)}
}

func (r *Recorder) Pull(done bool) (zbuf.Batch, error) {
	r.Pulls++
	if done {
		r.Done = true
	}
	return r.Puller.Pull(done)
}
