// Package queryflags holds the flags that shape one aggregate request.
package queryflags

import (
	"errors"
	"flag"
	"fmt"

	"github.com/brimdata/docpipe"
	"github.com/brimdata/docpipe/cluster"
	"github.com/brimdata/docpipe/compiler/optimizer"
	"github.com/brimdata/docpipe/compiler/parser"
	"github.com/brimdata/docpipe/driver"
)

type Flags struct {
	Optimizer  optimizer.Config
	Collection string
	Location   string
	noOpt      bool
	noPasses   struct{ coalesce, pushdown, sortElision bool }
	includes   []string
	let        string
	collation  string
}

func (f *Flags) SetFlags(fs *flag.FlagSet) {
	fs.BoolVar(&f.noOpt, "O0", false, "turn off every optimizer pass")
	fs.BoolVar(&f.noPasses.coalesce, "no.coalesce", false, "turn off stage coalescing")
	fs.BoolVar(&f.noPasses.pushdown, "no.pushdown", false, "turn off filter pushdown")
	fs.BoolVar(&f.noPasses.sortElision, "no.sortelision", false, "turn off sort elision")
	fs.StringVar(&f.Collection, "c", "", "collection to aggregate (default first input)")
	fs.StringVar(&f.Location, "merge", "coordinatorOnly", "merge location (coordinatorOnly, anyPartition, localOnly, specificPartition:id)")
	fs.Func("I", "file of pipeline stages to run first (may be repeated)", func(s string) error {
		f.includes = append(f.includes, s)
		return nil
	})
	fs.StringVar(&f.let, "let", "", "extended JSON document of variables")
	fs.StringVar(&f.collation, "collation", "", "locale for string comparison")
}

func (f *Flags) Init() error {
	f.Optimizer = optimizer.DefaultConfig()
	if f.noOpt {
		f.Optimizer = optimizer.Disabled()
	}
	if f.noPasses.coalesce {
		f.Optimizer.Coalesce = false
	}
	if f.noPasses.pushdown {
		f.Optimizer.Pushdown = false
	}
	if f.noPasses.sortElision {
		f.Optimizer.SortElision = false
	}
	_, err := cluster.ParseLocation(f.Location)
	return err
}

// Parse takes the stages in the -I files followed by the pipeline in the
// first argument and returns them with the remaining arguments.  The
// argument is optional when -I is given.
func (f *Flags) Parse(args []string) (docpipe.Value, []string, error) {
	var src string
	if len(f.includes) == 0 {
		if len(args) == 0 {
			return docpipe.Missing, nil, errors.New("no pipeline given")
		}
		src, args = args[0], args[1:]
	}
	v, err := parser.ReadSource(f.includes, src)
	if err != nil {
		return docpipe.Missing, nil, fmt.Errorf("pipeline: %w", err)
	}
	return v, args, nil
}

// Request builds an aggregate over coll, or over the -c collection when
// one was given.
func (f *Flags) Request(coll string, pipeline docpipe.Value) (*driver.AggregateRequest, error) {
	if f.Collection != "" {
		coll = f.Collection
	}
	req := &driver.AggregateRequest{
		Collection: coll,
		Pipeline:   pipeline,
		Collation:  f.collation,
		BatchSize:  -1,
		Location:   f.Location,
	}
	if f.let != "" {
		let, err := docpipe.ParseDocument([]byte(f.let))
		if err != nil {
			return nil, fmt.Errorf("-let: %w", err)
		}
		req.Let = let
	}
	return req, nil
}
