package query

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/brimdata/docpipe/cli/inputflags"
	"github.com/brimdata/docpipe/cli/logflags"
	"github.com/brimdata/docpipe/cli/outputflags"
	"github.com/brimdata/docpipe/cli/procflags"
	"github.com/brimdata/docpipe/cli/queryflags"
	"github.com/brimdata/docpipe/cmd/docpipe/internal/node"
	"github.com/brimdata/docpipe/cmd/docpipe/root"
	"github.com/brimdata/docpipe/config"
	"github.com/brimdata/docpipe/pkg/charm"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var Cmd = &charm.Spec{
	Name:  "query",
	Usage: "query [options] pipeline [name=]file...",
	Short: "run a pipeline over files of documents",
	Long: `
The query command loads each file into a collection of an in-process
cluster and runs the pipeline over the first of them (or the collection
named by -c).  Files hold extended JSON documents, either one after
another or as a single array, and may be local paths or s3:// URIs.
A collection is named after its file unless given as name=file.  A
pipeline that begins with $documents needs no files.

The pipeline is an extended JSON array of stages, or a single stage.
With -shards the collections are spread over that many partitions.
Collections stay whole on the first partition unless -shardkey names a
field to shard on, with chunk boundaries at the -split points.

Results are written as extended JSON, indented when written to a
terminal.`,
	New: New,
}

type Command struct {
	*root.Command
	inputFlags  inputflags.Flags
	outputFlags outputflags.Flags
	procFlags   procflags.Flags
	queryFlags  queryflags.Flags
	logFlags    logflags.Flags
	stats       bool
}

func New(parent charm.Command, f *flag.FlagSet) (charm.Command, error) {
	c := &Command{Command: parent.(*root.Command)}
	c.inputFlags.SetFlags(f)
	c.outputFlags.SetFlags(f)
	c.procFlags.SetFlags(f)
	c.queryFlags.SetFlags(f)
	c.logFlags.SetFlags(f)
	c.logFlags.Config.Level = zap.WarnLevel
	f.BoolVar(&c.stats, "s", false, "display the result count and elapsed time on stderr")
	return c, nil
}

func (c *Command) Run(args []string) error {
	ctx, cleanup, err := c.Init(&c.inputFlags, &c.outputFlags, &c.procFlags, &c.queryFlags)
	if err != nil {
		return err
	}
	defer cleanup()
	pipeline, args, err := c.queryFlags.Parse(args)
	if err != nil {
		return err
	}
	colls, err := c.inputFlags.Collections(args)
	if err != nil {
		return err
	}
	logger, err := c.logFlags.Open()
	if err != nil {
		return err
	}
	defer logger.Sync()
	conf := config.Default()
	conf.Shards = c.inputFlags.ShardIDs()
	conf.Optimizer = c.queryFlags.Optimizer
	conf.Merge.Location = c.queryFlags.Location
	conf.Sort.MemMaxBytes = c.procFlags.SortMemMax
	conf.Collections = colls
	n, err := node.Open(ctx, conf, logger)
	if err != nil {
		return err
	}
	defer n.Close()
	var coll string
	if len(colls) > 0 {
		coll = colls[0].Name
	}
	req, err := c.queryFlags.Request(coll, pipeline)
	if err != nil {
		return err
	}
	w, err := c.outputFlags.Open(ctx, n.Storage)
	if err != nil {
		return err
	}
	start := time.Now()
	count, err := n.Query(ctx, req, w)
	err = multierr.Append(err, w.Close())
	if c.stats {
		fmt.Fprintf(os.Stderr, "%d documents in %s\n", count, time.Since(start).Round(time.Microsecond))
	}
	return err
}
