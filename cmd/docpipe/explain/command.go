package explain

import (
	"flag"

	"github.com/brimdata/docpipe/cli/inputflags"
	"github.com/brimdata/docpipe/cli/logflags"
	"github.com/brimdata/docpipe/cli/outputflags"
	"github.com/brimdata/docpipe/cli/queryflags"
	"github.com/brimdata/docpipe/cmd/docpipe/internal/node"
	"github.com/brimdata/docpipe/cmd/docpipe/root"
	"github.com/brimdata/docpipe/config"
	"github.com/brimdata/docpipe/driver"
	"github.com/brimdata/docpipe/pkg/charm"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var Cmd = &charm.Spec{
	Name:  "explain",
	Usage: "explain [options] pipeline [name=]file...",
	Short: "show how a pipeline would run",
	Long: `
The explain command takes the same arguments as query but, instead of
results, writes one document describing the optimized pipeline, the
rewrites the optimizer applied, how the pipeline splits between the
partitions and the merger, and which partitions it targets.

With -stats the pipeline also runs to completion, without writing to
any $out or $merge target, and the document carries the number of
documents each stage passed on in every partition and at the merger.`,
	New: New,
}

type Command struct {
	*root.Command
	inputFlags  inputflags.Flags
	outputFlags outputflags.Flags
	queryFlags  queryflags.Flags
	logFlags    logflags.Flags
	stats       bool
}

func New(parent charm.Command, f *flag.FlagSet) (charm.Command, error) {
	c := &Command{Command: parent.(*root.Command)}
	c.inputFlags.SetFlags(f)
	c.outputFlags.SetFlags(f)
	c.queryFlags.SetFlags(f)
	c.logFlags.SetFlags(f)
	c.logFlags.Config.Level = zap.WarnLevel
	f.BoolVar(&c.stats, "stats", false, "run the pipeline and report executionStats")
	return c, nil
}

func (c *Command) Run(args []string) error {
	ctx, cleanup, err := c.Init(&c.inputFlags, &c.outputFlags, &c.queryFlags)
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
	verbosity := driver.QueryPlanner
	if c.stats {
		verbosity = driver.ExecutionStats
	}
	doc, err := n.Engine.Explain(ctx, req, verbosity)
	if err != nil {
		return err
	}
	w, err := c.outputFlags.Open(ctx, n.Storage)
	if err != nil {
		return err
	}
	return multierr.Append(w.Write(doc), w.Close())
}
