package root

import (
	"flag"

	"github.com/brimdata/docpipe/cli"
	"github.com/brimdata/docpipe/pkg/charm"
)

var Docpipe = &charm.Spec{
	Name:  "docpipe",
	Usage: "docpipe <command> [options] [arguments...]",
	Short: "run aggregation pipelines over document collections",
	Long: `
docpipe runs aggregation pipelines over collections of extended JSON
documents.  A collection may be spread over several partitions, in which
case each pipeline is split into the stages the partitions run over their
own documents and the stages that run over the merged result.

The query and explain commands load files into an in-process cluster and
run a single pipeline.  The serve command runs the cluster as an HTTP
service configured by a YAML file.  The shell command runs pipelines
interactively.`,
	New: New,
}

type Command struct {
	charm.Command
	cli.Flags
}

func New(parent charm.Command, f *flag.FlagSet) (charm.Command, error) {
	c := &Command{}
	c.SetFlags(f)
	return c, nil
}

func (c *Command) Run(args []string) error {
	_, cancel, err := c.Init()
	if err != nil {
		return err
	}
	defer cancel()
	if len(args) == 0 {
		return charm.NeedHelp
	}
	return charm.ErrNoRun
}
