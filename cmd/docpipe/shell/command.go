package shell

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/brimdata/docpipe"
	"github.com/brimdata/docpipe/cli/inputflags"
	"github.com/brimdata/docpipe/cli/logflags"
	"github.com/brimdata/docpipe/cli/outputflags"
	"github.com/brimdata/docpipe/cli/queryflags"
	"github.com/brimdata/docpipe/cmd/docpipe/internal/node"
	"github.com/brimdata/docpipe/cmd/docpipe/root"
	"github.com/brimdata/docpipe/compiler/parser"
	"github.com/brimdata/docpipe/config"
	"github.com/brimdata/docpipe/driver"
	"github.com/brimdata/docpipe/pkg/charm"
	"github.com/brimdata/docpipe/pkg/repl"
	"go.uber.org/zap"
)

var Cmd = &charm.Spec{
	Name:  "shell",
	Usage: "shell [options] [name=]file...",
	Short: "run pipelines interactively",
	Long: `
The shell command loads files into collections as the query command does
and then reads pipelines from the terminal, running each over the
current collection.  A pipeline may span lines until it parses.

Lines beginning with a dot are shell commands:

  .use name         make name the current collection
  .collections      list the loaded collections
  .explain pipeline show how pipeline would run
  .quit             leave the shell

Stage names complete with the tab key.  History is kept in
~/.docpipe_history.`,
	New: New,
}

type Command struct {
	*root.Command
	inputFlags inputflags.Flags
	queryFlags queryflags.Flags
	logFlags   logflags.Flags
}

func New(parent charm.Command, f *flag.FlagSet) (charm.Command, error) {
	c := &Command{Command: parent.(*root.Command)}
	c.inputFlags.SetFlags(f)
	c.queryFlags.SetFlags(f)
	c.logFlags.SetFlags(f)
	c.logFlags.Config.Level = zap.WarnLevel
	return c, nil
}

func (c *Command) Run(args []string) error {
	ctx, cleanup, err := c.Init(&c.inputFlags, &c.queryFlags)
	if err != nil {
		return err
	}
	defer cleanup()
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
	conf.Collections = colls
	n, err := node.Open(ctx, conf, logger)
	if err != nil {
		return err
	}
	defer n.Close()
	s := &session{
		ctx:    ctx,
		node:   n,
		flags:  &c.queryFlags,
		out:    outputflags.NewWriter(os.Stdout, 2),
		colls:  colls,
		active: c.queryFlags.Collection,
	}
	if s.active == "" && len(colls) > 0 {
		s.active = colls[0].Name
	}
	opts := repl.Options{Completions: append(parser.StageNames(), ".use", ".collections", ".explain", ".quit")}
	if home, err := os.UserHomeDir(); err == nil {
		opts.HistoryFile = filepath.Join(home, ".docpipe_history")
	}
	return repl.Run(s, opts)
}

type session struct {
	ctx    context.Context
	node   *node.Node
	flags  *queryflags.Flags
	out    *outputflags.Writer
	colls  []config.Collection
	active string
	// pending holds the lines of a pipeline that does not yet parse.
	pending []string
}

func (s *session) Prompt() string {
	if len(s.pending) > 0 {
		return "... "
	}
	return s.active + "> "
}

func (s *session) Consume(line string) bool {
	if s.ctx.Err() != nil {
		return true
	}
	line = strings.TrimSpace(line)
	if len(s.pending) == 0 && strings.HasPrefix(line, ".") {
		return s.command(line)
	}
	if line == "" && len(s.pending) == 0 {
		return false
	}
	s.pending = append(s.pending, line)
	src := strings.Join(s.pending, "\n")
	v, err := docpipe.ParseExtJSON([]byte(src))
	if err != nil {
		if line == "" || !incomplete(src) {
			s.pending = nil
			fmt.Fprintln(os.Stderr, err)
		}
		return false
	}
	s.pending = nil
	s.run(v, false)
	return false
}

// incomplete is true while src has unclosed brackets or braces.
func incomplete(src string) bool {
	var depth int
	var quoted, escaped bool
	for _, c := range src {
		switch {
		case escaped:
			escaped = false
		case quoted && c == '\\':
			escaped = true
		case c == '"':
			quoted = !quoted
		case quoted:
		case c == '[' || c == '{':
			depth++
		case c == ']' || c == '}':
			depth--
		}
	}
	return depth > 0 || quoted
}

func (s *session) command(line string) bool {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch name {
	case ".quit", ".exit":
		return true
	case ".use":
		if arg == "" {
			fmt.Fprintln(os.Stderr, "usage: .use name")
			break
		}
		s.active = arg
	case ".collections":
		for _, c := range s.colls {
			fmt.Println(c.Name)
		}
	case ".explain":
		v, err := docpipe.ParseExtJSON([]byte(arg))
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			break
		}
		s.run(v, true)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %s\n", name)
	}
	return false
}

func (s *session) run(pipeline docpipe.Value, explain bool) {
	if pipeline.IsDocument() {
		pipeline = docpipe.NewArray([]docpipe.Value{pipeline})
	}
	req, err := s.flags.Request(s.active, pipeline)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return
	}
	// .use already chose the collection.
	req.Collection = s.active
	if explain {
		doc, err := s.node.Engine.Explain(s.ctx, req, driver.QueryPlanner)
		if err == nil {
			err = s.out.Write(doc)
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
		return
	}
	if _, err := s.node.Query(s.ctx, req, s.out); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
}
