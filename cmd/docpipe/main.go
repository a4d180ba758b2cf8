package main

import (
	"fmt"
	"os"

	"github.com/brimdata/docpipe/cmd/docpipe/explain"
	"github.com/brimdata/docpipe/cmd/docpipe/query"
	"github.com/brimdata/docpipe/cmd/docpipe/root"
	"github.com/brimdata/docpipe/cmd/docpipe/serve"
	"github.com/brimdata/docpipe/cmd/docpipe/shell"
	"github.com/brimdata/docpipe/pkg/charm"
)

func main() {
	docpipe := root.Docpipe
	docpipe.Add(query.Cmd)
	docpipe.Add(explain.Cmd)
	docpipe.Add(serve.Cmd)
	docpipe.Add(shell.Cmd)
	docpipe.Add(charm.Help)
	if err := docpipe.ExecRoot(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}
