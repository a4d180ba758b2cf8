// Package procflags sets the resource limits of query execution.
package procflags

import (
	"errors"
	"flag"

	"github.com/brimdata/docpipe/config"
)

type Flags struct {
	SortMemMax config.Bytes
}

func (f *Flags) SetFlags(fs *flag.FlagSet) {
	f.SortMemMax = config.DefaultSortMemory()
	fs.Var(&f.SortMemMax, "sortmem", "maximum memory used by a sort before it spills, in MiB, MB, etc")
}

func (f *Flags) Init() error {
	if f.SortMemMax <= 0 {
		return errors.New("sortmem value must be greater than zero")
	}
	return nil
}
