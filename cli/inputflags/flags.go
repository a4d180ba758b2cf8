// Package inputflags describes the in-process cluster the query commands
// load their input files into.
package inputflags

import (
	"errors"
	"flag"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/brimdata/docpipe/config"
)

type Flags struct {
	Shards   int
	ShardKey string
	split    string
}

func (f *Flags) SetFlags(fs *flag.FlagSet) {
	fs.IntVar(&f.Shards, "shards", 1, "number of partitions")
	fs.StringVar(&f.ShardKey, "shardkey", "", "shard every input collection on this field")
	fs.StringVar(&f.split, "split", "", "comma-separated extended JSON split points for -shardkey")
}

func (f *Flags) Init() error {
	if f.Shards < 1 {
		return errors.New("shards value must be at least one")
	}
	if f.split != "" && f.ShardKey == "" {
		return errors.New("-split requires -shardkey")
	}
	return nil
}

// ShardIDs returns the ids of the partitions, s0 through sN-1.
func (f *Flags) ShardIDs() []string {
	ids := make([]string, f.Shards)
	for k := range ids {
		ids[k] = fmt.Sprintf("s%d", k)
	}
	return ids
}

// Collections maps each argument to a collection.  An argument is a
// path or URI, named by its base name without extension, or name=path.
func (f *Flags) Collections(args []string) ([]config.Collection, error) {
	var points []string
	if f.split != "" {
		points = strings.Split(f.split, ",")
	}
	seen := make(map[string]bool)
	var out []config.Collection
	for _, arg := range args {
		name, source, ok := strings.Cut(arg, "=")
		if !ok {
			source = arg
			base := filepath.Base(source)
			name = strings.TrimSuffix(base, filepath.Ext(base))
		}
		if name == "" || source == "" {
			return nil, fmt.Errorf("bad input %q", arg)
		}
		if seen[name] {
			return nil, fmt.Errorf("collection %s named twice", name)
		}
		seen[name] = true
		c := config.Collection{
			Name:        name,
			Source:      source,
			ShardKey:    f.ShardKey,
			SplitPoints: points,
		}
		if _, err := c.Points(); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
