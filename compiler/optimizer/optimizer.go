// Package optimizer rewrites a pipeline into an observably equivalent one.
// Each pass can be turned off on its own through Config so that optimized
// and unoptimized runs can be compared.
package optimizer

import (
	"fmt"

	"github.com/brimdata/docpipe/compiler/dag"
)

// Config enables the individual rewrite passes.
type Config struct {
	// Coalesce fuses adjacent stages ($match+$match, $addFields+$addFields,
	// $unset+$unset, $limit+$limit, $skip+$skip, $sort+$limit, ...).
	Coalesce bool `yaml:"coalesce" json:"coalesce"`
	// Pushdown moves leading $match stages into the collection scan, where
	// their bounds skip whole buckets.
	Pushdown bool `yaml:"pushdown" json:"pushdown"`
	// SortElision drops a $sort whose order the upstream already provides.
	SortElision bool `yaml:"sortElision" json:"sort_elision"`
}

func DefaultConfig() Config {
	return Config{Coalesce: true, Pushdown: true, SortElision: true}
}

// Disabled turns every pass off.
func Disabled() Config {
	return Config{}
}

// Toggles returns the full and empty configurations followed by each
// configuration with exactly one pass turned off.
func Toggles() []Config {
	return []Config{
		DefaultConfig(),
		Disabled(),
		{Pushdown: true, SortElision: true},
		{Coalesce: true, SortElision: true},
		{Coalesce: true, Pushdown: true},
	}
}

func (c Config) String() string {
	return fmt.Sprintf("coalesce=%t,pushdown=%t,sortElision=%t", c.Coalesce, c.Pushdown, c.SortElision)
}

// Rewrite records one applied rewrite for explain output.
type Rewrite struct {
	Pass string `json:"pass"`
	Rule string `json:"rule"`
}

func (r Rewrite) String() string {
	return r.Pass + ": " + r.Rule
}

type Optimizer struct {
	config Config
	// collated is true when string comparisons follow a collation, so
	// bounds over strings cannot be derived.
	collated bool
	rewrites []Rewrite
}

func New(config Config, collated bool) *Optimizer {
	return &Optimizer{config: config, collated: collated}
}

// Rewrites returns the rewrites applied so far.
func (o *Optimizer) Rewrites() []Rewrite {
	return o.rewrites
}

func (o *Optimizer) record(pass, format string, args ...interface{}) {
	o.rewrites = append(o.rewrites, Rewrite{Pass: pass, Rule: fmt.Sprintf(format, args...)})
}

// maxRounds bounds the fixpoint loop.  Every rule shrinks the pipeline or
// moves a $match toward the source, so this is never reached in practice.
const maxRounds = 32

// Optimize returns a rewritten copy of seq.  seq itself is not modified.
// When seq begins with a Scan, leading filters may be pushed into it.
func (o *Optimizer) Optimize(seq *dag.Sequential) (*dag.Sequential, error) {
	out := seq.Copy()
	for round := 0; round < maxRounds; round++ {
		changed := false
		if o.config.Pushdown {
			changed = o.pushdown(out) || changed
		}
		if o.config.Coalesce {
			c, err := o.coalesce(out)
			if err != nil {
				return nil, err
			}
			changed = c || changed
		}
		if o.config.SortElision {
			changed = o.elideSorts(out) || changed
		}
		if !changed {
			break
		}
	}
	if scan, ok := scanOf(out); ok && scan.Filter != nil {
		bounded := *scan
		bounded.Bounds = scan.Filter.Bounds(o.collated)
		out.Ops[0] = &bounded
	}
	return out, nil
}

func scanOf(seq *dag.Sequential) (*dag.Scan, bool) {
	if len(seq.Ops) == 0 {
		return nil, false
	}
	scan, ok := seq.Ops[0].(*dag.Scan)
	return scan, ok
}

// replace substitutes seq.Ops[i:j] with ops.
func replace(seq *dag.Sequential, i, j int, ops ...dag.Op) {
	tail := append(ops, seq.Ops[j:]...)
	seq.Ops = append(seq.Ops[:i], tail...)
}
