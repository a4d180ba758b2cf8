// Package ztest runs test cases described in YAML files.
//
// A pipeline case loads its inputs into an in-process cluster and runs
// its pipeline with the optimizer fully on, fully off and with each pass
// turned off in turn, under every merge location policy.  Every run must
// produce the expected output (or error).
//
//	pipeline: '[{"$group": {"_id": "$a", "n": {"$sum": 1}}}, {"$sort": {"_id": 1}}]'
//	shards: 2
//	shardKey: _id
//	splitPoints: ["10"]
//	inputs:
//	  - data: |
//	      {"_id": 1, "a": "x"}
//	      {"_id": 12, "a": "x"}
//	output: |
//	  {"_id": "x", "n": 2}
//
// An input may name the partition its documents are placed on with
// shard, in which case each document must belong to a chunk that
// partition owns.  Output is compared as extended JSON, one document per
// line, and in any order when unordered is set.  A collection of "1"
// runs a collection-less aggregate.  An error case gives
// the expected error code, message substring, or both.
//
// A script case runs a bash script with ZTEST_PATH prepended to PATH and
// compares the files named in outputs (including stdout and stderr)
// with their expected contents.
package ztest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/brimdata/docpipe"
	"github.com/brimdata/docpipe/catalog"
	"github.com/brimdata/docpipe/cluster"
	"github.com/brimdata/docpipe/compiler/optimizer"
	"github.com/brimdata/docpipe/driver"
	"github.com/brimdata/docpipe/dperr"
	"github.com/brimdata/docpipe/routing"
	"github.com/brimdata/docpipe/shard"
	"github.com/pmezard/go-difflib/difflib"
	"go.uber.org/zap"
	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"
)

const DefaultCollection = "c"

type File struct {
	Name string `yaml:"name"`
	// Data is the expected contents.  When nil, the contents come from
	// Source, or from the file Name, in the test directory.
	Data   *string `yaml:"data,omitempty"`
	Source string  `yaml:"source,omitempty"`
	// Re, when set, is a regular expression the contents must match.
	Re string `yaml:"re,omitempty"`
}

func (f *File) load(dir string) ([]byte, *regexp.Regexp, error) {
	if f.Data != nil {
		return []byte(*f.Data), nil, nil
	}
	if f.Re != "" {
		re, err := regexp.Compile(f.Re)
		return nil, re, err
	}
	name := f.Source
	if name == "" {
		name = f.Name
	}
	b, err := os.ReadFile(filepath.Join(dir, name))
	return b, nil, err
}

type Input struct {
	Collection string `yaml:"collection,omitempty"`
	Shard      string `yaml:"shard,omitempty"`
	Data       string `yaml:"data"`
}

type ZTest struct {
	Skip string `yaml:"skip,omitempty"`
	Tag  string `yaml:"tag,omitempty"`

	Pipeline    string   `yaml:"pipeline,omitempty"`
	Collection  string   `yaml:"collection,omitempty"`
	Let         string   `yaml:"let,omitempty"`
	Collation   string   `yaml:"collation,omitempty"`
	Shards      int      `yaml:"shards,omitempty"`
	ShardKey    string   `yaml:"shardKey,omitempty"`
	SplitPoints []string `yaml:"splitPoints,omitempty"`
	Inputs      []Input  `yaml:"inputs,omitempty"`
	Output      *string  `yaml:"output,omitempty"`
	Unordered   bool     `yaml:"unordered,omitempty"`
	// Check names a collection whose contents after the run are
	// compared with Output instead of the pipeline's result.
	Check     string `yaml:"check,omitempty"`
	Error     string `yaml:"error,omitempty"`
	ErrorCode int    `yaml:"errorCode,omitempty"`

	Script  string `yaml:"script,omitempty"`
	Outputs []File `yaml:"outputs,omitempty"`
}

func FromYAMLFile(path string) (*ZTest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var z ZTest
	d := yaml.NewDecoder(bytes.NewReader(b))
	d.KnownFields(true)
	if err := d.Decode(&z); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &z, nil
}

// ShellPath returns the directory holding the binaries script tests run.
func ShellPath() string {
	return os.Getenv("ZTEST_PATH")
}

func (z *ZTest) ShouldSkip(path string) string {
	switch {
	case z.Skip != "":
		return z.Skip
	case z.Tag != "" && z.Tag != os.Getenv("ZTEST_TAG"):
		return fmt.Sprintf("tag %q does not match ZTEST_TAG=%q", z.Tag, os.Getenv("ZTEST_TAG"))
	case z.Script != "" && path == "":
		return "script test on in-process run"
	}
	return ""
}

// Run runs every .yaml case in dirname as a subtest of t.
func Run(t *testing.T, dirname string) {
	entries, err := os.ReadDir(dirname)
	if err != nil {
		t.Fatal(err)
	}
	shellPath := ShellPath()
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != ".yaml" {
			continue
		}
		path := filepath.Join(dirname, name)
		t.Run(strings.TrimSuffix(name, ".yaml"), func(t *testing.T) {
			t.Parallel()
			z, err := FromYAMLFile(path)
			if err != nil {
				t.Fatal(err)
			}
			if msg := z.ShouldSkip(shellPath); msg != "" {
				t.Skip(msg)
			}
			if z.Script != "" {
				if err := z.RunScript(shellPath, dirname, t.TempDir()); err != nil {
					t.Fatal(err)
				}
				return
			}
			z.RunInternal(t)
		})
	}
}

// RunInternal runs a pipeline case under every optimizer configuration
// and merge location.
func (z *ZTest) RunInternal(t *testing.T) {
	if z.Output == nil && z.Error == "" && z.ErrorCode == 0 {
		t.Fatal("case has neither output nor error")
	}
	pipeline, err := docpipe.ParseExtJSON([]byte(z.Pipeline))
	if err != nil {
		t.Fatalf("pipeline: %s", err)
	}
	for _, config := range optimizer.Toggles() {
		for _, loc := range cluster.Locations(shardID(z.shards() - 1)) {
			t.Run(config.String()+"/"+loc.String(), func(t *testing.T) {
				out, err := z.run(config, loc, pipeline)
				if err := z.check(out, err); err != nil {
					t.Fatal(err)
				}
			})
		}
	}
}

func (z *ZTest) shards() int {
	if z.Shards < 1 {
		return 1
	}
	return z.Shards
}

func shardID(k int) string {
	return fmt.Sprintf("s%d", k)
}

func (z *ZTest) collection() string {
	if z.Collection != "" {
		return z.Collection
	}
	return DefaultCollection
}

func (z *ZTest) run(config optimizer.Config, loc cluster.Location, pipeline docpipe.Value) ([]*docpipe.Document, error) {
	ctx := context.Background()
	engine, err := z.load(ctx, config, loc)
	if err != nil {
		return nil, err
	}
	defer engine.Close()
	req := &driver.AggregateRequest{
		Collection: z.collection(),
		Pipeline:   pipeline,
		Collation:  z.Collation,
		BatchSize:  -1,
	}
	if z.Collection == "1" {
		req.Collection = ""
	}
	if z.Let != "" {
		if req.Let, err = docpipe.ParseDocument([]byte(z.Let)); err != nil {
			return nil, err
		}
	}
	out, err := drain(ctx, engine, req)
	if err != nil || z.Check == "" {
		return out, err
	}
	req = &driver.AggregateRequest{
		Collection: z.Check,
		Pipeline:   docpipe.NewArray(nil),
		BatchSize:  -1,
	}
	return drain(ctx, engine, req)
}

// load builds a fresh cluster holding the case's inputs.
func (z *ZTest) load(ctx context.Context, config optimizer.Config, loc cluster.Location) (*driver.Engine, error) {
	var shards []shard.Shard
	for k := 0; k < z.shards(); k++ {
		shards = append(shards, shard.NewLocal(shardID(k), catalog.New(4), zap.NewNop()))
	}
	c, err := cluster.New(shards, routing.NewMemoryStore(), cluster.Config{})
	if err != nil {
		return nil, err
	}
	engine, err := driver.New(c, driver.Config{Optimizer: config, Location: loc})
	if err != nil {
		return nil, err
	}
	if z.ShardKey != "" {
		var points []docpipe.Value
		for _, s := range z.SplitPoints {
			v, err := docpipe.ParseExtJSON([]byte(s))
			if err != nil {
				return nil, fmt.Errorf("split point %s: %w", s, err)
			}
			points = append(points, v)
		}
		if _, err := c.ShardCollection(ctx, z.collection(), z.ShardKey, points); err != nil {
			return nil, err
		}
	}
	for _, in := range z.Inputs {
		if err := loadInput(ctx, c, in, z.collection()); err != nil {
			return nil, err
		}
	}
	return engine, nil
}

func loadInput(ctx context.Context, c *cluster.Cluster, in Input, coll string) error {
	if in.Collection != "" {
		coll = in.Collection
	}
	r := docpipe.NewDocumentReader(strings.NewReader(in.Data))
	var docs []*docpipe.Document
	for {
		doc, err := r.Read()
		if err != nil {
			return err
		}
		if doc == nil {
			break
		}
		docs = append(docs, doc)
	}
	if in.Shard == "" {
		return c.Insert(ctx, coll, docs...)
	}
	s, ok := c.Shard(in.Shard)
	if !ok {
		return fmt.Errorf("input names unknown shard %s", in.Shard)
	}
	table, err := c.Cache().Get(ctx, coll)
	if err != nil {
		return err
	}
	for _, doc := range docs {
		owner := table.Primary
		if table.Sharded {
			key, err := table.KeyOf(doc)
			if err != nil {
				return err
			}
			if owner, err = table.Owner(key); err != nil {
				return err
			}
		}
		if owner != in.Shard {
			return fmt.Errorf("%s belongs on %s, not %s", doc, owner, in.Shard)
		}
	}
	return s.Insert(ctx, coll, docs...)
}

func drain(ctx context.Context, engine *driver.Engine, req *driver.AggregateRequest) ([]*docpipe.Document, error) {
	batch, err := engine.Aggregate(ctx, req)
	if err != nil {
		return nil, err
	}
	out := batch.Documents
	for batch.ID != 0 {
		batch, err = engine.GetMore(ctx, &driver.GetMoreRequest{ID: batch.ID, BatchSize: -1})
		if err != nil {
			return nil, err
		}
		out = append(out, batch.Documents...)
	}
	return out, nil
}

func (z *ZTest) check(out []*docpipe.Document, err error) error {
	if z.Error != "" || z.ErrorCode != 0 {
		if err == nil {
			return errors.New("expected an error but the pipeline succeeded")
		}
		if z.ErrorCode != 0 && dperr.CodeOf(err) != dperr.Code(z.ErrorCode) {
			return fmt.Errorf("expected error code %d, got %d: %w", z.ErrorCode, dperr.CodeOf(err), err)
		}
		if z.Error != "" && !strings.Contains(err.Error(), z.Error) {
			return fmt.Errorf("expected error containing %q, got %q", z.Error, err)
		}
		return nil
	}
	if err != nil {
		return err
	}
	expected, err := canonical(*z.Output)
	if err != nil {
		return fmt.Errorf("output: %w", err)
	}
	var actual []string
	for _, doc := range out {
		b, err := docpipe.MarshalExtJSON(doc)
		if err != nil {
			return err
		}
		actual = append(actual, string(b))
	}
	if z.Unordered {
		slices.Sort(expected)
		slices.Sort(actual)
	}
	if slices.Equal(expected, actual) {
		return nil
	}
	return diffErr("expected", "actual", strings.Join(expected, "\n")+"\n", strings.Join(actual, "\n")+"\n")
}

// canonical re-renders each document of s so that spacing and number
// formatting do not matter.
func canonical(s string) ([]string, error) {
	r := docpipe.NewDocumentReader(strings.NewReader(s))
	var out []string
	for {
		doc, err := r.Read()
		if err != nil {
			return nil, err
		}
		if doc == nil {
			return out, nil
		}
		b, err := docpipe.MarshalExtJSON(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, string(b))
	}
}

func diffErr(name1, name2, a, b string) error {
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(a),
		FromFile: name1,
		B:        difflib.SplitLines(b),
		ToFile:   name2,
		Context:  5,
	})
	if err != nil {
		return err
	}
	return fmt.Errorf("%s and %s differ:\n%s", name1, name2, diff)
}

// RunScript runs z.Script in tempDir with shellPath prepended to PATH
// and checks the outputs.  Inputs named by outputs with a Source are
// read from testDir.
func (z *ZTest) RunScript(shellPath, testDir, tempDir string) error {
	dir := Dir(tempDir)
	stdout, stderr, err := RunShell(&dir, shellPath, z.Script, nil, []string{"AWS_REGION", "ZTEST_TAG"})
	if err != nil {
		return fmt.Errorf("script failed: %w\n=== stdout ===\n%s=== stderr ===\n%s", err, stdout, stderr)
	}
	for _, f := range z.Outputs {
		var actual string
		switch f.Name {
		case "stdout":
			actual = stdout
		case "stderr":
			actual = stderr
		default:
			b, err := dir.Read(f.Name)
			if err != nil {
				return fmt.Errorf("%s: %w", f.Name, err)
			}
			actual = string(b)
		}
		expected, re, err := f.load(testDir)
		if err != nil {
			return fmt.Errorf("%s: %w", f.Name, err)
		}
		if re != nil {
			if !re.MatchString(actual) {
				return fmt.Errorf("%s: %q does not match %q", f.Name, actual, f.Re)
			}
			continue
		}
		if actual != string(expected) {
			return diffErr("expected "+f.Name, "actual "+f.Name, string(expected), actual)
		}
	}
	return nil
}
