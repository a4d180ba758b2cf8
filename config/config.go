// Package config loads the YAML configuration of a docpipe server.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/alecthomas/units"
	"github.com/brimdata/docpipe"
	"github.com/brimdata/docpipe/cluster"
	"github.com/brimdata/docpipe/compiler/optimizer"
	"github.com/brimdata/docpipe/cursor"
	"github.com/brimdata/docpipe/service/logger"
	"github.com/pbnjay/memory"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

const (
	DefaultListen = "localhost:9867"
	// MaxSortMemory caps the default sort memory derived from the
	// system's total memory.
	MaxSortMemory = 128 * units.MiB
)

type Config struct {
	Listen      string           `yaml:"listen"`
	Shards      []string         `yaml:"shards"`
	Routing     Routing          `yaml:"routing"`
	Optimizer   optimizer.Config `yaml:"optimizer"`
	Merge       Merge            `yaml:"merge"`
	Sort        Sort             `yaml:"sort"`
	Cursor      Cursor           `yaml:"cursor"`
	Log         logger.Config    `yaml:"log"`
	Collections []Collection     `yaml:"collections"`
}

type Routing struct {
	// Store is "memory" or "redis".
	Store string `yaml:"store"`
	Redis Redis  `yaml:"redis"`
}

type Redis struct {
	Addr string `yaml:"addr"`
	// Key prefixes the keys holding routing tables.
	Key string `yaml:"key"`
}

type Merge struct {
	Location string `yaml:"location"`
	Retries  int    `yaml:"retries"`
}

type Sort struct {
	MemMaxBytes Bytes `yaml:"memMaxBytes"`
}

type Cursor struct {
	BatchSize   int      `yaml:"batchSize"`
	IdleTimeout Duration `yaml:"idleTimeout"`
}

// Collection is loaded at startup from Source, a file path or a file://
// or s3:// URI.  When ShardKey is set the collection is sharded with a
// chunk boundary at each of SplitPoints, given as extended JSON values.
type Collection struct {
	Name        string   `yaml:"name"`
	Source      string   `yaml:"source"`
	ShardKey    string   `yaml:"shardKey"`
	SplitPoints []string `yaml:"splitPoints"`
	Primary     string   `yaml:"primary"`
}

// Bytes is a size such as "64MiB" or "1GB".
type Bytes int64

func (b *Bytes) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	n, err := units.ParseStrictBytes(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*b = Bytes(n)
	return nil
}

func (b Bytes) MarshalYAML() (interface{}, error) {
	return b.String(), nil
}

func (b Bytes) String() string {
	return units.Base2Bytes(b).String()
}

// Set lets Bytes serve as a flag.Value.
func (b *Bytes) Set(s string) error {
	n, err := units.ParseStrictBytes(s)
	if err != nil {
		return err
	}
	*b = Bytes(n)
	return nil
}

// Duration is a time.Duration written as "30s" or "10m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// DefaultSortMemory is a sixteenth of the system's memory, capped at
// MaxSortMemory.
func DefaultSortMemory() Bytes {
	n := units.Base2Bytes(memory.TotalMemory() / 16)
	if n == 0 || n > MaxSortMemory {
		n = MaxSortMemory
	}
	return Bytes(n)
}

func Default() *Config {
	return &Config{
		Listen:    DefaultListen,
		Shards:    []string{"s0"},
		Routing:   Routing{Store: "memory", Redis: Redis{Key: "docpipe:routing:"}},
		Optimizer: optimizer.DefaultConfig(),
		Merge:     Merge{Location: "coordinatorOnly", Retries: cluster.DefaultRetries},
		Sort:      Sort{MemMaxBytes: DefaultSortMemory()},
		Cursor: Cursor{
			BatchSize:   cursor.DefaultBatchSize,
			IdleTimeout: Duration(10 * time.Minute),
		},
		Log: logger.Config{Level: zapcore.InfoLevel, Path: "stderr", Mode: logger.FileModeAppend},
	}
}

// Load reads the configuration at path over the defaults.  An empty path
// yields the defaults.
func Load(path string) (*Config, error) {
	conf := Default()
	if path == "" {
		return conf, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := Parse(b, conf); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return conf, nil
}

// Parse decodes YAML over conf and validates the result.
func Parse(b []byte, conf *Config) error {
	if err := yaml.Unmarshal(b, conf); err != nil {
		return err
	}
	return conf.Validate()
}

func (c *Config) Validate() error {
	if len(c.Shards) == 0 {
		return errors.New("at least one shard is required")
	}
	seen := make(map[string]bool)
	for _, id := range c.Shards {
		if id == "" || seen[id] {
			return fmt.Errorf("shard ids must be unique and not empty: %q", id)
		}
		seen[id] = true
	}
	switch c.Routing.Store {
	case "memory":
	case "redis":
		if c.Routing.Redis.Addr == "" {
			return errors.New("routing.redis.addr is required for the redis store")
		}
	default:
		return fmt.Errorf("unknown routing store %q (values: memory, redis)", c.Routing.Store)
	}
	if _, err := cluster.ParseLocation(c.Merge.Location); err != nil {
		return err
	}
	if c.Sort.MemMaxBytes <= 0 {
		return errors.New("sort.memMaxBytes must be greater than zero")
	}
	for _, coll := range c.Collections {
		if coll.Name == "" {
			return errors.New("collection without a name")
		}
		if coll.Primary != "" && !seen[coll.Primary] {
			return fmt.Errorf("collection %s: unknown primary shard %q", coll.Name, coll.Primary)
		}
		if _, err := coll.Points(); err != nil {
			return fmt.Errorf("collection %s: %w", coll.Name, err)
		}
	}
	return nil
}

// Points parses the split points.
func (c Collection) Points() ([]docpipe.Value, error) {
	if len(c.SplitPoints) > 0 && c.ShardKey == "" {
		return nil, errors.New("splitPoints require a shardKey")
	}
	out := make([]docpipe.Value, 0, len(c.SplitPoints))
	for _, s := range c.SplitPoints {
		v, err := docpipe.ParseExtJSON([]byte(s))
		if err != nil {
			return nil, fmt.Errorf("split point %s: %w", s, err)
		}
		out = append(out, v)
	}
	return out, nil
}
