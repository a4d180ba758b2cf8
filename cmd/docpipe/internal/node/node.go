// Package node assembles a driver engine from a configuration: its
// partitions, routing store, coordinator and startup collections.
package node

import (
	"context"
	"fmt"
	"time"

	"github.com/brimdata/docpipe"
	"github.com/brimdata/docpipe/catalog"
	"github.com/brimdata/docpipe/cluster"
	"github.com/brimdata/docpipe/config"
	"github.com/brimdata/docpipe/cursor"
	"github.com/brimdata/docpipe/driver"
	"github.com/brimdata/docpipe/pkg/storage"
	"github.com/brimdata/docpipe/routing"
	"github.com/brimdata/docpipe/shard"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type Node struct {
	Engine   *driver.Engine
	Registry *prometheus.Registry
	Storage  storage.Engine

	redis *redis.Client
}

func Open(ctx context.Context, conf *config.Config, logger *zap.Logger) (*Node, error) {
	loc, err := cluster.ParseLocation(conf.Merge.Location)
	if err != nil {
		return nil, err
	}
	n := &Node{
		Registry: prometheus.NewRegistry(),
		Storage:  storage.NewLocalEngine(),
	}
	store, err := n.openStore(ctx, conf.Routing, logger)
	if err != nil {
		return nil, err
	}
	var shards []shard.Shard
	for _, id := range conf.Shards {
		shards = append(shards, shard.NewLocal(id, catalog.New(0), logger))
	}
	c, err := cluster.New(shards, store, cluster.Config{
		Retries:     conf.Merge.Retries,
		MemMaxBytes: int(conf.Sort.MemMaxBytes),
		Registerer:  n.Registry,
		Logger:      logger,
	})
	if err != nil {
		n.Close()
		return nil, err
	}
	n.Engine, err = driver.New(c, driver.Config{
		Optimizer: conf.Optimizer,
		Location:  loc,
		Cursor: cursor.Config{
			BatchSize:   conf.Cursor.BatchSize,
			IdleTimeout: time.Duration(conf.Cursor.IdleTimeout),
		},
		Logger: logger,
	})
	if err != nil {
		n.Close()
		return nil, err
	}
	for _, coll := range conf.Collections {
		if err := n.Load(ctx, coll); err != nil {
			n.Close()
			return nil, fmt.Errorf("collection %s: %w", coll.Name, err)
		}
	}
	return n, nil
}

func (n *Node) openStore(ctx context.Context, conf config.Routing, logger *zap.Logger) (routing.Store, error) {
	if conf.Store != "redis" {
		return routing.NewMemoryStore(), nil
	}
	n.redis = redis.NewClient(&redis.Options{Addr: conf.Redis.Addr})
	if err := n.redis.Ping(ctx).Err(); err != nil {
		n.redis.Close()
		return nil, fmt.Errorf("routing store %s: %w", conf.Redis.Addr, err)
	}
	logger.Info("routing store connected", zap.String("addr", conf.Redis.Addr))
	return routing.NewRedisStore(n.redis, conf.Redis.Key), nil
}

// Load reads coll.Source into the cluster, then shards it or moves it to
// its primary as configured.
func (n *Node) Load(ctx context.Context, coll config.Collection) error {
	c := n.Engine.Cluster()
	if coll.Source != "" {
		u, err := storage.ParseURI(coll.Source)
		if err != nil {
			return err
		}
		docs, err := catalog.ReadSource(ctx, n.Storage, u)
		if err != nil {
			return err
		}
		if err := c.Insert(ctx, coll.Name, docs...); err != nil {
			return err
		}
	}
	if coll.ShardKey != "" {
		points, err := coll.Points()
		if err != nil {
			return err
		}
		_, err = c.ShardCollection(ctx, coll.Name, coll.ShardKey, points)
		return err
	}
	if coll.Primary != "" && coll.Primary != c.Primary() {
		_, err := c.MovePrimary(ctx, coll.Name, coll.Primary)
		return err
	}
	return nil
}

func (n *Node) Close() error {
	var err error
	if n.Engine != nil {
		err = n.Engine.Close()
	}
	if n.redis != nil {
		err = multierr.Append(err, n.redis.Close())
	}
	return err
}

type Writer interface {
	Write(*docpipe.Document) error
}

// Query runs req to completion, writing every result document to w, and
// returns the number written.
func (n *Node) Query(ctx context.Context, req *driver.AggregateRequest, w Writer) (int, error) {
	batch, err := n.Engine.Aggregate(ctx, req)
	if err != nil {
		return 0, err
	}
	var count int
	for {
		for _, doc := range batch.Documents {
			if err := w.Write(doc); err != nil {
				if batch.ID != 0 {
					n.Engine.KillCursors(ctx, []int64{batch.ID})
				}
				return count, err
			}
			count++
		}
		if batch.ID == 0 {
			return count, nil
		}
		if err := ctx.Err(); err != nil {
			n.Engine.KillCursors(ctx, []int64{batch.ID})
			return count, err
		}
		batch, err = n.Engine.GetMore(ctx, &driver.GetMoreRequest{ID: batch.ID, BatchSize: -1})
		if err != nil {
			return count, err
		}
	}
}
