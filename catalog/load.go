package catalog

import (
	"context"
	"path"
	"sort"

	"github.com/brimdata/docpipe"
	"github.com/brimdata/docpipe/dperr"
	"github.com/brimdata/docpipe/pkg/storage"
)

var sourceExts = map[string]bool{".json": true, ".ndjson": true, ".jsonl": true}

// ReadSource reads the documents at u.  When u names a directory or an
// S3 prefix instead of an object, the .json, .ndjson and .jsonl files
// directly beneath it are read in name order.
func ReadSource(ctx context.Context, engine storage.Engine, u *storage.URI) ([]*docpipe.Document, error) {
	ok, err := engine.Exists(ctx, u)
	if err != nil {
		return nil, err
	}
	if ok {
		return ReadURI(ctx, engine, u)
	}
	infos, err := engine.List(ctx, u)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, info := range infos {
		if sourceExts[path.Ext(info.Name)] {
			names = append(names, info.Name)
		}
	}
	if len(names) == 0 {
		return nil, dperr.E(dperr.NamespaceError, dperr.NamespaceNotFound, "%s: no documents found", u)
	}
	sort.Strings(names)
	var docs []*docpipe.Document
	for _, name := range names {
		batch, err := ReadURI(ctx, engine, u.AppendPath(name))
		if err != nil {
			return nil, err
		}
		docs = append(docs, batch...)
	}
	return docs, nil
}

// ReadURI reads the extended JSON documents at u, which may hold
// newline-delimited documents or a single array of documents.
func ReadURI(ctx context.Context, engine storage.Engine, u *storage.URI) ([]*docpipe.Document, error) {
	r, err := engine.Get(ctx, u)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	reader := docpipe.NewDocumentReader(r)
	var docs []*docpipe.Document
	for {
		doc, err := reader.Read()
		if err != nil {
			return nil, err
		}
		if doc == nil {
			return docs, nil
		}
		docs = append(docs, doc)
	}
}

// Load appends the documents at u to the named collection.
func (c *Catalog) Load(ctx context.Context, engine storage.Engine, name string, u *storage.URI) (int, error) {
	docs, err := ReadSource(ctx, engine, u)
	if err != nil {
		return 0, err
	}
	c.Create(name).Insert(docs...)
	return len(docs), nil
}
