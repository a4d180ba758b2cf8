// Package storage reads and writes the files collections are loaded from
// and saved to.  URIs select an engine by scheme: file paths and file://
// go to the local file system and s3:// to Amazon S3.
package storage

import (
	"context"
	"io"
)

// Engine is a store of named objects.  Get and Exists address single
// objects, while List returns the objects directly beneath a directory or
// prefix.
type Engine interface {
	Get(context.Context, *URI) (io.ReadCloser, error)
	Put(context.Context, *URI) (io.WriteCloser, error)
	Delete(context.Context, *URI) error
	Exists(context.Context, *URI) (bool, error)
	List(context.Context, *URI) ([]Info, error)
}

type Info struct {
	Name string
	Size int64
}

func NewLocalEngine() *Router {
	router := NewRouter()
	router.Enable(FileScheme)
	router.Enable(S3Scheme)
	return router
}

// Put copies r to the object at u.
func Put(ctx context.Context, engine Engine, u *URI, r io.Reader) error {
	w, err := engine.Put(ctx, u)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, r)
	if closeErr := w.Close(); err == nil {
		err = closeErr
	}
	return err
}

// Get returns the contents of the object at u.
func Get(ctx context.Context, engine Engine, u *URI) ([]byte, error) {
	r, err := engine.Get(ctx, u)
	if err != nil {
		return nil, err
	}
	b, err := io.ReadAll(r)
	if closeErr := r.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}
