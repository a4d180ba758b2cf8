package storage

import (
	"net/url"
	"path/filepath"
	"strings"
)

type Scheme string

const (
	FileScheme Scheme = "file"
	S3Scheme   Scheme = "s3"
)

func knownScheme(s Scheme) bool {
	switch s {
	case FileScheme, S3Scheme:
		return true
	}
	return false
}

type URI url.URL

// ParseURI parses path with url.Parse.  A path without a known scheme is a
// file path; relative paths are made absolute.
func ParseURI(path string) (*URI, error) {
	if path == "" {
		return &URI{}, nil
	}
	u, err := url.Parse(path)
	if err != nil || !knownScheme(Scheme(u.Scheme)) {
		return parseBarePath(path)
	}
	return (*URI)(u), nil
}

func MustParseURI(path string) *URI {
	u, err := ParseURI(path)
	if err != nil {
		panic(err)
	}
	return u
}

func parseBarePath(path string) (*URI, error) {
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	return &URI{Scheme: string(FileScheme), Path: filepath.ToSlash(path)}, nil
}

func (u URI) String() string {
	return (*url.URL)(&u).String()
}

func (u *URI) HasScheme(s Scheme) bool {
	return Scheme(u.Scheme) == s
}

func (u *URI) Filepath() string {
	return filepath.FromSlash(u.Path)
}

func (u *URI) AppendPath(elem ...string) *URI {
	out := *u
	for _, el := range elem {
		out.Path = strings.TrimSuffix(out.Path, "/") + "/" + el
	}
	return &out
}

// Base returns the last element of the URI's path.
func (u *URI) Base() string {
	return filepath.Base(u.Filepath())
}

func (u *URI) IsZero() bool {
	return *u == URI{}
}

func (u *URI) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

func (u *URI) UnmarshalText(b []byte) error {
	uri, err := ParseURI(string(b))
	if err != nil {
		return err
	}
	*u = *uri
	return nil
}
