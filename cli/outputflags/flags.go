// Package outputflags configures where and how query results are written.
package outputflags

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"io"
	"os"
	"strings"

	"github.com/brimdata/docpipe"
	"github.com/brimdata/docpipe/pkg/storage"
	"github.com/pierrec/lz4/v4"
	"golang.org/x/term"
)

type Flags struct {
	Pretty     int
	outputFile string
	compact    bool
}

func (f *Flags) SetFlags(fs *flag.FlagSet) {
	fs.IntVar(&f.Pretty, "pretty", 2, "indent width for terminal output (0 for one document per line)")
	fs.BoolVar(&f.compact, "j", false, "write one document per line even to a terminal")
	fs.StringVar(&f.outputFile, "o", "", "write documents to this file or s3:// URI (compressed when it ends in .lz4)")
}

func (f *Flags) Init() error {
	if f.Pretty < 0 {
		return errors.New("pretty value must not be negative")
	}
	if f.outputFile == "-" {
		f.outputFile = ""
	}
	if f.compact || f.outputFile != "" || !term.IsTerminal(int(os.Stdout.Fd())) {
		f.Pretty = 0
	}
	return nil
}

func (f *Flags) FileName() string {
	return f.outputFile
}

// Writer writes documents as extended JSON.
type Writer struct {
	w       io.Writer
	closers []io.Closer
	indent  string
	buf     bytes.Buffer
}

func NewWriter(w io.Writer, pretty int) *Writer {
	return &Writer{w: w, indent: strings.Repeat(" ", pretty)}
}

func (f *Flags) Open(ctx context.Context, engine storage.Engine) (*Writer, error) {
	if f.outputFile == "" {
		return NewWriter(os.Stdout, f.Pretty), nil
	}
	u, err := storage.ParseURI(f.outputFile)
	if err != nil {
		return nil, err
	}
	out, err := engine.Put(ctx, u)
	if err != nil {
		return nil, err
	}
	w := NewWriter(out, 0)
	w.closers = append(w.closers, out)
	if strings.HasSuffix(f.outputFile, ".lz4") {
		zw := lz4.NewWriter(out)
		w.w = zw
		w.closers = append([]io.Closer{zw}, w.closers...)
	}
	return w, nil
}

func (w *Writer) Write(doc *docpipe.Document) error {
	b, err := docpipe.MarshalExtJSON(doc)
	if err != nil {
		return err
	}
	if w.indent != "" {
		w.buf.Reset()
		if err := json.Indent(&w.buf, b, "", w.indent); err != nil {
			return err
		}
		b = w.buf.Bytes()
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	_, err = w.w.Write([]byte{'\n'})
	return err
}

// Close flushes any compression and closes the output file.
func (w *Writer) Close() error {
	var err error
	for _, c := range w.closers {
		if closeErr := c.Close(); err == nil {
			err = closeErr
		}
	}
	return err
}
