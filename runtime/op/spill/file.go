// Package spill writes runs of documents to temporary files and merges them
// back in order, for operators whose input does not fit in memory.
package spill

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/brimdata/docpipe"
	"github.com/pierrec/lz4/v4"
	"go.mongodb.org/mongo-driver/bson"
)

// File is a sequence of documents written to temporary storage and then
// read back.  Documents are stored as BSON together with their metadata
// and the stream is compressed with lz4.  Documents are written via Write,
// followed by a call to Rewind, followed by reads via Read.
type File struct {
	file *os.File
	bw   *bufio.Writer
	zw   *lz4.Writer
	zr   *bufio.Reader
	n    int
}

func NewFile(f *os.File) *File {
	bw := bufio.NewWriter(f)
	return &File{
		file: f,
		bw:   bw,
		zw:   lz4.NewWriter(bw),
	}
}

func NewTempFile(dir string) (*File, error) {
	f, err := os.CreateTemp(dir, "docpipe-spill-")
	if err != nil {
		return nil, err
	}
	return NewFile(f), nil
}

func (f *File) Write(doc *docpipe.Document) error {
	rec := bson.D{{Key: "d", Value: docpipe.DocumentToBSON(doc)}}
	if meta := doc.MetaDocument(); meta != nil {
		rec = append(rec, bson.E{Key: "m", Value: docpipe.DocumentToBSON(meta)})
	}
	b, err := bson.Marshal(rec)
	if err != nil {
		return err
	}
	f.n++
	_, err = f.zw.Write(b)
	return err
}

// Rewind flushes pending output and positions the file for reading from
// its first document.
func (f *File) Rewind() error {
	if f.zw != nil {
		if err := f.zw.Close(); err != nil {
			return err
		}
		if err := f.bw.Flush(); err != nil {
			return err
		}
		f.zw = nil
	}
	if _, err := f.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	f.zr = bufio.NewReader(lz4.NewReader(bufio.NewReader(f.file)))
	return nil
}

// Read returns the next document or nil at the end of the file.
func (f *File) Read() (*docpipe.Document, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(f.zr, hdr[:]); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, err
	}
	size := int(binary.LittleEndian.Uint32(hdr[:]))
	if size < len(hdr) {
		return nil, fmt.Errorf("spill file %s: bad record length %d", f.file.Name(), size)
	}
	b := make([]byte, size)
	copy(b, hdr[:])
	if _, err := io.ReadFull(f.zr, b[len(hdr):]); err != nil {
		return nil, err
	}
	v, err := docpipe.FromBSON(bson.Raw(b))
	if err != nil {
		return nil, err
	}
	rec := v.Document()
	doc := rec.Get("d").Document()
	if doc == nil {
		return nil, fmt.Errorf("spill file %s: record without document", f.file.Name())
	}
	if meta := rec.Get("m").Document(); meta != nil {
		for _, m := range meta.Fields() {
			doc = doc.WithMeta(m.Name, m.Value)
		}
	}
	return doc, nil
}

// Len is the number of documents written.
func (f *File) Len() int {
	return f.n
}

// CloseAndRemove closes and removes the underlying file.
func (f *File) CloseAndRemove() error {
	err := f.file.Close()
	if rmErr := os.Remove(f.file.Name()); err == nil {
		err = rmErr
	}
	return err
}
