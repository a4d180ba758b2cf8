package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"sort"

	"github.com/brimdata/docpipe"
	"github.com/brimdata/docpipe/compiler/dag"
)

// ParseSource reads the pipeline files in filenames followed by src and
// parses the concatenation of their stages.
func ParseSource(filenames []string, src string, opts *Options) (*dag.Sequential, error) {
	stages, err := ReadSource(filenames, src)
	if err != nil {
		return nil, err
	}
	return ParseStages(stages.Array(), opts)
}

// ReadSource reads the pipeline files in filenames followed by src and
// returns their stages as one array.  Each source holds either an array of
// stages or a single stage document, and empty sources are skipped.  A
// malformed source yields a *SyntaxError.
func ReadSource(filenames []string, src string) (docpipe.Value, error) {
	var sources []source
	for _, name := range filenames {
		b, err := os.ReadFile(name)
		if err != nil {
			return docpipe.Missing, err
		}
		sources = append(sources, newSource(name, b))
	}
	sources = append(sources, newSource("", []byte(src)))
	stages := []docpipe.Value{}
	for _, s := range sources {
		if len(bytes.TrimSpace(s.text)) == 0 {
			continue
		}
		if err := s.check(); err != nil {
			return docpipe.Missing, err
		}
		v, err := docpipe.ParseExtJSON(s.text)
		if err != nil {
			return docpipe.Missing, err
		}
		if v.IsArray() {
			stages = append(stages, v.Array()...)
		} else {
			stages = append(stages, v)
		}
	}
	return docpipe.NewArray(stages), nil
}

type source struct {
	name string
	text []byte
	// lines holds the offset of the start of each line.
	lines []int
}

func newSource(name string, text []byte) source {
	lines := []int{0}
	for off, c := range text {
		if c == '\n' && off+1 < len(text) {
			lines = append(lines, off+1)
		}
	}
	return source{name: name, text: text, lines: lines}
}

// check validates s as a single JSON value.  The extended JSON decoder
// reports no offsets so this pass supplies them.
func (s source) check() error {
	dec := json.NewDecoder(bytes.NewReader(s.text))
	var raw json.RawMessage
	err := dec.Decode(&raw)
	if err == nil && dec.More() {
		return s.errorAt(int(dec.InputOffset()), "invalid character after top-level value")
	}
	var serr *json.SyntaxError
	if errors.As(err, &serr) {
		off := int(serr.Offset)
		if off > 0 {
			off--
		}
		return s.errorAt(off, serr.Error())
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return s.errorAt(len(s.text), "unexpected end of pipeline")
	}
	return err
}

func (s source) errorAt(off int, msg string) *SyntaxError {
	if off >= len(s.text) {
		off = len(s.text) - 1
	}
	i := sort.Search(len(s.lines), func(i int) bool { return s.lines[i] > off }) - 1
	start := s.lines[i]
	end := len(s.text)
	if i+1 < len(s.lines) {
		end = s.lines[i+1]
	}
	return &SyntaxError{
		Filename: s.name,
		Text:     string(bytes.TrimRight(s.text[start:end], "\r\n")),
		Line:     i + 1,
		Column:   off - start + 1,
		Msg:      msg,
	}
}
