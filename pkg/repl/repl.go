// Package repl is a simple read-eval-print loop.  It calls the Consumer
// to do all the eval work.
package repl

import (
	"errors"
	"io"
	"os"

	"github.com/peterh/liner"
)

type Consumer interface {
	// Consume handles one line and returns true to end the loop.
	Consume(line string) bool
	Prompt() string
}

type Options struct {
	// HistoryFile, when set, is read at start and written at exit.
	HistoryFile string
	// Completions are offered for tab completion.
	Completions []string
}

// Run executes the REPL until the consumer is done or input ends.
func Run(c Consumer, opts Options) error {
	l := liner.NewLiner()
	defer l.Close()
	l.SetMultiLineMode(true)
	l.SetCtrlCAborts(true)
	if len(opts.Completions) > 0 {
		l.SetWordCompleter(wordCompleter(opts.Completions))
	}
	if opts.HistoryFile != "" {
		if f, err := os.Open(opts.HistoryFile); err == nil {
			l.ReadHistory(f)
			f.Close()
		}
		defer saveHistory(l, opts.HistoryFile)
	}
	for {
		line, err := l.Prompt(c.Prompt())
		if errors.Is(err, io.EOF) {
			return nil
		}
		if errors.Is(err, liner.ErrPromptAborted) {
			continue
		}
		if err != nil {
			return err
		}
		if c.Consume(line) {
			return nil
		}
		if line != "" {
			l.AppendHistory(line)
		}
	}
}

func saveHistory(l *liner.State, path string) {
	if f, err := os.Create(path); err == nil {
		l.WriteHistory(f)
		f.Close()
	}
}

// wordCompleter completes the word under the cursor from words.
func wordCompleter(words []string) liner.WordCompleter {
	return func(line string, pos int) (string, []string, string) {
		start := pos
		for start > 0 && isWord(line[start-1]) {
			start--
		}
		prefix := line[start:pos]
		var out []string
		if prefix != "" {
			for _, w := range words {
				if len(w) >= len(prefix) && w[:len(prefix)] == prefix {
					out = append(out, w)
				}
			}
		}
		return line[:start], out, line[pos:]
	}
}

func isWord(c byte) bool {
	return c == '$' || c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}
