package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type FileMode string

const (
	// FileModeAppend appends to an existing log file across restarts.
	FileModeAppend FileMode = "append"
	// FileModeTruncate starts every run with an empty log file.
	FileModeTruncate FileMode = "truncate"
	// FileModeRotate rotates the log file by size.
	FileModeRotate FileMode = "rotate"
)

func (m *FileMode) Set(s string) error {
	switch FileMode(s) {
	case FileModeAppend, "":
		*m = FileModeAppend
	case FileModeTruncate:
		*m = FileModeTruncate
	case FileModeRotate:
		*m = FileModeRotate
	default:
		return fmt.Errorf("invalid log file mode: %q (values: append, truncate, rotate)", s)
	}
	return nil
}

func (m FileMode) String() string {
	return string(m)
}

func (m *FileMode) UnmarshalText(text []byte) error {
	return m.Set(string(text))
}

// Rotation bounds a rotated log file.  Zero fields take lumberjack's
// defaults.
type Rotation struct {
	MaxSizeMB  int  `yaml:"maxSizeMB"`
	MaxBackups int  `yaml:"maxBackups"`
	MaxAgeDays int  `yaml:"maxAgeDays"`
	Compress   bool `yaml:"compress"`
}

func OpenFile(path string, mode FileMode, rot Rotation) (zapcore.WriteSyncer, error) {
	switch path {
	case "", "stderr":
		return zapcore.Lock(os.Stderr), nil
	case "stdout":
		return zapcore.Lock(os.Stdout), nil
	case "/dev/null":
		return zapcore.AddSync(io.Discard), nil
	}
	flags := os.O_WRONLY | os.O_CREATE
	switch mode {
	case FileModeRotate:
		return rotate(path, rot)
	case FileModeTruncate:
		flags |= os.O_TRUNC
	default:
		flags |= os.O_APPEND
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, err
	}
	return zapcore.Lock(f), nil
}

func rotate(path string, rot Rotation) (zapcore.WriteSyncer, error) {
	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		return nil, err
	}
	if rot.MaxSizeMB == 0 {
		rot.MaxSizeMB = 5
	}
	// lumberjack.Logger locks internally.
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    rot.MaxSizeMB,
		MaxBackups: rot.MaxBackups,
		MaxAge:     rot.MaxAgeDays,
		Compress:   rot.Compress,
	}), nil
}
