// Package logger builds the zap loggers used by the docpipe server and
// command line tools.
package logger

import (
	"sort"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	Level zapcore.Level `yaml:"level"`
	// Path is stderr, stdout, /dev/null or a file name.
	Path string `yaml:"path"`
	// Mode determines how a log file is managed.  FileModeAppend is the
	// default.
	Mode     FileMode `yaml:"mode,omitempty"`
	Rotation Rotation `yaml:"rotation"`
	// DevMode makes DPanic panic and logs in console format.
	DevMode bool `yaml:"devmode"`
	// Components sets the level of named loggers (e.g., "cluster" or
	// "cursor") below Level.
	Components map[string]zapcore.Level `yaml:"components"`
}

func New(conf Config) (*zap.Logger, error) {
	core, err := NewCore(conf)
	if err != nil {
		return nil, err
	}
	opts := []zap.Option{zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)}
	if conf.DevMode {
		opts = append(opts, zap.Development())
	}
	return zap.New(core, opts...), nil
}

func NewCore(conf Config) (zapcore.Core, error) {
	w, err := OpenFile(conf.Path, conf.Mode, conf.Rotation)
	if err != nil {
		return nil, err
	}
	enc := jsonEncoder()
	if conf.DevMode {
		enc = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	}
	names := make([]string, 0, len(conf.Components))
	for name := range conf.Components {
		names = append(names, name)
	}
	sort.Strings(names)
	var cores []zapcore.Core
	for _, name := range names {
		core := zapcore.NewCore(enc, w, conf.Components[name])
		cores = append(cores, newNameFilterCore(core, name))
	}
	cores = append(cores, zapcore.NewCore(enc, w, conf.Level))
	return NewWaterfall(cores...), nil
}

func jsonEncoder() zapcore.Encoder {
	conf := zap.NewProductionEncoderConfig()
	conf.EncodeTime = zapcore.ISO8601TimeEncoder
	return zapcore.NewJSONEncoder(conf)
}
