package logflags

import (
	"flag"

	"github.com/brimdata/docpipe/service/logger"
	"go.uber.org/zap"
)

type Flags struct {
	Config logger.Config
}

func (f *Flags) SetFlags(fs *flag.FlagSet) {
	fs.BoolVar(&f.Config.DevMode, "log.devmode", false, "development mode (dpanic level logs panic and output is human readable)")
	f.Config.Level = zap.InfoLevel
	fs.Var(&f.Config.Level, "log.level", "logging level")
	fs.StringVar(&f.Config.Path, "log.path", "stderr", "where to send logs (values: stderr, stdout, /dev/null, path in file system)")
	f.Config.Mode = logger.FileModeAppend
	fs.Var(&f.Config.Mode, "log.filemode", "log file write mode (values: append, truncate, rotate)")
}

// Apply copies the flags that were set on the command line over conf.
func (f *Flags) Apply(fs *flag.FlagSet, conf *logger.Config) {
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "log.devmode":
			conf.DevMode = f.Config.DevMode
		case "log.level":
			conf.Level = f.Config.Level
		case "log.path":
			conf.Path = f.Config.Path
		case "log.filemode":
			conf.Mode = f.Config.Mode
		}
	})
}

func (f *Flags) Open() (*zap.Logger, error) {
	return logger.New(f.Config)
}
