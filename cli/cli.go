// Package cli holds the flags and startup plumbing shared by the docpipe
// commands.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/pprof"
	"syscall"
)

type Flags struct {
	showVersion bool
	cpuprofile  string
	memprofile  string
	cpuFile     *os.File
}

func (f *Flags) SetFlags(fs *flag.FlagSet) {
	fs.BoolVar(&f.showVersion, "version", false, "print version and exit")
	fs.StringVar(&f.cpuprofile, "cpuprofile", "", "write cpu profile to given file name")
	fs.StringVar(&f.memprofile, "memprofile", "", "write memory profile to given file name")
}

type Initializer interface {
	Init() error
}

// Init runs each initializer, starts profiling, and returns a context
// canceled on SIGINT, SIGPIPE or SIGTERM.
func (f *Flags) Init(all ...Initializer) (context.Context, func(), error) {
	return f.InitWithSignals(all, syscall.SIGINT, syscall.SIGPIPE, syscall.SIGTERM)
}

func (f *Flags) InitWithSignals(all []Initializer, signals ...os.Signal) (context.Context, func(), error) {
	if f.showVersion {
		fmt.Printf("Version: %s\n", Version())
		os.Exit(0)
	}
	for _, i := range all {
		if err := i.Init(); err != nil {
			return nil, nil, err
		}
	}
	if f.cpuprofile != "" {
		if err := f.startCPUProfile(); err != nil {
			return nil, nil, err
		}
	}
	ctx, cancel := signal.NotifyContext(context.Background(), signals...)
	cleanup := func() {
		cancel()
		f.stopProfiles()
	}
	return &interruptedContext{ctx}, cleanup, nil
}

type interruptedContext struct{ context.Context }

func (i *interruptedContext) Err() error {
	err := i.Context.Err()
	if errors.Is(err, context.Canceled) {
		return errors.New("interrupted")
	}
	return err
}

func (f *Flags) startCPUProfile() error {
	file, err := os.Create(f.cpuprofile)
	if err != nil {
		return err
	}
	f.cpuFile = file
	return pprof.StartCPUProfile(file)
}

func (f *Flags) stopProfiles() {
	if f.cpuFile != nil {
		pprof.StopCPUProfile()
		f.cpuFile.Close()
	}
	if f.memprofile != "" {
		if file, err := os.Create(f.memprofile); err == nil {
			runtime.GC()
			pprof.Lookup("allocs").WriteTo(file, 0)
			file.Close()
		}
	}
}

func FileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
