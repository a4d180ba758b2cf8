// Package charm is a minimalist CLI framework inspired by cobra and
// urfave/cli.
package charm

import (
	"errors"
	"flag"
)

var (
	NeedHelp = errors.New("help")
	ErrNoRun = errors.New("no run method")
)

type Constructor func(Command, *flag.FlagSet) (Command, error)

type Command interface {
	Run([]string) error
}

type Spec struct {
	Name  string
	Usage string
	Short string
	Long  string
	New   Constructor
	// Hidden hides this command from help.
	Hidden bool
	// HiddenFlags (comma-separated) are left out of help unless -v is
	// given to help.
	HiddenFlags string
	// RedactedFlags (comma-separated) are shown in help without their
	// default values.
	RedactedFlags string
	children      []*Spec
	parent        *Spec
}

func (s *Spec) Add(child *Spec) {
	s.children = append(s.children, child)
	child.parent = s
}

func (s *Spec) Root() *Spec {
	for s.parent != nil {
		s = s.parent
	}
	return s
}

func (s *Spec) lookupSub(name string) *Spec {
	for _, child := range s.children {
		if name == child.Name {
			return child
		}
	}
	return nil
}

// ExecRoot parses args against s and its sub-commands and runs the
// command they select.  A -h or -help flag anywhere on the path shows
// help for the selected command instead.
func (s *Spec) ExecRoot(args []string) error {
	path, rest, err := parse(s, args)
	if err == nil {
		err = path.run(rest)
	}
	if err == NeedHelp {
		path, err := parseHelp(s, args)
		if err != nil {
			return err
		}
		displayHelp(path, false)
		return nil
	}
	return err
}

// parse builds the instances along the command path named by args.
func parse(spec *Spec, args []string) (path, []string, error) {
	var p path
	var parent Command
	for {
		inst, err := newInstance(parent, spec)
		if err != nil {
			return nil, nil, err
		}
		p = append(p, inst)
		rest, err := parseFlags(inst.flags, args)
		if err != nil {
			return p, nil, err
		}
		if len(rest) == 0 {
			return p, rest, nil
		}
		child := spec.lookupSub(rest[0])
		if child == nil {
			return p, rest, nil
		}
		spec, parent, args = child, inst.command, rest[1:]
	}
}

// parseHelp builds the instances named by args, ignoring flags.
func parseHelp(spec *Spec, args []string) (path, error) {
	var p path
	var parent Command
	for {
		inst, err := newInstance(parent, spec)
		if err != nil {
			return nil, err
		}
		p = append(p, inst)
		var next *Spec
		for len(args) > 0 && next == nil {
			next = spec.lookupSub(args[0])
			args = args[1:]
		}
		if next == nil {
			return p, nil
		}
		spec, parent = next, inst.command
	}
}

func parseFlags(fs *flag.FlagSet, args []string) ([]string, error) {
	fs.Usage = func() {}
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, NeedHelp
		}
		return nil, err
	}
	return fs.Args(), nil
}
