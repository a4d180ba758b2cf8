package charm

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kr/text"
	"golang.org/x/term"
)

var Help = &Spec{
	Name:  "help",
	Usage: "help [command]",
	Short: "display help for a command",
	Long: `
For help on the top-level command just type "help".
For help on a sub-command, type "help command".  For help on commands
nested further, type "help cmd1 cmd2" and so forth.`,
	HiddenFlags: "v",
	New: func(parent Command, f *flag.FlagSet) (Command, error) {
		c := &HelpCommand{}
		f.BoolVar(&c.vflag, "v", false, "show hidden commands and flags")
		return c, nil
	},
}

// HelpOutput is where help is written.
var HelpOutput io.Writer = os.Stderr

type HelpCommand struct {
	vflag bool
}

func (c *HelpCommand) Run(args []string) error {
	path, err := c.search(args)
	if err != nil {
		return err
	}
	displayHelp(path, c.vflag)
	return nil
}

func (c *HelpCommand) search(args []string) (path, error) {
	root, err := newInstance(nil, Help.Root())
	if err != nil {
		return nil, err
	}
	p := path{root}
	for k, arg := range args {
		spec := p.last().spec.lookupSub(arg)
		if spec == nil {
			return nil, fmt.Errorf("no such command: %s", strings.Join(args[:k+1], " "))
		}
		child, err := newInstance(p.last().command, spec)
		if err != nil {
			return nil, err
		}
		p = append(p, child)
	}
	return p, nil
}

func splitFlags(flags string) []string {
	var out []string
	for _, flag := range strings.Split(flags, ",") {
		out = append(out, strings.TrimSpace(flag))
	}
	return out
}

// flagMap maps each name in the comma-separated flags to true.
func flagMap(flags string) map[string]bool {
	m := make(map[string]bool)
	for _, flag := range splitFlags(flags) {
		m[flag] = true
	}
	return m
}

const tab = "    "

func width() int {
	if w, _, err := term.GetSize(int(os.Stderr.Fd())); err == nil && w > 0 {
		return w
	}
	return 80
}

func formatParagraph(body string, lineWidth int) string {
	var chunks []string
	for _, paragraph := range strings.Split(strings.TrimSpace(body), "\n\n") {
		paragraph = strings.Join(strings.Fields(paragraph), " ")
		chunks = append(chunks, text.Indent(text.Wrap(paragraph, lineWidth), tab))
	}
	return strings.Join(chunks, "\n\n") + "\n\n"
}

func header(heading string) string {
	if !term.IsTerminal(int(os.Stderr.Fd())) {
		return heading
	}
	return "\033[1m" + heading + "\033[0m"
}

func helpItem(heading, body string) {
	fmt.Fprint(HelpOutput, header(heading)+"\n"+tab+body+"\n\n")
}

func helpDesc(heading, body string) {
	fmt.Fprint(HelpOutput, header(heading)+"\n"+formatParagraph(body, width()-len(tab)-5))
}

func helpList(heading string, lines []string) {
	fmt.Fprint(HelpOutput, header(heading)+"\n"+tab+strings.Join(lines, "\n"+tab)+"\n\n")
}

func commands(target *Spec, vflag bool) []string {
	var lines []string
	for _, cmd := range target.children {
		name := cmd.Name
		if cmd.Hidden {
			if !vflag {
				continue
			}
			name = "[" + name + "]"
		}
		lines = append(lines, name+" - "+cmd.Short)
	}
	return lines
}

// options lists the flags of the last command in p followed by those of
// its ancestors, each under a heading naming the ancestor.
func options(p path, vflag bool) []string {
	lines := p.last().options(vflag)
	if len(lines) == 0 {
		lines = []string{"no flags for this command"}
	}
	for k := len(p) - 2; k >= 0; k-- {
		parent := p[k].options(vflag)
		if len(parent) == 0 {
			continue
		}
		lines = append(lines, "", "["+p[:k+1].pathname()+" flags]")
		lines = append(lines, parent...)
	}
	return lines
}

func displayHelp(p path, vflag bool) {
	spec := p.last().spec
	helpItem("NAME", spec.Name+" - "+spec.Short)
	helpItem("USAGE", spec.Usage)
	helpList("OPTIONS", options(p, vflag))
	if len(spec.children) > 0 {
		helpList("COMMANDS", commands(spec, vflag))
	}
	if spec.Long != "" {
		helpDesc("DESCRIPTION", spec.Long)
	}
}
