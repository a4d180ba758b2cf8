package ztest

import (
	"bytes"
	"io"
	"os"
	"os/exec"
	"runtime"
)

// RunShell runs script in dir with bindir ahead of the system PATH.  Only
// HOME, PATH and the variables named in passenv reach the script.
func RunShell(dir *Dir, bindir, script string, stdin io.Reader, passenv []string) (string, string, error) {
	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.Command("cmd.exe", "/c", script)
	} else {
		// Fail on the first failing command, including within a pipe.
		cmd = exec.Command("bash", "-e", "-o", "pipefail", "-c", script)
	}
	path := "/bin:/usr/bin"
	if bindir != "" {
		path = bindir + string(os.PathListSeparator) + path
	}
	cmd.Env = []string{"HOME=" + dir.Path(), "PATH=" + path}
	for _, name := range passenv {
		if v, ok := os.LookupEnv(name); ok {
			cmd.Env = append(cmd.Env, name+"="+v)
		}
	}
	cmd.Dir = dir.Path()
	cmd.Stdin = stdin
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}
