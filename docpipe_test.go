package docpipe_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/brimdata/docpipe/ztest"
	"github.com/stretchr/testify/require"
)

func TestDocpipe(t *testing.T) {
	t.Parallel()
	dirs, err := findZTests()
	require.NoError(t, err)
	for _, d := range dirs {
		d := d
		t.Run(d, func(t *testing.T) {
			t.Parallel()
			ztest.Run(t, d)
		})
	}
}

// findZTests returns every directory named ztests holding a .yaml file.
func findZTests() ([]string, error) {
	seen := map[string]bool{}
	var dirs []string
	err := filepath.WalkDir(".", func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && (d.Name() == "_examples" || d.Name() == ".git") {
			return filepath.SkipDir
		}
		dir := filepath.Dir(path)
		if !d.IsDir() && filepath.Ext(path) == ".yaml" && filepath.Base(dir) == "ztests" && !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
		return nil
	})
	return dirs, err
}
