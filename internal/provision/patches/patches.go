// Package patches carries the Ruby files installed into the target's
// chef_solo_patches cookbook before each run. chef-solo loads every
// cookbook's libraries/ first, so these files extend Chef itself.
package patches

import (
	"embed"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
)

//go:embed *.rb
var files embed.FS

// Names returns the embedded patch file names in lexical order.
func Names() []string {
	entries, err := fs.ReadDir(files, ".")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

// Extract writes the patch files into a fresh temporary directory, since
// rsync needs them on the local filesystem. The caller removes the
// directory with the returned cleanup func.
func Extract() (dir string, cleanup func(), err error) {
	dir, err = os.MkdirTemp("", "solo-cook-patches-")
	if err != nil {
		return "", nil, errors.Wrap(err, "failed to create patch directory")
	}
	cleanup = func() { _ = os.RemoveAll(dir) }

	for _, name := range Names() {
		data, err := files.ReadFile(name)
		if err != nil {
			cleanup()
			return "", nil, errors.Wrapf(err, "failed to read embedded patch %s", name)
		}
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			cleanup()
			return "", nil, errors.Wrapf(err, "failed to write patch %s", name)
		}
	}
	return dir, cleanup, nil
}
