package kitchen

import (
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"

	"github.com/mmr-tortoise/solo-cook/internal/config"
)

// ScaffoldDirs are the directories created by Scaffold.
var ScaffoldDirs = []string{"nodes", "roles", "data_bags", "site-cookbooks", "cookbooks", "environments"}

// ScaffoldResult lists what Scaffold created. Paths are relative to the
// kitchen root; anything already present is left alone and not listed.
type ScaffoldResult struct {
	Created []string
}

// Scaffold lays out a new kitchen under dir: the ScaffoldDirs, each with a
// .gitkeep so empty directories survive version control, and a solo.rb
// rendered from config.SoloTemplate. Existing files are never overwritten,
// which makes Scaffold safe to run on a half-built kitchen.
func Scaffold(dir string) (*ScaffoldResult, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create kitchen directory %s", dir)
	}

	result := &ScaffoldResult{}

	for _, name := range ScaffoldDirs {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return result, errors.Wrapf(err, "failed to create %s", name)
		}
		if err := os.WriteFile(filepath.Join(path, ".gitkeep"), nil, 0o644); err != nil {
			return result, errors.Wrapf(err, "failed to create %s/.gitkeep", name)
		}
		result.Created = append(result.Created, name)
	}

	created, err := writeIfMissing(filepath.Join(dir, config.SoloFile), []byte(config.SoloTemplate))
	if err != nil {
		return result, err
	}
	if created {
		result.Created = append(result.Created, config.SoloFile)
	}

	return result, nil
}

// writeIfMissing creates path with data unless it already exists.
func writeIfMissing(path string, data []byte) (bool, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, errors.Wrapf(err, "failed to create %s", filepath.Base(path))
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return false, errors.Wrapf(err, "failed to write %s", filepath.Base(path))
	}
	return true, f.Close()
}
