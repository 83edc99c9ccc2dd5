package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSolo_Template(t *testing.T) {
	cfg, err := ParseSolo([]byte(SoloTemplate))
	require.NoError(t, err)

	assert.Equal(t, "/tmp/chef-solo", cfg.SoloPath)
	assert.Equal(t, "/tmp/chef-cache", cfg.FileCachePath)
	assert.Equal(t, []string{"/tmp/chef-solo/site-cookbooks", "/tmp/chef-solo/cookbooks"}, cfg.CookbookPaths)
	assert.Equal(t, "/tmp/chef-solo/site-cookbooks/chef_solo_patches/libraries", cfg.PatchPath())
}

func TestParseSolo(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		soloPath  string
		cachePath string
		cookbooks []string
	}{
		{
			name:      "empty file keeps defaults",
			input:     "",
			cachePath: DefaultFileCachePath,
		},
		{
			name:      "append without assignment extends the defaults",
			input:     "cookbook_path << \"/srv/extra\"\n",
			cachePath: DefaultFileCachePath,
			cookbooks: []string{"/var/chef/cookbooks", "/var/chef/site-cookbooks", "/srv/extra"},
		},
		{
			name:      "single quoted values",
			input:     "knife[:solo_path] = '/srv/kitchen'\nfile_cache_path '/srv/cache'\ncookbook_path '/srv/kitchen/cookbooks'\n",
			soloPath:  "/srv/kitchen",
			cachePath: "/srv/cache",
			cookbooks: []string{"/srv/kitchen/cookbooks"},
		},
		{
			name:      "comments are ignored",
			input:     "# knife[:solo_path] = \"/commented\"\nknife[:solo_path] = \"/real\" # trailing\n",
			soloPath:  "/real",
			cachePath: DefaultFileCachePath,
		},
		{
			name:      "hash inside string is not a comment",
			input:     "knife[:solo_path] = \"/srv/#kitchen\"\n",
			soloPath:  "/srv/#kitchen",
			cachePath: DefaultFileCachePath,
		},
		{
			name:      "append operator extends cookbook_path",
			input:     "cookbook_path []\ncookbook_path << \"/a\"\ncookbook_path << '/b'\n",
			cachePath: DefaultFileCachePath,
			cookbooks: []string{"/a", "/b"},
		},
		{
			name:      "unknown statements are skipped",
			input:     "base = File.expand_path('..', __FILE__)\nknife[:editor] = 'vim'\nrole_path \"/r\"\nknife[:solo_path] = \"/k\"\n",
			soloPath:  "/k",
			cachePath: DefaultFileCachePath,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := ParseSolo([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.soloPath, cfg.SoloPath)
			assert.Equal(t, tt.cachePath, cfg.FileCachePath)
			if tt.cookbooks == nil {
				assert.Equal(t, DefaultCookbookPaths, cfg.CookbookPaths)
			} else {
				assert.Equal(t, tt.cookbooks, cfg.CookbookPaths)
			}
		})
	}
}

func TestParseSolo_NonLiteralSoloPath(t *testing.T) {
	_, err := ParseSolo([]byte("knife[:solo_path] = ENV['HOME']\n"))
	assert.Error(t, err)
}

func TestLoadSolo_Missing(t *testing.T) {
	cfg, err := LoadSolo(t.TempDir())
	assert.True(t, errors.Is(err, ErrSoloNotFound))
	assert.Empty(t, cfg.SoloPath)
	assert.Equal(t, DefaultFileCachePath, cfg.FileCachePath)
}

func TestLoadSolo_ReadsKitchenFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, SoloFile), []byte(SoloTemplate), 0o644))

	cfg, err := LoadSolo(dir)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/chef-solo", cfg.SoloPath)
}

func TestPatchPath_NoCookbookPath(t *testing.T) {
	cfg, err := ParseSolo([]byte("knife[:solo_path] = \"/tmp/chef-solo\"\n"))
	require.NoError(t, err)
	assert.Equal(t, "/var/chef/cookbooks/chef_solo_patches/libraries", cfg.PatchPath())

	cfg, err = ParseSolo([]byte("cookbook_path []\n"))
	require.NoError(t, err)
	assert.Empty(t, cfg.CookbookPaths)
	assert.Equal(t, "/var/chef/cookbooks/chef_solo_patches/libraries", cfg.PatchPath())

	assert.Equal(t, "/var/chef/cookbooks/chef_solo_patches/libraries", SoloConfig{}.PatchPath())
}

func TestParseSolo_DefaultsNotShared(t *testing.T) {
	cfg, err := ParseSolo([]byte("cookbook_path << \"/x\"\n"))
	require.NoError(t, err)
	cfg.CookbookPaths[0] = "/mutated"

	assert.Equal(t, []string{"/var/chef/cookbooks", "/var/chef/site-cookbooks"}, DefaultCookbookPaths)
}
