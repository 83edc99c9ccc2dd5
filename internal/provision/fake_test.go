package provision

import (
	"context"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mmr-tortoise/solo-cook/internal/config"
	"github.com/mmr-tortoise/solo-cook/internal/model"
	"github.com/mmr-tortoise/solo-cook/internal/transport"
)

// call is one recorded Transport method invocation.
type call struct {
	Method string
	Arg    string
}

// fakeTransport records every call and simulates the remote filesystem
// that rsync would produce, including --delete.
type fakeTransport struct {
	mu sync.Mutex

	calls     []call
	transfers []transport.TransferRequest

	windows      bool
	probeFails   bool
	streamFails  bool
	mkdirErr     error
	failTransfer map[string]bool // keyed by the first source

	remote map[string]struct{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{failTransfer: map[string]bool{}, remote: map[string]struct{}{}}
}

func (f *fakeTransport) record(method, arg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{Method: method, Arg: arg})
}

func (f *fakeTransport) MkdirP(_ context.Context, p string) error {
	f.record("MkdirP", p)
	return f.mkdirErr
}

func (f *fakeTransport) Chmod(_ context.Context, mode, p string) error {
	f.record("Chmod", mode+" "+p)
	return nil
}

func (f *fakeTransport) Run(_ context.Context, script string) (model.CommandResult, error) {
	f.record("Run", script)
	return model.CommandResult{Success: !f.probeFails, Output: "probe output"}, nil
}

func (f *fakeTransport) Stream(_ context.Context, script string) (model.CommandResult, error) {
	f.record("Stream", script)
	return model.CommandResult{Success: !f.streamFails}, nil
}

func (f *fakeTransport) IsWindowsLike(context.Context) (bool, error) {
	f.record("IsWindowsLike", "")
	return f.windows, nil
}

func (f *fakeTransport) ConnectionArgs() string {
	return "root@web -p 22"
}

func (f *fakeTransport) Transfer(_ context.Context, req transport.TransferRequest) (model.CommandResult, error) {
	f.record("Transfer", strings.Join(req.Sources, ",")+" -> "+req.Dest)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.transfers = append(f.transfers, req)

	if len(req.Sources) > 0 && f.failTransfer[req.Sources[0]] {
		return model.CommandResult{Success: false, Output: "rsync error: some files could not be transferred (code 23)"}, nil
	}

	if req.Delete {
		for key := range f.remote {
			if strings.HasPrefix(key, req.Dest+"/") {
				delete(f.remote, key)
			}
		}
	}
	for _, src := range req.Sources {
		for _, rel := range localFiles(req.Dir, src, req.Excludes) {
			f.remote[path.Join(req.Dest, rel)] = struct{}{}
		}
	}
	return model.CommandResult{Success: true}, nil
}

func (f *fakeTransport) methods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		out = append(out, c.Method)
	}
	return out
}

func (f *fakeTransport) callsOf(method string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		if c.Method == method {
			out = append(out, c.Arg)
		}
	}
	return out
}

func (f *fakeTransport) remoteFiles() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.remote))
	for k := range f.remote {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// localFiles lists the files rsync would send for src, skipping any path
// component that matches an exclusion pattern.
func localFiles(dir, src string, excludes []string) []string {
	root := filepath.Join(dir, src)
	info, err := os.Stat(root)
	if err != nil {
		return nil
	}
	if !info.IsDir() {
		return []string{filepath.Base(root)}
	}

	var files []string
	_ = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || p == root {
			return err
		}
		for _, pattern := range excludes {
			if ok, _ := filepath.Match(pattern, d.Name()); ok {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
		}
		if !d.IsDir() {
			rel, _ := filepath.Rel(root, p)
			files = append(files, filepath.ToSlash(rel))
		}
		return nil
	})
	return files
}

type fakeInspector struct {
	validateErr error
	patterns    []string
}

func (f *fakeInspector) Validate() error                   { return f.validateErr }
func (f *fakeInspector) IgnorePatterns() ([]string, error) { return f.patterns, nil }

type fakeNodeConfig struct {
	calls int
	err   error
}

func (f *fakeNodeConfig) Generate(_ context.Context, target model.Target, jsonPath string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if jsonPath != "" {
		return jsonPath, nil
	}
	return "nodes/" + target.Host + ".json", nil
}

// stepClock advances by one second on every reading.
type stepClock struct {
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.now = c.now.Add(time.Second)
	return c.now
}

// fixture wires a Pipeline to fakes and builds a matching Request.
type fixture struct {
	transport  *fakeTransport
	inspector  *fakeInspector
	nodeConfig *fakeNodeConfig
	connects   int
	pipeline   *Pipeline
	request    Request
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	kitchen := t.TempDir()
	writeFiles(t, kitchen, map[string]string{
		"solo.rb":                               config.SoloTemplate,
		"nodes/web.json":                        `{"run_list": []}`,
		"cookbooks/base/recipes/default.rb":     "package 'git'",
		"site-cookbooks/app/recipes/default.rb": "service 'app'",
		".git/config":                           "[core]",
		"tmp/scratch":                           "x",
	})

	patchDir := t.TempDir()
	writeFiles(t, patchDir, map[string]string{
		"10_data_bags.rb": "# one",
		"20_search.rb":    "# two",
	})

	f := &fixture{
		transport:  newFakeTransport(),
		inspector:  &fakeInspector{},
		nodeConfig: &fakeNodeConfig{},
	}
	gate, err := NewVersionGate(DefaultChefConstraint)
	require.NoError(t, err)

	f.pipeline = &Pipeline{
		Inspector:  f.inspector,
		NodeConfig: f.nodeConfig,
		Gate:       gate,
		Connect: func(model.Target) (Transport, error) {
			f.connects++
			return f.transport, nil
		},
		Clock: &stepClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	f.request = Request{
		Destination: "root@web",
		Kitchen:     kitchen,
		PatchDir:    patchDir,
		Solo: config.SoloConfig{
			SoloPath:      "/tmp/chef-solo",
			FileCachePath: "/tmp/chef-cache",
			CookbookPaths: []string{"/tmp/chef-solo/site-cookbooks", "/tmp/chef-solo/cookbooks"},
		},
	}
	return f
}

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}
