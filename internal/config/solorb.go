// Package config loads the persisted kitchen configuration (solo.rb) and
// the per-invocation CLI options.
//
// solo.rb is a Ruby file evaluated by chef-solo on the target. The CLI only
// needs three settings from it, so rather than evaluating Ruby it reads the
// small, declarative subset that kitchens actually use:
//
//	knife[:solo_path] = "/tmp/chef-solo"
//	file_cache_path   "/tmp/chef-cache"
//	cookbook_path     [ "/tmp/chef-solo/cookbooks",
//	                    "/tmp/chef-solo/site-cookbooks" ]
//	cookbook_path <<  "/tmp/chef-solo/vendor"
//
// Unknown statements, comments and blank lines are ignored.
package config

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"
)

// SoloFile is the kitchen-relative name of the chef-solo configuration.
const SoloFile = "solo.rb"

// DefaultFileCachePath is chef-solo's file_cache_path when solo.rb does not set one.
const DefaultFileCachePath = "/var/chef/cache"

// DefaultCookbookPaths is chef-solo's cookbook_path when solo.rb does not set one.
var DefaultCookbookPaths = []string{"/var/chef/cookbooks", "/var/chef/site-cookbooks"}

// ErrSoloNotFound is returned by LoadSolo when solo.rb does not exist.
// Callers treat it as a warning: validation decides whether the run can go on.
var ErrSoloNotFound = errors.New("solo.rb not found")

// SoloConfig holds the settings the pipeline reads from solo.rb.
type SoloConfig struct {
	// SoloPath is knife[:solo_path]: the remote kitchen root.
	SoloPath string

	// FileCachePath is chef-solo's cache directory on the target.
	FileCachePath string

	// CookbookPaths lists cookbook_path entries in declaration order.
	CookbookPaths []string
}

// PatchPath returns the remote directory that receives the patch files:
// "<first cookbook_path>/chef_solo_patches/libraries". An empty cookbook_path
// falls back to the first of DefaultCookbookPaths.
func (c SoloConfig) PatchPath() string {
	first := DefaultCookbookPaths[0]
	if len(c.CookbookPaths) > 0 {
		first = c.CookbookPaths[0]
	}
	return first + "/chef_solo_patches/libraries"
}

var (
	// knife[:solo_path] = "..."  or  knife[:solo_path] = '...'
	knifeAssignRegex = regexp.MustCompile(`^knife\[:(\w+)\]\s*=\s*(.+)$`)

	// setting "value"  /  setting ["a", "b"]  /  setting << "c"
	settingRegex = regexp.MustCompile(`^([a-z_]+)\s*(<<)?\s*(.*)$`)

	// A single- or double-quoted Ruby string literal without interpolation.
	stringLiteralRegex = regexp.MustCompile(`"([^"\\]*)"|'([^'\\]*)'`)

	// A value that is exactly one string literal.
	singleLiteralRegex = regexp.MustCompile(`^(?:"[^"\\]*"|'[^'\\]*')$`)
)

// LoadSolo reads <kitchen>/solo.rb.
//
// A missing file yields a zero SoloConfig (with the default cache path) and
// ErrSoloNotFound, so the caller can warn and continue.
func LoadSolo(kitchen string) (SoloConfig, error) {
	cfg := defaultSoloConfig()

	data, err := os.ReadFile(filepath.Join(kitchen, SoloFile))
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, ErrSoloNotFound
		}
		return cfg, errors.Wrap(err, "unable to load solo.rb")
	}

	parsed, err := ParseSolo(data)
	if err != nil {
		return cfg, errors.Wrap(err, "unable to parse solo.rb")
	}
	return parsed, nil
}

func defaultSoloConfig() SoloConfig {
	return SoloConfig{
		FileCachePath: DefaultFileCachePath,
		CookbookPaths: append([]string(nil), DefaultCookbookPaths...),
	}
}

// ParseSolo extracts SoloConfig from solo.rb contents.
func ParseSolo(data []byte) (SoloConfig, error) {
	cfg := defaultSoloConfig()

	for _, stmt := range statements(data) {
		if m := knifeAssignRegex.FindStringSubmatch(stmt); m != nil {
			if m[1] == "solo_path" {
				value := strings.TrimSpace(m[2])
				if !singleLiteralRegex.MatchString(value) {
					return cfg, errors.Newf("knife[:solo_path] must be a string literal, got %q", m[2])
				}
				cfg.SoloPath = stringLiterals(value)[0]
			}
			continue
		}

		m := settingRegex.FindStringSubmatch(stmt)
		if m == nil {
			continue
		}
		key, appendOp, rest := m[1], m[2] != "", m[3]

		switch key {
		case "file_cache_path":
			if values := stringLiterals(rest); len(values) > 0 {
				cfg.FileCachePath = values[0]
			}
		case "cookbook_path":
			values := stringLiterals(rest)
			if appendOp {
				cfg.CookbookPaths = append(cfg.CookbookPaths, values...)
			} else {
				cfg.CookbookPaths = values
			}
		}
	}

	return cfg, nil
}

// statements splits solo.rb into logical statements: comments are dropped and
// array literals spanning several lines are joined into one statement.
func statements(data []byte) []string {
	var (
		stmts   []string
		pending strings.Builder
		depth   int
	)

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(stripComment(scanner.Text()))
		if line == "" {
			continue
		}

		if pending.Len() > 0 {
			pending.WriteByte(' ')
		}
		pending.WriteString(line)
		depth += strings.Count(line, "[") - strings.Count(line, "]")

		// knife[:key] opens and closes a bracket on the same line, so depth
		// only stays positive for genuinely unterminated array literals.
		if depth <= 0 {
			stmts = append(stmts, pending.String())
			pending.Reset()
			depth = 0
		}
	}
	if pending.Len() > 0 {
		stmts = append(stmts, pending.String())
	}
	return stmts
}

// stripComment removes a trailing "# ..." comment that is not inside a string.
func stripComment(line string) string {
	var quote rune
	for i, r := range line {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '"' || r == '\'':
			quote = r
		case r == '#':
			return line[:i]
		}
	}
	return line
}

func stringLiterals(s string) []string {
	matches := stringLiteralRegex.FindAllStringSubmatch(s, -1)
	values := make([]string, 0, len(matches))
	for _, m := range matches {
		if m[1] != "" || strings.HasPrefix(m[0], `"`) {
			values = append(values, m[1])
		} else {
			values = append(values, m[2])
		}
	}
	return values
}
