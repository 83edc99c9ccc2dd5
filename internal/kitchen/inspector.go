package kitchen

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/hashicorp/go-multierror"
	ignore "github.com/sabhiram/go-gitignore"
)

// IgnoreFile is the kitchen-relative name of the chefignore file.
const IgnoreFile = "chefignore"

// RequiredEntries are the paths every kitchen must contain.
var RequiredEntries = []string{"nodes", "roles", "cookbooks", "data_bags", "solo.rb"}

// Inspector answers questions about a local kitchen directory:
// whether its layout is valid and which paths its chefignore excludes.
type Inspector struct {
	root string
}

// NewInspector returns an Inspector rooted at the given kitchen directory.
func NewInspector(root string) *Inspector {
	return &Inspector{root: root}
}

// Root returns the kitchen directory.
func (i *Inspector) Root() string {
	return i.root
}

// Validate checks that every RequiredEntries path exists. All missing
// entries are reported together so the operator can fix them in one pass.
func (i *Inspector) Validate() error {
	info, err := os.Stat(i.root)
	if err != nil {
		return errors.Wrapf(err, "kitchen %s is not accessible", i.root)
	}
	if !info.IsDir() {
		return errors.Newf("kitchen %s is not a directory", i.root)
	}

	var result *multierror.Error
	for _, entry := range RequiredEntries {
		if _, err := os.Stat(filepath.Join(i.root, entry)); err != nil {
			result = multierror.Append(result, fmt.Errorf("missing %s", entry))
		}
	}
	return result.ErrorOrNil()
}

// IgnorePatterns returns the chefignore patterns in file order, with
// comments and blank lines removed. A kitchen without a chefignore
// has no patterns.
func (i *Inspector) IgnorePatterns() ([]string, error) {
	f, err := os.Open(filepath.Join(i.root, IgnoreFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to open chefignore")
	}
	defer func() { _ = f.Close() }()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read chefignore")
	}
	return patterns, nil
}

// Excluded reports whether a kitchen-relative path would be left out of
// synchronization by the given exclusion patterns. It is used to warn when
// files the remote run depends on (such as the node config) will not be
// transferred.
func Excluded(relPath string, patterns []string) bool {
	matcher := ignore.CompileIgnoreLines(patterns...)
	return matcher.MatchesPath(filepath.ToSlash(relPath))
}
