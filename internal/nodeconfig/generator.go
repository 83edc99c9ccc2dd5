// Package nodeconfig produces the node configuration document that chef-solo
// reads through its -j flag.
//
// A kitchen usually carries one document per host under nodes/. The
// generator resolves which document the run uses and, when none exists yet,
// writes one:
//   - An explicit path (the cook command's JSON argument) or nodes/<host>.json
//     is used as-is once it parses. Node files are hand-edited, so comments
//     and trailing commas are tolerated via github.com/tidwall/jsonc.
//   - If only nodes/<host>.yml exists, it is converted to JSON with
//     gopkg.in/yaml.v3 so operators can keep node attributes in YAML.
//   - Otherwise a document is written from the --run-list and
//     --json-attributes flags.
package nodeconfig

import (
	"context"
	"encoding/json"
	"os"
	"path"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/tidwall/jsonc"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/mmr-tortoise/solo-cook/internal/model"
)

// NodesDir is the kitchen-relative directory holding node documents.
const NodesDir = "nodes"

// Generator resolves or writes the node configuration document for a target.
type Generator struct {
	// Root is the local kitchen directory.
	Root string

	// RunList seeds the run_list of a generated document.
	RunList []string

	// Attributes is a JSON object merged into a generated document.
	// run_list always wins over an attribute of the same name.
	Attributes string

	Logger *zap.Logger
}

// DefaultPath returns the kitchen-relative node document path for host.
func DefaultPath(host string) string {
	return path.Join(NodesDir, host+".json")
}

// Generate ensures the node document exists and returns its path relative
// to the kitchen, in slash form, ready to be joined onto the remote path.
//
// jsonPath is the operator-supplied document path; an empty value selects
// DefaultPath for the target host.
func (g *Generator) Generate(ctx context.Context, target model.Target, jsonPath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	rel := jsonPath
	if rel == "" {
		rel = DefaultPath(target.Host)
	}
	rel = filepath.ToSlash(filepath.Clean(rel))
	abs := filepath.Join(g.Root, filepath.FromSlash(rel))

	// Step 1: An existing document is validated and left untouched.
	if data, err := os.ReadFile(abs); err == nil {
		if _, err := parseDocument(data); err != nil {
			return "", errors.Wrapf(err, "node config %s is not valid JSON", rel)
		}
		g.logger().Debug("Skipping node config generation", zap.String("path", rel))
		return rel, nil
	} else if !os.IsNotExist(err) {
		return "", errors.Wrapf(err, "failed to read node config %s", rel)
	}

	// Step 2: A YAML sibling is converted.
	yamlPath := yamlSibling(abs)
	if data, err := os.ReadFile(yamlPath); err == nil {
		doc, err := fromYAML(data)
		if err != nil {
			return "", errors.Wrapf(err, "failed to convert %s", filepath.Base(yamlPath))
		}
		g.logger().Info("Converting node config", zap.String("from", filepath.Base(yamlPath)), zap.String("to", rel))
		return rel, writeDocument(abs, doc)
	}

	// Step 3: Write a fresh document from the run list and attributes.
	doc, err := g.defaultDocument()
	if err != nil {
		return "", err
	}
	g.logger().Info("Generating node config", zap.String("path", rel))
	return rel, writeDocument(abs, doc)
}

func (g *Generator) defaultDocument() (map[string]any, error) {
	doc := map[string]any{}
	if g.Attributes != "" {
		parsed, err := parseDocument([]byte(g.Attributes))
		if err != nil {
			return nil, errors.Wrap(err, "json attributes must be a JSON object")
		}
		doc = parsed
	}

	runList := g.RunList
	if runList == nil {
		runList = []string{}
	}
	doc["run_list"] = runList
	return doc, nil
}

func (g *Generator) logger() *zap.Logger {
	if g.Logger == nil {
		return zap.NewNop()
	}
	return g.Logger
}

// parseDocument decodes a JSON object, accepting JSONC comments and
// trailing commas.
func parseDocument(data []byte) (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal(jsonc.ToJSON(data), &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, errors.New("document is not a JSON object")
	}
	return doc, nil
}

// fromYAML decodes a YAML mapping into a JSON-compatible document.
func fromYAML(data []byte) (map[string]any, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, errors.New("document is not a YAML mapping")
	}
	return doc, nil
}

func writeDocument(abs string, doc map[string]any) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode node config")
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return errors.Wrap(err, "failed to create nodes directory")
	}
	return errors.Wrap(os.WriteFile(abs, append(data, '\n'), 0o644), "failed to write node config")
}

func yamlSibling(jsonPath string) string {
	ext := filepath.Ext(jsonPath)
	return jsonPath[:len(jsonPath)-len(ext)] + ".yml"
}
