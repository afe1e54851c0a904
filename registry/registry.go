package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/log"
	"gopkg.in/yaml.v3"

	"github.com/cryspen/mach-test/types"
)

// TestsKey is the only top-level key of the registry document that is read.
const TestsKey = "tests"

// Registry holds the test registry loaded from a declarative config file
type Registry struct {
	tests *types.TestRegistry
}

// Config contains registry configuration
type Config struct {
	Log        log.Logger
	ConfigFile string // JSON (or YAML) document of shape {"tests": {<algorithm>: [<test-file>, ...]}}
}

// NewRegistry creates a new registry instance
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.ConfigFile == "" {
		return nil, errors.New("registry config file is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}

	tests, err := loadConfig(cfg.Log, cfg.ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load registry: %w", err)
	}

	cfg.Log.Debug("Registry loaded", "algorithms", len(tests.Algorithms), "tests", tests.Len())

	return &Registry{tests: tests}, nil
}

// Tests returns the loaded registry
func (r *Registry) Tests() *types.TestRegistry {
	return r.tests
}

func loadConfig(logger log.Logger, path string) (*types.TestRegistry, error) {
	logger.Debug("Reading registry file", "path", path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var reg *types.TestRegistry
	if strings.EqualFold(filepath.Ext(path), ".json") {
		reg, err = ParseJSON(data)
	} else {
		reg, err = Parse(data)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return reg, nil
}

// Parse decodes a JSON or YAML registry document. Algorithms and tests keep
// their declaration order.
func Parse(data []byte) (*types.TestRegistry, error) {
	if json.Valid(data) {
		return ParseJSON(data)
	}
	return parseYAML(data)
}

// ParseJSON decodes a JSON registry document token by token so that object
// keys keep their order.
func ParseJSON(data []byte) (*types.TestRegistry, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty registry document")
		}
		return nil, err
	}
	if tok != json.Delim('{') {
		return nil, fmt.Errorf("offset %d: registry root must be an object", dec.InputOffset())
	}

	var reg *types.TestRegistry
	for dec.More() {
		key, err := objectKey(dec)
		if err != nil {
			return nil, err
		}
		if key != TestsKey {
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil, err
			}
			continue
		}
		if reg != nil {
			return nil, fmt.Errorf("offset %d: duplicate %q key", dec.InputOffset(), TestsKey)
		}
		if reg, err = parseJSONTests(dec); err != nil {
			return nil, err
		}
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("offset %d: unexpected data after the registry object", dec.InputOffset())
	}
	if reg == nil {
		return nil, fmt.Errorf("missing %q key", TestsKey)
	}
	return reg, nil
}

func parseJSONTests(dec *json.Decoder) (*types.TestRegistry, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if tok != json.Delim('{') {
		return nil, fmt.Errorf("offset %d: %q must map algorithm names to test lists", dec.InputOffset(), TestsKey)
	}

	reg := &types.TestRegistry{}
	seenAlgorithms := make(map[string]struct{})
	for dec.More() {
		name, err := objectKey(dec)
		if err != nil {
			return nil, err
		}
		if name == "" {
			return nil, fmt.Errorf("offset %d: algorithm name must be a non-empty string", dec.InputOffset())
		}
		if _, dup := seenAlgorithms[name]; dup {
			return nil, fmt.Errorf("offset %d: duplicate algorithm %q", dec.InputOffset(), name)
		}
		seenAlgorithms[name] = struct{}{}

		tests, err := parseJSONTestList(dec, name)
		if err != nil {
			return nil, err
		}
		reg.Algorithms = append(reg.Algorithms, types.Algorithm{Name: name, Tests: tests})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return reg, nil
}

func parseJSONTestList(dec *json.Decoder, algorithm string) ([]string, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if tok == nil {
		return nil, nil
	}
	if tok != json.Delim('[') {
		return nil, fmt.Errorf("offset %d: tests of algorithm %q must be a list", dec.InputOffset(), algorithm)
	}

	var tests []string
	seen := make(map[string]struct{})
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		test, ok := tok.(string)
		if !ok || test == "" {
			return nil, fmt.Errorf("offset %d: test of algorithm %q must be a non-empty string", dec.InputOffset(), algorithm)
		}
		if _, dup := seen[test]; dup {
			return nil, fmt.Errorf("offset %d: duplicate test %q in algorithm %q", dec.InputOffset(), test, algorithm)
		}
		seen[test] = struct{}{}
		tests = append(tests, test)
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	if tests == nil {
		tests = []string{}
	}
	return tests, nil
}

// objectKey reads the next key of the object being decoded.
func objectKey(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", err
	}
	key, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("offset %d: expected an object key", dec.InputOffset())
	}
	return key, nil
}

func parseYAML(data []byte) (*types.TestRegistry, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, errors.New("empty registry document")
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: registry root must be an object", root.Line)
	}

	testsNode := lookup(root, TestsKey)
	if testsNode == nil {
		return nil, fmt.Errorf("missing %q key", TestsKey)
	}
	if testsNode.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: %q must map algorithm names to test lists", testsNode.Line, TestsKey)
	}

	reg := &types.TestRegistry{}
	seenAlgorithms := make(map[string]struct{})
	for i := 0; i+1 < len(testsNode.Content); i += 2 {
		keyNode, valueNode := testsNode.Content[i], testsNode.Content[i+1]
		if keyNode.Kind != yaml.ScalarNode || keyNode.Value == "" {
			return nil, fmt.Errorf("line %d: algorithm name must be a non-empty string", keyNode.Line)
		}
		name := keyNode.Value
		if _, dup := seenAlgorithms[name]; dup {
			return nil, fmt.Errorf("line %d: duplicate algorithm %q", keyNode.Line, name)
		}
		seenAlgorithms[name] = struct{}{}

		tests, err := parseTests(name, valueNode)
		if err != nil {
			return nil, err
		}
		reg.Algorithms = append(reg.Algorithms, types.Algorithm{Name: name, Tests: tests})
	}
	return reg, nil
}

func parseTests(algorithm string, node *yaml.Node) ([]string, error) {
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		return nil, nil
	}
	if node.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("line %d: tests of algorithm %q must be a list", node.Line, algorithm)
	}

	tests := make([]string, 0, len(node.Content))
	seen := make(map[string]struct{}, len(node.Content))
	for _, item := range node.Content {
		if item.Kind != yaml.ScalarNode || item.Value == "" {
			return nil, fmt.Errorf("line %d: test of algorithm %q must be a non-empty string", item.Line, algorithm)
		}
		if _, dup := seen[item.Value]; dup {
			return nil, fmt.Errorf("line %d: duplicate test %q in algorithm %q", item.Line, item.Value, algorithm)
		}
		seen[item.Value] = struct{}{}
		tests = append(tests, item.Value)
	}
	return tests, nil
}

func lookup(mapping *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return mapping.Content[i+1]
		}
	}
	return nil
}
