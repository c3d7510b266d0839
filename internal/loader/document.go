package loader

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/winchesHe/devproxy/internal/rules"
)

// Document is one parsed configuration file.
type Document struct {
	Path string
	// Includes are absolute paths of the files this document pulls in, in
	// declaration order.
	Includes []string
	// Proxy holds the document's own devServer.proxy rules, nil when the
	// document does not define them.
	Proxy *rules.RouteConfig
}

// parseDocument reads and parses the file at path. The file may be YAML or
// JSON.
func parseDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		// Directories and unreadable files are not usable config files either.
		return nil, fmt.Errorf("%w: %s: %v", ErrConfigNotFound, path, err)
	}

	doc := &Document{Path: path}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConfigMalformed, path, err)
	}
	if root.Kind == 0 || len(root.Content) == 0 {
		// Empty file.
		return doc, nil
	}
	top := root.Content[0]
	if top.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: %s: top level must be a mapping", ErrConfigMalformed, path)
	}

	if node := mappingValue(top, "include"); node != nil {
		includes, err := decodeIncludes(node)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrConfigMalformed, path, err)
		}
		dir := filepath.Dir(path)
		for _, inc := range includes {
			if !filepath.IsAbs(inc) {
				inc = filepath.Join(dir, inc)
			}
			doc.Includes = append(doc.Includes, filepath.Clean(inc))
		}
	}

	devServer := mappingValue(top, "devServer")
	if devServer == nil {
		return doc, nil
	}
	if devServer.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: %s: devServer must be a mapping", ErrConfigMalformed, path)
	}
	proxy := mappingValue(devServer, "proxy")
	if proxy == nil {
		return doc, nil
	}
	if proxy.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: %s: devServer.proxy must be a mapping", ErrConfigMalformed, path)
	}

	doc.Proxy = rules.NewRouteConfig()
	for i := 0; i+1 < len(proxy.Content); i += 2 {
		key, value := proxy.Content[i], proxy.Content[i+1]
		options, err := decodeOptions(value)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: proxy %q: %v", ErrConfigMalformed, path, key.Value, err)
		}
		doc.Proxy.Set(key.Value, options)
	}
	return doc, nil
}

// decodeOptions decodes a rule's option bag. A bare string is shorthand for
// {target: <string>}.
func decodeOptions(node *yaml.Node) (map[string]any, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		return map[string]any{"target": node.Value}, nil
	case yaml.MappingNode:
		options := make(map[string]any)
		if err := node.Decode(&options); err != nil {
			return nil, err
		}
		return options, nil
	}
	return nil, fmt.Errorf("options must be a mapping or a target string")
}

func decodeIncludes(node *yaml.Node) ([]string, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		return []string{node.Value}, nil
	case yaml.SequenceNode:
		var out []string
		if err := node.Decode(&out); err != nil {
			return nil, err
		}
		return out, nil
	}
	return nil, fmt.Errorf("include must be a path or a list of paths")
}

func mappingValue(node *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}
