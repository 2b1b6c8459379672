package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/zjrosen/modreg/internal/log"
)

// SaveSetting sets the dotted key (for example "refresh.mode") to value in
// the config file, creating the file and any intermediate mappings as
// needed. Comments and formatting elsewhere in the file are preserved by
// editing the yaml.Node tree.
func SaveSetting(configPath, key string, value any) error {
	keys := strings.Split(key, ".")
	for _, k := range keys {
		if k == "" {
			return fmt.Errorf("invalid config key %q", key)
		}
	}

	var valueNode yaml.Node
	if err := valueNode.Encode(value); err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}

	doc, err := readDocument(configPath)
	if err != nil {
		return err
	}
	if err := setPath(doc.Content[0], keys, &valueNode); err != nil {
		return fmt.Errorf("setting %s: %w", key, err)
	}
	if err := writeDocument(configPath, doc); err != nil {
		return err
	}
	log.Info(log.CatConfig, "Saved config setting", "path", configPath, "key", key)
	return nil
}

// SaveKinds replaces the scopes.kinds list.
func SaveKinds(configPath string, kinds []string) error {
	if err := ValidateScopes(ScopesConfig{Kinds: kinds}); err != nil {
		return err
	}
	return SaveSetting(configPath, "scopes.kinds", kinds)
}

// readDocument parses configPath into a document whose root is a mapping.
// A missing or empty file yields an empty document.
func readDocument(configPath string) (*yaml.Node, error) {
	data, err := os.ReadFile(configPath) //nolint:gosec // G304: operator config path
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var doc yaml.Node
	if len(bytes.TrimSpace(data)) > 0 {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}
	if doc.Kind == 0 {
		doc = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode}}}
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, fmt.Errorf("parsing config: top level must be a mapping")
	}
	return &doc, nil
}

// setPath walks (and creates) nested mappings for keys and stores value at
// the last key.
func setPath(node *yaml.Node, keys []string, value *yaml.Node) error {
	for i, key := range keys {
		last := i == len(keys)-1

		var child *yaml.Node
		for j := 0; j < len(node.Content)-1; j += 2 {
			if node.Content[j].Value == key {
				child = node.Content[j+1]
				if last {
					node.Content[j+1] = value
					return nil
				}
				break
			}
		}

		if child == nil {
			if last {
				node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: key}, value)
				return nil
			}
			child = &yaml.Node{Kind: yaml.MappingNode}
			node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: key}, child)
		}

		// A commented-out section leaves an empty (null) value behind.
		if child.Kind == yaml.ScalarNode && child.Tag == "!!null" {
			child.Kind, child.Tag, child.Value = yaml.MappingNode, "", ""
		}
		if child.Kind != yaml.MappingNode {
			return fmt.Errorf("%s is not a mapping", strings.Join(keys[:i+1], "."))
		}
		node = child
	}
	return nil
}

// writeDocument writes doc atomically (temp file, then rename).
func writeDocument(configPath string, doc *yaml.Node) error {
	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(doc); err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	_ = encoder.Close()

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	temp, err := os.CreateTemp(dir, ".modreg.yaml.tmp.*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tempPath := temp.Name()

	if _, err := temp.Write(buf.Bytes()); err != nil {
		_ = temp.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := temp.Close(); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tempPath, configPath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}

	return nil
}
