package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// SetOption writes value under section.option in the YAML file at path,
// creating the file, the section or the option as needed. An empty section
// addresses a top-level key. Comments and the order of other keys are kept.
//
// The edited document must still decode into a Config; unknown keys are
// rejected and the file is left untouched.
func SetOption(path, section, option, value string) error {
	if option == "" {
		return fmt.Errorf("option name is required")
	}

	var doc yaml.Node
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return fmt.Errorf("reading config file %q: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parsing config file %q: %w", path, err)
		}
	}

	root := documentRoot(&doc)
	target := root
	if section != "" {
		target = mappingChild(root, section)
	}
	setScalar(target, option, value)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if _, err := decode(buf.Bytes()); err != nil {
		return fmt.Errorf("setting %s: %w", optionName(section, option), err)
	}
	return writeFile(path, buf.Bytes())
}

func optionName(section, option string) string {
	if section == "" {
		return option
	}
	return section + "." + option
}

// documentRoot returns the top-level mapping of doc, creating it if doc is
// empty.
func documentRoot(doc *yaml.Node) *yaml.Node {
	if doc.Kind != yaml.DocumentNode {
		*doc = yaml.Node{Kind: yaml.DocumentNode}
	}
	if len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		doc.Content = []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}
	}
	return doc.Content[0]
}

// lookup returns the value node for key in mapping m, or nil.
func lookup(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

// mappingChild returns the mapping stored under key, replacing a non-mapping
// value.
func mappingChild(m *yaml.Node, key string) *yaml.Node {
	if v := lookup(m, key); v != nil {
		if v.Kind != yaml.MappingNode {
			*v = yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		}
		return v
	}
	v := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	m.Content = append(m.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}, v)
	return v
}

// setScalar sets key to value in mapping m. The tag is left for the decoder
// to infer, so "5" becomes an int and "30s" a duration.
func setScalar(m *yaml.Node, key, value string) {
	if v := lookup(m, key); v != nil {
		comment := v.LineComment
		*v = yaml.Node{Kind: yaml.ScalarNode, Value: value, LineComment: comment}
		return
	}
	m.Content = append(m.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
		&yaml.Node{Kind: yaml.ScalarNode, Value: value},
	)
}

// writeFile replaces path atomically with mode 0600; the file may hold
// credentials settings.
func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replacing config file: %w", err)
	}
	return nil
}
