// Package msgcat renders user-facing texts from YAML templates.
//
// Keys are dot paths into the YAML document (errors.not_your_turn). Every leaf is
// compiled when the catalog loads, so a broken template stops the process at startup
// instead of surfacing on the first error a player hits.
package msgcat

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"text/template"

	yaml "gopkg.in/yaml.v3"
)

const defaultFile = "messages.en.yaml"

//go:embed messages.en.yaml
var defaultFiles embed.FS

type Catalog struct {
	mu        sync.RWMutex
	templates map[string]*template.Template
}

// New loads the embedded texts, then every *.yaml / *.yml file in overrideDir.
// An override replaces single keys; the same key in two override files is an error.
func New(overrideDir string) (*Catalog, error) {
	c := &Catalog{templates: make(map[string]*template.Template)}
	raw, err := fs.ReadFile(defaultFiles, defaultFile)
	if err != nil {
		return nil, fmt.Errorf("read embedded messages: %w", err)
	}
	texts, err := decode(raw)
	if err != nil {
		return nil, fmt.Errorf("parse embedded messages: %w", err)
	}
	if err := c.compile(defaultFile, texts); err != nil {
		return nil, err
	}
	if dir := strings.TrimSpace(overrideDir); dir != "" {
		if err := c.applyDir(dir); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Catalog) applyDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read messages dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml":
			if !e.IsDir() {
				names = append(names, e.Name())
			}
		}
	}
	sort.Strings(names)

	owner := make(map[string]string)
	for _, name := range names {
		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		texts, err := decode(raw)
		if err != nil {
			return fmt.Errorf("parse %s: %w", name, err)
		}
		for key := range texts {
			if prev, ok := owner[key]; ok {
				return fmt.Errorf("duplicate override key %q in %s and %s", key, prev, name)
			}
			owner[key] = name
		}
		if err := c.compile(name, texts); err != nil {
			return err
		}
	}
	return nil
}

// compile parses all texts before installing any of them.
func (c *Catalog) compile(source string, texts map[string]string) error {
	parsed := make(map[string]*template.Template, len(texts))
	for key, text := range texts {
		t, err := template.New(key).Option("missingkey=error").Parse(text)
		if err != nil {
			return fmt.Errorf("compile %s in %s: %w", key, source, err)
		}
		parsed[key] = t
	}
	c.mu.Lock()
	for key, t := range parsed {
		c.templates[key] = t
	}
	c.mu.Unlock()
	return nil
}

// decode flattens a YAML document of nested mappings into dot keys.
func decode(raw []byte) (map[string]string, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	out := make(map[string]string)
	if len(doc.Content) == 0 {
		return out, nil
	}
	if err := walk(doc.Content[0], "", out); err != nil {
		return nil, err
	}
	return out, nil
}

func walk(n *yaml.Node, prefix string, out map[string]string) error {
	switch n.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			key := n.Content[i].Value
			if prefix != "" {
				key = prefix + "." + key
			}
			if err := walk(n.Content[i+1], key, out); err != nil {
				return err
			}
		}
		return nil
	case yaml.ScalarNode:
		if prefix == "" {
			return fmt.Errorf("line %d: text without key", n.Line)
		}
		if n.Tag == "!!null" {
			return nil
		}
		out[prefix] = n.Value
		return nil
	default:
		return fmt.Errorf("line %d: %s must be a mapping or a string", n.Line, prefix)
	}
}

// Render executes the template under key. Unknown keys and missing data fields are errors.
func (c *Catalog) Render(key string, data any) (string, error) {
	c.mu.RLock()
	t := c.templates[strings.TrimSpace(key)]
	c.mu.RUnlock()
	if t == nil {
		return "", fmt.Errorf("template not found: %s", key)
	}
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}

// Text is Render with a fallback for callers that must always produce a message.
func (c *Catalog) Text(key string, data any, fallback string) string {
	if c == nil { return fallback }
	s, err := c.Render(key, data)
	if err != nil { return fallback }
	return s
}

// Missing은 템플릿이 없는 키 목록을 반환한다. 기동 시 누락 검사용.
func (c *Catalog) Missing(keys ...string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var missing []string
	for _, k := range keys {
		if c.templates[k] == nil {
			missing = append(missing, k)
		}
	}
	return missing
}
