// Package metadata renders the userscript metadata block that leads every
// built artifact.
package metadata

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// HeaderStart opens the metadata block.
	HeaderStart = "// ==UserScript=="
	// HeaderEnd closes the metadata block. Reload payloads strip everything up to it.
	HeaderEnd = "// ==/UserScript=="

	keyWidth = 13
)

// ErrMissingName is returned when the record has no @name.
var ErrMissingName = errors.New("metadata.name is required")

// Metadata is the record a userscript manager reads from the header.
type Metadata struct {
	Name        string   `mapstructure:"name" yaml:"name"`
	Namespace   string   `mapstructure:"namespace" yaml:"namespace,omitempty"`
	Version     string   `mapstructure:"version" yaml:"version,omitempty"`
	Description string   `mapstructure:"description" yaml:"description,omitempty"`
	Author      string   `mapstructure:"author" yaml:"author,omitempty"`
	Homepage    string   `mapstructure:"homepage" yaml:"homepage,omitempty"`
	Icon        string   `mapstructure:"icon" yaml:"icon,omitempty"`
	RunAt       string   `mapstructure:"run_at" yaml:"run_at,omitempty"`
	NoFrames    bool     `mapstructure:"noframes" yaml:"noframes,omitempty"`
	Match       []string `mapstructure:"match" yaml:"match,omitempty"`
	Include     []string `mapstructure:"include" yaml:"include,omitempty"`
	Exclude     []string `mapstructure:"exclude" yaml:"exclude,omitempty"`
	Grant       []string `mapstructure:"grant" yaml:"grant,omitempty"`
	Connect     []string `mapstructure:"connect" yaml:"connect,omitempty"`
	Require     []string `mapstructure:"require" yaml:"require,omitempty"`
}

// Validate checks the fields every script manager insists on.
func (m Metadata) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return ErrMissingName
	}
	for _, v := range m.all() {
		if strings.ContainsAny(v.value, "\r\n") {
			return fmt.Errorf("metadata.%s must be a single line", v.key)
		}
	}
	return nil
}

type entry struct {
	key   string
	value string
}

// all lists the entries in the order managers conventionally show them.
func (m Metadata) all() []entry {
	var out []entry
	add := func(key, value string) {
		if value != "" {
			out = append(out, entry{key, value})
		}
	}
	addAll := func(key string, values []string) {
		for _, v := range values {
			add(key, v)
		}
	}

	add("name", m.Name)
	add("namespace", m.Namespace)
	add("version", m.Version)
	add("description", m.Description)
	add("author", m.Author)
	add("homepage", m.Homepage)
	add("icon", m.Icon)
	addAll("match", m.Match)
	addAll("include", m.Include)
	addAll("exclude", m.Exclude)
	addAll("require", m.Require)
	addAll("connect", m.Connect)
	addAll("grant", m.Grant)
	add("run-at", m.RunAt)
	if m.NoFrames {
		out = append(out, entry{key: "noframes"})
	}
	return out
}

// Generate renders the metadata block, terminated by a newline.
func Generate(m Metadata) (string, error) {
	if err := m.Validate(); err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(HeaderStart)
	b.WriteByte('\n')
	for _, e := range m.all() {
		if e.value == "" {
			fmt.Fprintf(&b, "// @%s\n", e.key)
			continue
		}
		fmt.Fprintf(&b, "// %-*s %s\n", keyWidth, "@"+e.key, e.value)
	}
	b.WriteString(HeaderEnd)
	b.WriteByte('\n')
	return b.String(), nil
}
