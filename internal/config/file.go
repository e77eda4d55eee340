// Package config reads and writes the sectioned configuration files of an
// emsm instance.
//
// Files are TOML documents made of tables of string values:
//
//	[world]
//	stop_timeout = "10"
//	server = "vanilla 1.11"
//
// Non-string scalars are accepted on read and kept as their text, so the
// typed accessors of Section are the only place values are interpreted.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// File is one configuration file.
type File struct {
	path     string
	epilog   string
	sections map[string]*Section
}

// NewFile creates an empty file bound to path. The epilog is written as a
// comment block at the top of the file.
func NewFile(path, epilog string) *File {
	return &File{
		path:     path,
		epilog:   epilog,
		sections: make(map[string]*Section),
	}
}

// Path returns the location of the file.
func (f *File) Path() string {
	return f.path
}

// Section returns the named section, creating it when missing.
func (f *File) Section(name string) *Section {
	s, ok := f.sections[name]
	if !ok {
		s = newSection(name)
		f.sections[name] = s
	}
	return s
}

// HasSection reports whether the named section exists.
func (f *File) HasSection(name string) bool {
	_, ok := f.sections[name]
	return ok
}

// RemoveSection deletes the named section. Reports whether it existed.
func (f *File) RemoveSection(name string) bool {
	_, ok := f.sections[name]
	delete(f.sections, name)
	return ok
}

// Sections returns the section names in sorted order.
func (f *File) Sections() []string {
	names := make([]string, 0, len(f.sections))
	for name := range f.sections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Read merges the file content into the current sections. Values read
// override defaults already present. A missing file is not an error.
func (f *File) Read() error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("reading %s: %w", f.path, err)
	}

	var doc map[string]interface{}
	if _, err := toml.Decode(string(data), &doc); err != nil {
		return fmt.Errorf("parsing %s: %w", f.path, err)
	}

	for name, raw := range doc {
		table, ok := raw.(map[string]interface{})
		if !ok {
			return fmt.Errorf("parsing %s: key %q is outside of a section", f.path, name)
		}
		sec := f.Section(name)
		for key, v := range table {
			s, err := scalarString(v)
			if err != nil {
				return fmt.Errorf("parsing %s: [%s] %s: %w", f.path, name, key, err)
			}
			sec.Set(key, s)
		}
	}
	return nil
}

func scalarString(v interface{}) (string, error) {
	switch v := v.(type) {
	case string:
		return v, nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(v), nil
	default:
		return "", fmt.Errorf("unsupported value type %T", v)
	}
}

// Write stores all sections at Path, preceded by the epilog.
func (f *File) Write() error {
	var buf bytes.Buffer
	if f.epilog != "" {
		for _, line := range strings.Split(f.epilog, "\n") {
			if line == "" {
				buf.WriteString("#\n")
				continue
			}
			buf.WriteString("# " + line + "\n")
		}
		buf.WriteString("\n")
	}

	doc := make(map[string]map[string]string, len(f.sections))
	for name, sec := range f.sections {
		doc[name] = sec.values
	}
	if err := toml.NewEncoder(&buf).Encode(doc); err != nil {
		return fmt.Errorf("encoding %s: %w", f.path, err)
	}

	if err := os.WriteFile(f.path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("writing %s: %w", f.path, err)
	}
	return nil
}

// Remove deletes the file. A file that is already gone is not an error.
func (f *File) Remove() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
