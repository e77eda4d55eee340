package plugin

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// DescriptorExt is the extension of plugin descriptor files.
const DescriptorExt = ".toml"

// Descriptor is a plugin file in a plugin directory. It binds the file
// name (the plugin name) to a compiled-in class:
//
//	plugin = "exec"
//	version = "5.0.0"
//	description = "Renders the world map."
//
//	[options]
//	run = "/usr/local/bin/render-map"
type Descriptor struct {
	Path string `toml:"-"`
	Name string `toml:"-"`

	// Plugin is the class ID.
	Plugin string `toml:"plugin"`

	// Version overrides the class version in the compatibility check.
	Version string `toml:"version"`

	Description string `toml:"description"`

	// InitPriority and FinishPriority override the class priorities.
	InitPriority   *int `toml:"init_priority"`
	FinishPriority *int `toml:"finish_priority"`

	Hidden *bool `toml:"hidden"`

	// Options are handed to the class factory.
	Options map[string]string `toml:"options"`
}

// IsDescriptorFile reports whether the directory entry name looks like a
// plugin descriptor: visible, not private (leading underscore), with the
// descriptor extension as its only dot.
func IsDescriptorFile(name string) bool {
	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
		return false
	}
	if !strings.HasSuffix(name, DescriptorExt) {
		return false
	}
	return strings.Count(name, ".") == 1 && len(name) > len(DescriptorExt)
}

// ReadDescriptor parses the descriptor at path. Structural problems are
// reported as *ImplementationError.
func ReadDescriptor(path string) (*Descriptor, error) {
	name := strings.TrimSuffix(filepath.Base(path), DescriptorExt)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ImplementationError{Plugin: name, Reason: "unreadable descriptor", Err: err}
	}
	var desc Descriptor
	md, err := toml.Decode(string(data), &desc)
	if err != nil {
		return nil, &ImplementationError{Plugin: name, Reason: "invalid descriptor", Err: err}
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, &ImplementationError{Plugin: name, Reason: "unknown key " + undecoded[0].String()}
	}
	if strings.TrimSpace(desc.Plugin) == "" {
		return nil, &ImplementationError{Plugin: name, Reason: `the "plugin" key is not defined`}
	}
	desc.Path = path
	desc.Name = name
	desc.Plugin = strings.TrimSpace(desc.Plugin)
	return &desc, nil
}

// Option returns an option value.
func (d *Descriptor) Option(key string) string {
	if d == nil {
		return ""
	}
	return d.Options[key]
}
