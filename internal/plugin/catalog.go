package plugin

import (
	"fmt"
	"sort"
)

// Factory creates a plugin instance. desc is nil for built-in plugins.
type Factory func(h Host, name string, desc *Descriptor) (Plugin, error)

// Class describes a kind of plugin.
type Class struct {
	// ID is the name descriptors use to refer to the class.
	ID string

	// Version is the emsm release the class was written for.
	Version string

	// Description is shown by --long-help (markdown).
	Description string

	InitPriority   int
	FinishPriority int

	// Hidden plugins get no subcommand.
	Hidden bool

	New Factory
}

// Catalog holds the plugin classes compiled into the binary.
type Catalog struct {
	classes map[string]Class
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{classes: make(map[string]Class)}
}

// Register adds a class. IDs are unique.
func (c *Catalog) Register(class Class) error {
	if class.ID == "" || class.New == nil {
		return fmt.Errorf("plugin class %q: id and factory are required", class.ID)
	}
	if _, ok := c.classes[class.ID]; ok {
		return fmt.Errorf("plugin class %q already registered", class.ID)
	}
	c.classes[class.ID] = class
	return nil
}

// Lookup returns the class with the given ID.
func (c *Catalog) Lookup(id string) (Class, bool) {
	class, ok := c.classes[id]
	return class, ok
}

// IDs returns the registered class IDs in sorted order.
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.classes))
	for id := range c.classes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
