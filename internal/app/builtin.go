package app

import (
	"github.com/emsm/emsm/internal/plugin"
	"github.com/emsm/emsm/internal/plugins/backups"
	"github.com/emsm/emsm/internal/plugins/exec"
	"github.com/emsm/emsm/internal/plugins/guard"
	"github.com/emsm/emsm/internal/plugins/initd"
	"github.com/emsm/emsm/internal/plugins/plugins"
	"github.com/emsm/emsm/internal/plugins/server"
	"github.com/emsm/emsm/internal/plugins/worlds"
)

// Builtin is a plugin loaded without a descriptor file.
type Builtin struct {
	Name  string
	Class plugin.Class
}

// Builtins returns the plugins every instance has.
func Builtins() []Builtin {
	return []Builtin{
		{Name: "worlds", Class: worlds.Class},
		{Name: "server", Class: server.Class},
		{Name: "plugins", Class: plugins.Class},
		{Name: "initd", Class: initd.Class},
		{Name: "guard", Class: guard.Class},
		{Name: "backups", Class: backups.Class},
	}
}

// Classes returns the classes descriptor files can name besides the
// built-in ones.
func Classes() []plugin.Class {
	return []plugin.Class{exec.Class}
}
