package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/emsm/emsm/internal/config"
)

// OnlineChecker reports whether any world powered by a flavor is online.
// The world registry implements it.
type OnlineChecker interface {
	FlavorOnline(f *Flavor) (bool, error)
}

// Registry holds exactly one Flavor per name for a run.
type Registry struct {
	root    string
	conf    *config.File
	client  *http.Client
	log     *zap.Logger
	flavors map[string]*Flavor
	order   []string
	online  OnlineChecker
}

// NewRegistry creates an empty registry. Flavor software lives in
// root/<name>; conf is server.conf.
func NewRegistry(root string, conf *config.File, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		root:    root,
		conf:    conf,
		client:  &http.Client{Timeout: 15 * time.Minute},
		log:     log,
		flavors: make(map[string]*Flavor),
	}
}

// SetHTTPClient replaces the client used for downloads by flavors
// registered afterwards.
func (r *Registry) SetHTTPClient(c *http.Client) {
	r.client = c
}

// SetOnlineChecker connects the registry to the worlds using its flavors.
func (r *Registry) SetOnlineChecker(c OnlineChecker) {
	r.online = c
}

// Register adds a flavor built from def.
func (r *Registry) Register(def Definition) (*Flavor, error) {
	if _, ok := r.flavors[def.Name]; ok {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateFlavor, def.Name)
	}
	f, err := newFlavor(def, filepath.Join(r.root, def.Name), r.conf.Section(def.Name), r.client, r.log)
	if err != nil {
		return nil, err
	}
	r.flavors[def.Name] = f
	r.order = append(r.order, def.Name)
	return f, nil
}

// RegisterBuiltin registers every flavor of Builtin.
func (r *Registry) RegisterBuiltin() error {
	for _, def := range Builtin() {
		if _, err := r.Register(def); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the named flavor.
func (r *Registry) Get(name string) (*Flavor, error) {
	f, ok := r.flavors[name]
	if !ok {
		return nil, &LookupError{Name: name}
	}
	return f, nil
}

// All returns every flavor in registration order.
func (r *Registry) All() []*Flavor {
	out := make([]*Flavor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.flavors[name])
	}
	return out
}

// Names returns the flavor names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Selected returns all flavors when all is set, otherwise exactly the
// named ones. An unknown name fails the whole selection.
func (r *Registry) Selected(names []string, all bool) ([]*Flavor, error) {
	if all {
		return r.All(), nil
	}
	out := make([]*Flavor, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		f, err := r.Get(name)
		if err != nil {
			return nil, err
		}
		if !seen[name] {
			seen[name] = true
			out = append(out, f)
		}
	}
	return out, nil
}

// IsOnline reports whether a world using f is online.
func (r *Registry) IsOnline(f *Flavor) (bool, error) {
	if r.online == nil {
		return false, nil
	}
	return r.online.FlavorOnline(f)
}

// Reinstall replaces the installed software of f. The previous directory
// is moved aside and restored when the installation fails. Refused with
// ErrFlavorOnline while a world using f runs.
func (r *Registry) Reinstall(ctx context.Context, f *Flavor) error {
	online, err := r.IsOnline(f)
	if err != nil {
		return err
	}
	if online {
		return fmt.Errorf("%w: %s", ErrFlavorOnline, f.Name())
	}

	backup := ""
	if _, err := os.Stat(f.dir); err == nil {
		tmp, err := os.MkdirTemp(r.root, ".reinstall-")
		if err != nil {
			return err
		}
		defer os.RemoveAll(tmp)
		backup = filepath.Join(tmp, "old")
		if err := os.Rename(f.dir, backup); err != nil {
			return fmt.Errorf("moving %s aside: %w", f.dir, err)
		}
	}

	if err := f.Install(ctx); err != nil {
		if backup != "" {
			_ = os.RemoveAll(f.dir)
			if rerr := os.Rename(backup, f.dir); rerr != nil {
				r.log.Error("could not restore server directory", zap.String("server", f.Name()), zap.Error(rerr))
			}
		}
		return err
	}
	return nil
}

// InstallMissing installs every flavor in flavors that is not installed.
func (r *Registry) InstallMissing(ctx context.Context, flavors []*Flavor) error {
	for _, f := range flavors {
		if err := f.Install(ctx); err != nil {
			return err
		}
	}
	return nil
}
