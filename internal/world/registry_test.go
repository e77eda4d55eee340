package world

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/emsm/emsm/internal/config"
	"github.com/emsm/emsm/internal/eventbus"
	"github.com/emsm/emsm/internal/exitcode"
	"github.com/emsm/emsm/internal/server"
)

func TestLoadCreatesDirectories(t *testing.T) {
	fx := newFixture(t, "alpha", "beta")
	for _, w := range fx.reg.All() {
		if !w.IsInstalled() {
			t.Errorf("%s: directory not created", w.Name())
		}
		if w.Directory() != filepath.Join(fx.root, "worlds", w.Name()) {
			t.Errorf("%s: directory = %s", w.Name(), w.Directory())
		}
	}
	if names := fx.reg.Names(); !reflect.DeepEqual(names, []string{"alpha", "beta"}) {
		t.Errorf("Names = %v", names)
	}
}

func TestLoadRejectsInvalidWorlds(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
		want  error
	}{
		{"unknown server", "server", "craftbukkit", server.ErrUnknownFlavor},
		{"negative timeout", "stop_timeout", "-1", nil},
		{"non-numeric delay", "stop_delay", "soon", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			configs, _ := config.NewManager(filepath.Join(root, "conf"), nil)
			configs.AddWorld("alpha").Section("world").Set("server", "test")
			configs.World("alpha").Section("world").Set(tt.key, tt.value)
			flavors := server.NewRegistry(filepath.Join(root, "server"), configs.Server(), nil)
			_, _ = flavors.Register(testDefinition())

			reg := NewRegistry(RegistryConfig{Root: filepath.Join(root, "worlds"), Configs: configs, Flavors: flavors})
			err := reg.Load()
			if err == nil {
				t.Fatal("Load succeeded")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("Load = %v, want %v", err, tt.want)
			}
		})
	}
}

// One unknown name fails the whole selection.
func TestSelected(t *testing.T) {
	fx := newFixture(t, "alpha", "beta", "gamma")

	got, err := fx.reg.Selected([]string{"alpha", "ghost"}, false)
	if err == nil || got != nil {
		t.Fatalf("Selected = (%v, %v), want lookup error and no worlds", got, err)
	}
	if !errors.Is(err, ErrUnknownWorld) || exitcode.Code(err) != exitcode.ErrWorldNotFound {
		t.Errorf("error = %v (exit %d)", err, exitcode.Code(err))
	}

	got, err = fx.reg.Selected([]string{"gamma", "alpha", "gamma"}, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Name() != "gamma" || got[1].Name() != "alpha" {
		t.Errorf("Selected = %v", names(got))
	}

	all, _ := fx.reg.Selected([]string{"ghost"}, true)
	if len(all) != 3 {
		t.Errorf("Selected(all) = %v", names(all))
	}
}

func TestFilterAndOnline(t *testing.T) {
	fx := newFixture(t, "alpha", "beta", "gamma")
	ctx := context.Background()
	for _, name := range []string{"alpha", "gamma"} {
		if err := fx.world(t, name).Start(ctx, StartOptions{}); err != nil {
			t.Fatal(err)
		}
	}

	online, err := fx.reg.Online()
	if err != nil {
		t.Fatal(err)
	}
	if got := names(online); !reflect.DeepEqual(got, []string{"alpha", "gamma"}) {
		t.Errorf("Online = %v", got)
	}

	proxy, _ := fx.flavors.Get("proxy")
	if err := fx.world(t, "beta").SetServer(proxy); err != nil {
		t.Fatal(err)
	}
	if got := names(fx.reg.UsingServer(proxy)); !reflect.DeepEqual(got, []string{"beta"}) {
		t.Errorf("UsingServer(proxy) = %v", got)
	}
}

func TestFlavorOnlineBlocksReinstall(t *testing.T) {
	fx := newFixture(t, "alpha")
	test, _ := fx.flavors.Get("test")
	proxy, _ := fx.flavors.Get("proxy")
	ctx := context.Background()

	if online, _ := fx.reg.FlavorOnline(test); online {
		t.Fatal("flavor online before start")
	}
	if err := fx.world(t, "alpha").Start(ctx, StartOptions{}); err != nil {
		t.Fatal(err)
	}
	if online, _ := fx.reg.FlavorOnline(test); !online {
		t.Error("flavor offline while alpha runs")
	}
	if online, _ := fx.reg.FlavorOnline(proxy); online {
		t.Error("unused flavor reported online")
	}
	if err := fx.flavors.Reinstall(ctx, test); !errors.Is(err, server.ErrFlavorOnline) {
		t.Errorf("Reinstall = %v, want ErrFlavorOnline", err)
	}
}

func names(ws []*World) []string {
	out := make([]string, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.Name())
	}
	return out
}

func TestRegistrySubscribesOnce(t *testing.T) {
	fx := newFixture(t, "alpha")
	before := fx.bus.SubscriberCount(eventbus.WorldUninstalled)
	fx.bus.Connect(eventbus.WorldUninstalled, fx.reg)
	if got := fx.bus.SubscriberCount(eventbus.WorldUninstalled); got != before {
		t.Errorf("subscribers = %d after reconnecting the registry, want %d", got, before)
	}
}
