package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/mop/manifest"
	"github.com/chazu/mop/vm"
)

func TestParseValue(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"42", 42},
		{"-7", -7},
		{"2.5", 2.5},
		{"1e3", 1000.0},
		{"true", true},
		{"false", false},
		{"null", nil},
		{"hello", "hello"},
		{"v1.2", "v1.2"},
	}
	for _, tt := range tests {
		if got := parseValue(tt.in); got != tt.want {
			t.Errorf("parseValue(%q) = %#v, want %#v", tt.in, got, tt.want)
		}
	}
}

func TestSplitTarget(t *testing.T) {
	class, method, err := splitTarget("zoo.Dog.speak")
	if err != nil {
		t.Fatal(err)
	}
	if class != "zoo.Dog" || method != "speak" {
		t.Errorf("got %q %q", class, method)
	}
	for _, bad := range []string{"speak", ".speak", "zoo.Dog."} {
		if _, _, err := splitTarget(bad); err == nil {
			t.Errorf("splitTarget(%q) should fail", bad)
		}
	}
}

func writeProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"mop.toml": `
[project]
name = "zoo"

[loader]
store = ".mop/classes.db"

[[extension]]
name = "zoo-ext"
version = "0.1.0"
classes = ["zoo.Tricks"]
`,
		"src/zoo/Dog.mop": `
[[field]]
name = "name"
type = "String"
initial = "rex"

[[method]]
name = "speak"
returns = "woof"

[[method]]
name = "count"
static = true
returns = 3
`,
		"src/zoo/Tricks.mop": `
[[method]]
name = "roll"
static = true
params = ["String"]
returns = "rolled"
`,
	}
	for name, text := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func openRuntime(t *testing.T, dir string) *runtime {
	t.Helper()
	m, err := manifest.FindAndLoad(dir)
	if err != nil {
		t.Fatal(err)
	}
	if m == nil {
		t.Fatal("manifest not found")
	}
	rt, err := newRuntime(context.Background(), m, true)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { rt.Close() })
	return rt
}

func TestRuntimeInvoke(t *testing.T) {
	rt := openRuntime(t, writeProject(t))
	ctx := context.Background()

	got, err := rt.Invoke(ctx, "zoo.Dog.speak", nil)
	if err != nil {
		t.Fatal(err)
	}
	if got != "woof" {
		t.Errorf("speak = %v", got)
	}

	got, err = rt.Invoke(ctx, "zoo.Dog.count", nil)
	if err != nil {
		t.Fatal(err)
	}
	if fmt.Sprint(got) != "3" {
		t.Errorf("count = %v", got)
	}

	// Extension methods land on String.
	got, err = rt.registry.Dispatcher().InvokeMethod(ctx, "ball", "roll")
	if err != nil {
		t.Fatal(err)
	}
	if got != "rolled" {
		t.Errorf("roll = %v", got)
	}

	_, err = rt.Invoke(ctx, "zoo.Dog.fly", nil)
	if !errors.Is(err, vm.ErrMissingMethod) {
		t.Errorf("expected missing method, got %v", err)
	}
	_, err = rt.Invoke(ctx, "zoo.Cat.speak", nil)
	if err == nil {
		t.Error("expected an error for an unknown class")
	}
}

func TestRuntimeWarmStartFromStore(t *testing.T) {
	dir := writeProject(t)
	rt := openRuntime(t, dir)
	if _, err := rt.Invoke(context.Background(), "zoo.Dog.speak", nil); err != nil {
		t.Fatal(err)
	}
	rt.Close()

	if err := os.RemoveAll(filepath.Join(dir, "src", "zoo", "Dog.mop")); err != nil {
		t.Fatal(err)
	}
	rt2 := openRuntime(t, dir)
	if rt2.registry.Classes().Lookup("zoo.Dog") == nil {
		t.Fatal("zoo.Dog should be restored from the store")
	}
	got, err := rt2.Invoke(context.Background(), "zoo.Dog.speak", nil)
	if err != nil {
		t.Fatal(err)
	}
	if got != "woof" {
		t.Errorf("speak = %v", got)
	}
}

func TestRuntimeInspect(t *testing.T) {
	rt := openRuntime(t, writeProject(t))
	var buf bytes.Buffer
	if err := rt.Inspect(context.Background(), &buf, "zoo.Dog"); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"class zoo.Dog", "Properties:", "name", "Methods:", "speak"} {
		if !strings.Contains(out, want) {
			t.Errorf("inspect output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintProfile(t *testing.T) {
	rt := openRuntime(t, writeProject(t))
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := rt.Invoke(ctx, "zoo.Dog.speak", nil); err != nil {
			t.Fatal(err)
		}
	}
	var buf bytes.Buffer
	printProfile(&buf, rt.registry.Profiler(), 5)
	if !strings.Contains(buf.String(), "zoo.Dog.speak") {
		t.Errorf("profile output missing speak:\n%s", buf.String())
	}
}

func TestInvokeCommand(t *testing.T) {
	dir := writeProject(t)
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"-C", dir, "invoke", "zoo.Tricks.roll", "ball"})
	t.Cleanup(func() {
		shutdown()
		rt = nil
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(buf.String()); got != `"rolled"` {
		t.Errorf("output = %q", got)
	}
}

func TestLoadManifestWithDotEnv(t *testing.T) {
	dir := writeProject(t)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("MOP_CACHE_MODE=polymorphic\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("MOP_CACHE_MODE") })

	m, err := loadManifest(dir)
	if err != nil {
		t.Fatal(err)
	}
	if m.RegistryOptions().CacheMode != vm.Polymorphic {
		t.Errorf("cache mode = %v, want polymorphic", m.Runtime.CacheMode)
	}
}
