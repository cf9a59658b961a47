package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/mop/vm"
)

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0o644))
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "zoo"
version = "0.1.0"

[runtime]
cache-mode = "polymorphic"
lenient-introspection = true
log-verbosity = 2

[loader]
source-dirs = ["src", "/opt/shared"]
extension = ".cls"
recompile = true
store = "build/classes.db"
watch = true

[[extension]]
name = "strings"
version = "1.2"
classes = ["acme.StringExtras"]
static-classes = ["acme.StringFactory"]
path = "ext/strings"
`)

	m, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "zoo", m.Project.Name)
	assert.Equal(t, "0.1.0", m.Project.Version)
	assert.Equal(t, "polymorphic", m.Runtime.CacheMode)
	assert.True(t, m.Runtime.LenientIntrospection)
	assert.Equal(t, 2, m.Runtime.LogVerbosity)
	assert.Equal(t, []string{"src", "/opt/shared"}, m.Loader.SourceDirs)
	assert.True(t, m.Loader.Recompile)
	assert.True(t, m.Loader.Watch)

	require.Len(t, m.Extensions, 1)
	ext := m.Extensions[0]
	assert.Equal(t, "strings", ext.Name)
	assert.Equal(t, "1.2", ext.Version)
	assert.Equal(t, []string{"acme.StringExtras"}, ext.Classes)
	assert.Equal(t, []string{"acme.StringFactory"}, ext.StaticClasses)

	abs, err := filepath.Abs(dir)
	require.NoError(t, err)
	assert.Equal(t, abs, m.Dir)

	opts := m.RegistryOptions()
	assert.Equal(t, vm.Polymorphic, opts.CacheMode)
	assert.True(t, opts.LenientIntrospection)

	lo := m.LoaderOptions()
	assert.Equal(t, []string{
		filepath.Join(abs, "src"),
		"/opt/shared",
		filepath.Join(abs, "ext", "strings"),
	}, lo.SourceDirs)
	assert.Equal(t, ".cls", lo.Extension)
	assert.Equal(t, filepath.Join(abs, "build", "classes.db"), lo.StorePath)
	assert.True(t, lo.Recompile)
	assert.True(t, lo.Watch)
}

func TestLoadManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "minimal"
`)

	m, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, []string{"src"}, m.Loader.SourceDirs)
	assert.Equal(t, ".mop", m.Loader.Extension)
	assert.Equal(t, "monomorphic", m.Runtime.CacheMode)
	assert.Equal(t, vm.SingleEntry, m.RegistryOptions().CacheMode)
	assert.Empty(t, m.LoaderOptions().StorePath)

	def, err := Default(dir)
	require.NoError(t, err)
	assert.Equal(t, m.SourceDirPaths(), def.SourceDirPaths())
	assert.Equal(t, m.LoaderOptions(), def.LoaderOptions())
}

func TestLoadManifestErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(dir)
	assert.ErrorIs(t, err, os.ErrNotExist)

	writeManifest(t, dir, "[runtime\n")
	_, err = Load(dir)
	assert.ErrorContains(t, err, "parse error")

	writeManifest(t, dir, "[runtime]\ncache-mode = \"megamorphic\"\n")
	_, err = Load(dir)
	assert.ErrorContains(t, err, "megamorphic")
}

func TestFindAndLoad(t *testing.T) {
	dir := t.TempDir()
	subDir := filepath.Join(dir, "a", "b", "c")
	require.NoError(t, os.MkdirAll(subDir, 0o755))
	writeManifest(t, dir, "[project]\nname = \"found-project\"\n")

	m, err := FindAndLoad(subDir)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "found-project", m.Project.Name)
}

func TestFindAndLoadNotFound(t *testing.T) {
	m, err := FindAndLoad(t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestStorePath(t *testing.T) {
	m := &Manifest{Dir: "/app"}
	assert.Empty(t, m.StorePath())

	m.Loader.Store = ":memory:"
	assert.Equal(t, ":memory:", m.StorePath())

	m.Loader.Store = "classes.db"
	assert.Equal(t, filepath.Join("/app", "classes.db"), m.StorePath())

	m.Loader.Store = "/var/lib/mop.db"
	assert.Equal(t, "/var/lib/mop.db", m.StorePath())
}

func TestValidateConstraints(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[runtime]
log-verbosity = -1

[[extension]]
classes = ["acme.A", ""]
`)
	_, err := Load(dir)
	require.Error(t, err)
	assert.ErrorContains(t, err, "LogVerbosity")
	assert.ErrorContains(t, err, "Extensions[0].Name")
	assert.ErrorContains(t, err, "Extensions[0].Classes[1]")

	m, err := Default(dir)
	require.NoError(t, err)
	require.NoError(t, m.Validate())
	m.Loader.SourceDirs = nil
	assert.ErrorContains(t, m.Validate(), "SourceDirs")
}

func TestApplyEnv(t *testing.T) {
	m, err := Default(t.TempDir())
	require.NoError(t, err)

	env := map[string]string{
		"MOP_CACHE_MODE":    "polymorphic",
		"MOP_LOG_VERBOSITY": "3",
		"MOP_STORE":         ":memory:",
		"MOP_RECOMPILE":     "true",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	require.NoError(t, m.ApplyEnv(lookup))
	assert.Equal(t, vm.Polymorphic, m.RegistryOptions().CacheMode)
	assert.Equal(t, 3, m.Runtime.LogVerbosity)
	assert.Equal(t, ":memory:", m.StorePath())
	assert.True(t, m.Loader.Recompile)

	env["MOP_LOG_VERBOSITY"] = "loud"
	assert.ErrorContains(t, m.ApplyEnv(lookup), "MOP_LOG_VERBOSITY")

	env["MOP_LOG_VERBOSITY"] = "1"
	env["MOP_CACHE_MODE"] = "megamorphic"
	assert.ErrorContains(t, m.ApplyEnv(lookup), "megamorphic")
}
