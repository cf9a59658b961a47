// Package manifest handles mop.toml runtime configuration.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"

	"github.com/chazu/mop/loader"
	"github.com/chazu/mop/vm"
)

// FileName is the manifest file looked up by Load and FindAndLoad.
const FileName = "mop.toml"

// EnvPrefix prefixes the environment variables read by ApplyEnv.
const EnvPrefix = "MOP_"

var manifestValidate = validator.New()

// Manifest represents a mop.toml configuration.
type Manifest struct {
	Project    Project      `toml:"project"`
	Runtime    Runtime      `toml:"runtime"`
	Loader     LoaderConfig `toml:"loader"`
	Extensions []Extension  `toml:"extension" validate:"dive"`

	// Dir is the directory containing the mop.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Runtime configures the class registry and logging.
type Runtime struct {
	CacheMode            string `toml:"cache-mode"`
	LenientIntrospection bool   `toml:"lenient-introspection"`
	LogVerbosity         int    `toml:"log-verbosity" validate:"gte=0"`
}

// LoaderConfig configures the dynamic loader.
type LoaderConfig struct {
	SourceDirs []string `toml:"source-dirs" validate:"min=1,dive,required"`
	Extension  string   `toml:"extension" validate:"required"`
	Recompile  bool     `toml:"recompile"`
	Store      string   `toml:"store"`
	Watch      bool     `toml:"watch"`
}

// Extension declares an extension module. Classes and StaticClasses are
// qualified class names; Path optionally adds a source root holding them.
type Extension struct {
	Name          string   `toml:"name" validate:"required"`
	Version       string   `toml:"version"`
	Classes       []string `toml:"classes" validate:"dive,required"`
	StaticClasses []string `toml:"static-classes" validate:"dive,required"`
	Path          string   `toml:"path"`
}

// Load parses a mop.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	// Defaults
	if len(m.Loader.SourceDirs) == 0 {
		m.Loader.SourceDirs = []string{"src"}
	}
	if m.Loader.Extension == "" {
		m.Loader.Extension = loader.DefaultExtension
	}
	if m.Runtime.CacheMode == "" {
		m.Runtime.CacheMode = vm.SingleEntry.String()
	}

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &m, nil
}

// Validate checks the cache mode and the field constraints declared on the
// manifest types.
func (m *Manifest) Validate() error {
	if _, err := vm.ParseCacheMode(m.Runtime.CacheMode); err != nil {
		return fmt.Errorf("runtime: %w", err)
	}
	if err := manifestValidate.Struct(m); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, len(verrs))
			for i, fe := range verrs {
				msgs[i] = fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag())
			}
			return fmt.Errorf("invalid manifest: %s", strings.Join(msgs, "; "))
		}
		return err
	}
	return nil
}

// ApplyEnv overrides manifest values from MOP_CACHE_MODE,
// MOP_LOG_VERBOSITY, MOP_STORE and MOP_RECOMPILE, then revalidates.
// lookup is usually os.LookupEnv.
func (m *Manifest) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvPrefix + "CACHE_MODE"); ok {
		m.Runtime.CacheMode = v
	}
	if v, ok := lookup(EnvPrefix + "LOG_VERBOSITY"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sLOG_VERBOSITY: %w", EnvPrefix, err)
		}
		m.Runtime.LogVerbosity = n
	}
	if v, ok := lookup(EnvPrefix + "STORE"); ok {
		m.Loader.Store = v
	}
	if v, ok := lookup(EnvPrefix + "RECOMPILE"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sRECOMPILE: %w", EnvPrefix, err)
		}
		m.Loader.Recompile = b
	}
	return m.Validate()
}

// FindAndLoad walks up from startDir to find a mop.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// Default returns the manifest used when no mop.toml exists: dir's src
// directory as the only source root.
func Default(dir string) (*Manifest, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	return &Manifest{
		Dir: abs,
		Runtime: Runtime{
			CacheMode: vm.SingleEntry.String(),
		},
		Loader: LoaderConfig{
			SourceDirs: []string{"src"},
			Extension:  loader.DefaultExtension,
		},
	}, nil
}

// SourceDirPaths returns absolute paths for the configured source
// directories followed by extension paths.
func (m *Manifest) SourceDirPaths() []string {
	var paths []string
	for _, d := range m.Loader.SourceDirs {
		paths = append(paths, m.abs(d))
	}
	for _, ext := range m.Extensions {
		if ext.Path != "" {
			paths = append(paths, m.abs(ext.Path))
		}
	}
	return paths
}

// StorePath returns the absolute store path, or "" when no store is
// configured. ":memory:" is returned unchanged.
func (m *Manifest) StorePath() string {
	switch m.Loader.Store {
	case "", ":memory:":
		return m.Loader.Store
	}
	return m.abs(m.Loader.Store)
}

func (m *Manifest) abs(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Dir, p)
}

// RegistryOptions maps the [runtime] section to registry options. The
// resolver and describer are left for the caller to wire.
func (m *Manifest) RegistryOptions() vm.Options {
	mode, _ := vm.ParseCacheMode(m.Runtime.CacheMode)
	return vm.Options{
		CacheMode:            mode,
		LenientIntrospection: m.Runtime.LenientIntrospection,
	}
}

// LoaderOptions maps the [loader] section to loader options.
func (m *Manifest) LoaderOptions() loader.Options {
	return loader.Options{
		SourceDirs: m.SourceDirPaths(),
		Extension:  m.Loader.Extension,
		Recompile:  m.Loader.Recompile,
		StorePath:  m.StorePath(),
		Watch:      m.Loader.Watch,
	}
}
