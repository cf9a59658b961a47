// Package loader compiles class sources through a pluggable Compiler and
// caches the results by content hash.
//
// A Loader resolves qualified class names against source roots, recompiles
// files whose modification time moved past their last compile, optionally
// persists sources to a sqlite Store, and can watch its roots so edits
// invalidate cached classes. It implements vm.ClassResolver.
package loader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/chazu/mop/vm"
)

// DefaultExtension is the source file extension used when Options leaves
// it empty.
const DefaultExtension = ".mop"

// ErrClassNotFound is returned when no source root, cache entry or store
// record provides a class.
var ErrClassNotFound = errors.New("class not found")

// ErrCircularSource is the cause of a compile that needs its own result,
// such as a class extending itself through another source.
var ErrCircularSource = errors.New("circular source dependency")

// Options configures a Loader.
type Options struct {
	// SourceDirs are the roots searched by LoadClass, in order.
	SourceDirs []string
	// Extension is the source file extension, including the dot.
	Extension string
	// Recompile reloads files whose modification time is newer than the
	// cached compile.
	Recompile bool
	// StorePath enables the persistent source store.
	StorePath string
	// Watch invalidates cached classes when files under SourceDirs change.
	Watch bool
}

// Loader compiles and caches classes.
type Loader struct {
	reg      *vm.Registry
	compiler Compiler
	opts     Options

	cache      *classCache
	compiles   singleflight.Group
	store      *Store
	watcher    *Watcher
	generation uuid.UUID

	closeOnce sync.Once
	closeErr  error
}

// New creates a Loader that registers compiled classes with reg. reg may be
// nil for a standalone loader.
func New(reg *vm.Registry, compiler Compiler, opts Options) (*Loader, error) {
	if compiler == nil {
		return nil, errors.New("loader: compiler is required")
	}
	if opts.Extension == "" {
		opts.Extension = DefaultExtension
	} else if !strings.HasPrefix(opts.Extension, ".") {
		opts.Extension = "." + opts.Extension
	}
	dirs := make([]string, 0, len(opts.SourceDirs))
	for _, d := range opts.SourceDirs {
		abs, err := filepath.Abs(d)
		if err != nil {
			return nil, fmt.Errorf("loader: source dir %s: %w", d, err)
		}
		dirs = append(dirs, abs)
	}
	opts.SourceDirs = dirs

	l := &Loader{
		reg:        reg,
		compiler:   compiler,
		opts:       opts,
		cache:      newClassCache(),
		generation: uuid.New(),
	}

	if opts.StorePath != "" {
		st, err := OpenStore(opts.StorePath)
		if err != nil {
			return nil, fmt.Errorf("loader: %w", err)
		}
		l.store = st
	}
	if opts.Watch && len(dirs) > 0 {
		w, err := NewWatcher(dirs, opts.Extension, l.invalidatePath)
		if err != nil {
			l.Close()
			return nil, fmt.Errorf("loader: %w", err)
		}
		if err := w.Start(context.Background()); err != nil {
			w.Stop()
			l.Close()
			return nil, fmt.Errorf("loader: %w", err)
		}
		l.watcher = w
	}

	log.Infof("loader %s ready: %d source dirs, store=%t, watch=%t",
		l.generation, len(dirs), l.store != nil, l.watcher != nil)
	return l, nil
}

// Options returns the effective options, with absolute source dirs.
func (l *Loader) Options() Options { return l.opts }

// Generation identifies this loader instance. It is stamped into store
// records.
func (l *Loader) Generation() uuid.UUID { return l.generation }

// Store returns the persistent store, or nil when none is configured.
func (l *Loader) Store() *Store { return l.store }

// Len returns the number of distinct compiled sources in the cache.
func (l *Loader) Len() int { return l.cache.len() }

// Names returns the class names currently cached.
func (l *Loader) Names() []string { return l.cache.names() }

// ---------------------------------------------------------------------------
// Compilation
// ---------------------------------------------------------------------------

// ParseClass compiles text as a class called name. Text that normalizes to
// an already compiled source returns the cached class. An empty name
// becomes Script_<hash>.
func (l *Loader) ParseClass(ctx context.Context, text, name string) (*vm.Class, error) {
	norm, h := HashSource(text)
	if name == "" {
		name = scriptName(h)
	}
	return l.compile(ctx, Source{Name: name, Text: norm, Hash: h})
}

// ParseFile compiles the file at path. The class name is derived from the
// path relative to the first source root containing it, or from the file
// name otherwise.
func (l *Loader) ParseFile(ctx context.Context, path string) (*vm.Class, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if e := l.cache.lookupPath(abs); e != nil && !l.stale(e, info) {
		compileTotal.WithLabelValues("cached").Inc()
		return e.class, nil
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, err
	}
	norm, h := HashSource(string(data))
	return l.compile(ctx, Source{Name: l.nameForPath(abs), Text: norm, Path: abs, Hash: h})
}

// stale reports whether a file changed after e was compiled and the loader
// is configured to notice.
func (l *Loader) stale(e *entry, info os.FileInfo) bool {
	return l.opts.Recompile && info.ModTime().After(e.compiledAt)
}

func (l *Loader) compile(ctx context.Context, src Source) (*vm.Class, error) {
	ctx, span := tracer.Start(ctx, "loader.compile", trace.WithAttributes(
		attribute.String("class", src.Name),
		attribute.String("hash", src.Hash.Short()),
	))
	defer span.End()

	if e := l.cache.lookupHash(src.Hash); e != nil {
		compileTotal.WithLabelValues("cached").Inc()
		l.reindex(e, src, src.Path != "")
		return e.class, nil
	}
	if inCompileChain(ctx, src.Hash) {
		err := &CompilationError{Name: src.Name, Path: src.Path, Cause: ErrCircularSource}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	v, err, _ := l.compiles.Do(src.Hash.String(), func() (any, error) {
		if e := l.cache.lookupHash(src.Hash); e != nil {
			return e, nil
		}
		start := time.Now()
		c, err := l.compiler.Compile(withCompileChain(ctx, src.Hash), src)
		compileDuration.Observe(time.Since(start).Seconds())
		if err == nil && c == nil {
			err = errors.New("compiler returned no class")
		}
		if err != nil {
			compileTotal.WithLabelValues("error").Inc()
			return nil, asCompilationError(src, err)
		}
		compileTotal.WithLabelValues("ok").Inc()

		e := &entry{hash: src.Hash, name: src.Name, path: src.Path, class: c, compiledAt: start}
		l.install(e)
		l.persist(src, e)
		log.Debugf("compiled %s (%s) in %s", src.Name, src.Hash.Short(), time.Since(start))
		return e, nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	e := v.(*entry)
	l.reindex(e, src, false)
	return e.class, nil
}

// compileChain lists the sources being compiled on the current call path.
type compileChain struct {
	hash Hash
	next *compileChain
}

type compileChainKey struct{}

func withCompileChain(ctx context.Context, h Hash) context.Context {
	next, _ := ctx.Value(compileChainKey{}).(*compileChain)
	return context.WithValue(ctx, compileChainKey{}, &compileChain{hash: h, next: next})
}

func inCompileChain(ctx context.Context, h Hash) bool {
	for c, _ := ctx.Value(compileChainKey{}).(*compileChain); c != nil; c = c.next {
		if c.hash == h {
			return true
		}
	}
	return false
}

// reindex points src's name and path at an existing compile of the same
// content. With refresh set the compile time moves to now, so a touched but
// unchanged file is not read again.
func (l *Loader) reindex(e *entry, src Source, refresh bool) {
	if !refresh {
		if e.name == src.Name && e.path == src.Path {
			return
		}
		if cur := l.cache.lookupName(src.Name); cur != nil && cur.class == e.class && cur.path == src.Path {
			return
		}
	}
	l.install(&entry{hash: e.hash, name: src.Name, path: src.Path, class: e.class, compiledAt: time.Now()})
}

// install caches e and registers its class. A class it replaces loses its
// registry metadata.
func (l *Loader) install(e *entry) {
	prev := l.cache.put(e)
	if l.reg == nil {
		return
	}
	if old := l.reg.Classes().Register(e.class); old != nil && old != e.class {
		l.reg.RemoveMetaClass(old)
		log.Infof("replaced class %s", e.class.FullName())
	}
	if prev != nil && prev.class.FullName() != e.class.FullName() {
		l.reg.RemoveMetaClass(prev.class)
	}
}

func (l *Loader) persist(src Source, e *entry) {
	if l.store == nil {
		return
	}
	err := l.store.Put(&Record{
		Hash:       src.Hash,
		Name:       src.Name,
		Path:       src.Path,
		Text:       src.Text,
		Generation: l.generation.String(),
		CompiledAt: e.compiledAt.UnixNano(),
	})
	if err != nil {
		log.Warningf("persisting %s: %s", src.Name, err)
	}
}

// ---------------------------------------------------------------------------
// Loading by name
// ---------------------------------------------------------------------------

// LoadClass returns the class called name, compiling its source from the
// first source root that has it. A cached class is returned unless its file
// is stale. Names no root provides fall back to the cache and then to the
// store.
func (l *Loader) LoadClass(ctx context.Context, name string) (*vm.Class, error) {
	ctx, span := tracer.Start(ctx, "loader.load", trace.WithAttributes(attribute.String("class", name)))
	defer span.End()

	c, err := l.loadClass(ctx, name)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return c, err
}

func (l *Loader) loadClass(ctx context.Context, name string) (*vm.Class, error) {
	if e := l.cache.lookupName(name); e != nil && e.path == "" {
		return e.class, nil
	}
	if path, ok := l.findSource(name); ok {
		return l.ParseFile(ctx, path)
	}
	if e := l.cache.lookupName(name); e != nil {
		return e.class, nil
	}
	if l.store != nil {
		rec, err := l.store.ByName(name)
		if err == nil {
			return l.compileRecord(ctx, rec)
		}
		if !errors.Is(err, ErrRecordNotFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrClassNotFound, name)
}

// ResolveClass loads name with a background context.
func (l *Loader) ResolveClass(name string) (*vm.Class, error) {
	return l.LoadClass(context.Background(), name)
}

// findSource maps a.b.C to a/b/C<ext> under each source root.
func (l *Loader) findSource(name string) (string, bool) {
	rel := filepath.FromSlash(strings.ReplaceAll(name, ".", "/")) + l.opts.Extension
	for _, dir := range l.opts.SourceDirs {
		p := filepath.Join(dir, rel)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, true
		}
	}
	return "", false
}

// nameForPath is the inverse of findSource.
func (l *Loader) nameForPath(path string) string {
	for _, dir := range l.opts.SourceDirs {
		rel, err := filepath.Rel(dir, path)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		return strings.ReplaceAll(filepath.ToSlash(strings.TrimSuffix(rel, l.opts.Extension)), "/", ".")
	}
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

// ---------------------------------------------------------------------------
// Store warm start
// ---------------------------------------------------------------------------

// WarmStart compiles every class named in the store from its stored text,
// without reading source roots. It returns the number of classes loaded.
func (l *Loader) WarmStart(ctx context.Context) (int, error) {
	if l.store == nil {
		return 0, nil
	}
	names, err := l.store.Names()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, name := range names {
		rec, err := l.store.ByName(name)
		if err != nil {
			return n, err
		}
		if _, err := l.compileRecord(ctx, rec); err != nil {
			log.Warningf("warm start of %s: %s", name, err)
			continue
		}
		n++
	}
	log.Infof("warm start loaded %d of %d stored classes", n, len(names))
	return n, nil
}

func (l *Loader) compileRecord(ctx context.Context, rec *Record) (*vm.Class, error) {
	norm, h := HashSource(rec.Text)
	if h != rec.Hash {
		return nil, fmt.Errorf("stored record for %s does not match its hash", rec.Name)
	}
	return l.compile(ctx, Source{Name: rec.Name, Text: norm, Path: rec.Path, Hash: h})
}

// ---------------------------------------------------------------------------
// Invalidation and shutdown
// ---------------------------------------------------------------------------

// invalidatePath forgets the class compiled from path so the next load
// recompiles it.
func (l *Loader) invalidatePath(path string) {
	if e := l.cache.dropPath(path); e != nil {
		log.Debugf("invalidated %s after change to %s", e.name, path)
	}
}

// ClearCache drops every cached class. Registered classes stay in the
// registry until replaced.
func (l *Loader) ClearCache() {
	l.cache.clear()
	log.Debugf("cache cleared")
}

// Close stops the watcher and closes the store. It is safe to call more
// than once.
func (l *Loader) Close() error {
	l.closeOnce.Do(func() {
		if l.watcher != nil {
			l.watcher.Stop()
		}
		if l.store != nil {
			l.closeErr = l.store.Close()
		}
	})
	return l.closeErr
}
