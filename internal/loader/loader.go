// Package loader finds template source and caches compiled trees.
//
// A Loader sits between the engine's include directive and a Resolver.
// Compiled trees are cached by resolved name and recompiled when the
// source's modification time changes. The dialect is picked from the file
// extension unless one is forced with WithDialect.
package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/roach88/weft/internal/compiler"
	"github.com/roach88/weft/internal/markup"
	"github.com/roach88/weft/internal/text"
)

// Dialect names accepted by WithDialect.
const (
	DialectAuto   = "auto"
	DialectMarkup = "markup"
	DialectText   = "text"
)

var textExtensions = map[string]bool{".txt": true, ".text": true}

type entry struct {
	tree    *compiler.Tree
	modTime time.Time
}

// Loader compiles and caches templates. It is safe for concurrent use.
type Loader struct {
	resolver Resolver
	dialect  string
	compile  []compiler.Option

	mu      sync.Mutex
	cache   map[string]entry
	// flights collapses concurrent compiles of one source revision.
	flights singleflight.Group
}

// Option configures a Loader.
type Option func(*Loader)

// WithDialect forces every template through one front end. DialectAuto
// restores extension-based selection.
func WithDialect(dialect string) Option {
	return func(l *Loader) {
		l.dialect = dialect
	}
}

// WithCompileOptions passes options to every compile.
func WithCompileOptions(opts ...compiler.Option) Option {
	return func(l *Loader) {
		l.compile = append(l.compile, opts...)
	}
}

// New returns a Loader reading from r.
func New(r Resolver, opts ...Option) *Loader {
	l := &Loader{
		resolver: r,
		dialect:  DialectAuto,
		cache:    make(map[string]entry),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load implements the engine's loader interface. A name is looked up
// next to relativeTo first, then from the search roots.
func (l *Loader) Load(name, relativeTo string) (*compiler.Tree, error) {
	return l.LoadContext(context.Background(), name, relativeTo)
}

// LoadContext is Load with a context for the resolver.
func (l *Loader) LoadContext(ctx context.Context, name, relativeTo string) (*compiler.Tree, error) {
	src, err := l.resolve(ctx, name, relativeTo)
	if err != nil {
		return nil, err
	}

	if tree, ok := l.cached(src); ok {
		slog.Debug("template cache hit", "name", src.Name)
		return tree, nil
	}

	key := src.Name + "@" + src.ModTime.UTC().Format(time.RFC3339Nano)
	v, err, _ := l.flights.Do(key, func() (any, error) {
		if tree, ok := l.cached(src); ok {
			return tree, nil
		}
		slog.Debug("template cache miss", "name", src.Name, "origin", src.Origin)
		fe, err := l.frontend(src.Name)
		if err != nil {
			return nil, err
		}
		opts := append([]compiler.Option{compiler.WithName(src.Name)}, l.compile...)
		tree, err := compiler.Compile(bytes.NewReader(src.Body), src.Name, fe, opts...)
		if err != nil {
			return nil, err
		}
		l.mu.Lock()
		l.cache[src.Name] = entry{tree: tree, modTime: src.ModTime}
		l.mu.Unlock()
		return tree, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*compiler.Tree), nil
}

// cached returns the cached tree for src if it was compiled from the same
// revision.
func (l *Loader) cached(src *Source) (*compiler.Tree, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.cache[src.Name]
	if !ok || !e.modTime.Equal(src.ModTime) {
		return nil, false
	}
	return e.tree, true
}

func (l *Loader) resolve(ctx context.Context, name, relativeTo string) (*Source, error) {
	if relativeTo == "" || strings.HasPrefix(name, "/") {
		return l.resolver.Resolve(ctx, name)
	}
	sibling := path.Join(path.Dir(relativeTo), name)
	src, err := l.resolver.Resolve(ctx, sibling)
	if err == nil || !IsTemplateNotFound(err) {
		return src, err
	}
	src, err = l.resolver.Resolve(ctx, name)
	var nf *TemplateNotFoundError
	if errors.As(err, &nf) {
		nf.Name = name
	}
	return src, err
}

// Invalidate drops every cached tree.
func (l *Loader) Invalidate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	clear(l.cache)
}

func (l *Loader) frontend(name string) (compiler.Frontend, error) {
	switch l.dialect {
	case DialectMarkup:
		return markup.Frontend{}, nil
	case DialectText:
		return text.Frontend{}, nil
	case DialectAuto, "":
		if textExtensions[strings.ToLower(path.Ext(name))] {
			return text.Frontend{}, nil
		}
		return markup.Frontend{}, nil
	}
	return nil, fmt.Errorf("unknown dialect %q", l.dialect)
}
