package loader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"
	"time"
)

// Source is template text found by a Resolver.
type Source struct {
	// Name is the canonical template name. It keys the cache and becomes
	// the compiled tree's name.
	Name string
	Body []byte
	// ModTime changes whenever Body does.
	ModTime time.Time
	// Origin describes where the source came from, for diagnostics.
	Origin string
}

// Resolver finds template source by name.
type Resolver interface {
	Resolve(ctx context.Context, name string) (*Source, error)
}

// TemplateNotFoundError reports a name no resolver could find.
type TemplateNotFoundError struct {
	Name     string
	Searched []string
}

func (e *TemplateNotFoundError) Error() string {
	if len(e.Searched) == 0 {
		return fmt.Sprintf("template %q not found", e.Name)
	}
	return fmt.Sprintf("template %q not found (searched %s)", e.Name, strings.Join(e.Searched, ", "))
}

// NotFound marks the error for include fallbacks.
func (e *TemplateNotFoundError) NotFound() bool { return true }

// IsTemplateNotFound reports whether err is a TemplateNotFoundError.
func IsTemplateNotFound(err error) bool {
	var nf *TemplateNotFoundError
	return errors.As(err, &nf)
}

// CleanName turns a template reference into a slash-separated name
// relative to a search root. Leading slashes are dropped and names that
// climb out of the root are rejected.
func CleanName(name string) (string, error) {
	clean := path.Clean(strings.TrimLeft(strings.ReplaceAll(name, "\\", "/"), "/"))
	if clean == "." || !fs.ValidPath(clean) {
		return "", fmt.Errorf("invalid template name %q", name)
	}
	return clean, nil
}

// FSResolver searches a list of file systems in order.
type FSResolver struct {
	FS []fs.FS
	// Labels name each file system in not-found errors.
	Labels []string
}

// NewFSResolver searches the given file systems in order.
func NewFSResolver(fsys ...fs.FS) *FSResolver {
	labels := make([]string, len(fsys))
	for i := range fsys {
		labels[i] = fmt.Sprintf("fs[%d]", i)
	}
	return &FSResolver{FS: fsys, Labels: labels}
}

// NewDirResolver searches the given directories in order.
func NewDirResolver(dirs ...string) *FSResolver {
	r := &FSResolver{}
	for _, dir := range dirs {
		r.FS = append(r.FS, os.DirFS(dir))
		r.Labels = append(r.Labels, dir)
	}
	return r
}

// Resolve implements Resolver.
func (r *FSResolver) Resolve(ctx context.Context, name string) (*Source, error) {
	clean, err := CleanName(name)
	if err != nil {
		return nil, err
	}
	for i, fsys := range r.FS {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		info, err := fs.Stat(fsys, clean)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("stat %s in %s: %w", clean, r.label(i), err)
		}
		if info.IsDir() {
			continue
		}
		body, err := fs.ReadFile(fsys, clean)
		if err != nil {
			return nil, fmt.Errorf("read %s in %s: %w", clean, r.label(i), err)
		}
		return &Source{Name: clean, Body: body, ModTime: info.ModTime(), Origin: r.label(i)}, nil
	}
	return nil, &TemplateNotFoundError{Name: clean, Searched: r.Labels}
}

func (r *FSResolver) label(i int) string {
	if i < len(r.Labels) {
		return r.Labels[i]
	}
	return fmt.Sprintf("fs[%d]", i)
}

// Chain tries each resolver in order and returns the first source found.
type Chain []Resolver

// Resolve implements Resolver.
func (c Chain) Resolve(ctx context.Context, name string) (*Source, error) {
	var searched []string
	for _, r := range c {
		src, err := r.Resolve(ctx, name)
		if err == nil {
			return src, nil
		}
		var nf *TemplateNotFoundError
		if !errors.As(err, &nf) {
			return nil, err
		}
		searched = append(searched, nf.Searched...)
	}
	return nil, &TemplateNotFoundError{Name: name, Searched: searched}
}
