// Package views renders the server-side HTML pages.
package views

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"strings"
	"sync"

	"recipebox/internal/middleware"
)

//go:embed templates
var embedded embed.FS

const (
	baseLayout   = "layouts/base.html"
	partialsGlob = "partials/*.html"
	pagesGlob    = "pages/*.html"
)

// Engine is a fiber.Views implementation backed by html/template. Every page
// is parsed together with the base layout and the partials.
type Engine struct {
	mu     sync.RWMutex
	fsys   fs.FS
	reload bool
	funcs  template.FuncMap
	cache  map[string]*template.Template
}

// New returns an engine over the embedded templates.
func New() *Engine {
	sub, err := fs.Sub(embedded, "templates")
	if err != nil {
		panic(err)
	}
	return &Engine{fsys: sub, funcs: Funcs(), cache: map[string]*template.Template{}}
}

// NewFromDir returns an engine reading dir and reparsing on every render.
// Used in development to edit templates without rebuilding.
func NewFromDir(dir string) *Engine {
	return &Engine{fsys: os.DirFS(dir), reload: true, funcs: Funcs(), cache: map[string]*template.Template{}}
}

// AddFunc registers a template function. It must be called before Load.
func (e *Engine) AddFunc(name string, fn any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.funcs[name] = fn
}

// Load parses every page.
func (e *Engine) Load() error {
	pages, err := fs.Glob(e.fsys, pagesGlob)
	if err != nil {
		return err
	}
	if len(pages) == 0 {
		return fmt.Errorf("views: no pages found")
	}

	cache := make(map[string]*template.Template, len(pages))
	for _, page := range pages {
		name := strings.TrimSuffix(path.Base(page), ".html")
		tmpl, err := template.New(name).Funcs(e.funcs).ParseFS(e.fsys, baseLayout, partialsGlob, page)
		if err != nil {
			middleware.Logger.Error("Failed to parse template", slog.String("file", page), slog.String("error", err.Error()))
			return err
		}
		cache[name] = tmpl
	}

	e.mu.Lock()
	e.cache = cache
	e.mu.Unlock()
	return nil
}

// Get returns a parsed page, or nil.
func (e *Engine) Get(name string) *template.Template {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cache[name]
}

// Render executes the base layout with the named page. Layout arguments are
// ignored; every page shares the base layout.
func (e *Engine) Render(w io.Writer, name string, data any, _ ...string) error {
	if e.reload {
		if err := e.Load(); err != nil {
			return err
		}
	}
	tmpl := e.Get(strings.TrimSuffix(name, ".html"))
	if tmpl == nil {
		return fmt.Errorf("views: template %q not found", name)
	}
	return tmpl.ExecuteTemplate(w, "base", data)
}
