package web

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"path"
	"strings"
	"time"
)

//go:embed templates
var templateFS embed.FS

type Templates struct {
	base  *template.Template
	pages map[string]*PageTemplate
}

type PageTemplate struct {
	*template.Template
}

// NewTemplates parses the shared layout and one template set per directory
// under templates/pages. It panics on malformed templates.
func NewTemplates(fsys fs.FS) *Templates {
	base := template.New("").Funcs(TemplateFuncs())
	base = template.Must(base.ParseFS(fsys, "templates/layout/*.html"))

	pages := make(map[string]*PageTemplate)
	entries, err := fs.ReadDir(fsys, "templates/pages")
	if err != nil {
		panic(fmt.Sprintf("Failed to read pages directory: %v", err))
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		group := entry.Name()
		clone, err := base.Clone()
		if err != nil {
			panic(fmt.Sprintf("Failed to clone template for %s: %v", group, err))
		}
		_, err = clone.ParseFS(fsys, path.Join("templates/pages", group, "*.html"))
		if err != nil {
			panic(fmt.Sprintf("Failed to parse templates for %s: %v", group, err))
		}
		pages[group] = &PageTemplate{Template: clone}
	}

	return &Templates{
		base:  base,
		pages: pages,
	}
}

func TemplateFuncs() template.FuncMap {
	return template.FuncMap{
		"ago": func(t time.Time) string {
			if t.IsZero() {
				return "never"
			}
			return time.Since(t).Truncate(time.Second).String() + " ago"
		},
		"clock": func(t time.Time) string {
			return t.Format("2006-01-02 15:04:05")
		},
		"value": func(v any) string {
			switch v := v.(type) {
			case float32:
				return fmt.Sprintf("%.2f", v)
			case bool:
				if v {
					return "on"
				}
				return "off"
			}
			return fmt.Sprint(v)
		},
		"join": strings.Join,
	}
}

// Render writes a named block, for HTMX partial updates.
func (pt *PageTemplate) Render(w http.ResponseWriter, name string, data interface{}) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	pt.execute(w, name, data)
}

// Renders entire page
func (pt *PageTemplate) RenderPage(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	pt.execute(w, "layout", data)
}

func (pt *PageTemplate) execute(w http.ResponseWriter, name string, data interface{}) {
	var buf strings.Builder
	if err := pt.ExecuteTemplate(&buf, name, data); err != nil {
		http.Error(w, "Template rendering error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	io.WriteString(w, buf.String())
}
