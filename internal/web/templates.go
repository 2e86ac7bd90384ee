package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/jbweber/anvil/internal/status"
)

//go:embed templates/*.html
var templateFS embed.FS

// pages rendered inside templates/layout.html.
var pages = []string{"index", "create", "details", "monitor"}

type templates map[string]*template.Template

var funcs = template.FuncMap{
	"running": status.IsRunning,
	"since": func(t time.Time) string {
		return time.Since(t).Round(time.Second).String()
	},
}

func loadTemplates() (templates, error) {
	out := make(templates, len(pages))
	for _, page := range pages {
		t, err := template.New("layout.html").Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+page+".html")
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s template: %w", page, err)
		}
		out[page] = t
	}
	return out, nil
}

// pageData is the common envelope every page receives.
type pageData struct {
	Title   string
	Flashes []flash
	Data    any
}

// render executes page into a buffer so a template error can still produce
// a clean 500.
func (s *Server) render(w http.ResponseWriter, r *http.Request, page, title string, data any) {
	t, ok := s.templates[page]
	if !ok {
		s.requestLogger(r).WithField("page", page).Error("unknown template")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	err := t.Execute(&buf, pageData{
		Title:   title,
		Flashes: s.takeFlashes(w, r),
		Data:    data,
	})
	if err != nil {
		s.requestLogger(r).WithError(err).WithField("page", page).Error("failed to render template")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}
