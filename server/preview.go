package server

import (
	"bytes"
	"html/template"
	"net/http"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/postforge/postforge/domain"
)

// Raw HTML in post text is escaped; only markdown constructs render.
var md = goldmark.New(
	goldmark.WithExtensions(extension.Linkify),
	goldmark.WithRendererOptions(html.WithHardWraps()),
)

var previewTmpl = template.Must(template.New("preview").Parse(`<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Post {{.ID}}</title>
<style>
body { font-family: -apple-system, "Segoe UI", Roboto, sans-serif; max-width: 640px; margin: 2rem auto; color: #1d2226; }
.card { border: 1px solid #e0dfdc; border-radius: 8px; padding: 1rem 1.25rem; }
.meta { color: #666; font-size: .85rem; margin-bottom: 1rem; }
img { width: 100%; border-radius: 4px; margin-top: 1rem; }
</style>
</head>
<body>
<div class="card">
<div class="meta">v{{.Version}} · {{.Status}} · {{.Chars}} chars</div>
{{.Body}}
{{if .ImageURL}}<img src="{{.ImageURL}}" alt="{{.AltText}}">{{end}}
</div>
</body>
</html>
`))

type previewData struct {
	ID       string
	Version  int
	Status   domain.Status
	Chars    int
	Body     template.HTML
	ImageURL string
	AltText  string
}

// renderHTML converts post text to an HTML fragment.
func renderHTML(text string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	p, ok := s.loadPost(w, r)
	if !ok {
		return
	}
	final, ok := p.Final()
	if !ok {
		writeError(w, http.StatusNotFound, errNoFinal)
		return
	}
	body, err := renderHTML(final.Text)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	data := previewData{
		ID:      p.ID,
		Version: final.Version,
		Status:  p.Status,
		Chars:   final.Chars,
		Body:    body,
	}
	if p.ImageRef != "" {
		data.ImageURL = "/api/posts/" + p.ID + "/image"
		if u, err := s.images.URL(r.Context(), p.ImageRef); err == nil && strings.HasPrefix(u, "http") {
			data.ImageURL = u
		}
		if p.Image != nil {
			data.AltText = p.Image.AltText
		}
	}
	var buf bytes.Buffer
	if err := previewTmpl.Execute(&buf, data); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
