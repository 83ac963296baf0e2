package httpapi

import (
	"html/template"
	"net/http"
)

var viewerTemplate = template.Must(template.New("viewer").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Image Gallery</title>
<style>
body { font-family: sans-serif; margin: 2rem; background: #fafafa; }
h1 { font-size: 1.3rem; }
.grid { display: grid; grid-template-columns: repeat(auto-fill, minmax(220px, 1fr)); gap: 1rem; }
.card { background: #fff; border: 1px solid #ddd; border-radius: 6px; padding: 0.75rem; }
.card img { width: 100%; height: 180px; object-fit: cover; border-radius: 4px; }
.prompt { font-size: 0.8rem; color: #444; margin: 0.5rem 0; word-break: break-word; }
.meta { font-size: 0.7rem; color: #888; }
form { margin-top: 0.5rem; }
button { background: #c0392b; color: #fff; border: none; padding: 0.3rem 0.7rem; border-radius: 4px; cursor: pointer; }
.empty { color: #888; }
</style>
</head>
<body>
<h1>Generated Images ({{len .Assets}})</h1>
{{if not .Assets}}<p class="empty">No images yet.</p>{{end}}
<div class="grid">
{{range .Assets}}
  <div class="card">
    <a href="{{.DisplayURL}}" target="_blank"><img src="{{.DisplayURL}}" alt="" loading="lazy"></a>
    <p class="prompt">{{.Prompt}}</p>
    <p class="meta">{{.CreatedAt.Format "2006-01-02 15:04"}} UTC{{if not .StorageURL}} &middot; unmirrored{{end}}</p>
    <form method="POST" action="/admin/delete/{{.ID}}" onsubmit="return confirm('Delete this image?')">
      <button type="submit">Delete</button>
    </form>
  </div>
{{end}}
</div>
</body>
</html>`))

// adminViewer renders the gallery of recent images, newest first.
func (h *handler) adminViewer(w http.ResponseWriter, r *http.Request) {
	assets, err := h.services.Assets.ListRecent(r.Context(), 0)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := viewerTemplate.Execute(w, map[string]interface{}{"Assets": assets}); err != nil {
		h.log.WithError(err).Error("render viewer failed")
	}
}
