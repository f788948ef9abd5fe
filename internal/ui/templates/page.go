package templates

import (
	"context"
	"fmt"
	"io"

	"github.com/a-h/templ"
	"github.com/google/uuid"

	"consumption-tracker/internal/models"
)

const datastarScript = "https://cdn.jsdelivr.net/gh/starfederation/datastar@1.0.0-RC.5/bundles/datastar.js"

type PageData struct {
	Title    string
	State    string
	Warning  string
	Layout   models.LayoutMode
	Tabs     []models.TabLabel
	Mounted  []uuid.UUID
	CanOpen  bool
	Degraded bool
}

// Page renders the shell. Window panels are mounted as empty placeholders
// and filled by the /sse/windows stream once the page loads.
func Page(data PageData) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		ew := &errWriter{w: w}

		ew.printf(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`)
		ew.printf(`<meta name="viewport" content="width=device-width, initial-scale=1">`)
		ew.printf(`<title>%s</title>`, templ.EscapeString(data.Title))
		ew.printf(`<script type="module" src="%s"></script></head>`, datastarScript)
		ew.printf(`<body data-on-load="@get('/sse/status')">`)

		ew.printf(`<header class="status-bar status-%s">`, templ.EscapeString(data.State))
		ew.printf(`<span data-text="$tracker.state">%s</span>`, templ.EscapeString(data.State))
		if data.Degraded || data.Warning != "" {
			ew.printf(`<p class="warning">%s</p>`, templ.EscapeString(data.Warning))
		}
		ew.printf(`<button data-on-click="@post('/api/windows')"%s>New event</button>`, disabled(!data.CanOpen))
		ew.printf(`</header>`)

		ew.printf(`<nav class="tabs">`)
		for _, tab := range data.Tabs {
			class := "tab"
			if tab.Active {
				class += " active"
			}
			if tab.Dirty {
				class += " dirty"
			}
			ew.printf(`<button class="%s" data-on-click="@post('/api/windows/%s/activate')">%s <span>%s</span></button>`,
				class, tab.ID, templ.EscapeString(tab.Title), tab.Consumption.String())
		}
		ew.printf(`</nav>`)

		ew.printf(`<main class="layout-%s">`, templ.EscapeString(string(data.Layout)))
		for _, id := range data.Mounted {
			ew.printf(`<section id="window-%s" data-on-load="@get('/sse/windows/%s')"></section>`, id, id)
		}
		ew.printf(`</main></body></html>`)

		return ew.err
	})
}

func disabled(b bool) string {
	if b {
		return " disabled"
	}
	return ""
}

type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}
