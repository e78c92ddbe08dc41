package presenter

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Renderer paints a View. Open calls it once for the cached state and
// once more after the refresh.
type Renderer interface {
	Render(ctx context.Context, v View) error
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(ctx context.Context, v View) error

func (f RendererFunc) Render(ctx context.Context, v View) error {
	return f(ctx, v)
}

// Output formats.
const (
	FormatHTML = "html"
	FormatText = "text"
	FormatJSON = "json"
)

// NewRenderer returns a Renderer writing format to w.
func NewRenderer(format string, w io.Writer) (Renderer, error) {
	var write func(io.Writer, View) error
	switch format {
	case FormatHTML, "":
		write = WriteHTML
	case FormatText:
		write = WriteText
	case FormatJSON:
		write = WriteJSON
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
	return RendererFunc(func(_ context.Context, v View) error {
		return write(w, v)
	}), nil
}

var popupTemplate = template.Must(template.New("popup").Parse(`<section class="summary" data-origin="{{.Origin}}"{{if .Provenance}} data-provenance="{{.Provenance}}"{{end}}>
  <div class="alert"><span class="alert-text">{{.RiskLevel}}</span></div>
  <p class="summary-text">{{.SummaryText}}</p>
{{- if .Notice}}
  <p class="notice">{{.Notice}}</p>
{{- end}}
  <div class="cards">
{{- if .EmptyText}}
    <p class="empty">{{.EmptyText}}</p>
{{- end}}
{{- range .Findings}}
    <div class="card">
      <i data-lucide="{{.Icon}}" class="card-icon {{.Category}}"></i>
      <div class="card-text">
        <h3 class="card-title">{{.Title}}</h3>
        <p class="card-description">{{.Description}}</p>
      </div>
{{- if eq .Control "explain"}}
      <button class="why-button">{{.ActionLabel}}</button>
{{- else if eq .Control "flag"}}
      <button class="flag-button">{{.ActionLabel}}</button>
{{- end}}
    </div>
{{- end}}
  </div>
</section>
`))

// WriteHTML writes v as an HTML fragment. All backend text is escaped.
func WriteHTML(w io.Writer, v View) error {
	return popupTemplate.Execute(w, v)
}

// WriteJSON writes v as a single JSON document.
func WriteJSON(w io.Writer, v View) error {
	return json.NewEncoder(w).Encode(v)
}

var (
	riskStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("214"))

	originStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("62")).
			Bold(true)

	findingTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("212"))

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	noticeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Italic(true)

	controlStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))
)

// WriteText writes v for a terminal.
func WriteText(w io.Writer, v View) error {
	var b strings.Builder

	b.WriteString(originStyle.Render(v.Origin))
	if v.Provenance != "" {
		b.WriteString(" " + mutedStyle.Render("("+string(v.Provenance)+")"))
	}
	b.WriteString("\n")
	b.WriteString(riskStyle.Render(v.RiskLevel) + "\n")
	b.WriteString(v.SummaryText + "\n")
	if v.Notice != "" {
		b.WriteString(noticeStyle.Render(v.Notice) + "\n")
	}
	b.WriteString("\n")

	if v.EmptyText != "" {
		b.WriteString(mutedStyle.Render(v.EmptyText) + "\n")
	}
	for _, f := range v.Findings {
		b.WriteString(mutedStyle.Render("["+f.Icon+"]") + " " + findingTitleStyle.Render(f.Title))
		if f.Control != ControlNone {
			b.WriteString(" " + controlStyle.Render("<"+f.ActionLabel+">"))
		}
		b.WriteString("\n    " + f.Description + "\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}
