package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/clausebit/companion/internal/conversation"
	"github.com/clausebit/companion/internal/model"
)

const (
	outputText = "text"
	outputJSON = "json"
	outputYAML = "yaml"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	idStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Italic(true)

	dateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	userStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62"))

	assistantStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("42"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))
)

// writeStructured writes v as JSON or YAML.
func writeStructured(w io.Writer, format string, v interface{}) error {
	switch format {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func writeConversationTable(w io.Writer, list []model.ConversationSummary) error {
	if len(list) == 0 {
		_, err := fmt.Fprintln(w, dateStyle.Render("No conversations yet."))
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(tw, titleStyle.Render("Title")+"\t"+titleStyle.Render("Session")+"\t"+titleStyle.Render("Time")+"\t")
	for _, c := range list {
		_, _ = fmt.Fprintln(tw, c.Title+"\t"+idStyle.Render(c.SessionID)+"\t"+dateStyle.Render(c.Time)+"\t")
	}
	return tw.Flush()
}

func writeMessages(w io.Writer, messages []model.Message) error {
	var b strings.Builder
	for _, m := range messages {
		writeMessage(&b, m)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func writeMessage(b *strings.Builder, m model.Message) {
	label := assistantStyle.Render("ClauseBit")
	if m.Role == model.RoleUser {
		label = userStyle.Render("You")
	}
	content := m.Content
	if m.Provenance == model.ProvenanceSynthetic && m.Content != conversation.Greeting {
		content = errorStyle.Render(content)
	}
	fmt.Fprintf(b, "%s %s\n%s\n\n", label, dateStyle.Render(m.Timestamp), content)
}
