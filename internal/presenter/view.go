package presenter

import (
	"strings"
	"time"

	"github.com/clausebit/companion/internal/model"
)

// Fallback text for fields the backend left empty.
const (
	DefaultRiskLevel   = "Risk data unavailable"
	DefaultSummaryText = "No summary provided."
	DefaultClauseTitle = "Untitled Clause"
	DefaultDescription = "No description available."
	NoClausesText      = "No clause data available."
	NoticeUnavailable  = "Risk summary unavailable."
)

// DefaultIcon is used when neither the backend nor the category names an icon.
const DefaultIcon = "alert-triangle"

// ExplainLabel is the action label rendered as an explain control.
const ExplainLabel = "Why?"

// Control is the kind of button rendered next to a finding.
type Control string

const (
	ControlNone    Control = ""
	ControlExplain Control = "explain"
	ControlFlag    Control = "flag"
)

var categoryIcons = map[string]string{
	"data-sharing": "share-2",
	"tracking":     "map-pin",
	"retention":    "archive",
	"auto-renewal": "refresh-cw",
	"arbitration":  "scale",
	"warning":      "alert-triangle",
	"danger":       "alert-triangle",
	"safe":         "shield-check",
	"ok":           "shield-check",
}

// Finding is one rendered clause.
type Finding struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
	Icon        string  `json:"icon"`
	Control     Control `json:"control,omitempty"`
	ActionLabel string  `json:"action_label,omitempty"`
}

// View is everything the popup shows for one origin.
type View struct {
	TabID  string `json:"tab_id,omitempty"`
	Origin string `json:"origin"`
	// Provenance is optimistic for a cached render and confirmed after a
	// successful refresh. Placeholder views carry no provenance.
	Provenance  model.Provenance `json:"provenance,omitempty"`
	Placeholder bool             `json:"placeholder"`
	RiskLevel   string           `json:"risk_level"`
	SummaryText string           `json:"summary_text"`
	Findings    []Finding        `json:"findings"`
	// EmptyText replaces the findings list when the summary has no clauses.
	EmptyText string    `json:"empty_text,omitempty"`
	Notice    string    `json:"notice,omitempty"`
	FetchedAt time.Time `json:"fetched_at,omitempty"`
}

// IconFor picks the icon for a clause: the backend's own icon, else the
// category's, else DefaultIcon.
func IconFor(c model.Clause) string {
	if c.Icon != "" {
		return c.Icon
	}
	if icon, ok := categoryIcons[strings.ToLower(strings.TrimSpace(c.Type))]; ok {
		return icon
	}
	return DefaultIcon
}

// ControlFor maps an action label to a control.
func ControlFor(action string) Control {
	switch {
	case action == "":
		return ControlNone
	case action == ExplainLabel:
		return ControlExplain
	default:
		return ControlFlag
	}
}

// PlaceholderView is shown when nothing is cached for origin.
func PlaceholderView(origin string) View {
	return View{
		Origin:      origin,
		Placeholder: true,
		RiskLevel:   DefaultRiskLevel,
		SummaryText: DefaultSummaryText,
		Findings:    []Finding{},
		EmptyText:   NoClausesText,
	}
}

// NewView builds the view for a cached summary. The findings list is
// rebuilt from scratch each time.
func NewView(entry *model.CachedSummary, provenance model.Provenance) View {
	s := entry.Summary
	v := View{
		Origin:      entry.Origin,
		Provenance:  provenance,
		RiskLevel:   orDefault(s.RiskLevel, DefaultRiskLevel),
		SummaryText: orDefault(s.SummaryText, DefaultSummaryText),
		Findings:    make([]Finding, 0, len(s.Clauses)),
		FetchedAt:   entry.FetchedAt,
	}
	if len(s.Clauses) == 0 {
		v.EmptyText = NoClausesText
		return v
	}
	for _, c := range s.Clauses {
		v.Findings = append(v.Findings, Finding{
			Title:       orDefault(c.Title, DefaultClauseTitle),
			Description: orDefault(c.Description, DefaultDescription),
			Category:    c.Type,
			Icon:        IconFor(c),
			Control:     ControlFor(c.Action),
			ActionLabel: c.Action,
		})
	}
	return v
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
