package presenter

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/clausebit/companion/internal/model"
)

func TestIconFor(t *testing.T) {
	tests := []struct {
		clause model.Clause
		want   string
	}{
		{model.Clause{Type: "data-sharing"}, "share-2"},
		{model.Clause{Type: "tracking"}, "map-pin"},
		{model.Clause{Type: "retention"}, "archive"},
		{model.Clause{Type: "auto-renewal"}, "refresh-cw"},
		{model.Clause{Type: "arbitration"}, "scale"},
		{model.Clause{Type: "Danger"}, "alert-triangle"},
		{model.Clause{Type: "safe"}, "shield-check"},
		{model.Clause{Type: "something-new"}, DefaultIcon},
		{model.Clause{}, DefaultIcon},
		{model.Clause{Type: "tracking", Icon: "eye"}, "eye"},
	}

	for _, tt := range tests {
		if got := IconFor(tt.clause); got != tt.want {
			t.Errorf("IconFor(%+v) = %q, want %q", tt.clause, got, tt.want)
		}
	}
}

func TestControlFor(t *testing.T) {
	tests := map[string]Control{
		"":       ControlNone,
		"Why?":   ControlExplain,
		"Flag":   ControlFlag,
		"Report": ControlFlag,
	}
	for action, want := range tests {
		if got := ControlFor(action); got != want {
			t.Errorf("ControlFor(%q) = %q, want %q", action, got, want)
		}
	}
}

func TestNewView_Defaults(t *testing.T) {
	entry := &model.CachedSummary{
		Origin: "https://a.com/",
		Summary: model.Summary{
			Clauses: []model.Clause{{Type: "tracking"}},
		},
		FetchedAt: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	}

	v := NewView(entry, model.ProvenanceOptimistic)
	if v.RiskLevel != DefaultRiskLevel || v.SummaryText != DefaultSummaryText {
		t.Errorf("header = %q / %q, want defaults", v.RiskLevel, v.SummaryText)
	}
	if len(v.Findings) != 1 {
		t.Fatalf("findings = %d, want 1", len(v.Findings))
	}
	f := v.Findings[0]
	if f.Title != DefaultClauseTitle || f.Description != DefaultDescription || f.Icon != "map-pin" {
		t.Errorf("finding = %+v", f)
	}
	if v.EmptyText != "" {
		t.Errorf("EmptyText = %q, want empty when clauses present", v.EmptyText)
	}

	for _, clauses := range [][]model.Clause{nil, {}} {
		entry.Summary.Clauses = clauses
		v := NewView(entry, model.ProvenanceOptimistic)
		if v.EmptyText != NoClausesText || len(v.Findings) != 0 {
			t.Errorf("clauses %#v: EmptyText = %q findings = %d, want %q and none", clauses, v.EmptyText, len(v.Findings), NoClausesText)
		}
	}
}

func TestWriteHTML(t *testing.T) {
	v := NewView(&model.CachedSummary{
		Origin: "https://a.com/",
		Summary: model.Summary{
			RiskLevel:   "High",
			SummaryText: "Watch out.",
			Clauses: []model.Clause{
				{Title: "<script>alert(1)</script>", Description: "d1", Type: "tracking", Action: "Why?"},
				{Title: "Arbitration", Description: "d2", Type: "arbitration", Action: "Flag"},
				{Title: "Retention", Description: "d3", Type: "retention"},
			},
		},
	}, model.ProvenanceConfirmed)
	v.Notice = NoticeUnavailable

	var buf bytes.Buffer
	if err := WriteHTML(&buf, v); err != nil {
		t.Fatalf("WriteHTML() error = %v", err)
	}
	if strings.Contains(buf.String(), "<script>") {
		t.Fatal("backend text was not escaped")
	}

	doc, err := goquery.NewDocumentFromReader(&buf)
	if err != nil {
		t.Fatalf("parse html: %v", err)
	}

	if got := doc.Find(".alert-text").Text(); got != "High" {
		t.Errorf("alert-text = %q, want High", got)
	}
	if got := doc.Find(".notice").Text(); got != NoticeUnavailable {
		t.Errorf("notice = %q", got)
	}
	if got, _ := doc.Find("section").Attr("data-provenance"); got != "confirmed" {
		t.Errorf("data-provenance = %q, want confirmed", got)
	}

	cards := doc.Find(".card")
	if cards.Length() != 3 {
		t.Fatalf("cards = %d, want 3", cards.Length())
	}
	if got := cards.Eq(0).Find(".card-title").Text(); got != "<script>alert(1)</script>" {
		t.Errorf("first title = %q", got)
	}
	if icon, _ := cards.Eq(0).Find("i").Attr("data-lucide"); icon != "map-pin" {
		t.Errorf("first icon = %q, want map-pin", icon)
	}
	if cards.Eq(0).Find(".why-button").Length() != 1 {
		t.Error("first card missing why-button")
	}
	if cards.Eq(1).Find(".flag-button").Length() != 1 {
		t.Error("second card missing flag-button")
	}
	if cards.Eq(2).Find("button").Length() != 0 {
		t.Error("third card should have no control")
	}
	if doc.Find(".empty").Length() != 0 {
		t.Error("empty text rendered alongside findings")
	}
}

func TestWriteHTML_Placeholder(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteHTML(&buf, PlaceholderView("https://a.com/")); err != nil {
		t.Fatalf("WriteHTML() error = %v", err)
	}
	doc, err := goquery.NewDocumentFromReader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if got := doc.Find(".empty").Text(); got != NoClausesText {
		t.Errorf("empty = %q, want %q", got, NoClausesText)
	}
	if _, ok := doc.Find("section").Attr("data-provenance"); ok {
		t.Error("placeholder should not carry provenance")
	}
}

func TestWriteText(t *testing.T) {
	v := NewView(&model.CachedSummary{
		Origin: "https://a.com/",
		Summary: model.Summary{
			RiskLevel:   "Medium",
			SummaryText: "Some sharing.",
			Clauses:     []model.Clause{{Title: "Sharing", Description: "Shared with ads.", Type: "data-sharing", Action: "Why?"}},
		},
	}, model.ProvenanceOptimistic)

	var buf bytes.Buffer
	if err := WriteText(&buf, v); err != nil {
		t.Fatalf("WriteText() error = %v", err)
	}
	out := buf.String()
	for _, want := range []string{"https://a.com/", "Medium", "Some sharing.", "Sharing", "Shared with ads.", "share-2", "Why?", "optimistic"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestNewRenderer(t *testing.T) {
	var buf bytes.Buffer
	r, err := NewRenderer(FormatJSON, &buf)
	if err != nil {
		t.Fatalf("NewRenderer() error = %v", err)
	}
	if err := r.Render(context.Background(), PlaceholderView("https://a.com/")); err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	var got View
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Origin != "https://a.com/" || !got.Placeholder {
		t.Errorf("decoded = %+v", got)
	}

	if _, err := NewRenderer("pdf", &buf); err == nil {
		t.Error("NewRenderer(pdf) error = nil")
	}
}
