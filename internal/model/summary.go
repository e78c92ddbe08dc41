package model

import (
	"time"
)

// Summary is the analysis backend's verdict for one origin.
type Summary struct {
	RiskLevel   string   `json:"riskLevel"`
	SummaryText string   `json:"summaryText"`
	Clauses     []Clause `json:"clauses"`
}

// Clause is one flagged finding within a Summary.
type Clause struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Type        string `json:"type"`
	Icon        string `json:"icon,omitempty"`
	Action      string `json:"action,omitempty"`
}

// CachedSummary is a Summary stored under its origin.
type CachedSummary struct {
	Origin    string    `json:"origin"`
	Summary   Summary   `json:"summary"`
	FetchedAt time.Time `json:"fetched_at"`
	Version   uint64    `json:"version"`
}

// AnalysisRequest is the body of the collector and summary endpoints.
type AnalysisRequest struct {
	CompanyName string `json:"company_name"`
}

// AuthStatus is the body returned by the extension-auth endpoint.
type AuthStatus struct {
	IsAuthenticated bool `json:"is_authenticated"`
}
