package services

import (
	"context"
	"time"
)

// Provider names as stored in request rows and suggestion sources.
const (
	ProviderPlantID  = "plant.id"
	ProviderPlantNet = "plantnet"
	SourceBoth       = "both"
)

// IdentifyInput carries one image and the caller's options to a provider.
type IdentifyInput struct {
	Image         []byte
	Organs        []string // PlantNet hints: leaf, flower, fruit, bark
	IncludeHealth bool
}

// Suggestion is a single candidate species with its confidence.
type Suggestion struct {
	ScientificName string   `json:"scientific_name"`
	CommonNames    []string `json:"common_names,omitempty"`
	Family         string   `json:"family,omitempty"`
	Genus          string   `json:"genus,omitempty"`
	Description    string   `json:"description,omitempty"`
	WikiURL        string   `json:"wiki_url,omitempty"`
	Probability    float64  `json:"probability"`
	Source         string   `json:"source"`
}

// DiseaseSuggestion is a candidate plant health problem.
type DiseaseSuggestion struct {
	Name        string  `json:"name"`
	Probability float64 `json:"probability"`
	Description string  `json:"description,omitempty"`
}

// HealthAssessment summarizes a provider's health verdict for the image.
type HealthAssessment struct {
	IsHealthy   bool                `json:"is_healthy"`
	Probability float64             `json:"is_healthy_probability"`
	Diseases    []DiseaseSuggestion `json:"diseases,omitempty"`
}

// Identification is one provider's answer.
type Identification struct {
	Provider    string            `json:"provider"`
	Suggestions []Suggestion      `json:"suggestions"`
	Health      *HealthAssessment `json:"health,omitempty"`
}

// Provider identifies a plant image via an external API. Implementations must
// honor ctx cancellation; the orchestrator imposes per-provider deadlines.
type Provider interface {
	Name() string
	Timeout() time.Duration
	Identify(ctx context.Context, in IdentifyInput) (*Identification, error)
}
