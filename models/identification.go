package models

import "time"

// Identification request lifecycle states.
const (
	IdentificationCompleted = "completed" // all providers answered
	IdentificationPartial   = "partial"   // one provider answered, the other failed or was skipped
	IdentificationCached    = "cached"    // served from the image-hash cache, no provider call
	IdentificationFailed    = "failed"    // no provider answered
)

// IdentificationRequest records one identification attempt and owns the
// uploaded image until the retention deadline. Requests survive the
// soft-deletion of their user; history must never be destroyed by an
// account removal.
type IdentificationRequest struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	PublicID      string    `gorm:"size:36;not null;uniqueIndex" json:"public_id"`
	UserID        uint      `gorm:"index;not null" json:"user_id"`
	ImageHash     string    `gorm:"size:64;index;not null" json:"image_hash"`
	ImagePath     string    `gorm:"size:1024" json:"-"`
	ImageURL      string    `gorm:"size:1024" json:"image_url"`
	Organs        string    `gorm:"size:255" json:"organs"` // comma separated PlantNet hints
	IncludeHealth bool      `json:"include_health"`
	Status        string    `gorm:"size:16;index;not null" json:"status"`
	Providers     string    `gorm:"size:64" json:"providers"` // comma separated providers that answered
	FromCache     bool      `json:"from_cache"`
	ExpireAt      time.Time `gorm:"index" json:"-"` // image retention deadline
	CreatedAt     time.Time `json:"created_at"`

	Results []IdentificationResult `gorm:"foreignKey:RequestID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"results,omitempty"`
}

// IdentificationResult is a single merged suggestion for a request.
// SpeciesID is nullable and set to NULL when the species row disappears,
// so historical results are never cascaded away.
type IdentificationResult struct {
	ID             uint    `gorm:"primaryKey" json:"id"`
	RequestID      uint    `gorm:"index;not null" json:"request_id"`
	SpeciesID      *uint   `gorm:"index" json:"species_id"`
	ScientificName string  `gorm:"size:255;not null" json:"scientific_name"`
	Probability    float64 `gorm:"not null" json:"probability"`
	Source         string  `gorm:"size:32;not null" json:"source"` // plant.id | plantnet | both

	Species *PlantSpecies `gorm:"constraint:OnUpdate:CASCADE,OnDelete:SET NULL;" json:"species,omitempty"`
}
