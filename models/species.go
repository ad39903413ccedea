package models

import "time"

// PlantSpecies is the reference row a suggestion resolves to. Rows are
// upserted from provider responses, keyed by scientific name.
type PlantSpecies struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	ScientificName string    `gorm:"size:255;not null;uniqueIndex" json:"scientific_name"`
	CommonNames    string    `gorm:"size:1024" json:"common_names"` // comma separated
	Family         string    `gorm:"size:255;index" json:"family"`
	Genus          string    `gorm:"size:255" json:"genus"`
	Description    string    `gorm:"type:text" json:"description"`
	WikiURL        string    `gorm:"size:512" json:"wiki_url"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// PlantDisease is a reference entry in the disease database. Rows are
// upserted from health-assessment responses and enriched by editors.
type PlantDisease struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"size:255;not null;uniqueIndex" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	Treatment   string    `gorm:"type:text" json:"treatment"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
