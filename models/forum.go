package models

import "time"

// Category is a fixed discussion area. Rows are seeded at boot.
type Category struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Name        string `gorm:"size:64;not null;uniqueIndex" json:"name"`
	Slug        string `gorm:"size:64;not null;uniqueIndex" json:"slug"`
	Description string `gorm:"size:255" json:"description"`
}

// Thread represents a forum discussion started by a user.
type Thread struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserID     uint      `gorm:"index;not null" json:"user_id"`
	CategoryID uint      `gorm:"index;not null" json:"category_id"`
	Title      string    `gorm:"size:255;not null" json:"title"`
	Content    string    `gorm:"type:text;not null" json:"content"`
	Pinned     bool      `gorm:"default:false" json:"pinned"`
	Locked     bool      `gorm:"default:false" json:"locked"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	User       User      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"author"`
	Category   Category  `json:"category"`
	Posts      []Post    `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"posts,omitempty"`
}

// Post represents a reply inside a thread.
type Post struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	ThreadID  uint       `gorm:"index;not null" json:"thread_id"`
	UserID    uint       `gorm:"index;not null" json:"user_id"`
	Content   string     `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	User      User       `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"author"`
	Reactions []Reaction `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"reactions,omitempty"`
}

// Reaction is a single emoji-style response. One per user, post and kind.
type Reaction struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	PostID    uint      `gorm:"index;index:idx_reaction_unique,unique;not null" json:"post_id"`
	UserID    uint      `gorm:"index:idx_reaction_unique,unique;not null" json:"user_id"`
	Kind      string    `gorm:"size:16;index:idx_reaction_unique,unique;not null" json:"kind"`
	CreatedAt time.Time `json:"created_at"`
}

// ReactionKinds lists the accepted reaction values.
var ReactionKinds = []string{"like", "helpful", "insightful"}

// ValidReactionKind reports whether kind is one of the accepted values.
func ValidReactionKind(kind string) bool {
	for _, k := range ReactionKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// DefaultCategories are seeded when missing.
var DefaultCategories = []Category{
	{Name: "General", Slug: "general", Description: "General plant chat"},
	{Name: "Identification Help", Slug: "identification-help", Description: "Ask the community to identify a plant"},
	{Name: "Plant Care", Slug: "plant-care", Description: "Watering, light, soil and feeding"},
	{Name: "Pests & Diseases", Slug: "pests-diseases", Description: "Diagnose and treat sick plants"},
	{Name: "Show & Tell", Slug: "show-and-tell", Description: "Share your collection"},
}
