package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Block is one unit of structured blog content. The editor emits an ordered
// list of typed blocks rather than a single HTML body.
type Block struct {
	Type  string `json:"type"` // heading | paragraph | image | quote
	Value string `json:"value"`
}

// BlockList stores blocks as a JSON text column.
type BlockList []Block

// Value implements driver.Valuer.
func (b BlockList) Value() (driver.Value, error) {
	if b == nil {
		return "[]", nil
	}
	raw, err := json.Marshal(b)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// Scan implements sql.Scanner.
func (b *BlockList) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*b = nil
		return nil
	case []byte:
		return json.Unmarshal(v, b)
	case string:
		return json.Unmarshal([]byte(v), b)
	default:
		return errors.New("unsupported type for BlockList")
	}
}

// BlockTypes lists the accepted block type values.
var BlockTypes = []string{"heading", "paragraph", "image", "quote"}

// ValidBlockType reports whether t is one of the accepted block types.
func ValidBlockType(t string) bool {
	for _, bt := range BlockTypes {
		if bt == t {
			return true
		}
	}
	return false
}

// BlogPost is an editorial article. Only published posts are publicly listed.
type BlogPost struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	AuthorID    uint       `gorm:"index;not null" json:"author_id"`
	Slug        string     `gorm:"size:255;not null;uniqueIndex" json:"slug"`
	Title       string     `gorm:"size:255;not null" json:"title"`
	Intro       string     `gorm:"size:512" json:"intro"`
	Blocks      BlockList  `gorm:"type:text" json:"blocks"`
	Published   bool       `gorm:"default:false;index" json:"published"`
	PublishedAt *time.Time `json:"published_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	Author      User       `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"author"`
}
