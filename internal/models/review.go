package models

import "time"

// Review is a rating with an optional comment left on an approved recipe.
type Review struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	RecipeID  uint      `gorm:"not null;index" json:"recipe_id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	Rating    int       `gorm:"not null" json:"rating"`
	Comment   string    `gorm:"type:text" json:"comment"`
	CreatedAt time.Time `json:"created_at"`

	ReviewerUsername string `gorm:"->;-:migration" json:"username,omitempty"`
}

// RatingSummary is the rounded average rating and review count of a recipe.
type RatingSummary struct {
	Average float64 `json:"avg_rating"`
	Count   int64   `json:"total_reviews"`
}
