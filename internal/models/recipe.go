package models

import "time"

// RecipeStatus is the moderation state of a recipe.
type RecipeStatus string

const (
	RecipeStatusPending  RecipeStatus = "pending"
	RecipeStatusApproved RecipeStatus = "approved"
)

// Recipe is a user-submitted recipe. Only approved recipes are public.
type Recipe struct {
	ID            uint         `gorm:"primaryKey" json:"id"`
	Title         string       `gorm:"not null" json:"title"`
	Ingredients   string       `gorm:"type:text;not null" json:"ingredients"`
	Instructions  string       `gorm:"type:text;not null" json:"instructions"`
	Category      string       `gorm:"not null" json:"category"`
	ImageURL      string       `json:"image_url"`
	VideoURL      string       `json:"video_url"`
	UserID        uint         `gorm:"not null;index" json:"user_id"`
	Status        RecipeStatus `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`
	DeleteRequest bool         `gorm:"not null;default:false" json:"delete_request"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`

	// Computed at query time.
	CreatorUsername string  `gorm:"->;-:migration" json:"creator_username,omitempty"`
	AvgRating       float64 `gorm:"->;-:migration" json:"avg_rating"`
	TotalReviews    int64   `gorm:"->;-:migration" json:"total_reviews"`
}

// IsApproved reports whether the recipe is publicly visible.
func (r *Recipe) IsApproved() bool {
	return r.Status == RecipeStatusApproved
}

// VisibleTo reports whether the viewer may see the recipe. Pending recipes
// are visible only to their owner and to administrators.
func (r *Recipe) VisibleTo(viewerID uint, viewerIsAdmin bool) bool {
	if r.IsApproved() || viewerIsAdmin {
		return true
	}
	return viewerID != 0 && viewerID == r.UserID
}

// RecipeSummary is the short form listed for a member on the admin dashboard.
type RecipeSummary struct {
	ID       uint         `json:"id"`
	Title    string       `json:"title"`
	Category string       `json:"category"`
	Status   RecipeStatus `json:"status"`
}
