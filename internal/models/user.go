// Package models contains data structures for the application's domain models.
package models

import "time"

// User represents an account in the RecipeBox application.
// New accounts start unapproved; only administrators approve them.
type User struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Username   string    `gorm:"uniqueIndex;not null" json:"username"`
	Email      string    `gorm:"uniqueIndex;not null" json:"email"`
	Password   string    `gorm:"not null" json:"-"`
	IsAdmin    bool      `gorm:"not null;default:false" json:"is_admin"`
	IsApproved bool      `gorm:"not null;default:false" json:"is_approved"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	// RemovedImages holds the image URLs of recipes deleted together with
	// the account.
	RemovedImages []string `gorm:"-" json:"-"`
}

// CanLogin reports whether the account passes the approval gate.
func (u *User) CanLogin() bool {
	return u.IsAdmin || u.IsApproved
}

// MemberSummary is a non-admin account with the number of recipes it owns.
type MemberSummary struct {
	ID          uint   `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	IsApproved  bool   `json:"is_approved"`
	RecipeCount int64  `json:"recipe_count"`
}

// DashboardStats holds the totals shown on the home page and admin dashboard.
type DashboardStats struct {
	ApprovedRecipes int64 `json:"approved_recipes"`
	Members         int64 `json:"members"`
	Admins          int64 `json:"admins"`
}
