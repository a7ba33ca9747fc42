package notifications

import (
	"encoding/json"
	"time"
)

// Event types delivered to users and administrators.
const (
	EventAccountApproved = "account_approved"
	EventRecipeApproved  = "recipe_approved"
	EventRecipeRejected  = "recipe_rejected"
	EventDeleteApproved  = "delete_approved"
	EventDeleteRejected  = "delete_rejected"
	EventRecipeRemoved   = "recipe_removed"

	// EventQueueChanged tells administrators the moderation queue moved.
	EventQueueChanged = "queue_changed"
)

// Event is a notification payload. It is stored in the user's inbox and
// pushed over the websocket as JSON.
type Event struct {
	Type     string    `json:"type"`
	Message  string    `json:"message"`
	RecipeID uint      `json:"recipe_id,omitempty"`
	UserID   uint      `json:"user_id,omitempty"`
	At       time.Time `json:"at"`
}

// NewEvent stamps an event with the current time.
func NewEvent(eventType, message string) Event {
	return Event{Type: eventType, Message: message, At: time.Now().UTC()}
}

// WithRecipe sets the recipe the event is about.
func (e Event) WithRecipe(id uint) Event {
	e.RecipeID = id
	return e
}

// WithUser sets the account the event is about.
func (e Event) WithUser(id uint) Event {
	e.UserID = id
	return e
}

func (e Event) encode() (string, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
