package main

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// EventCategories is the closed set of allowed categories. The "eventcategory"
// binding rule reads from here, so the enum lives in exactly one place.
var EventCategories = []string{
	"workshop",
	"charity",
	"social",
	"networking",
	"conference",
	"other",
}

func IsValidCategory(category string) bool {
	for _, c := range EventCategories {
		if c == category {
			return true
		}
	}
	return false
}

// User is a document in the users collection.
type User struct {
	ID            primitive.ObjectID   `bson:"_id,omitempty" json:"_id"`
	Name          string               `bson:"name" json:"name"`
	Email         string               `bson:"email" json:"email"`
	Password      string               `bson:"password" json:"-"` // bcrypt hash, never serialized
	CreatedEvents []primitive.ObjectID `bson:"createdEvents" json:"createdEvents"`
	JoinedEvents  []primitive.ObjectID `bson:"joinedEvents" json:"joinedEvents"`
	CreatedAt     time.Time            `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time            `bson:"updatedAt" json:"updatedAt"`
}

// Event is a document in the events collection. Creator and attendees are
// stored as references and resolved to names at read time.
type Event struct {
	ID          primitive.ObjectID   `bson:"_id,omitempty"`
	Title       string               `bson:"title"`
	Description string               `bson:"description"`
	Date        time.Time            `bson:"date"`
	Location    string               `bson:"location"`
	Category    string               `bson:"category"`
	Image       string               `bson:"image,omitempty"`
	Creator     primitive.ObjectID   `bson:"creator"`
	Attendees   []primitive.ObjectID `bson:"attendees"`
	CreatedAt   time.Time            `bson:"createdAt"`
	UpdatedAt   time.Time            `bson:"updatedAt"`
}

// UserRef is a resolved user reference embedded in event responses.
type UserRef struct {
	ID   string `json:"_id"`
	Name string `json:"name"`
}

// EventResponse is the wire shape of an event, with creator and attendees
// resolved to {_id, name} pairs.
type EventResponse struct {
	ID          string    `json:"_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Date        time.Time `json:"date"`
	Location    string    `json:"location"`
	Category    string    `json:"category"`
	Image       string    `json:"image,omitempty"`
	Creator     UserRef   `json:"creator"`
	Attendees   []UserRef `json:"attendees"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type RegisterRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// AuthResponse is returned by both register and login.
type AuthResponse struct {
	ID    string `json:"_id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Token string `json:"token"`
}

// EventRequest is the full event payload. Updates re-bind the whole thing,
// there are no partial updates.
type EventRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description" binding:"required"`
	Date        string `json:"date" binding:"required"` // RFC3339 or YYYY-MM-DD
	Location    string `json:"location" binding:"required"`
	Category    string `json:"category" binding:"required,eventcategory"`
	Image       string `json:"image"`
}

type UpdateProfileRequest struct {
	Name  string `json:"name" binding:"required"`
	Email string `json:"email" binding:"required,email"`
}

type UpdatePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required,min=6"`
}
