// Package collab provides the backing services the assistant's tools
// operate against: user profiles, portfolio projects, and support
// tickets. Each service has an HTTP adapter for the real platform API
// and an in-memory implementation for tests and local development.
package collab

import "time"

// Profile is the portfolio owner's public profile.
type Profile struct {
	UserID      string            `json:"user_id"`
	DisplayName string            `json:"display_name"`
	Headline    string            `json:"headline,omitempty"`
	Bio         string            `json:"bio,omitempty"`
	Email       string            `json:"email"`
	Skills      []string          `json:"skills,omitempty"`
	Links       map[string]string `json:"links,omitempty"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// ProfileUpdate carries partial profile edits. Nil fields are left
// untouched; Email changes go through ChangeEmail, not here.
type ProfileUpdate struct {
	DisplayName *string            `json:"display_name,omitempty"`
	Headline    *string            `json:"headline,omitempty"`
	Bio         *string            `json:"bio,omitempty"`
	Skills      *[]string          `json:"skills,omitempty"`
	Links       *map[string]string `json:"links,omitempty"`
}

// Visibility controls whether a project appears on the public site.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// Project is a single portfolio entry.
type Project struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	Visibility  Visibility `json:"visibility"`
	Archived    bool       `json:"archived"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// ProjectUpdate carries partial project edits.
type ProjectUpdate struct {
	Title       *string     `json:"title,omitempty"`
	Description *string     `json:"description,omitempty"`
	Tags        *[]string   `json:"tags,omitempty"`
	Visibility  *Visibility `json:"visibility,omitempty"`
}

// TicketStatus follows the support desk lifecycle.
type TicketStatus string

const (
	TicketOpen     TicketStatus = "open"
	TicketPending  TicketStatus = "pending"
	TicketResolved TicketStatus = "resolved"
)

// Ticket is a support request filed on the user's behalf.
type Ticket struct {
	ID        string       `json:"id"`
	UserID    string       `json:"user_id"`
	Subject   string       `json:"subject"`
	Body      string       `json:"body"`
	Category  string       `json:"category,omitempty"`
	Status    TicketStatus `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
}

// TicketRequest is the input for filing a new ticket.
type TicketRequest struct {
	Subject  string `json:"subject"`
	Body     string `json:"body"`
	Category string `json:"category,omitempty"`
}
