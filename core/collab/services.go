package collab

import (
	"context"
	"errors"
)

// ErrNotFound is returned when the requested entity does not exist.
var ErrNotFound = errors.New("collab: not found")

// ProfileService reads and edits the portfolio owner's profile.
type ProfileService interface {
	GetProfile(ctx context.Context, userID string) (*Profile, error)
	UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) (*Profile, error)
	ChangeEmail(ctx context.Context, userID, newEmail string) (*Profile, error)
}

// ProjectService manages portfolio entries.
type ProjectService interface {
	ListProjects(ctx context.Context, userID string) ([]Project, error)
	GetProject(ctx context.Context, userID, projectID string) (*Project, error)
	CreateProject(ctx context.Context, userID string, project Project) (*Project, error)
	UpdateProject(ctx context.Context, userID, projectID string, update ProjectUpdate) (*Project, error)
	ArchiveProject(ctx context.Context, userID, projectID string) (*Project, error)
}

// TicketService files support tickets with the platform's support desk.
type TicketService interface {
	CreateTicket(ctx context.Context, userID string, req TicketRequest) (*Ticket, error)
}

// Services bundles the three backing services for handoff to the tool
// catalog.
type Services struct {
	Profiles ProfileService
	Projects ProjectService
	Tickets  TicketService
}
