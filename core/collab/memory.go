package collab

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryServices is a self-contained implementation of all three
// backing services. It backs tests and local development where no
// platform API is reachable.
type MemoryServices struct {
	mu       sync.RWMutex
	profiles map[string]*Profile
	projects map[string]map[string]*Project
	tickets  map[string][]*Ticket
}

// NewMemoryServices returns an empty in-memory backend.
func NewMemoryServices() *MemoryServices {
	return &MemoryServices{
		profiles: make(map[string]*Profile),
		projects: make(map[string]map[string]*Project),
		tickets:  make(map[string][]*Ticket),
	}
}

// Bundle exposes the backend through the Services handoff struct.
func (m *MemoryServices) Bundle() Services {
	return Services{Profiles: m, Projects: m, Tickets: m}
}

// SeedProfile installs a profile, replacing any existing one.
func (m *MemoryServices) SeedProfile(p Profile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := p
	m.profiles[p.UserID] = &cp
}

// SeedProject installs a project for its user.
func (m *MemoryServices) SeedProject(p Project) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.projects[p.UserID] == nil {
		m.projects[p.UserID] = make(map[string]*Project)
	}
	cp := p
	m.projects[p.UserID][p.ID] = &cp
}

func (m *MemoryServices) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryServices) UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) (*Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return nil, ErrNotFound
	}
	if update.DisplayName != nil {
		p.DisplayName = *update.DisplayName
	}
	if update.Headline != nil {
		p.Headline = *update.Headline
	}
	if update.Bio != nil {
		p.Bio = *update.Bio
	}
	if update.Skills != nil {
		p.Skills = append([]string(nil), (*update.Skills)...)
	}
	if update.Links != nil {
		links := make(map[string]string, len(*update.Links))
		for k, v := range *update.Links {
			links[k] = v
		}
		p.Links = links
	}
	p.UpdatedAt = time.Now().UTC()
	cp := *p
	return &cp, nil
}

func (m *MemoryServices) ChangeEmail(ctx context.Context, userID, newEmail string) (*Profile, error) {
	if newEmail == "" {
		return nil, fmt.Errorf("collab: email must not be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return nil, ErrNotFound
	}
	p.Email = newEmail
	p.UpdatedAt = time.Now().UTC()
	cp := *p
	return &cp, nil
}

func (m *MemoryServices) ListProjects(ctx context.Context, userID string) ([]Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	byID := m.projects[userID]
	out := make([]Project, 0, len(byID))
	for _, p := range byID {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryServices) GetProject(ctx context.Context, userID, projectID string) (*Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.projects[userID][projectID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryServices) CreateProject(ctx context.Context, userID string, project Project) (*Project, error) {
	if project.Title == "" {
		return nil, fmt.Errorf("collab: project title must not be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.projects[userID] == nil {
		m.projects[userID] = make(map[string]*Project)
	}
	now := time.Now().UTC()
	project.ID = uuid.NewString()
	project.UserID = userID
	project.Archived = false
	project.CreatedAt = now
	project.UpdatedAt = now
	if project.Visibility == "" {
		project.Visibility = VisibilityPrivate
	}
	cp := project
	m.projects[userID][project.ID] = &cp
	out := cp
	return &out, nil
}

func (m *MemoryServices) UpdateProject(ctx context.Context, userID, projectID string, update ProjectUpdate) (*Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[userID][projectID]
	if !ok {
		return nil, ErrNotFound
	}
	if update.Title != nil {
		p.Title = *update.Title
	}
	if update.Description != nil {
		p.Description = *update.Description
	}
	if update.Tags != nil {
		p.Tags = append([]string(nil), (*update.Tags)...)
	}
	if update.Visibility != nil {
		p.Visibility = *update.Visibility
	}
	p.UpdatedAt = time.Now().UTC()
	cp := *p
	return &cp, nil
}

func (m *MemoryServices) ArchiveProject(ctx context.Context, userID, projectID string) (*Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[userID][projectID]
	if !ok {
		return nil, ErrNotFound
	}
	p.Archived = true
	p.UpdatedAt = time.Now().UTC()
	cp := *p
	return &cp, nil
}

func (m *MemoryServices) CreateTicket(ctx context.Context, userID string, req TicketRequest) (*Ticket, error) {
	if req.Subject == "" {
		return nil, fmt.Errorf("collab: ticket subject must not be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &Ticket{
		ID:        uuid.NewString(),
		UserID:    userID,
		Subject:   req.Subject,
		Body:      req.Body,
		Category:  req.Category,
		Status:    TicketOpen,
		CreatedAt: time.Now().UTC(),
	}
	m.tickets[userID] = append(m.tickets[userID], t)
	cp := *t
	return &cp, nil
}

// Tickets returns the tickets filed for a user (for tests).
func (m *MemoryServices) Tickets(userID string) []Ticket {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Ticket, 0, len(m.tickets[userID]))
	for _, t := range m.tickets[userID] {
		out = append(out, *t)
	}
	return out
}
