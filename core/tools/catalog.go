package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/folioforge/concierge/core/chat"
	"github.com/folioforge/concierge/core/collab"
	"github.com/folioforge/concierge/core/docs"
)

// Tool names, referenced by the agents' scope lists.
const (
	ToolGetUserProfile     = "get_user_profile"
	ToolUpdateUserProfile  = "update_user_profile"
	ToolChangeAccountEmail = "change_account_email"
	ToolListProjects       = "list_projects"
	ToolGetProject         = "get_project"
	ToolCreateProject      = "create_project"
	ToolUpdateProject      = "update_project"
	ToolArchiveProject     = "archive_project"
	ToolSearchDocs         = "search_docs"
	ToolGetKnownIssues     = "get_known_issues"
	ToolCreateTicket       = "create_support_ticket"
)

type emptyInput struct{}

// Field limits enforced on decode, mirrored in the advertised schemas.
const (
	maxBioLength      = 50000
	maxHeadlineLength = 200
)

type updateProfileInput struct {
	DisplayName *string            `json:"display_name,omitempty" jsonschema:"description=New display name"`
	Headline    *string            `json:"headline,omitempty" jsonschema:"maxLength=200,description=New headline shown under the name"`
	Bio         *string            `json:"bio,omitempty" jsonschema:"maxLength=50000,description=New biography text"`
	Skills      *[]string          `json:"skills,omitempty" jsonschema:"description=Replacement skill list"`
	Links       *map[string]string `json:"links,omitempty" jsonschema:"description=Replacement social links keyed by site name"`
}

func (in *updateProfileInput) Validate() error {
	if in.Bio != nil && len(*in.Bio) > maxBioLength {
		return fmt.Errorf("bio exceeds %d characters", maxBioLength)
	}
	if in.Headline != nil && len(*in.Headline) > maxHeadlineLength {
		return fmt.Errorf("headline exceeds %d characters", maxHeadlineLength)
	}
	return nil
}

type changeEmailInput struct {
	Email string `json:"email" jsonschema:"required,description=The new account email address"`
}

type getProjectInput struct {
	ProjectID string `json:"project_id" jsonschema:"required,description=The project identifier"`
}

type createProjectInput struct {
	Title       string   `json:"title" jsonschema:"required,description=Project title"`
	Description string   `json:"description,omitempty" jsonschema:"description=Project description"`
	Tags        []string `json:"tags,omitempty" jsonschema:"description=Topic tags"`
	Visibility  string   `json:"visibility,omitempty" jsonschema:"description=public or private,enum=public,enum=private"`
}

type updateProjectInput struct {
	ProjectID   string    `json:"project_id" jsonschema:"required,description=The project identifier"`
	Title       *string   `json:"title,omitempty" jsonschema:"description=New title"`
	Description *string   `json:"description,omitempty" jsonschema:"description=New description"`
	Tags        *[]string `json:"tags,omitempty" jsonschema:"description=Replacement tag list"`
	Visibility  *string   `json:"visibility,omitempty" jsonschema:"description=public or private,enum=public,enum=private"`
}

type archiveProjectInput struct {
	ProjectID string `json:"project_id" jsonschema:"required,description=The project identifier"`
}

type searchDocsInput struct {
	Query string `json:"query" jsonschema:"required,description=Search terms"`
	Limit int    `json:"limit,omitempty" jsonschema:"description=Maximum results to return"`
}

type knownIssuesInput struct {
	Topic string `json:"topic" jsonschema:"required,description=Feature or area to check for known issues"`
}

type createTicketInput struct {
	Subject  string `json:"subject" jsonschema:"required,description=One-line problem summary"`
	Body     string `json:"body" jsonschema:"required,description=Full problem description"`
	Category string `json:"category,omitempty" jsonschema:"description=Problem category"`
}

// NewCatalog builds the full tool registry over the backing services
// and docs index. Confirmation requirements are fixed here and cannot
// change at run time.
func NewCatalog(services collab.Services, index *docs.Index) *Registry {
	r := NewRegistry()

	r.Register(&Tool{
		Name:        ToolGetUserProfile,
		Description: "Read the user's portfolio profile: name, headline, bio, email, skills, and links.",
		Input:       emptyInput{},
		Idempotent:  true,
		Handler: func(ctx context.Context, userID string, args json.RawMessage) (any, error) {
			return services.Profiles.GetProfile(ctx, userID)
		},
	})

	r.Register(&Tool{
		Name:        ToolUpdateUserProfile,
		Description: "Update profile fields. Only the provided fields change; email cannot be changed with this tool.",
		Input:       updateProfileInput{},
		Handler: func(ctx context.Context, userID string, args json.RawMessage) (any, error) {
			var in updateProfileInput
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, err
			}
			update := collab.ProfileUpdate{
				DisplayName: in.DisplayName,
				Headline:    in.Headline,
				Bio:         in.Bio,
				Skills:      in.Skills,
				Links:       in.Links,
			}
			return services.Profiles.UpdateProfile(ctx, userID, update)
		},
	})

	r.Register(&Tool{
		Name:                 ToolChangeAccountEmail,
		Description:          "Change the account email address. Affects login and notifications.",
		Input:                changeEmailInput{},
		RequiresConfirmation: true,
		ConfirmPrompt: func(args json.RawMessage) string {
			var in changeEmailInput
			if err := json.Unmarshal(args, &in); err == nil && in.Email != "" {
				return fmt.Sprintf("Change your account email to %s? This affects how you sign in.", in.Email)
			}
			return "Change your account email? This affects how you sign in."
		},
		Handler: func(ctx context.Context, userID string, args json.RawMessage) (any, error) {
			var in changeEmailInput
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, err
			}
			return services.Profiles.ChangeEmail(ctx, userID, in.Email)
		},
	})

	r.Register(&Tool{
		Name:        ToolListProjects,
		Description: "List the user's portfolio projects with their visibility and archive status.",
		Input:       emptyInput{},
		Idempotent:  true,
		Handler: func(ctx context.Context, userID string, args json.RawMessage) (any, error) {
			return services.Projects.ListProjects(ctx, userID)
		},
	})

	r.Register(&Tool{
		Name:        ToolGetProject,
		Description: "Read a single portfolio project by id.",
		Input:       getProjectInput{},
		Idempotent:  true,
		Handler: func(ctx context.Context, userID string, args json.RawMessage) (any, error) {
			var in getProjectInput
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, err
			}
			return services.Projects.GetProject(ctx, userID, in.ProjectID)
		},
	})

	r.Register(&Tool{
		Name:        ToolCreateProject,
		Description: "Create a new portfolio project. New projects start private unless visibility is given.",
		Input:       createProjectInput{},
		Handler: func(ctx context.Context, userID string, args json.RawMessage) (any, error) {
			var in createProjectInput
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, err
			}
			project := collab.Project{
				Title:       in.Title,
				Description: in.Description,
				Tags:        in.Tags,
				Visibility:  collab.Visibility(in.Visibility),
			}
			return services.Projects.CreateProject(ctx, userID, project)
		},
		ResultAction: func(payload json.RawMessage) *chat.Action {
			var p collab.Project
			if json.Unmarshal(payload, &p) != nil || p.ID == "" {
				return nil
			}
			return &chat.Action{
				Type:   chat.ActionFocusEntity,
				Params: map[string]any{"project_id": p.ID},
			}
		},
	})

	r.Register(&Tool{
		Name:        ToolUpdateProject,
		Description: "Update a project's title, description, tags, or visibility. Only provided fields change.",
		Input:       updateProjectInput{},
		Handler: func(ctx context.Context, userID string, args json.RawMessage) (any, error) {
			var in updateProjectInput
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, err
			}
			update := collab.ProjectUpdate{
				Title:       in.Title,
				Description: in.Description,
				Tags:        in.Tags,
			}
			if in.Visibility != nil {
				v := collab.Visibility(*in.Visibility)
				update.Visibility = &v
			}
			return services.Projects.UpdateProject(ctx, userID, in.ProjectID, update)
		},
	})

	r.Register(&Tool{
		Name:                 ToolArchiveProject,
		Description:          "Archive a project, removing it from the public portfolio. Archived projects are hidden, not deleted.",
		Input:                archiveProjectInput{},
		RequiresConfirmation: true,
		ConfirmPrompt: func(args json.RawMessage) string {
			var in archiveProjectInput
			if err := json.Unmarshal(args, &in); err == nil && in.ProjectID != "" {
				return fmt.Sprintf("Archive project %s? It will no longer appear on your public portfolio.", in.ProjectID)
			}
			return "Archive this project? It will no longer appear on your public portfolio."
		},
		Handler: func(ctx context.Context, userID string, args json.RawMessage) (any, error) {
			var in archiveProjectInput
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, err
			}
			return services.Projects.ArchiveProject(ctx, userID, in.ProjectID)
		},
	})

	r.Register(&Tool{
		Name:        ToolSearchDocs,
		Description: "Search the product documentation for how-to answers.",
		Input:       searchDocsInput{},
		Idempotent:  true,
		Handler: func(ctx context.Context, userID string, args json.RawMessage) (any, error) {
			var in searchDocsInput
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, err
			}
			return index.Search(ctx, in.Query, "", in.Limit)
		},
	})

	r.Register(&Tool{
		Name:        ToolGetKnownIssues,
		Description: "Check the known-issue register for problems matching a feature or area.",
		Input:       knownIssuesInput{},
		Idempotent:  true,
		Handler: func(ctx context.Context, userID string, args json.RawMessage) (any, error) {
			var in knownIssuesInput
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, err
			}
			return index.KnownIssues(ctx, in.Topic, 0)
		},
	})

	r.Register(&Tool{
		Name:        ToolCreateTicket,
		Description: "File a support ticket with the platform's support desk on the user's behalf.",
		Input:       createTicketInput{},
		Handler: func(ctx context.Context, userID string, args json.RawMessage) (any, error) {
			var in createTicketInput
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, err
			}
			return services.Tickets.CreateTicket(ctx, userID, collab.TicketRequest{
				Subject:  in.Subject,
				Body:     in.Body,
				Category: in.Category,
			})
		},
	})

	return r
}
