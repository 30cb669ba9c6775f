package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const defaultHTTPTimeout = 15 * time.Second

// HTTPConfig configures the platform API clients.
type HTTPConfig struct {
	ProfileBaseURL string
	ProjectBaseURL string
	TicketBaseURL  string
	APIKey         string
	Timeout        time.Duration
}

// APIError carries the status and message returned by the platform API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("collab: api error (%d): %s", e.StatusCode, e.Message)
}

func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= http.StatusInternalServerError
}

type apiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

type httpClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func newHTTPClient(baseURL, apiKey string, timeout time.Duration) *httpClient {
	if timeout == 0 {
		timeout = defaultHTTPTimeout
	}
	return &httpClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *httpClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("collab: marshal request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("collab: create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("collab: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("collab: read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return parseAPIError(resp.StatusCode, respBody)
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("collab: unmarshal response: %w", err)
		}
	}
	return nil
}

func parseAPIError(statusCode int, body []byte) error {
	var errResp apiErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Message == "" {
		return &APIError{StatusCode: statusCode, Message: string(body)}
	}
	return &APIError{StatusCode: statusCode, Message: errResp.Error.Message}
}

// HTTPProfileService talks to the platform profile API.
type HTTPProfileService struct {
	c *httpClient
}

// NewHTTPProfileService builds a profile client from config.
func NewHTTPProfileService(cfg HTTPConfig) *HTTPProfileService {
	return &HTTPProfileService{c: newHTTPClient(cfg.ProfileBaseURL, cfg.APIKey, cfg.Timeout)}
}

func (s *HTTPProfileService) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	var p Profile
	if err := s.c.do(ctx, http.MethodGet, "/users/"+url.PathEscape(userID)+"/profile", nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *HTTPProfileService) UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) (*Profile, error) {
	var p Profile
	if err := s.c.do(ctx, http.MethodPatch, "/users/"+url.PathEscape(userID)+"/profile", update, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *HTTPProfileService) ChangeEmail(ctx context.Context, userID, newEmail string) (*Profile, error) {
	var p Profile
	in := struct {
		Email string `json:"email"`
	}{Email: newEmail}
	if err := s.c.do(ctx, http.MethodPost, "/users/"+url.PathEscape(userID)+"/email", in, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// HTTPProjectService talks to the platform project API.
type HTTPProjectService struct {
	c *httpClient
}

// NewHTTPProjectService builds a project client from config.
func NewHTTPProjectService(cfg HTTPConfig) *HTTPProjectService {
	return &HTTPProjectService{c: newHTTPClient(cfg.ProjectBaseURL, cfg.APIKey, cfg.Timeout)}
}

func (s *HTTPProjectService) ListProjects(ctx context.Context, userID string) ([]Project, error) {
	var out struct {
		Projects []Project `json:"projects"`
	}
	if err := s.c.do(ctx, http.MethodGet, "/users/"+url.PathEscape(userID)+"/projects", nil, &out); err != nil {
		return nil, err
	}
	return out.Projects, nil
}

func (s *HTTPProjectService) GetProject(ctx context.Context, userID, projectID string) (*Project, error) {
	var p Project
	path := "/users/" + url.PathEscape(userID) + "/projects/" + url.PathEscape(projectID)
	if err := s.c.do(ctx, http.MethodGet, path, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *HTTPProjectService) CreateProject(ctx context.Context, userID string, project Project) (*Project, error) {
	var p Project
	if err := s.c.do(ctx, http.MethodPost, "/users/"+url.PathEscape(userID)+"/projects", project, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *HTTPProjectService) UpdateProject(ctx context.Context, userID, projectID string, update ProjectUpdate) (*Project, error) {
	var p Project
	path := "/users/" + url.PathEscape(userID) + "/projects/" + url.PathEscape(projectID)
	if err := s.c.do(ctx, http.MethodPatch, path, update, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *HTTPProjectService) ArchiveProject(ctx context.Context, userID, projectID string) (*Project, error) {
	var p Project
	path := "/users/" + url.PathEscape(userID) + "/projects/" + url.PathEscape(projectID) + "/archive"
	if err := s.c.do(ctx, http.MethodPost, path, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// HTTPTicketService talks to the platform support desk API.
type HTTPTicketService struct {
	c *httpClient
}

// NewHTTPTicketService builds a ticket client from config.
func NewHTTPTicketService(cfg HTTPConfig) *HTTPTicketService {
	return &HTTPTicketService{c: newHTTPClient(cfg.TicketBaseURL, cfg.APIKey, cfg.Timeout)}
}

func (s *HTTPTicketService) CreateTicket(ctx context.Context, userID string, req TicketRequest) (*Ticket, error) {
	var t Ticket
	if err := s.c.do(ctx, http.MethodPost, "/users/"+url.PathEscape(userID)+"/tickets", req, &t); err != nil {
		return nil, err
	}
	return &t, nil
}
