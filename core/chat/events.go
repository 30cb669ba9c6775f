// Package chat defines the turn event protocol shared by the
// orchestrator and the transport boundary: the typed events streamed to
// the client and the request envelope a turn starts from.
package chat

// EventType identifies a stream event.
type EventType string

const (
	// EventMessageDelta appends text to the visible chat message.
	EventMessageDelta EventType = "message_delta"

	// EventAction instructs the frontend to execute a UI action.
	EventAction EventType = "action"

	// EventError terminates the stream with a fault.
	EventError EventType = "error"

	// EventDone terminates the stream; the turn completed and state
	// was committed.
	EventDone EventType = "done"
)

// ActionType is the closed set of UI actions the frontend executes.
// The orchestrator must never emit a type outside this set; unknown
// types are a contract error, not something resolved at runtime.
type ActionType string

const (
	ActionNavigate    ActionType = "NAVIGATE"
	ActionOpenModal   ActionType = "OPEN_MODAL"
	ActionFocusEntity ActionType = "FOCUS_ENTITY"
)

// Valid reports whether the action type is part of the frontend contract.
func (t ActionType) Valid() bool {
	switch t {
	case ActionNavigate, ActionOpenModal, ActionFocusEntity:
		return true
	}
	return false
}

// Action is a structured UI instruction. Immutable once emitted;
// ordering relative to other events in the turn is significant.
type Action struct {
	Type      ActionType     `json:"type"`
	Route     string         `json:"route,omitempty"`
	ModalName string         `json:"modal_name,omitempty"`
	Params    map[string]any `json:"params,omitempty"`
}

// Event is one element of the ordered turn stream.
type Event struct {
	Type EventType `json:"type"`

	// Content carries the text delta for message_delta events.
	Content string `json:"content,omitempty"`

	// Action carries the UI instruction for action events.
	Action *Action `json:"action,omitempty"`

	// Kind and Message describe the fault for error events.
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message,omitempty"`
}

// Terminal reports whether the event ends the stream.
func (e Event) Terminal() bool {
	return e.Type == EventDone || e.Type == EventError
}

// DeltaEvent builds a message_delta event.
func DeltaEvent(content string) Event {
	return Event{Type: EventMessageDelta, Content: content}
}

// ActionEvent builds an action event.
func ActionEvent(action Action) Event {
	return Event{Type: EventAction, Action: &action}
}

// ErrorEvent builds a terminal error event.
func ErrorEvent(kind, message string) Event {
	return Event{Type: EventError, Kind: kind, Message: message}
}

// DoneEvent builds the terminal completion event.
func DoneEvent() Event {
	return Event{Type: EventDone}
}

// UIContext is the client-reported UI state accompanying a message.
type UIContext struct {
	SelectedProjectID string `json:"selected_project_id,omitempty"`
	SelectedSection   string `json:"selected_section,omitempty"`
	OpenPanel         string `json:"open_panel,omitempty"`
}

// Confirm is the explicit confirmation payload for a pending gated tool
// call. Free-form message text is never interpreted as confirmation.
type Confirm struct {
	FlowID   string `json:"flow_id"`
	Approved bool   `json:"approved"`
}

// TurnRequest is the transport request that starts a turn.
type TurnRequest struct {
	Message        string    `json:"message"`
	UserID         string    `json:"user_id"`
	ConversationID string    `json:"conversation_id"`
	Route          string    `json:"route"`
	UIContext      UIContext `json:"ui_context"`
	Confirm        *Confirm  `json:"confirm,omitempty"`
}

// Validate checks the request's required fields.
func (r *TurnRequest) Validate() error {
	if r.ConversationID == "" {
		return errMissingField("conversation_id")
	}
	if r.UserID == "" {
		return errMissingField("user_id")
	}
	if r.Message == "" && r.Confirm == nil {
		return errMissingField("message")
	}
	return nil
}

type fieldError string

func (e fieldError) Error() string { return "missing required field: " + string(e) }

func errMissingField(name string) error { return fieldError(name) }
