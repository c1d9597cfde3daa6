package domain

// ActionType identifies what the chat host asks a feature service to do.
type ActionType string

const (
	ActionOpenDialog          ActionType = "openDialog"
	ActionPerformDialogAction ActionType = "performDialogAction"
	ActionCloseDialog         ActionType = "closeDialog"
)

// Known reports whether the type is one of the dispatched action types.
func (t ActionType) Known() bool {
	switch t {
	case ActionOpenDialog, ActionPerformDialogAction, ActionCloseDialog:
		return true
	}
	return false
}

type Issue struct {
	Key     string `json:"key"`
	Summary string `json:"summary,omitempty"`
}

// Entity is the issue-tracker context an action refers to.
type Entity struct {
	BaseURL string `json:"baseUrl"`
	Issue   Issue  `json:"issue"`
}

// ActionEvent is delivered by the chat host once per dispatch.
type ActionEvent struct {
	Type   ActionType `json:"type"`
	Entity Entity     `json:"entity"`
	Label  string     `json:"label,omitempty"`
}

// AuthResult is the answer of the authorization endpoint. Success=false is a
// logical refusal, not a transport failure.
type AuthResult struct {
	Success bool   `json:"success"`
	JWT     string `json:"jwt,omitempty"`
}

// DialogRecord is the dialog currently shown to a user.
type DialogRecord struct {
	UserID      string `json:"user_id"`
	DialogID    string `json:"dialog_id"`
	Owner       string `json:"owner"`
	Layout      string `json:"layout"`
	DataJSON    string `json:"data_json"`
	OptionsJSON string `json:"options_json,omitempty"`
	Version     int64  `json:"version"`
	UpdatedAt   string `json:"updated_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	Service    string `json:"service,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
