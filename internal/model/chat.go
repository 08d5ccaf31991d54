package model

// Chat roles accepted in caller-supplied history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatTurn is one message of a conversation about a document. Turns are never
// persisted; callers send the full history with every request.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ValidRole reports whether role may appear in history.
func ValidRole(role string) bool {
	return role == RoleUser || role == RoleAssistant
}
