package domain

// Role identifies the author of a chat message.
type Role string

// Message roles. System messages carry notices (blocked answers, errors); they
// are rendered differently from agent answers but stored in the same sequence.
const (
	RoleVisitor Role = "visitor"
	RoleAgent   Role = "agent"
	RoleSystem  Role = "system"
)

// ChatMessage is one entry in a session's conversation history. Messages are
// append-only; they are never mutated after creation.
type ChatMessage struct {
	ID        string `json:"id"`
	Role      Role   `json:"role"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
	Category  string `json:"category,omitempty"`
	Blocked   bool   `json:"blocked,omitempty"`
}

// MessageDraft is the caller-supplied part of a ChatMessage. The history store
// fills in the id and timestamp on append.
type MessageDraft struct {
	Role     Role
	Text     string
	Category string
	Blocked  bool
}
